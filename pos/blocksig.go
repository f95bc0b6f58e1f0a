package pos

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"

	"github.com/barrystyle/datos/inter"
)

var (
	ErrMissingBlockSig = errors.New("block signature missing")
	ErrBadBlockSig     = errors.New("block signature invalid")
	ErrBlockSigScript  = errors.New("coinstake output does not pay to a public key")
	ErrNotProofOfStake = errors.New("block is not proof-of-stake")
)

// PayToPubKeyScript returns <pubkey> OP_CHECKSIG.
func PayToPubKeyScript(pubKey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().AddData(pubKey).AddOp(txscript.OP_CHECKSIG).Script()
}

// SignBlockWithKey signs the block hash with key and stores the DER
// signature on the block.
func SignBlockWithKey(block *inter.Block, key *btcec.PrivateKey) {
	hash := block.Hash()
	block.Signature = ecdsa.Sign(key, hash[:]).Serialize()
}

// blockSigPubKey extracts the key the first coinstake output pays to.
func blockSigPubKey(block *inter.Block) (*btcec.PublicKey, error) {
	cs := block.CoinStake()
	if cs == nil {
		return nil, ErrNotProofOfStake
	}
	script := cs.TxOut[1].PkScript
	if txscript.GetScriptClass(script) != txscript.PubKeyTy {
		return nil, ErrBlockSigScript
	}
	// a P2PK script is a single data push followed by OP_CHECKSIG
	return btcec.ParsePubKey(script[1 : len(script)-1])
}

// VerifyBlockSignature checks the block signature against the public key in
// the first coinstake output.
func VerifyBlockSignature(block *inter.Block) error {
	pub, err := blockSigPubKey(block)
	if err != nil {
		return err
	}
	if len(block.Signature) == 0 {
		return ErrMissingBlockSig
	}
	sig, err := ecdsa.ParseDERSignature(block.Signature)
	if err != nil {
		return ErrBadBlockSig
	}
	hash := block.Hash()
	if !sig.Verify(hash[:], pub) {
		return ErrBadBlockSig
	}
	return nil
}
