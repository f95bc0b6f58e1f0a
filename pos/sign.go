package pos

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignStakeInput fills the signature script of input idx spending prevOut,
// which must pay to key's hash or to key directly.
func SignStakeInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut, key *btcec.PrivateKey) error {
	var (
		script []byte
		err    error
	)
	switch txscript.GetScriptClass(prevOut.PkScript) {
	case txscript.PubKeyHashTy:
		script, err = txscript.SignatureScript(tx, idx, prevOut.PkScript, txscript.SigHashAll, key, true)
	case txscript.PubKeyTy:
		var sig []byte
		sig, err = txscript.RawTxInSignature(tx, idx, prevOut.PkScript, txscript.SigHashAll, key)
		if err == nil {
			script, err = txscript.NewScriptBuilder().AddData(sig).Script()
		}
	default:
		return ErrNoStakeKey
	}
	if err != nil {
		return err
	}
	tx.TxIn[idx].SignatureScript = script
	return nil
}
