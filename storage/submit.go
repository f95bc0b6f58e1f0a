package storage

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/inter/proofkey"
	"github.com/barrystyle/datos/logger"
)

// MinProofSize is the smallest proof container, an empty node list.
const MinProofSize = 4

var (
	ErrProofUnderMinSize = errors.New("proof under min size")
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrProofDecode       = errors.New("proof decode failed")
	ErrNoProofs          = errors.New("no network proofs cached")
)

// Relayer announces a network proof to peers.
type Relayer interface {
	RelayProof(np *inter.NetworkProof)
}

// ProofSubmitter signs operator-supplied proofs for the next block and
// hands them to the manager and the network.
type ProofSubmitter struct {
	rules  datos.Rules
	proofs *ProofManager
	chain  ProofSource
	relay  Relayer

	log *logrus.Entry
}

func NewProofSubmitter(rules datos.Rules, proofs *ProofManager, chain ProofSource, relay Relayer) *ProofSubmitter {
	return &ProofSubmitter{
		rules:  rules,
		proofs: proofs,
		chain:  chain,
		relay:  relay,
		log:    logger.New("storage"),
	}
}

// Submit decodes hexProof, binds it to the height after the tip, signs it
// with the WIF key and relays it once the manager accepts it.
func (s *ProofSubmitter) Submit(hexProof, wif string) (inter.NetworkProof, error) {
	if len(hexProof) < 2*MinProofSize {
		return inter.NetworkProof{}, ErrProofUnderMinSize
	}
	if len(wif) < 34 {
		return inter.NetworkProof{}, ErrInvalidPrivateKey
	}
	key, err := btcutil.DecodeWIF(wif)
	if err != nil || !key.IsForNet(s.rules.ChainParams()) {
		return inter.NetworkProof{}, ErrInvalidPrivateKey
	}
	proof, err := DecodeHexProof(hexProof)
	if err != nil {
		s.log.WithError(err).Debug("Submitted proof rejected")
		return inter.NetworkProof{}, ErrProofDecode
	}

	np := inter.NetworkProof{
		Height: s.chain.TipHeight() + 1,
		Proof:  proof,
	}
	hash := np.Seal()
	np.Signature, err = proofkey.Sign(key.PrivKey, hash[:], key.CompressPubKey)
	if err != nil {
		return inter.NetworkProof{}, err
	}
	if err := s.proofs.Validate(&np); err != nil {
		return inter.NetworkProof{}, err
	}
	if s.relay != nil {
		s.relay.RelayProof(&np)
	}
	s.log.WithFields(logrus.Fields{
		"height": np.Height,
		"hash":   np.Hash,
		"nodes":  len(np.Proof.Nodes),
	}).Info("Network proof submitted")
	return np, nil
}

// Resubmit relays the most recent cached proof again.
func (s *ProofSubmitter) Resubmit() (inter.NetworkProof, error) {
	np, ok := s.proofs.Latest()
	if !ok {
		return inter.NetworkProof{}, ErrNoProofs
	}
	if s.relay != nil {
		s.relay.RelayProof(&np)
	}
	return np, nil
}
