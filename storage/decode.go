package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/barrystyle/datos/inter"
)

// MaxHexProofSize is the longest hex proof payload accepted, in characters.
const MaxHexProofSize = 1048576

var (
	ErrHexProofTooLarge = errors.New("hex proof exceeds size limit")
	ErrHexProofInvalid  = errors.New("hex proof is not valid hex")
)

// DecodeHexProof decodes a hex proof container. Oversized payloads are
// refused before anything is allocated.
func DecodeHexProof(s string) (inter.Proof, error) {
	if len(s) > MaxHexProofSize {
		return inter.Proof{}, ErrHexProofTooLarge
	}
	raw, err := hexutil.Decode("0x" + s)
	if err != nil {
		return inter.Proof{}, fmt.Errorf("%w: %v", ErrHexProofInvalid, err)
	}
	var p inter.Proof
	if err := p.UnmarshalBinary(raw); err != nil {
		return inter.Proof{}, err
	}
	return p, nil
}

// EncodeHexProof is the inverse of DecodeHexProof.
func EncodeHexProof(p inter.Proof) string {
	raw, _ := p.MarshalBinary()
	return hexutil.Encode(raw)[2:]
}
