// Package proofkey identifies the keys allowed to sign network storage proofs.
// A key is referenced by its 20-byte HASH160 identifier, the same value that
// appears inside a P2PKH address, so operators can configure it either as an
// address or as raw hex.
package proofkey

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// Size of a key identifier in bytes.
const Size = 20

var (
	ErrEmptySignature = errors.New("empty signature")
	ErrRecoverFailed  = errors.New("signature recovery failed")
	ErrBadAddress     = errors.New("malformed address")
	ErrAddressNetwork = errors.New("address belongs to another network")
	ErrKeyIDLength    = errors.New("key id must be 20 bytes")
)

// KeyID is the HASH160 of a serialized secp256k1 public key.
type KeyID [Size]byte

// Empty reports whether the identifier is all zero.
func (id KeyID) Empty() bool {
	return id == KeyID{}
}

func (id KeyID) Bytes() []byte {
	return common.CopyBytes(id[:])
}

// String returns the identifier as 0x-prefixed hex.
func (id KeyID) String() string {
	return "0x" + common.Bytes2Hex(id[:])
}

// Address renders the identifier as a base58check address with the given
// version byte.
func (id KeyID) Address(version byte) string {
	return base58.CheckEncode(id[:], version)
}

func (id KeyID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *KeyID) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*id = res
	return nil
}

// FromBytes copies a 20-byte slice into a KeyID.
func FromBytes(b []byte) (KeyID, error) {
	var id KeyID
	if len(b) != Size {
		return id, ErrKeyIDLength
	}
	copy(id[:], b)
	return id, nil
}

// FromString parses a hex identifier, with or without the 0x prefix.
func FromString(str string) (KeyID, error) {
	return FromBytes(common.FromHex(str))
}

// FromAddress decodes a base58check P2PKH address and checks its version byte.
func FromAddress(addr string, version byte) (KeyID, error) {
	payload, ver, err := base58.CheckDecode(addr)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if ver != version {
		return KeyID{}, ErrAddressNetwork
	}
	return FromBytes(payload)
}

// FromPubKey hashes the compressed serialization of pub.
func FromPubKey(pub *btcec.PublicKey) KeyID {
	return fromSerialized(pub.SerializeCompressed())
}

func fromSerialized(b []byte) KeyID {
	var id KeyID
	copy(id[:], btcutil.Hash160(b))
	return id
}

// Sign produces a 65-byte recoverable signature over hash.
func Sign(key *btcec.PrivateKey, hash []byte, compressed bool) ([]byte, error) {
	return ecdsa.SignCompact(key, hash, compressed)
}

// Recover returns the identifier of the key that produced sig over hash.
// The compression flag embedded in the signature selects which public key
// serialization is hashed.
func Recover(hash, sig []byte) (KeyID, error) {
	if len(sig) == 0 {
		return KeyID{}, ErrEmptySignature
	}
	pub, compressed, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: %v", ErrRecoverFailed, err)
	}
	if compressed {
		return fromSerialized(pub.SerializeCompressed()), nil
	}
	return fromSerialized(pub.SerializeUncompressed()), nil
}
