package wallet

import (
	"math/rand"

	"github.com/btcsuite/btcd/btcec/v2"
)

// FakeKey returns the n-th deterministic fakenet key. The same n always
// yields the same key.
func FakeKey(n int) *btcec.PrivateKey {
	reader := rand.New(rand.NewSource(int64(n)))

	var seed [32]byte
	if _, err := reader.Read(seed[:]); err != nil {
		panic(err)
	}
	key, _ := btcec.PrivKeyFromBytes(seed[:])
	return key
}
