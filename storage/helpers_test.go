package storage

import (
	"crypto/sha256"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/inter/proofkey"
)

func testKey(seed string) *btcec.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	key, _ := btcec.PrivKeyFromBytes(sum[:])
	return key
}

func testRules() datos.Rules {
	return datos.FakeNetRules()
}

func node(ip uint32, space uint32, active bool) inter.StorageNodeRecord {
	rec := inter.StorageNodeRecord{ID: ip & 0xff, IP: ip, Space: space}
	if active {
		rec.Mode, rec.Stat, rec.Reg = 1, 1, 1
	}
	return rec
}

// signedProof builds a sealed proof at height signed with key.
func signedProof(key *btcec.PrivateKey, height idx.Block, nodes ...inter.StorageNodeRecord) inter.NetworkProof {
	np := inter.NetworkProof{Height: height, Proof: inter.Proof{Nodes: nodes}}
	hash := np.Seal()
	sig, err := proofkey.Sign(key, hash[:], true)
	if err != nil {
		panic(err)
	}
	np.Signature = sig
	return np
}

func protocolProof(height idx.Block, nodes ...inter.StorageNodeRecord) inter.NetworkProof {
	if len(nodes) == 0 {
		nodes = []inter.StorageNodeRecord{node(0x0a000001, 100, true)}
	}
	return signedProof(datos.FakeProofKey(), height, nodes...)
}

type testChain struct {
	tip    idx.Block
	proofs map[idx.Block]inter.NetworkProof
}

func newTestChain(tip idx.Block) *testChain {
	return &testChain{tip: tip, proofs: make(map[idx.Block]inter.NetworkProof)}
}

func (c *testChain) TipHeight() idx.Block { return c.tip }

func (c *testChain) NetworkProofAt(height idx.Block) (inter.NetworkProof, bool) {
	np, ok := c.proofs[height]
	return np, ok
}

type testRelay struct {
	relayed []inter.NetworkProof
}

func (r *testRelay) RelayProof(np *inter.NetworkProof) {
	r.relayed = append(r.relayed, np.Copy())
}

type testJournal struct {
	heights []idx.Block
}

func (j *testJournal) PutProof(np *inter.NetworkProof) error {
	j.heights = append(j.heights, np.Height)
	return nil
}
