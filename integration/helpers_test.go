package integration

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/storage"
)

const testNodeIP = uint32(0x0a000001)

func activeNode(ip, space uint32) inter.StorageNodeRecord {
	return inter.StorageNodeRecord{ID: ip & 0xff, IP: ip, Mode: 1, Stat: 1, Reg: 1, Space: space}
}

func proofHex(nodes ...inter.StorageNodeRecord) string {
	return storage.EncodeHexProof(inter.Proof{Nodes: nodes})
}

func proofWIF(t *testing.T, rules datos.Rules) string {
	wif, err := btcutil.NewWIF(datos.FakeProofKey(), rules.ChainParams(), true)
	require.NoError(t, err)
	return wif.String()
}

// testConfig is a lite fakenet config whose minter clock runs a few
// seconds ahead of whatever chain *chain points to.
func testConfig(chain **MemChain) Config {
	cfg := DefaultConfig(datos.FakeNetRules())
	ApplyPreset(&cfg, LitePreset())
	cfg.Minter.Now = func() time.Time {
		return time.Unix((*chain).Tip().Time+8, 0)
	}
	return cfg
}

// newTestNode assembles a fakenet node with one staker holding outputs
// genesis coins. An empty dataDir keeps the journal in memory.
func newTestNode(t *testing.T, dataDir string, outputs int) *Node {
	var chain *MemChain
	cfg := testConfig(&chain)
	cfg.InMemory = dataDir == ""

	g, keys, err := FakeGenesis(cfg.Rules.ChainParams(), 1, FakeBalance, outputs)
	require.NoError(t, err)
	n, err := NewNode(cfg, dataDir, g, keys)
	require.NoError(t, err)
	chain = n.Chain
	return n
}
