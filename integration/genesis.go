package integration

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/wallet"
)

// FakeGenesisTime is the fakenet genesis timestamp (2020-12-22).
const FakeGenesisTime = int64(1608600000)

// FakeBalance is what each fakenet staker receives at genesis.
const FakeBalance = 1000000 * datos.COIN

// FakeOutputs is how many genesis outputs each fakenet staker gets.
const FakeOutputs = 128

// Genesis describes the first block and the work era on top of it.
type Genesis struct {
	Time  int64
	Alloc []Alloc
	// BlockSpacing separates the generated work blocks.
	BlockSpacing int64
}

// FakeGenesis funds stakers fakenet keys, FakeKey(1) to FakeKey(stakers),
// each with balance split over outputs coins. Every coin can be a kernel
// once, so the split decides how many blocks a key mints before its first
// coinstake matures.
func FakeGenesis(params *chaincfg.Params, stakers int, balance btcutil.Amount, outputs int) (Genesis, []*btcec.PrivateKey, error) {
	g := Genesis{Time: FakeGenesisTime, BlockSpacing: 16}
	keys := make([]*btcec.PrivateKey, 0, stakers)
	for i := 1; i <= stakers; i++ {
		key := wallet.FakeKey(i)
		script, err := p2pkhScript(params, key)
		if err != nil {
			return Genesis{}, nil, err
		}
		for part := 0; part < outputs; part++ {
			g.Alloc = append(g.Alloc, Alloc{PkScript: script, Value: balance / btcutil.Amount(outputs)})
		}
		keys = append(keys, key)
	}
	return g, keys, nil
}

func p2pkhScript(params *chaincfg.Params, key *btcec.PrivateKey) ([]byte, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
