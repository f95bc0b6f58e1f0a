package pos

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/barrystyle/datos/datos"
)

func candidates(values ...btcutil.Amount) []StakeCandidate {
	out := make([]StakeCandidate, len(values))
	for i, v := range values {
		out[i] = StakeCandidate{OutPoint: kernelOutPoint(i), Out: wire.TxOut{Value: int64(v)}}
	}
	return out
}

func TestSelectGreedy(t *testing.T) {
	require := require.New(t)

	{
		// a single covering output ends the walk
		picked, total := selectGreedy(candidates(5*datos.COIN, 20*datos.COIN, 1*datos.COIN), 10*datos.COIN)
		require.Len(picked, 2)
		require.Equal(25*datos.COIN, total)
	}
	{
		picked, total := selectGreedy(candidates(3*datos.COIN, 3*datos.COIN, 3*datos.COIN, 3*datos.COIN), 10*datos.COIN)
		require.Len(picked, 4)
		require.Equal(12*datos.COIN, total)
	}
	{
		// stop once the target is met
		picked, _ := selectGreedy(candidates(6*datos.COIN, 6*datos.COIN, 6*datos.COIN), 10*datos.COIN)
		require.Len(picked, 2)
	}
	{
		picked, total := selectGreedy(nil, datos.COIN)
		require.Empty(picked)
		require.Zero(total)
	}
}

func TestAvailableCoinsFilters(t *testing.T) {
	require := require.New(t)
	rules := testRules()
	chain := newTestChain(2000)
	guard := NewReplayGuard()
	src := newTestWallet()
	key := testKey("filters")
	script := p2pkhScript(key)

	good := src.fund(chain, key, script, 100*datos.COIN, 100)
	shallow := src.fund(chain, key, script, 100*datos.COIN, 1990)
	collateral := src.fund(chain, key, script, rules.Stake.Collateral, 100)
	used := src.fund(chain, key, script, 50*datos.COIN, 100)
	guard.RecordIfNew(used, chainhash.Hash{1})
	p2pk := src.fund(chain, key, p2pkScript(key), 70*datos.COIN, 100)
	bare := src.fund(chain, key, []byte{0x51}, 10*datos.COIN, 100)
	spent := src.fund(chain, key, script, 40*datos.COIN, 100)
	src.outputs[6].Spent = true
	locked := src.fund(chain, key, script, 30*datos.COIN, 100)
	src.outputs[7].Locked = true
	watch := src.fund(chain, key, script, 20*datos.COIN, 100)
	src.outputs[8].Spendable = false
	young := src.fund(chain, key, script, 10*datos.COIN, 100)
	src.outputs[9].TxTime = chain.Tip().Time + 30

	w := newTestStakeWallet(rules, guard, src)
	coins, err := w.AvailableCoins(chain.Tip().Time+64, chain.Tip().Height)
	require.NoError(err)

	var got []wire.OutPoint
	for _, c := range coins {
		got = append(got, c.OutPoint)
	}
	require.ElementsMatch([]wire.OutPoint{good, p2pk}, got)
	for _, op := range []wire.OutPoint{shallow, collateral, used, bare, spent, locked, watch, young} {
		require.NotContains(got, op)
	}
	require.Equal(int64(2000-100+1), w.GreatestTxDepth())
}

func TestAvailableCoinsValueBounds(t *testing.T) {
	require := require.New(t)
	rules := testRules()
	rules.Stake.MinValue = 10 * datos.COIN
	rules.Stake.MaxValue = 100 * datos.COIN
	chain := newTestChain(2000)
	src := newTestWallet()
	key := testKey("bounds")
	script := p2pkhScript(key)

	low := src.fund(chain, key, script, 9*datos.COIN, 100)
	edgeLow := src.fund(chain, key, script, 10*datos.COIN, 100)
	edgeHigh := src.fund(chain, key, script, 100*datos.COIN, 100)
	high := src.fund(chain, key, script, 101*datos.COIN, 100)

	w := newTestStakeWallet(rules, NewReplayGuard(), src)
	coins, err := w.AvailableCoins(chain.Tip().Time+64, chain.Tip().Height)
	require.NoError(err)

	var got []wire.OutPoint
	for _, c := range coins {
		got = append(got, c.OutPoint)
	}
	require.ElementsMatch([]wire.OutPoint{edgeLow, edgeHigh}, got)
	require.NotContains(got, low)
	require.NotContains(got, high)
}

func TestStakeWalletDetached(t *testing.T) {
	require := require.New(t)
	w := NewStakeWallet(testRules(), NewReplayGuard(), DefaultWalletConfig())

	require.False(w.Attached())
	require.Empty(w.Name())
	_, err := w.AvailableCoins(0, 0)
	require.ErrorIs(err, ErrWalletDetached)
	_, err = w.StakeWeight(0, 0)
	require.ErrorIs(err, ErrWalletDetached)

	src := newTestWallet()
	w.Attach(src)
	require.True(w.Attached())
	require.Equal("test", w.Name())

	w.Detach()
	require.False(w.Attached())
}

func TestStakeWeight(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(2000)
	src := newTestWallet()
	key := testKey("weight")
	script := p2pkhScript(key)

	src.fund(chain, key, script, 3*datos.COIN, 100)
	// depth 99 meets the stake depth but not coinbase maturity
	src.fund(chain, key, script, 4*datos.COIN, 1902)

	w := newTestStakeWallet(testRules(), NewReplayGuard(), src)
	weight, err := w.StakeWeight(chain.Tip().Time+64, chain.Tip().Height)
	require.NoError(err)
	require.Equal(3*datos.COIN, weight)

	src.reserve = 7 * datos.COIN
	weight, err = w.StakeWeight(chain.Tip().Time+64, chain.Tip().Height)
	require.NoError(err)
	require.Zero(weight)
}
