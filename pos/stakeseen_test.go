package pos

import (
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/barrystyle/datos/inter"
)

func kernelOutPoint(i int) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.HashH([]byte(fmt.Sprintf("kernel-%d", i))), Index: uint32(i % 3)}
}

func stakeBlock(kernel wire.OutPoint, nonce uint32) *inter.Block {
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), nil, nil))
	coinbase.AddTxOut(wire.NewTxOut(0, nil))

	cs := wire.NewMsgTx(wire.TxVersion)
	cs.AddTxIn(wire.NewTxIn(&kernel, nil, nil))
	cs.AddTxOut(wire.NewTxOut(0, nil))
	cs.AddTxOut(wire.NewTxOut(1, []byte{0x51}))

	return &inter.Block{
		Header:       wire.BlockHeader{Nonce: nonce},
		Transactions: []*wire.MsgTx{coinbase, cs},
	}
}

func TestReplayGuardRecord(t *testing.T) {
	require := require.New(t)
	g := NewReplayGuard()

	k := kernelOutPoint(1)
	h1 := chainhash.HashH([]byte("b1"))
	h2 := chainhash.HashH([]byte("b2"))

	require.True(g.LookupUnused(k))
	require.True(g.RecordIfNew(k, h1))
	require.False(g.LookupUnused(k))

	require.False(g.RecordIfNew(k, h2))
	first, ok := g.FirstSeen(k)
	require.True(ok)
	require.Equal(h2, first)
	require.Equal(1, g.Len())
}

func TestReplayGuardCheckStakeUnique(t *testing.T) {
	require := require.New(t)
	g := NewReplayGuard()

	k := kernelOutPoint(2)
	a := stakeBlock(k, 1)
	b := stakeBlock(k, 2)

	// dry run leaves the guard untouched
	require.True(g.CheckStakeUnique(a, false))
	require.True(g.LookupUnused(k))

	require.True(g.CheckStakeUnique(a, true))
	require.False(g.LookupUnused(k))

	// same block revalidates, competing block is refused
	require.True(g.CheckStakeUnique(a, true))
	require.True(g.IsRecordedForThisBlock(a))
	require.False(g.CheckStakeUnique(b, true))
	require.False(g.IsRecordedForThisBlock(b))

	first, _ := g.FirstSeen(k)
	require.Equal(a.Hash(), first)

	work := &inter.Block{Transactions: a.Transactions[:1]}
	require.True(g.CheckStakeUnique(work, true))
}

func TestReplayGuardEviction(t *testing.T) {
	require := require.New(t)
	g := NewReplayGuard()

	for i := 0; i < MaxStakeSeen+1; i++ {
		require.True(g.RecordIfNew(kernelOutPoint(i), chainhash.HashH([]byte{byte(i)})))
	}
	require.Equal(MaxStakeSeen, g.Len())
	require.True(g.LookupUnused(kernelOutPoint(0)), "oldest kernel evicted")
	require.False(g.LookupUnused(kernelOutPoint(1)))
	require.False(g.LookupUnused(kernelOutPoint(MaxStakeSeen)))
}

func TestReplayGuardLookupDoesNotRefresh(t *testing.T) {
	require := require.New(t)
	g := newReplayGuard(2)

	g.RecordIfNew(kernelOutPoint(0), chainhash.Hash{1})
	g.RecordIfNew(kernelOutPoint(1), chainhash.Hash{2})
	require.False(g.LookupUnused(kernelOutPoint(0)))
	g.FirstSeen(kernelOutPoint(0))
	g.RecordIfNew(kernelOutPoint(2), chainhash.Hash{3})

	require.True(g.LookupUnused(kernelOutPoint(0)))
	require.False(g.LookupUnused(kernelOutPoint(1)))
}

func TestReplayGuardUpdateKeepsOrder(t *testing.T) {
	require := require.New(t)
	g := newReplayGuard(2)

	g.RecordIfNew(kernelOutPoint(0), chainhash.Hash{1})
	g.RecordIfNew(kernelOutPoint(1), chainhash.Hash{2})
	require.False(g.RecordIfNew(kernelOutPoint(0), chainhash.Hash{9}))
	first, ok := g.FirstSeen(kernelOutPoint(0))
	require.True(ok)
	require.Equal(chainhash.Hash{9}, first)

	g.RecordIfNew(kernelOutPoint(2), chainhash.Hash{3})
	require.True(g.LookupUnused(kernelOutPoint(0)), "replaced hash does not refresh")
}

func TestReplayGuardConcurrent(t *testing.T) {
	g := NewReplayGuard()
	k := kernelOutPoint(9)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if g.CheckStakeUnique(stakeBlock(k, uint32(i)), true) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
