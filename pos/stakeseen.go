package pos

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
)

// MaxStakeSeen bounds the number of remembered kernel outpoints.
const MaxStakeSeen = 1000

// ReplayGuard remembers which block first used each kernel outpoint so that
// a kernel cannot mint twice. Entries leave in insertion order once the
// guard is full; lookups never refresh an entry.
type ReplayGuard struct {
	mu   sync.Mutex
	seen *lru.Cache[wire.OutPoint, *chainhash.Hash]
	log  *logrus.Entry
}

// NewReplayGuard returns an empty guard holding up to MaxStakeSeen kernels.
func NewReplayGuard() *ReplayGuard {
	return newReplayGuard(MaxStakeSeen)
}

func newReplayGuard(size int) *ReplayGuard {
	seen, err := lru.New[wire.OutPoint, *chainhash.Hash](size)
	if err != nil {
		panic(err)
	}
	return &ReplayGuard{seen: seen, log: logger.New("stakeseen")}
}

// RecordIfNew maps kernel to blockHash and reports whether the kernel was
// unknown. A known kernel has its block hash replaced in place and keeps
// its eviction position.
func (g *ReplayGuard) RecordIfNew(kernel wire.OutPoint, blockHash chainhash.Hash) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record(kernel, blockHash)
}

func (g *ReplayGuard) record(kernel wire.OutPoint, blockHash chainhash.Hash) bool {
	if first, known := g.seen.Peek(kernel); known {
		*first = blockHash
		return false
	}
	g.seen.Add(kernel, &blockHash)
	return true
}

// LookupUnused reports whether kernel has not been seen.
func (g *ReplayGuard) LookupUnused(kernel wire.OutPoint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.seen.Contains(kernel)
}

// FirstSeen returns the block that first used kernel.
func (g *ReplayGuard) FirstSeen(kernel wire.OutPoint) (chainhash.Hash, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if first, ok := g.seen.Peek(kernel); ok {
		return *first, true
	}
	return chainhash.Hash{}, false
}

// IsRecordedForThisBlock reports whether block's kernel is unseen or was
// seen with this very block, without recording it.
func (g *ReplayGuard) IsRecordedForThisBlock(block *inter.Block) bool {
	return g.CheckStakeUnique(block, false)
}

// CheckStakeUnique accepts block if its kernel is unseen, or was seen with
// the same block hash. With update set, an unseen kernel is recorded.
// Blocks without a coinstake always pass.
func (g *ReplayGuard) CheckStakeUnique(block *inter.Block, update bool) bool {
	kernel, ok := block.Kernel()
	if !ok {
		return true
	}
	hash := block.Hash()

	g.mu.Lock()
	defer g.mu.Unlock()

	if first, seen := g.seen.Peek(kernel); seen {
		if *first == hash {
			return true
		}
		g.log.WithFields(logrus.Fields{
			"block":      hash,
			"first_seen": *first,
			"kernel":     kernel,
		}).Debug("Stake kernel reused")
		return false
	}
	if update {
		g.record(kernel, hash)
	}
	return true
}

// Len is the number of remembered kernels.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}
