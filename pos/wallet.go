package pos

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/datos"
)

var (
	ErrWalletDetached = errors.New("stake wallet is detached")
	ErrNoStakeKey     = errors.New("no key for stake script")
)

// WalletOutput is a wallet-owned output as of the snapshot it came from.
type WalletOutput struct {
	OutPoint  wire.OutPoint
	Out       wire.TxOut
	Depth     int64
	TxTime    int64
	Spent     bool
	Locked    bool
	Spendable bool
}

// BalanceSource is the wallet capability a StakeWallet stakes from.
// Outputs returns a snapshot; callers may hold it while the wallet keeps
// changing.
type BalanceSource interface {
	Name() string
	IsLocked() bool
	AvailableBalance() btcutil.Amount
	ReserveBalance() btcutil.Amount
	Outputs() []WalletOutput
	PrivKeyForScript(pkScript []byte) (*btcec.PrivateKey, error)
	SignInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut) error
	// AbandonOrphanedCoinstakes drops coinstakes that left the main chain
	// and returns how many were dropped.
	AbandonOrphanedCoinstakes() int
}

// WalletConfig tunes coinstake construction.
type WalletConfig struct {
	MaxStakeCombine  int
	CombineThreshold btcutil.Amount
	SplitThreshold   btcutil.Amount
}

// DefaultWalletConfig combines up to three small outputs and splits
// credits above 2000 coins.
func DefaultWalletConfig() WalletConfig {
	return WalletConfig{
		MaxStakeCombine:  3,
		CombineThreshold: 1000 * datos.COIN,
		SplitThreshold:   2000 * datos.COIN,
	}
}

// StakeWallet binds a BalanceSource to the staking rules. It starts
// detached; every staking operation fails with ErrWalletDetached until a
// source is attached.
type StakeWallet struct {
	rules datos.Rules
	guard *ReplayGuard
	cfg   WalletConfig

	mu  sync.RWMutex
	src BalanceSource

	lastSearch    atomic.Int64
	greatestDepth atomic.Int64

	shuffle func(n int, swap func(i, j int))
}

// NewStakeWallet returns a detached stake wallet.
func NewStakeWallet(rules datos.Rules, guard *ReplayGuard, cfg WalletConfig) *StakeWallet {
	return &StakeWallet{
		rules:   rules,
		guard:   guard,
		cfg:     cfg,
		shuffle: defaultShuffle,
	}
}

// Attach makes src the wallet's balance source.
func (w *StakeWallet) Attach(src BalanceSource) {
	w.mu.Lock()
	w.src = src
	w.mu.Unlock()
	w.lastSearch.Store(0)
}

// Detach releases the balance source.
func (w *StakeWallet) Detach() {
	w.mu.Lock()
	w.src = nil
	w.mu.Unlock()
}

func (w *StakeWallet) Attached() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.src != nil
}

// Name is the attached source's name, or empty when detached.
func (w *StakeWallet) Name() string {
	src, err := w.source()
	if err != nil {
		return ""
	}
	return src.Name()
}

func (w *StakeWallet) source() (BalanceSource, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.src == nil {
		return nil, ErrWalletDetached
	}
	return w.src, nil
}

// LastSearchTime is the last coinstake search timestamp.
func (w *StakeWallet) LastSearchTime() int64 {
	return w.lastSearch.Load()
}

func (w *StakeWallet) setLastSearchTime(t int64) {
	w.lastSearch.Store(t)
}

// GreatestTxDepth is the deepest wallet output seen by the last coin scan.
func (w *StakeWallet) GreatestTxDepth() int64 {
	return w.greatestDepth.Load()
}
