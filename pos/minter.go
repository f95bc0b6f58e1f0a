package pos

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
)

// State is the phase a staking thread is in.
type State int32

const (
	StateIdle State = iota
	StateSyncWait
	StateStakeWait
	StateKernelSearch
	StateBlockBuild
	StateSubmit
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncWait:
		return "sync_wait"
	case StateStakeWait:
		return "stake_wait"
	case StateKernelSearch:
		return "kernel_search"
	case StateBlockBuild:
		return "block_build"
	case StateSubmit:
		return "submit"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Status is the externally reported staking status of a wallet.
type Status int32

const (
	NotStaking Status = iota
	NotStakingLocked
	NotStakingBalance
	NotStakingDepth
	IsStaking
)

func (s Status) String() string {
	switch s {
	case NotStakingLocked:
		return "not_staking_locked"
	case NotStakingBalance:
		return "not_staking_balance"
	case NotStakingDepth:
		return "not_staking_depth"
	case IsStaking:
		return "staking"
	}
	return "not_staking"
}

// MinterConfig holds the minter's timing knobs.
type MinterConfig struct {
	// MinerSleep is the pause between kernel search rounds.
	MinerSleep  time.Duration
	SyncBackoff time.Duration
	// MaxTipWait caps the wait when the local clock is behind the tip.
	MaxTipWait time.Duration
	// MaxSearchWait caps the wait for the next timestamp slot.
	MaxSearchWait time.Duration
	LockedWait    time.Duration
	BalanceWait   time.Duration
	Now           func() time.Time
}

// DefaultMinterConfig returns production timings.
func DefaultMinterConfig() MinterConfig {
	return MinterConfig{
		MinerSleep:    500 * time.Millisecond,
		SyncBackoff:   15 * time.Second,
		MaxTipWait:    30 * time.Second,
		MaxSearchWait: 10 * time.Second,
		LockedWait:    30 * time.Second,
		BalanceWait:   60 * time.Second,
		Now:           time.Now,
	}
}

// BlockObserver is told about every block the minter got accepted.
type BlockObserver func(block *inter.Block)

// Minter runs one staking thread per wallet. Threads share the chain view
// and the replay guard; each owns its wallet and wake signal.
type Minter struct {
	rules     datos.Rules
	cfg       MinterConfig
	chain     Chain
	processor BlockProcessor
	validator *Validator
	guard     *ReplayGuard
	observer  BlockObserver

	mu      sync.Mutex
	threads []*stakeThread
	stopped atomic.Bool
	wg      sync.WaitGroup

	log *logrus.Entry
}

type stakeThread struct {
	id     int
	wallet *StakeWallet
	wake   chan struct{}

	tryToSync bool
	state     atomic.Int32
	status    atomic.Int32
	lastStake atomic.Int64
}

// NewMinter returns a minter with no threads.
func NewMinter(rules datos.Rules, cfg MinterConfig, chain Chain, processor BlockProcessor, guard *ReplayGuard) *Minter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Minter{
		rules:     rules,
		cfg:       cfg,
		chain:     chain,
		processor: processor,
		validator: NewValidator(rules, chain, guard),
		guard:     guard,
		log:       logger.New("minter"),
	}
}

// SetObserver registers a callback for accepted minted blocks. Call before
// Start.
func (m *Minter) SetObserver(fn BlockObserver) {
	m.observer = fn
}

// Validator returns the validator the minter checks its blocks with.
func (m *Minter) Validator() *Validator {
	return m.validator
}

// AddWallet registers a wallet and returns its thread id.
func (m *Minter) AddWallet(w *StakeWallet) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &stakeThread{id: len(m.threads), wallet: w, wake: make(chan struct{}, 1)}
	m.threads = append(m.threads, t)
	return t.id
}

// Start launches a goroutine per registered wallet.
func (m *Minter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped.Store(false)
	for _, t := range m.threads {
		m.wg.Add(1)
		go m.loop(t)
	}
	m.log.WithField("threads", len(m.threads)).Info("Staking started")
}

// Stop signals every thread, wakes them, and waits for them to exit.
func (m *Minter) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	m.WakeAll()
	m.wg.Wait()
	m.log.Info("Staking stopped")
}

// Stopped reports whether Stop was called.
func (m *Minter) Stopped() bool {
	return m.stopped.Load()
}

// WakeAll interrupts every thread's current wait and resets its search
// time, used on new tips and wallet changes.
func (m *Minter) WakeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		t.wallet.setLastSearchTime(0)
		t.signal()
	}
}

func (t *stakeThread) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// ThreadInfo describes a staking thread.
type ThreadInfo struct {
	ID         int
	Wallet     string
	State      State
	Status     Status
	LastSearch int64
	LastStake  int64
}

// Threads reports the state of every staking thread.
func (m *Minter) Threads() []ThreadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ThreadInfo, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, ThreadInfo{
			ID:         t.id,
			Wallet:     t.wallet.Name(),
			State:      State(t.state.Load()),
			Status:     Status(t.status.Load()),
			LastSearch: t.wallet.LastSearchTime(),
			LastStake:  t.lastStake.Load(),
		})
	}
	return out
}

func (m *Minter) loop(t *stakeThread) {
	defer m.wg.Done()
	log := m.log.WithField("thread", t.id)
	log.Debug("Staking thread started")

	for !m.stopped.Load() {
		wait := m.step(t, log)
		if m.stopped.Load() {
			break
		}
		t.setState(StateStakeWait)
		m.waitFor(t, wait)
	}
	t.setState(StateStopped)
	log.Debug("Staking thread exited")
}

// waitFor blocks for d or until the thread is woken.
func (m *Minter) waitFor(t *stakeThread, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.wake:
	}
}

func (t *stakeThread) setState(s State) {
	t.state.Store(int32(s))
}

func (t *stakeThread) setStatus(s Status) {
	t.status.Store(int32(s))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// step runs one iteration of the staking state machine and returns how long
// to wait before the next one.
func (m *Minter) step(t *stakeThread, log *logrus.Entry) time.Duration {
	tip := m.chain.Tip()
	if tip == nil {
		t.setState(StateSyncWait)
		return m.cfg.SyncBackoff
	}

	syncing := m.chain.PeerCount() < m.rules.Net.MinStakePeers || m.chain.IsInitialDownload()
	if t.tryToSync {
		t.tryToSync = false
		if syncing {
			t.setState(StateSyncWait)
			return m.cfg.SyncBackoff
		}
	}
	if syncing {
		t.tryToSync = true
		t.setState(StateSyncWait)
		return m.cfg.SyncBackoff
	}
	if tip.Height < m.rules.Stake.LastPoWBlock {
		t.setState(StateSyncWait)
		return m.cfg.SyncBackoff
	}

	now := m.cfg.Now().Unix()
	mask := int64(m.rules.StakeTimestampMask(tip.Height + 1))
	searchTime := now &^ mask
	if searchTime <= tip.Time {
		if now < tip.Time {
			return minDuration(time.Second+time.Duration(tip.Time-now)*time.Second, m.cfg.MaxTipWait)
		}
		next := searchTime + mask
		return minDuration(m.cfg.MinerSleep+time.Duration(next-now)*time.Second, m.cfg.MaxSearchWait)
	}

	wallet := t.wallet
	if searchTime <= wallet.LastSearchTime() {
		return m.cfg.MinerSleep
	}

	src, err := wallet.source()
	if err != nil {
		t.setStatus(NotStaking)
		return m.cfg.BalanceWait
	}
	if src.IsLocked() {
		t.setStatus(NotStakingLocked)
		return m.cfg.LockedWait
	}
	if src.AvailableBalance() <= src.ReserveBalance() {
		t.setStatus(NotStakingBalance)
		wallet.setLastSearchTime(searchTime + int64(m.cfg.BalanceWait/time.Second))
		return m.cfg.BalanceWait
	}

	t.setState(StateKernelSearch)
	tmpl, err := m.processor.NewBlockTemplate()
	if err != nil {
		log.WithError(err).Warn("Block template unavailable")
		return m.cfg.MinerSleep
	}

	t.setStatus(IsStaking)
	block, err := wallet.SignBlock(m.validator, tmpl, tip, searchTime)
	if err == nil {
		t.setState(StateBlockBuild)
		t.setState(StateSubmit)
		m.submit(t, block, log)
		return m.cfg.MinerSleep
	}
	if errors.Is(err, ErrWalletDetached) {
		t.setStatus(NotStaking)
		return m.cfg.BalanceWait
	}

	if gap := wallet.requiredDepthGap(tip.Height); gap > 4 {
		t.setStatus(NotStakingDepth)
		sleep := gap / 4
		wallet.setLastSearchTime(searchTime + sleep)
		log.WithFields(logrus.Fields{
			"greatest_depth": wallet.GreatestTxDepth(),
			"sleep":          sleep,
		}).Debug("Wallet outputs too shallow to stake")
		return minDuration(m.cfg.BalanceWait, time.Duration(sleep)*time.Second)
	}
	return m.cfg.MinerSleep
}

func (m *Minter) submit(t *stakeThread, block *inter.Block, log *logrus.Entry) {
	hash := block.Hash()
	if _, err := m.validator.CheckStake(block); err != nil {
		log.WithError(err).WithField("block", hash).Warn("Minted block failed stake check")
		return
	}
	if err := m.processor.ProcessNewBlock(block); err != nil {
		log.WithError(err).WithField("block", hash).Warn("Minted block rejected")
		return
	}
	if kernel, ok := block.Kernel(); ok {
		m.guard.RecordIfNew(kernel, hash)
	}
	t.lastStake.Store(m.cfg.Now().Unix())
	log.WithFields(logrus.Fields{
		"block": hash,
		"time":  block.Time(),
	}).Info("Minted new block")
	if m.observer != nil {
		m.observer(block)
	}
}
