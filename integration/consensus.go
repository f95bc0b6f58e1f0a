// Package integration assembles a datos node's consensus state: the stake
// replay guard, network proof cache, node reputation, the minter, and the
// journal they persist to, wired onto a chain.
package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
	"github.com/barrystyle/datos/pos"
	"github.com/barrystyle/datos/storage"
	"github.com/barrystyle/datos/store"
	"github.com/barrystyle/datos/wallet"
)

var (
	ErrNetProofHeight = errors.New("network proof height does not match block")
	ErrBadNetProof    = errors.New("invalid network proof")
	ErrNetProofEarly  = errors.New("network proof below first proof height")
)

// Config tunes the consensus state.
type Config struct {
	Rules              datos.Rules
	Minter             pos.MinterConfig
	Wallet             pos.WalletConfig
	ReputationCapacity int
	StakeSeenKeep      int
	ProofRetention     idx.Block
	InMemory           bool
}

// DefaultConfig returns the default preset applied to rules.
func DefaultConfig(rules datos.Rules) Config {
	cfg := Config{
		Rules:  rules,
		Minter: pos.DefaultMinterConfig(),
		Wallet: pos.DefaultWalletConfig(),
	}
	ApplyPreset(&cfg, DefaultPreset())
	return cfg
}

// Chain is what the consensus state needs from the block chain.
type Chain interface {
	pos.Chain
	pos.BlockProcessor
	storage.ProofSource
	AddCheck(fn BlockCheck)
	Subscribe(fn BlockObserver)
	Replay(fn BlockObserver)
	SetProofProvider(fn ProofProvider)
}

// ConsensusState owns the node's mutable consensus objects. Nothing here
// is process global: each node gets its own instance tied to its chain
// and journal.
type ConsensusState struct {
	cfg   Config
	rules datos.Rules
	chain Chain
	db    *store.Store

	Guard     *pos.ReplayGuard
	Proofs    *storage.ProofManager
	Scorer    *storage.NodeScorer
	Submitter *storage.ProofSubmitter
	Minter    *pos.Minter

	wallets []*pos.StakeWallet

	log *logrus.Entry
}

// NewConsensusState restores state from db and binds it to chain. db may be
// nil for a state that is never persisted.
func NewConsensusState(cfg Config, chain Chain, db *store.Store) (*ConsensusState, error) {
	s := &ConsensusState{
		cfg:    cfg,
		rules:  cfg.Rules,
		chain:  chain,
		db:     db,
		Guard:  pos.NewReplayGuard(),
		Proofs: storage.NewProofManager(cfg.Rules),
		Scorer: storage.NewNodeScorer(cfg.ReputationCapacity),
		log:    logger.New("consensus"),
	}
	if err := s.restore(); err != nil {
		return nil, err
	}

	s.Submitter = storage.NewProofSubmitter(s.rules, s.Proofs, chain, s)
	s.Minter = pos.NewMinter(s.rules, cfg.Minter, chain, chain, s.Guard)

	chain.AddCheck(s.checkBlock)
	chain.Subscribe(s.blockConnected)
	chain.SetProofProvider(s.Proofs.GetByHeight)
	return s, nil
}

func (s *ConsensusState) restore() error {
	tip := s.chain.TipHeight()

	if s.db != nil {
		records, err := s.db.StakeSeenRecords()
		if err != nil {
			return fmt.Errorf("stake journal: %w", err)
		}
		for _, rec := range records {
			s.Guard.RecordIfNew(rec.Kernel, rec.Block)
		}
	}

	s.Proofs.Initialise(s.chain)
	if s.db != nil {
		from := s.rules.Stake.LastPoWBlock + 1
		if window := idx.Block(s.rules.Storage.MaxProofs); tip > window && tip-window > from {
			from = tip - window
		}
		stored, err := s.db.Proofs(from)
		if err != nil {
			return fmt.Errorf("proof journal: %w", err)
		}
		for i := range stored {
			if s.Proofs.ExistsForHeight(stored[i].Height) {
				continue
			}
			if err := s.Proofs.Validate(&stored[i]); err != nil {
				s.log.WithError(err).WithField("height", stored[i].Height).Warn("Dropping journaled proof")
			}
		}
		s.Proofs.SetJournal(s.db)
	}

	var restored bool
	if s.db != nil {
		nodes, heights, err := s.db.Reputation()
		if err != nil {
			return fmt.Errorf("reputation journal: %w", err)
		}
		if len(nodes) > 0 || len(heights) > 0 {
			s.Scorer.Restore(nodes, heights)
			restored = true
		}
	}
	if !restored {
		s.Scorer.Init(s.rules, s.chain)
		return nil
	}
	// catch up on blocks connected after the last snapshot
	for h := s.Scorer.CatchUpFrom(s.rules.Stake.LastPoWBlock + 1); h <= tip; h++ {
		if s.Scorer.HaveSeen(h) {
			continue
		}
		if np, ok := s.chain.NetworkProofAt(h); ok {
			s.Scorer.AddProof(&np)
		}
	}
	return nil
}

// checkBlock rejects replayed kernels and invalid network proofs before a
// block connects.
func (s *ConsensusState) checkBlock(block *inter.Block, prev *inter.BlockIndex) error {
	if !s.Guard.CheckStakeUnique(block, false) {
		return pos.ErrStakeReplayed
	}
	height := prev.Height + 1
	np := &block.NetProof
	if np.Incomplete() {
		return nil
	}
	if !s.rules.IsProofRequired(height) {
		return fmt.Errorf("%w: block %d", ErrNetProofEarly, height)
	}
	if np.Height != height {
		return fmt.Errorf("%w: %d at %d", ErrNetProofHeight, np.Height, height)
	}
	if err := s.Proofs.Validate(np); err != nil {
		return fmt.Errorf("%w: %v", ErrBadNetProof, err)
	}
	return nil
}

func (s *ConsensusState) blockConnected(block *inter.Block, index *inter.BlockIndex) {
	log := s.log.WithField("height", index.Height)

	if kernel, ok := block.Kernel(); ok {
		s.Guard.CheckStakeUnique(block, true)
		if s.db != nil {
			rec := store.StakeSeen{Kernel: kernel, Block: index.Hash}
			if err := s.db.AppendStakeSeen(rec, s.cfg.StakeSeenKeep); err != nil {
				log.WithError(err).Error("Failed to journal stake kernel")
			}
		}
	}

	np := block.NetProof
	scored := !np.Incomplete() && np.Height == index.Height &&
		s.rules.IsProofRequired(index.Height) && s.Scorer.AddProof(&np)
	if scored && s.db != nil {
		nodes, heights := s.Scorer.Snapshot()
		if err := s.db.PutReputation(nodes, heights); err != nil {
			log.WithError(err).Error("Failed to journal reputation")
		}
	}

	if s.db != nil && s.cfg.ProofRetention > 0 && index.Height > s.cfg.ProofRetention {
		if n, err := s.db.PruneProofs(index.Height - s.cfg.ProofRetention); err != nil {
			log.WithError(err).Error("Failed to prune proofs")
		} else if n > 0 {
			log.WithField("pruned", n).Debug("Pruned journaled proofs")
		}
	}

	s.Minter.WakeAll()
}

// RelayProof announces a freshly submitted proof. There is no peer layer,
// so the proof only wakes the minter, whose next template can carry it.
func (s *ConsensusState) RelayProof(np *inter.NetworkProof) {
	s.log.WithFields(logrus.Fields{
		"height": np.Height,
		"hash":   np.Hash,
	}).Info("Relaying network proof")
	s.Minter.WakeAll()
}

// AttachWallet follows the chain with w and stakes from it.
func (s *ConsensusState) AttachWallet(w *wallet.Wallet) *pos.StakeWallet {
	s.chain.Replay(func(block *inter.Block, index *inter.BlockIndex) {
		w.ConnectBlock(block, index.Height)
	})
	s.chain.Subscribe(func(block *inter.Block, index *inter.BlockIndex) {
		w.ConnectBlock(block, index.Height)
	})
	w.SetNotify(s.Minter.WakeAll)
	return s.AddStakeSource(w)
}

// AddStakeSource registers src with the minter. Call before Start.
func (s *ConsensusState) AddStakeSource(src pos.BalanceSource) *pos.StakeWallet {
	sw := pos.NewStakeWallet(s.rules, s.Guard, s.cfg.Wallet)
	sw.Attach(src)
	s.Minter.AddWallet(sw)
	s.wallets = append(s.wallets, sw)
	return sw
}

func (s *ConsensusState) Start() {
	s.Minter.Start()
}

func (s *ConsensusState) Stop() {
	s.Minter.Stop()
}

// Rules returns the network rules the state was built for.
func (s *ConsensusState) Rules() datos.Rules {
	return s.rules
}

// StakingStatus summarises the minter for operators.
type StakingStatus struct {
	Enabled bool           `json:"enabled"`
	Staking bool           `json:"staking"`
	Height  idx.Block      `json:"height"`
	Weight  btcutil.Amount `json:"weight"`
	Threads []ThreadStatus `json:"threads"`
}

// ThreadStatus is a JSON friendly pos.ThreadInfo.
type ThreadStatus struct {
	ID         int    `json:"id"`
	Wallet     string `json:"wallet"`
	State      string `json:"state"`
	Status     string `json:"status"`
	LastSearch int64  `json:"lastSearch"`
	LastStake  int64  `json:"lastStake"`
}

// Status reports minter threads and the combined stake weight at now.
func (s *ConsensusState) Status(now time.Time) StakingStatus {
	tip := s.chain.TipHeight()
	st := StakingStatus{
		Enabled: len(s.wallets) > 0 && !s.Minter.Stopped(),
		Height:  tip,
	}
	for _, w := range s.wallets {
		if weight, err := w.StakeWeight(now.Unix(), tip); err == nil {
			st.Weight += weight
		}
	}
	for _, t := range s.Minter.Threads() {
		st.Threads = append(st.Threads, ThreadStatus{
			ID:         t.ID,
			Wallet:     t.Wallet,
			State:      t.State.String(),
			Status:     t.Status.String(),
			LastSearch: t.LastSearch,
			LastStake:  t.LastStake,
		})
		if t.Status == pos.IsStaking {
			st.Staking = true
		}
	}
	return st
}
