// Package storage tracks the storage network: signed network proofs, the
// reputation of the nodes they report, and the rewards derived from it.
package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/inter/proofkey"
	"github.com/barrystyle/datos/logger"
)

var (
	ErrIncompleteProof   = errors.New("incomplete proof")
	ErrProofHashMismatch = errors.New("proof hash does not match contents")
	ErrProofSigEmpty     = errors.New("proofsig-empty")
	ErrProofSigRecover   = errors.New("internal-sighash-error")
	ErrProofKeyMismatch  = errors.New("internal-pubkey-mismatch")
)

// ProofSource exposes the proofs carried by the active chain.
type ProofSource interface {
	TipHeight() idx.Block
	NetworkProofAt(height idx.Block) (inter.NetworkProof, bool)
}

// Journal persists accepted proofs.
type Journal interface {
	PutProof(np *inter.NetworkProof) error
}

// ProofManager validates network proofs and keeps the most recent ones,
// ordered by height, in a bounded ring.
type ProofManager struct {
	rules    datos.Rules
	capacity int

	mu      sync.RWMutex
	proofs  []inter.NetworkProof
	journal Journal

	log *logrus.Entry
}

// NewProofManager returns an empty manager holding at most
// rules.Storage.MaxProofs proofs.
func NewProofManager(rules datos.Rules) *ProofManager {
	capacity := rules.Storage.MaxProofs
	if capacity <= 0 {
		capacity = 128
	}
	return &ProofManager{
		rules:    rules,
		capacity: capacity,
		proofs:   make([]inter.NetworkProof, 0, capacity),
		log:      logger.New("storage"),
	}
}

// SetJournal makes every accepted proof durable through j.
func (m *ProofManager) SetJournal(j Journal) {
	m.mu.Lock()
	m.journal = j
	m.mu.Unlock()
}

// Len is the number of cached proofs.
func (m *ProofManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.proofs)
}

// Initialise fills the cache from the chain, walking down from the tip,
// unless it already holds a full ring.
func (m *ProofManager) Initialise(src ProofSource) {
	if m.Len() >= m.capacity {
		m.log.Debug("Proof cache already populated")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loaded := 0
	for h := src.TipHeight(); h > m.rules.Stake.LastPoWBlock && len(m.proofs) < m.capacity; h-- {
		np, ok := src.NetworkProofAt(h)
		if !ok || np.Incomplete() {
			continue
		}
		if m.insert(np) {
			loaded++
		}
	}
	m.log.WithField("proofs", loaded).Info("Proof cache initialised")
}

// IsProofRequired reports whether a block at height must carry a proof.
func (m *ProofManager) IsProofRequired(height idx.Block) bool {
	return m.rules.IsProofRequired(height)
}

// AlreadyHave reports whether a proof with hash is cached.
func (m *ProofManager) AlreadyHave(hash chainhash.Hash) bool {
	_, ok := m.GetByHash(hash)
	return ok
}

// ExistsForHeight reports whether a proof for height is cached.
func (m *ProofManager) ExistsForHeight(height idx.Block) bool {
	_, ok := m.GetByHeight(height)
	return ok
}

func (m *ProofManager) GetByHash(hash chainhash.Hash) (inter.NetworkProof, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.proofs {
		if m.proofs[i].Hash == hash {
			return m.proofs[i].Copy(), true
		}
	}
	return inter.NetworkProof{}, false
}

func (m *ProofManager) GetByHeight(height idx.Block) (inter.NetworkProof, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.proofs {
		if m.proofs[i].Height == height {
			return m.proofs[i].Copy(), true
		}
	}
	return inter.NetworkProof{}, false
}

// Latest returns the highest cached proof.
func (m *ProofManager) Latest() (inter.NetworkProof, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.proofs) == 0 {
		return inter.NetworkProof{}, false
	}
	return m.proofs[len(m.proofs)-1].Copy(), true
}

// Recent returns the cached proofs within the configured window below tip,
// lowest height first.
func (m *ProofManager) Recent(tip idx.Block) []inter.NetworkProof {
	window := m.rules.Storage.RecentProofWindow
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]inter.NetworkProof, 0, len(m.proofs))
	for i := range m.proofs {
		if m.proofs[i].Height+window > tip {
			out = append(out, m.proofs[i].Copy())
		}
	}
	return out
}

// CheckSig verifies that sig over hash was made by the protocol proof key.
func (m *ProofManager) CheckSig(hash chainhash.Hash, sig []byte) error {
	if len(sig) == 0 {
		return ErrProofSigEmpty
	}
	signer, err := proofkey.Recover(hash[:], sig)
	if err != nil {
		return ErrProofSigRecover
	}
	if signer != m.rules.Storage.ProofKey {
		return ErrProofKeyMismatch
	}
	return nil
}

// Validate accepts or rejects a network proof. Accepted proofs signed by the
// protocol key are cached; proofs at heights that need none, and proofs
// already cached, are accepted without changes.
func (m *ProofManager) Validate(np *inter.NetworkProof) error {
	log := m.log.WithField("height", np.Height)
	if np.Incomplete() {
		log.Debug("Incomplete proof")
		return ErrIncompleteProof
	}
	if np.CalcHash() != np.Hash {
		log.WithField("hash", np.Hash).Debug("Proof hash mismatch")
		return ErrProofHashMismatch
	}
	if !m.IsProofRequired(np.Height) {
		log.Debug("Proof not required")
		return nil
	}
	if m.AlreadyHave(np.Hash) {
		return nil
	}
	if err := m.CheckSig(np.Hash, np.Signature); err != nil {
		log.WithError(err).Warn("Invalid network proof")
		return err
	}
	m.Add(np)
	log.WithField("hash", np.Hash).Info("Network proof accepted")
	return nil
}

// Add caches np without validation and journals it.
func (m *ProofManager) Add(np *inter.NetworkProof) {
	m.mu.Lock()
	m.insert(np.Copy())
	j := m.journal
	m.mu.Unlock()

	if j != nil {
		if err := j.PutProof(np); err != nil {
			m.log.WithError(err).WithField("height", np.Height).Error("Failed to journal proof")
		}
	}
}

// insert places np by height, replacing a proof at the same height, and
// evicts the lowest heights past capacity. It reports whether np is held.
func (m *ProofManager) insert(np inter.NetworkProof) bool {
	i := sort.Search(len(m.proofs), func(i int) bool { return m.proofs[i].Height >= np.Height })
	if i < len(m.proofs) && m.proofs[i].Height == np.Height {
		if m.proofs[i].Hash != np.Hash {
			m.log.WithFields(logrus.Fields{
				"height": np.Height,
				"old":    m.proofs[i].Hash,
				"new":    np.Hash,
			}).Warn("Replacing network proof")
		}
		m.proofs[i] = np
		return true
	}
	if len(m.proofs) >= m.capacity && i == 0 {
		return false
	}
	m.proofs = append(m.proofs, inter.NetworkProof{})
	copy(m.proofs[i+1:], m.proofs[i:])
	m.proofs[i] = np
	if over := len(m.proofs) - m.capacity; over > 0 {
		m.proofs = append(m.proofs[:0], m.proofs[over:]...)
	}
	return true
}
