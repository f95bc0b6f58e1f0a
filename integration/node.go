package integration

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/logger"
	"github.com/barrystyle/datos/storage"
	"github.com/barrystyle/datos/store"
	"github.com/barrystyle/datos/wallet"
)

// Node is an assembled standalone node: chain, consensus state, journal
// and the wallets it stakes from.
type Node struct {
	Chain   *MemChain
	State   *ConsensusState
	Wallets []*wallet.Wallet

	db  *store.Store
	log *logrus.Entry
}

// NewNode builds the genesis block, fills the work era up to the last
// proof-of-work height, restores consensus state from the journal in
// dataDir, and attaches one wallet per staking key.
func NewNode(cfg Config, dataDir string, g Genesis, keys []*btcec.PrivateKey) (*Node, error) {
	var (
		db  *store.Store
		err error
	)
	if cfg.InMemory || dataDir == "" {
		db, err = store.OpenMemory()
	} else {
		db, err = store.Open(filepath.Join(dataDir, "journal"))
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	n := &Node{
		Chain: NewMemChain(cfg.Rules, g.Time, g.Alloc),
		db:    db,
		log:   logger.New("node"),
	}
	spacing := g.BlockSpacing
	if spacing <= 0 {
		spacing = 1
	}
	for h := idx.Block(1); h <= cfg.Rules.Stake.LastPoWBlock; h++ {
		if _, err := n.Chain.MintWorkBlock(nil, 0, g.Time+int64(h)*spacing); err != nil {
			db.Close()
			return nil, fmt.Errorf("work block %d: %w", h, err)
		}
	}

	n.State, err = NewConsensusState(cfg, n.Chain, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	params := cfg.Rules.ChainParams()
	for i, key := range keys {
		w := wallet.New(fmt.Sprintf("staker-%d", i+1), params, n.Chain)
		if _, err := w.ImportKey(key); err != nil {
			db.Close()
			return nil, err
		}
		n.State.AttachWallet(w)
		n.Wallets = append(n.Wallets, w)
	}

	n.log.WithFields(logrus.Fields{
		"network": cfg.Rules.Name,
		"height":  n.Chain.TipHeight(),
		"wallets": len(n.Wallets),
	}).Info("Node assembled")
	return n, nil
}

func (n *Node) Start() {
	n.State.Start()
}

// Stop halts minting and closes the journal.
func (n *Node) Stop() error {
	n.State.Stop()
	return n.db.Close()
}

func (n *Node) Rules() datos.Rules { return n.State.Rules() }

func (n *Node) TipHeight() idx.Block { return n.Chain.TipHeight() }

// Status reports the node's staking status at now.
func (n *Node) Status(now time.Time) StakingStatus { return n.State.Status(now) }

func (n *Node) Submitter() *storage.ProofSubmitter { return n.State.Submitter }

func (n *Node) Proofs() *storage.ProofManager { return n.State.Proofs }

func (n *Node) Scorer() *storage.NodeScorer { return n.State.Scorer }
