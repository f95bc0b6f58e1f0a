package integration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
	"github.com/barrystyle/datos/pos"
)

var (
	ErrOrphanBlock   = errors.New("block does not extend the tip")
	ErrTimeTooOld    = errors.New("block time below past limit")
	ErrBadMerkleRoot = errors.New("merkle root mismatch")
	ErrExpectedStake = errors.New("proof-of-stake block expected")
	ErrUnexpectedPoS = errors.New("proof-of-stake block before activation")
	ErrMissingInput  = errors.New("transaction input missing or spent")
	ErrNoCoinbase    = errors.New("first transaction is not a coinbase")
)

// Alloc is a genesis output.
type Alloc struct {
	PkScript []byte
	Value    btcutil.Amount
}

// BlockCheck vets a block before it connects on top of prev.
type BlockCheck func(block *inter.Block, prev *inter.BlockIndex) error

// BlockObserver is told about every connected block, outside chain locks.
type BlockObserver func(block *inter.Block, index *inter.BlockIndex)

// ProofProvider supplies the network proof a template at height carries.
type ProofProvider func(height idx.Block) (inter.NetworkProof, bool)

// MemChain is a single-branch in-memory chain: it validates and connects
// blocks, tracks coins, and builds templates. It backs fakenet nodes and
// tests.
type MemChain struct {
	rules     datos.Rules
	validator *pos.Validator

	procMu sync.Mutex

	mu     sync.RWMutex
	index  []*inter.BlockIndex
	blocks []*inter.Block
	coins  map[wire.OutPoint]inter.Coin
	peers  int

	checks    []BlockCheck
	observers []BlockObserver
	proofs    ProofProvider

	log *logrus.Entry
}

// NewMemChain creates a chain whose genesis block at genesisTime pays
// alloc. Genesis outputs are ordinary, immediately spendable coins.
func NewMemChain(rules datos.Rules, genesisTime int64, alloc []Alloc) *MemChain {
	c := &MemChain{
		rules: rules,
		coins: make(map[wire.OutPoint]inter.Coin),
		log:   logger.New("chain"),
	}

	genesis := &inter.Block{
		Header: wire.BlockHeader{
			Version:   4,
			Bits:      rules.Stake.PosLimitBits,
			Timestamp: time.Unix(genesisTime, 0),
		},
		Transactions: []*wire.MsgTx{coinbaseTx(0, nil, 0)},
	}
	if len(alloc) > 0 {
		premine := wire.NewMsgTx(wire.TxVersion)
		premine.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte("datos genesis"), nil))
		for _, a := range alloc {
			premine.AddTxOut(wire.NewTxOut(int64(a.Value), a.PkScript))
		}
		genesis.Transactions = append(genesis.Transactions, premine)
	}
	genesis.Header.MerkleRoot = genesis.MerkleRoot()

	c.connect(genesis, &inter.BlockIndex{
		Height:        0,
		Hash:          genesis.Hash(),
		Time:          genesisTime,
		PastTimeLimit: genesisTime,
		Bits:          genesis.Header.Bits,
	})
	c.validator = pos.NewValidator(rules, c, pos.NewReplayGuard())
	return c
}

// AddCheck registers a block check run before connect.
func (c *MemChain) AddCheck(fn BlockCheck) {
	c.mu.Lock()
	c.checks = append(c.checks, fn)
	c.mu.Unlock()
}

// Subscribe registers an observer for connected blocks.
func (c *MemChain) Subscribe(fn BlockObserver) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Replay feeds every connected block to fn in height order.
func (c *MemChain) Replay(fn BlockObserver) {
	c.mu.RLock()
	blocks := append([]*inter.Block(nil), c.blocks...)
	index := append([]*inter.BlockIndex(nil), c.index...)
	c.mu.RUnlock()
	for i, block := range blocks {
		fn(block, index[i])
	}
}

// SetProofProvider makes templates carry network proofs from fn.
func (c *MemChain) SetProofProvider(fn ProofProvider) {
	c.mu.Lock()
	c.proofs = fn
	c.mu.Unlock()
}

func (c *MemChain) SetPeerCount(n int) {
	c.mu.Lock()
	c.peers = n
	c.mu.Unlock()
}

func (c *MemChain) Tip() *inter.BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index[len(c.index)-1]
}

func (c *MemChain) TipHeight() idx.Block {
	return c.Tip().Height
}

func (c *MemChain) BlockByHeight(height idx.Block) *inter.BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(height) >= len(c.index) {
		return nil
	}
	return c.index[height]
}

// Block returns the full block at height.
func (c *MemChain) Block(height idx.Block) (*inter.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(height) >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[height], true
}

func (c *MemChain) Coin(op wire.OutPoint) (inter.Coin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coin, ok := c.coins[op]
	return coin, ok
}

// NetworkProofAt returns the proof carried by the block at height.
func (c *MemChain) NetworkProofAt(height idx.Block) (inter.NetworkProof, bool) {
	block, ok := c.Block(height)
	if !ok || block.NetProof.Incomplete() {
		return inter.NetworkProof{}, false
	}
	return block.NetProof.Copy(), true
}

func (c *MemChain) PeerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peers
}

// IsInitialDownload is always false: the chain only grows locally.
func (c *MemChain) IsInitialDownload() bool { return false }

func coinbaseTx(height idx.Block, payTo []byte, value btcutil.Amount) *wire.MsgTx {
	script, err := txscript.NewScriptBuilder().AddInt64(int64(height)).AddOp(txscript.OP_0).Script()
	if err != nil {
		panic(err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), script, nil))
	tx.AddTxOut(wire.NewTxOut(int64(value), payTo))
	return tx
}

// NewBlockTemplate returns an unsigned block on top of the tip with an
// empty coinbase and, when available, the network proof for its height.
func (c *MemChain) NewBlockTemplate() (*pos.BlockTemplate, error) {
	tip := c.Tip()
	height := tip.Height + 1

	block := &inter.Block{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: tip.Hash,
			Bits:      c.rules.Stake.PosLimitBits,
			Timestamp: time.Unix(tip.Time+1, 0),
		},
		Transactions: []*wire.MsgTx{coinbaseTx(height, nil, 0)},
	}

	c.mu.RLock()
	proofs := c.proofs
	c.mu.RUnlock()
	if proofs != nil && c.rules.IsProofRequired(height) {
		if np, ok := proofs(height); ok {
			block.NetProof = np
		}
	}
	return &pos.BlockTemplate{Block: block}, nil
}

// MintWorkBlock connects a proof-of-work era block at time t whose
// coinbase pays value to payTo.
func (c *MemChain) MintWorkBlock(payTo []byte, value btcutil.Amount, t int64) (*inter.Block, error) {
	tip := c.Tip()
	block := &inter.Block{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: tip.Hash,
			Bits:      tip.Bits,
			Timestamp: time.Unix(t, 0),
		},
		Transactions: []*wire.MsgTx{coinbaseTx(tip.Height+1, payTo, value)},
	}
	block.Header.MerkleRoot = block.MerkleRoot()
	return block, c.ProcessNewBlock(block)
}

// ProcessNewBlock validates block against the tip and connects it.
func (c *MemChain) ProcessNewBlock(block *inter.Block) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	prev := c.Tip()
	if block.Header.PrevBlock != prev.Hash {
		return ErrOrphanBlock
	}
	height := prev.Height + 1
	modifier, err := c.checkBlock(block, prev, height)
	if err != nil {
		return err
	}

	c.mu.RLock()
	checks := append([]BlockCheck(nil), c.checks...)
	c.mu.RUnlock()
	for _, check := range checks {
		if err := check(block, prev); err != nil {
			return err
		}
	}

	t := block.Time()
	index := &inter.BlockIndex{
		Height:        height,
		Hash:          block.Hash(),
		Time:          t,
		PastTimeLimit: t,
		Bits:          block.Header.Bits,
		StakeModifier: modifier,
		ProofOfStake:  block.IsProofOfStake(),
	}
	observers := c.connect(block, index)

	c.log.WithFields(logrus.Fields{
		"height": height,
		"hash":   index.Hash,
		"pos":    index.ProofOfStake,
	}).Debug("Connected block")
	for _, fn := range observers {
		fn(block, index)
	}
	return nil
}

// checkBlock runs the context checks and returns the new stake modifier.
func (c *MemChain) checkBlock(block *inter.Block, prev *inter.BlockIndex, height idx.Block) (chainhash.Hash, error) {
	if len(block.Transactions) == 0 || !isCoinbase(block.Transactions[0]) {
		return chainhash.Hash{}, ErrNoCoinbase
	}
	if block.Time() < prev.PastTimeLimit {
		return chainhash.Hash{}, fmt.Errorf("%w: %d < %d", ErrTimeTooOld, block.Time(), prev.PastTimeLimit)
	}
	if block.Header.MerkleRoot != block.MerkleRoot() {
		return chainhash.Hash{}, ErrBadMerkleRoot
	}
	if err := c.checkInputs(block); err != nil {
		return chainhash.Hash{}, err
	}

	if !c.rules.IsProofOfStakeHeight(height) {
		if block.IsProofOfStake() {
			return chainhash.Hash{}, ErrUnexpectedPoS
		}
		return pos.ComputeStakeModifier(prev, block.Hash()), nil
	}
	if !block.IsProofOfStake() {
		return chainhash.Hash{}, ErrExpectedStake
	}
	if !c.rules.CheckCoinStakeTimestamp(height, block.Time()) {
		return chainhash.Hash{}, pos.ErrCoinStakeTime
	}
	kernel, err := c.validator.CheckProofOfStake(prev, block.CoinStake(), block.Header.Bits, block.Time())
	if err != nil {
		return chainhash.Hash{}, err
	}
	if err := pos.VerifyBlockSignature(block); err != nil {
		return chainhash.Hash{}, err
	}
	return pos.ComputeStakeModifier(prev, kernel), nil
}

func (c *MemChain) checkInputs(block *inter.Block) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spent := make(map[wire.OutPoint]struct{})
	for _, tx := range block.Transactions[1:] {
		for _, in := range tx.TxIn {
			coin, ok := c.coins[in.PreviousOutPoint]
			if !ok || coin.Spent {
				return fmt.Errorf("%w: %v", ErrMissingInput, in.PreviousOutPoint)
			}
			if _, dup := spent[in.PreviousOutPoint]; dup {
				return fmt.Errorf("%w: %v", ErrMissingInput, in.PreviousOutPoint)
			}
			spent[in.PreviousOutPoint] = struct{}{}
		}
	}
	return nil
}

// connect applies block's coins and appends it, returning the observers
// to notify.
func (c *MemChain) connect(block *inter.Block, index *inter.BlockIndex) []BlockObserver {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, tx := range block.Transactions {
		if i > 0 && !isCoinbase(tx) {
			for _, in := range tx.TxIn {
				coin := c.coins[in.PreviousOutPoint]
				coin.Spent = true
				c.coins[in.PreviousOutPoint] = coin
			}
		}
		generated := i == 0 || inter.IsCoinStake(tx)
		txid := tx.TxHash()
		for n, out := range tx.TxOut {
			if out.Value == 0 && len(out.PkScript) == 0 {
				continue
			}
			c.coins[wire.OutPoint{Hash: txid, Index: uint32(n)}] = inter.Coin{
				Out:      *out,
				Height:   index.Height,
				CoinBase: generated,
			}
		}
	}
	c.index = append(c.index, index)
	c.blocks = append(c.blocks, block)
	return append([]BlockObserver(nil), c.observers...)
}

func isCoinbase(tx *wire.MsgTx) bool {
	return len(tx.TxIn) == 1 && tx.TxIn[0].PreviousOutPoint.Index == wire.MaxPrevOutIndex &&
		tx.TxIn[0].PreviousOutPoint.Hash == (chainhash.Hash{})
}
