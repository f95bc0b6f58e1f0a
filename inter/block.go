// Package inter defines the chain data structures shared by the minting,
// validation, and storage proof code: blocks with their coinstake and
// network proof, block index entries, and coins.
package inter

import (
	"bytes"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockIndex is the per-block metadata the kernel and minter consult.
type BlockIndex struct {
	Height idx.Block
	Hash   chainhash.Hash
	// Time is the block timestamp in unix seconds.
	Time int64
	// PastTimeLimit is the earliest timestamp a child block may carry.
	PastTimeLimit int64
	Bits          uint32
	StakeModifier chainhash.Hash
	ProofOfStake  bool
}

// Block is a full block: header, transactions, the block signature over the
// header hash, and the network proof for its height.
type Block struct {
	Header       wire.BlockHeader
	Transactions []*wire.MsgTx
	Signature    []byte
	NetProof     NetworkProof
}

// Hash is the header hash.
func (b *Block) Hash() chainhash.Hash {
	return b.Header.BlockHash()
}

// Time returns the header timestamp in unix seconds.
func (b *Block) Time() int64 {
	return b.Header.Timestamp.Unix()
}

// IsProofOfStake reports whether the second transaction is a coinstake.
func (b *Block) IsProofOfStake() bool {
	return len(b.Transactions) > 1 && IsCoinStake(b.Transactions[1])
}

// CoinStake returns the coinstake transaction, or nil for work blocks.
func (b *Block) CoinStake() *wire.MsgTx {
	if !b.IsProofOfStake() {
		return nil
	}
	return b.Transactions[1]
}

// Kernel returns the outpoint the coinstake spends first.
func (b *Block) Kernel() (wire.OutPoint, bool) {
	cs := b.CoinStake()
	if cs == nil {
		return wire.OutPoint{}, false
	}
	return cs.TxIn[0].PreviousOutPoint, true
}

// MerkleRoot computes the transaction merkle root.
func (b *Block) MerkleRoot() chainhash.Hash {
	txs := make([]*btcutil.Tx, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = btcutil.NewTx(tx)
	}
	return blockchain.CalcMerkleRoot(txs, false)
}

// SerializeSize approximates the block's wire size.
func (b *Block) SerializeSize() int {
	size := blockHeaderLen + wire.VarIntSerializeSize(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		size += tx.SerializeSize()
	}
	return size + wire.VarIntSerializeSize(uint64(len(b.Signature))) + len(b.Signature)
}

const blockHeaderLen = 80

// IsCoinStake reports whether tx has the coinstake shape: at least one
// non-null input and an empty first output followed by at least one more.
func IsCoinStake(tx *wire.MsgTx) bool {
	if len(tx.TxIn) == 0 || len(tx.TxOut) < 2 {
		return false
	}
	if isNullOutPoint(tx.TxIn[0].PreviousOutPoint) {
		return false
	}
	return tx.TxOut[0].Value == 0 && len(tx.TxOut[0].PkScript) == 0
}

func isNullOutPoint(op wire.OutPoint) bool {
	return op.Index == wire.MaxPrevOutIndex && op.Hash == (chainhash.Hash{})
}

// Coin is an unspent output as seen by the chain.
type Coin struct {
	Out      wire.TxOut
	Height   idx.Block
	CoinBase bool
	Spent    bool
}

// SameScript reports whether two outputs pay to identical scripts.
func SameScript(a, b []byte) bool {
	return bytes.Equal(a, b)
}
