package pos

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/inter"
)

// Chain is the read-only view of the active chain the minter and the
// kernel checks consult.
type Chain interface {
	// Tip returns the active chain tip.
	Tip() *inter.BlockIndex
	// BlockByHeight returns the active block at height, or nil.
	BlockByHeight(height idx.Block) *inter.BlockIndex
	// Coin returns the output at op if the chain knows it.
	Coin(op wire.OutPoint) (inter.Coin, bool)
	PeerCount() int
	IsInitialDownload() bool
}

// BlockTemplate is an unsigned candidate block on top of the current tip.
// Header bits are already set for the next height.
type BlockTemplate struct {
	Block *inter.Block
	Fees  btcutil.Amount
}

// BlockProcessor builds block templates and accepts finished blocks.
type BlockProcessor interface {
	NewBlockTemplate() (*BlockTemplate, error)
	ProcessNewBlock(block *inter.Block) error
}
