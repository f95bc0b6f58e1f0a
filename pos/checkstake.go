package pos

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
)

var (
	ErrKernelMissing         = errors.New("kernel coin missing or spent")
	ErrKernelBlockFrom       = errors.New("kernel block not on active chain")
	ErrKernelDepth           = errors.New("kernel below required depth")
	ErrKernelTarget          = errors.New("kernel hash above target")
	ErrNotCoinStake          = errors.New("transaction is not a coinstake")
	ErrCoinStakeScript       = errors.New("coinstake input script failed")
	ErrCoinStakeTime         = errors.New("coinstake timestamp violates mask")
	ErrStakeNotOnTip         = errors.New("generated block is stale")
	ErrStakeReplayed         = errors.New("stake kernel already used")
	ErrCoinStakeInputMissing = errors.New("coinstake input coin missing or spent")
)

// Validator checks coinstakes and minted blocks against the active chain.
type Validator struct {
	rules datos.Rules
	chain Chain
	guard *ReplayGuard
}

func NewValidator(rules datos.Rules, chain Chain, guard *ReplayGuard) *Validator {
	return &Validator{rules: rules, chain: chain, guard: guard}
}

// kernelCoin resolves the kernel output and the time of the block that
// created it, enforcing the depth rule relative to prev.
func (v *Validator) kernelCoin(prev *inter.BlockIndex, prevout wire.OutPoint) (inter.Coin, uint32, error) {
	coin, ok := v.chain.Coin(prevout)
	if !ok || coin.Spent {
		return inter.Coin{}, 0, ErrKernelMissing
	}
	from := v.chain.BlockByHeight(coin.Height)
	if from == nil {
		return inter.Coin{}, 0, ErrKernelBlockFrom
	}
	depth := int64(prev.Height) - int64(coin.Height)
	if v.rules.RequiredStakeDepth(prev.Height) > depth {
		return inter.Coin{}, 0, fmt.Errorf("%w: depth %d", ErrKernelDepth, depth+1)
	}
	return coin, uint32(from.Time), nil
}

// CheckKernel tests whether prevout would be a valid kernel for a block at
// time t on top of prev. Used while searching; no signatures are involved.
func (v *Validator) CheckKernel(prev *inter.BlockIndex, bits uint32, t int64, prevout wire.OutPoint) (chainhash.Hash, bool, error) {
	coin, blockFromTime, err := v.kernelCoin(prev, prevout)
	if err != nil {
		return chainhash.Hash{}, false, err
	}
	return CheckStakeKernelHash(prev, bits, blockFromTime, btcutil.Amount(coin.Out.Value), prevout, uint32(t))
}

// CheckProofOfStake verifies a coinstake: its inputs' scripts and the
// kernel hash of its first input. It returns the kernel hash.
func (v *Validator) CheckProofOfStake(prev *inter.BlockIndex, tx *wire.MsgTx, bits uint32, t int64) (chainhash.Hash, error) {
	if !inter.IsCoinStake(tx) {
		return chainhash.Hash{}, ErrNotCoinStake
	}
	kernel := tx.TxIn[0].PreviousOutPoint
	coin, blockFromTime, err := v.kernelCoin(prev, kernel)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if err := v.verifyInputs(tx, kernel, coin); err != nil {
		return chainhash.Hash{}, err
	}
	hash, ok, err := CheckStakeKernelHash(prev, bits, blockFromTime, btcutil.Amount(coin.Out.Value), kernel, uint32(t))
	if err != nil {
		return hash, err
	}
	if !ok {
		return hash, ErrKernelTarget
	}
	return hash, nil
}

func (v *Validator) verifyInputs(tx *wire.MsgTx, kernel wire.OutPoint, kernelCoin inter.Coin) error {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	prevOuts[kernel] = &kernelCoin.Out
	for _, in := range tx.TxIn[1:] {
		coin, ok := v.chain.Coin(in.PreviousOutPoint)
		if !ok || coin.Spent {
			return ErrCoinStakeInputMissing
		}
		out := coin.Out
		prevOuts[in.PreviousOutPoint] = &out
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := prevOuts[in.PreviousOutPoint]
		vm, err := txscript.NewEngine(prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher)
		if err != nil {
			return fmt.Errorf("%w: input %d: %v", ErrCoinStakeScript, i, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("%w: input %d: %v", ErrCoinStakeScript, i, err)
		}
	}
	return nil
}

// CheckStake validates a locally minted block before submission: it must
// extend the current tip, use an unseen kernel, carry a valid coinstake
// and block signature, and respect the timestamp mask.
func (v *Validator) CheckStake(block *inter.Block) (chainhash.Hash, error) {
	if !block.IsProofOfStake() {
		return chainhash.Hash{}, ErrNotProofOfStake
	}
	tip := v.chain.Tip()
	if tip == nil || block.Header.PrevBlock != tip.Hash {
		return chainhash.Hash{}, ErrStakeNotOnTip
	}
	if !v.guard.IsRecordedForThisBlock(block) {
		return chainhash.Hash{}, ErrStakeReplayed
	}
	if !v.rules.CheckCoinStakeTimestamp(tip.Height+1, block.Time()) {
		return chainhash.Hash{}, ErrCoinStakeTime
	}
	hash, err := v.CheckProofOfStake(tip, block.CoinStake(), block.Header.Bits, block.Time())
	if err != nil {
		return hash, err
	}
	if err := VerifyBlockSignature(block); err != nil {
		return hash, err
	}
	return hash, nil
}
