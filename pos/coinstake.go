package pos

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
)

// maxCoinStakeInputs bounds how many inputs combining may reach.
const maxCoinStakeInputs = 100

var (
	ErrBelowReserve     = errors.New("balance does not exceed reserve")
	ErrNoStakeCoins     = errors.New("no coins eligible to stake")
	ErrNoKernel         = errors.New("no kernel found")
	ErrCreditOverBudget = errors.New("coinstake credit exceeds stakeable balance")
	ErrCoinStakeSize    = errors.New("coinstake exceeds size limit")
	ErrMalformedBlock   = errors.New("block template has no coinbase")
	ErrSearchTooEarly   = errors.New("search time not past the time limit")
)

// CoinStake is a signed coinstake transaction and the key that must sign
// the block carrying it.
type CoinStake struct {
	Tx         *wire.MsgTx
	Key        *btcec.PrivateKey
	Kernel     StakeCandidate
	KernelHash chainhash.Hash
}

// CreateCoinStake searches the wallet's eligible coins for a kernel valid at
// time t on top of prev and builds the coinstake around it: an empty marker
// output, the kernel plus any small same-script coins, the stake reward, and
// an optional split into two outputs.
func (w *StakeWallet) CreateCoinStake(v *Validator, prev *inter.BlockIndex, bits uint32, t int64, fees btcutil.Amount) (*CoinStake, error) {
	src, err := w.source()
	if err != nil {
		return nil, err
	}
	balance := src.AvailableBalance()
	reserve := src.ReserveBalance()
	if balance <= reserve {
		return nil, ErrBelowReserve
	}
	budget := balance - reserve

	coins, _, err := w.SelectCoins(t, prev.Height, budget)
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, ErrNoStakeCoins
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, nil))

	var (
		credit    btcutil.Amount
		stake     *CoinStake
		prevOuts  []*wire.TxOut
		kernelIdx = -1
	)
	for i, c := range coins {
		hash, ok, err := v.CheckKernel(prev, bits, t, c.OutPoint)
		if err != nil || !ok {
			continue
		}
		// a kernel the wallet cannot sign for ends the search
		key, outScript, err := w.stakeOutputScript(src, c.Out.PkScript)
		if err != nil {
			break
		}
		op := c.OutPoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
		tx.AddTxOut(wire.NewTxOut(0, outScript))
		out := c.Out
		prevOuts = append(prevOuts, &out)
		credit += btcutil.Amount(c.Out.Value)
		stake = &CoinStake{Tx: tx, Key: key, Kernel: c, KernelHash: hash}
		kernelIdx = i
		break
	}
	if stake == nil {
		return nil, ErrNoKernel
	}
	if credit == 0 || credit > budget {
		return nil, ErrCreditOverBudget
	}

	combined := 0
	for i, c := range coins {
		if i == kernelIdx {
			continue
		}
		if combined >= w.cfg.MaxStakeCombine || len(tx.TxIn) >= maxCoinStakeInputs {
			break
		}
		if credit >= w.cfg.CombineThreshold {
			break
		}
		if !bytes.Equal(c.Out.PkScript, stake.Kernel.Out.PkScript) {
			continue
		}
		value := btcutil.Amount(c.Out.Value)
		if credit+value > budget {
			break
		}
		if value >= w.cfg.CombineThreshold {
			continue
		}
		op := c.OutPoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
		out := c.Out
		prevOuts = append(prevOuts, &out)
		credit += value
		combined++
	}

	credit += w.rules.Stake.Reward + fees
	if credit >= w.cfg.SplitThreshold {
		half := (credit / 2 / datos.CENT) * datos.CENT
		tx.TxOut[1].Value = int64(half)
		tx.AddTxOut(wire.NewTxOut(int64(credit-half), tx.TxOut[1].PkScript))
	} else {
		tx.TxOut[1].Value = int64(credit)
	}

	for i, prevOut := range prevOuts {
		if err := src.SignInput(tx, i, prevOut); err != nil {
			return nil, fmt.Errorf("sign coinstake input %d: %w", i, err)
		}
	}

	if tx.SerializeSize() >= datos.MaxBlockSize/5 {
		return nil, ErrCoinStakeSize
	}
	return stake, nil
}

// stakeOutputScript returns the signing key for a kernel script and the
// script the coinstake pays back to. Key-hash kernels pay to the bare key so
// the block signature can be checked from the coinstake alone.
func (w *StakeWallet) stakeOutputScript(src BalanceSource, pkScript []byte) (*btcec.PrivateKey, []byte, error) {
	key, err := src.PrivKeyForScript(pkScript)
	if err != nil {
		return nil, nil, err
	}
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyHashTy:
		script, err := PayToPubKeyScript(key.PubKey().SerializeCompressed())
		return key, script, err
	case txscript.PubKeyTy:
		compressed, _ := PayToPubKeyScript(key.PubKey().SerializeCompressed())
		uncompressed, _ := PayToPubKeyScript(key.PubKey().SerializeUncompressed())
		if !bytes.Equal(pkScript, compressed) && !bytes.Equal(pkScript, uncompressed) {
			return nil, nil, ErrNoStakeKey
		}
		return key, pkScript, nil
	}
	return nil, nil, ErrNoStakeKey
}

// SignBlock turns a template on top of prev into a minted block at
// searchTime: it builds the coinstake, inserts it after the coinbase, fixes
// the merkle root and timestamp, and signs the header. The search time is
// recorded whether or not a kernel is found.
func (w *StakeWallet) SignBlock(v *Validator, tmpl *BlockTemplate, prev *inter.BlockIndex, searchTime int64) (*inter.Block, error) {
	src, err := w.source()
	if err != nil {
		return nil, err
	}
	block := tmpl.Block
	if block == nil || len(block.Transactions) < 1 {
		return nil, ErrMalformedBlock
	}
	defer w.setLastSearchTime(searchTime)

	src.AbandonOrphanedCoinstakes()

	stake, err := w.CreateCoinStake(v, prev, block.Header.Bits, searchTime, tmpl.Fees)
	if err != nil {
		return nil, err
	}
	if searchTime < prev.PastTimeLimit+1 {
		return nil, ErrSearchTooEarly
	}

	block.Header.Timestamp = time.Unix(searchTime, 0)
	txs := make([]*wire.MsgTx, 0, len(block.Transactions)+1)
	txs = append(txs, block.Transactions[0], stake.Tx)
	txs = append(txs, block.Transactions[1:]...)
	block.Transactions = txs
	block.Header.MerkleRoot = block.MerkleRoot()

	SignBlockWithKey(block, stake.Key)
	return block, nil
}

// requiredDepthGap reports how far the deepest wallet output is from the
// depth staking needs at tipHeight.
func (w *StakeWallet) requiredDepthGap(tipHeight idx.Block) int64 {
	return w.rules.RequiredStakeDepth(tipHeight) - w.GreatestTxDepth()
}
