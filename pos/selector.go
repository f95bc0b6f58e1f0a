package pos

import (
	"math/rand"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/datos"
)

// StakeCandidate is a wallet output eligible to be a kernel.
type StakeCandidate struct {
	OutPoint wire.OutPoint
	Out      wire.TxOut
	Depth    int64
	TxTime   int64
}

func defaultShuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// IsStakeScript reports whether pkScript pays to a single key, the only
// output kinds that can sign a block.
func IsStakeScript(pkScript []byte) bool {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyHashTy, txscript.PubKeyTy:
		return true
	}
	return false
}

// AvailableCoins lists outputs that may stake at time now on top of a tip at
// tipHeight, in random order. It also records the greatest output depth
// for the minter's depth diagnostics.
func (w *StakeWallet) AvailableCoins(now int64, tipHeight idx.Block) ([]StakeCandidate, error) {
	src, err := w.source()
	if err != nil {
		return nil, err
	}
	outputs := src.Outputs()

	required := w.rules.RequiredStakeDepth(tipHeight)
	minAge := int64(w.rules.Stake.MinAge / time.Second)
	maxAge := int64(w.rules.Stake.MaxAge / time.Second)

	var (
		greatest int64
		coins    = make([]StakeCandidate, 0, len(outputs))
	)
	for _, out := range outputs {
		if out.Depth > greatest {
			greatest = out.Depth
		}
		if out.Depth < required {
			continue
		}
		if out.Spent || out.Locked {
			continue
		}
		if !w.guard.LookupUnused(out.OutPoint) {
			continue
		}
		if !out.Spendable || !IsStakeScript(out.Out.PkScript) {
			continue
		}
		value := btcutil.Amount(out.Out.Value)
		if value < w.rules.Stake.MinValue || value > w.rules.Stake.MaxValue {
			continue
		}
		if age := now - out.TxTime; age < minAge || age > maxAge {
			continue
		}
		if value == w.rules.Stake.Collateral {
			continue
		}
		coins = append(coins, StakeCandidate{
			OutPoint: out.OutPoint,
			Out:      out.Out,
			Depth:    out.Depth,
			TxTime:   out.TxTime,
		})
	}
	w.greatestDepth.Store(greatest)

	w.shuffle(len(coins), func(i, j int) { coins[i], coins[j] = coins[j], coins[i] })
	return coins, nil
}

// SelectCoins greedily picks candidates toward target: a single output
// covering target ends the walk, smaller ones are taken while below
// target+CENT.
func (w *StakeWallet) SelectCoins(now int64, tipHeight idx.Block, target btcutil.Amount) ([]StakeCandidate, btcutil.Amount, error) {
	coins, err := w.AvailableCoins(now, tipHeight)
	if err != nil {
		return nil, 0, err
	}
	picked, total := selectGreedy(coins, target)
	return picked, total, nil
}

func selectGreedy(coins []StakeCandidate, target btcutil.Amount) ([]StakeCandidate, btcutil.Amount) {
	var (
		picked []StakeCandidate
		total  btcutil.Amount
	)
	for _, c := range coins {
		if total >= target {
			break
		}
		n := btcutil.Amount(c.Out.Value)
		if n >= target {
			picked = append(picked, c)
			total += n
			break
		}
		if n < target+datos.CENT {
			picked = append(picked, c)
			total += n
		}
	}
	return picked, total
}

// StakeWeight is the value of selected coins that have reached coinbase
// maturity.
func (w *StakeWallet) StakeWeight(now int64, tipHeight idx.Block) (btcutil.Amount, error) {
	src, err := w.source()
	if err != nil {
		return 0, err
	}
	balance := src.AvailableBalance()
	reserve := src.ReserveBalance()
	if balance <= reserve {
		return 0, nil
	}
	coins, _, err := w.SelectCoins(now, tipHeight, balance-reserve)
	if err != nil {
		return 0, err
	}
	var weight btcutil.Amount
	for _, c := range coins {
		if c.Depth >= datos.CoinbaseMaturity {
			weight += btcutil.Amount(c.Out.Value)
		}
	}
	return weight, nil
}
