// Package wallet is an in-memory key and output store that a stake wallet
// can mint from. It tracks outputs paying to imported keys, follows
// connected blocks, and abandons coinstakes whose block left the chain.
package wallet

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
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
	ErrNotMine      = errors.New("output does not pay to a wallet key")
	ErrWrongNetwork = errors.New("key belongs to another network")
	ErrUnknownCoin  = errors.New("unknown wallet output")
)

// ChainView is the part of the chain the wallet needs to age its outputs
// and detect orphaned coinstakes.
type ChainView interface {
	Tip() *inter.BlockIndex
	BlockByHeight(height idx.Block) *inter.BlockIndex
}

type coin struct {
	out    wire.TxOut
	height idx.Block
	txTime int64
	// mature-gated: coinbase and coinstake outputs
	generated bool
	spent     bool
	locked    bool
}

type coinstake struct {
	block   chainhash.Hash
	height  idx.Block
	inputs  []wire.OutPoint
	outputs []wire.OutPoint
}

// Wallet implements pos.BalanceSource.
type Wallet struct {
	name   string
	params *chaincfg.Params
	chain  ChainView

	mu         sync.RWMutex
	keys       map[string]*btcec.PrivateKey
	coins      map[wire.OutPoint]*coin
	coinstakes map[chainhash.Hash]*coinstake
	locked     bool
	reserve    btcutil.Amount

	notify func()
	log    *logrus.Entry
}

// New returns an empty unlocked wallet.
func New(name string, params *chaincfg.Params, chain ChainView) *Wallet {
	return &Wallet{
		name:       name,
		params:     params,
		chain:      chain,
		keys:       make(map[string]*btcec.PrivateKey),
		coins:      make(map[wire.OutPoint]*coin),
		coinstakes: make(map[chainhash.Hash]*coinstake),
		log:        logger.New("wallet").WithField("wallet", name),
	}
}

// SetNotify registers fn to run after every balance change, outside the
// wallet lock.
func (w *Wallet) SetNotify(fn func()) {
	w.mu.Lock()
	w.notify = fn
	w.mu.Unlock()
}

func (w *Wallet) changed() {
	w.mu.RLock()
	fn := w.notify
	w.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (w *Wallet) Name() string { return w.name }

// ImportKey adds key and returns the pay-to-pubkey-hash script it owns.
// Outputs paying to the key directly are recognised too.
func (w *Wallet) ImportKey(key *btcec.PrivateKey) ([]byte, error) {
	pub := key.PubKey().SerializeCompressed()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), w.params)
	if err != nil {
		return nil, err
	}
	p2pkh, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	p2pk, err := pos.PayToPubKeyScript(pub)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.keys[string(p2pkh)] = key
	w.keys[string(p2pk)] = key
	w.mu.Unlock()
	return p2pkh, nil
}

// ImportWIF decodes a WIF private key for this wallet's network and
// imports it.
func (w *Wallet) ImportWIF(s string) ([]byte, error) {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return nil, err
	}
	if !wif.IsForNet(w.params) {
		return nil, ErrWrongNetwork
	}
	return w.ImportKey(wif.PrivKey)
}

// Credit records an output paying to a wallet key, confirmed at height.
func (w *Wallet) Credit(op wire.OutPoint, out wire.TxOut, height idx.Block, txTime int64) error {
	w.mu.Lock()
	if _, ok := w.keys[string(out.PkScript)]; !ok {
		w.mu.Unlock()
		return ErrNotMine
	}
	w.coins[op] = &coin{out: out, height: height, txTime: txTime}
	w.mu.Unlock()

	w.changed()
	return nil
}

// ConnectBlock applies a block at height: wallet inputs become spent,
// outputs to wallet keys are credited, and own coinstakes are remembered
// so they can be abandoned if the block is reorganised away.
func (w *Wallet) ConnectBlock(block *inter.Block, height idx.Block) {
	var (
		hash    = block.Hash()
		t       = block.Time()
		touched bool
	)
	w.mu.Lock()
	for i, tx := range block.Transactions {
		txid := tx.TxHash()
		generated := i == 0 || inter.IsCoinStake(tx)

		var spent []wire.OutPoint
		if i != 0 {
			for _, in := range tx.TxIn {
				if c, ok := w.coins[in.PreviousOutPoint]; ok && !c.spent {
					c.spent = true
					spent = append(spent, in.PreviousOutPoint)
				}
			}
		}
		var credited []wire.OutPoint
		for n, out := range tx.TxOut {
			if _, ok := w.keys[string(out.PkScript)]; !ok {
				continue
			}
			op := wire.OutPoint{Hash: txid, Index: uint32(n)}
			w.coins[op] = &coin{out: *out, height: height, txTime: t, generated: generated}
			credited = append(credited, op)
		}
		if inter.IsCoinStake(tx) && len(spent) > 0 {
			w.coinstakes[txid] = &coinstake{block: hash, height: height, inputs: spent, outputs: credited}
		}
		touched = touched || len(spent) > 0 || len(credited) > 0
	}
	w.mu.Unlock()

	if touched {
		w.changed()
	}
}

// AbandonOrphanedCoinstakes drops coinstakes whose block is no longer on
// the active chain: their outputs disappear and their inputs are spendable
// again.
func (w *Wallet) AbandonOrphanedCoinstakes() int {
	w.mu.RLock()
	candidates := make(map[chainhash.Hash]coinstake, len(w.coinstakes))
	for txid, cs := range w.coinstakes {
		candidates[txid] = *cs
	}
	w.mu.RUnlock()

	var orphaned []chainhash.Hash
	for txid, cs := range candidates {
		if b := w.chain.BlockByHeight(cs.height); b == nil || b.Hash != cs.block {
			orphaned = append(orphaned, txid)
		}
	}
	if len(orphaned) == 0 {
		return 0
	}

	w.mu.Lock()
	var n int
	for _, txid := range orphaned {
		cs, ok := w.coinstakes[txid]
		if !ok {
			continue
		}
		for _, op := range cs.outputs {
			delete(w.coins, op)
		}
		for _, op := range cs.inputs {
			if c, ok := w.coins[op]; ok {
				c.spent = false
			}
		}
		delete(w.coinstakes, txid)
		w.log.WithField("tx", txid).Info("Abandoned orphaned coinstake")
		n++
	}
	w.mu.Unlock()

	if n > 0 {
		w.changed()
	}
	return n
}

// Lock stops the wallet from staking until Unlock.
func (w *Wallet) Lock() {
	w.mu.Lock()
	w.locked = true
	w.mu.Unlock()
}

func (w *Wallet) Unlock() {
	w.mu.Lock()
	w.locked = false
	w.mu.Unlock()
	w.changed()
}

func (w *Wallet) IsLocked() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.locked
}

// SetReserveBalance sets the amount kept out of staking.
func (w *Wallet) SetReserveBalance(v btcutil.Amount) {
	w.mu.Lock()
	w.reserve = v
	w.mu.Unlock()
	w.changed()
}

func (w *Wallet) ReserveBalance() btcutil.Amount {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reserve
}

// LockOutput excludes op from staking and the available balance.
func (w *Wallet) LockOutput(op wire.OutPoint) error {
	return w.setOutputLock(op, true)
}

func (w *Wallet) UnlockOutput(op wire.OutPoint) error {
	return w.setOutputLock(op, false)
}

func (w *Wallet) setOutputLock(op wire.OutPoint, locked bool) error {
	w.mu.Lock()
	c, ok := w.coins[op]
	if ok {
		c.locked = locked
	}
	w.mu.Unlock()
	if !ok {
		return ErrUnknownCoin
	}
	w.changed()
	return nil
}

func (w *Wallet) tipHeight() idx.Block {
	if tip := w.chain.Tip(); tip != nil {
		return tip.Height
	}
	return 0
}

func depthAt(tip, height idx.Block) int64 {
	if height > tip {
		return 0
	}
	return int64(tip-height) + 1
}

func (c *coin) mature(depth int64) bool {
	return !c.generated || depth >= datos.CoinbaseMaturity
}

// AvailableBalance sums unspent, unlocked, mature outputs.
func (w *Wallet) AvailableBalance() btcutil.Amount {
	tip := w.tipHeight()
	w.mu.RLock()
	defer w.mu.RUnlock()
	var sum btcutil.Amount
	for _, c := range w.coins {
		if c.spent || c.locked || !c.mature(depthAt(tip, c.height)) {
			continue
		}
		sum += btcutil.Amount(c.out.Value)
	}
	return sum
}

// Outputs snapshots every known output, sorted by outpoint.
func (w *Wallet) Outputs() []pos.WalletOutput {
	tip := w.tipHeight()
	w.mu.RLock()
	outs := make([]pos.WalletOutput, 0, len(w.coins))
	for op, c := range w.coins {
		depth := depthAt(tip, c.height)
		outs = append(outs, pos.WalletOutput{
			OutPoint:  op,
			Out:       wire.TxOut{Value: c.out.Value, PkScript: c.out.PkScript},
			Depth:     depth,
			TxTime:    c.txTime,
			Spent:     c.spent,
			Locked:    c.locked,
			Spendable: c.mature(depth),
		})
	}
	w.mu.RUnlock()

	sort.Slice(outs, func(i, j int) bool {
		a, b := outs[i].OutPoint, outs[j].OutPoint
		if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
			return c < 0
		}
		return a.Index < b.Index
	})
	return outs
}

func (w *Wallet) PrivKeyForScript(pkScript []byte) (*btcec.PrivateKey, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	key, ok := w.keys[string(pkScript)]
	if !ok {
		return nil, pos.ErrNoStakeKey
	}
	return key, nil
}

func (w *Wallet) SignInput(tx *wire.MsgTx, n int, prevOut *wire.TxOut) error {
	key, err := w.PrivKeyForScript(prevOut.PkScript)
	if err != nil {
		return err
	}
	return pos.SignStakeInput(tx, n, prevOut, key)
}
