package pos

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/inter"
)

const (
	testGenesisTime  = int64(1700000000)
	testBlockSpacing = int64(16)
	easyBits         = uint32(0x207fffff)
	// target of 1: no realistic kernel hits it
	impossibleBits = uint32(0x03000001)
)

func testKey(seed string) *btcec.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	key, _ := btcec.PrivKeyFromBytes(sum[:])
	return key
}

func p2pkhScript(key *btcec.PrivateKey) []byte {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		panic(err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		panic(err)
	}
	return script
}

func p2pkScript(key *btcec.PrivateKey) []byte {
	script, err := PayToPubKeyScript(key.PubKey().SerializeCompressed())
	if err != nil {
		panic(err)
	}
	return script
}

type testChain struct {
	mu        sync.Mutex
	blocks    []*inter.BlockIndex
	coins     map[wire.OutPoint]inter.Coin
	peers     int
	ibd       bool
	bits      uint32
	accepted  []*inter.Block
	rejectAll bool

	onTemplate func()
	onProcess  func()
}

func newTestChain(height idx.Block) *testChain {
	c := &testChain{coins: make(map[wire.OutPoint]inter.Coin), bits: easyBits, peers: 8}
	for h := idx.Block(0); h <= height; h++ {
		t := testGenesisTime + int64(h)*testBlockSpacing
		c.blocks = append(c.blocks, &inter.BlockIndex{
			Height:        h,
			Hash:          chainhash.HashH([]byte(fmt.Sprintf("block-%d", h))),
			Time:          t,
			PastTimeLimit: t,
			Bits:          easyBits,
			StakeModifier: chainhash.HashH([]byte(fmt.Sprintf("modifier-%d", h))),
		})
	}
	return c
}

func (c *testChain) Tip() *inter.BlockIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

func (c *testChain) BlockByHeight(height idx.Block) *inter.BlockIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(height) >= len(c.blocks) {
		return nil
	}
	return c.blocks[height]
}

func (c *testChain) Coin(op wire.OutPoint) (inter.Coin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coin, ok := c.coins[op]
	return coin, ok
}

func (c *testChain) PeerCount() int          { return c.peers }
func (c *testChain) IsInitialDownload() bool { return c.ibd }

func (c *testChain) addCoin(op wire.OutPoint, out wire.TxOut, height idx.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coins[op] = inter.Coin{Out: out, Height: height}
}

func (c *testChain) NewBlockTemplate() (*BlockTemplate, error) {
	if c.onTemplate != nil {
		c.onTemplate()
	}
	tip := c.Tip()
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x02, 0x01}, nil))
	coinbase.AddTxOut(wire.NewTxOut(0, nil))
	block := &inter.Block{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: tip.Hash,
			Bits:      c.bits,
			Timestamp: time.Unix(tip.Time+1, 0),
		},
		Transactions: []*wire.MsgTx{coinbase},
	}
	return &BlockTemplate{Block: block}, nil
}

func (c *testChain) ProcessNewBlock(block *inter.Block) error {
	if c.onProcess != nil {
		c.onProcess()
	}
	if c.rejectAll {
		return errors.New("rejected")
	}
	tip := c.Tip()
	kernel, _ := block.Kernel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range block.CoinStake().TxIn {
		coin := c.coins[in.PreviousOutPoint]
		coin.Spent = true
		c.coins[in.PreviousOutPoint] = coin
	}
	c.blocks = append(c.blocks, &inter.BlockIndex{
		Height:        tip.Height + 1,
		Hash:          block.Hash(),
		Time:          block.Time(),
		PastTimeLimit: block.Time(),
		Bits:          block.Header.Bits,
		StakeModifier: ComputeStakeModifier(tip, KernelHash(tip.StakeModifier, 0, kernel, uint32(block.Time()))),
		ProofOfStake:  true,
	})
	c.accepted = append(c.accepted, block)
	return nil
}

type testWallet struct {
	mu        sync.Mutex
	keys      map[string]*btcec.PrivateKey
	outputs   []WalletOutput
	locked    bool
	reserve   btcutil.Amount
	abandoned int
}

func newTestWallet() *testWallet {
	return &testWallet{keys: make(map[string]*btcec.PrivateKey)}
}

// fund credits the wallet with an output of value created at height and
// registers it with the chain.
func (w *testWallet) fund(c *testChain, key *btcec.PrivateKey, script []byte, value btcutil.Amount, height idx.Block) wire.OutPoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[string(script)] = key
	op := wire.OutPoint{
		Hash:  chainhash.HashH([]byte(fmt.Sprintf("funding-%d-%d", len(w.outputs), value))),
		Index: uint32(len(w.outputs)),
	}
	out := wire.TxOut{Value: int64(value), PkScript: script}
	tip := c.Tip()
	from := c.BlockByHeight(height)
	w.outputs = append(w.outputs, WalletOutput{
		OutPoint:  op,
		Out:       out,
		Depth:     int64(tip.Height-height) + 1,
		TxTime:    from.Time,
		Spendable: true,
	})
	c.addCoin(op, out, height)
	return op
}

func (w *testWallet) Name() string { return "test" }

func (w *testWallet) IsLocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked
}

func (w *testWallet) AvailableBalance() btcutil.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum btcutil.Amount
	for _, o := range w.outputs {
		if !o.Spent {
			sum += btcutil.Amount(o.Out.Value)
		}
	}
	return sum
}

func (w *testWallet) ReserveBalance() btcutil.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reserve
}

func (w *testWallet) Outputs() []WalletOutput {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WalletOutput(nil), w.outputs...)
}

func (w *testWallet) PrivKeyForScript(pkScript []byte) (*btcec.PrivateKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key, ok := w.keys[string(pkScript)]
	if !ok {
		return nil, ErrNoStakeKey
	}
	return key, nil
}

func (w *testWallet) SignInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut) error {
	key, err := w.PrivKeyForScript(prevOut.PkScript)
	if err != nil {
		return err
	}
	return SignStakeInput(tx, idx, prevOut, key)
}

func (w *testWallet) AbandonOrphanedCoinstakes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.abandoned++
	return 0
}

// testRules are fakenet rules with a tip far past the last work block.
func testRules() datos.Rules {
	return datos.FakeNetRules()
}

func noShuffle(int, func(i, j int)) {}

func newTestStakeWallet(rules datos.Rules, guard *ReplayGuard, src BalanceSource) *StakeWallet {
	w := NewStakeWallet(rules, guard, DefaultWalletConfig())
	w.shuffle = noShuffle
	if src != nil {
		w.Attach(src)
	}
	return w
}
