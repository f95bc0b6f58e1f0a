// Package datos defines the consensus parameters of the datos networks.
//
// Rules bundles everything that must agree between nodes: address prefixes,
// proof-of-stake kernel limits, the last proof-of-work height, and the
// parameters of the storage network proof and reward schedule. Helpers on
// Rules derive height-dependent values so callers never hard-code them.
package datos

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/barrystyle/datos/inter/proofkey"
)

// Network identification constants
const (
	MainNetworkID uint64 = 0xda70
	TestNetworkID uint64 = 0xda71
	FakeNetworkID uint64 = 0xda72
)

// Monetary units.
const (
	COIN     = btcutil.Amount(btcutil.SatoshiPerBitcoin)
	CENT     = btcutil.Amount(1000000)
	MaxMoney = 21000000000 * COIN
)

// CoinbaseMaturity is the number of confirmations before a coinbase or
// coinstake output becomes spendable.
const CoinbaseMaturity = 100

// MaxBlockSize bounds serialized blocks; a coinstake may use a fifth of it.
const MaxBlockSize = 2000000

// Rules describes the complete configuration for a datos network.
type Rules struct {
	Name      string
	NetworkID uint64

	Net     NetRules
	Stake   StakeRules
	Storage StorageRules
}

// NetRules holds the base58 version bytes and peering parameters.
type NetRules struct {
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	PrivateKeyID     byte
	DefaultPort      int

	// MinStakePeers is the number of connected peers required before the
	// minter searches for kernels.
	MinStakePeers int
}

// StakeRules are the proof-of-stake kernel parameters.
type StakeRules struct {
	LastPoWBlock  idx.Block
	MinAge        time.Duration
	MaxAge        time.Duration
	MinValue      btcutil.Amount
	MaxValue      btcutil.Amount
	TimestampMask uint32
	// PosLimitBits is the easiest target a coinstake block may claim.
	PosLimitBits uint32
	// Collateral is the exact amount that marks a masternode collateral
	// output; such outputs never stake.
	Collateral btcutil.Amount
	// Reward is the subsidy added to the coinstake on top of fees.
	Reward btcutil.Amount
}

// StorageRules configure network proofs and storage node rewards.
type StorageRules struct {
	// ProofKey is the only key allowed to sign network proofs.
	ProofKey  proofkey.KeyID
	MaxProofs int
	// BaseNodeReward is split by percentile among full-score nodes.
	BaseNodeReward btcutil.Amount
	// RecentProofWindow limits listing to proofs this close to the tip.
	RecentProofWindow idx.Block
}

// StakeTimestampMask returns the granularity mask for coinstake timestamps
// of a block at the given height.
func (r Rules) StakeTimestampMask(height idx.Block) uint32 {
	return r.Stake.TimestampMask
}

// CheckCoinStakeTimestamp reports whether t is aligned to the mask of height.
func (r Rules) CheckCoinStakeTimestamp(height idx.Block, t int64) bool {
	return uint32(t)&r.StakeTimestampMask(height) == 0
}

// RequiredStakeDepth is the confirmation depth a kernel must have when the
// previous block is at prevHeight.
func (r Rules) RequiredStakeDepth(prevHeight idx.Block) int64 {
	depth := int64(CoinbaseMaturity - 1)
	if half := int64(prevHeight) / 2; half < depth {
		depth = half
	}
	return depth
}

// IsProofOfStakeHeight reports whether a block at height must be minted.
func (r Rules) IsProofOfStakeHeight(height idx.Block) bool {
	return height > r.Stake.LastPoWBlock
}

// IsProofRequired reports whether blocks at height carry a network proof.
func (r Rules) IsProofRequired(height idx.Block) bool {
	return height > r.Stake.LastPoWBlock
}

// ChainParams returns btcd chain parameters carrying this network's address
// prefixes, for script and address helpers.
func (r Rules) ChainParams() *chaincfg.Params {
	params := chaincfg.MainNetParams
	params.Name = r.Name
	params.PubKeyHashAddrID = r.Net.PubKeyHashAddrID
	params.ScriptHashAddrID = r.Net.ScriptHashAddrID
	params.PrivateKeyID = r.Net.PrivateKeyID
	return &params
}

// MainNetRules returns the configuration rules for the datos mainnet.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		Net: NetRules{
			PubKeyHashAddrID: 0x37,
			ScriptHashAddrID: 0x10,
			PrivateKeyID:     0xcc,
			DefaultPort:      8880,
			MinStakePeers:    3,
		},
		Stake:   DefaultStakeRules(),
		Storage: DefaultStorageRules(mainProofKey),
	}
}

// TestNetRules returns the configuration rules for the datos testnet.
func TestNetRules() Rules {
	stake := DefaultStakeRules()
	stake.MaxAge = 90 * 24 * time.Hour
	stake.PosLimitBits = 0x1e00ffff
	return Rules{
		Name:      "test",
		NetworkID: TestNetworkID,
		Net: NetRules{
			PubKeyHashAddrID: 0x37,
			ScriptHashAddrID: 0x10,
			PrivateKeyID:     0xcc,
			DefaultPort:      8890,
			MinStakePeers:    3,
		},
		Stake:   stake,
		Storage: DefaultStorageRules(mainProofKey),
	}
}

// FakeNetRules returns rules for a local single-node network: minting starts
// almost immediately, any kernel of sufficient value hits, and proofs are
// signed with FakeProofKey.
func FakeNetRules() Rules {
	stake := DefaultStakeRules()
	stake.LastPoWBlock = 10
	stake.MinAge = time.Minute
	stake.TimestampMask = 0x3
	stake.PosLimitBits = 0x207fffff
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Net: NetRules{
			PubKeyHashAddrID: 0x8c,
			ScriptHashAddrID: 0x13,
			PrivateKeyID:     0xef,
			DefaultPort:      8910,
			MinStakePeers:    0,
		},
		Stake:   stake,
		Storage: DefaultStorageRules(proofkey.FromPubKey(FakeProofKey().PubKey())),
	}
}

// DefaultStakeRules returns the mainnet kernel parameters.
func DefaultStakeRules() StakeRules {
	return StakeRules{
		LastPoWBlock:  1000,
		MinAge:        10 * time.Minute,
		MaxAge:        30 * 24 * time.Hour,
		MinValue:      0,
		MaxValue:      MaxMoney,
		TimestampMask: 0xf,
		PosLimitBits:  0x1d00ffff,
		Collateral:    500000 * COIN,
		Reward:        10 * COIN,
	}
}

// DefaultStorageRules returns the storage proof parameters for a network
// whose proofs are signed by key.
func DefaultStorageRules(key proofkey.KeyID) StorageRules {
	return StorageRules{
		ProofKey:          key,
		MaxProofs:         128,
		BaseNodeReward:    8824 * COIN,
		RecentProofWindow: 50,
	}
}

// mainProofKey is the HASH160 of the datos proof signing key.
var mainProofKey = proofkey.KeyID{
	0x5b, 0x1c, 0x8e, 0x2d, 0x0f, 0x94, 0x7a, 0x33, 0xc6, 0x1e,
	0x48, 0xa9, 0x07, 0xd2, 0x6b, 0xe4, 0x71, 0x3f, 0x95, 0x20,
}

// FakeProofKey returns the deterministic private key that signs fakenet
// network proofs.
func FakeProofKey() *btcec.PrivateKey {
	seed := sha256.Sum256([]byte("datos fakenet proof key"))
	key, _ := btcec.PrivKeyFromBytes(seed[:])
	return key
}

// String returns a JSON representation of Rules for logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
