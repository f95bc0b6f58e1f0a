package launcher

import (
	"time"
)

// Defaults bundles the baseline configuration values the launcher uses
// before the config file and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Network NetworkDefaults
	Staking StakingDefaults
	Storage StorageDefaults
	RPC     RPCDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings.
type NodeDefaults struct {
	DataDir string // Filesystem root for the journal. Changing it lets several nodes run side by side.
	Name    string // Human-readable identity used in logs.
}

// NetworkDefaults select the chain rules.
type NetworkDefaults struct {
	Name        string // main, test or fake.
	FakeStakers int    // Number of FakeKey stakers funded at fakenet genesis. Zero outside fakenet.
	FakeOutputs int    // Genesis outputs per fakenet staker; each can be a kernel once before coinstakes mature.
}

// StakingDefaults configure the minter and the stake wallet.
type StakingDefaults struct {
	Enabled          bool
	MinerSleep       time.Duration // Pause between kernel search rounds.
	ReserveBalance   float64       // Coins never offered as stake.
	MaxStakeCombine  int           // Small coins merged into one coinstake.
	CombineThreshold float64       // Coins below this value get merged.
	SplitThreshold   float64       // Coinstake credit above which the output is split.
}

// StorageDefaults size the proof cache, reputation table and journal.
type StorageDefaults struct {
	Preset string // lite, default, full or archive.
}

// RPCDefaults captures the HTTP server options.
type RPCDefaults struct {
	EnableHTTP bool
	HTTPAddr   string
	HTTPPort   int
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    // 0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace.
	Format    string // text or json.
	Color     bool
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.datos",
			Name:    "datos",
		},
		Network: NetworkDefaults{
			Name:        "main",
			FakeOutputs: 128,
		},
		Staking: StakingDefaults{
			Enabled:          false,
			MinerSleep:       500 * time.Millisecond,
			MaxStakeCombine:  3,
			CombineThreshold: 1000,
			SplitThreshold:   2000,
		},
		Storage: StorageDefaults{
			Preset: "default",
		},
		RPC: RPCDefaults{
			EnableHTTP: false,
			HTTPAddr:   "127.0.0.1",
			HTTPPort:   18545,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
