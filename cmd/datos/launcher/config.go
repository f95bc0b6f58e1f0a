// This file maps the CLI context and config file onto the Config tree.

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"gopkg.in/urfave/cli.v1"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/integration"
	"github.com/barrystyle/datos/logger"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	Network NetworkConfig
	Staking StakingConfig
	Storage StorageConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	RPC     RPCConfig
	Logging LoggingConfig
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type NetworkConfig struct {
	Name        string
	FakeStakers int
	FakeOutputs int
}

type StakingConfig struct {
	Enabled bool
	// Keys are WIF encoded private keys imported into one wallet each.
	Keys             []string
	ReserveBalance   float64
	MinerSleep       time.Duration
	MaxStakeCombine  int
	CombineThreshold float64
	SplitThreshold   float64
}

type StorageConfig struct {
	Preset             string
	ReputationCapacity int
	// ProofRetention overrides the preset when set.
	ProofRetention uint64
	Journal        string
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
			RPC: RPCConfig{
				HTTPEnabled: d.RPC.EnableHTTP,
				HTTPAddr:    d.RPC.HTTPAddr,
				HTTPPort:    d.RPC.HTTPPort,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Network: NetworkConfig{
			Name:        d.Network.Name,
			FakeStakers: d.Network.FakeStakers,
			FakeOutputs: d.Network.FakeOutputs,
		},
		Staking: StakingConfig{
			Enabled:          d.Staking.Enabled,
			ReserveBalance:   d.Staking.ReserveBalance,
			MinerSleep:       d.Staking.MinerSleep,
			MaxStakeCombine:  d.Staking.MaxStakeCombine,
			CombineThreshold: d.Staking.CombineThreshold,
			SplitThreshold:   d.Staking.SplitThreshold,
		},
		Storage: StorageConfig{
			Preset: d.Storage.Preset,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, then CLI flag
// overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if _, err := cfg.Rules(); err != nil {
		return Config{}, err
	}
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

// loadConfigFile decodes path over cfg; keys absent from the file keep
// their current values. The format follows the file extension.
func loadConfigFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}

	if ctx.GlobalBool("http") {
		cfg.Node.RPC.HTTPEnabled = true
	}
	if ctx.GlobalIsSet("http.addr") {
		cfg.Node.RPC.HTTPAddr = ctx.GlobalString("http.addr")
	}
	if ctx.GlobalIsSet("http.port") {
		cfg.Node.RPC.HTTPPort = ctx.GlobalInt("http.port")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("log.sentry") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("log.sentry")
	}

	if ctx.GlobalIsSet("network") {
		cfg.Network.Name = ctx.GlobalString("network")
	}
	if ctx.GlobalIsSet("fakenet") {
		cfg.Network.Name = "fake"
		cfg.Network.FakeStakers = ctx.GlobalInt("fakenet")
	}
	if ctx.GlobalIsSet("fakenet.outputs") {
		cfg.Network.FakeOutputs = ctx.GlobalInt("fakenet.outputs")
	}

	if ctx.GlobalBool("staking") {
		cfg.Staking.Enabled = true
	}
	if ctx.GlobalIsSet("staking.key") {
		cfg.Staking.Keys = append(cfg.Staking.Keys, ctx.GlobalStringSlice("staking.key")...)
	}
	if ctx.GlobalIsSet("staking.reserve") {
		cfg.Staking.ReserveBalance = ctx.GlobalFloat64("staking.reserve")
	}
	if ctx.GlobalIsSet("staking.sleep") {
		cfg.Staking.MinerSleep = ctx.GlobalDuration("staking.sleep")
	}
	if ctx.GlobalIsSet("staking.combine") {
		cfg.Staking.MaxStakeCombine = ctx.GlobalInt("staking.combine")
	}
	if ctx.GlobalIsSet("staking.combinethreshold") {
		cfg.Staking.CombineThreshold = ctx.GlobalFloat64("staking.combinethreshold")
	}
	if ctx.GlobalIsSet("staking.splitthreshold") {
		cfg.Staking.SplitThreshold = ctx.GlobalFloat64("staking.splitthreshold")
	}

	if ctx.GlobalIsSet("storage.preset") {
		cfg.Storage.Preset = ctx.GlobalString("storage.preset")
	}
	if ctx.GlobalIsSet("storage.reputation") {
		cfg.Storage.ReputationCapacity = ctx.GlobalInt("storage.reputation")
	}
	if ctx.GlobalIsSet("storage.retention") {
		cfg.Storage.ProofRetention = ctx.GlobalUint64("storage.retention")
	}
	if ctx.GlobalIsSet("storage.journal") {
		cfg.Storage.Journal = resolvePath(ctx.GlobalString("storage.journal"))
	}
}

// -----------------------------------------------------------------------------
// Conversions into the node's own config types
// -----------------------------------------------------------------------------

// Rules returns the consensus rules of the configured network.
func (cfg Config) Rules() (datos.Rules, error) {
	switch strings.ToLower(cfg.Network.Name) {
	case "main", "mainnet", "":
		return datos.MainNetRules(), nil
	case "test", "testnet":
		return datos.TestNetRules(), nil
	case "fake", "fakenet":
		return datos.FakeNetRules(), nil
	}
	return datos.Rules{}, fmt.Errorf("unknown network %q (valid: main, test, fake)", cfg.Network.Name)
}

// IsFakeNet reports whether the node runs a local fake network.
func (cfg Config) IsFakeNet() bool {
	rules, err := cfg.Rules()
	return err == nil && rules.NetworkID == datos.FakeNetworkID
}

func (cfg Config) loggerConfig() logger.Config {
	return logger.Config{
		Verbosity: cfg.Node.Logging.Verbosity,
		Format:    cfg.Node.Logging.Format,
		Color:     cfg.Node.Logging.Color,
		SentryDSN: cfg.Node.Logging.SentryDSN,
	}
}

// journalDir is where the node keeps its proof and reputation journal. The
// node appends "journal" itself, so this returns the parent.
func (cfg Config) journalDir() string {
	if cfg.Storage.Journal != "" {
		return cfg.Storage.Journal
	}
	return cfg.Node.DataDir
}

// nodeConfig builds the consensus state config: preset first, then the
// explicit staking and storage settings.
func (cfg Config) nodeConfig() (integration.Config, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return integration.Config{}, err
	}
	preset, err := integration.GetPresetByName(cfg.Storage.Preset)
	if err != nil {
		return integration.Config{}, err
	}
	out := integration.DefaultConfig(rules)
	integration.ApplyPreset(&out, preset)

	if cfg.Storage.ReputationCapacity > 0 {
		out.ReputationCapacity = cfg.Storage.ReputationCapacity
	}
	if cfg.Storage.ProofRetention > 0 {
		out.ProofRetention = idx.Block(cfg.Storage.ProofRetention)
	}
	if cfg.Staking.MinerSleep > 0 {
		out.Minter.MinerSleep = cfg.Staking.MinerSleep
	}
	if cfg.Staking.MaxStakeCombine > 0 {
		out.Wallet.MaxStakeCombine = cfg.Staking.MaxStakeCombine
	}
	if out.Wallet.CombineThreshold, err = coins(cfg.Staking.CombineThreshold, out.Wallet.CombineThreshold); err != nil {
		return integration.Config{}, fmt.Errorf("combine threshold: %w", err)
	}
	if out.Wallet.SplitThreshold, err = coins(cfg.Staking.SplitThreshold, out.Wallet.SplitThreshold); err != nil {
		return integration.Config{}, fmt.Errorf("split threshold: %w", err)
	}
	return out, nil
}

// reserveBalance converts the configured reserve into an amount.
func (cfg Config) reserveBalance() (btcutil.Amount, error) {
	return coins(cfg.Staking.ReserveBalance, 0)
}

// stakingKeys decodes the configured WIF keys, rejecting keys of another
// network.
func (cfg Config) stakingKeys(rules datos.Rules) ([]*btcec.PrivateKey, error) {
	params := rules.ChainParams()
	keys := make([]*btcec.PrivateKey, 0, len(cfg.Staking.Keys))
	for i, s := range cfg.Staking.Keys {
		wif, err := btcutil.DecodeWIF(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("staking key %d: %w", i, err)
		}
		if !wif.IsForNet(params) {
			return nil, fmt.Errorf("staking key %d is not for the %s network", i, rules.Name)
		}
		keys = append(keys, wif.PrivKey)
	}
	return keys, nil
}

// coins converts a coin value to an amount, keeping fallback for zero.
func coins(v float64, fallback btcutil.Amount) (btcutil.Amount, error) {
	if v == 0 {
		return fallback, nil
	}
	if v < 0 {
		return 0, fmt.Errorf("negative amount %v", v)
	}
	return btcutil.NewAmount(v)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
