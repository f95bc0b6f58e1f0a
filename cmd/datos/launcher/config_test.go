package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/flags"
	"github.com/barrystyle/datos/wallet"
)

// runConfigFromArgs runs MakeAllConfigs inside a synthetic app carrying
// every flag group.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllFlags()

	var (
		got    Config
		cfgErr error
	)
	app.Action = func(c *cli.Context) error {
		got, cfgErr = MakeAllConfigs(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"datos"}, args...)))
	return got, cfgErr
}

func fakeWIF(t *testing.T, n int, rules datos.Rules) string {
	wif, err := btcutil.NewWIF(wallet.FakeKey(n), rules.ChainParams(), true)
	require.NoError(t, err)
	return wif.String()
}

func TestMakeAllConfigs_defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := runConfigFromArgs(t, []string{"--datadir", dir})
	require.NoError(t, err)

	require.Equal(t, dir, cfg.Node.DataDir)
	require.Equal(t, "datos", cfg.Node.Name)
	require.Equal(t, "main", cfg.Network.Name)
	require.False(t, cfg.Staking.Enabled)
	require.False(t, cfg.Node.RPC.HTTPEnabled)
	require.Equal(t, 500*time.Millisecond, cfg.Staking.MinerSleep)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	require.Equal(t, datos.MainNetworkID, rules.NetworkID)
	require.False(t, cfg.IsFakeNet())
}

// TestMakeAllConfigs_flagOverrides feeds representative flag combinations
// into the app and checks the fields each one should change.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "datadir and identity",
			args: []string{"--identity", "ugo-node"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, dir, cfg.Node.DataDir)
				require.Equal(t, "ugo-node", cfg.Node.Name)
			},
		},
		{
			name: "http and logging",
			args: []string{"--http", "--http.addr", "0.0.0.0", "--http.port", "9000", "--log.format", "json", "--log.verbosity", "5", "--log.sentry", "https://k@sentry.example/1"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.Node.RPC.HTTPEnabled)
				require.Equal(t, "0.0.0.0", cfg.Node.RPC.HTTPAddr)
				require.Equal(t, 9000, cfg.Node.RPC.HTTPPort)
				require.Equal(t, "json", cfg.Node.Logging.Format)
				require.Equal(t, 5, cfg.Node.Logging.Verbosity)
				require.Equal(t, "https://k@sentry.example/1", cfg.loggerConfig().SentryDSN)
			},
		},
		{
			name: "fakenet",
			args: []string{"--fakenet", "3", "--fakenet.outputs", "16"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.IsFakeNet())
				require.Equal(t, 3, cfg.Network.FakeStakers)
				require.Equal(t, 16, cfg.Network.FakeOutputs)
			},
		},
		{
			name: "staking",
			args: []string{"--staking", "--staking.sleep", "2s", "--staking.combine", "5", "--staking.reserve", "12.5", "--staking.splitthreshold", "4000"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.Staking.Enabled)
				require.Equal(t, 2*time.Second, cfg.Staking.MinerSleep)

				nc, err := cfg.nodeConfig()
				require.NoError(t, err)
				require.Equal(t, 2*time.Second, nc.Minter.MinerSleep)
				require.Equal(t, 5, nc.Wallet.MaxStakeCombine)
				require.Equal(t, 4000*datos.COIN, nc.Wallet.SplitThreshold)
				require.Equal(t, 1000*datos.COIN, nc.Wallet.CombineThreshold)

				reserve, err := cfg.reserveBalance()
				require.NoError(t, err)
				require.Equal(t, btcutil.Amount(1250000000), reserve)
			},
		},
		{
			name: "storage",
			args: []string{"--storage.preset", "archive", "--storage.reputation", "99", "--storage.retention", "42"},
			want: func(t *testing.T, cfg Config) {
				nc, err := cfg.nodeConfig()
				require.NoError(t, err)
				require.Equal(t, 99, nc.ReputationCapacity)
				require.Equal(t, idx.Block(42), nc.ProofRetention)
				require.Equal(t, 10000, nc.StakeSeenKeep)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, append([]string{"--datadir", dir}, tt.args...))
			require.NoError(t, err)
			tt.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_unknownNetwork(t *testing.T) {
	_, err := runConfigFromArgs(t, []string{"--datadir", t.TempDir(), "--network", "moon"})
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	wif := fakeWIF(t, 2, datos.FakeNetRules())
	file := filepath.Join(dir, "datos.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[Node]
Name = "file-node"

[Network]
Name = "fake"

[Staking]
Enabled = true
MinerSleep = "250ms"
Keys = ["`+wif+`"]

[Storage]
Preset = "lite"
`), 0o644))

	cfg, err := runConfigFromArgs(t, []string{"--config", file, "--datadir", dir, "--identity", "flag-node"})
	require.NoError(t, err)

	// flags win over the file, the file over defaults
	require.Equal(t, "flag-node", cfg.Node.Name)
	require.True(t, cfg.IsFakeNet())
	require.True(t, cfg.Staking.Enabled)
	require.Equal(t, 250*time.Millisecond, cfg.Staking.MinerSleep)
	require.Equal(t, "lite", cfg.Storage.Preset)
	require.Equal(t, 18545, cfg.Node.RPC.HTTPPort)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	keys, err := cfg.stakingKeys(rules)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, wallet.FakeKey(2).Serialize(), keys[0].Serialize())

	_, err = runConfigFromArgs(t, []string{"--config", filepath.Join(dir, "missing.toml")})
	require.Error(t, err)
}

func TestStakingKeysWrongNetwork(t *testing.T) {
	cfg := defaultConfig()
	cfg.Staking.Keys = []string{fakeWIF(t, 1, datos.MainNetRules())}

	_, err := cfg.stakingKeys(datos.FakeNetRules())
	require.Error(t, err)

	cfg.Staking.Keys = []string{"not-a-wif"}
	_, err = cfg.stakingKeys(datos.MainNetRules())
	require.Error(t, err)
}

func TestCoins(t *testing.T) {
	v, err := coins(0, 7)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(7), v)

	v, err = coins(1.5, 7)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(150000000), v)

	_, err = coins(-1, 0)
	require.Error(t, err)
}
