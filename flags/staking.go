package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// StakingFlags tune the minter and the coins it may stake.
func StakingFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "staking",
			Usage: "Search for stake kernels and mint blocks",
		},
		cli.StringSliceFlag{
			Name:  "staking.key",
			Usage: "WIF private key to stake with (repeatable)",
		},
		cli.Float64Flag{
			Name:  "staking.reserve",
			Usage: "Balance in coins kept out of staking",
		},
		cli.DurationFlag{
			Name:  "staking.sleep",
			Usage: "Pause between kernel search rounds",
			Value: 500 * time.Millisecond,
		},
		cli.IntFlag{
			Name:  "staking.combine",
			Usage: "Maximum number of small coins merged into a coinstake",
			Value: 3,
		},
		cli.Float64Flag{
			Name:  "staking.combinethreshold",
			Usage: "Coins below this value (in coins) are merged into the coinstake",
			Value: 1000,
		},
		cli.Float64Flag{
			Name:  "staking.splitthreshold",
			Usage: "Coinstake credit (in coins) above which the output is split in two",
			Value: 2000,
		},
	}
}
