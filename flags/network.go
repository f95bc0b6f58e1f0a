package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags select the network whose rules the node follows.

func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Network rules to follow (main|test|fake)",
			Value: "main",
		},
		cli.IntFlag{
			Name:  "fakenet",
			Usage: "Run a local fake network with this many funded stakers",
		},
		cli.IntFlag{
			Name:  "fakenet.outputs",
			Usage: "Genesis outputs per fakenet staker",
			Value: 128,
		},
	}
}
