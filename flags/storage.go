package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// StorageFlags size the network proof cache, the reputation table and the
// journal.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "storage.preset",
			Usage: "Retention profile (lite|default|full|archive)",
			Value: "default",
		},
		cli.IntFlag{
			Name:  "storage.reputation",
			Usage: "Maximum number of storage nodes tracked for reputation",
		},
		cli.Uint64Flag{
			Name:  "storage.retention",
			Usage: "Blocks of journaled proofs kept on disk (0 keeps all)",
		},
		cli.StringFlag{
			Name:  "storage.journal",
			Usage: "Directory holding the journal (defaults to <datadir>)",
		},
	}
}
