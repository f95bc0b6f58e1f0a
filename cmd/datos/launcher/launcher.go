package launcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/urfave/cli.v1"

	"github.com/barrystyle/datos/flags"
	"github.com/barrystyle/datos/rpcapi"
)

// Version is the datos node release.
const Version = "0.1.0"

var app = flags.NewApp(Version, "the datos proof-of-stake and storage proof node")

func init() {
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:  "proof",
			Usage: "Inspect network proofs",
			Subcommands: []cli.Command{
				{
					Name:      "decode",
					Usage:     "Decode a hex proof container and print its node records",
					ArgsUsage: "<hex>",
					Action:    decodeProof,
				},
			},
		},
		{
			Name:   "version",
			Usage:  "Print the version and network parameters",
			Action: printVersion,
		},
	}
}

// Launch parses args and runs the selected command, by default the node.
func Launch(args []string) error {
	return app.Run(args)
}

func decodeProof(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one hex proof argument")
	}
	nodes, err := rpcapi.NewStorageAPI(nil).DecodeProof(ctx.Args().First())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, string(out))
	return nil
}

func printVersion(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintln(w, "datos", Version)
	fmt.Fprintf(w, "Network:        %s (id %#x)\n", rules.Name, rules.NetworkID)
	fmt.Fprintf(w, "Last PoW block: %d\n", rules.Stake.LastPoWBlock)
	fmt.Fprintf(w, "Stake min age:  %s\n", rules.Stake.MinAge)
	fmt.Fprintf(w, "Proof key:      %s\n", rules.Storage.ProofKey)
	return nil
}
