package main

import (
	"fmt"
	"os"

	"github.com/barrystyle/datos/cmd/datos/launcher"
)

func main() {
	// Hand the full argument list to the launcher; it returns once the node
	// has shut down or a subcommand finished.
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
