// Command fpledger runs and inspects a fingerprint-bound transaction ledger.
package main

import (
	"os"

	"github.com/roach88/fpledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
