// Command ledgerctl is a reference implementation of the external client
// role described in spec §1: it performs prepare-mining, the proof-of-work
// search, hybrid encryption, and signing entirely client-side, then commits
// the finished block over HTTP. It also lists creators/blocks via the read
// API. Grounded in the teacher's cmd/toskey CLI structure (urfave/cli/v2)
// with tabular output via olekukonko/tablewriter.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/internal/flags"
)

var gitCommit = ""
var gitDate = ""

var nodeFlag = &cli.StringFlag{
	Name:     "node",
	Usage:    "base URL of the ledgervault HTTP API",
	Value:    "http://127.0.0.1:4001",
	Category: flags.APICategory,
}

func main() {
	app := flags.NewApp(gitCommit, gitDate, "a ledgervault reference client")
	app.Flags = []cli.Flag{nodeFlag}
	app.Commands = []*cli.Command{
		commandRegister,
		commandSubmit,
		commandCreators,
		commandBlocks,
		commandDecrypt,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
