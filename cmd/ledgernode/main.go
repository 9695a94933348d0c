// Command ledgernode is a single cluster node: it serves the HTTP API (C2
// mining coordinator, read paths, health), runs the periodic verifier (C3),
// and gossips blocks with configured peers (C4), all backed by one Postgres
// chain store (C1). Grounded in the teacher's cmd/gtos main.go: a urfave/cli
// app whose default action builds and runs the long-lived process, plus a
// narrow set of operational subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/internal/flags"
)

var gitCommit = ""
var gitDate = ""

var (
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "optional TOML file overlaying the environment-derived configuration",
		Category: flags.MiscCategory,
	}
	debugFlag = &cli.BoolFlag{
		Name:     "debug",
		Usage:    "enable debug-level logging",
		Category: flags.LoggingCategory,
	}
	jsonLogFlag = &cli.BoolFlag{
		Name:     "json",
		Usage:    "force JSON log output even on an interactive terminal",
		Category: flags.LoggingCategory,
	}
)

func main() {
	app := flags.NewApp(gitCommit, gitDate, "a ledgervault cluster node")
	app.Flags = []cli.Flag{configFlag, debugFlag, jsonLogFlag}
	app.Action = runNode
	app.Commands = []*cli.Command{commandMigrate}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
