package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/internal/flags"
)

var pubkeyFileFlag = &cli.StringFlag{
	Name:     "pubkey",
	Usage:    "path to the PEM public key to register (see ledgerkey generate)",
	Required: true,
	Category: flags.AccountCategory,
}

var commandRegister = &cli.Command{
	Name:      "register",
	Usage:     "register a creator via POST /creators",
	ArgsUsage: "<display-name>",
	Flags:     []cli.Flag{nodeFlag, pubkeyFileFlag},
	Action:    registerCreator,
}

func registerCreator(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <display-name>")
	}
	pubPEM, err := os.ReadFile(ctx.String(pubkeyFileFlag.Name))
	if err != nil {
		return fmt.Errorf("read pubkey: %w", err)
	}

	c := newClient(ctx.String(nodeFlag.Name))
	var out map[string]interface{}
	if err := c.post("/creators", map[string]string{
		"display_name":   ctx.Args().First(),
		"public_key_pem": string(pubPEM),
	}, &out); err != nil {
		return err
	}
	fmt.Printf("registered creator_id=%v display_name=%v\n", out["creator_id"], out["display_name"])
	return nil
}
