package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/accounts/creatorkey"
)

var commandInspect = &cli.Command{
	Name:      "inspect",
	Usage:     "print the display_name and RSA modulus size of an encrypted keyfile",
	ArgsUsage: "<keyfile>",
	Flags:     []cli.Flag{passwordFileFlag},
	Action:    inspectKey,
}

func inspectKey(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <keyfile>")
	}
	keyfileJSON, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("read keyfile: %w", err)
	}

	passphraseFile := ctx.String(passwordFileFlag.Name)
	if passphraseFile == "" {
		return fmt.Errorf("--%s is required", passwordFileFlag.Name)
	}
	passphrase, err := readPassphraseFile(passphraseFile)
	if err != nil {
		return err
	}

	priv, displayName, err := creatorkey.Decrypt(keyfileJSON, passphrase)
	if err != nil {
		return fmt.Errorf("decrypt keyfile: %w", err)
	}

	fmt.Printf("display_name: %s\n", displayName)
	fmt.Printf("key size:     %d bits\n", priv.N.BitLen())
	return nil
}
