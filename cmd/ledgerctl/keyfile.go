package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/internal/flags"
)

// passwordFileFlag is shared by every ledgerctl command that must unlock a
// creatorkey keyfile (submit, decrypt), mirroring cmd/ledgerkey's own flag
// of the same name.
var passwordFileFlag = &cli.StringFlag{
	Name:     "passwordfile",
	Usage:    "file containing the passphrase protecting the creator keyfile",
	Required: true,
	Category: flags.AccountCategory,
}

func readPassphraseFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read passwordfile: %w", err)
	}
	return trimNewline(string(data)), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
