package main

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/accounts/creatorkey"
	"github.com/tos-network/ledgervault/internal/flags"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

var (
	displayNameFlag = &cli.StringFlag{
		Name:     "display-name",
		Usage:    "creator display_name to embed in the keyfile",
		Required: true,
		Category: flags.AccountCategory,
	}
	passwordFileFlag = &cli.StringFlag{
		Name:     "passwordfile",
		Usage:    "file containing the passphrase to encrypt the keyfile with",
		Required: true,
		Category: flags.AccountCategory,
	}
	outFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "path to write the encrypted keyfile (default: <display-name>.json)",
		Category: flags.AccountCategory,
	}
	lightKDFFlag = &cli.BoolFlag{
		Name:     "lightkdf",
		Usage:    "use faster, less secure scrypt parameters (testing only)",
		Category: flags.AccountCategory,
	}
	pubOutFlag = &cli.StringFlag{
		Name:     "pubout",
		Usage:    "path to write the PEM public key, for POST /creators (default: <display-name>.pub.pem)",
		Category: flags.AccountCategory,
	}
)

var commandGenerate = &cli.Command{
	Name:      "generate",
	Usage:     "generate a new RSA-2048 creator keypair and write an encrypted keyfile plus a public key PEM",
	ArgsUsage: " ",
	Flags:     []cli.Flag{displayNameFlag, passwordFileFlag, outFlag, pubOutFlag, lightKDFFlag},
	Action:    generateKey,
}

func generateKey(ctx *cli.Context) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	passphrase, err := readPassphraseFile(ctx.String(passwordFileFlag.Name))
	if err != nil {
		return err
	}

	scryptN, scryptP := creatorkey.StandardScryptN, creatorkey.StandardScryptP
	if ctx.Bool(lightKDFFlag.Name) {
		scryptN, scryptP = creatorkey.LightScryptN, creatorkey.LightScryptP
	}

	displayName := ctx.String(displayNameFlag.Name)
	keyfileJSON, err := creatorkey.Encrypt(priv, displayName, passphrase, scryptN, scryptP)
	if err != nil {
		return fmt.Errorf("encrypt key: %w", err)
	}

	keyfilePath := ctx.String(outFlag.Name)
	if keyfilePath == "" {
		keyfilePath = displayName + ".json"
	}
	if err := os.WriteFile(keyfilePath, keyfileJSON, 0600); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}

	pubPEM, err := ledgercrypto.EncodeRSAPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}
	pubPath := ctx.String(pubOutFlag.Name)
	if pubPath == "" {
		pubPath = displayName + ".pub.pem"
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("creator keyfile:  %s\n", keyfilePath)
	fmt.Printf("public key pem:   %s\n", pubPath)
	return nil
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
