package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/accounts/creatorkey"
	"github.com/tos-network/ledgervault/internal/flags"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

var creatorIDFlag = &cli.StringFlag{
	Name:     "creator-id",
	Usage:    "creator_id whose encrypted blocks to fetch and decrypt",
	Required: true,
	Category: flags.AccountCategory,
}

var commandDecrypt = &cli.Command{
	Name:      "decrypt",
	Usage:     "fetch a creator's encrypted blocks and decrypt them locally with the creator's private key",
	ArgsUsage: " ",
	Flags:     []cli.Flag{nodeFlag, creatorIDFlag, keyfileFlag, passwordFileFlag},
	Action:    decryptBlocks,
}

type decryptEnvelopeResponse struct {
	Blocks []struct {
		BlockNumber      int64  `json:"block_number"`
		BlockHash        string `json:"block_hash"`
		CreatedAt        string `json:"created_at"`
		EncryptedData    string `json:"encrypted_data"`
		DataIV           string `json:"data_iv"`
		EncryptedDataKey string `json:"encrypted_data_key"`
		Verified         bool   `json:"verified"`
	} `json:"blocks"`
}

// decryptBlocks implements the offline decrypt flow described in spec §6's
// GET /decrypt/blocks/{creator_id}: the server only ever returns the sealed
// envelope, so plaintext recovery happens entirely client-side here.
func decryptBlocks(ctx *cli.Context) error {
	passphrase, err := readPassphraseFile(ctx.String(passwordFileFlag.Name))
	if err != nil {
		return err
	}
	keyfileJSON, err := os.ReadFile(ctx.String(keyfileFlag.Name))
	if err != nil {
		return fmt.Errorf("read keyfile: %w", err)
	}
	priv, _, err := creatorkey.Decrypt(keyfileJSON, passphrase)
	if err != nil {
		return fmt.Errorf("decrypt keyfile: %w", err)
	}

	c := newClient(ctx.String(nodeFlag.Name))
	var resp decryptEnvelopeResponse
	if err := c.get("/decrypt/blocks/"+ctx.String(creatorIDFlag.Name), &resp); err != nil {
		return err
	}

	for _, env := range resp.Blocks {
		ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedData)
		if err != nil {
			return fmt.Errorf("block %d: decode encrypted_data: %w", env.BlockNumber, err)
		}
		iv, err := base64.StdEncoding.DecodeString(env.DataIV)
		if err != nil {
			return fmt.Errorf("block %d: decode data_iv: %w", env.BlockNumber, err)
		}
		wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedDataKey)
		if err != nil {
			return fmt.Errorf("block %d: decode encrypted_data_key: %w", env.BlockNumber, err)
		}

		plaintext, err := ledgercrypto.OpenCiphertext(priv, ciphertext, iv, wrappedKey)
		if err != nil {
			fmt.Printf("block_number=%d block_hash=%s: decrypt failed: %v\n", env.BlockNumber, env.BlockHash, err)
			continue
		}
		fmt.Printf("block_number=%d block_hash=%s verified=%v data=%q\n",
			env.BlockNumber, env.BlockHash, env.Verified, plaintext)
	}
	return nil
}
