package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/accounts/creatorkey"
	"github.com/tos-network/ledgervault/internal/flags"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

var (
	keyfileFlag = &cli.StringFlag{
		Name:     "keyfile",
		Usage:    "path to the creator's encrypted keyfile (see ledgerkey generate)",
		Required: true,
		Category: flags.AccountCategory,
	}
	dataFlag = &cli.StringFlag{
		Name:     "data",
		Usage:    "plaintext to seal and submit as the block's payload",
		Required: true,
	}
	maxAttemptsFlag = &cli.IntFlag{
		Name:  "max-attempts",
		Usage: "re-prepare attempts on tip-moved before giving up",
		Value: 5,
	}
)

var commandSubmit = &cli.Command{
	Name:      "submit",
	Usage:     "prepare, mine, and commit a new block (the full external-client protocol)",
	ArgsUsage: " ",
	Flags:     []cli.Flag{nodeFlag, keyfileFlag, passwordFileFlag, dataFlag, maxAttemptsFlag},
	Action:    submitBlock,
}

type prepareResponse struct {
	CreatorID       string `json:"creator_id"`
	PublicKeyPEM    string `json:"public_key_pem"`
	PreviousHash    string `json:"previous_hash"`
	Difficulty      int    `json:"difficulty"`
	MiningTimeoutMs int    `json:"mining_timeout_ms"`
}

type commitResponse struct {
	Status string                 `json:"status"`
	Block  map[string]interface{} `json:"block"`
}

func submitBlock(ctx *cli.Context) error {
	passphrase, err := readPassphraseFile(ctx.String(passwordFileFlag.Name))
	if err != nil {
		return err
	}
	keyfileJSON, err := os.ReadFile(ctx.String(keyfileFlag.Name))
	if err != nil {
		return fmt.Errorf("read keyfile: %w", err)
	}
	priv, displayName, err := creatorkey.Decrypt(keyfileJSON, passphrase)
	if err != nil {
		return fmt.Errorf("decrypt keyfile: %w", err)
	}

	c := newClient(ctx.String(nodeFlag.Name))
	data := []byte(ctx.String(dataFlag.Name))

	for attempt := 1; attempt <= ctx.Int(maxAttemptsFlag.Name); attempt++ {
		var prep prepareResponse
		if err := c.post("/blocks/prepare-mining", map[string]string{
			"display_name": displayName,
			"data_text":    string(data),
		}, &prep); err != nil {
			return fmt.Errorf("prepare-mining: %w", err)
		}

		ciphertext, iv, wrappedKey, err := ledgercrypto.SealPlaintext(&priv.PublicKey, data)
		if err != nil {
			return fmt.Errorf("seal: %w", err)
		}
		createdAt := time.Now().UTC().Format(time.RFC3339)

		start := time.Now()
		nonce, blockHash := mine(prep.PreviousHash, ciphertext, iv, wrappedKey, createdAt, prep.CreatorID, prep.Difficulty)
		miningDuration := time.Since(start)

		signature, err := ledgercrypto.SignHash(priv, blockHash)
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}

		var commitResp commitResponse
		err = c.post("/blocks/commit", map[string]interface{}{
			"creator_id":         prep.CreatorID,
			"previous_hash":      prep.PreviousHash,
			"block_hash":         blockHash,
			"nonce":              fmt.Sprintf("%d", nonce),
			"difficulty":         prep.Difficulty,
			"encrypted_data":     hex.EncodeToString(ciphertext),
			"data_iv":            hex.EncodeToString(iv),
			"encrypted_data_key": hex.EncodeToString(wrappedKey),
			"data_size":          len(ciphertext) + len(iv) + len(wrappedKey),
			"signature":          hex.EncodeToString(signature),
			"created_at":         createdAt,
			"mining_duration_ms": miningDuration.Milliseconds(),
		}, &commitResp)
		if err != nil {
			if apiErr, ok := err.(*apiError); ok && apiErr.Code == "tip-moved" {
				fmt.Fprintf(os.Stderr, "tip moved, re-preparing (attempt %d)\n", attempt)
				continue
			}
			return fmt.Errorf("commit: %w", err)
		}

		fmt.Printf("status=%s block_number=%v block_hash=%v mining_duration=%s\n",
			commitResp.Status, commitResp.Block["block_number"], commitResp.Block["block_hash"], miningDuration)
		return nil
	}
	return fmt.Errorf("gave up after %d attempts: tip kept moving", ctx.Int(maxAttemptsFlag.Name))
}

// mine performs the client-side proof-of-work search described in spec §4.2:
// increment nonce until the recomputed canonical hash has the required
// number of leading zero hex digits.
func mine(previousHash string, ciphertext, iv, wrappedKey []byte, createdAt, creatorID string, difficulty int) (uint64, string) {
	for nonce := uint64(0); ; nonce++ {
		hash := ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
			PreviousHash:     previousHash,
			EncryptedData:    ciphertext,
			DataIV:           iv,
			EncryptedDataKey: wrappedKey,
			Nonce:            nonce,
			CreatedAt:        createdAt,
			CreatorID:        creatorID,
			Difficulty:       difficulty,
		})
		if ledgercrypto.HasLeadingZeros(hash, difficulty) {
			return nonce, hash
		}
	}
}
