package gossip

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tos-network/ledgervault/internal/chainstore"
)

// messageType discriminates the two peer protocol messages (spec §6).
type messageType string

const (
	typeChain messageType = "CHAIN"
	typeBlock messageType = "BLOCK"
)

// envelope is the single JSON frame shape for both message kinds; a frame is
// decoded in one pass, and "type" then selects whether Chain or Block is
// the payload to act on.
type envelope struct {
	Type  messageType  `json:"type"`
	Chain []wireBlock  `json:"chain,omitempty"`
	Block *wireBlock   `json:"block,omitempty"`
}

// wireBlock is the JSON transport shape of a Block (spec §6): binary fields
// are lowercase hex strings. Design notes §9 calls out that a recipient
// must never trust sender-side structural hints about encoding — wireBlock
// is the single normalized shape every peer speaks, regardless of how the
// sender obtained its bytes.
type wireBlock struct {
	BlockID          int64      `json:"block_id"`
	BlockNumber      int64      `json:"block_number"`
	PreviousHash     *string    `json:"previous_hash"`
	BlockHash        string     `json:"block_hash"`
	EncryptedData    string     `json:"encrypted_data"`
	DataIV           string     `json:"data_iv"`
	EncryptedDataKey string     `json:"encrypted_data_key"`
	Nonce            string     `json:"nonce"`
	Difficulty       int        `json:"difficulty"`
	CreatorID        string     `json:"creator_id"`
	Signature        string     `json:"signature"`
	DataSize         int        `json:"data_size"`
	CreatedAt        time.Time  `json:"created_at"`
	Verified         bool       `json:"verified"`
	VerifiedAt       *time.Time `json:"verified_at"`
}

func toWireBlock(b chainstore.Block) wireBlock {
	return wireBlock{
		BlockID:          b.BlockID,
		BlockNumber:      b.BlockNumber,
		PreviousHash:     b.PreviousHash,
		BlockHash:        b.BlockHash,
		EncryptedData:    hex.EncodeToString(b.EncryptedData),
		DataIV:           hex.EncodeToString(b.DataIV),
		EncryptedDataKey: hex.EncodeToString(b.EncryptedDataKey),
		Nonce:            fmt.Sprintf("%d", b.Nonce),
		Difficulty:       b.Difficulty,
		CreatorID:        b.CreatorID,
		Signature:        hex.EncodeToString(b.Signature),
		DataSize:         b.DataSize,
		CreatedAt:        b.CreatedAt,
		Verified:         b.Verified,
		VerifiedAt:       b.VerifiedAt,
	}
}

func fromWireBlock(w wireBlock) (chainstore.Block, error) {
	encryptedData, err := hex.DecodeString(w.EncryptedData)
	if err != nil {
		return chainstore.Block{}, fmt.Errorf("gossip: encrypted_data: %w", err)
	}
	dataIV, err := hex.DecodeString(w.DataIV)
	if err != nil {
		return chainstore.Block{}, fmt.Errorf("gossip: data_iv: %w", err)
	}
	encryptedDataKey, err := hex.DecodeString(w.EncryptedDataKey)
	if err != nil {
		return chainstore.Block{}, fmt.Errorf("gossip: encrypted_data_key: %w", err)
	}
	signature, err := hex.DecodeString(w.Signature)
	if err != nil {
		return chainstore.Block{}, fmt.Errorf("gossip: signature: %w", err)
	}
	var nonce uint64
	if _, err := fmt.Sscanf(w.Nonce, "%d", &nonce); err != nil {
		return chainstore.Block{}, fmt.Errorf("gossip: nonce: %w", err)
	}
	return chainstore.Block{
		BlockID:          w.BlockID,
		BlockNumber:      w.BlockNumber,
		PreviousHash:     w.PreviousHash,
		BlockHash:        w.BlockHash,
		EncryptedData:    encryptedData,
		DataIV:           dataIV,
		EncryptedDataKey: encryptedDataKey,
		Nonce:            nonce,
		Difficulty:       w.Difficulty,
		CreatorID:        w.CreatorID,
		Signature:        signature,
		DataSize:         w.DataSize,
		CreatedAt:        w.CreatedAt,
		Verified:         w.Verified,
		VerifiedAt:       w.VerifiedAt,
	}, nil
}
