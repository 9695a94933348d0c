package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/ledgervault/internal/chainstore"
)

func TestWireBlockRoundTrip(t *testing.T) {
	prevHash := "ab"
	b := chainstore.Block{
		BlockID:          1,
		BlockNumber:      2,
		PreviousHash:     &prevHash,
		BlockHash:        "cd",
		EncryptedData:    []byte{0xde, 0xad, 0xbe, 0xef},
		DataIV:           []byte{0x01, 0x02},
		EncryptedDataKey: []byte{0x03, 0x04},
		Nonce:            123456789,
		Difficulty:       4,
		CreatorID:        "alice-id",
		Signature:        []byte{0x05, 0x06},
		DataSize:         8,
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Verified:         true,
	}

	wire := toWireBlock(b)
	back, err := fromWireBlock(wire)
	require.NoError(t, err)

	require.Equal(t, b.BlockID, back.BlockID)
	require.Equal(t, b.BlockNumber, back.BlockNumber)
	require.Equal(t, *b.PreviousHash, *back.PreviousHash)
	require.Equal(t, b.BlockHash, back.BlockHash)
	require.Equal(t, b.EncryptedData, back.EncryptedData)
	require.Equal(t, b.DataIV, back.DataIV)
	require.Equal(t, b.EncryptedDataKey, back.EncryptedDataKey)
	require.Equal(t, b.Nonce, back.Nonce)
	require.Equal(t, b.Difficulty, back.Difficulty)
	require.Equal(t, b.CreatorID, back.CreatorID)
	require.Equal(t, b.Signature, back.Signature)
	require.Equal(t, b.DataSize, back.DataSize)
	require.Equal(t, b.Verified, back.Verified)
}

func TestFromWireBlockRejectsMalformedHex(t *testing.T) {
	_, err := fromWireBlock(wireBlock{EncryptedData: "not-hex"})
	require.Error(t, err)
}
