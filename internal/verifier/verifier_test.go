package verifier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
	"github.com/tos-network/ledgervault/internal/zaplog"
)

// fakeStore is a minimal in-memory stand-in for chainstore.Store satisfying
// verifier.Store, in the spirit of the teacher's small hand-written fakes.
type fakeStore struct {
	byNumber  map[int64]chainstore.Block
	creators  map[string]chainstore.Creator
	pending   []chainstore.Block
	outcomes  map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byNumber: map[int64]chainstore.Block{},
		creators: map[string]chainstore.Creator{},
		outcomes: map[int64]bool{},
	}
}

func (f *fakeStore) PendingBlocks(ctx context.Context, limit int) ([]chainstore.Block, error) {
	if limit > 0 && limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) BlockByNumber(ctx context.Context, number int64) (*chainstore.Block, error) {
	b, ok := f.byNumber[number]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error) {
	c, ok := f.creators[creatorID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) MarkVerified(ctx context.Context, blockID int64, passed bool, reason string) error {
	f.outcomes[blockID] = passed
	return nil
}

func mineGenesisBlock(t *testing.T, priv *rsa.PrivateKey, creatorID string, difficulty int) chainstore.Block {
	t.Helper()
	ciphertext, iv, wrappedKey, err := ledgercrypto.SealPlaintext(&priv.PublicKey, []byte("hello"))
	require.NoError(t, err)
	createdAt := time.Now().UTC()

	var nonce uint64
	var hash string
	for {
		hash = ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
			PreviousHash:     ledgercrypto.GenesisSentinel,
			EncryptedData:    ciphertext,
			DataIV:           iv,
			EncryptedDataKey: wrappedKey,
			Nonce:            nonce,
			CreatedAt:        createdAt.Format(time.RFC3339),
			CreatorID:        creatorID,
			Difficulty:       difficulty,
		})
		if ledgercrypto.HasLeadingZeros(hash, difficulty) {
			break
		}
		nonce++
	}
	sig, err := ledgercrypto.SignHash(priv, hash)
	require.NoError(t, err)

	return chainstore.Block{
		BlockID:          1,
		BlockNumber:      1,
		PreviousHash:     nil,
		BlockHash:        hash,
		EncryptedData:    ciphertext,
		DataIV:           iv,
		EncryptedDataKey: wrappedKey,
		Nonce:            nonce,
		Difficulty:       difficulty,
		CreatorID:        creatorID,
		Signature:        sig,
		DataSize:         len(ciphertext) + len(iv) + len(wrappedKey),
		CreatedAt:        createdAt,
	}
}

func TestValidateBlockGenesisPasses(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b := mineGenesisBlock(t, priv, "alice-id", 1)

	ok, reason := ValidateBlock(b, nil, &priv.PublicKey)
	require.True(t, ok, reason)
}

func TestValidateBlockRejectsTamperedHash(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b := mineGenesisBlock(t, priv, "alice-id", 1)
	// Change the last hex digit so the hash always differs from the mined one.
	last := "0"
	if b.BlockHash[63] == '0' {
		last = "1"
	}
	b.BlockHash = b.BlockHash[:63] + last

	ok, reason := ValidateBlock(b, nil, &priv.PublicKey)
	require.False(t, ok)
	require.Contains(t, reason, "hash-check-failed")
}

func TestValidateBlockRejectsBrokenChainLink(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b := mineGenesisBlock(t, priv, "alice-id", 1)
	b.BlockNumber = 2
	// Keep the hashed previous_hash (the genesis sentinel) so the hash check
	// passes, but claim a predecessor other than the real block 1.
	sentinel := ledgercrypto.GenesisSentinel
	b.PreviousHash = &sentinel

	wrongPrev := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	ok, reason := ValidateBlock(b, &wrongPrev, &priv.PublicKey)
	require.False(t, ok)
	require.Contains(t, reason, "chain-check-failed")
}

func TestTickMarksGenesisBlockVerified(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	b := mineGenesisBlock(t, priv, "alice-id", 1)
	pem, err := ledgercrypto.EncodeRSAPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	store.creators["alice-id"] = chainstore.Creator{ID: "alice-id", PublicKey: pem, Active: true}
	store.pending = []chainstore.Block{b}

	v := New(store, time.Hour, 50, zaplog.Nop())
	require.NoError(t, v.Tick(context.Background()))
	require.True(t, store.outcomes[b.BlockID])
}

func TestTickMarksSignatureMismatchUnverified(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	b := mineGenesisBlock(t, priv, "alice-id", 1)
	wrongPEM, err := ledgercrypto.EncodeRSAPublicKeyPEM(&other.PublicKey)
	require.NoError(t, err)
	store.creators["alice-id"] = chainstore.Creator{ID: "alice-id", PublicKey: wrongPEM, Active: true}
	store.pending = []chainstore.Block{b}

	v := New(store, time.Hour, 50, zaplog.Nop())
	require.NoError(t, v.Tick(context.Background()))
	require.False(t, store.outcomes[b.BlockID])
}

func TestStartStopIsIdempotent(t *testing.T) {
	store := newFakeStore()
	v := New(store, time.Hour, 50, zaplog.Nop())
	ctx := context.Background()
	v.Start(ctx)
	v.Start(ctx) // no-op, must not deadlock or double-spawn
	v.Stop()
	v.Stop() // no-op
}
