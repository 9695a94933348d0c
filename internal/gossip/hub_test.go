package gossip

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
// gossip.Store, used to exercise validateCandidate (the §9 open-question
// resolution: replace_chain re-validates every block before swapping).
type fakeStore struct {
	creators  map[string]chainstore.Creator
	chain     []chainstore.Block
	replaceTo []chainstore.Block
	outcome   chainstore.ReplaceOutcome
}

func newFakeStore() *fakeStore {
	return &fakeStore{creators: map[string]chainstore.Creator{}}
}

func (f *fakeStore) LoadChainFromStore(ctx context.Context) ([]chainstore.Block, error) {
	return f.chain, nil
}

func (f *fakeStore) Append(ctx context.Context, b chainstore.Block) (chainstore.AppendOutcome, error) {
	f.chain = append(f.chain, b)
	return chainstore.AppendInserted, nil
}

func (f *fakeStore) ReplaceChain(ctx context.Context, candidate []chainstore.Block) (chainstore.ReplaceOutcome, error) {
	f.replaceTo = candidate
	if len(candidate) <= len(f.chain) {
		return chainstore.ReplaceRejected, nil
	}
	f.chain = candidate
	return chainstore.ReplaceAccepted, nil
}

func (f *fakeStore) CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error) {
	c, ok := f.creators[creatorID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func mineChain(t *testing.T, priv *rsa.PrivateKey, creatorID string, n int) []chainstore.Block {
	t.Helper()
	var chain []chainstore.Block
	prevHash := ledgercrypto.GenesisSentinel
	for i := 1; i <= n; i++ {
		ciphertext, iv, wrappedKey, err := ledgercrypto.SealPlaintext(&priv.PublicKey, []byte("hello"))
		require.NoError(t, err)
		createdAt := time.Now().UTC().Add(time.Duration(i) * time.Second)

		var nonce uint64
		var hash string
		for {
			hash = ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
				PreviousHash:     prevHash,
				EncryptedData:    ciphertext,
				DataIV:           iv,
				EncryptedDataKey: wrappedKey,
				Nonce:            nonce,
				CreatedAt:        createdAt.Format(time.RFC3339),
				CreatorID:        creatorID,
				Difficulty:       1,
			})
			if ledgercrypto.HasLeadingZeros(hash, 1) {
				break
			}
			nonce++
		}
		sig, err := ledgercrypto.SignHash(priv, hash)
		require.NoError(t, err)

		var prevHashPtr *string
		if i > 1 {
			h := prevHash
			prevHashPtr = &h
		}
		chain = append(chain, chainstore.Block{
			BlockID:          int64(i),
			BlockNumber:      int64(i),
			PreviousHash:     prevHashPtr,
			BlockHash:        hash,
			EncryptedData:    ciphertext,
			DataIV:           iv,
			EncryptedDataKey: wrappedKey,
			Nonce:            nonce,
			Difficulty:       1,
			CreatorID:        creatorID,
			Signature:        sig,
			DataSize:         len(ciphertext) + len(iv) + len(wrappedKey),
			CreatedAt:        createdAt,
		})
		prevHash = hash
	}
	return chain
}

func TestValidateCandidateAcceptsWellFormedChain(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pem, err := ledgercrypto.EncodeRSAPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	store.creators["alice-id"] = chainstore.Creator{ID: "alice-id", PublicKey: pem, Active: true}

	h := New(store, zaplog.Nop())
	chain := mineChain(t, priv, "alice-id", 3)
	require.True(t, h.validateCandidate(context.Background(), chain))
}

func TestValidateCandidateRejectsBrokenLink(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pem, err := ledgercrypto.EncodeRSAPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	store.creators["alice-id"] = chainstore.Creator{ID: "alice-id", PublicKey: pem, Active: true}

	h := New(store, zaplog.Nop())
	chain := mineChain(t, priv, "alice-id", 3)
	broken := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	chain[2].PreviousHash = &broken
	require.False(t, h.validateCandidate(context.Background(), chain))
}

func TestHandleChainReplacesOnlyWhenStrictlyLonger(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pem, err := ledgercrypto.EncodeRSAPublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	store.creators["alice-id"] = chainstore.Creator{ID: "alice-id", PublicKey: pem, Active: true}

	local := mineChain(t, priv, "alice-id", 2)
	store.chain = local

	h := New(store, zaplog.Nop())
	ctx := context.Background()

	// Equal-length candidate: ignored (strict > per SPEC_FULL's tie-break).
	equalWire := make([]wireBlock, len(local))
	for i, b := range local {
		equalWire[i] = toWireBlock(b)
	}
	h.handleChain(ctx, &peer{addr: "p1"}, equalWire)
	require.Equal(t, 2, len(store.chain))

	// Strictly longer, valid candidate: replaces.
	longer := mineChain(t, priv, "alice-id", 3)
	longerWire := make([]wireBlock, len(longer))
	for i, b := range longer {
		longerWire[i] = toWireBlock(b)
	}
	h.handleChain(ctx, &peer{addr: "p2"}, longerWire)
	require.Equal(t, 3, len(store.chain))
}
