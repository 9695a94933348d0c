package mining

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/ledgervault/internal/apierr"
	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/gossip"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
	"github.com/tos-network/ledgervault/internal/zaplog"
)

// fakeStore is an in-memory stand-in for chainstore.Store satisfying
// mining.Store, following the teacher's own preference for small
// interface-shaped fakes over a mocking framework.
type fakeStore struct {
	creators map[string]chainstore.Creator
	byName   map[string]string // display_name -> creator_id
	blocks   []chainstore.Block
}

func newFakeStore() *fakeStore {
	return &fakeStore{creators: map[string]chainstore.Creator{}, byName: map[string]string{}}
}

func (f *fakeStore) addCreator(id, displayName string, pub *rsa.PublicKey) {
	pem, _ := ledgercrypto.EncodeRSAPublicKeyPEM(pub)
	f.creators[id] = chainstore.Creator{ID: id, DisplayName: displayName, PublicKey: pem, Active: true}
	f.byName[displayName] = id
}

func (f *fakeStore) CreatorByDisplayName(ctx context.Context, displayName string) (*chainstore.Creator, error) {
	id, ok := f.byName[displayName]
	if !ok {
		return nil, nil
	}
	c := f.creators[id]
	return &c, nil
}

func (f *fakeStore) CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error) {
	c, ok := f.creators[creatorID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) LatestBlock(ctx context.Context) (*chainstore.Block, error) {
	if len(f.blocks) == 0 {
		return nil, nil
	}
	b := f.blocks[len(f.blocks)-1]
	return &b, nil
}

func (f *fakeStore) Append(ctx context.Context, b chainstore.Block) (chainstore.AppendOutcome, error) {
	for _, existing := range f.blocks {
		if existing.BlockHash == b.BlockHash {
			return chainstore.AppendDuplicate, nil
		}
	}
	f.blocks = append(f.blocks, b)
	return chainstore.AppendInserted, nil
}

type fakeBroadcaster struct {
	broadcast []gossip.BlockMessage
}

func (f *fakeBroadcaster) BroadcastBlock(b gossip.BlockMessage) { f.broadcast = append(f.broadcast, b) }

func mineValidPayload(t *testing.T, priv *rsa.PrivateKey, creatorID, previousHash string, difficulty int) CommitPayload {
	t.Helper()
	plaintext := []byte("hello")
	ciphertext, iv, wrappedKey, err := ledgercrypto.SealPlaintext(&priv.PublicKey, plaintext)
	require.NoError(t, err)
	createdAt := time.Now().UTC().Format(time.RFC3339)

	var nonce uint64
	var hash string
	for {
		hash = ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
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
			break
		}
		nonce++
	}
	sig, err := ledgercrypto.SignHash(priv, hash)
	require.NoError(t, err)

	return CommitPayload{
		CreatorID:        creatorID,
		PreviousHash:     previousHash,
		BlockHash:        hash,
		Nonce:            strconv.FormatUint(nonce, 10),
		Difficulty:       difficulty,
		EncryptedData:    ciphertext,
		DataIV:           iv,
		EncryptedDataKey: wrappedKey,
		DataSize:         len(ciphertext) + len(iv) + len(wrappedKey),
		Signature:        sig,
		CreatedAt:        createdAt,
	}
}

// remine redoes the proof-of-work and signature for p after a test has
// changed one of its hashed fields, so that only the change under test can
// make CommitBlock fail.
func remine(t *testing.T, priv *rsa.PrivateKey, p *CommitPayload) {
	t.Helper()
	for nonce := uint64(0); ; nonce++ {
		hash := ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
			PreviousHash:     p.PreviousHash,
			EncryptedData:    p.EncryptedData,
			DataIV:           p.DataIV,
			EncryptedDataKey: p.EncryptedDataKey,
			Nonce:            nonce,
			CreatedAt:        p.CreatedAt,
			CreatorID:        p.CreatorID,
			Difficulty:       p.Difficulty,
		})
		if ledgercrypto.HasLeadingZeros(hash, p.Difficulty) {
			p.BlockHash = hash
			p.Nonce = strconv.FormatUint(nonce, 10)
			break
		}
	}
	sig, err := ledgercrypto.SignHash(priv, p.BlockHash)
	require.NoError(t, err)
	p.Signature = sig
}

func TestPrepareMiningReturnsGenesisSentinel(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)

	c := New(store, nil, 1, 120000, "", zaplog.Nop())
	prep, err := c.PrepareMining(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, ledgercrypto.GenesisSentinel, prep.PreviousHash)
	require.Equal(t, 1, prep.Difficulty)
}

func TestPrepareMiningMissingCreator(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, 1, 120000, "", zaplog.Nop())
	_, err := c.PrepareMining(context.Background(), "nobody")
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, "creator-missing", apiErr.Code)
}

func TestCommitBlockGenesisSucceedsAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)
	broadcaster := &fakeBroadcaster{}

	c := New(store, broadcaster, 1, 120000, "", zaplog.Nop())
	payload := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	result, err := c.CommitBlock(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, chainstore.AppendInserted, result.Outcome)
	require.Equal(t, int64(1), result.Block.BlockNumber)
	require.Nil(t, result.Block.PreviousHash)
	require.Len(t, broadcaster.broadcast, 1)
}

func TestCommitBlockSignatureTamperRejected(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)

	c := New(store, nil, 1, 120000, "", zaplog.Nop())
	payload := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	payload.Signature[0] ^= 0xFF

	_, err = c.CommitBlock(context.Background(), payload)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, "signature-invalid", apiErr.Code)
}

func TestCommitBlockPowForgeryRejected(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)

	c := New(store, nil, 1, 120000, "", zaplog.Nop())
	payload := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	// Forge a hash that wasn't actually mined and re-sign it so only PoW fails.
	payload.BlockHash = "ffffffff00000000000000000000000000000000000000000000000000000000"
	sig, err := ledgercrypto.SignHash(priv, payload.BlockHash)
	require.NoError(t, err)
	payload.Signature = sig

	_, err = c.CommitBlock(context.Background(), payload)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, "pow-failed", apiErr.Code)
}

func TestCommitBlockTipMovedOnStaleDisplayPrevious(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)

	c := New(store, nil, 1, 120000, "", zaplog.Nop())

	first := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	_, err = c.CommitBlock(context.Background(), first)
	require.NoError(t, err)

	// Second client had prepared against the (now stale) genesis sentinel too.
	stale := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	stale.CreatedAt = time.Now().Add(time.Second).UTC().Format(time.RFC3339)
	remine(t, priv, &stale)
	_, err = c.CommitBlock(context.Background(), stale)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, "tip-moved", apiErr.Code)
}

func TestCommitBlockShapeInvalidDataIV(t *testing.T) {
	store := newFakeStore()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.addCreator("alice-id", "alice", &priv.PublicKey)

	c := New(store, nil, 1, 120000, "", zaplog.Nop())
	payload := mineValidPayload(t, priv, "alice-id", ledgercrypto.GenesisSentinel, 1)
	payload.DataIV = payload.DataIV[:15]
	remine(t, priv, &payload)

	_, err = c.CommitBlock(context.Background(), payload)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	require.Equal(t, "shape-invalid", apiErr.Code)
}
