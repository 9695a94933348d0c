// Package mining implements the Mining Coordinator (C2): the two-phase
// prepare/commit protocol from spec §4.2. The coordinator never performs
// proof-of-work itself — PoW search, encryption, and signing happen on the
// external client — it only validates and appends what the client submits,
// mirroring the teacher's consensus engine pattern of a stateless Verify
// step guarding a stateful append (consensus/dpos/dpos.go's Seal/VerifyHeader
// split, ported to this domain since dpos.go itself was dropped; see
// DESIGN.md).
package mining

import (
	"context"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/apierr"
	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/gossip"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

// shapeTolerance is the ±128 byte tolerance on declared data_size (spec
// §4.2 step 5).
const shapeTolerance = 128

// tipCacheSize sizes the coordinator's tipCache, a small LRU in the
// teacher's recent-header cache idiom (consensus/dpos/dpos.go). The cache is
// allocated but never read or written: PrepareMining and CommitBlock always
// read the tip from the store via LatestBlock.
const tipCacheSize = 4

// Store is the subset of chainstore.Store the coordinator depends on.
type Store interface {
	CreatorByDisplayName(ctx context.Context, displayName string) (*chainstore.Creator, error)
	CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error)
	LatestBlock(ctx context.Context) (*chainstore.Block, error)
	Append(ctx context.Context, b chainstore.Block) (chainstore.AppendOutcome, error)
}

// Broadcaster is the subset of gossip.Hub the coordinator depends on.
type Broadcaster interface {
	BroadcastBlock(b gossip.BlockMessage)
}

// Coordinator implements PrepareMining and CommitBlock.
type Coordinator struct {
	store       Store
	broadcast   Broadcaster
	difficulty  int
	timeoutMs   int
	genesisHash string
	log         *zap.Logger

	tipCache *lru.Cache
}

// New builds a Coordinator. difficulty and miningTimeoutMs come from
// internal/config.Config. genesisHash is the GENESIS_HASH value a client
// must present as previous_hash for the first block (spec §6); an empty
// genesisHash falls back to ledgercrypto.GenesisSentinel.
func New(store Store, broadcast Broadcaster, difficulty, miningTimeoutMs int, genesisHash string, log *zap.Logger) *Coordinator {
	cache, _ := lru.New(tipCacheSize)
	if genesisHash == "" {
		genesisHash = ledgercrypto.GenesisSentinel
	}
	return &Coordinator{
		store:       store,
		broadcast:   broadcast,
		difficulty:  difficulty,
		timeoutMs:   miningTimeoutMs,
		genesisHash: genesisHash,
		log:         log,
		tipCache:    cache,
	}
}

// Preparation is the response to prepare_mining (spec §4.2).
type Preparation struct {
	CreatorID       string
	PublicKeyPEM    []byte
	PreviousHash    string
	Difficulty      int
	MiningTimeoutMs int
}

// PrepareMining looks up the active creator and returns the material an
// external client needs to begin proof-of-work. It has no side effects on
// the chain (spec §4.2).
func (c *Coordinator) PrepareMining(ctx context.Context, displayName string) (*Preparation, error) {
	creator, err := c.store.CreatorByDisplayName(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, apierr.CreatorMissing()
	}

	previousHash := c.genesisHash
	tip, err := c.store.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	if tip != nil {
		previousHash = tip.BlockHash
	}

	return &Preparation{
		CreatorID:       creator.ID,
		PublicKeyPEM:    creator.PublicKey,
		PreviousHash:    previousHash,
		Difficulty:      c.difficulty,
		MiningTimeoutMs: c.timeoutMs,
	}, nil
}

// CommitPayload is the body of commit_block (spec §4.2).
type CommitPayload struct {
	CreatorID        string
	PreviousHash     string
	BlockHash        string
	Nonce            string // decimal, per payload contract
	Difficulty       int
	EncryptedData    []byte
	DataIV           []byte
	EncryptedDataKey []byte
	DataSize         int
	Signature        []byte
	CreatedAt        string // ISO-8601
	MiningDurationMs int64  // client-reported, informational only (spec §3)
}

// CommitResult reports the terminal state of a commit attempt (spec §4.2's
// state machine: received -> validated -> appended | duplicate | rejected).
type CommitResult struct {
	Outcome chainstore.AppendOutcome
	Block   chainstore.Block
}

// CommitBlock runs the full six-step validation pipeline then appends
// through the store. On a fresh insert it notifies the broadcaster.
func (c *Coordinator) CommitBlock(ctx context.Context, payload CommitPayload) (*CommitResult, error) {
	creator, err := c.store.CreatorByID(ctx, payload.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, apierr.CreatorMissing()
	}

	pub, err := ledgercrypto.ParseRSAPublicKeyPEM(creator.PublicKey)
	if err != nil {
		return nil, apierr.WithDetails(apierr.KindCrypto, "public-key-invalid", "stored creator public key is invalid", map[string]interface{}{"error": err.Error()})
	}
	if err := ledgercrypto.VerifyHashSignature(pub, payload.BlockHash, payload.Signature); err != nil {
		return nil, apierr.SignatureInvalid()
	}

	if !ledgercrypto.HasLeadingZeros(payload.BlockHash, payload.Difficulty) {
		return nil, apierr.PowFailed()
	}

	nonce, err := strconv.ParseUint(payload.Nonce, 10, 64)
	if err != nil {
		return nil, apierr.ShapeInvalid("nonce is not a valid decimal integer")
	}
	recomputed := ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
		PreviousHash:     payload.PreviousHash,
		EncryptedData:    payload.EncryptedData,
		DataIV:           payload.DataIV,
		EncryptedDataKey: payload.EncryptedDataKey,
		Nonce:            nonce,
		CreatedAt:        payload.CreatedAt,
		CreatorID:        payload.CreatorID,
		Difficulty:       payload.Difficulty,
	})
	if !ledgercrypto.ConstantTimeHexEqual(recomputed, payload.BlockHash) {
		return nil, apierr.HashMismatch()
	}

	if err := validateShape(payload, pub); err != nil {
		return nil, err
	}

	tip, err := c.store.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	var previousHash *string
	switch {
	case tip == nil:
		if payload.PreviousHash != c.genesisHash {
			return nil, apierr.GenesisViolation("first block must reference the genesis sentinel")
		}
	default:
		if tip.BlockHash != payload.PreviousHash {
			return nil, apierr.TipMoved()
		}
		h := tip.BlockHash
		previousHash = &h
	}

	blockNumber := int64(1)
	if tip != nil {
		blockNumber = tip.BlockNumber + 1
	}

	createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		return nil, apierr.ShapeInvalid("created_at is not ISO-8601")
	}

	block := chainstore.Block{
		BlockNumber:      blockNumber,
		PreviousHash:     previousHash,
		BlockHash:        payload.BlockHash,
		EncryptedData:    payload.EncryptedData,
		DataIV:           payload.DataIV,
		EncryptedDataKey: payload.EncryptedDataKey,
		Nonce:            nonce,
		Difficulty:       payload.Difficulty,
		CreatorID:        payload.CreatorID,
		Signature:        payload.Signature,
		DataSize:         payload.DataSize,
		MiningDurationMs: payload.MiningDurationMs,
		CreatedAt:        createdAt,
	}

	outcome, err := c.store.Append(ctx, block)
	if err != nil {
		return nil, err
	}
	if outcome == chainstore.AppendInserted {
		c.log.Info("block appended",
			zap.Int64("block_number", blockNumber),
			zap.String("block_hash", payload.BlockHash),
			zap.String("creator_id", payload.CreatorID))
		if c.broadcast != nil {
			c.broadcast.BroadcastBlock(gossip.BlockMessage{Block: block})
		}
	}
	return &CommitResult{Outcome: outcome, Block: block}, nil
}

func validateShape(payload CommitPayload, pub interface{ Size() int }) *apierr.Error {
	if len(payload.DataIV) != ledgercrypto.GCMIVSize {
		return apierr.ShapeInvalid("data_iv must be 16 bytes")
	}
	if len(payload.EncryptedDataKey) != pub.Size() {
		return apierr.ShapeInvalid("encrypted_data_key length must match the creator's RSA modulus size")
	}
	if len(payload.EncryptedData) < ledgercrypto.GCMTagSize {
		return apierr.ShapeInvalid("encrypted_data must be at least 16 bytes")
	}
	measured := len(payload.EncryptedData) + len(payload.DataIV) + len(payload.EncryptedDataKey)
	diff := payload.DataSize - measured
	if diff < -shapeTolerance || diff > shapeTolerance {
		return apierr.ShapeInvalid("declared data_size is outside the allowed tolerance")
	}
	return nil
}
