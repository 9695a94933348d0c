// Package verifier implements the periodic re-verification task (C3) from
// spec §4.3: it recomputes a block's hash, checks its proof-of-work, its
// link to the previous block, and its signature, then writes
// (verified, verified_at) plus an audit.events row in the same transaction
// (SPEC_FULL.md's resolution of the audit-ordering open question).
//
// The pure ValidateBlock function is also the validation the §9 open
// question requires of replace_chain: internal/gossip calls it on every
// block of a candidate chain before swapping it in, so the two call sites
// never drift apart.
package verifier

import (
	"context"
	"crypto/rsa"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

// DefaultPeriod is the default tick interval (spec §4.3).
const DefaultPeriod = time.Minute

// DefaultBatchSize bounds the number of pending blocks processed per tick
// (spec §5 backpressure).
const DefaultBatchSize = 50

// pubKeyCacheSize bounds the LRU of parsed creator public keys.
const pubKeyCacheSize = 256

// Store is the subset of chainstore.Store the verifier depends on.
type Store interface {
	PendingBlocks(ctx context.Context, limit int) ([]chainstore.Block, error)
	BlockByNumber(ctx context.Context, number int64) (*chainstore.Block, error)
	CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error)
	MarkVerified(ctx context.Context, blockID int64, passed bool, reason string) error
}

// Verifier is the C3 lifecycle: Start launches the ticking goroutine, Stop
// blocks until it has exited, mirroring the teacher's start/stop contract
// for long-lived supervised workers (SPEC_FULL.md C3).
type Verifier struct {
	store     Store
	log       *zap.Logger
	period    time.Duration
	batchSize int

	pubKeys *lru.Cache

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds a Verifier. period <= 0 uses DefaultPeriod; batchSize <= 0
// uses DefaultBatchSize.
func New(store Store, period time.Duration, batchSize int, log *zap.Logger) *Verifier {
	if period <= 0 {
		period = DefaultPeriod
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cache, _ := lru.New(pubKeyCacheSize)
	return &Verifier{
		store:     store,
		log:       log,
		period:    period,
		batchSize: batchSize,
		pubKeys:   cache,
	}
}

// Start launches the periodic tick loop in its own goroutine. Calling Start
// twice without an intervening Stop is a no-op.
func (v *Verifier) Start(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.done = make(chan struct{})
	v.running = true

	go v.loop(runCtx)
}

// Stop cancels the tick loop and waits for the current tick to finish.
func (v *Verifier) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	cancel := v.cancel
	done := v.done
	v.running = false
	v.mu.Unlock()

	cancel()
	<-done
}

func (v *Verifier) loop(ctx context.Context) {
	defer close(v.done)
	ticker := time.NewTicker(v.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.Tick(ctx); err != nil {
				// Tick-level exceptions never abort the loop; the next tick
				// retries (spec §4.3's failure semantics).
				v.log.Warn("verifier tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one verification pass: up to batchSize pending blocks, in
// ascending block_number order (spec §4.3 step 1's ordering guarantee).
func (v *Verifier) Tick(ctx context.Context) error {
	pending, err := v.store.PendingBlocks(ctx, v.batchSize)
	if err != nil {
		return err
	}
	for _, b := range pending {
		passed, reason := v.checkOne(ctx, b)
		if err := v.store.MarkVerified(ctx, b.BlockID, passed, reason); err != nil {
			// A single block's mutation failure never aborts the tick; it
			// simply stays unverified for the next tick to retry.
			v.log.Warn("verifier: failed to record outcome",
				zap.Int64("block_id", b.BlockID), zap.Error(err))
			continue
		}
		if passed {
			v.log.Info("block verified ok", zap.Int64("block_number", b.BlockNumber), zap.String("block_hash", b.BlockHash))
		} else {
			v.log.Warn("block verified fail", zap.Int64("block_number", b.BlockNumber), zap.String("block_hash", b.BlockHash), zap.String("reason", reason))
		}
	}
	return nil
}

// checkOne runs the four checks from spec §4.3 step 2 (hash, PoW, chain,
// signature) plus the best-effort shape check. Any exception during lookup
// (e.g. a missing predecessor or creator) is itself a verification failure,
// never a tick abort, per spec §4.3's failure semantics.
func (v *Verifier) checkOne(ctx context.Context, b chainstore.Block) (bool, string) {
	var prevHash *string
	if b.BlockNumber > 1 {
		prev, err := v.store.BlockByNumber(ctx, b.BlockNumber-1)
		if err != nil {
			return false, "lookup-failed: " + err.Error()
		}
		if prev == nil {
			return false, "chain-check-failed: predecessor missing"
		}
		h := prev.BlockHash
		prevHash = &h
	}

	creator, err := v.store.CreatorByID(ctx, b.CreatorID)
	if err != nil {
		return false, "lookup-failed: " + err.Error()
	}
	if creator == nil {
		return false, "signature-check-failed: creator missing"
	}

	pub, err := v.cachedPublicKey(creator)
	if err != nil {
		return false, "signature-check-failed: " + err.Error()
	}

	return ValidateBlock(b, prevHash, pub)
}

func (v *Verifier) cachedPublicKey(creator *chainstore.Creator) (*rsa.PublicKey, error) {
	if cached, ok := v.pubKeys.Get(creator.ID); ok {
		return cached.(*rsa.PublicKey), nil
	}
	pub, err := ledgercrypto.ParseRSAPublicKeyPEM(creator.PublicKey)
	if err != nil {
		return nil, err
	}
	v.pubKeys.Add(creator.ID, pub)
	return pub, nil
}

// ValidateBlock is the pure, side-effect-free validation shared by the
// verifier's tick and by internal/gossip's replace_chain candidate
// pre-validation (SPEC_FULL.md's resolution of the §9 open question).
// prevHash is the block_hash of block_number-1, or nil for block_number==1.
func ValidateBlock(b chainstore.Block, prevHash *string, pub *rsa.PublicKey) (bool, string) {
	recomputed := ledgercrypto.BlockHash(ledgercrypto.BlockHashInput{
		PreviousHash:     derefOrEmpty(b.PreviousHash),
		EncryptedData:    b.EncryptedData,
		DataIV:           b.DataIV,
		EncryptedDataKey: b.EncryptedDataKey,
		Nonce:            b.Nonce,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
		CreatorID:        b.CreatorID,
		Difficulty:       b.Difficulty,
	})
	if !ledgercrypto.ConstantTimeHexEqual(recomputed, b.BlockHash) {
		return false, "hash-check-failed"
	}

	if !ledgercrypto.HasLeadingZeros(b.BlockHash, b.Difficulty) {
		return false, "pow-check-failed"
	}

	if b.BlockNumber == 1 {
		if b.PreviousHash != nil {
			return false, "chain-check-failed: genesis must have no previous_hash"
		}
	} else {
		if prevHash == nil || b.PreviousHash == nil || *b.PreviousHash != *prevHash {
			return false, "chain-check-failed: previous_hash does not match predecessor"
		}
	}

	if err := ledgercrypto.VerifyHashSignature(pub, b.BlockHash, b.Signature); err != nil {
		return false, "signature-check-failed"
	}

	if ok, reason := shapeOK(b, pub); !ok {
		return false, reason
	}

	return true, ""
}

func shapeOK(b chainstore.Block, pub *rsa.PublicKey) (bool, string) {
	if len(b.DataIV) != ledgercrypto.GCMIVSize {
		return false, "shape-check-failed: data_iv"
	}
	if len(b.EncryptedDataKey) != pub.Size() {
		return false, "shape-check-failed: encrypted_data_key"
	}
	if len(b.EncryptedData) < ledgercrypto.GCMTagSize {
		return false, "shape-check-failed: encrypted_data"
	}
	measured := len(b.EncryptedData) + len(b.DataIV) + len(b.EncryptedDataKey)
	diff := b.DataSize - measured
	if diff < -128 || diff > 128 {
		return false, "shape-check-failed: data_size"
	}
	return true, ""
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
