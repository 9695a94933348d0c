package chainstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/apierr"
)

//go:embed schema.sql
var schemaSQL string

// Store is the C1 chain store: a single Postgres connection pool plus a
// cached in-memory view of the current tip, refreshed on every successful
// Append/ReplaceChain, mirroring the teacher storage layer's practice of
// keeping a hot read path separate from the durable write path.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	tip *Block // nil until at least one block exists
}

// Open connects to databaseURL and pings it. Callers must call Migrate
// before using the store against a fresh database.
func Open(databaseURL string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("chainstore: ping: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping probes database connectivity, used by GET /health (spec §6).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies schema.sql. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("chainstore: migrate: %w", err)
	}
	return nil
}

// LoadChainFromStore returns every block ordered by block_number ascending
// and warms the in-memory tip cache (spec §4.1).
func (s *Store) LoadChainFromStore(ctx context.Context) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks ORDER BY block_number ASC`)
	if err != nil {
		return nil, apierr.Database(err)
	}
	defer rows.Close()

	var chain []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, apierr.Database(err)
		}
		chain = append(chain, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Database(err)
	}
	if len(chain) > 0 {
		tip := chain[len(chain)-1]
		s.tip = &tip
	}
	return chain, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlock(row rowScanner) (Block, error) {
	var b Block
	var nonce int64
	if err := row.Scan(&b.BlockID, &b.BlockNumber, &b.PreviousHash, &b.BlockHash,
		&b.EncryptedData, &b.DataIV, &b.EncryptedDataKey, &nonce, &b.Difficulty,
		&b.CreatorID, &b.Signature, &b.DataSize, &b.MiningDurationMs, &b.CreatedAt,
		&b.Verified, &b.VerifiedAt); err != nil {
		return Block{}, err
	}
	b.Nonce = uint64(nonce)
	return b, nil
}

// Tip returns the cached current tip, or nil if the chain is empty.
func (s *Store) Tip() *Block {
	if s.tip == nil {
		return nil
	}
	cp := *s.tip
	return &cp
}

// LatestBlock re-reads the tip directly from the database, bypassing the
// cache; used by the mining coordinator immediately before commit to detect
// a tip that moved since prepare-mining (spec §4.2 step 6).
func (s *Store) LatestBlock(ctx context.Context) (*Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks ORDER BY block_number DESC LIMIT 1`)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Database(err)
	}
	return &b, nil
}

// Append inserts a single validated block (spec §4.1). The caller (C2) has
// already run the full validation pipeline; Append's job is the atomic
// insert and duplicate/constraint-violation classification. A fresh insert
// writes a BLOCK_COMMITTED audit.events row in the same transaction
// (SPEC_FULL.md's resolution of the §9 audit-ordering open question); a
// constraint violation is recorded as BLOCK_REJECTED best-effort, outside
// the failed transaction.
func (s *Store) Append(ctx context.Context, b Block) (AppendOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendRejected, apierr.Database(err)
	}
	defer tx.Rollback()

	var blockID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO blocks (block_number, previous_hash, block_hash, encrypted_data,
		                     data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		                     signature, data_size, mining_duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (block_hash) DO NOTHING
		RETURNING block_id`,
		b.BlockNumber, b.PreviousHash, b.BlockHash, b.EncryptedData, b.DataIV,
		b.EncryptedDataKey, int64(b.Nonce), b.Difficulty, b.CreatorID, b.Signature,
		b.DataSize, b.MiningDurationMs, b.CreatedAt).Scan(&blockID)
	if errors.Is(err, sql.ErrNoRows) {
		// ON CONFLICT DO NOTHING suppressed the insert: block_hash already
		// exists. Classify as duplicate or a genesis/number collision.
		existing, lookupErr := s.blockByHash(ctx, b.BlockHash)
		if lookupErr != nil {
			return AppendRejected, lookupErr
		}
		if existing == nil || existing.BlockNumber != b.BlockNumber {
			return AppendRejected, nil
		}
		return AppendDuplicate, nil
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Class() == "23" {
			s.recordAuditBestEffort(ctx, nil, AuditBlockRejected, pqErr.Message)
			return AppendRejected, nil
		}
		return AppendRejected, apierr.Database(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit.events (block_id, kind, reason) VALUES ($1,$2,$3)`,
		blockID, AuditBlockCommitted, fmt.Sprintf("block_number=%d", b.BlockNumber)); err != nil {
		return AppendRejected, apierr.Database(err)
	}
	if err := tx.Commit(); err != nil {
		return AppendRejected, apierr.Database(err)
	}

	b.BlockID = blockID
	s.tip = &b
	return AppendInserted, nil
}

// recordAuditBestEffort writes a standalone audit row outside the failed
// insert's transaction (spec §9: audit events are lost at worst, never
// block the core write path).
func (s *Store) recordAuditBestEffort(ctx context.Context, blockID *int64, kind, reason string) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit.events (block_id, kind, reason) VALUES ($1,$2,$3)`,
		blockID, kind, reason); err != nil {
		s.log.Warn("chainstore: failed to record audit event", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Store) blockByHash(ctx context.Context, hash string) (*Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks WHERE block_hash = $1`, hash)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Database(err)
	}
	return &b, nil
}

// ReplaceChain atomically swaps the stored chain for candidate, used by
// gossip's longest-chain rule (spec §4.4/§9). Callers must have already
// re-validated every block in candidate; ReplaceChain only enforces length
// and performs the delete-all-and-reinsert transactionally.
func (s *Store) ReplaceChain(ctx context.Context, candidate []Block) (ReplaceOutcome, error) {
	current, err := s.LoadChainFromStore(ctx)
	if err != nil {
		return ReplaceRejected, err
	}
	if len(candidate) <= len(current) {
		return ReplaceRejected, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReplaceRejected, apierr.Database(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM audit.events`); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}

	// The append-only trigger rejects DELETE unconditionally; a chain
	// replacement is the one operation allowed to bypass it, so the trigger
	// is disabled for the duration of this transaction only.
	if _, err := tx.ExecContext(ctx, `ALTER TABLE blocks DISABLE TRIGGER blocks_append_only`); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks`); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}
	for _, b := range candidate {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (block_number, previous_hash, block_hash, encrypted_data,
			                     data_iv, encrypted_data_key, nonce, difficulty, creator_id,
			                     signature, data_size, mining_duration_ms, created_at, verified, verified_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			b.BlockNumber, b.PreviousHash, b.BlockHash, b.EncryptedData, b.DataIV,
			b.EncryptedDataKey, int64(b.Nonce), b.Difficulty, b.CreatorID, b.Signature,
			b.DataSize, b.MiningDurationMs, b.CreatedAt, b.Verified, b.VerifiedAt); err != nil {
			return ReplaceRejected, apierr.Database(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE blocks ENABLE TRIGGER blocks_append_only`); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit.events (block_id, kind, reason) VALUES ($1, $2, $3)`,
		nil, AuditChainReplaced, fmt.Sprintf("replaced %d blocks with %d", len(current), len(candidate))); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}

	if err := tx.Commit(); err != nil {
		return ReplaceRejected, apierr.Database(err)
	}
	if _, err := s.LoadChainFromStore(ctx); err != nil {
		s.log.Warn("chainstore: failed to refresh tip cache after replace", zap.Error(err))
	}
	return ReplaceAccepted, nil
}

// PageQuery parameters for PaginatedRead (spec §6 /blocks).
type PageQuery struct {
	Page     int
	Limit    int
	Verified string // "all", "true", "false"
	SortBy   string // "newest", "oldest", "block_number"
}

// PaginatedRead implements the /blocks read path.
func (s *Store) PaginatedRead(ctx context.Context, q PageQuery) ([]Block, int, error) {
	where := ""
	args := []interface{}{}
	switch q.Verified {
	case "true":
		where = "WHERE verified = TRUE"
	case "false":
		where = "WHERE verified = FALSE"
	}

	order := "block_number ASC"
	switch q.SortBy {
	case "newest":
		order = "block_number DESC"
	case "oldest":
		order = "block_number ASC"
	case "block_number":
		order = "block_number ASC"
	}

	var total int
	countQuery := "SELECT count(*) FROM blocks " + where
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, apierr.Database(err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks %s ORDER BY %s LIMIT $%d OFFSET $%d`, where, order, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apierr.Database(err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, 0, apierr.Database(err)
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// BlocksForCreator returns the minimal fields a client needs to decrypt
// offline, per spec §4.1.
func (s *Store) BlocksForCreator(ctx context.Context, creatorID string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks WHERE creator_id = $1 ORDER BY block_number ASC`, creatorID)
	if err != nil {
		return nil, apierr.Database(err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, apierr.Database(err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BlockByNumber fetches a single block by its block_number, used by the
// verifier's chain-link check (spec §4.3 step 2) to fetch the predecessor
// of the block under verification.
func (s *Store) BlockByNumber(ctx context.Context, number int64) (*Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks WHERE block_number = $1`, number)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Database(err)
	}
	return &b, nil
}

// PendingBlocks returns up to limit unverified blocks ordered by
// block_number ascending (spec §4.3 step 1).
func (s *Store) PendingBlocks(ctx context.Context, limit int) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, block_number, previous_hash, block_hash, encrypted_data,
		       data_iv, encrypted_data_key, nonce, difficulty, creator_id,
		       signature, data_size, mining_duration_ms, created_at, verified, verified_at
		FROM blocks WHERE verified = FALSE ORDER BY block_number ASC LIMIT $1`, limit)
	if err != nil {
		return nil, apierr.Database(err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, apierr.Database(err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkVerified sets (verified, verified_at) and writes the matching
// audit.events row in the same transaction (spec §4.3 / SPEC_FULL C3).
func (s *Store) MarkVerified(ctx context.Context, blockID int64, passed bool, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Database(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE blocks SET verified = $1, verified_at = $2 WHERE block_id = $3`,
		passed, now, blockID); err != nil {
		return apierr.Database(err)
	}

	kind := AuditVerifyPassed
	if !passed {
		kind = AuditVerifyFailed
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit.events (block_id, kind, reason) VALUES ($1,$2,$3)`,
		blockID, kind, reason); err != nil {
		return apierr.Database(err)
	}
	if err := tx.Commit(); err != nil {
		return apierr.Database(err)
	}
	return nil
}
