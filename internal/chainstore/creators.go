package chainstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/tos-network/ledgervault/internal/apierr"
)

// RegisterCreator inserts a new creator row, generating creator_id via
// google/uuid (teacher go.mod; also used by accounts/keystore/key.go for
// account IDs).
func (s *Store) RegisterCreator(ctx context.Context, displayName string, publicKeyPEM []byte) (Creator, error) {
	c := Creator{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		PublicKey:   publicKeyPEM,
		Active:      true,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO creators (creator_id, display_name, public_key_pem, active)
		VALUES ($1, $2, $3, TRUE) RETURNING created_at`,
		c.ID, c.DisplayName, c.PublicKey).Scan(&c.CreatedAt)
	if err != nil {
		return Creator{}, apierr.Database(err)
	}
	return c, nil
}

// CreatorByDisplayName looks up an active creator by display_name (used by
// prepare_mining, spec §4.2).
func (s *Store) CreatorByDisplayName(ctx context.Context, displayName string) (*Creator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT creator_id, display_name, public_key_pem, active, created_at
		FROM creators WHERE display_name = $1 AND active = TRUE`, displayName)
	return scanCreator(row)
}

// CreatorByID looks up an active creator by creator_id (used by commit_block
// and the verifier's public-key cache).
func (s *Store) CreatorByID(ctx context.Context, creatorID string) (*Creator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT creator_id, display_name, public_key_pem, active, created_at
		FROM creators WHERE creator_id = $1 AND active = TRUE`, creatorID)
	return scanCreator(row)
}

func scanCreator(row *sql.Row) (*Creator, error) {
	var c Creator
	if err := row.Scan(&c.ID, &c.DisplayName, &c.PublicKey, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierr.Database(err)
	}
	return &c, nil
}

// ListCreators returns every active creator plus its block count, for the
// GET /creators endpoint (spec §6).
func (s *Store) ListCreators(ctx context.Context) ([]Creator, map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.creator_id, c.display_name, c.public_key_pem, c.active, c.created_at,
		       count(b.block_id) AS block_count
		FROM creators c LEFT JOIN blocks b ON b.creator_id = c.creator_id
		WHERE c.active = TRUE
		GROUP BY c.creator_id ORDER BY c.created_at ASC`)
	if err != nil {
		return nil, nil, apierr.Database(err)
	}
	defer rows.Close()

	var creators []Creator
	counts := map[string]int{}
	for rows.Next() {
		var c Creator
		var count int
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.PublicKey, &c.Active, &c.CreatedAt, &count); err != nil {
			return nil, nil, apierr.Database(err)
		}
		creators = append(creators, c)
		counts[c.ID] = count
	}
	return creators, counts, rows.Err()
}
