package chainstore

import (
	"context"

	"github.com/tos-network/ledgervault/internal/apierr"
)

// Stats is the payload for GET /blocks/stats/summary (spec §6).
type Stats struct {
	TotalBlocks      int
	VerifiedBlocks   int
	PendingBlocks    int
	AvgMiningTimeMs  float64
	AvgDifficulty    float64
}

// Summary computes chain-wide statistics. avg_mining_time_ms averages the
// client-reported mining_duration_ms column (spec §3); it is informational
// only, since the server never times the PoW search itself.
func (s *Store) Summary(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE verified),
		       count(*) FILTER (WHERE NOT verified),
		       COALESCE(avg(difficulty), 0),
		       COALESCE(avg(mining_duration_ms), 0)
		FROM blocks`).Scan(&st.TotalBlocks, &st.VerifiedBlocks, &st.PendingBlocks,
		&st.AvgDifficulty, &st.AvgMiningTimeMs)
	if err != nil {
		return Stats{}, apierr.Database(err)
	}
	return st, nil
}
