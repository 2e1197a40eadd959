package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skatehive-leaderboard/internal/scoring"
)

// ScoreHistoryRepository appends per-cycle scoring snapshots to ClickHouse
type ScoreHistoryRepository struct {
	db *ClickHouseDB
}

// NewScoreHistoryRepository creates a new score history repository
func NewScoreHistoryRepository(db *ClickHouseDB) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: db}
}

// ScoreHistoryRow is one stored snapshot, as read back for inspection
type ScoreHistoryRow struct {
	CycleID    uuid.UUID
	HiveAuthor string
	Points     int64
	RawTotal   float64
	Floor      bool
	RecordedAt time.Time
}

// Record writes one row per scored entry in a single batch
func (r *ScoreHistoryRepository) Record(ctx context.Context, cycleID uuid.UUID, recordedAt time.Time, scored []scoring.Scored) error {
	if len(scored) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO score_history (
			cycle_id, hive_author, points, raw_total, floor_applied,
			hive_term, hp_term, hbd_savings_term, posts_term, nft_term,
			gnars_balance_term, gnars_votes_term, voting_power_term, delegation_term,
			witness_term, wallet_term, donations_term, zero_penalty, inactivity, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, s := range scored {
		b := s.Result.Breakdown
		if err := batch.Append(
			cycleID,
			s.Entry.HiveAuthor,
			int64(s.Result.Points),
			b.RawTotal,
			b.FloorApplied,
			b.HiveBalance,
			b.HPBalance,
			b.HBDSavings,
			b.PostsScore,
			b.NFT,
			b.GnarsBalance,
			b.GnarsVotes,
			b.VotingPower,
			b.Delegation,
			b.Witness,
			b.Wallet,
			b.Donations,
			b.ZeroPenalty,
			b.Inactivity,
			recordedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// History returns the most recent snapshots for one author, newest first
func (r *ScoreHistoryRepository) History(ctx context.Context, author string, limit int) ([]ScoreHistoryRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Conn().Query(ctx, `
		SELECT cycle_id, hive_author, points, raw_total, floor_applied, recorded_at
		FROM score_history
		WHERE hive_author = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, author, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	var out []ScoreHistoryRow
	for rows.Next() {
		var row ScoreHistoryRow
		if err := rows.Scan(&row.CycleID, &row.HiveAuthor, &row.Points, &row.RawTotal, &row.Floor, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score history: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
