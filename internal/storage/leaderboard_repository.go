package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/models"
)

// ErrEntryNotFound is returned by Get when no row exists for the author.
var ErrEntryNotFound = errors.New("leaderboard entry not found")

const leaderboardColumns = `
	hive_author, hive_balance, hp_balance, hbd_balance, hbd_savings_balance,
	has_voted_in_witness, eth_address, gnars_balance, gnars_votes, skatehive_nft_balance,
	max_voting_power_usd, post_count, snaps_count, posts_score,
	giveth_donations_usd, delegated_curator, points, last_updated, last_post`

// LeaderboardRepository persists leaderboard rows keyed by hive_author
type LeaderboardRepository struct {
	db *PostgresDB
}

// NewLeaderboardRepository creates a new leaderboard repository
func NewLeaderboardRepository(db *PostgresDB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func scanEntry(row pgx.Row) (models.LeaderboardEntry, error) {
	var e models.LeaderboardEntry
	err := row.Scan(
		&e.HiveAuthor,
		&e.HiveBalance,
		&e.HPBalance,
		&e.HBDBalance,
		&e.HBDSavingsBalance,
		&e.HasVotedInWitness,
		&e.EthAddress,
		&e.GnarsBalance,
		&e.GnarsVotes,
		&e.SkatehiveNFTBalance,
		&e.MaxVotingPowerUSD,
		&e.PostCount,
		&e.SnapsCount,
		&e.PostsScore,
		&e.GivethDonationsUSD,
		&e.DelegatedCurator,
		&e.Points,
		&e.LastUpdated,
		&e.LastPost,
	)
	return e, err
}

// GetAll reads the full table, stalest rows first
func (r *LeaderboardRepository) GetAll(ctx context.Context) ([]models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + `
		FROM leaderboard
		ORDER BY last_updated ASC NULLS FIRST, hive_author ASC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceError("read leaderboard", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan leaderboard row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("read leaderboard", err)
	}

	return entries, nil
}

// Get returns the row for one author, matched case-insensitively
func (r *LeaderboardRepository) Get(ctx context.Context, author string) (*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + `
		FROM leaderboard
		WHERE lower(hive_author) = $1`

	e, err := scanEntry(r.db.Pool().QueryRow(ctx, query, models.NormalizeAuthor(author)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, author)
		}
		return nil, apperrors.NewPersistenceError("get leaderboard row", err)
	}
	return &e, nil
}

// Upsert writes the refreshed signals for one row. Points and donation totals
// are owned by the scoring pass and the donation merge, so an existing row
// keeps them.
func (r *LeaderboardRepository) Upsert(ctx context.Context, e *models.LeaderboardEntry) error {
	if e.LastUpdated == nil {
		now := time.Now().UTC()
		e.LastUpdated = &now
	}

	query := `
		INSERT INTO leaderboard (` + leaderboardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (hive_author) DO UPDATE SET
			hive_balance = EXCLUDED.hive_balance,
			hp_balance = EXCLUDED.hp_balance,
			hbd_balance = EXCLUDED.hbd_balance,
			hbd_savings_balance = EXCLUDED.hbd_savings_balance,
			has_voted_in_witness = EXCLUDED.has_voted_in_witness,
			eth_address = EXCLUDED.eth_address,
			gnars_balance = EXCLUDED.gnars_balance,
			gnars_votes = EXCLUDED.gnars_votes,
			skatehive_nft_balance = EXCLUDED.skatehive_nft_balance,
			max_voting_power_usd = EXCLUDED.max_voting_power_usd,
			post_count = EXCLUDED.post_count,
			snaps_count = EXCLUDED.snaps_count,
			posts_score = EXCLUDED.posts_score,
			delegated_curator = EXCLUDED.delegated_curator,
			last_updated = EXCLUDED.last_updated,
			last_post = EXCLUDED.last_post
	`

	_, err := r.db.Pool().Exec(ctx, query,
		e.HiveAuthor,
		e.HiveBalance,
		e.HPBalance,
		e.HBDBalance,
		e.HBDSavingsBalance,
		e.HasVotedInWitness,
		e.EthAddress,
		e.GnarsBalance,
		e.GnarsVotes,
		e.SkatehiveNFTBalance,
		e.MaxVotingPowerUSD,
		e.PostCount,
		e.SnapsCount,
		e.PostsScore,
		e.GivethDonationsUSD,
		e.DelegatedCurator,
		e.Points,
		e.LastUpdated,
		e.LastPost,
	)
	if err != nil {
		return apperrors.NewPersistenceError("upsert "+e.HiveAuthor, err)
	}
	return nil
}

// Delete removes the given authors in one statement and returns the number deleted
func (r *LeaderboardRepository) Delete(ctx context.Context, authors []string) (int64, error) {
	if len(authors) == 0 {
		return 0, nil
	}

	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM leaderboard WHERE hive_author = ANY($1)`, authors)
	if err != nil {
		return 0, apperrors.NewPersistenceError("delete leaderboard rows", err)
	}
	return tag.RowsAffected(), nil
}

// InsertBare creates zero-valued rows for first-seen authors. Existing rows are untouched.
func (r *LeaderboardRepository) InsertBare(ctx context.Context, authors []string) (int64, error) {
	if len(authors) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO leaderboard (hive_author, eth_address)
		SELECT author, $2 FROM unnest($1::text[]) AS author
		ON CONFLICT (hive_author) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query, authors, models.ZeroAddress)
	if err != nil {
		return 0, apperrors.NewPersistenceError("insert new subscribers", err)
	}
	return tag.RowsAffected(), nil
}

// UpdatePoints writes changed point totals in a single transaction
func (r *LeaderboardRepository) UpdatePoints(ctx context.Context, updates []models.PointsUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("begin points update", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE leaderboard SET points = $2 WHERE hive_author = $1`, u.HiveAuthor, u.Points)
	}

	results := tx.SendBatch(ctx, batch)
	for _, u := range updates {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return apperrors.NewPersistenceError("update points for "+u.HiveAuthor, err)
		}
	}
	if err := results.Close(); err != nil {
		return apperrors.NewPersistenceError("update points", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewPersistenceError("commit points update", err)
	}
	return nil
}

// MergeDonations copies matched donation totals onto their rows and returns
// the number of rows touched.
func (r *LeaderboardRepository) MergeDonations(ctx context.Context, totals map[string]float64) (int64, error) {
	if len(totals) == 0 {
		return 0, nil
	}

	authors := make([]string, 0, len(totals))
	amounts := make([]float64, 0, len(totals))
	for author, usd := range totals {
		authors = append(authors, models.NormalizeAuthor(author))
		amounts = append(amounts, usd)
	}

	query := `
		UPDATE leaderboard AS l
		SET giveth_donations_usd = d.amount
		FROM unnest($1::text[], $2::float8[]) AS d(author, amount)
		WHERE lower(l.hive_author) = d.author
		  AND l.giveth_donations_usd IS DISTINCT FROM d.amount
	`

	tag, err := r.db.Pool().Exec(ctx, query, authors, amounts)
	if err != nil {
		return 0, apperrors.NewPersistenceError("merge donations", err)
	}
	return tag.RowsAffected(), nil
}
