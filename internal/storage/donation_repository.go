package storage

import (
	"context"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
)

// DonationRepository reads the table filled by the donation import job.
// Only donations already matched to a Hive account are returned.
type DonationRepository struct {
	db *PostgresDB
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db *PostgresDB) *DonationRepository {
	return &DonationRepository{db: db}
}

// MatchedDonations returns total donated USD per lower-cased Hive author
func (r *DonationRepository) MatchedDonations(ctx context.Context) (map[string]float64, error) {
	query := `
		SELECT lower(hive_author), SUM(amount_usd)::float8
		FROM giveth_donations
		WHERE hive_author IS NOT NULL AND hive_author <> ''
		GROUP BY lower(hive_author)
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceError("read donations", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var author string
		var usd float64
		if err := rows.Scan(&author, &usd); err != nil {
			return nil, apperrors.NewPersistenceError("scan donation row", err)
		}
		totals[author] = usd
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("read donations", err)
	}

	return totals, nil
}
