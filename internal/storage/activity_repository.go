package storage

import (
	"context"
	"time"

	"github.com/skatehive-leaderboard/internal/config"
	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/models"
)

// ActivityRepository reads weekly posting activity from the HAF SQL mirror
type ActivityRepository struct {
	db             *PostgresDB
	snapsContainer string
	postPoints     float64
	snapPoints     float64
}

// NewActivityRepository creates a repository over the HAF database
func NewActivityRepository(db *PostgresDB, cfg config.ActivityConfig) *ActivityRepository {
	return &ActivityRepository{
		db:             db,
		snapsContainer: cfg.SnapsContainer,
		postPoints:     cfg.PostPoints,
		snapPoints:     cfg.SnapPoints,
	}
}

// WeeklyActivity counts top-level community posts and snaps per author since
// the given instant. Authors are keyed in lower case.
func (r *ActivityRepository) WeeklyActivity(ctx context.Context, community string, since time.Time) (map[string]models.ActivityStats, error) {
	query := `
		SELECT lower(author),
		       COUNT(*) FILTER (WHERE parent_author = '') AS post_count,
		       COUNT(*) FILTER (WHERE parent_author = $3) AS snaps_count
		FROM hafsql.comments
		WHERE created >= $2
		  AND deleted = false
		  AND ((parent_author = '' AND category = $1) OR parent_author = $3)
		GROUP BY lower(author)
	`

	rows, err := r.db.Pool().Query(ctx, query, community, since.UTC(), r.snapsContainer)
	if err != nil {
		return nil, apperrors.NewTransientError("haf", err)
	}
	defer rows.Close()

	stats := make(map[string]models.ActivityStats)
	for rows.Next() {
		var author string
		var posts, snaps int
		if err := rows.Scan(&author, &posts, &snaps); err != nil {
			return nil, apperrors.NewPersistenceError("scan activity row", err)
		}
		stats[author] = r.activityStats(posts, snaps)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewTransientError("haf", err)
	}

	return stats, nil
}

func (r *ActivityRepository) activityStats(posts, snaps int) models.ActivityStats {
	return models.ActivityStats{
		PostCount:  posts,
		SnapsCount: snaps,
		PostsScore: float64(posts)*r.postPoints + float64(snaps)*r.snapPoints,
	}
}
