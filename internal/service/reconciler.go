package service

import (
	"context"

	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/models"
)

// Reconciler removes rows for users who left the community
type Reconciler struct {
	store  LeaderboardStore
	logger *logging.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store LeaderboardStore, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Unsubscribed returns persisted authors absent from the roster, skipping donator rows.
func Unsubscribed(roster []string, rows []models.LeaderboardEntry) []string {
	subscribed := rosterSet(roster)

	var gone []string
	for _, row := range rows {
		if row.IsDonator() {
			continue
		}
		if _, ok := subscribed[models.NormalizeAuthor(row.HiveAuthor)]; !ok {
			gone = append(gone, row.HiveAuthor)
		}
	}
	return gone
}

// Reconcile deletes unsubscribed rows in one batch and returns the authors removed.
// With nothing to remove the store is not called.
func (r *Reconciler) Reconcile(ctx context.Context, roster []string, rows []models.LeaderboardEntry) ([]string, error) {
	gone := Unsubscribed(roster, rows)
	if len(gone) == 0 {
		return nil, nil
	}

	deleted, err := r.store.Delete(ctx, gone)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"candidates": len(gone),
		"deleted":    deleted,
	}).Info("Pruned unsubscribed users")

	return gone, nil
}
