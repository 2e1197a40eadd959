package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/scoring"
)

// RosterSource lists the current community subscribers, fully materialized
type RosterSource interface {
	ListSubscribers(ctx context.Context, community string) ([]string, error)
}

// ActivitySource returns weekly activity keyed by lower-cased author
type ActivitySource interface {
	WeeklyActivity(ctx context.Context, community string, since time.Time) (map[string]models.ActivityStats, error)
}

// DonationSource returns matched donation totals in USD keyed by lower-cased author
type DonationSource interface {
	MatchedDonations(ctx context.Context) (map[string]float64, error)
}

// LeaderboardStore is the persisted leaderboard table
type LeaderboardStore interface {
	GetAll(ctx context.Context) ([]models.LeaderboardEntry, error)
	Upsert(ctx context.Context, entry *models.LeaderboardEntry) error
	Delete(ctx context.Context, authors []string) (int64, error)
	InsertBare(ctx context.Context, authors []string) (int64, error)
	UpdatePoints(ctx context.Context, updates []models.PointsUpdate) error
	MergeDonations(ctx context.Context, totals map[string]float64) (int64, error)
}

// AccountSource reads per-user and global values from the Hive API
type AccountSource interface {
	GetAccountInfo(ctx context.Context, username string) (*models.AccountFacts, error)
	// GetCuratorDelegation returns the vests delegator delegates to curator.
	GetCuratorDelegation(ctx context.Context, delegator, curator string) (float64, error)
	GetChainProps(ctx context.Context) (models.ChainProps, error)
}

// HoldingsSource reads token and NFT balances for a linked EVM address
type HoldingsSource interface {
	Enabled() bool
	GetHoldings(ctx context.Context, ethAddress string) (models.EVMHoldings, error)
}

// HistoryWriter stores one scoring snapshot per row per cycle
type HistoryWriter interface {
	Record(ctx context.Context, cycleID uuid.UUID, recordedAt time.Time, scored []scoring.Scored) error
}

// Locker hands out exclusive, expiring leases by name
type Locker interface {
	Acquire(ctx context.Context, name string) (token string, ok bool, err error)
	Release(ctx context.Context, name, token string) error
}
