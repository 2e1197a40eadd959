package service

import (
	"context"
	"strings"
	"time"

	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/metrics"
	"github.com/skatehive-leaderboard/internal/models"
)

// Signal names used in logs and the fetch failure metric.
const (
	signalAccount    = "account"
	signalDelegation = "delegation"
	signalHoldings   = "holdings"
)

// Fetcher builds one refreshed row from the external sources
type Fetcher struct {
	accounts AccountSource
	holdings HoldingsSource
	witness  string
	curator  string
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewFetcher creates a new fetcher
func NewFetcher(accounts AccountSource, holdings HoldingsSource, witness, curator string, m *metrics.Metrics, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Fetcher{
		accounts: accounts,
		holdings: holdings,
		witness:  witness,
		curator:  curator,
		metrics:  m,
		logger:   logger,
	}
}

// Refresh returns prev with every fetched signal replaced. Account facts are
// required; a failed delegation read counts as zero and a failed holdings read
// keeps the stored holdings. Points and donations are carried over untouched.
// activity is keyed by lower-cased author.
func (f *Fetcher) Refresh(ctx context.Context, prev models.LeaderboardEntry, props models.ChainProps, activity map[string]models.ActivityStats, now time.Time) (*models.LeaderboardEntry, error) {
	author := prev.HiveAuthor
	logger := f.logger.WithField("author", author)

	facts, err := f.accounts.GetAccountInfo(ctx, author)
	if err != nil {
		f.metrics.FetchFailures.WithLabelValues(signalAccount).Inc()
		return nil, err
	}

	next := prev
	next.HiveBalance = facts.HiveBalance
	next.HBDBalance = facts.HBDBalance
	next.HBDSavingsBalance = facts.HBDSavingsBalance
	next.HPBalance = props.VestsToHP(facts.VestingShares)
	next.MaxVotingPowerUSD = props.VotingPowerUSD(facts.EffectiveVests())
	next.HasVotedInWitness = facts.VotedForWitness(f.witness)
	next.LastPost = facts.LastPost
	next.EthAddress = facts.EthAddress
	if next.EthAddress == "" {
		next.EthAddress = models.ZeroAddress
	}

	next.DelegatedCurator = 0
	if f.curator != "" {
		vests, err := f.accounts.GetCuratorDelegation(ctx, author, f.curator)
		if err != nil {
			f.metrics.FetchFailures.WithLabelValues(signalDelegation).Inc()
			logger.WithError(err).Warn("Curator delegation unavailable, using 0")
		} else {
			next.DelegatedCurator = props.VestsToHP(vests)
		}
	}

	f.applyHoldings(ctx, &next, prev, logger)

	// A nil map means activity could not be read this cycle.
	if activity != nil {
		stats := activity[models.NormalizeAuthor(author)]
		next.PostCount = stats.PostCount
		next.SnapsCount = stats.SnapsCount
		next.PostsScore = stats.PostsScore
	}

	updated := now.UTC()
	next.LastUpdated = &updated

	return &next, nil
}

func (f *Fetcher) applyHoldings(ctx context.Context, next *models.LeaderboardEntry, prev models.LeaderboardEntry, logger *logging.Logger) {
	if !next.HasLinkedWallet() || f.holdings == nil || !f.holdings.Enabled() {
		next.GnarsBalance, next.GnarsVotes, next.SkatehiveNFTBalance = 0, 0, 0
		return
	}

	h, err := f.holdings.GetHoldings(ctx, next.EthAddress)
	if err != nil {
		f.metrics.FetchFailures.WithLabelValues(signalHoldings).Inc()
		if !models.IsLinkedAddress(prev.EthAddress) || !strings.EqualFold(prev.EthAddress, next.EthAddress) {
			// Stored values belong to another wallet.
			next.GnarsBalance, next.GnarsVotes, next.SkatehiveNFTBalance = 0, 0, 0
		}
		logger.WithError(err).Warn("EVM holdings unavailable, keeping stored values")
		return
	}

	next.GnarsBalance = h.GnarsBalance
	next.GnarsVotes = h.GnarsVotes
	next.SkatehiveNFTBalance = h.SkatehiveNFTBalance
}
