package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/metrics"
	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/scoring"
)

// ErrCycleInProgress is returned when another invocation holds the run lock.
var ErrCycleInProgress = errors.New("refresh cycle already in progress")

// ErrNoChainProps is returned when global chain values cannot be read.
var ErrNoChainProps = errors.New("chain properties unavailable")

// RefreshConfig holds the cycle parameters
type RefreshConfig struct {
	Community    string
	BatchSize    int
	PoolSize     int
	CycleTimeout time.Duration
	ActivityDays int
}

// Dependencies are the collaborators of a refresh cycle. History and Locker are optional.
type Dependencies struct {
	Roster     RosterSource
	Accounts   AccountSource
	Holdings   HoldingsSource
	Activity   ActivitySource
	Donations  DonationSource
	Store      LeaderboardStore
	History    HistoryWriter
	Locker     Locker
	Calculator *scoring.Calculator
	Witness    string
	Curator    string
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

// CycleReport summarizes one cycle
type CycleReport struct {
	CycleID         uuid.UUID     `json:"cycle_id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Subscribers     int           `json:"subscribers"`
	Pruned          int           `json:"pruned"`
	Selected        int           `json:"selected"`
	Waves           int           `json:"waves"`
	Refreshed       int           `json:"refreshed"`
	Skipped         int           `json:"skipped"`
	UpsertFailed    int           `json:"upsert_failed"`
	Created         int64         `json:"created"`
	DonationsMerged int64         `json:"donations_merged"`
	Scored          int           `json:"scored"`
	PointsChanged   int           `json:"points_changed"`
}

// userOutcome is what happened to one selected user in a wave.
type userOutcome int

const (
	outcomeRefreshed userOutcome = iota
	outcomeNotFound
	outcomeFetchFailed
	outcomeUpsertFailed
)

// RefreshService runs incremental refresh cycles over the leaderboard
type RefreshService struct {
	cfg        RefreshConfig
	deps       Dependencies
	fetcher    *Fetcher
	reconciler *Reconciler
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewRefreshService creates a new refresh service
func NewRefreshService(cfg RefreshConfig, deps Dependencies) (*RefreshService, error) {
	if cfg.Community == "" {
		return nil, apperrors.NewConfigurationError("community", "must not be empty")
	}
	if deps.Roster == nil || deps.Accounts == nil || deps.Store == nil || deps.Calculator == nil {
		return nil, apperrors.NewConfigurationError("dependencies", "roster, accounts, store and calculator are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 100
	}
	if cfg.ActivityDays <= 0 {
		cfg.ActivityDays = 7
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	logger := deps.Logger.WithField("community", cfg.Community)
	return &RefreshService{
		cfg:        cfg,
		deps:       deps,
		fetcher:    NewFetcher(deps.Accounts, deps.Holdings, deps.Witness, deps.Curator, deps.Metrics, logger),
		reconciler: NewReconciler(deps.Store, logger),
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RunCycle performs one full refresh: reconcile, refresh the stalest users in
// sequential waves, bootstrap new subscribers, merge donations, then rescore
// the whole table. Per-user failures are counted, never returned.
func (s *RefreshService) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{CycleID: uuid.New(), StartedAt: s.now().UTC()}
	logger := s.logger.WithField("cycle_id", report.CycleID.String())

	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	release, err := s.acquire(ctx, logger)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.metrics.ObserveCycle(metrics.ResultSkipped, 0)
			logger.Info("Skipping cycle, another run holds the lock")
		}
		return nil, err
	}
	defer release()

	err = s.runCycle(logging.WithLogger(ctx, logger), report, logger)
	report.Duration = s.now().Sub(report.StartedAt)

	if err != nil {
		s.metrics.ObserveCycle(metrics.ResultFailed, report.Duration)
		logger.WithError(err).Error("Refresh cycle failed")
		return report, err
	}

	s.metrics.ObserveCycle(metrics.ResultSuccess, report.Duration)
	logger.WithFields(map[string]interface{}{
		"subscribers":    report.Subscribers,
		"pruned":         report.Pruned,
		"selected":       report.Selected,
		"refreshed":      report.Refreshed,
		"skipped":        report.Skipped,
		"created":        report.Created,
		"points_changed": report.PointsChanged,
		"duration_ms":    report.Duration.Milliseconds(),
	}).Info("Refresh cycle complete")
	return report, nil
}

func (s *RefreshService) acquire(ctx context.Context, logger *logging.Logger) (func(), error) {
	noop := func() {}
	if s.deps.Locker == nil {
		return noop, nil
	}

	token, ok, err := s.deps.Locker.Acquire(ctx, s.cfg.Community)
	if err != nil {
		logger.WithError(err).Warn("Run lock unavailable, continuing unguarded")
		return noop, nil
	}
	if !ok {
		return nil, ErrCycleInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Locker.Release(releaseCtx, s.cfg.Community, token); err != nil {
			logger.WithError(err).Warn("Failed to release run lock")
		}
	}, nil
}

func (s *RefreshService) runCycle(ctx context.Context, report *CycleReport, logger *logging.Logger) error {
	roster, rows, err := s.loadState(ctx)
	if err != nil {
		return err
	}
	report.Subscribers = len(roster)

	pruned, err := s.prune(ctx, roster, rows, logger)
	if err != nil {
		return err
	}
	report.Pruned = len(pruned)

	waves := SelectBatches(roster, rows, s.cfg.PoolSize, s.cfg.BatchSize)
	report.Waves = len(waves)
	for _, w := range waves {
		report.Selected += len(w)
	}

	if len(waves) > 0 {
		if err := s.refreshWaves(ctx, waves, rows, report, logger); err != nil {
			return err
		}
	}

	if fresh := NewSubscribers(roster, rows); len(fresh) > 0 {
		created, err := s.deps.Store.InsertBare(ctx, fresh)
		if err != nil {
			logger.WithError(err).Warn("Failed to insert new subscribers")
		} else {
			report.Created = created
			s.metrics.RowsCreated.Add(float64(created))
		}
	}

	report.DonationsMerged = s.mergeDonations(ctx, logger)

	scored, changed, err := s.rescore(ctx, report.CycleID, logger)
	if err != nil {
		return err
	}
	report.Scored = scored
	report.PointsChanged = changed
	return nil
}

func (s *RefreshService) loadState(ctx context.Context) ([]string, []models.LeaderboardEntry, error) {
	roster, err := s.deps.Roster.ListSubscribers(ctx, s.cfg.Community)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	rows, err := s.deps.Store.GetAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return roster, rows, nil
}

// prune reconciles against the roster. An empty roster is treated as a bad
// read rather than a community with no members.
func (s *RefreshService) prune(ctx context.Context, roster []string, rows []models.LeaderboardEntry, logger *logging.Logger) ([]string, error) {
	if len(roster) == 0 {
		logger.Warn("Subscriber roster is empty, skipping reconciliation")
		return nil, nil
	}

	pruned, err := s.reconciler.Reconcile(ctx, roster, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to prune unsubscribed users: %w", err)
	}
	s.metrics.RowsPruned.Add(float64(len(pruned)))
	return pruned, nil
}

// Prune runs only the reconciliation step and returns the removed authors.
func (s *RefreshService) Prune(ctx context.Context) ([]string, error) {
	roster, rows, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return s.prune(ctx, roster, rows, s.logger)
}

func (s *RefreshService) refreshWaves(ctx context.Context, waves [][]string, rows []models.LeaderboardEntry, report *CycleReport, logger *logging.Logger) error {
	props, err := s.deps.Accounts.GetChainProps(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoChainProps, err)
	}

	since := s.now().AddDate(0, 0, -s.cfg.ActivityDays)
	var activity map[string]models.ActivityStats
	if s.deps.Activity != nil {
		activity, err = s.deps.Activity.WeeklyActivity(ctx, s.cfg.Community, since)
		if err != nil {
			logger.WithError(err).Warn("Weekly activity unavailable, keeping stored activity")
			activity = nil
		} else if activity == nil {
			activity = map[string]models.ActivityStats{}
		}
	}

	byAuthor := make(map[string]models.LeaderboardEntry, len(rows))
	for _, row := range rows {
		byAuthor[row.HiveAuthor] = row
	}

	pool := pond.NewPool(s.cfg.BatchSize)
	defer pool.StopAndWait()

	for i, wave := range waves {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cycle stopped before wave %d: %w", i+1, err)
		}

		outcomes := s.runWave(ctx, pool, wave, byAuthor, props, activity)

		var refreshed, upsertFailed int
		outcomes.Range(func(_ string, o userOutcome) bool {
			switch o {
			case outcomeRefreshed:
				refreshed++
			case outcomeUpsertFailed:
				upsertFailed++
			}
			return true
		})
		skipped := outcomes.Size() - refreshed - upsertFailed

		report.Refreshed += refreshed
		report.UpsertFailed += upsertFailed
		report.Skipped += skipped + (len(wave) - outcomes.Size())
		s.metrics.UsersRefreshed.Add(float64(refreshed))

		logger.WithFields(map[string]interface{}{
			"wave":          i + 1,
			"size":          len(wave),
			"refreshed":     refreshed,
			"skipped":       skipped,
			"upsert_failed": upsertFailed,
		}).Info("Wave complete")

		if s.storeRejectsAll(report) {
			return apperrors.NewPersistenceError(fmt.Sprintf("every upsert through wave %d", i+1), errors.New("leaderboard store rejected all writes"))
		}
	}
	return nil
}

// systemicMinAttempts is how many upserts must have failed, with none
// succeeding, before the store itself is considered down.
const systemicMinAttempts = 5

// storeRejectsAll reports whether every upsert so far in the cycle failed and
// enough were attempted to rule out a few bad rows. Cycles selecting fewer
// users than systemicMinAttempts need all of them to fail.
func (s *RefreshService) storeRejectsAll(report *CycleReport) bool {
	attempted := report.Refreshed + report.UpsertFailed
	if attempted == 0 || report.UpsertFailed != attempted {
		return false
	}
	return attempted >= min(systemicMinAttempts, report.Selected)
}

func (s *RefreshService) runWave(
	ctx context.Context,
	pool pond.Pool,
	wave []string,
	byAuthor map[string]models.LeaderboardEntry,
	props models.ChainProps,
	activity map[string]models.ActivityStats,
) *xsync.Map[string, userOutcome] {
	outcomes := xsync.NewMap[string, userOutcome]()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	now := s.now()

	for _, author := range wave {
		prev := byAuthor[author]
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			outcomes.Store(author, s.refreshUser(groupCtx, prev, props, activity, now))
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.WithError(err).Warn("Wave group encountered error")
	}
	return outcomes
}

func (s *RefreshService) refreshUser(ctx context.Context, prev models.LeaderboardEntry, props models.ChainProps, activity map[string]models.ActivityStats, now time.Time) userOutcome {
	logger := s.logger.WithField("author", prev.HiveAuthor)

	next, err := s.fetcher.Refresh(ctx, prev, props, activity, now)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.metrics.UsersSkipped.WithLabelValues("not_found").Inc()
			logger.Warn("Hive account not found, skipping")
			return outcomeNotFound
		}
		s.metrics.UsersSkipped.WithLabelValues("fetch_error").Inc()
		logger.WithError(err).Warn("Failed to fetch account, skipping")
		return outcomeFetchFailed
	}

	if err := s.deps.Store.Upsert(ctx, next); err != nil {
		s.metrics.UsersSkipped.WithLabelValues("upsert_error").Inc()
		logger.WithError(err).Error("Failed to upsert row")
		return outcomeUpsertFailed
	}
	return outcomeRefreshed
}

func (s *RefreshService) mergeDonations(ctx context.Context, logger *logging.Logger) int64 {
	if s.deps.Donations == nil {
		return 0
	}

	totals, err := s.deps.Donations.MatchedDonations(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to read donations")
		return 0
	}

	merged, err := s.deps.Store.MergeDonations(ctx, totals)
	if err != nil {
		logger.WithError(err).Warn("Failed to merge donations")
		return 0
	}
	return merged
}

// Rescore recomputes points for the whole table and writes changed rows.
func (s *RefreshService) Rescore(ctx context.Context) (scored, changed int, err error) {
	return s.rescore(ctx, uuid.New(), s.logger)
}

func (s *RefreshService) rescore(ctx context.Context, cycleID uuid.UUID, logger *logging.Logger) (int, int, error) {
	rows, err := s.deps.Store.GetAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read leaderboard for scoring: %w", err)
	}

	now := s.now()
	changed, all := s.deps.Calculator.ScoreAll(rows, now)

	updates := make([]models.PointsUpdate, 0, len(changed))
	for _, c := range changed {
		updates = append(updates, models.PointsUpdate{HiveAuthor: c.Entry.HiveAuthor, Points: c.Result.Points})
	}
	if err := s.deps.Store.UpdatePoints(ctx, updates); err != nil {
		return 0, 0, fmt.Errorf("failed to write points: %w", err)
	}
	s.metrics.PointsChanged.Add(float64(len(updates)))

	if s.deps.History != nil {
		if err := s.deps.History.Record(ctx, cycleID, now, all); err != nil {
			logger.WithError(err).Warn("Failed to record score history")
		}
	}

	return len(all), len(updates), nil
}
