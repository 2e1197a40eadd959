// Package app wires configuration into a ready-to-run refresh service. The
// worker, the Lambda handler and leaderctl all start from here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/skatehive-leaderboard/internal/adapter"
	"github.com/skatehive-leaderboard/internal/api"
	"github.com/skatehive-leaderboard/internal/circuitbreaker"
	"github.com/skatehive-leaderboard/internal/config"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/metrics"
	"github.com/skatehive-leaderboard/internal/ratelimit"
	"github.com/skatehive-leaderboard/internal/scoring"
	"github.com/skatehive-leaderboard/internal/service"
	"github.com/skatehive-leaderboard/internal/storage"
)

// App owns every connection opened for a refresh process.
type App struct {
	Config      *config.Config
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Breakers    *circuitbreaker.CircuitBreakerManager
	Postgres    *storage.PostgresDB
	HAF         *storage.PostgresDB
	Redis       *storage.RedisClient  // nil when disabled or unreachable
	ClickHouse  *storage.ClickHouseDB // nil when disabled or unreachable
	Leaderboard *storage.LeaderboardRepository
	History     *storage.ScoreHistoryRepository // nil without ClickHouse
	Calculator  *scoring.Calculator
	Budget      *ratelimit.RequestBudget // nil without Redis
	Refresh     *service.RefreshService

	closers []func()
}

// New connects to every backing store and builds the refresh service.
// Postgres and HAF are required; Redis and ClickHouse degrade to absent.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.New(),
		Breakers: circuitbreaker.NewCircuitBreakerManager(),
	}

	if err := a.connect(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect() error {
	cfg := a.Config

	pg, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect leaderboard database: %w", err)
	}
	a.Postgres = pg
	a.closers = append(a.closers, pg.Close)

	haf, err := storage.NewPostgresDB(&cfg.Database.HAF)
	if err != nil {
		return fmt.Errorf("connect HAF database: %w", err)
	}
	a.HAF = haf
	a.closers = append(a.closers, haf.Close)

	if cfg.Database.Redis.Enabled {
		rc, err := storage.NewRedisClient(&cfg.Database.Redis)
		if err != nil {
			a.Logger.WithError(err).Warn("Redis unavailable, running without run lock or shared budget")
		} else {
			a.Redis = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}

	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = ch.HistoryReady(ctx)
			cancel()
			if err != nil {
				_ = ch.Close()
			}
		}
		if err != nil {
			a.Logger.WithError(err).Warn("ClickHouse unavailable, score history disabled")
		} else {
			a.ClickHouse = ch
			a.closers = append(a.closers, func() { _ = ch.Close() })
		}
	}
	return nil
}

func (a *App) build() error {
	cfg := a.Config

	weights, err := scoring.LoadWeights(cfg.Scoring.Version, cfg.Scoring.WeightsFile)
	if err != nil {
		return err
	}
	a.Calculator = scoring.NewCalculator(weights)

	if a.Redis != nil {
		a.Budget, err = ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{
			Redis:             a.Redis.Client(),
			RequestsPerWindow: cfg.Hive.RPS,
		})
		if err != nil {
			return err
		}
	}

	hive, err := adapter.NewHiveClient(&adapter.HiveClientConfig{
		Nodes:     cfg.Hive.Nodes,
		Timeout:   cfg.Hive.Timeout,
		PageDelay: cfg.Hive.PageDelay,
		Limiter:   ratelimit.NewLimiter(cfg.Hive.RPS, a.Budget, a.Logger),
		Breakers:  a.Breakers,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}

	evm, closeEVM, err := adapter.NewEVMReaderFromConfig(cfg.EVM, a.Breakers, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeEVM)

	a.Leaderboard = storage.NewLeaderboardRepository(a.Postgres)

	deps := service.Dependencies{
		Roster:     hive,
		Accounts:   hive,
		Holdings:   evm,
		Activity:   storage.NewActivityRepository(a.HAF, cfg.Activity),
		Donations:  storage.NewDonationRepository(a.Postgres),
		Store:      a.Leaderboard,
		Calculator: a.Calculator,
		Witness:    cfg.Hive.Witness,
		Curator:    cfg.Hive.Curator,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
	}
	// Optional collaborators stay nil interfaces when their backend is absent.
	if a.Redis != nil {
		deps.Locker = storage.NewRunLock(a.Redis.Client(), cfg.Refresh.LockTTL)
	}
	if a.ClickHouse != nil {
		a.History = storage.NewScoreHistoryRepository(a.ClickHouse)
		deps.History = a.History
	}

	a.Refresh, err = service.NewRefreshService(service.RefreshConfig{
		Community:    cfg.Hive.Community,
		BatchSize:    cfg.Refresh.BatchSize,
		PoolSize:     cfg.Refresh.PoolSize,
		CycleTimeout: cfg.Refresh.CycleTimeout,
		ActivityDays: cfg.Activity.Days,
	}, deps)
	return err
}

// ReadinessChecks returns one ops-server check per open connection, plus the
// breaker and request budget views for /status.
func (a *App) ReadinessChecks() []api.Option {
	opts := []api.Option{
		api.WithCheck("postgres", a.Postgres.Ping),
		api.WithCheck("haf", a.HAF.Ping),
		api.WithBreakers(a.Breakers),
	}
	if a.Redis != nil {
		opts = append(opts, api.WithCheck("redis", a.Redis.Ping), api.WithRequestBudget(a.Budget))
	}
	if a.ClickHouse != nil {
		opts = append(opts, api.WithCheck("clickhouse", a.ClickHouse.HistoryReady))
	}
	return opts
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
