// Package main provides the long-running refresh worker: a cron-scheduled
// refresh cycle plus the ops HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skatehive-leaderboard/internal/api"
	"github.com/skatehive-leaderboard/internal/app"
	"github.com/skatehive-leaderboard/internal/config"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	status := api.NewCycleStatus()
	opts := append(a.ReadinessChecks(), api.WithCycleStatus(status))
	server := api.NewServer(api.DefaultServerConfig(cfg.Ops.Addr), a.Metrics, logger, opts...)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr("Ops server stopped", err)
			stop()
		}
	}()

	scheduler, err := newScheduler(ctx, cfg.Refresh.CronSpec, a.Refresh, status, logger)
	if err != nil {
		logger.Fatalf("Invalid REFRESH_CRON %q: %v", cfg.Refresh.CronSpec, err)
	}
	scheduler.Start()
	logger.WithFields(map[string]interface{}{
		"cron":      cfg.Refresh.CronSpec,
		"community": cfg.Hive.Community,
	}).Info("Refresh worker started")

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for the running cycle")

	// Stop waits for a running cycle; cancelling ctx above already asked it to wind down.
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Ops server shutdown failed", err)
	}

	logger.Info("Worker stopped")
}

// newScheduler registers one refresh cycle per cron tick. SkipIfStillRunning
// keeps ticks from overlapping inside this process; the run lock covers the rest.
func newScheduler(ctx context.Context, spec string, refresh *service.RefreshService, status *api.CycleStatus, logger *logging.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger.Zap().Sugar()}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	_, err := c.AddFunc(spec, func() {
		report, err := refresh.RunCycle(ctx)
		if errors.Is(err, service.ErrCycleInProgress) {
			return
		}
		status.Record(report, err)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
