// Package main runs one refresh cycle per EventBridge scheduled event.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/skatehive-leaderboard/internal/app"
	"github.com/skatehive-leaderboard/internal/config"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/service"
)

// Connections are reused across warm invocations.
var application *app.App

func handler(ctx context.Context, event events.CloudWatchEvent) error {
	if application == nil {
		a, err := initApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		application = a
	}

	logger := application.Logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_time": event.Time,
	})

	report, err := application.Refresh.RunCycle(ctx)
	if errors.Is(err, service.ErrCycleInProgress) {
		logger.Info("Previous cycle still running, nothing to do")
		return nil
	}
	if err != nil {
		logger.ErrorWithErr("Refresh cycle failed", err)
		return err
	}

	logger.WithFields(map[string]interface{}{
		"refreshed": report.Refreshed,
		"pruned":    report.Pruned,
		"created":   report.Created,
	}).Info("Refresh cycle completed")
	return nil
}

func initApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if arn := os.Getenv("DB_SECRET_ARN"); arn != "" {
		if err := config.ApplyDBSecret(ctx, cfg, arn); err != nil {
			return nil, err
		}
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	// Lambda freezes between invocations; keep the pool small.
	if cfg.Database.Postgres.MaxConnections > 5 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	return app.New(ctx, cfg, logger)
}

func main() {
	lambda.Start(handler)
}
