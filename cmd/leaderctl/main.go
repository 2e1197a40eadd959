// Package main provides leaderctl, the operator CLI for the leaderboard refresher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/skatehive-leaderboard/internal/app"
	"github.com/skatehive-leaderboard/internal/config"
	"github.com/skatehive-leaderboard/internal/logging"
)

var logLevel string

// rootCmd is the base command for leaderctl
var rootCmd = &cobra.Command{
	Use:   "leaderctl",
	Short: "Operate the Skatehive leaderboard refresher",
	Long: `leaderctl runs refresh steps on demand against the configured databases
and explains how individual scores were computed.

Configuration is read from the environment and an optional .env file,
exactly as the worker reads it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

// openApp loads configuration and connects everything a command needs.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	// Human at a terminal.
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.FormatText)
	return app.New(ctx, cfg, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
