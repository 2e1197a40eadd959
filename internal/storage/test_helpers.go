package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/skatehive-leaderboard/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           envOr("TEST_POSTGRES_HOST", "localhost"),
		Port:           envOr("TEST_POSTGRES_PORT", "5432"),
		Database:       envOr("TEST_POSTGRES_DB", "leaderboard_test"),
		User:           envOr("TEST_POSTGRES_USER", "leaderboard"),
		Password:       envOr("TEST_POSTGRES_PASSWORD", "leaderboard_dev_password"),
		SSLMode:        "disable",
		MaxConnections: 4,
	}
}

// openTestPostgres connects and migrates the test database, skipping when it is unavailable.
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

// openTestClickHouse connects and migrates the test database, skipping when it is unavailable.
func openTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     envOr("TEST_CLICKHOUSE_HOST", "localhost"),
		Port:     envOr("TEST_CLICKHOUSE_PORT", "9000"),
		Database: envOr("TEST_CLICKHOUSE_DB", "default"),
		User:     envOr("TEST_CLICKHOUSE_USER", "default"),
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunClickHouseMigrations(testContext(t), db, "../../migrations/clickhouse", nil); err != nil {
		t.Fatalf("RunClickHouseMigrations() error = %v", err)
	}
	return db
}
