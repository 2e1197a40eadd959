package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/skatehive-leaderboard/internal/config"
)

// scoreHistoryTable receives one batch per refresh cycle.
const scoreHistoryTable = "score_history"

// ClickHouseDB holds the score history connection. Writes are one large
// append per cycle and reads are occasional per-user lookups, so the pool is
// kept to a single writer plus one reader.
type ClickHouseDB struct {
	conn     driver.Conn
	database string
}

// clickHouseOptions builds connection options for batch appends of score rows.
func clickHouseOptions(cfg *config.ClickHouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			// A retried cycle batch with the same content is dropped server-side.
			"insert_deduplicate": 1,
			"max_execution_time": 30,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		// One block per cycle: the leaderboard is a few thousand rows at most.
		BlockBufferSize:      1,
		MaxCompressionBuffer: 4 << 20,
		DialTimeout:          5 * time.Second,
		MaxOpenConns:         2,
		MaxIdleConns:         1,
		ConnMaxLifetime:      30 * time.Minute,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
	}
}

// NewClickHouseDB connects to the score history database
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(clickHouseOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn, database: cfg.Database}, nil
}

// HistoryReady fails when the score_history table has not been migrated yet.
func (db *ClickHouseDB) HistoryReady(ctx context.Context) error {
	var exists uint8
	if err := db.conn.QueryRow(ctx, "EXISTS TABLE "+scoreHistoryTable).Scan(&exists); err != nil {
		return fmt.Errorf("check %s.%s: %w", db.database, scoreHistoryTable, err)
	}
	if exists == 0 {
		return fmt.Errorf("table %s.%s missing, run migrate -db clickhouse", db.database, scoreHistoryTable)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec executes a statement without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
