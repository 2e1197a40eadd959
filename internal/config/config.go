// Package config provides configuration management for the leaderboard refresher.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Hive     HiveConfig
	EVM      EVMConfig
	Refresh  RefreshConfig
	Activity ActivityConfig
	Scoring  ScoringConfig
	Logging  LoggingConfig
	Ops      OpsConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	HAF        PostgresConfig // Hive SQL mirror holding posts and comments
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns the connection URL used by golang-migrate.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// HiveConfig holds Hive API configuration
type HiveConfig struct {
	Nodes     []string
	Community string
	Witness   string // witness whose vote earns the witness bonus
	Curator   string // account whose received delegations are tracked
	RPS       int    // client-side request ceiling
	Timeout   time.Duration
	PageDelay time.Duration // pause between subscriber pages
}

// EVMConfig holds EVM read configuration
type EVMConfig struct {
	// APIKey gates all EVM reads. Empty means holdings default to zero.
	APIKey string
	// RPC URL templates; "%s" is replaced with APIKey.
	EthereumRPC       string
	BaseRPC           string
	GnarsContract     string // Base
	SkatehiveNFT      string // Ethereum mainnet
	Timeout           time.Duration
	RateLimitCooldown time.Duration
}

// Enabled reports whether EVM reads are configured.
func (c EVMConfig) Enabled() bool {
	return c.APIKey != ""
}

// RefreshConfig holds refresh cycle configuration
type RefreshConfig struct {
	BatchSize    int // users per concurrent wave
	PoolSize     int // most-stale rows considered per cycle
	CycleTimeout time.Duration
	CronSpec     string
	LockTTL      time.Duration
}

// ActivityConfig controls how weekly activity becomes posts_score
type ActivityConfig struct {
	Days           int     // length of the scoring week
	SnapsContainer string  // author of the container posts that snaps reply to
	PostPoints     float64 // posts_score per top-level post
	SnapPoints     float64 // posts_score per snap
}

// ScoringConfig selects the weight table
type ScoringConfig struct {
	Version     string // "v2" (default) or "v1"
	WeightsFile string // optional YAML override
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// OpsConfig holds the operational listener configuration
type OpsConfig struct {
	Addr string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "leaderboard"),
				User:           getEnv("POSTGRES_USER", "leaderboard"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			HAF: PostgresConfig{
				Host:           getEnv("HAF_HOST", "localhost"),
				Port:           getEnv("HAF_PORT", "5432"),
				Database:       getEnv("HAF_DB", "haf_block_log"),
				User:           getEnv("HAF_USER", "hafsql_public"),
				Password:       getEnv("HAF_PASSWORD", "hafsql_public"),
				SSLMode:        getEnv("HAF_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("HAF_MAX_CONNECTIONS", 5),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "leaderboard"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Hive: HiveConfig{
			Nodes:     getEnvAsList("HIVE_NODES", "https://api.hive.blog,https://api.deathwing.me,https://techcoderx.com"),
			Community: getEnv("HIVE_COMMUNITY", "hive-173115"),
			Witness:   getEnv("HIVE_WITNESS", "skatehive"),
			Curator:   getEnv("HIVE_CURATOR", "steemskate"),
			RPS:       getEnvAsInt("HIVE_RPS", 50),
			Timeout:   getEnvAsDuration("HIVE_TIMEOUT", 10*time.Second),
			PageDelay: getEnvAsDuration("HIVE_PAGE_DELAY", 200*time.Millisecond),
		},
		EVM: EVMConfig{
			APIKey:            getEnv("EVM_API_KEY", ""),
			EthereumRPC:       getEnv("ETHEREUM_RPC_TEMPLATE", "https://eth-mainnet.g.alchemy.com/v2/%s"),
			BaseRPC:           getEnv("BASE_RPC_TEMPLATE", "https://base-mainnet.g.alchemy.com/v2/%s"),
			GnarsContract:     getEnv("GNARS_CONTRACT", "0x880fb3cf5c6cc2d7dfc13a993e839a9411200c17"),
			SkatehiveNFT:      getEnv("SKATEHIVE_NFT_CONTRACT", "0x6d6c8c2a6a0b8f4b4b8f3e2e1c5e2b2c9e6f3d11"),
			Timeout:           getEnvAsDuration("EVM_TIMEOUT", 10*time.Second),
			RateLimitCooldown: getEnvAsDuration("EVM_RATE_LIMIT_COOLDOWN", 60*time.Second),
		},
		Refresh: RefreshConfig{
			BatchSize:    getEnvAsInt("REFRESH_BATCH_SIZE", 25),
			PoolSize:     getEnvAsInt("REFRESH_POOL_SIZE", 100),
			CycleTimeout: getEnvAsDuration("CYCLE_TIMEOUT", 8*time.Minute),
			CronSpec:     getEnv("REFRESH_CRON", "0 */10 * * * *"),
			LockTTL:      getEnvAsDuration("REFRESH_LOCK_TTL", 10*time.Minute),
		},
		Activity: ActivityConfig{
			Days:           getEnvAsInt("ACTIVITY_DAYS", 7),
			SnapsContainer: getEnv("SNAPS_CONTAINER_AUTHOR", "peak.snaps"),
			PostPoints:     getEnvAsFloat("ACTIVITY_POST_POINTS", 10),
			SnapPoints:     getEnvAsFloat("ACTIVITY_SNAP_POINTS", 2),
		},
		Scoring: ScoringConfig{
			Version:     getEnv("SCORING_WEIGHTS", "v2"),
			WeightsFile: getEnv("SCORING_WEIGHTS_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Ops: OpsConfig{
			Addr: getEnv("OPS_ADDR", ":9090"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would make a refresh cycle misbehave
func (c *Config) Validate() error {
	if c.Hive.Community == "" {
		return fmt.Errorf("HIVE_COMMUNITY is required")
	}
	if len(c.Hive.Nodes) == 0 {
		return fmt.Errorf("at least one HIVE_NODES endpoint is required")
	}
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("REFRESH_BATCH_SIZE must be positive, got %d", c.Refresh.BatchSize)
	}
	if c.Refresh.PoolSize <= 0 {
		return fmt.Errorf("REFRESH_POOL_SIZE must be positive, got %d", c.Refresh.PoolSize)
	}
	if c.Activity.Days <= 0 {
		return fmt.Errorf("ACTIVITY_DAYS must be positive, got %d", c.Activity.Days)
	}
	if c.Hive.RPS <= 0 {
		return fmt.Errorf("HIVE_RPS must be positive, got %d", c.Hive.RPS)
	}
	switch c.Scoring.Version {
	case "v1", "v2":
	default:
		return fmt.Errorf("SCORING_WEIGHTS must be v1 or v2, got %q", c.Scoring.Version)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
