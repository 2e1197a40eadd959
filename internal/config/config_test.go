package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("HIVE_TIMEOUT", "3s")
	t.Setenv("HIVE_NODES", "https://a.example, ,https://b.example")
	t.Setenv("REFRESH_BATCH_SIZE", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Hive.Timeout != 3*time.Second {
		t.Errorf("Hive.Timeout = %v, want %v", cfg.Hive.Timeout, 3*time.Second)
	}
	if len(cfg.Hive.Nodes) != 2 {
		t.Errorf("Hive.Nodes = %v, want 2 entries", cfg.Hive.Nodes)
	}
	if cfg.Refresh.BatchSize != 10 {
		t.Errorf("Refresh.BatchSize = %v, want %v", cfg.Refresh.BatchSize, 10)
	}
	if cfg.Refresh.PoolSize != 100 {
		t.Errorf("Refresh.PoolSize = %v, want %v", cfg.Refresh.PoolSize, 100)
	}
	if cfg.Refresh.CycleTimeout != 8*time.Minute {
		t.Errorf("Refresh.CycleTimeout = %v, want %v", cfg.Refresh.CycleTimeout, 8*time.Minute)
	}
	if cfg.Hive.Witness != "skatehive" {
		t.Errorf("Hive.Witness = %v, want %v", cfg.Hive.Witness, "skatehive")
	}
	if cfg.EVM.Enabled() {
		t.Errorf("EVM.Enabled() = true without EVM_API_KEY")
	}
}

func TestLoadConfigRejectsUnknownWeights(t *testing.T) {
	t.Setenv("SCORING_WEIGHTS", "v9")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for unknown weight table")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"parses integer", "42", 1, 42},
		{"falls back on garbage", "forty-two", 7, 7},
		{"falls back when unset", "", 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_INT_KEY", tt.envValue)
			}
			if got := getEnvAsInt("TEST_INT_KEY", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL_KEY", "true")
	if !getEnvAsBool("TEST_BOOL_KEY", false) {
		t.Error("getEnvAsBool() = false, want true")
	}

	t.Setenv("TEST_BOOL_KEY", "nope")
	if !getEnvAsBool("TEST_BOOL_KEY", true) {
		t.Error("getEnvAsBool() should fall back to default on parse failure")
	}
}

func TestPostgresURL(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: "5433", Database: "lb", User: "u", Password: "p", SSLMode: "require"}
	want := "postgres://u:p@db:5433/lb?sslmode=require"
	if got := c.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestLoadConfigActivity(t *testing.T) {
	t.Setenv("ACTIVITY_SNAP_POINTS", "2.5")
	t.Setenv("ACTIVITY_DAYS", "14")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Activity.Days != 14 {
		t.Errorf("Activity.Days = %v, want 14", cfg.Activity.Days)
	}
	if cfg.Activity.SnapPoints != 2.5 {
		t.Errorf("Activity.SnapPoints = %v, want 2.5", cfg.Activity.SnapPoints)
	}
	if cfg.Activity.PostPoints != 10 {
		t.Errorf("Activity.PostPoints = %v, want 10", cfg.Activity.PostPoints)
	}
	if cfg.Activity.SnapsContainer != "peak.snaps" {
		t.Errorf("Activity.SnapsContainer = %v, want peak.snaps", cfg.Activity.SnapsContainer)
	}
}

func TestLoadConfigRejectsNonPositiveActivityDays(t *testing.T) {
	t.Setenv("ACTIVITY_DAYS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for ACTIVITY_DAYS=0")
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 0.75 {
		t.Errorf("getEnvAsFloat() = %v, want 0.75", got)
	}

	t.Setenv("TEST_FLOAT_BAD", "lots")
	if got := getEnvAsFloat("TEST_FLOAT_BAD", 1); got != 1 {
		t.Errorf("getEnvAsFloat() = %v, want default 1", got)
	}
}
