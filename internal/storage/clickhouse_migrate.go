package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skatehive-leaderboard/internal/logging"
)

// RunClickHouseMigrations executes every .sql file in migrationsPath in name order.
// Statements use IF NOT EXISTS so reruns are harmless.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}

	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	if len(sqlFiles) == 0 {
		logger.Info("No ClickHouse migration files found")
		return nil
	}

	for _, filename := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsPath, filename)) // #nosec G304 - path is operator supplied
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		fileLogger := logger.WithField("file", filename)
		for i, stmt := range splitSQLStatements(string(content)) {
			fileLogger.Debugf("Executing statement %d: %s", i+1, truncate(stmt, 80))
			if err := db.Exec(ctx, stmt); err != nil {
				fileLogger.WithError(err).Errorf("Statement %d failed", i+1)
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filename, err)
			}
		}
		fileLogger.Info("Applied ClickHouse migration")
	}

	return nil
}

// splitSQLStatements splits file content on statement-ending semicolons,
// dropping blank and comment-only lines.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
