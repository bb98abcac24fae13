// Package testutil provides shared helpers for the climate-platform tests.
package testutil

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"climate-platform/migrations"
	"climate-platform/pkg/database"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// DefaultTestTimeout bounds waits on asynchronous work in tests.
const DefaultTestTimeout = 5 * time.Second

// NewLogger returns a logger that discards its output.
func NewLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("climate-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// NewMetrics returns a collector on a private registry.
func NewMetrics() *metrics.Collector {
	return metrics.NewTestCollector()
}

// NewSQLiteDB opens a migrated SQLite database in a temporary directory.
// The test is skipped when the sqlite3 driver is unavailable (for example
// when built without cgo).
func NewSQLiteDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := &database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "climate.db"),
		MaxIdleConns: 1,
	}

	db, err := database.Open(cfg, NewLogger(), NewMetrics())
	if err != nil {
		t.Skipf("sqlite database not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()
	if err := db.Migrate(ctx, migrations.FS, migrations.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}
