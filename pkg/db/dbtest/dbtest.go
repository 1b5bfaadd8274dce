// Package dbtest provides a throwaway SQLite catalog store for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"irdin-archive/pkg/db"

	"go.uber.org/zap"
)

// NewStore opens a migrated store in the test's temp directory and closes it on cleanup.
func NewStore(tb testing.TB) *db.Store {
	tb.Helper()

	store, err := db.Open(context.Background(), db.Config{
		Driver:     db.DriverSQLite,
		SQLitePath: filepath.Join(tb.TempDir(), "catalog.sqlite3"),
	}, zap.NewNop())
	if err != nil {
		tb.Fatalf("open test store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}
