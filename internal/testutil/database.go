// Package testutil provides utilities for testing.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/database"
)

// TestDB wraps a migrated test database.
type TestDB struct {
	*database.DB
}

// NewTestDB creates an in-memory database with every migration applied.
// It is closed when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrate(t, db)
	return &TestDB{DB: db}
}

// NewTestDBWithFile creates a migrated database backed by a temporary file,
// with WAL mode and backups enabled. Useful for backup and recovery tests.
func NewTestDBWithFile(t *testing.T) *TestDB {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.DatabaseConfig{Path: filepath.Join(dir, "test.db"), BackupRetentionDays: 7}
	db, err := database.Open(cfg.Path, cfg, filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrate(t, db)
	return &TestDB{DB: db}
}

func migrate(t *testing.T, db *database.DB) {
	t.Helper()

	m, err := database.NewMigrator(db)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if _, err := m.MigrateUp(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

// AssertRowCount asserts the row count for a table.
func (tdb *TestDB) AssertRowCount(t *testing.T, table string, expected int) {
	t.Helper()

	if got := tdb.RowCount(t, table); got != expected {
		t.Errorf("expected %d rows in %s, got %d", expected, table, got)
	}
}

// RowCount returns the number of rows in a table.
func (tdb *TestDB) RowCount(t *testing.T, table string) int {
	t.Helper()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := tdb.QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	return count
}

// ExecSQL executes arbitrary SQL (useful for test setup).
func (tdb *TestDB) ExecSQL(t *testing.T, sql string, args ...any) {
	t.Helper()

	if _, err := tdb.Exec(sql, args...); err != nil {
		t.Fatalf("failed to execute SQL: %v\nSQL: %s", err, sql)
	}
}
