// Package dbtest opens a migrated throwaway database for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
)

// Open returns a migrated SQLite database in a per-test temp dir.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(config.DatabaseConfig{Driver: database.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
