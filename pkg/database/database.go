package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	puresqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
)

const (
	DriverSQLite       = "sqlite"
	DriverSQLitePureGo = "sqlite-purego"
	DriverPostgres     = "postgres"
)

// Open connects to the configured database. SQLite connections are limited to
// one open connection so writers queue inside the process, and transactions
// begin IMMEDIATE so a writer in another process is waited out for
// busy_timeout instead of failing mid-transaction with SQLITE_BUSY.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.DSN, "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate")), gormCfg)
	case DriverSQLitePureGo:
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		db, err = gorm.Open(puresqlite.Open(sqliteDSN(cfg.DSN, "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate")), gormCfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// One unprocessed job per server, plus the FIFO lookup used by claimers.
	// Both SQLite and PostgreSQL accept partial indexes in this form.
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_heartbeat_jobs_pending_server ON heartbeat_jobs (server_id) WHERE processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeat_jobs_claim_order ON heartbeat_jobs (processed_at, claimed_at, enqueued_at, id)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create queue index: %w", err)
		}
	}
	return nil
}

// LockSkipLocked adds FOR UPDATE SKIP LOCKED on dialects with row locks.
// SQLite serialises writers itself, so the clause is omitted there.
func LockSkipLocked(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != DriverPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
}

// LockForUpdate adds FOR UPDATE on dialects with row locks.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != DriverPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func sqliteDSN(path, params string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
