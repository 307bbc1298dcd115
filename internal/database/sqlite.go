package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/irfndi/celebrum-regime/internal/config"
)

// SQLiteDB manages the embedded ledger store.
type SQLiteDB struct {
	db     *sql.DB
	config config.DatabaseConfig
}

// NewSQLiteConnection opens (creating if needed) the SQLite file and applies migrations.
func NewSQLiteConnection(cfg config.DatabaseConfig) (*SQLiteDB, error) {
	if cfg.SQLitePath != ":memory:" {
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite registers as "sqlite"; pragmas in the DSN apply to every pooled connection
	db, err := sql.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteDB{db: db, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"path": cfg.SQLitePath,
		"wal":  cfg.WALMode,
	}).Info("SQLite database initialized")

	return s, nil
}

func sqliteDSN(cfg config.DatabaseConfig) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	if cfg.CacheSizeMB > 0 {
		q.Add("_pragma", fmt.Sprintf("cache_size(-%d)", cfg.CacheSizeMB*1024))
	}
	if cfg.WALMode {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	// take the write lock at BEGIN so concurrent writers queue on busy_timeout instead of failing on upgrade
	q.Set("_txlock", "immediate")
	return "file:" + cfg.SQLitePath + "?" + q.Encode()
}

// DB returns the underlying connection pool.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	logrus.Info("SQLite connection closed")
	return err
}

// HealthCheck verifies the database connection.
func (s *SQLiteDB) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// JournalMode reports the active journal mode, "wal" when write-ahead logging is on.
func (s *SQLiteDB) JournalMode(ctx context.Context) (string, error) {
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("failed to read journal mode: %w", err)
	}
	return mode, nil
}

type migration struct {
	version int
	name    string
	stmts   []string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		name:    "breakout_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS breakout_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				symbol TEXT NOT NULL,
				timeframe TEXT NOT NULL,
				breakout_type TEXT NOT NULL,
				breakout_price REAL NOT NULL,
				breakout_timestamp INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				invalidated_at INTEGER,
				created_at INTEGER NOT NULL,
				UNIQUE (symbol, timeframe, breakout_timestamp)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_breakout_active ON breakout_events (symbol, timeframe, is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_breakout_timestamp ON breakout_events (breakout_timestamp)`,
		},
	},
	{
		version: 2,
		name:    "regime_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS regime_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id TEXT NOT NULL UNIQUE,
				event_type TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				symbol TEXT NOT NULL,
				session_tag TEXT NOT NULL,
				old_regime TEXT NOT NULL,
				new_regime TEXT NOT NULL,
				confidence REAL NOT NULL,
				confidence_percentile REAL NOT NULL DEFAULT 0,
				atr_ratio REAL NOT NULL DEFAULT 0,
				bb_width_ratio REAL NOT NULL DEFAULT 0,
				adx REAL NOT NULL DEFAULT 0,
				transition TEXT NOT NULL,
				indicators_json TEXT,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_regime_events_symbol_ts ON regime_events (symbol, timestamp)`,
		},
	},
	{
		version: 3,
		name:    "breakout_volume_confirmed",
		stmts: []string{
			`ALTER TABLE breakout_events ADD COLUMN volume_confirmed INTEGER NOT NULL DEFAULT 1`,
		},
	},
}

func (s *SQLiteDB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
