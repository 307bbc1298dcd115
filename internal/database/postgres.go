package database

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/celebrum-regime/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logrus.Info("PostgreSQL connection closed")
	}
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

var postgresMigrations = []migration{
	{
		version: 1,
		name:    "breakout_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS breakout_events (
				id BIGSERIAL PRIMARY KEY,
				symbol VARCHAR(32) NOT NULL,
				timeframe VARCHAR(8) NOT NULL,
				breakout_type VARCHAR(16) NOT NULL,
				breakout_price DOUBLE PRECISION NOT NULL,
				breakout_timestamp TIMESTAMPTZ NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				invalidated_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (symbol, timeframe, breakout_timestamp)
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_breakout_one_active
				ON breakout_events (symbol, timeframe) WHERE is_active = true`,
			`CREATE INDEX IF NOT EXISTS idx_breakout_timestamp ON breakout_events (breakout_timestamp)`,
		},
	},
	{
		version: 2,
		name:    "regime_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS regime_events (
				id BIGSERIAL PRIMARY KEY,
				event_id UUID NOT NULL UNIQUE,
				event_type VARCHAR(32) NOT NULL,
				timestamp TIMESTAMPTZ NOT NULL,
				symbol VARCHAR(32) NOT NULL,
				session_tag VARCHAR(16) NOT NULL,
				old_regime VARCHAR(32) NOT NULL,
				new_regime VARCHAR(32) NOT NULL,
				confidence DOUBLE PRECISION NOT NULL,
				confidence_percentile DOUBLE PRECISION NOT NULL DEFAULT 0,
				atr_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
				bb_width_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
				adx DOUBLE PRECISION NOT NULL DEFAULT 0,
				transition VARCHAR(80) NOT NULL,
				indicators_json JSONB,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_regime_events_symbol_ts ON regime_events (symbol, timestamp DESC)`,
		},
	},
	{
		version: 3,
		name:    "breakout_volume_confirmed",
		stmts: []string{
			`ALTER TABLE breakout_events ADD COLUMN IF NOT EXISTS volume_confirmed BOOLEAN NOT NULL DEFAULT true`,
		},
	},
}

// MigratePostgres applies pending schema migrations.
func MigratePostgres(ctx context.Context, pool DatabasePool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range postgresMigrations {
		var applied bool
		if err := pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.version).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		logrus.WithField("version", m.version).Info("Applied database migration")
	}
	return nil
}
