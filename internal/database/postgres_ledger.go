package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	// Begin starts a transaction.
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLedger is the PostgreSQL-backed breakout and regime-event store.
type PostgresLedger struct {
	pool    DatabasePool
	writeMu sync.Mutex
}

// NewPostgresLedger creates a new ledger.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*PostgresLedger: The initialized ledger.
func NewPostgresLedger(pool DatabasePool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// RecordBreakout invalidates the active breakout for the key and activates ev in one transaction.
//
// Parameters:
//
//	ctx: Context.
//	ev: Breakout to record.
//
// Returns:
//
//	models.BreakoutEvent: The stored row.
//	error: Error if operation fails.
func (l *PostgresLedger) RecordBreakout(ctx context.Context, ev models.BreakoutEvent) (models.BreakoutEvent, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to begin breakout transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE breakout_events
		SET is_active = false, invalidated_at = CURRENT_TIMESTAMP
		WHERE symbol = $1 AND timeframe = $2 AND is_active = true AND breakout_timestamp <> $3
	`, ev.Symbol, string(ev.Timeframe), ev.Timestamp); err != nil {
		_ = tx.Rollback(ctx)
		return models.BreakoutEvent{}, fmt.Errorf("failed to invalidate active breakouts: %w", err)
	}

	saved := ev
	var kind string
	err = tx.QueryRow(ctx, `
		INSERT INTO breakout_events (symbol, timeframe, breakout_type, breakout_price, breakout_timestamp, volume_confirmed, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		ON CONFLICT (symbol, timeframe, breakout_timestamp)
		DO UPDATE SET is_active = true, invalidated_at = NULL
		RETURNING id, breakout_type, breakout_price, volume_confirmed, created_at
	`, ev.Symbol, string(ev.Timeframe), string(ev.Type), ev.Price, ev.Timestamp, ev.VolumeConfirmed).Scan(
		&saved.ID,
		&kind,
		&saved.Price,
		&saved.VolumeConfirmed,
		&saved.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return models.BreakoutEvent{}, fmt.Errorf("failed to insert breakout: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to commit breakout: %w", err)
	}

	saved.Type = models.BreakoutType(kind)
	saved.IsActive = true
	saved.InvalidatedAt = nil
	return saved, nil
}

// ActiveBreakout returns the active breakout for the key or models.ErrBreakoutNotFound.
func (l *PostgresLedger) ActiveBreakout(ctx context.Context, symbol string, tf models.Timeframe) (*models.BreakoutEvent, error) {
	query := `
		SELECT id, breakout_type, breakout_price, breakout_timestamp, volume_confirmed, created_at
		FROM breakout_events
		WHERE symbol = $1 AND timeframe = $2 AND is_active = true
		ORDER BY breakout_timestamp DESC
		LIMIT 1
	`

	ev := models.BreakoutEvent{Symbol: symbol, Timeframe: tf, IsActive: true}
	var kind string
	err := l.pool.QueryRow(ctx, query, symbol, string(tf)).Scan(
		&ev.ID,
		&kind,
		&ev.Price,
		&ev.Timestamp,
		&ev.VolumeConfirmed,
		&ev.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBreakoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active breakout: %w", err)
	}
	ev.Type = models.BreakoutType(kind)
	return &ev, nil
}

// AppendRegimeEvent appends a confirmed regime change.
func (l *PostgresLedger) AppendRegimeEvent(ctx context.Context, ev models.RegimeChangeEvent) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var indicators []byte
	if len(ev.Indicators) > 0 {
		indicators = []byte(ev.Indicators)
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO regime_events (
			event_id, event_type, timestamp, symbol, session_tag, old_regime, new_regime,
			confidence, confidence_percentile, atr_ratio, bb_width_ratio, adx, transition, indicators_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, ev.EventID, ev.EventType, ev.Timestamp, ev.Symbol, string(ev.SessionTag),
		string(ev.OldRegime), string(ev.NewRegime), ev.Confidence, ev.ConfidencePercentile,
		ev.ATRRatio, ev.BBWidthRatio, ev.ADX, ev.Transition, indicators)
	if err != nil {
		return fmt.Errorf("failed to append regime event: %w", err)
	}
	return nil
}

// RecentRegimeEvents returns up to limit events for symbol, newest first.
func (l *PostgresLedger) RecentRegimeEvents(ctx context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, event_id, event_type, timestamp, session_tag, old_regime, new_regime,
			confidence, confidence_percentile, atr_ratio, bb_width_ratio, adx, transition,
			indicators_json, created_at
		FROM regime_events
		WHERE symbol = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := l.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query regime events: %w", err)
	}
	defer rows.Close()

	var events []models.RegimeChangeEvent
	for rows.Next() {
		var (
			ev                 models.RegimeChangeEvent
			session, old, next string
			indicators         []byte
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.EventID,
			&ev.EventType,
			&ev.Timestamp,
			&session,
			&old,
			&next,
			&ev.Confidence,
			&ev.ConfidencePercentile,
			&ev.ATRRatio,
			&ev.BBWidthRatio,
			&ev.ADX,
			&ev.Transition,
			&indicators,
			&ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan regime event: %w", err)
		}
		ev.Symbol = symbol
		ev.SessionTag = models.SessionTag(session)
		ev.OldRegime = models.Regime(old)
		ev.NewRegime = models.Regime(next)
		ev.Indicators = indicators
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regime events: %w", err)
	}
	return events, nil
}

// PruneRegimeEvents deletes regime events older than before.
func (l *PostgresLedger) PruneRegimeEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := l.pool.Exec(ctx, `DELETE FROM regime_events WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune regime events: %w", err)
	}
	return result.RowsAffected(), nil
}

// PruneBreakouts deletes inactive breakouts older than before.
func (l *PostgresLedger) PruneBreakouts(ctx context.Context, before time.Time) (int64, error) {
	result, err := l.pool.Exec(ctx,
		`DELETE FROM breakout_events WHERE is_active = false AND breakout_timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune breakouts: %w", err)
	}
	return result.RowsAffected(), nil
}
