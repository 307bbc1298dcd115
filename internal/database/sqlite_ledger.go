package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// SQLiteLedger stores breakouts and regime-change events in the embedded database.
// Writes are serialized by writeMu; WAL mode keeps readers unblocked.
type SQLiteLedger struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteLedger creates a ledger on an opened, migrated database.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordBreakout invalidates the active breakout for the key and activates ev in one
// transaction. Re-recording an existing (symbol, timeframe, timestamp) reactivates that row.
func (l *SQLiteLedger) RecordBreakout(ctx context.Context, ev models.BreakoutEvent) (models.BreakoutEvent, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ts := toMillis(ev.Timestamp)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to begin breakout transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE breakout_events
		SET is_active = 0, invalidated_at = ?
		WHERE symbol = ? AND timeframe = ? AND is_active = 1 AND breakout_timestamp != ?`,
		toMillis(now), ev.Symbol, string(ev.Timeframe), ts); err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to invalidate active breakouts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO breakout_events
			(symbol, timeframe, breakout_type, breakout_price, breakout_timestamp, volume_confirmed, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (symbol, timeframe, breakout_timestamp)
		DO UPDATE SET is_active = 1, invalidated_at = NULL`,
		ev.Symbol, string(ev.Timeframe), string(ev.Type), ev.Price, ts, boolInt(ev.VolumeConfirmed), toMillis(ev.CreatedAt)); err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to insert breakout: %w", err)
	}

	saved, err := scanBreakout(tx.QueryRowContext(ctx, breakoutSelect+`
		WHERE symbol = ? AND timeframe = ? AND breakout_timestamp = ?`,
		ev.Symbol, string(ev.Timeframe), ts))
	if err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to read back breakout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("failed to commit breakout: %w", err)
	}
	return *saved, nil
}

const breakoutSelect = `
	SELECT id, symbol, timeframe, breakout_type, breakout_price, breakout_timestamp,
		volume_confirmed, is_active, invalidated_at, created_at
	FROM breakout_events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBreakout(row rowScanner) (*models.BreakoutEvent, error) {
	var (
		ev          models.BreakoutEvent
		tf, kind    string
		ts, created int64
		volume      int
		active      int
		invalidated sql.NullInt64
	)
	if err := row.Scan(&ev.ID, &ev.Symbol, &tf, &kind, &ev.Price, &ts, &volume, &active, &invalidated, &created); err != nil {
		return nil, err
	}
	ev.Timeframe = models.Timeframe(tf)
	ev.Type = models.BreakoutType(kind)
	ev.Timestamp = fromMillis(ts)
	ev.VolumeConfirmed = volume == 1
	ev.IsActive = active == 1
	ev.CreatedAt = fromMillis(created)
	if invalidated.Valid {
		t := fromMillis(invalidated.Int64)
		ev.InvalidatedAt = &t
	}
	return &ev, nil
}

// ActiveBreakout returns the active breakout for the key or models.ErrBreakoutNotFound.
func (l *SQLiteLedger) ActiveBreakout(ctx context.Context, symbol string, tf models.Timeframe) (*models.BreakoutEvent, error) {
	ev, err := scanBreakout(l.db.QueryRowContext(ctx, breakoutSelect+`
		WHERE symbol = ? AND timeframe = ? AND is_active = 1
		ORDER BY breakout_timestamp DESC
		LIMIT 1`, symbol, string(tf)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBreakoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active breakout: %w", err)
	}
	return ev, nil
}

// Breakouts lists every stored breakout for the key, newest first.
func (l *SQLiteLedger) Breakouts(ctx context.Context, symbol string, tf models.Timeframe) ([]models.BreakoutEvent, error) {
	rows, err := l.db.QueryContext(ctx, breakoutSelect+`
		WHERE symbol = ? AND timeframe = ?
		ORDER BY breakout_timestamp DESC`, symbol, string(tf))
	if err != nil {
		return nil, fmt.Errorf("failed to list breakouts: %w", err)
	}
	defer rows.Close()

	var out []models.BreakoutEvent
	for rows.Next() {
		ev, err := scanBreakout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan breakout: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// AppendRegimeEvent appends a confirmed regime change.
func (l *SQLiteLedger) AppendRegimeEvent(ctx context.Context, ev models.RegimeChangeEvent) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var indicators sql.NullString
	if len(ev.Indicators) > 0 {
		indicators = sql.NullString{String: string(ev.Indicators), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO regime_events
			(event_id, event_type, timestamp, symbol, session_tag, old_regime, new_regime,
			 confidence, confidence_percentile, atr_ratio, bb_width_ratio, adx, transition,
			 indicators_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.EventType, toMillis(ev.Timestamp), ev.Symbol, string(ev.SessionTag),
		string(ev.OldRegime), string(ev.NewRegime), ev.Confidence, ev.ConfidencePercentile,
		ev.ATRRatio, ev.BBWidthRatio, ev.ADX, ev.Transition, indicators, toMillis(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append regime event: %w", err)
	}
	return nil
}

// RecentRegimeEvents returns up to limit events for symbol, newest first.
func (l *SQLiteLedger) RecentRegimeEvents(ctx context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_id, event_type, timestamp, symbol, session_tag, old_regime, new_regime,
			confidence, confidence_percentile, atr_ratio, bb_width_ratio, adx, transition,
			indicators_json, created_at
		FROM regime_events
		WHERE symbol = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query regime events: %w", err)
	}
	defer rows.Close()

	var events []models.RegimeChangeEvent
	for rows.Next() {
		var (
			ev                 models.RegimeChangeEvent
			ts, created        int64
			session, old, next string
			indicators         sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EventType, &ts, &ev.Symbol, &session, &old, &next,
			&ev.Confidence, &ev.ConfidencePercentile, &ev.ATRRatio, &ev.BBWidthRatio, &ev.ADX,
			&ev.Transition, &indicators, &created); err != nil {
			return nil, fmt.Errorf("failed to scan regime event: %w", err)
		}
		ev.Timestamp = fromMillis(ts)
		ev.CreatedAt = fromMillis(created)
		ev.SessionTag = models.SessionTag(session)
		ev.OldRegime = models.Regime(old)
		ev.NewRegime = models.Regime(next)
		if indicators.Valid {
			ev.Indicators = []byte(indicators.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneRegimeEvents deletes regime events older than before.
func (l *SQLiteLedger) PruneRegimeEvents(ctx context.Context, before time.Time) (int64, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	res, err := l.db.ExecContext(ctx, `DELETE FROM regime_events WHERE timestamp < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune regime events: %w", err)
	}
	return res.RowsAffected()
}

// PruneBreakouts deletes inactive breakouts older than before. The active row is always kept.
func (l *SQLiteLedger) PruneBreakouts(ctx context.Context, before time.Time) (int64, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM breakout_events WHERE is_active = 0 AND breakout_timestamp < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune breakouts: %w", err)
	}
	return res.RowsAffected()
}
