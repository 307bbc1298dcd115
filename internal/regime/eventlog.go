package regime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// EventLog keeps the bounded in-memory confirmed-regime history per symbol and
// builds the durable change events.
type EventLog struct {
	mu      sync.RWMutex
	limit   int
	history map[string][]models.RegimeHistoryEntry
}

// NewEventLog creates a log that keeps the latest limit entries per symbol.
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &EventLog{
		limit:   limit,
		history: make(map[string][]models.RegimeHistoryEntry),
	}
}

// Append adds an entry, dropping the oldest on overflow.
func (l *EventLog) Append(symbol string, entry models.RegimeHistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := append(l.history[symbol], entry)
	if len(h) > l.limit {
		h = append([]models.RegimeHistoryEntry(nil), h[len(h)-l.limit:]...)
	}
	l.history[symbol] = h
}

// Entries returns a copy of the full history for symbol, oldest first.
func (l *EventLog) Entries(symbol string) []models.RegimeHistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.RegimeHistoryEntry(nil), l.history[symbol]...)
}

// Last returns the most recent entry for symbol.
func (l *EventLog) Last(symbol string) (models.RegimeHistoryEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h := l.history[symbol]
	if len(h) == 0 {
		return models.RegimeHistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// History returns up to limit of the newest entries in chronological order.
// Metrics are stripped unless includeMetrics is set.
func (l *EventLog) History(symbol string, limit int, includeMetrics bool) []models.RegimeHistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h := l.history[symbol]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]models.RegimeHistoryEntry, len(h))
	for i, e := range h {
		out[i] = e
		if !includeMetrics || e.Metrics == nil {
			out[i].Metrics = nil
			continue
		}
		m := *e.Metrics
		out[i].Metrics = &m
	}
	return out
}

// ConfidencePercentile ranks confidence against the confidences held in history.
func ConfidencePercentile(history []models.RegimeHistoryEntry, confidence float64) float64 {
	ref := make([]float64, len(history))
	for i, e := range history {
		ref[i] = e.Confidence
	}
	return percentileRank(confidence, ref)
}

// NewChangeEvent builds the durable record for a confirmed change from old to the result's regime.
func NewChangeEvent(res *models.DetectionResult, old models.Regime, percentile float64) (models.RegimeChangeEvent, error) {
	indicators, err := json.Marshal(res.Timeframes)
	if err != nil {
		return models.RegimeChangeEvent{}, fmt.Errorf("failed to marshal indicator snapshot: %w", err)
	}
	return models.RegimeChangeEvent{
		EventID:              uuid.NewString(),
		EventType:            models.RegimeEventType,
		Timestamp:            res.Timestamp,
		Symbol:               res.Symbol,
		SessionTag:           models.SessionAt(res.Timestamp),
		OldRegime:            old,
		NewRegime:            res.Regime,
		Confidence:           res.Confidence,
		ConfidencePercentile: percentile,
		ATRRatio:             res.ATRRatio,
		BBWidthRatio:         res.BBWidthRatio,
		ADX:                  res.ADX,
		Transition:           fmt.Sprintf("%s->%s", old, res.Regime),
		Indicators:           indicators,
		CreatedAt:            time.Now().UTC(),
	}, nil
}
