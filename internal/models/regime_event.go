package models

import (
	"encoding/json"
	"time"
)

// BreakoutType is the direction of a range breakout.
type BreakoutType string

const (
	BreakoutBullish BreakoutType = "BULLISH"
	BreakoutBearish BreakoutType = "BEARISH"
)

// BreakoutEvent is a durable record of a detected breakout.
// At most one row per (symbol, timeframe) has IsActive set. VolumeConfirmed is set when
// breakout volume reached 1.5x the 20-bar average or no volume was supplied.
type BreakoutEvent struct {
	ID              int64        `json:"id" db:"id"`
	Symbol          string       `json:"symbol" db:"symbol"`
	Timeframe       Timeframe    `json:"timeframe" db:"timeframe"`
	Type            BreakoutType `json:"breakout_type" db:"breakout_type"`
	Price           float64      `json:"breakout_price" db:"breakout_price"`
	Timestamp       time.Time    `json:"breakout_timestamp" db:"breakout_timestamp"`
	VolumeConfirmed bool         `json:"volume_confirmed" db:"volume_confirmed"`
	IsActive        bool         `json:"is_active" db:"is_active"`
	InvalidatedAt   *time.Time   `json:"invalidated_at,omitempty" db:"invalidated_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// RegimeEventType is the event_type column value for confirmed regime changes.
const RegimeEventType = "REGIME_CHANGE"

// RegimeChangeEvent is appended whenever the confirmed regime of a symbol changes.
type RegimeChangeEvent struct {
	ID                   int64           `json:"id" db:"id"`
	EventID              string          `json:"event_id" db:"event_id"`
	EventType            string          `json:"event_type" db:"event_type"`
	Timestamp            time.Time       `json:"timestamp" db:"timestamp"`
	Symbol               string          `json:"symbol" db:"symbol"`
	SessionTag           SessionTag      `json:"session_tag" db:"session_tag"`
	OldRegime            Regime          `json:"old_regime" db:"old_regime"`
	NewRegime            Regime          `json:"new_regime" db:"new_regime"`
	Confidence           float64         `json:"confidence" db:"confidence"`
	ConfidencePercentile float64         `json:"confidence_percentile" db:"confidence_percentile"`
	ATRRatio             float64         `json:"atr_ratio" db:"atr_ratio"`
	BBWidthRatio         float64         `json:"bb_width_ratio" db:"bb_width_ratio"`
	ADX                  float64         `json:"adx" db:"adx"`
	Transition           string          `json:"transition" db:"transition"`
	Indicators           json.RawMessage `json:"indicators" db:"indicators_json"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// HistoryMetrics are the detailed composite values kept alongside a history entry.
type HistoryMetrics struct {
	ATRRatio        float64 `json:"atr_ratio"`
	BBWidthRatio    float64 `json:"bb_width_ratio"`
	ADX             float64 `json:"adx"`
	VolumeConfirmed bool    `json:"volume_confirmed"`
	Proposed        Regime  `json:"proposed"`
}

// RegimeHistoryEntry is one in-memory confirmed-regime record per detection call.
type RegimeHistoryEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Regime     Regime          `json:"regime"`
	Confidence float64         `json:"confidence"`
	Metrics    *HistoryMetrics `json:"metrics,omitempty"`
}

// DetectionResult is the immutable output of a single detection call.
type DetectionResult struct {
	Symbol            string                             `json:"symbol"`
	Regime            Regime                             `json:"regime"`
	ProposedRegime    Regime                             `json:"proposed_regime"`
	Confidence        float64                            `json:"confidence"`
	ATRRatio          float64                            `json:"atr_ratio"`
	BBWidthRatio      float64                            `json:"bb_width_ratio"`
	ADX               float64                            `json:"adx"`
	VolumeConfirmed   bool                               `json:"volume_confirmed"`
	Timeframes        map[Timeframe]*TimeframeIndicators `json:"timeframes"`
	Evidence          map[Timeframe]*Evidence            `json:"evidence"`
	SessionTransition SessionTransition                  `json:"session_transition"`
	Changed           bool                               `json:"changed"`
	Reasoning         string                             `json:"reasoning"`
	Timestamp         time.Time                          `json:"timestamp"`
}

// RegimeSummary is the compact form published for confluence consumers.
type RegimeSummary struct {
	Symbol       string    `json:"symbol"`
	Regime       Regime    `json:"regime"`
	Confidence   float64   `json:"confidence"`
	ATRRatio     float64   `json:"atr_ratio"`
	BBWidthRatio float64   `json:"bb_width_ratio"`
	ADX          float64   `json:"adx"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summary projects a result onto its published form.
func (r *DetectionResult) Summary() RegimeSummary {
	return RegimeSummary{
		Symbol:       r.Symbol,
		Regime:       r.Regime,
		Confidence:   r.Confidence,
		ATRRatio:     r.ATRRatio,
		BBWidthRatio: r.BBWidthRatio,
		ADX:          r.ADX,
		Timestamp:    r.Timestamp,
	}
}

// RegimeAlert is the payload delivered to the notification sink when an advanced regime is confirmed.
type RegimeAlert struct {
	Symbol            string     `json:"symbol"`
	Regime            Regime     `json:"regime"`
	Confidence        float64    `json:"confidence"`
	SessionTag        SessionTag `json:"session_tag"`
	ATRRatio          float64    `json:"atr_ratio"`
	BBWidthRatio      float64    `json:"bb_width_ratio"`
	RecommendedAction string     `json:"recommended_action"`
	Timestamp         time.Time  `json:"timestamp"`
}

// RecommendedAction returns the operator guidance text for an advanced regime.
func RecommendedAction(r Regime) string {
	switch r {
	case RegimePreBreakoutTension:
		return "Compression building: prepare breakout orders, tighten entries."
	case RegimePostBreakoutDecay:
		return "Breakout momentum fading: trail stops, avoid fresh continuation entries."
	case RegimeFragmentedChop:
		return "Choppy mean-reverting tape: reduce size or stand aside."
	case RegimeSessionSwitchFlare:
		return "Session handoff flare: widen stops, wait for volatility to settle."
	case RegimeVolatile:
		return "Elevated volatility: reduce size and widen stops."
	case RegimeTransitional:
		return "Mixed signals: trade selectively."
	case RegimeStable:
		return "Normal conditions."
	default:
		return ""
	}
}
