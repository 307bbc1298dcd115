package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// RegimeProvider is the contract risk, strategy and validation layers consume.
type RegimeProvider interface {
	Detect(ctx context.Context, symbol string, data models.TimeframeData, now time.Time) *models.DetectionResult
	GetRegimeHistory(symbol string, limit int, includeMetrics bool) []models.RegimeHistoryEntry
	GetTimeSinceBreakout(ctx context.Context, symbol string, tf models.Timeframe, now time.Time) (*models.BreakoutInfo, bool)
}

// RegimeSnapshot represents the latest regime of a symbol for API responses
type RegimeSnapshot struct {
	Symbol       string          `json:"symbol"`
	Regime       models.Regime   `json:"regime"`
	Confidence   decimal.Decimal `json:"confidence"`
	ATRRatio     decimal.Decimal `json:"atr_ratio"`
	BBWidthRatio decimal.Decimal `json:"bb_width_ratio"`
	ADX          decimal.Decimal `json:"adx"`
	Timestamp    time.Time       `json:"timestamp"`
}

// RegimeSnapshotInterface defines the read accessors consumers rely on
type RegimeSnapshotInterface interface {
	GetSymbol() string
	GetRegime() models.Regime
	GetConfidence() float64
	GetTimestamp() time.Time
	IsAdvanced() bool
}

// NewRegimeSnapshot converts a published summary, rounding ratios to four places.
func NewRegimeSnapshot(s models.RegimeSummary) *RegimeSnapshot {
	return &RegimeSnapshot{
		Symbol:       s.Symbol,
		Regime:       s.Regime,
		Confidence:   decimal.NewFromFloat(s.Confidence).Round(2),
		ATRRatio:     decimal.NewFromFloat(s.ATRRatio).Round(4),
		BBWidthRatio: decimal.NewFromFloat(s.BBWidthRatio).Round(4),
		ADX:          decimal.NewFromFloat(s.ADX).Round(2),
		Timestamp:    s.Timestamp,
	}
}

// GetSymbol returns the symbol
func (rs *RegimeSnapshot) GetSymbol() string {
	return rs.Symbol
}

// GetRegime returns the confirmed regime
func (rs *RegimeSnapshot) GetRegime() models.Regime {
	return rs.Regime
}

// GetConfidence returns the confidence as float64
func (rs *RegimeSnapshot) GetConfidence() float64 {
	return rs.Confidence.InexactFloat64()
}

// GetTimestamp returns the timestamp
func (rs *RegimeSnapshot) GetTimestamp() time.Time {
	return rs.Timestamp
}

// IsAdvanced reports whether the regime is one of the pattern regimes.
func (rs *RegimeSnapshot) IsAdvanced() bool {
	return rs.Regime.IsAdvanced()
}
