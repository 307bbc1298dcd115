package models

import (
	"time"
)

// Provenance records which strategy produced a derived indicator value.
type Provenance string

const (
	ProvenanceProvided   Provenance = "provided"
	ProvenanceRecomputed Provenance = "recomputed"
	ProvenanceEstimated  Provenance = "estimated"
	ProvenanceDefault    Provenance = "default"
)

// TimeframeIndicators is the per-timeframe breakdown reported in a DetectionResult.
type TimeframeIndicators struct {
	Timeframe       Timeframe  `json:"timeframe"`
	ATR14           float64    `json:"atr14"`
	ATR50           float64    `json:"atr50"`
	ATRRatio        float64    `json:"atr_ratio"`
	BBWidth         float64    `json:"bb_width"`
	BBWidthRatio    float64    `json:"bb_width_ratio"`
	ADX             float64    `json:"adx"`
	VolumeRatio     float64    `json:"volume_ratio"`
	VolumeConfirmed bool       `json:"volume_confirmed"`
	ATR14Source     Provenance `json:"atr14_source"`
	ATR50Source     Provenance `json:"atr50_source"`
	BandsSource     Provenance `json:"bands_source"`
	BaselineSource  Provenance `json:"baseline_source"`
}

// ATRTrend is the regression slope of recent ATR14 samples.
type ATRTrend struct {
	Slope           float64 `json:"slope"`
	SlopePct        float64 `json:"slope_pct"`
	IsDeclining     bool    `json:"is_declining"`
	IsAboveBaseline bool    `json:"is_above_baseline"`
	Samples         int     `json:"samples"`
}

// BBWidthTrend describes Bollinger width compression/expansion.
type BBWidthTrend struct {
	CurrentWidth  float64 `json:"current_width"`
	Slope         float64 `json:"slope"`
	Percentile    float64 `json:"percentile"`
	IsNarrow      bool    `json:"is_narrow"`
	IsExpanding   bool    `json:"is_expanding"`
	IsContracting bool    `json:"is_contracting"`
}

// WickVariance compares wick-ratio variance of the latest ten samples with the ten before.
type WickVariance struct {
	CurrentRatio     float64 `json:"current_ratio"`
	RecentVariance   float64 `json:"recent_variance"`
	PreviousVariance float64 `json:"previous_variance"`
	ChangePct        float64 `json:"change_pct"`
	IsIncreasing     bool    `json:"is_increasing"`
}

// IntrabarVolatility compares range/body of the latest bar with the prior bar.
type IntrabarVolatility struct {
	Current     float64 `json:"current"`
	Previous    float64 `json:"previous"`
	IncreasePct float64 `json:"increase_pct"`
	IsRising    bool    `json:"is_rising"`
}

// WhipsawInfo counts close-to-close direction reversals.
type WhipsawInfo struct {
	DirectionChanges int  `json:"direction_changes"`
	IsWhipsaw        bool `json:"is_whipsaw"`
	TightOscillation bool `json:"tight_oscillation"`
}

// MeanReversionPattern counts closes touching VWAP or EMA-200.
type MeanReversionPattern struct {
	VWAP            float64 `json:"vwap"`
	EMA200          float64 `json:"ema200"`
	VWAPTouches     int     `json:"vwap_touches"`
	EMATouches      int     `json:"ema_touches"`
	Touches         int     `json:"touches"`
	IsMeanReverting bool    `json:"is_mean_reverting"`
}

// VolatilitySpike compares the current ATR14 to its rolling baseline.
type VolatilitySpike struct {
	CurrentATR     float64    `json:"current_atr"`
	Baseline       float64    `json:"baseline"`
	BaselineSource Provenance `json:"baseline_source"`
	Ratio          float64    `json:"ratio"`
	IsSpike        bool       `json:"is_spike"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	SpikeATR       float64    `json:"spike_atr,omitempty"`
	MinutesSince   float64    `json:"minutes_since"`
	IsResolving    bool       `json:"is_resolving"`
}

// SessionTransition reports membership of one of the session handoff windows.
type SessionTransition struct {
	InTransition bool       `json:"in_transition"`
	Type         string     `json:"type,omitempty"`
	MinutesInto  float64    `json:"minutes_into"`
	Session      SessionTag `json:"session"`
}

// BreakoutInfo is the answer to "how long since the last breakout".
type BreakoutInfo struct {
	Minutes         float64      `json:"minutes"`
	Type            BreakoutType `json:"type"`
	Price           float64      `json:"price"`
	IsRecent        bool         `json:"is_recent"`
	VolumeConfirmed bool         `json:"volume_confirmed"`
}

// Evidence is the supporting signal bundle for one timeframe.
type Evidence struct {
	ATRTrend           *ATRTrend             `json:"atr_trend,omitempty"`
	BBWidthTrend       *BBWidthTrend         `json:"bb_width_trend,omitempty"`
	WickVariance       *WickVariance         `json:"wick_variance,omitempty"`
	IntrabarVolatility *IntrabarVolatility   `json:"intrabar_volatility,omitempty"`
	Whipsaw            *WhipsawInfo          `json:"whipsaw,omitempty"`
	MeanReversion      *MeanReversionPattern `json:"mean_reversion,omitempty"`
	VolatilitySpike    *VolatilitySpike      `json:"volatility_spike,omitempty"`
	TimeSinceBreakout  *BreakoutInfo         `json:"time_since_breakout,omitempty"`
}
