package models

import (
	"time"
)

// Bar is a single OHLCV candle
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// TimeframeSnapshot is the per-timeframe input supplied by the market data provider.
// Zero indicator values mean "absent"; the engine falls back to recomputation or estimates.
type TimeframeSnapshot struct {
	Bars     []Bar     `json:"bars"`
	ATR14    float64   `json:"atr14"`
	ATR50    float64   `json:"atr50"`
	BBUpper  float64   `json:"bb_upper"`
	BBMiddle float64   `json:"bb_middle"`
	BBLower  float64   `json:"bb_lower"`
	ADX      float64   `json:"adx"`
	Volume   []float64 `json:"volume,omitempty"`
}

// Closes extracts the close series.
func (s *TimeframeSnapshot) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes returns the explicit volume series when supplied, otherwise the bar volumes.
// An all-zero series is reported as empty.
func (s *TimeframeSnapshot) Volumes() []float64 {
	if len(s.Volume) > 0 {
		return s.Volume
	}
	vols := make([]float64, len(s.Bars))
	any := false
	for i, b := range s.Bars {
		vols[i] = b.Volume
		if b.Volume > 0 {
			any = true
		}
	}
	if !any {
		return nil
	}
	return vols
}

// HasBands reports whether Bollinger values were supplied.
func (s *TimeframeSnapshot) HasBands() bool {
	return s.BBMiddle > 0 && s.BBUpper > s.BBLower
}

// LastBar returns the most recent bar.
func (s *TimeframeSnapshot) LastBar() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// TimeframeData maps each present timeframe to its snapshot.
type TimeframeData map[Timeframe]*TimeframeSnapshot

// Present returns the timeframes with a non-nil snapshot in evaluation order.
func (d TimeframeData) Present() []Timeframe {
	present := make([]Timeframe, 0, len(Timeframes))
	for _, tf := range Timeframes {
		if snap, ok := d[tf]; ok && snap != nil {
			present = append(present, tf)
		}
	}
	return present
}
