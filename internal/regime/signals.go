package regime

import (
	"math"
	"time"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// ATRRatio returns atr14/atr50, or 1 when atr50 is unknown.
func ATRRatio(atr14, atr50 float64) float64 {
	if atr50 <= 0 {
		return 1
	}
	return atr14 / atr50
}

// BBWidthTrendFor derives Bollinger width slope and percentile from the close history.
// It needs at least 30 bars.
func BBWidthTrendFor(snap *models.TimeframeSnapshot) (*models.BBWidthTrend, bool) {
	if snap == nil || len(snap.Bars) < bbTrendMinBars {
		return nil, false
	}
	widths := bollingerWidths(snap.Closes())
	if len(widths) > bbTrendWindow+bbPeriod {
		widths = widths[len(widths)-(bbTrendWindow+bbPeriod):]
	}
	if snap.HasBands() {
		widths[len(widths)-1] = bands{snap.BBUpper, snap.BBMiddle, snap.BBLower}.width()
	}
	if len(widths) < bbTrendWindow+1 {
		return nil, false
	}

	recent := widths[len(widths)-bbTrendWindow:]
	xs := make([]float64, len(recent))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope := linearSlope(xs, recent)

	current := widths[len(widths)-1]
	ref := widths[:len(widths)-1]
	if len(ref) > bbPeriod {
		ref = ref[len(ref)-bbPeriod:]
	}
	pct := percentileRank(current, ref)

	return &models.BBWidthTrend{
		CurrentWidth:  current,
		Slope:         slope,
		Percentile:    pct,
		IsNarrow:      pct < bbNarrowPercentile,
		IsExpanding:   slope > 0,
		IsContracting: slope < 0,
	}, true
}

// WickRatio is total wick length over body length; zero for a bodiless bar.
func WickRatio(b models.Bar) float64 {
	body := b.Body()
	if body == 0 {
		return 0
	}
	upper := b.High - math.Max(b.Open, b.Close)
	lower := math.Min(b.Open, b.Close) - b.Low
	return (upper + lower) / body
}

// WickVarianceFor compares the variance of the latest ten wick ratios with the ten before.
// It needs twenty samples.
func WickVarianceFor(samples []WickSample) (*models.WickVariance, bool) {
	if len(samples) < 2*wickCompareWindow {
		return nil, false
	}
	tail := samples[len(samples)-2*wickCompareWindow:]
	prev := make([]float64, wickCompareWindow)
	recent := make([]float64, wickCompareWindow)
	for i := 0; i < wickCompareWindow; i++ {
		prev[i] = tail[i].Ratio
		recent[i] = tail[wickCompareWindow+i].Ratio
	}
	pv, rv := variance(prev), variance(recent)

	change := 0.0
	switch {
	case pv > 0:
		change = (rv - pv) / pv * 100
	case rv > 0:
		change = 100
	}

	return &models.WickVariance{
		CurrentRatio:     tail[len(tail)-1].Ratio,
		RecentVariance:   rv,
		PreviousVariance: pv,
		ChangePct:        change,
		IsIncreasing:     rv > pv,
	}, true
}

// ATRTrendFor regresses the last five ATR14 samples against elapsed time measured
// in bars of tf. It needs five samples.
func ATRTrendFor(history []ATRSample, tf models.Timeframe, atr14, atr50 float64) (*models.ATRTrend, bool) {
	if len(history) < atrSlopeSamples {
		return nil, false
	}
	recent := history[len(history)-atrSlopeSamples:]
	period := tf.Period().Seconds()
	origin := recent[0].Timestamp

	xs := make([]float64, len(recent))
	ys := make([]float64, len(recent))
	for i, s := range recent {
		xs[i] = s.Timestamp.Sub(origin).Seconds() / period
		ys[i] = s.ATR14
	}
	if xs[len(xs)-1] == 0 {
		// identical timestamps: fall back to sample order
		for i := range xs {
			xs[i] = float64(i)
		}
	}
	slope := linearSlope(xs, ys)

	slopePct := 0.0
	if atr14 > 0 {
		slopePct = slope / atr14 * 100
	}

	return &models.ATRTrend{
		Slope:           slope,
		SlopePct:        slopePct,
		IsDeclining:     slopePct < 0,
		IsAboveBaseline: atr50 > 0 && atr14 > atrBaselineFactor*atr50,
		Samples:         len(recent),
	}, true
}

func intrabarRatio(b models.Bar) float64 {
	body := b.Body()
	if body == 0 {
		return 0
	}
	return b.Range() / body
}

// IntrabarVolatilityFor compares (high-low)/|close-open| of the latest bar with the prior bar.
func IntrabarVolatilityFor(bars []models.Bar) (*models.IntrabarVolatility, bool) {
	if len(bars) < 2 {
		return nil, false
	}
	cur := intrabarRatio(bars[len(bars)-1])
	prev := intrabarRatio(bars[len(bars)-2])
	inc := 0.0
	if prev > 0 {
		inc = (cur - prev) / prev * 100
	}
	return &models.IntrabarVolatility{
		Current:     cur,
		Previous:    prev,
		IncreasePct: inc,
		IsRising:    cur > prev,
	}, true
}

// WhipsawFor counts direction reversals across the last six closes.
func WhipsawFor(closes []float64) (*models.WhipsawInfo, bool) {
	if len(closes) < whipsawWindow+1 {
		return nil, false
	}
	window := closes[len(closes)-(whipsawWindow+1):]

	changes := 0
	lastDir := 0
	for i := 1; i < len(window); i++ {
		dir := 0
		switch {
		case window[i] > window[i-1]:
			dir = 1
		case window[i] < window[i-1]:
			dir = -1
		}
		if dir == 0 {
			continue
		}
		if lastDir != 0 && dir != lastDir {
			changes++
		}
		lastDir = dir
	}

	tight := false
	rng := maxOf(window) - minOf(window)
	if rng > 0 {
		m := mean(window)
		dev := 0.0
		for _, c := range window {
			dev += math.Abs(c - m)
		}
		dev /= float64(len(window))
		tight = dev < tightOscillation*rng
	}

	return &models.WhipsawInfo{
		DirectionChanges: changes,
		IsWhipsaw:        changes >= whipsawMinChanges,
		TightOscillation: tight,
	}, true
}

type sessionWindow struct {
	centerHour int
	name       string
}

var sessionWindows = []sessionWindow{
	{7, "ASIA_TO_LONDON"},
	{13, "LONDON_TO_NY"},
	{21, "NY_TO_ASIA"},
}

// SessionTransitionAt tests now against the +/-15 minute handoff windows at 07:00, 13:00 and 21:00 UTC.
func SessionTransitionAt(now time.Time) models.SessionTransition {
	utc := now.UTC()
	info := models.SessionTransition{Session: models.SessionAt(utc)}
	day := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	for _, w := range sessionWindows {
		center := day.Add(time.Duration(w.centerHour) * time.Hour)
		start := center.Add(-sessionWindowHalfWidth)
		end := center.Add(sessionWindowHalfWidth)
		if !utc.Before(start) && !utc.After(end) {
			info.InTransition = true
			info.Type = w.name
			info.MinutesInto = utc.Sub(start).Minutes()
			return info
		}
	}
	return info
}

// MeanReversionFor counts closes in the last ten bars lying within 0.5 x ATR14 of
// either VWAP or EMA-200. It needs 200 bars.
func MeanReversionFor(snap *models.TimeframeSnapshot, atr14 float64) (*models.MeanReversionPattern, bool) {
	if snap == nil || atr14 <= 0 {
		return nil, false
	}
	need := meanReversionEMA
	if meanReversionWindow > need {
		need = meanReversionWindow
	}
	if len(snap.Bars) < need {
		return nil, false
	}
	closes := snap.Closes()
	ema, ok := emaLast(closes, meanReversionEMA)
	if !ok {
		return nil, false
	}
	vw := vwap(snap.Bars, snap.Volumes())

	band := meanReversionTouchATR * atr14
	p := &models.MeanReversionPattern{VWAP: vw, EMA200: ema}
	for _, c := range closes[len(closes)-meanReversionWindow:] {
		nearVWAP := math.Abs(c-vw) <= band
		nearEMA := math.Abs(c-ema) <= band
		if nearVWAP {
			p.VWAPTouches++
		}
		if nearEMA {
			p.EMATouches++
		}
		if nearVWAP || nearEMA {
			p.Touches++
		}
	}
	p.IsMeanReverting = p.Touches >= meanReversionMinTouch
	return p, true
}

// SpikeBaseline picks the median of prior cached ATR14 samples, then atr50, then atr14 itself.
func SpikeBaseline(prior []ATRSample, atr14, atr50 float64) (float64, models.Provenance) {
	return firstValue(
		valueSource{models.ProvenanceRecomputed, func() (float64, bool) {
			if len(prior) == 0 {
				return 0, false
			}
			window := prior
			if len(window) > DefaultTrackingWindow {
				window = window[len(window)-DefaultTrackingWindow:]
			}
			vals := make([]float64, len(window))
			for i, s := range window {
				vals[i] = s.ATR14
			}
			m := median(vals)
			return m, m > 0
		}},
		valueSource{models.ProvenanceProvided, func() (float64, bool) {
			return atr50, atr50 > 0
		}},
		valueSource{models.ProvenanceEstimated, func() (float64, bool) {
			return atr14, atr14 > 0
		}},
	)
}

// FlareResolving reports whether a recorded spike is fading: inside the first 30 minutes
// ATR must have dropped more than 20% from the spike value, afterwards it must sit below
// 80% of it. Otherwise the expansion is treated as sustained.
func FlareResolving(spike SpikeRecord, now time.Time, currentATR float64) bool {
	if spike.ATR <= 0 {
		return true
	}
	elapsed := now.Sub(spike.Timestamp)
	if elapsed <= flareWindow {
		decline := (spike.ATR - currentATR) / spike.ATR
		return decline > 1-flareDeclineFraction
	}
	return currentATR < flareDeclineFraction*spike.ATR
}

// breakoutCandidate is the outcome of the 20-close range test on the latest bar.
type breakoutCandidate struct {
	kind            models.BreakoutType
	price           float64
	timestamp       time.Time
	volumeConfirmed bool
}

// detectBreakout tests the latest close against the prior 20-close range.
// The previous close must not have broken its own prior range.
func detectBreakout(snap *models.TimeframeSnapshot, now time.Time) (*breakoutCandidate, bool) {
	if snap == nil || len(snap.Bars) < breakoutLookback+1 {
		return nil, false
	}
	closes := snap.Closes()
	n := len(closes)
	cur, prev := closes[n-1], closes[n-2]

	prior := closes[n-1-breakoutLookback : n-1]
	priorHigh, priorLow := maxOf(prior), minOf(prior)

	prevStart := n - 2 - breakoutLookback
	if prevStart < 0 {
		prevStart = 0
	}
	prevWindow := closes[prevStart : n-2]
	prevBroke := func(up bool) bool {
		if len(prevWindow) == 0 {
			return false
		}
		if up {
			return prev > maxOf(prevWindow)
		}
		return prev < minOf(prevWindow)
	}

	var kind models.BreakoutType
	switch {
	case cur > priorHigh && !prevBroke(true):
		kind = models.BreakoutBullish
	case cur < priorLow && !prevBroke(false):
		kind = models.BreakoutBearish
	default:
		return nil, false
	}

	ts := snap.Bars[n-1].Timestamp
	if ts.IsZero() {
		ts = now
	}
	_, confirmed := VolumeRatio(snap.Volumes(), breakoutVolumeFactor)
	return &breakoutCandidate{kind: kind, price: cur, timestamp: ts, volumeConfirmed: confirmed}, true
}

// VolumeRatio compares the latest volume with the average of the 20 before it and
// reports whether it reaches factor. Missing volume data counts as confirmed.
func VolumeRatio(volumes []float64, factor float64) (float64, bool) {
	if len(volumes) < 2 {
		return 1, true
	}
	cur := volumes[len(volumes)-1]
	prior := volumes[:len(volumes)-1]
	if len(prior) > breakoutLookback {
		prior = prior[len(prior)-breakoutLookback:]
	}
	avg := mean(prior)
	if avg <= 0 {
		return 1, true
	}
	ratio := cur / avg
	return ratio, ratio >= factor
}
