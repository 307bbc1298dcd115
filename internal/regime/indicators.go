package regime

import (
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// valueSource is one step of an ordered fallback chain for a derived value.
type valueSource struct {
	provenance models.Provenance
	resolve    func() (float64, bool)
}

// firstValue walks sources in order and returns the first value that resolves.
func firstValue(sources ...valueSource) (float64, models.Provenance) {
	for _, src := range sources {
		if v, ok := src.resolve(); ok {
			return v, src.provenance
		}
	}
	return 0, models.ProvenanceDefault
}

type bands struct {
	upper, middle, lower float64
}

func (b bands) width() float64 {
	if b.middle <= 0 {
		return 0
	}
	return (b.upper - b.lower) / b.middle
}

type bandSource struct {
	provenance models.Provenance
	resolve    func() (bands, bool)
}

func firstBands(sources ...bandSource) (bands, models.Provenance) {
	for _, src := range sources {
		if b, ok := src.resolve(); ok {
			return b, src.provenance
		}
	}
	return bands{}, models.ProvenanceDefault
}

// resolveATR14 prefers the provided value, then an ATR recomputed from bars.
func resolveATR14(snap *models.TimeframeSnapshot) (float64, models.Provenance) {
	return firstValue(
		valueSource{models.ProvenanceProvided, func() (float64, bool) {
			return snap.ATR14, snap.ATR14 > 0
		}},
		valueSource{models.ProvenanceRecomputed, func() (float64, bool) {
			v := atrFromBars(snap.Bars)
			return v, v > 0
		}},
	)
}

// resolveATR50 prefers the provided value, then 0.9 x atr14.
func resolveATR50(snap *models.TimeframeSnapshot, atr14 float64) (float64, models.Provenance) {
	return firstValue(
		valueSource{models.ProvenanceProvided, func() (float64, bool) {
			return snap.ATR50, snap.ATR50 > 0
		}},
		valueSource{models.ProvenanceEstimated, func() (float64, bool) {
			return atr14 * atr50EstimateFactor, atr14 > 0
		}},
	)
}

// resolveBands prefers provided Bollinger values, then recomputes them from closes.
func resolveBands(snap *models.TimeframeSnapshot) (bands, models.Provenance) {
	return firstBands(
		bandSource{models.ProvenanceProvided, func() (bands, bool) {
			return bands{snap.BBUpper, snap.BBMiddle, snap.BBLower}, snap.HasBands()
		}},
		bandSource{models.ProvenanceRecomputed, func() (bands, bool) {
			series := bollinger(snap.Closes())
			if len(series) == 0 {
				return bands{}, false
			}
			return series[len(series)-1], true
		}},
	)
}

// resolveWidthBaseline returns the median historical width or the fixed 2% fallback.
func resolveWidthBaseline(snap *models.TimeframeSnapshot) (float64, models.Provenance) {
	return firstValue(
		valueSource{models.ProvenanceRecomputed, func() (float64, bool) {
			if len(snap.Bars) < bbPeriod {
				return 0, false
			}
			m := median(bollingerWidths(snap.Closes()))
			return m, m > 0
		}},
		valueSource{models.ProvenanceDefault, func() (float64, bool) {
			return bbWidthFallback, true
		}},
	)
}

// bollinger computes SMA-20 +/- 2 sigma bands for each index with a full window.
func bollinger(closes []float64) []bands {
	if len(closes) < bbPeriod {
		return nil
	}
	sma := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](bbPeriod).Compute(helper.SliceToChan(closes)))
	// align from the end so the result does not depend on the library's idle period
	if len(sma) > len(closes)-bbPeriod+1 {
		sma = sma[len(sma)-(len(closes)-bbPeriod+1):]
	}
	offset := len(closes) - len(sma)
	out := make([]bands, 0, len(sma))
	for i, mid := range sma {
		end := offset + i + 1
		window := closes[end-bbPeriod : end]
		sd := stdDev(window, mid)
		out = append(out, bands{upper: mid + bbStdDev*sd, middle: mid, lower: mid - bbStdDev*sd})
	}
	return out
}

func bollingerWidths(closes []float64) []float64 {
	series := bollinger(closes)
	widths := make([]float64, len(series))
	for i, b := range series {
		widths[i] = b.width()
	}
	return widths
}

// atrFromBars recomputes ATR-14 from the bar history.
func atrFromBars(bars []models.Bar) float64 {
	if len(bars) < 15 {
		return 0
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	out := helper.ChanToSlice(volatility.NewAtr[float64]().Compute(
		helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes)))
	if len(out) == 0 {
		return 0
	}
	return out[len(out)-1]
}

// emaLast returns the final EMA value or false when there are fewer values than the period.
func emaLast(values []float64, period int) (float64, bool) {
	if len(values) < period {
		return 0, false
	}
	out := helper.ChanToSlice(trend.NewEmaWithPeriod[float64](period).Compute(helper.SliceToChan(values)))
	if len(out) == 0 {
		return 0, false
	}
	return out[len(out)-1], true
}

// vwap is the volume-weighted typical price over the whole bar history.
// Without volume it degrades to the mean typical price.
func vwap(bars []models.Bar, volumes []float64) float64 {
	var pv, vol, typical float64
	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3
		typical += tp
		if i < len(volumes) && volumes[i] > 0 {
			pv += tp * volumes[i]
			vol += volumes[i]
		}
	}
	if vol > 0 {
		return pv / vol
	}
	if len(bars) == 0 {
		return 0
	}
	return typical / float64(len(bars))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

func variance(values []float64) float64 {
	sd := stdDev(values, mean(values))
	return sd * sd
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// linearSlope is the least-squares slope of ys against xs.
func linearSlope(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	num, den := 0.0, 0.0
	for i := range xs {
		dx := xs[i] - mx
		num += dx * (ys[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// percentileRank is the share of ref strictly below current, in percent.
func percentileRank(current float64, ref []float64) float64 {
	if len(ref) == 0 {
		return 50
	}
	below := 0
	for _, v := range ref {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(ref)) * 100
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		if v < m {
			m = v
		}
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
