package regime

import (
	"fmt"
	"math"
	"strings"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// Composite holds the weighted multi-timeframe values fed to the basic classifier.
type Composite struct {
	ATRRatio        float64
	BBWidthRatio    float64
	ADX             float64
	VolumeConfirmed bool
}

// BasicClassifier tallies volatile/stable votes over composite ATR ratio, BB width ratio and ADX.
type BasicClassifier struct {
	cfg Config
}

// NewBasicClassifier builds a classifier with cfg thresholds.
func NewBasicClassifier(cfg Config) *BasicClassifier {
	return &BasicClassifier{cfg: cfg.withDefaults()}
}

// Votes returns the volatile and stable vote totals.
func (c *BasicClassifier) Votes(in Composite) (volatile, stable float64) {
	if in.ATRRatio >= c.cfg.ATRVolatile {
		volatile++
	}
	if in.BBWidthRatio >= c.cfg.BBVolatile {
		volatile++
	}
	if in.ATRRatio <= c.cfg.ATRStable {
		stable++
	}
	if in.BBWidthRatio <= c.cfg.BBStable {
		stable++
	}
	if in.ADX >= c.cfg.ADXTrending && in.ATRRatio >= c.cfg.ATRStable {
		volatile += 0.5
	}
	if in.ADX <= c.cfg.ADXRanging {
		stable += 0.5
	}
	return volatile, stable
}

// Classify returns VOLATILE, STABLE or TRANSITIONAL.
func (c *BasicClassifier) Classify(in Composite) models.Regime {
	volatile, stable := c.Votes(in)
	switch {
	case volatile >= 2 && in.VolumeConfirmed:
		return models.RegimeVolatile
	case stable >= 2:
		return models.RegimeStable
	default:
		return models.RegimeTransitional
	}
}

// direction is the per-timeframe volatile/stable lean used for agreement scoring.
func (c *BasicClassifier) direction(ind *models.TimeframeIndicators) int {
	switch {
	case ind.ATRRatio >= c.cfg.ATRVolatile || ind.BBWidthRatio >= c.cfg.BBVolatile:
		return 1
	case ind.ATRRatio <= c.cfg.ATRStable && ind.BBWidthRatio <= c.cfg.BBStable:
		return -1
	default:
		return 0
	}
}

// ratioScore is ~60 between the thresholds and rises toward 100 the further the
// ratio sits beyond either threshold.
func ratioScore(r, stable, volatile float64) float64 {
	const mid = 60.0
	switch {
	case r >= volatile:
		return mid + math.Min(40, (r-volatile)/volatile*200)
	case r <= stable:
		return mid + math.Min(40, (stable-r)/stable*200)
	default:
		return mid
	}
}

// Confidence blends threshold distance, trend strength, volume and timeframe agreement into [0,100].
func (c *BasicClassifier) Confidence(in Composite, perTF map[models.Timeframe]*models.TimeframeIndicators) float64 {
	score := (ratioScore(in.ATRRatio, c.cfg.ATRStable, c.cfg.ATRVolatile) +
		ratioScore(in.BBWidthRatio, c.cfg.BBStable, c.cfg.BBVolatile)) / 2

	if in.ADX > c.cfg.ADXTrending {
		score += math.Min(10, (in.ADX-c.cfg.ADXTrending)*0.5)
	}

	if in.VolumeConfirmed {
		score += 10
	} else {
		score -= 10
	}

	if len(perTF) < len(models.Timeframes) {
		score -= 5
	} else {
		first, agree := 0, true
		for i, tf := range models.Timeframes {
			d := c.direction(perTF[tf])
			if i == 0 {
				first = d
			}
			if d == 0 || d != first {
				agree = false
			}
		}
		if agree {
			score += 10
		}
	}

	return clamp(score, 0, 100)
}

// Reasoning renders a deterministic audit string for a detection.
func Reasoning(in Composite, perTF map[models.Timeframe]*models.TimeframeIndicators, proposal, confirmed models.Regime, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "regime=%s proposed=%s atr_ratio=%.3f bb_width_ratio=%.3f adx=%.1f volume_confirmed=%t",
		confirmed, proposal, in.ATRRatio, in.BBWidthRatio, in.ADX, in.VolumeConfirmed)
	for _, tf := range models.Timeframes {
		ind, ok := perTF[tf]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "; %s[atr=%.3f(%s) bb=%.3f(%s) adx=%.1f vol=%.2f]",
			tf, ind.ATRRatio, ind.ATR50Source, ind.BBWidthRatio, ind.BandsSource, ind.ADX, ind.VolumeRatio)
	}
	for _, n := range notes {
		b.WriteString("; ")
		b.WriteString(n)
	}
	return b.String()
}
