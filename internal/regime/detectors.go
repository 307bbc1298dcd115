package regime

import (
	"fmt"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// DetectorInput is the M15 evidence the advanced detectors evaluate.
type DetectorInput struct {
	Indicators *models.TimeframeIndicators
	Evidence   *models.Evidence
	Session    models.SessionTransition
}

// Detector is a compound predicate that either names its regime or stays silent.
type Detector interface {
	Regime() models.Regime
	Detect(in DetectorInput) (bool, string)
}

// PreBreakoutTension fires on narrow bands with rising wick variance and intrabar range
// while ATR stays compressed.
type PreBreakoutTension struct {
	ATRStable float64
}

func (PreBreakoutTension) Regime() models.Regime { return models.RegimePreBreakoutTension }

func (d PreBreakoutTension) Detect(in DetectorInput) (bool, string) {
	ev := in.Evidence
	if ev == nil || in.Indicators == nil || ev.BBWidthTrend == nil || ev.WickVariance == nil || ev.IntrabarVolatility == nil {
		return false, ""
	}
	if !ev.BBWidthTrend.IsNarrow {
		return false, ""
	}
	if !ev.WickVariance.IsIncreasing || ev.WickVariance.ChangePct < tensionWickChangePct {
		return false, ""
	}
	if !ev.IntrabarVolatility.IsRising || ev.IntrabarVolatility.IncreasePct < tensionIntrabarIncrease {
		return false, ""
	}
	if in.Indicators.ATRRatio >= d.ATRStable {
		return false, ""
	}
	return true, fmt.Sprintf("tension: bb_pct=%.1f wick_change=%.1f%% intrabar=+%.1f%%",
		ev.BBWidthTrend.Percentile, ev.WickVariance.ChangePct, ev.IntrabarVolatility.IncreasePct)
}

// PostBreakoutDecay fires shortly after a breakout while elevated ATR is rolling over.
type PostBreakoutDecay struct{}

func (PostBreakoutDecay) Regime() models.Regime { return models.RegimePostBreakoutDecay }

func (PostBreakoutDecay) Detect(in DetectorInput) (bool, string) {
	ev := in.Evidence
	if ev == nil || ev.TimeSinceBreakout == nil || ev.ATRTrend == nil {
		return false, ""
	}
	if !ev.TimeSinceBreakout.IsRecent {
		return false, ""
	}
	t := ev.ATRTrend
	if !t.IsDeclining || !t.IsAboveBaseline || t.SlopePct > decaySlopePct {
		return false, ""
	}
	return true, fmt.Sprintf("decay: %s breakout %.0fm ago, atr_slope=%.1f%%",
		ev.TimeSinceBreakout.Type, ev.TimeSinceBreakout.Minutes, t.SlopePct)
}

// FragmentedChop fires on repeated reversals around a mean with no trend.
type FragmentedChop struct{}

func (FragmentedChop) Regime() models.Regime { return models.RegimeFragmentedChop }

func (FragmentedChop) Detect(in DetectorInput) (bool, string) {
	ev := in.Evidence
	if ev == nil || in.Indicators == nil || ev.Whipsaw == nil || ev.MeanReversion == nil {
		return false, ""
	}
	if !ev.Whipsaw.IsWhipsaw || ev.Whipsaw.DirectionChanges < whipsawMinChanges {
		return false, ""
	}
	if !ev.MeanReversion.IsMeanReverting {
		return false, ""
	}
	if in.Indicators.ADX >= chopMaxADX {
		return false, ""
	}
	return true, fmt.Sprintf("chop: reversals=%d touches=%d adx=%.1f",
		ev.Whipsaw.DirectionChanges, ev.MeanReversion.Touches, in.Indicators.ADX)
}

// SessionSwitchFlare fires on an ATR spike inside a session handoff window that has
// not resolved after the first 30 minutes.
type SessionSwitchFlare struct{}

func (SessionSwitchFlare) Regime() models.Regime { return models.RegimeSessionSwitchFlare }

func (SessionSwitchFlare) Detect(in DetectorInput) (bool, string) {
	if !in.Session.InTransition {
		return false, ""
	}
	ev := in.Evidence
	if ev == nil || ev.VolatilitySpike == nil || !ev.VolatilitySpike.IsSpike {
		return false, ""
	}
	sp := ev.VolatilitySpike
	if sp.MinutesSince > flareWindow.Minutes() && sp.IsResolving {
		return false, ""
	}
	return true, fmt.Sprintf("flare: %s spike_ratio=%.2f", in.Session.Type, sp.Ratio)
}

// DetectorOutcome collects which advanced detectors fired in one call.
type DetectorOutcome struct {
	Fired                map[models.Regime]bool
	MinutesSinceBreakout float64
	HasBreakout          bool
	Notes                []string
}

// RunDetectors evaluates every detector against in.
func RunDetectors(detectors []Detector, in DetectorInput) DetectorOutcome {
	out := DetectorOutcome{Fired: make(map[models.Regime]bool, len(detectors))}
	if in.Evidence != nil && in.Evidence.TimeSinceBreakout != nil {
		out.HasBreakout = true
		out.MinutesSinceBreakout = in.Evidence.TimeSinceBreakout.Minutes
	}
	for _, d := range detectors {
		ok, note := d.Detect(in)
		if !ok {
			continue
		}
		out.Fired[d.Regime()] = true
		if note != "" {
			out.Notes = append(out.Notes, note)
		}
	}
	return out
}

// DefaultDetectors returns the four advanced detectors configured from cfg.
func DefaultDetectors(cfg Config) []Detector {
	cfg = cfg.withDefaults()
	return []Detector{
		SessionSwitchFlare{},
		FragmentedChop{},
		PostBreakoutDecay{},
		PreBreakoutTension{ATRStable: cfg.ATRStable},
	}
}
