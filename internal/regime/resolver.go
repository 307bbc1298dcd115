package regime

import (
	"fmt"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// priority orders advanced regimes, most specific first. Basic regimes never win arbitration.
func priority(r models.Regime) int {
	switch r {
	case models.RegimeSessionSwitchFlare:
		return 1
	case models.RegimeFragmentedChop:
		return 2
	case models.RegimePostBreakoutDecay:
		return 3
	case models.RegimePreBreakoutTension:
		return 4
	case models.RegimeStable, models.RegimeTransitional, models.RegimeVolatile:
		return 0
	default:
		return 0
	}
}

// Resolve picks the proposal for this call: the highest-priority advanced regime that
// fired, or the basic classification when none did. When decay and tension both fire,
// a breakout older than an hour hands the call to tension.
func Resolve(out DetectorOutcome, basic models.Regime) (models.Regime, string) {
	decay := out.Fired[models.RegimePostBreakoutDecay]
	tension := out.Fired[models.RegimePreBreakoutTension]
	if decay && tension {
		if out.HasBreakout && out.MinutesSinceBreakout > tieBreakBreakoutMinutes {
			decay = false
		} else {
			tension = false
		}
	}

	best := models.Regime("")
	bestRank := 0
	for _, r := range models.AllRegimes {
		if !out.Fired[r] {
			continue
		}
		if r == models.RegimePostBreakoutDecay && !decay {
			continue
		}
		if r == models.RegimePreBreakoutTension && !tension {
			continue
		}
		rank := priority(r)
		if rank == 0 {
			continue
		}
		if bestRank == 0 || rank < bestRank {
			best, bestRank = r, rank
		}
	}

	if bestRank == 0 {
		return basic, fmt.Sprintf("basic=%s", basic)
	}
	return best, fmt.Sprintf("advanced=%s (priority %d)", best, bestRank)
}
