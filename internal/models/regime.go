package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Regime is the closed set of volatility states the detection engine can confirm.
type Regime string

const (
	RegimeStable             Regime = "STABLE"
	RegimeTransitional       Regime = "TRANSITIONAL"
	RegimeVolatile           Regime = "VOLATILE"
	RegimePreBreakoutTension Regime = "PRE_BREAKOUT_TENSION"
	RegimePostBreakoutDecay  Regime = "POST_BREAKOUT_DECAY"
	RegimeFragmentedChop     Regime = "FRAGMENTED_CHOP"
	RegimeSessionSwitchFlare Regime = "SESSION_SWITCH_FLARE"
)

// AllRegimes lists every regime in declaration order.
var AllRegimes = []Regime{
	RegimeStable,
	RegimeTransitional,
	RegimeVolatile,
	RegimePreBreakoutTension,
	RegimePostBreakoutDecay,
	RegimeFragmentedChop,
	RegimeSessionSwitchFlare,
}

// ErrUnknownRegime is returned when parsing a label outside the closed set.
var ErrUnknownRegime = errors.New("unknown regime")

// ErrBreakoutNotFound is returned by ledgers when no active breakout exists for a key.
var ErrBreakoutNotFound = errors.New("no active breakout")

// ParseRegime converts a stored label back into a Regime.
func ParseRegime(s string) (Regime, error) {
	r := Regime(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegime, s)
	}
	return r, nil
}

// Valid reports whether r is one of the seven known regimes.
func (r Regime) Valid() bool {
	switch r {
	case RegimeStable, RegimeTransitional, RegimeVolatile,
		RegimePreBreakoutTension, RegimePostBreakoutDecay,
		RegimeFragmentedChop, RegimeSessionSwitchFlare:
		return true
	default:
		return false
	}
}

// IsAdvanced reports whether r is produced by one of the compound detectors
// rather than the basic composite classifier.
func (r Regime) IsAdvanced() bool {
	switch r {
	case RegimePreBreakoutTension, RegimePostBreakoutDecay,
		RegimeFragmentedChop, RegimeSessionSwitchFlare:
		return true
	case RegimeStable, RegimeTransitional, RegimeVolatile:
		return false
	default:
		return false
	}
}

func (r Regime) String() string {
	return string(r)
}

// Timeframe identifies the bar period of a snapshot.
type Timeframe string

const (
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
)

// Timeframes is the evaluation order used for composites and reasoning output.
var Timeframes = []Timeframe{TimeframeM5, TimeframeM15, TimeframeH1}

// Period returns the bar length of the timeframe.
func (tf Timeframe) Period() time.Duration {
	switch tf {
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeM15:
		return 15 * time.Minute
	case TimeframeH1:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// Weight returns the composite scoring weight before renormalization.
func (tf Timeframe) Weight() float64 {
	switch tf {
	case TimeframeM5:
		return 0.20
	case TimeframeM15:
		return 0.30
	case TimeframeH1:
		return 0.50
	default:
		return 0
	}
}

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	return tf.Weight() > 0
}

// ParseTimeframe normalizes user input such as "m15" or "1h".
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M5", "5M":
		return TimeframeM5, nil
	case "M15", "15M":
		return TimeframeM15, nil
	case "H1", "1H", "60M":
		return TimeframeH1, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
}

// SessionTag names the trading session active at a given UTC instant.
type SessionTag string

const (
	SessionAsian  SessionTag = "ASIAN"
	SessionLondon SessionTag = "LONDON"
	SessionNY     SessionTag = "NY"
)

// SessionAt returns the session for t: ASIAN 21:00-07:00, LONDON 07:00-13:00, NY 13:00-21:00 UTC.
func SessionAt(t time.Time) SessionTag {
	h := t.UTC().Hour()
	switch {
	case h >= 7 && h < 13:
		return SessionLondon
	case h >= 13 && h < 21:
		return SessionNY
	default:
		return SessionAsian
	}
}
