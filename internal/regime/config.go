package regime

import "time"

const (
	DefaultHistoryLimit     = 100
	DefaultTrackingWindow   = 20
	DefaultPersistenceCount = 3
	DefaultInertiaCount     = 5
	DefaultCooldownCycles   = 5
	DefaultRawBuffer        = 10

	DefaultATRVolatile = 1.4
	DefaultATRStable   = 1.2
	DefaultBBVolatile  = 1.8
	DefaultBBStable    = 1.5
	DefaultADXTrending = 25.0
	DefaultADXRanging  = 20.0

	DefaultSpikeRatio            = 1.5
	DefaultBreakoutRecentMinutes = 30.0

	// atr50 estimate when the provider omits it
	atr50EstimateFactor = 0.9
	// bb width baseline when fewer than 20 bars are available
	bbWidthFallback = 0.02

	bbPeriod           = 20
	bbStdDev           = 2.0
	bbTrendWindow      = 10
	bbTrendMinBars     = 30
	bbNarrowPercentile = 20.0

	wickCompareWindow = 10
	atrSlopeSamples   = 5
	atrBaselineFactor = 1.2

	whipsawWindow     = 5
	whipsawMinChanges = 3
	tightOscillation  = 0.30

	meanReversionWindow   = 10
	meanReversionEMA      = 200
	meanReversionTouchATR = 0.5
	meanReversionMinTouch = 3

	breakoutLookback        = 20
	breakoutVolumeFactor    = 1.5
	breakoutDedupeTolerance = 0.01

	flareWindow          = 30 * time.Minute
	flareDeclineFraction = 0.80

	sessionWindowHalfWidth = 15 * time.Minute

	tensionWickChangePct    = 30.0
	tensionIntrabarIncrease = 20.0
	decaySlopePct           = -5.0
	chopMaxADX              = 15.0
	tieBreakBreakoutMinutes = 60.0
)

// Config holds the tunable thresholds of the engine. Zero values fall back to defaults.
type Config struct {
	HistoryLimit     int
	TrackingWindow   int
	PersistenceCount int
	InertiaCount     int
	CooldownCycles   int

	ATRVolatile float64
	ATRStable   float64
	BBVolatile  float64
	BBStable    float64
	ADXTrending float64
	ADXRanging  float64

	SpikeRatio            float64
	BreakoutRecentMinutes float64

	// DisableInertia allows InertiaCount to be an explicit zero.
	DisableInertia bool
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:          DefaultHistoryLimit,
		TrackingWindow:        DefaultTrackingWindow,
		PersistenceCount:      DefaultPersistenceCount,
		InertiaCount:          DefaultInertiaCount,
		CooldownCycles:        DefaultCooldownCycles,
		ATRVolatile:           DefaultATRVolatile,
		ATRStable:             DefaultATRStable,
		BBVolatile:            DefaultBBVolatile,
		BBStable:              DefaultBBStable,
		ADXTrending:           DefaultADXTrending,
		ADXRanging:            DefaultADXRanging,
		SpikeRatio:            DefaultSpikeRatio,
		BreakoutRecentMinutes: DefaultBreakoutRecentMinutes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.TrackingWindow <= 0 {
		c.TrackingWindow = d.TrackingWindow
	}
	if c.PersistenceCount <= 0 {
		c.PersistenceCount = d.PersistenceCount
	}
	if c.DisableInertia {
		c.InertiaCount = 0
	} else if c.InertiaCount <= 0 {
		c.InertiaCount = d.InertiaCount
	}
	if c.CooldownCycles < 0 {
		c.CooldownCycles = 0
	} else if c.CooldownCycles == 0 {
		c.CooldownCycles = d.CooldownCycles
	}
	if c.ATRVolatile <= 0 {
		c.ATRVolatile = d.ATRVolatile
	}
	if c.ATRStable <= 0 {
		c.ATRStable = d.ATRStable
	}
	if c.BBVolatile <= 0 {
		c.BBVolatile = d.BBVolatile
	}
	if c.BBStable <= 0 {
		c.BBStable = d.BBStable
	}
	if c.ADXTrending <= 0 {
		c.ADXTrending = d.ADXTrending
	}
	if c.ADXRanging <= 0 {
		c.ADXRanging = d.ADXRanging
	}
	if c.SpikeRatio <= 0 {
		c.SpikeRatio = d.SpikeRatio
	}
	if c.BreakoutRecentMinutes <= 0 {
		c.BreakoutRecentMinutes = d.BreakoutRecentMinutes
	}
	return c
}
