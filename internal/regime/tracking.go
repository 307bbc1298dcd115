package regime

import (
	"strings"
	"sync"
	"time"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// ATRSample is one (timestamp, atr14, atr50) observation.
type ATRSample struct {
	Timestamp time.Time
	ATR14     float64
	ATR50     float64
}

// WickSample is one (timestamp, wick-ratio) observation.
type WickSample struct {
	Timestamp time.Time
	Ratio     float64
}

// SpikeRecord marks the first call that observed a volatility spike.
type SpikeRecord struct {
	Timestamp time.Time
	ATR       float64
}

type trackingState struct {
	atr            []ATRSample
	wick           []WickSample
	breakout       *models.BreakoutEvent
	breakoutLoaded bool
	spike          *SpikeRecord
}

// TrackingStore holds the bounded rolling buffers and small caches for every
// (symbol, timeframe). A single mutex guards all symbols.
type TrackingStore struct {
	mu     sync.Mutex
	window int
	states map[string]map[models.Timeframe]*trackingState
}

// NewTrackingStore creates a store whose FIFO buffers keep the latest window samples.
func NewTrackingStore(window int) *TrackingStore {
	if window <= 0 {
		window = DefaultTrackingWindow
	}
	return &TrackingStore{
		window: window,
		states: make(map[string]map[models.Timeframe]*trackingState),
	}
}

// NormalizeSymbol upper-cases and trims a symbol so cache keys are stable.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// EnsureTracked creates empty state for every supported timeframe of symbol.
func (s *TrackingStore) EnsureTracked(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(symbol)
}

func (s *TrackingStore) ensureLocked(symbol string) map[models.Timeframe]*trackingState {
	byTF, ok := s.states[symbol]
	if !ok {
		byTF = make(map[models.Timeframe]*trackingState, len(models.Timeframes))
		for _, tf := range models.Timeframes {
			byTF[tf] = &trackingState{}
		}
		s.states[symbol] = byTF
	}
	return byTF
}

func (s *TrackingStore) stateLocked(symbol string, tf models.Timeframe) *trackingState {
	byTF := s.ensureLocked(symbol)
	st, ok := byTF[tf]
	if !ok {
		st = &trackingState{}
		byTF[tf] = st
	}
	return st
}

// Tracked reports whether symbol has been seen.
func (s *TrackingStore) Tracked(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[symbol]
	return ok
}

// AppendATR pushes a sample and returns the buffer as it was before and after the push.
func (s *TrackingStore) AppendATR(symbol string, tf models.Timeframe, sample ATRSample) (before, after []ATRSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	before = append([]ATRSample(nil), st.atr...)
	st.atr = append(st.atr, sample)
	if len(st.atr) > s.window {
		st.atr = append([]ATRSample(nil), st.atr[len(st.atr)-s.window:]...)
	}
	after = append([]ATRSample(nil), st.atr...)
	return before, after
}

// ATRHistory returns a copy of the ATR buffer.
func (s *TrackingStore) ATRHistory(symbol string, tf models.Timeframe) []ATRSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ATRSample(nil), s.stateLocked(symbol, tf).atr...)
}

// AppendWick pushes a wick ratio and returns a copy of the resulting buffer.
func (s *TrackingStore) AppendWick(symbol string, tf models.Timeframe, sample WickSample) []WickSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	st.wick = append(st.wick, sample)
	if len(st.wick) > s.window {
		st.wick = append([]WickSample(nil), st.wick[len(st.wick)-s.window:]...)
	}
	return append([]WickSample(nil), st.wick...)
}

// LastBreakout returns the cached breakout and whether the ledger has already been consulted.
func (s *TrackingStore) LastBreakout(symbol string, tf models.Timeframe) (*models.BreakoutEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	if st.breakout == nil {
		return nil, st.breakoutLoaded
	}
	ev := *st.breakout
	return &ev, true
}

// SetBreakout replaces the cached breakout for a key.
func (s *TrackingStore) SetBreakout(symbol string, tf models.Timeframe, ev *models.BreakoutEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	st.breakoutLoaded = true
	if ev == nil {
		st.breakout = nil
		return
	}
	cp := *ev
	st.breakout = &cp
}

// HydrateBreakout seeds the cache from the ledger unless it has already been loaded or claimed.
func (s *TrackingStore) HydrateBreakout(symbol string, tf models.Timeframe, ev *models.BreakoutEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	if st.breakoutLoaded {
		return
	}
	st.breakoutLoaded = true
	if ev != nil {
		cp := *ev
		st.breakout = &cp
	}
}

// ClaimBreakout stores candidate as the cached breakout unless the cached one is
// within tolerance (fractional price distance). It reports whether candidate was accepted.
// The check and the store happen under one lock so concurrent callers cannot both claim.
func (s *TrackingStore) ClaimBreakout(symbol string, tf models.Timeframe, candidate models.BreakoutEvent, tolerance float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	if st.breakout != nil && st.breakout.Price > 0 {
		dist := (candidate.Price - st.breakout.Price) / st.breakout.Price
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance {
			return false
		}
	}
	cp := candidate
	st.breakout = &cp
	st.breakoutLoaded = true
	return true
}

// Spike returns the recorded spike for a key, if any.
func (s *TrackingStore) Spike(symbol string, tf models.Timeframe) *SpikeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := s.stateLocked(symbol, tf).spike
	if sp == nil {
		return nil
	}
	cp := *sp
	return &cp
}

// RecordSpike stores rec only if no spike is recorded yet and returns the effective record.
func (s *TrackingStore) RecordSpike(symbol string, tf models.Timeframe, rec SpikeRecord) SpikeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(symbol, tf)
	if st.spike == nil {
		st.spike = &rec
	}
	return *st.spike
}

// ClearSpike forgets the recorded spike for a key.
func (s *TrackingStore) ClearSpike(symbol string, tf models.Timeframe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(symbol, tf).spike = nil
}
