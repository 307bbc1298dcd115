package regime

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-regime/internal/models"
)

type memLedger struct {
	mu        sync.Mutex
	breakouts []models.BreakoutEvent
	events    []models.RegimeChangeEvent
	failWrite bool
	panicRead bool
	// delay runs before the lock so concurrent writes can commit out of call order
	delay     func(ev models.BreakoutEvent) time.Duration
}

func (l *memLedger) RecordBreakout(_ context.Context, ev models.BreakoutEvent) (models.BreakoutEvent, error) {
	if l.delay != nil {
		time.Sleep(l.delay(ev))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite {
		return models.BreakoutEvent{}, errors.New("disk full")
	}
	now := time.Now()
	for i := range l.breakouts {
		b := &l.breakouts[i]
		if b.Symbol == ev.Symbol && b.Timeframe == ev.Timeframe && b.IsActive {
			b.IsActive = false
			b.InvalidatedAt = &now
		}
	}
	ev.ID = int64(len(l.breakouts) + 1)
	l.breakouts = append(l.breakouts, ev)
	return ev, nil
}

func (l *memLedger) ActiveBreakout(_ context.Context, symbol string, tf models.Timeframe) (*models.BreakoutEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panicRead {
		panic("corrupt ledger")
	}
	for i := len(l.breakouts) - 1; i >= 0; i-- {
		b := l.breakouts[i]
		if b.Symbol == symbol && b.Timeframe == tf && b.IsActive {
			return &b, nil
		}
	}
	return nil, models.ErrBreakoutNotFound
}

func (l *memLedger) AppendRegimeEvent(_ context.Context, ev models.RegimeChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite {
		return errors.New("disk full")
	}
	l.events = append(l.events, ev)
	return nil
}

func (l *memLedger) RecentRegimeEvents(_ context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.RegimeChangeEvent
	for i := len(l.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.events[i].Symbol == symbol {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}

func (l *memLedger) activeCount(symbol string, tf models.Timeframe) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.breakouts {
		if b.Symbol == symbol && b.Timeframe == tf && b.IsActive {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.RegimeAlert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a models.RegimeAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

type recordingPublisher struct {
	mu        sync.Mutex
	summaries []models.RegimeSummary
}

func (p *recordingPublisher) Publish(_ context.Context, s models.RegimeSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return nil
}

type countingRecorder struct {
	nopRecorder
	mu       sync.Mutex
	failures map[string]int
	changes  int
}

func (r *countingRecorder) PersistenceFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]int{}
	}
	r.failures[op]++
}

func (r *countingRecorder) RegimeChanged(string, models.Regime, models.Regime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// midLondon sits outside every session transition window.
var midLondon = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func volatileData() models.TimeframeData {
	snap := func() *models.TimeframeSnapshot {
		return &models.TimeframeSnapshot{ATR14: 1.5, ATR50: 1.0, BBUpper: 102, BBMiddle: 100, BBLower: 98, ADX: 30}
	}
	return models.TimeframeData{
		models.TimeframeM5:  snap(),
		models.TimeframeM15: snap(),
		models.TimeframeH1:  snap(),
	}
}

func stableData() models.TimeframeData {
	snap := func() *models.TimeframeSnapshot {
		return &models.TimeframeSnapshot{ATR14: 1.0, ATR50: 1.0, BBUpper: 101.2, BBMiddle: 100, BBLower: 98.8, ADX: 15}
	}
	return models.TimeframeData{
		models.TimeframeM5:  snap(),
		models.TimeframeM15: snap(),
		models.TimeframeH1:  snap(),
	}
}

func TestEngine_DetectVolatileAndStable(t *testing.T) {
	ctx := context.Background()

	e := NewEngine(DefaultConfig(), quietLogger())
	res := e.Detect(ctx, "btcusd", volatileData(), midLondon)
	assert.Equal(t, "BTCUSD", res.Symbol)
	assert.Equal(t, models.RegimeVolatile, res.Regime)
	assert.InDelta(t, 1.5, res.ATRRatio, 1e-9)
	assert.InDelta(t, 2.0, res.BBWidthRatio, 1e-9)
	assert.InDelta(t, 30.0, res.ADX, 1e-9)
	assert.True(t, res.VolumeConfirmed)
	assert.Len(t, res.Timeframes, 3)
	assert.Equal(t, models.ProvenanceProvided, res.Timeframes[models.TimeframeM15].ATR50Source)
	assert.Equal(t, models.ProvenanceDefault, res.Timeframes[models.TimeframeM15].BaselineSource)
	assert.False(t, res.Changed)

	e2 := NewEngine(DefaultConfig(), quietLogger())
	res = e2.Detect(ctx, "ETHUSD", stableData(), midLondon)
	assert.Equal(t, models.RegimeStable, res.Regime)
}

func TestEngine_StableNeedsPersistenceAfterInertia(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	rec := &countingRecorder{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger), WithRecorder(rec))

	now := midLondon
	for i := 0; i < 5; i++ {
		res := e.Detect(ctx, "BTCUSD", volatileData(), now)
		require.Equal(t, models.RegimeVolatile, res.Regime)
		now = now.Add(time.Minute)
	}

	for i := 0; i < 2; i++ {
		res := e.Detect(ctx, "BTCUSD", stableData(), now)
		assert.Equal(t, models.RegimeVolatile, res.Regime)
		assert.Equal(t, models.RegimeStable, res.ProposedRegime)
		now = now.Add(time.Minute)
	}

	res := e.Detect(ctx, "BTCUSD", stableData(), now)
	assert.Equal(t, models.RegimeStable, res.Regime)
	assert.True(t, res.Changed)

	events, err := e.RecentEvents(ctx, "BTCUSD", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.RegimeVolatile, ev.OldRegime)
	assert.Equal(t, models.RegimeStable, ev.NewRegime)
	assert.Equal(t, "VOLATILE->STABLE", ev.Transition)
	assert.Equal(t, models.RegimeEventType, ev.EventType)
	assert.Equal(t, models.SessionLondon, ev.SessionTag)
	assert.NotEmpty(t, ev.EventID)
	assert.NotEmpty(t, ev.Indicators)
	assert.Equal(t, 1, rec.changes)
}

func TestEngine_PersistenceNeverFlipsOnShortRuns(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(DefaultConfig(), quietLogger())

	now := midLondon
	for i := 0; i < 6; i++ {
		e.Detect(ctx, "BTCUSD", volatileData(), now)
		now = now.Add(time.Minute)
	}
	for i := 0; i < 10; i++ {
		data := volatileData()
		if i%3 != 2 {
			data = stableData()
		}
		res := e.Detect(ctx, "BTCUSD", data, now)
		assert.Equal(t, models.RegimeVolatile, res.Regime)
		now = now.Add(time.Minute)
	}
}

func TestEngine_HistoryCap(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(DefaultConfig(), quietLogger())

	now := midLondon
	for i := 0; i < 150; i++ {
		e.Detect(ctx, "BTCUSD", stableData(), now)
		now = now.Add(time.Minute)
	}

	all := e.GetRegimeHistory("BTCUSD", 0, false)
	assert.Len(t, all, DefaultHistoryLimit)
	assert.Nil(t, all[0].Metrics)
	assert.True(t, all[0].Timestamp.Before(all[len(all)-1].Timestamp))

	recent := e.GetRegimeHistory("btcusd", 10, true)
	require.Len(t, recent, 10)
	require.NotNil(t, recent[9].Metrics)
	assert.Equal(t, models.RegimeStable, recent[9].Metrics.Proposed)
	assert.Equal(t, all[len(all)-1].Timestamp, recent[9].Timestamp)
}

func TestEngine_ConfidenceBounds(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(DefaultConfig(), quietLogger())

	inputs := []models.TimeframeData{
		volatileData(),
		stableData(),
		{models.TimeframeH1: {ATR14: 10, ATR50: 0.1, BBUpper: 200, BBMiddle: 100, BBLower: 0, ADX: 99}},
		{models.TimeframeM5: {ATR14: 0.0001, ATR50: 10, ADX: 0}},
		{models.TimeframeM15: {}},
	}
	for i, data := range inputs {
		res := e.Detect(ctx, "XRPUSD", data, midLondon.Add(time.Duration(i)*time.Minute))
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 100.0)
	}
}

func TestEngine_NoDataDefaultsToStable(t *testing.T) {
	e := NewEngine(DefaultConfig(), quietLogger())
	res := e.Detect(context.Background(), "BTCUSD", nil, midLondon)
	assert.Equal(t, models.RegimeStable, res.Regime)
	assert.Equal(t, 0.0, res.Confidence)
	assert.NotEmpty(t, res.Reasoning)
	assert.Empty(t, e.GetRegimeHistory("BTCUSD", 0, false))
}

func TestEngine_Determinism(t *testing.T) {
	ctx := context.Background()
	sequence := []models.TimeframeData{volatileData(), volatileData(), stableData(), volatileData()}

	run := func() []*models.DetectionResult {
		e := NewEngine(DefaultConfig(), quietLogger())
		out := make([]*models.DetectionResult, 0, len(sequence))
		for i, data := range sequence {
			out = append(out, e.Detect(ctx, "BTCUSD", data, midLondon.Add(time.Duration(i)*time.Minute)))
		}
		return out
	}

	a, b := run(), run()
	assert.Equal(t, a, b)
}

func TestEngine_PanicRecovered(t *testing.T) {
	ledger := &memLedger{panicRead: true}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	res := e.Detect(context.Background(), "BTCUSD", volatileData(), midLondon)
	require.NotNil(t, res)
	assert.Equal(t, models.RegimeStable, res.Regime)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.Reasoning, "corrupt ledger")
}

func TestEngine_BreakoutDedupeWithinOnePercent(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	T := midLondon
	assert.True(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.0, T))

	info, ok := e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, T.Add(10*time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 10.0, info.Minutes, 1e-9)
	assert.True(t, info.IsRecent)
	assert.Equal(t, models.BreakoutBullish, info.Type)
	assert.Equal(t, 100.0, info.Price)

	assert.False(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.5, T.Add(time.Minute)))
	assert.Equal(t, 1, ledger.activeCount("BTCUSD", models.TimeframeM15))

	info, ok = e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, T.Add(45*time.Minute))
	require.True(t, ok)
	assert.False(t, info.IsRecent)

	_, ok = e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeH1, T)
	assert.False(t, ok)
}

func TestEngine_BreakoutReplacesActive(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	assert.True(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.0, midLondon))
	assert.True(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBearish, 90.0, midLondon.Add(time.Hour)))
	assert.Equal(t, 1, ledger.activeCount("BTCUSD", models.TimeframeM15))

	info, ok := e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, midLondon.Add(time.Hour+5*time.Minute))
	require.True(t, ok)
	assert.Equal(t, models.BreakoutBearish, info.Type)
}

func TestEngine_BreakoutRehydratesFromLedger(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}

	first := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))
	require.True(t, first.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.0, midLondon))

	restarted := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))
	info, ok := restarted.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, midLondon.Add(5*time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 5.0, info.Minutes, 1e-9)

	// cached price from the ledger still deduplicates
	assert.False(t, restarted.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.4, midLondon.Add(time.Minute)))
}

func TestEngine_ConcurrentBreakouts(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100+float64(i)*5, midLondon.Add(time.Duration(i)*time.Minute))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.activeCount("BTCUSD", models.TimeframeM15))
}

func TestEngine_ConcurrentDetect(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(DefaultConfig(), quietLogger())

	var wg sync.WaitGroup
	for _, sym := range []string{"BTCUSD", "ETHUSD", "SOLUSD"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(sym string, i int) {
				defer wg.Done()
				res := e.Detect(ctx, sym, volatileData(), midLondon.Add(time.Duration(i)*time.Second))
				assert.Equal(t, models.RegimeVolatile, res.Regime)
			}(sym, i)
		}
	}
	wg.Wait()

	for _, sym := range []string{"BTCUSD", "ETHUSD", "SOLUSD"} {
		assert.Len(t, e.GetRegimeHistory(sym, 0, false), 10)
	}
}

func TestEngine_PersistenceFailureDegrades(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{failWrite: true}
	rec := &countingRecorder{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger), WithRecorder(rec))

	assert.True(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100.0, midLondon))
	_, ok := e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, midLondon)
	assert.True(t, ok, "cache still holds the breakout")
	assert.Equal(t, 1, rec.failures["record_breakout"])
}

func TestEngine_AlertsOnAdvancedChange(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	rec := &countingRecorder{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithNotifier(notifier), WithRecorder(rec))

	res := &models.DetectionResult{
		Symbol:       "BTCUSD",
		Regime:       models.RegimeFragmentedChop,
		Confidence:   72,
		ATRRatio:     1.1,
		BBWidthRatio: 1.3,
		Timestamp:    midLondon,
	}
	e.onChange(ctx, res, models.RegimeStable, 50)
	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, models.RegimeFragmentedChop, alert.Regime)
	assert.Equal(t, models.SessionLondon, alert.SessionTag)
	assert.Equal(t, models.RecommendedAction(models.RegimeFragmentedChop), alert.RecommendedAction)

	res.Regime = models.RegimeVolatile
	e.onChange(ctx, res, models.RegimeFragmentedChop, 50)
	assert.Len(t, notifier.alerts, 1, "basic regimes do not alert")

	notifier.err = errors.New("telegram down")
	res.Regime = models.RegimePreBreakoutTension
	assert.NotPanics(t, func() { e.onChange(ctx, res, models.RegimeVolatile, 50) })
	assert.Equal(t, 3, rec.changes)
}

func TestEngine_PublishesSummary(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithPublisher(pub))

	e.Detect(context.Background(), "BTCUSD", volatileData(), midLondon)
	require.Len(t, pub.summaries, 1)
	assert.Equal(t, "BTCUSD", pub.summaries[0].Symbol)
	assert.Equal(t, models.RegimeVolatile, pub.summaries[0].Regime)
}

func TestEngine_BreakoutFromBars(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 104
	start := midLondon.Add(-20 * 15 * time.Minute)
	data := models.TimeframeData{
		models.TimeframeM15: {Bars: barsFromCloses(start, 15*time.Minute, closes), ATR14: 1, ATR50: 1, ADX: 20},
	}

	res := e.Detect(ctx, "BTCUSD", data, midLondon)
	ev := res.Evidence[models.TimeframeM15]
	require.NotNil(t, ev.TimeSinceBreakout)
	assert.Equal(t, models.BreakoutBullish, ev.TimeSinceBreakout.Type)
	assert.True(t, ev.TimeSinceBreakout.IsRecent)
	assert.True(t, ev.TimeSinceBreakout.VolumeConfirmed, "bars without volume count as confirmed")
	assert.Equal(t, 1, ledger.activeCount("BTCUSD", models.TimeframeM15))
}

func TestEngine_BreakoutWithoutVolumeSpike(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	closes := flatCloses(21, 100)
	closes[20] = 104
	start := midLondon.Add(-20 * 15 * time.Minute)
	bars := barsFromCloses(start, 15*time.Minute, closes)
	for i := range bars {
		bars[i].Volume = 100
	}
	data := models.TimeframeData{
		models.TimeframeM15: {Bars: bars, ATR14: 1, ATR50: 1, ADX: 20},
	}

	res := e.Detect(ctx, "BTCUSD", data, midLondon)
	ev := res.Evidence[models.TimeframeM15]
	require.NotNil(t, ev.TimeSinceBreakout)
	assert.False(t, ev.TimeSinceBreakout.VolumeConfirmed)

	active, err := ledger.ActiveBreakout(ctx, "BTCUSD", models.TimeframeM15)
	require.NoError(t, err)
	assert.False(t, active.VolumeConfirmed)

	// externally reported breakouts are taken as confirmed
	require.True(t, e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBearish, 90, midLondon.Add(time.Hour)))
	info, ok := e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, midLondon.Add(time.Hour))
	require.True(t, ok)
	assert.True(t, info.VolumeConfirmed)
}

func TestEngine_NoUsableIndicatorsHasZeroConfidence(t *testing.T) {
	e := NewEngine(DefaultConfig(), quietLogger())

	res := e.Detect(context.Background(), "BTCUSD", models.TimeframeData{models.TimeframeH1: {}}, midLondon)
	require.NotNil(t, res)
	assert.Equal(t, models.RegimeStable, res.Regime)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.Reasoning, "no usable indicator data")
	assert.Contains(t, res.Timeframes, models.TimeframeH1)
	assert.Empty(t, e.GetRegimeHistory("BTCUSD", 0, false))
}

func TestEngine_EmptyTimeframeExcludedFromComposite(t *testing.T) {
	e := NewEngine(DefaultConfig(), quietLogger())

	data := volatileData()
	data[models.TimeframeH1] = &models.TimeframeSnapshot{}
	only := volatileData()
	delete(only, models.TimeframeH1)

	mixed := e.Detect(context.Background(), "BTCUSD", data, midLondon)
	single := NewEngine(DefaultConfig(), quietLogger()).Detect(context.Background(), "BTCUSD", only, midLondon)
	assert.Equal(t, single.ATRRatio, mixed.ATRRatio)
	assert.Equal(t, single.BBWidthRatio, mixed.BBWidthRatio)
	assert.Equal(t, single.Confidence, mixed.Confidence)
}

func TestEngine_CommitUnlocksAfterPanic(t *testing.T) {
	e := NewEngine(DefaultConfig(), quietLogger())
	events := e.events
	e.events = nil

	res := e.Detect(context.Background(), "BTCUSD", volatileData(), midLondon)
	require.NotNil(t, res)
	assert.Equal(t, 0.0, res.Confidence)

	e.events = events
	done := make(chan *models.DetectionResult, 1)
	go func() {
		done <- e.Detect(context.Background(), "BTCUSD", volatileData(), midLondon.Add(time.Minute))
	}()
	select {
	case res = <-done:
		assert.Equal(t, models.RegimeVolatile, res.Regime)
	case <-time.After(2 * time.Second):
		t.Fatal("detect blocked on commit lock")
	}
}

func TestEngine_CachedBreakoutMatchesLedger(t *testing.T) {
	ctx := context.Background()
	ledger := &memLedger{
		delay: func(ev models.BreakoutEvent) time.Duration {
			return time.Duration(int(ev.Price)%7) * time.Millisecond
		},
	}
	e := NewEngine(DefaultConfig(), quietLogger(), WithLedger(ledger))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.RecordBreakout(ctx, "BTCUSD", models.TimeframeM15, models.BreakoutBullish, 100+float64(i)*5, midLondon.Add(time.Duration(i)*time.Minute))
		}(i)
	}
	wg.Wait()

	active, err := ledger.ActiveBreakout(ctx, "BTCUSD", models.TimeframeM15)
	require.NoError(t, err)
	info, ok := e.GetTimeSinceBreakout(ctx, "BTCUSD", models.TimeframeM15, midLondon.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, active.Price, info.Price)
}
