package regime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-regime/internal/models"
)

const tracerName = "github.com/irfndi/celebrum-regime/internal/regime"

// Engine is the regime detection entry point. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	logger     *logrus.Logger
	tracer     trace.Tracer
	tracking   *TrackingStore
	classifier *BasicClassifier
	detectors  []Detector
	filter     *StabilityFilter
	events     *EventLog
	ledger     Ledger
	notifier   Notifier
	publisher  Publisher
	recorder   Recorder

	// commitMu orders the filter decision and history append of concurrent calls.
	commitMu   sync.Mutex
	// breakoutMu keeps the cached breakout in ledger commit order.
	breakoutMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger attaches a durable store for breakouts and change events.
func WithLedger(l Ledger) Option { return func(e *Engine) { e.ledger = l } }

// WithNotifier attaches the alert sink.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithPublisher attaches the latest-regime publisher.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithTrackingStore injects a pre-built tracking store.
func WithTrackingStore(s *TrackingStore) Option { return func(e *Engine) { e.tracking = s } }

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// NewEngine builds an engine. A nil logger gets a default logrus logger.
func NewEngine(cfg Config, logger *logrus.Logger, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		classifier: NewBasicClassifier(cfg),
		detectors:  DefaultDetectors(cfg),
		filter:     NewStabilityFilter(cfg),
		events:     NewEventLog(cfg.HistoryLimit),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracking == nil {
		e.tracking = NewTrackingStore(cfg.TrackingWindow)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Detect classifies symbol from the supplied snapshots at now. It never fails:
// missing data and internal errors degrade to a STABLE result with zero confidence.
func (e *Engine) Detect(ctx context.Context, symbol string, data models.TimeframeData, now time.Time) (result *models.DetectionResult) {
	symbol = NormalizeSymbol(symbol)
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	ctx, span := e.tracer.Start(ctx, "regime.Detect", trace.WithAttributes(attribute.String("symbol", symbol)))
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"symbol": symbol,
				"panic":  r,
			}).Error("Regime detection failed")
			span.SetStatus(codes.Error, fmt.Sprint(r))
			result = defaultResult(symbol, now, fmt.Sprintf("detection error: %v", r))
		}
		span.SetAttributes(
			attribute.String("regime", string(result.Regime)),
			attribute.Float64("confidence", result.Confidence),
		)
		span.End()
		e.recorder.ObserveDetection(symbol, result.Regime, time.Since(started))
	}()

	e.tracking.EnsureTracked(symbol)

	present := data.Present()
	if len(present) == 0 {
		return defaultResult(symbol, now, "no timeframe data supplied")
	}

	perTF := make(map[models.Timeframe]*models.TimeframeIndicators, len(present))
	evidence := make(map[models.Timeframe]*models.Evidence, len(present))
	for _, tf := range present {
		ind, ev := e.deriveTimeframe(ctx, symbol, tf, data[tf], now)
		perTF[tf] = ind
		evidence[tf] = ev
	}

	usable := usableTimeframes(perTF)
	if len(usable) == 0 {
		res := defaultResult(symbol, now, "no usable indicator data")
		res.Timeframes = perTF
		res.Evidence = evidence
		return res
	}

	composite := compositeOf(usable)
	basic := e.classifier.Classify(composite)
	session := SessionTransitionAt(now)

	outcome := DetectorOutcome{Fired: map[models.Regime]bool{}}
	if ind, ok := perTF[models.TimeframeM15]; ok {
		outcome = RunDetectors(e.detectors, DetectorInput{
			Indicators: ind,
			Evidence:   evidence[models.TimeframeM15],
			Session:    session,
		})
	}
	proposal, resolveNote := Resolve(outcome, basic)
	confidence := e.classifier.Confidence(composite, usable)

	committed := e.commit(symbol, proposal, confidence, composite, now)
	confirmed := committed.confirmed

	notes := append([]string{resolveNote}, outcome.Notes...)
	notes = append(notes, committed.notes...)

	result = &models.DetectionResult{
		Symbol:            symbol,
		Regime:            confirmed,
		ProposedRegime:    proposal,
		Confidence:        confidence,
		ATRRatio:          composite.ATRRatio,
		BBWidthRatio:      composite.BBWidthRatio,
		ADX:               composite.ADX,
		VolumeConfirmed:   composite.VolumeConfirmed,
		Timeframes:        perTF,
		Evidence:          evidence,
		SessionTransition: session,
		Changed:           committed.hadPrev && confirmed != committed.prev.Regime,
		Reasoning:         Reasoning(composite, perTF, proposal, confirmed, notes),
		Timestamp:         now,
	}

	e.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"regime":     confirmed,
		"proposed":   proposal,
		"confidence": confidence,
	}).Debug("Regime detected")

	if result.Changed {
		e.onChange(ctx, result, committed.prev.Regime, committed.percentile)
	}
	e.publish(ctx, result)
	return result
}

type commitOutcome struct {
	prev       models.RegimeHistoryEntry
	hadPrev    bool
	confirmed  models.Regime
	notes      []string
	percentile float64
}

// commit runs the stability filter and appends the confirmed entry as one step per symbol.
func (e *Engine) commit(symbol string, proposal models.Regime, confidence float64, composite Composite, now time.Time) commitOutcome {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var out commitOutcome
	out.prev, out.hadPrev = e.events.Last(symbol)
	history := e.events.Entries(symbol)
	out.confirmed, out.notes = e.filter.Apply(symbol, proposal, history)
	out.percentile = ConfidencePercentile(history, confidence)
	e.events.Append(symbol, models.RegimeHistoryEntry{
		Timestamp:  now,
		Regime:     out.confirmed,
		Confidence: confidence,
		Metrics: &models.HistoryMetrics{
			ATRRatio:        composite.ATRRatio,
			BBWidthRatio:    composite.BBWidthRatio,
			ADX:             composite.ADX,
			VolumeConfirmed: composite.VolumeConfirmed,
			Proposed:        proposal,
		},
	})
	return out
}

// usableTimeframes drops timeframes whose ATR and bands both fell through to defaults.
func usableTimeframes(perTF map[models.Timeframe]*models.TimeframeIndicators) map[models.Timeframe]*models.TimeframeIndicators {
	usable := make(map[models.Timeframe]*models.TimeframeIndicators, len(perTF))
	for tf, ind := range perTF {
		if ind.ATR14Source == models.ProvenanceDefault && ind.BandsSource == models.ProvenanceDefault {
			continue
		}
		usable[tf] = ind
	}
	return usable
}

// deriveTimeframe resolves indicator values, updates tracking buffers and computes
// the evidence bundle for one timeframe.
func (e *Engine) deriveTimeframe(ctx context.Context, symbol string, tf models.Timeframe, snap *models.TimeframeSnapshot, now time.Time) (*models.TimeframeIndicators, *models.Evidence) {
	atr14, src14 := resolveATR14(snap)
	atr50, src50 := resolveATR50(snap, atr14)
	bb, bbSrc := resolveBands(snap)
	baseline, baseSrc := resolveWidthBaseline(snap)

	bbRatio := 1.0
	if w := bb.width(); w > 0 && baseline > 0 {
		bbRatio = w / baseline
	}
	volRatio, volOK := VolumeRatio(snap.Volumes(), 1.0)

	ind := &models.TimeframeIndicators{
		Timeframe:       tf,
		ATR14:           atr14,
		ATR50:           atr50,
		ATRRatio:        ATRRatio(atr14, atr50),
		BBWidth:         bb.width(),
		BBWidthRatio:    bbRatio,
		ADX:             snap.ADX,
		VolumeRatio:     volRatio,
		VolumeConfirmed: volOK,
		ATR14Source:     src14,
		ATR50Source:     src50,
		BandsSource:     bbSrc,
		BaselineSource:  baseSrc,
	}
	ev := &models.Evidence{}

	sampleAt := now
	if last, ok := snap.LastBar(); ok && !last.Timestamp.IsZero() {
		sampleAt = last.Timestamp.UTC()
	}

	if atr14 > 0 {
		before, after := e.tracking.AppendATR(symbol, tf, ATRSample{Timestamp: sampleAt, ATR14: atr14, ATR50: atr50})
		if t, ok := ATRTrendFor(after, tf, atr14, atr50); ok {
			ev.ATRTrend = t
		}
		ev.VolatilitySpike = e.spikeEvidence(symbol, tf, before, atr14, atr50, now)
	}

	if last, ok := snap.LastBar(); ok {
		samples := e.tracking.AppendWick(symbol, tf, WickSample{Timestamp: sampleAt, Ratio: WickRatio(last)})
		if w, ok := WickVarianceFor(samples); ok {
			ev.WickVariance = w
		}
	}
	if t, ok := BBWidthTrendFor(snap); ok {
		ev.BBWidthTrend = t
	}
	if v, ok := IntrabarVolatilityFor(snap.Bars); ok {
		ev.IntrabarVolatility = v
	}
	if w, ok := WhipsawFor(snap.Closes()); ok {
		ev.Whipsaw = w
	}
	if m, ok := MeanReversionFor(snap, atr14); ok {
		ev.MeanReversion = m
	}

	if c, ok := detectBreakout(snap, now); ok {
		e.recordBreakout(ctx, models.BreakoutEvent{
			Symbol:          symbol,
			Timeframe:       tf,
			Type:            c.kind,
			Price:           c.price,
			Timestamp:       c.timestamp,
			VolumeConfirmed: c.volumeConfirmed,
		})
	}
	if info, ok := e.GetTimeSinceBreakout(ctx, symbol, tf, now); ok {
		ev.TimeSinceBreakout = info
	}

	return ind, ev
}

func (e *Engine) spikeEvidence(symbol string, tf models.Timeframe, prior []ATRSample, atr14, atr50 float64, now time.Time) *models.VolatilitySpike {
	baseline, src := SpikeBaseline(prior, atr14, atr50)
	ratio := 1.0
	if baseline > 0 {
		ratio = atr14 / baseline
	}
	sp := &models.VolatilitySpike{
		CurrentATR:     atr14,
		Baseline:       baseline,
		BaselineSource: src,
		Ratio:          ratio,
		IsSpike:        ratio >= e.cfg.SpikeRatio,
	}
	if !sp.IsSpike {
		e.tracking.ClearSpike(symbol, tf)
		return sp
	}
	rec := e.tracking.RecordSpike(symbol, tf, SpikeRecord{Timestamp: now, ATR: atr14})
	first := rec.Timestamp
	sp.FirstSeen = &first
	sp.SpikeATR = rec.ATR
	sp.MinutesSince = now.Sub(rec.Timestamp).Minutes()
	sp.IsResolving = FlareResolving(rec, now, atr14)
	return sp
}

// compositeOf averages per-timeframe values with weights renormalized over the present timeframes.
func compositeOf(perTF map[models.Timeframe]*models.TimeframeIndicators) Composite {
	var c Composite
	var total, confirmed float64
	for _, tf := range models.Timeframes {
		ind, ok := perTF[tf]
		if !ok {
			continue
		}
		w := tf.Weight()
		total += w
		c.ATRRatio += w * ind.ATRRatio
		c.BBWidthRatio += w * ind.BBWidthRatio
		c.ADX += w * ind.ADX
		if ind.VolumeConfirmed {
			confirmed += w
		}
	}
	if total == 0 {
		return Composite{ATRRatio: 1, BBWidthRatio: 1, VolumeConfirmed: true}
	}
	c.ATRRatio /= total
	c.BBWidthRatio /= total
	c.ADX /= total
	c.VolumeConfirmed = confirmed/total >= 0.5
	return c
}

func defaultResult(symbol string, now time.Time, reason string) *models.DetectionResult {
	return &models.DetectionResult{
		Symbol:         symbol,
		Regime:         models.RegimeStable,
		ProposedRegime: models.RegimeStable,
		Confidence:     0,
		ATRRatio:       1,
		BBWidthRatio:   1,
		Timeframes:     map[models.Timeframe]*models.TimeframeIndicators{},
		Evidence:       map[models.Timeframe]*models.Evidence{},
		Reasoning:      reason,
		Timestamp:      now,
	}
}

func (e *Engine) onChange(ctx context.Context, res *models.DetectionResult, old models.Regime, percentile float64) {
	fields := logrus.Fields{
		"symbol":     res.Symbol,
		"old_regime": old,
		"new_regime": res.Regime,
		"confidence": res.Confidence,
	}
	e.logger.WithFields(fields).Info("Regime changed")
	e.recorder.RegimeChanged(res.Symbol, old, res.Regime)

	if e.ledger != nil {
		ev, err := NewChangeEvent(res, old, percentile)
		if err == nil {
			err = e.ledger.AppendRegimeEvent(ctx, ev)
		}
		if err != nil {
			e.logger.WithFields(fields).WithError(err).Warn("Failed to persist regime change event")
			e.recorder.PersistenceFailure("append_regime_event")
		}
	}

	if e.notifier == nil || !res.Regime.IsAdvanced() {
		return
	}
	alert := models.RegimeAlert{
		Symbol:            res.Symbol,
		Regime:            res.Regime,
		Confidence:        res.Confidence,
		SessionTag:        models.SessionAt(res.Timestamp),
		ATRRatio:          res.ATRRatio,
		BBWidthRatio:      res.BBWidthRatio,
		RecommendedAction: models.RecommendedAction(res.Regime),
		Timestamp:         res.Timestamp,
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("Failed to deliver regime alert")
		e.recorder.AlertSent(res.Regime, false)
		return
	}
	e.recorder.AlertSent(res.Regime, true)
}

func (e *Engine) publish(ctx context.Context, res *models.DetectionResult) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, res.Summary()); err != nil {
		e.logger.WithFields(logrus.Fields{"symbol": res.Symbol}).WithError(err).Warn("Failed to publish regime")
		e.recorder.PersistenceFailure("publish_regime")
	}
}

// GetRegimeHistory returns up to limit of the newest confirmed entries for symbol in
// chronological order. A non-positive limit returns everything held.
func (e *Engine) GetRegimeHistory(symbol string, limit int, includeMetrics bool) []models.RegimeHistoryEntry {
	return e.events.History(NormalizeSymbol(symbol), limit, includeMetrics)
}

// RecentEvents reads durable change events, newest first.
func (e *Engine) RecentEvents(ctx context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error) {
	if e.ledger == nil {
		return nil, nil
	}
	return e.ledger.RecentRegimeEvents(ctx, NormalizeSymbol(symbol), limit)
}

// cachedBreakout returns the cached breakout, hydrating it from the ledger on first use.
func (e *Engine) cachedBreakout(ctx context.Context, symbol string, tf models.Timeframe) *models.BreakoutEvent {
	ev, loaded := e.tracking.LastBreakout(symbol, tf)
	if ev != nil || loaded || e.ledger == nil {
		return ev
	}
	stored, err := e.ledger.ActiveBreakout(ctx, symbol, tf)
	switch {
	case errors.Is(err, models.ErrBreakoutNotFound):
		e.tracking.HydrateBreakout(symbol, tf, nil)
	case err != nil:
		e.logger.WithFields(logrus.Fields{
			"symbol":    symbol,
			"timeframe": tf,
		}).WithError(err).Warn("Failed to load active breakout")
		e.recorder.PersistenceFailure("active_breakout")
		return nil
	default:
		e.tracking.HydrateBreakout(symbol, tf, stored)
	}
	ev, _ = e.tracking.LastBreakout(symbol, tf)
	return ev
}

// GetTimeSinceBreakout reports the age of the last breakout on (symbol, tf).
func (e *Engine) GetTimeSinceBreakout(ctx context.Context, symbol string, tf models.Timeframe, now time.Time) (*models.BreakoutInfo, bool) {
	symbol = NormalizeSymbol(symbol)
	ev := e.cachedBreakout(ctx, symbol, tf)
	if ev == nil {
		return nil, false
	}
	minutes := now.Sub(ev.Timestamp).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return &models.BreakoutInfo{
		Minutes:         minutes,
		Type:            ev.Type,
		Price:           ev.Price,
		IsRecent:        minutes <= e.cfg.BreakoutRecentMinutes,
		VolumeConfirmed: ev.VolumeConfirmed,
	}, true
}

// RecordBreakout registers a breakout unless it duplicates the cached one within 1%.
// It reports whether the breakout was accepted. Ledger failures are logged only.
// Externally reported breakouts carry no volume series and count as volume confirmed.
func (e *Engine) RecordBreakout(ctx context.Context, symbol string, tf models.Timeframe, kind models.BreakoutType, price float64, at time.Time) bool {
	return e.recordBreakout(ctx, models.BreakoutEvent{
		Symbol:          NormalizeSymbol(symbol),
		Timeframe:       tf,
		Type:            kind,
		Price:           price,
		Timestamp:       at,
		VolumeConfirmed: true,
	})
}

func (e *Engine) recordBreakout(ctx context.Context, ev models.BreakoutEvent) bool {
	symbol, tf := ev.Symbol, ev.Timeframe
	e.cachedBreakout(ctx, symbol, tf)

	ev.Timestamp = ev.Timestamp.UTC()
	ev.IsActive = true
	ev.CreatedAt = time.Now().UTC()
	fields := logrus.Fields{
		"symbol":           symbol,
		"timeframe":        tf,
		"type":             ev.Type,
		"price":            ev.Price,
		"volume_confirmed": ev.VolumeConfirmed,
	}

	// claim, persist and cache update happen in one critical section so the cache
	// ends on the row the ledger committed last
	e.breakoutMu.Lock()
	defer e.breakoutMu.Unlock()

	if !e.tracking.ClaimBreakout(symbol, tf, ev, breakoutDedupeTolerance) {
		e.logger.WithFields(fields).Debug("Duplicate breakout suppressed")
		return false
	}

	if e.ledger != nil {
		saved, err := e.ledger.RecordBreakout(ctx, ev)
		if err != nil {
			e.logger.WithFields(fields).WithError(err).Warn("Failed to persist breakout")
			e.recorder.PersistenceFailure("record_breakout")
		} else {
			e.tracking.SetBreakout(symbol, tf, &saved)
		}
	}

	e.recorder.BreakoutRecorded(symbol, tf, ev.Type)
	e.logger.WithFields(fields).Info("Breakout recorded")
	return true
}
