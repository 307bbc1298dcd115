package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// Recorder implements regime.Recorder using Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	detections   *prometheus.CounterVec
	changes      *prometheus.CounterVec
	breakouts    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	latency      prometheus.Histogram
	activeRegime *prometheus.GaugeVec
}

// New creates a recorder on its own registry, with Go and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a recorder registering into reg.
func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_detections_total",
				Help: "Total number of regime detections by resulting regime",
			},
			[]string{"symbol", "regime"},
		),
		changes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_changes_total",
				Help: "Total number of confirmed regime changes",
			},
			[]string{"symbol", "from", "to"},
		),
		breakouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_breakouts_total",
				Help: "Total number of recorded breakouts",
			},
			[]string{"symbol", "timeframe", "type"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_persistence_failures_total",
				Help: "Total number of ledger or cache operations that failed during detection",
			},
			[]string{"op"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_alerts_total",
				Help: "Total number of regime alerts by delivery status",
			},
			[]string{"regime", "status"},
		),
		latency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regime_detection_duration_seconds",
				Help:    "Duration of a detection call in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		activeRegime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regime_active",
				Help: "1 for the currently confirmed regime of a symbol, 0 otherwise",
			},
			[]string{"symbol", "regime"},
		),
	}
}

// ObserveDetection records one detection call.
func (r *Recorder) ObserveDetection(symbol string, regime models.Regime, elapsed time.Duration) {
	r.detections.WithLabelValues(symbol, string(regime)).Inc()
	r.latency.Observe(elapsed.Seconds())
	for _, candidate := range models.AllRegimes {
		v := 0.0
		if candidate == regime {
			v = 1
		}
		r.activeRegime.WithLabelValues(symbol, string(candidate)).Set(v)
	}
}

// RegimeChanged records a confirmed transition.
func (r *Recorder) RegimeChanged(symbol string, from, to models.Regime) {
	r.changes.WithLabelValues(symbol, string(from), string(to)).Inc()
}

// BreakoutRecorded records a new breakout.
func (r *Recorder) BreakoutRecorded(symbol string, tf models.Timeframe, kind models.BreakoutType) {
	r.breakouts.WithLabelValues(symbol, string(tf), string(kind)).Inc()
}

// PersistenceFailure records a failed side-effect operation.
func (r *Recorder) PersistenceFailure(op string) {
	r.failures.WithLabelValues(op).Inc()
}

// AlertSent records an alert delivery attempt.
func (r *Recorder) AlertSent(regime models.Regime, delivered bool) {
	status := "failed"
	if delivered {
		status = "delivered"
	}
	r.alerts.WithLabelValues(string(regime), status).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
