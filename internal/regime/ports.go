package regime

import (
	"context"
	"time"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// Ledger is the durable store for breakouts and regime-change events.
// ActiveBreakout returns models.ErrBreakoutNotFound when the key has no active row.
type Ledger interface {
	RecordBreakout(ctx context.Context, ev models.BreakoutEvent) (models.BreakoutEvent, error)
	ActiveBreakout(ctx context.Context, symbol string, tf models.Timeframe) (*models.BreakoutEvent, error)
	AppendRegimeEvent(ctx context.Context, ev models.RegimeChangeEvent) error
	RecentRegimeEvents(ctx context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error)
}

// Notifier delivers alerts for confirmed advanced regimes.
type Notifier interface {
	Notify(ctx context.Context, alert models.RegimeAlert) error
}

// Publisher makes the latest regime per symbol available to consumers.
type Publisher interface {
	Publish(ctx context.Context, summary models.RegimeSummary) error
}

// Recorder receives engine measurements.
type Recorder interface {
	ObserveDetection(symbol string, regime models.Regime, elapsed time.Duration)
	RegimeChanged(symbol string, from, to models.Regime)
	BreakoutRecorded(symbol string, tf models.Timeframe, kind models.BreakoutType)
	PersistenceFailure(op string)
	AlertSent(regime models.Regime, delivered bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDetection(string, models.Regime, time.Duration) {}
func (nopRecorder) RegimeChanged(string, models.Regime, models.Regime) {}
func (nopRecorder) BreakoutRecorded(string, models.Timeframe, models.BreakoutType) {}
func (nopRecorder) PersistenceFailure(string) {}
func (nopRecorder) AlertSent(models.Regime, bool) {}
