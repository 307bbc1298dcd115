package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pruner is the retention surface of a ledger store.
type Pruner interface {
	PruneRegimeEvents(ctx context.Context, before time.Time) (int64, error)
	PruneBreakouts(ctx context.Context, before time.Time) (int64, error)
}

// CleanupConfig defines cleanup configuration
type CleanupConfig struct {
	RegimeEventRetentionHours int
	BreakoutRetentionHours    int
	CleanupIntervalMinutes    int
}

// CleanupResult reports what one cleanup pass removed.
type CleanupResult struct {
	RegimeEvents int64 `json:"regime_events"`
	Breakouts    int64 `json:"breakouts"`
}

// CleanupService handles automatic cleanup of old ledger rows
type CleanupService struct {
	store  Pruner
	logger *logrus.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(store Pruner, logger *logrus.Logger) *CleanupService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		store:  store,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the cleanup service with periodic cleanup
func (c *CleanupService) Start(config CleanupConfig) {
	interval := time.Duration(config.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	c.logger.WithFields(logrus.Fields{
		"regime_event_retention_hours": config.RegimeEventRetentionHours,
		"breakout_retention_hours":     config.BreakoutRetentionHours,
		"interval":                     interval.String(),
	}).Info("Starting cleanup service")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		// Run initial cleanup
		if _, err := c.RunCleanup(c.ctx, config); err != nil {
			c.logger.WithError(err).Warn("Initial cleanup failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RunCleanup(c.ctx, config); err != nil {
					c.logger.WithError(err).Warn("Cleanup failed")
				}
			}
		}
	}()
}

// Stop stops the cleanup service and waits for an in-flight pass to finish
func (c *CleanupService) Stop() {
	c.logger.Info("Stopping cleanup service")
	c.cancel()
	c.wg.Wait()
}

// RunCleanup performs one cleanup pass. A non-positive retention disables that table's pruning.
func (c *CleanupService) RunCleanup(ctx context.Context, config CleanupConfig) (CleanupResult, error) {
	var result CleanupResult
	now := c.now()

	if config.RegimeEventRetentionHours > 0 {
		cutoff := now.Add(-time.Duration(config.RegimeEventRetentionHours) * time.Hour)
		n, err := c.store.PruneRegimeEvents(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to cleanup regime events: %w", err)
		}
		result.RegimeEvents = n
	}

	if config.BreakoutRetentionHours > 0 {
		cutoff := now.Add(-time.Duration(config.BreakoutRetentionHours) * time.Hour)
		n, err := c.store.PruneBreakouts(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to cleanup breakouts: %w", err)
		}
		result.Breakouts = n
	}

	if result.RegimeEvents > 0 || result.Breakouts > 0 {
		c.logger.WithFields(logrus.Fields{
			"regime_events": result.RegimeEvents,
			"breakouts":     result.Breakouts,
		}).Info("Cleaned up old ledger records")
	}
	return result, nil
}
