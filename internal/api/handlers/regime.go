package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-regime/internal/cache"
	"github.com/irfndi/celebrum-regime/internal/middleware"
	"github.com/irfndi/celebrum-regime/internal/models"
	"github.com/irfndi/celebrum-regime/internal/utils"
	"github.com/irfndi/celebrum-regime/pkg/interfaces"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	defaultEventLimit   = 50
	maxEventLimit       = 500
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,31}$`)

// RegimeService is the engine surface the HTTP layer drives.
type RegimeService interface {
	Detect(ctx context.Context, symbol string, data models.TimeframeData, now time.Time) *models.DetectionResult
	GetRegimeHistory(symbol string, limit int, includeMetrics bool) []models.RegimeHistoryEntry
	RecentEvents(ctx context.Context, symbol string, limit int) ([]models.RegimeChangeEvent, error)
	GetTimeSinceBreakout(ctx context.Context, symbol string, tf models.Timeframe, now time.Time) (*models.BreakoutInfo, bool)
	RecordBreakout(ctx context.Context, symbol string, tf models.Timeframe, kind models.BreakoutType, price float64, at time.Time) bool
}

// RegimeReader serves the last published regime per symbol.
type RegimeReader interface {
	Latest(ctx context.Context, symbol string) (*models.RegimeSummary, error)
}

// RegimeHandler exposes regime detection over HTTP.
type RegimeHandler struct {
	engine RegimeService
	cache  RegimeReader
	logger *logrus.Logger
	now    func() time.Time
}

// NewRegimeHandler creates a regime handler. cache may be nil when Redis is disabled.
func NewRegimeHandler(engine RegimeService, cache RegimeReader, logger *logrus.Logger) *RegimeHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RegimeHandler{
		engine: engine,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// DetectRequest is the body of a detection call.
type DetectRequest struct {
	Timestamp  *time.Time                           `json:"timestamp,omitempty"`
	Timeframes map[string]*models.TimeframeSnapshot `json:"timeframes"`
}

// RecordBreakoutRequest is the body of a breakout registration.
type RecordBreakoutRequest struct {
	Type      string     `json:"type"`
	Price     float64    `json:"price"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	if ve, ok := utils.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func symbolParam(c *gin.Context) (string, error) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		return "", utils.NewFieldError("symbol", "is required")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", utils.NewFieldError("symbol", "contains unsupported characters")
	}
	return strings.ToUpper(symbol), nil
}

func limitQuery(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > max {
		return 0, utils.NewFieldError("limit", "must be an integer between 1 and %d", max)
	}
	return limit, nil
}

// Detect runs one detection cycle on the supplied snapshots.
func (h *RegimeHandler) Detect(c *gin.Context) {
	symbol, err := symbolParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, utils.NewValidationErrorf("invalid request body: %v", err))
		return
	}

	data := make(models.TimeframeData, len(req.Timeframes))
	for key, snap := range req.Timeframes {
		tf, err := models.ParseTimeframe(key)
		if err != nil {
			badRequest(c, utils.NewFieldError("timeframes", "%v", err))
			return
		}
		if snap == nil {
			continue
		}
		data[tf] = snap
	}

	now := h.now()
	if req.Timestamp != nil {
		now = *req.Timestamp
	}

	middleware.AddSpanAttribute(c, "regime.symbol", symbol)
	middleware.AddSpanAttribute(c, "regime.timeframes", len(data))

	result := h.engine.Detect(c.Request.Context(), symbol, data, now)
	c.JSON(http.StatusOK, result)
}

// GetHistory returns confirmed regimes held in memory, oldest first.
func (h *RegimeHandler) GetHistory(c *gin.Context) {
	symbol, err := symbolParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := limitQuery(c, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		badRequest(c, err)
		return
	}

	includeMetrics := false
	if raw := c.Query("metrics"); raw != "" {
		includeMetrics, err = strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, utils.NewFieldError("metrics", "must be a boolean"))
			return
		}
	}

	history := h.engine.GetRegimeHistory(symbol, limit, includeMetrics)
	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"count":   len(history),
		"history": history,
	})
}

// GetEvents returns durable regime change events, newest first.
func (h *RegimeHandler) GetEvents(c *gin.Context) {
	symbol, err := symbolParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := limitQuery(c, defaultEventLimit, maxEventLimit)
	if err != nil {
		badRequest(c, err)
		return
	}

	events, err := h.engine.RecentEvents(c.Request.Context(), symbol, limit)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"symbol": symbol}).WithError(err).Error("Failed to read regime events")
		middleware.RecordError(c, err, "regime event read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read regime events"})
		return
	}
	if events == nil {
		events = []models.RegimeChangeEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"count":  len(events),
		"events": events,
	})
}

// GetLatest returns the last published regime for symbol with ratios rounded for display.
func (h *RegimeHandler) GetLatest(c *gin.Context) {
	symbol, err := symbolParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Regime cache is not enabled"})
		return
	}

	summary, err := h.cache.Latest(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, cache.ErrRegimeNotCached):
		c.JSON(http.StatusNotFound, gin.H{"error": "No regime published for symbol", "symbol": symbol})
	case err != nil:
		h.logger.WithFields(logrus.Fields{"symbol": symbol}).WithError(err).Error("Failed to read cached regime")
		middleware.RecordError(c, err, "regime cache read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cached regime"})
	default:
		c.JSON(http.StatusOK, interfaces.NewRegimeSnapshot(*summary))
	}
}

func breakoutParams(c *gin.Context) (string, models.Timeframe, error) {
	symbol, err := symbolParam(c)
	if err != nil {
		return "", "", err
	}
	tf, err := models.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		return "", "", utils.NewFieldError("timeframe", "%v", err)
	}
	return symbol, tf, nil
}

// GetBreakout reports the time since the last breakout on a symbol and timeframe.
func (h *RegimeHandler) GetBreakout(c *gin.Context) {
	symbol, tf, err := breakoutParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	info, ok := h.engine.GetTimeSinceBreakout(c.Request.Context(), symbol, tf, h.now())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "No breakout recorded",
			"symbol":    symbol,
			"timeframe": tf,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": tf,
		"breakout":  info,
	})
}

// RecordBreakout registers a breakout. Near-duplicates of the current breakout are ignored.
func (h *RegimeHandler) RecordBreakout(c *gin.Context) {
	symbol, tf, err := breakoutParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	var req RecordBreakoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, utils.NewValidationErrorf("invalid request body: %v", err))
		return
	}

	kind := models.BreakoutType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if kind != models.BreakoutBullish && kind != models.BreakoutBearish {
		badRequest(c, utils.NewFieldError("type", "must be BULLISH or BEARISH"))
		return
	}
	if req.Price <= 0 {
		badRequest(c, utils.NewFieldError("price", "must be positive"))
		return
	}

	at := h.now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	accepted := h.engine.RecordBreakout(c.Request.Context(), symbol, tf, kind, req.Price, at)
	status := http.StatusOK
	if accepted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"symbol":    symbol,
		"timeframe": tf,
		"accepted":  accepted,
	})
}
