package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/celebrum-regime/internal/services"
	"github.com/irfndi/celebrum-regime/internal/utils"
)

// CleanupInterface defines the interface for cleanup operations
type CleanupInterface interface {
	RunCleanup(ctx context.Context, config services.CleanupConfig) (services.CleanupResult, error)
}

// CleanupHandler handles cleanup-related API endpoints
type CleanupHandler struct {
	cleanupService CleanupInterface
	defaults       services.CleanupConfig
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(cleanupService CleanupInterface, defaults services.CleanupConfig) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
		defaults:       defaults,
	}
}

func hoursQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 {
		return 0, utils.NewFieldError(name, "must be a positive integer")
	}
	return hours, nil
}

// TriggerCleanup manually triggers a cleanup operation
func (h *CleanupHandler) TriggerCleanup(c *gin.Context) {
	config := h.defaults

	var err error
	if config.RegimeEventRetentionHours, err = hoursQuery(c, "regime_event_hours", config.RegimeEventRetentionHours); err != nil {
		badRequest(c, err)
		return
	}
	if config.BreakoutRetentionHours, err = hoursQuery(c, "breakout_hours", config.BreakoutRetentionHours); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.cleanupService.RunCleanup(c.Request.Context(), config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run cleanup"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cleanup completed successfully",
		"removed": result,
	})
}
