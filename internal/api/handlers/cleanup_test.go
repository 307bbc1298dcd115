package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-regime/internal/services"
)

type fakeCleanup struct {
	got    []services.CleanupConfig
	result services.CleanupResult
	err    error
}

func (f *fakeCleanup) RunCleanup(ctx context.Context, config services.CleanupConfig) (services.CleanupResult, error) {
	f.got = append(f.got, config)
	return f.result, f.err
}

func cleanupRouter(svc CleanupInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCleanupHandler(svc, services.CleanupConfig{
		RegimeEventRetentionHours: 720,
		BreakoutRetentionHours:    168,
		CleanupIntervalMinutes:    60,
	})
	router := gin.New()
	router.POST("/cleanup", h.TriggerCleanup)
	return router
}

func TestCleanupHandler_TriggerCleanup(t *testing.T) {
	svc := &fakeCleanup{result: services.CleanupResult{RegimeEvents: 4, Breakouts: 2}}
	router := cleanupRouter(svc)

	w := doRequest(router, http.MethodPost, "/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"regime_events":4`)
	require.Len(t, svc.got, 1)
	assert.Equal(t, 720, svc.got[0].RegimeEventRetentionHours)
	assert.Equal(t, 168, svc.got[0].BreakoutRetentionHours)

	w = doRequest(router, http.MethodPost, "/cleanup?regime_event_hours=48&breakout_hours=12", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.got, 2)
	assert.Equal(t, 48, svc.got[1].RegimeEventRetentionHours)
	assert.Equal(t, 12, svc.got[1].BreakoutRetentionHours)
}

func TestCleanupHandler_Errors(t *testing.T) {
	svc := &fakeCleanup{}
	router := cleanupRouter(svc)

	w := doRequest(router, http.MethodPost, "/cleanup?breakout_hours=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "breakout_hours", decode(t, w)["field"])
	assert.Empty(t, svc.got)

	svc.err = errors.New("disk I/O error")
	w = doRequest(router, http.MethodPost, "/cleanup", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
