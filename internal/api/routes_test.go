package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-regime/internal/api/handlers"
	"github.com/irfndi/celebrum-regime/internal/config"
	"github.com/irfndi/celebrum-regime/internal/database"
	"github.com/irfndi/celebrum-regime/internal/metrics"
	"github.com/irfndi/celebrum-regime/internal/regime"
	"github.com/irfndi/celebrum-regime/internal/services"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.NewSQLiteConnection(config.DatabaseConfig{
		Driver:        "sqlite",
		SQLitePath:    filepath.Join(t.TempDir(), "regime.db"),
		WALMode:       true,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ledger := database.NewSQLiteLedger(db.DB())
	recorder := metrics.NewWithRegistry(prometheus.NewRegistry())
	engine := regime.NewEngine(regime.DefaultConfig(), logger,
		regime.WithLedger(ledger),
		regime.WithRecorder(recorder),
	)

	router := gin.New()
	SetupRoutes(router, Dependencies{
		Engine:          engine,
		Cleanup:         services.NewCleanupService(ledger, logger),
		CleanupDefaults: services.CleanupConfig{RegimeEventRetentionHours: 24, BreakoutRetentionHours: 24},
		Metrics:         recorder.Handler(),
		Health:          map[string]handlers.HealthChecker{"database": db},
		AdminAPIKey:     testAdminKey,
		Version:         "test",
		Logger:          logger,
	})
	return router
}

func serve(router *gin.Engine, method, path, body string, admin bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-API-Key", testAdminKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const detectBody = `{
	"timestamp": "2024-03-04T09:15:00Z",
	"timeframes": {
		"M15": {"atr14": 10, "atr50": 10, "bb_upper": 101, "bb_middle": 100, "bb_lower": 99, "adx": 18}
	}
}`

func TestSetupRoutes_Health(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodGet, "/health", "", false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)
}

func TestSetupRoutes_DetectRequiresAdmin(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodPost, "/api/v1/regimes/BTCUSD/detect", detectBody, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/breakouts/BTCUSD/M15", `{"type":"BULLISH","price":100}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/admin/cleanup", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRoutes_DetectThenHistory(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodPost, "/api/v1/regimes/btcusd/detect", detectBody, true)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "BTCUSD", result["symbol"])
	assert.NotEmpty(t, result["regime"])

	w = serve(router, http.MethodGet, "/api/v1/regimes/BTCUSD/history?metrics=true", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = serve(router, http.MethodGet, "/api/v1/regimes/BTCUSD/events", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `regime_detections_total{regime=`)
}

func TestSetupRoutes_Breakouts(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodGet, "/api/v1/breakouts/ETHUSD/H1", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/breakouts/ETHUSD/H1", `{"type":"BEARISH","price":3120.5}`, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/breakouts/ETHUSD/H1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"BEARISH"`)
}

func TestSetupRoutes_LatestWithoutCache(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodGet, "/api/v1/regimes/BTCUSD/latest", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetupRoutes_AdminCleanup(t *testing.T) {
	router := newTestServer(t)

	w := serve(router, http.MethodPost, "/api/v1/admin/cleanup?breakout_hours=1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cleanup completed successfully")
}
