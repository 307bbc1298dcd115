package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-regime/internal/api/handlers"
	"github.com/irfndi/celebrum-regime/internal/middleware"
	"github.com/irfndi/celebrum-regime/internal/services"
)

// Dependencies are the collaborators the HTTP surface is built from.
// Cache, Cleanup and Metrics are optional.
type Dependencies struct {
	Engine          handlers.RegimeService
	Cache           handlers.RegimeReader
	Cleanup         handlers.CleanupInterface
	CleanupDefaults services.CleanupConfig
	Metrics         http.Handler
	Health          map[string]handlers.HealthChecker
	AdminAPIKey     string
	Version         string
	Logger          *logrus.Logger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Health)
	regimeHandler := handlers.NewRegimeHandler(deps.Engine, deps.Cache, deps.Logger)
	adminMiddleware := middleware.NewAdminMiddleware(deps.AdminAPIKey)

	router.GET("/health", healthHandler.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		regimes := v1.Group("/regimes/:symbol")
		{
			regimes.POST("/detect", adminMiddleware.RequireAdminAuth(), regimeHandler.Detect)
			regimes.GET("/history", regimeHandler.GetHistory)
			regimes.GET("/events", regimeHandler.GetEvents)
			regimes.GET("/latest", regimeHandler.GetLatest)
		}

		breakouts := v1.Group("/breakouts/:symbol/:timeframe")
		{
			breakouts.GET("", regimeHandler.GetBreakout)
			breakouts.POST("", adminMiddleware.RequireAdminAuth(), regimeHandler.RecordBreakout)
		}

		if deps.Cleanup != nil {
			admin := v1.Group("/admin", adminMiddleware.RequireAdminAuth())
			{
				cleanupHandler := handlers.NewCleanupHandler(deps.Cleanup, deps.CleanupDefaults)
				admin.POST("/cleanup", cleanupHandler.TriggerCleanup)
			}
		}
	}
}
