package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-regime/internal/api"
	"github.com/irfndi/celebrum-regime/internal/api/handlers"
	"github.com/irfndi/celebrum-regime/internal/cache"
	"github.com/irfndi/celebrum-regime/internal/config"
	"github.com/irfndi/celebrum-regime/internal/database"
	"github.com/irfndi/celebrum-regime/internal/logging"
	"github.com/irfndi/celebrum-regime/internal/metrics"
	"github.com/irfndi/celebrum-regime/internal/middleware"
	"github.com/irfndi/celebrum-regime/internal/regime"
	"github.com/irfndi/celebrum-regime/internal/services"
	"github.com/irfndi/celebrum-regime/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// ledgerStore is what the engine, the cleanup service and /health need from a database.
type ledgerStore interface {
	regime.Ledger
	services.Pruner
}

type store struct {
	ledger ledgerStore
	health handlers.HealthChecker
	close  func()
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	ctx := context.Background()

	// Initialize telemetry first
	provider, err := telemetry.InitTracer(ctx, telemetry.TelemetryConfig{
		Enabled:      cfg.Telemetry.Enabled,
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPLogs {
		logProvider, err := logging.NewOTLPLoggerProvider(ctx, logging.OTLPConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: telemetry.ServiceVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
		} else {
			logger.AddHook(logging.NewOTLPHook(logProvider.Logger(cfg.Telemetry.ServiceName), logger.GetLevel()))
			defer func() {
				_ = logProvider.Shutdown(context.Background())
			}()
		}
	}

	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.close()

	recorder := metrics.New()
	health := map[string]handlers.HealthChecker{"database": st.health}

	opts := []regime.Option{
		regime.WithLedger(st.ledger),
		regime.WithRecorder(recorder),
	}

	var reader handlers.RegimeReader
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()

		regimeCache := cache.NewRedisRegimeCache(redisClient.Client, cfg.Redis.RegimeTTLDuration(), logger)
		opts = append(opts, regime.WithPublisher(regimeCache))
		reader = regimeCache
		health["redis"] = redisClient
	}

	if cfg.Telegram.Enabled() {
		notifier, err := services.NewRegimeNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		opts = append(opts, regime.WithNotifier(notifier))
	} else {
		logger.Info("Telegram alerts disabled")
	}

	engine := regime.NewEngine(engineConfig(cfg.Regime), logger, opts...)

	cleanupConfig := services.CleanupConfig{
		RegimeEventRetentionHours: cfg.Cleanup.RegimeEventRetentionHours,
		BreakoutRetentionHours:    cfg.Cleanup.BreakoutRetentionHours,
		CleanupIntervalMinutes:    cfg.Cleanup.CleanupIntervalMinutes,
	}
	cleanupService := services.NewCleanupService(st.ledger, logger)
	cleanupService.Start(cleanupConfig)
	defer cleanupService.Stop()

	router := newRouter(cfg, api.Dependencies{
		Engine:          engine,
		Cache:           reader,
		Cleanup:         cleanupService,
		CleanupDefaults: cleanupConfig,
		Metrics:         recorder.Handler(),
		Health:          health,
		AdminAPIKey:     cfg.Server.AdminAPIKey,
		Version:         telemetry.ServiceVersion,
		Logger:          logger,
	}, provider)

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"service": cfg.Telemetry.ServiceName,
			"version": telemetry.ServiceVersion,
			"port":    cfg.Server.Port,
			"driver":  cfg.Database.Driver,
		}).Info("Application startup")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Application shutdown")
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// openStore opens the configured ledger backend.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := database.NewPostgresConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &store{
			ledger: database.NewPostgresLedger(database.NewTracedPool(db.Pool, nil)),
			health: db,
			close:  db.Close,
		}, nil
	case "sqlite":
		db, err := database.NewSQLiteConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if cfg.WALMode {
			if mode, err := db.JournalMode(ctx); err == nil {
				logger.WithField("journal_mode", mode).Debug("SQLite journal mode")
			}
		}
		return &store{
			ledger: database.NewSQLiteLedger(db.DB()),
			health: db,
			close: func() {
				if err := db.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close database")
				}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func engineConfig(c config.RegimeConfig) regime.Config {
	return regime.Config{
		HistoryLimit:          c.HistoryLimit,
		TrackingWindow:        c.TrackingWindow,
		PersistenceCount:      c.PersistenceCount,
		InertiaCount:          c.InertiaCount,
		CooldownCycles:        c.CooldownCycles,
		ATRVolatile:           c.ATRVolatile,
		ATRStable:             c.ATRStable,
		BBVolatile:            c.BBVolatile,
		BBStable:              c.BBStable,
		ADXTrending:           c.ADXTrending,
		ADXRanging:            c.ADXRanging,
		SpikeRatio:            c.SpikeRatio,
		BreakoutRecentMinutes: c.BreakoutRecentMinutes,
		DisableInertia:        c.InertiaCount == 0,
	}
}

func newRouter(cfg *config.Config, deps api.Dependencies, provider *telemetry.Provider) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if provider != nil && provider.TracerProvider != nil {
		router.Use(middleware.TelemetryMiddleware(cfg.Telemetry.ServiceName, provider.TracerProvider))
	}

	api.SetupRoutes(router, deps)
	return router
}
