package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Cleanup     CleanupConfig   `mapstructure:"cleanup"`
	Regime      RegimeConfig    `mapstructure:"regime"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	AdminAPIKey string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	WALMode       bool   `mapstructure:"wal_mode"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
	CacheSizeMB   int    `mapstructure:"cache_size_mb"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	RegimeTTL string `mapstructure:"regime_ttl"`
}

// RegimeTTLDuration parses RegimeTTL, falling back to ten minutes.
func (c RedisConfig) RegimeTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.RegimeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Enabled reports whether alerts can be delivered.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPLogs     bool   `mapstructure:"otlp_logs"`
}

type CleanupConfig struct {
	RegimeEventRetentionHours int `mapstructure:"regime_event_retention_hours"`
	BreakoutRetentionHours    int `mapstructure:"breakout_retention_hours"`
	CleanupIntervalMinutes    int `mapstructure:"cleanup_interval_minutes"`
}

type RegimeConfig struct {
	HistoryLimit          int     `mapstructure:"history_limit"`
	TrackingWindow        int     `mapstructure:"tracking_window"`
	PersistenceCount      int     `mapstructure:"persistence_count"`
	InertiaCount          int     `mapstructure:"inertia_count"`
	CooldownCycles        int     `mapstructure:"cooldown_cycles"`
	ATRVolatile           float64 `mapstructure:"atr_volatile"`
	ATRStable             float64 `mapstructure:"atr_stable"`
	BBVolatile            float64 `mapstructure:"bb_volatile"`
	BBStable              float64 `mapstructure:"bb_stable"`
	ADXTrending           float64 `mapstructure:"adx_trending"`
	ADXRanging            float64 `mapstructure:"adx_ranging"`
	SpikeRatio            float64 `mapstructure:"spike_ratio"`
	BreakoutRecentMinutes float64 `mapstructure:"breakout_recent_minutes"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("server.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Database.Driver = strings.ToLower(config.Database.Driver)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks driver names and threshold signs.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", c.Database.Driver)
	}

	switch c.Telemetry.Exporter {
	case "", "stdout", "otlp":
	default:
		return fmt.Errorf("unsupported telemetry exporter %q", c.Telemetry.Exporter)
	}

	if c.Redis.RegimeTTL != "" {
		if _, err := time.ParseDuration(c.Redis.RegimeTTL); err != nil {
			return fmt.Errorf("invalid redis.regime_ttl: %w", err)
		}
	}

	r := c.Regime
	for name, v := range map[string]float64{
		"history_limit":           float64(r.HistoryLimit),
		"tracking_window":         float64(r.TrackingWindow),
		"persistence_count":       float64(r.PersistenceCount),
		"inertia_count":           float64(r.InertiaCount),
		"atr_volatile":            r.ATRVolatile,
		"atr_stable":              r.ATRStable,
		"bb_volatile":             r.BBVolatile,
		"bb_stable":               r.BBStable,
		"adx_trending":            r.ADXTrending,
		"adx_ranging":             r.ADXRanging,
		"spike_ratio":             r.SpikeRatio,
		"breakout_recent_minutes": r.BreakoutRecentMinutes,
	} {
		if v < 0 {
			return fmt.Errorf("regime.%s must not be negative, got %v", name, v)
		}
	}
	if r.ATRStable > r.ATRVolatile {
		return fmt.Errorf("regime.atr_stable (%v) must not exceed regime.atr_volatile (%v)", r.ATRStable, r.ATRVolatile)
	}
	if r.BBStable > r.BBVolatile {
		return fmt.Errorf("regime.bb_stable (%v) must not exceed regime.bb_volatile (%v)", r.BBStable, r.BBVolatile)
	}

	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.admin_api_key", "")

	// Database
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.sqlite_path", "data/regime.db")
	viper.SetDefault("database.wal_mode", true)
	viper.SetDefault("database.busy_timeout_ms", 5000)
	viper.SetDefault("database.cache_size_mb", 16)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "celebrum_regime")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_conns", 10)

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.regime_ttl", "10m")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "celebrum-regime")
	viper.SetDefault("telemetry.otlp_logs", false)

	// Cleanup
	viper.SetDefault("cleanup.regime_event_retention_hours", 24*30)
	viper.SetDefault("cleanup.breakout_retention_hours", 24*7)
	viper.SetDefault("cleanup.cleanup_interval_minutes", 60)

	// Regime
	viper.SetDefault("regime.history_limit", 100)
	viper.SetDefault("regime.tracking_window", 20)
	viper.SetDefault("regime.persistence_count", 3)
	viper.SetDefault("regime.inertia_count", 5)
	viper.SetDefault("regime.cooldown_cycles", 5)
	viper.SetDefault("regime.atr_volatile", 1.4)
	viper.SetDefault("regime.atr_stable", 1.2)
	viper.SetDefault("regime.bb_volatile", 1.8)
	viper.SetDefault("regime.bb_stable", 1.5)
	viper.SetDefault("regime.adx_trending", 25.0)
	viper.SetDefault("regime.adx_ranging", 20.0)
	viper.SetDefault("regime.spike_ratio", 1.5)
	viper.SetDefault("regime.breakout_recent_minutes", 30.0)
}
