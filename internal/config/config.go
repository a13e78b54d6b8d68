package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Storage    StorageConfig    `mapstructure:"storage"`
	History    HistoryConfig    `mapstructure:"history"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	API        APIConfig        `mapstructure:"api"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// EngineConfig defines the session engine cadence and rules
type EngineConfig struct {
	TickInterval      string `mapstructure:"tick_interval"`
	GraceTicks        int    `mapstructure:"grace_ticks"`
	PersistEvery      int    `mapstructure:"persist_every"`
	ExtensionMinutes  int    `mapstructure:"extension_minutes"`
	BreakDuration     string `mapstructure:"break_duration"`
	MinHistorySeconds int    `mapstructure:"min_history_seconds"`
	SecondsPerItem    int    `mapstructure:"seconds_per_item"`
	ClassifyTimeout   string `mapstructure:"classify_timeout"`
	AutoStart         bool   `mapstructure:"auto_start"`
}

// DetectorConfig defines the foreground detector
type DetectorConfig struct {
	Source            string   `mapstructure:"source"` // "push" or "command"
	Command           string   `mapstructure:"command"`
	Args              []string `mapstructure:"args"`
	PermissionCommand string   `mapstructure:"permission_command"`
	PermissionArgs    []string `mapstructure:"permission_args"`
	QueryWindow       string   `mapstructure:"query_window"`
	Freshness         string   `mapstructure:"freshness"`
	CacheTTL          string   `mapstructure:"cache_ttl"`
	CacheSize         int      `mapstructure:"cache_size"`
	QueryTimeout      string   `mapstructure:"query_timeout"`
	ScreenWidth       int      `mapstructure:"screen_width"`
	ScreenHeight      int      `mapstructure:"screen_height"`
}

// ClassifierConfig defines the tiered classifier thresholds
type ClassifierConfig struct {
	PatternMinConfidence float64 `mapstructure:"pattern_min_confidence"`
	FallbackConfidence   float64 `mapstructure:"fallback_confidence"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// HistoryConfig defines history retention
type HistoryConfig struct {
	RetentionDays  int    `mapstructure:"retention_days"`
	DailyResetTime string `mapstructure:"daily_reset_time"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig defines the control API
type APIConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second per client
	Burst     int     `mapstructure:"burst"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	return decode(v)
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("REELFOCUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile reports a missing explicit path as an os error
	return os.IsNotExist(err)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8765)
	v.SetDefault("server.metrics_port", 9090)

	// Engine defaults
	v.SetDefault("engine.tick_interval", "1s")
	v.SetDefault("engine.grace_ticks", 3)
	v.SetDefault("engine.persist_every", 5)
	v.SetDefault("engine.extension_minutes", 5)
	v.SetDefault("engine.break_duration", "5m")
	v.SetDefault("engine.min_history_seconds", 10)
	v.SetDefault("engine.seconds_per_item", 15)
	v.SetDefault("engine.classify_timeout", "750ms")
	v.SetDefault("engine.auto_start", true)

	// Detector defaults
	v.SetDefault("detector.source", "push")
	v.SetDefault("detector.command", "")
	v.SetDefault("detector.args", []string{})
	v.SetDefault("detector.permission_command", "")
	v.SetDefault("detector.permission_args", []string{})
	v.SetDefault("detector.query_window", "10s")
	v.SetDefault("detector.freshness", "2s")
	v.SetDefault("detector.cache_ttl", "800ms")
	v.SetDefault("detector.cache_size", 16)
	v.SetDefault("detector.query_timeout", "500ms")
	v.SetDefault("detector.screen_width", 1080)
	v.SetDefault("detector.screen_height", 2400)

	// Classifier defaults
	v.SetDefault("classifier.pattern_min_confidence", 0.7)
	v.SetDefault("classifier.fallback_confidence", 0.5)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/reelfocus/reelfocus.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// History defaults
	v.SetDefault("history.retention_days", 90)
	v.SetDefault("history.daily_reset_time", "00:00")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.rate_limit", 20.0)
	v.SetDefault("api.burst", 40)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if d, err := time.ParseDuration(cfg.Engine.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid engine.tick_interval: %q", cfg.Engine.TickInterval)
	}
	if cfg.Engine.GraceTicks < 0 {
		return fmt.Errorf("engine.grace_ticks must not be negative")
	}
	if cfg.Engine.PersistEvery < 1 {
		return fmt.Errorf("engine.persist_every must be at least 1")
	}
	if cfg.Engine.ExtensionMinutes < 1 {
		return fmt.Errorf("engine.extension_minutes must be at least 1")
	}
	if cfg.Engine.SecondsPerItem < 1 {
		return fmt.Errorf("engine.seconds_per_item must be at least 1")
	}

	switch cfg.Detector.Source {
	case "push":
	case "command":
		if cfg.Detector.Command == "" {
			return fmt.Errorf("detector.command is required when detector.source is command")
		}
	default:
		return fmt.Errorf("unsupported detector source: %s (must be push or command)", cfg.Detector.Source)
	}

	for name, value := range map[string]float64{
		"classifier.pattern_min_confidence": cfg.Classifier.PatternMinConfidence,
		"classifier.fallback_confidence":    cfg.Classifier.FallbackConfidence,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, value)
		}
	}

	if cfg.History.RetentionDays < 1 {
		return fmt.Errorf("history.retention_days must be at least 1")
	}
	if _, err := time.Parse("15:04", cfg.History.DailyResetTime); err != nil {
		return fmt.Errorf("invalid history.daily_reset_time %q (expected HH:MM)", cfg.History.DailyResetTime)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
