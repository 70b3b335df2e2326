// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig selects the zap environment and level.
type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// FetchConfig governs the strategy cascade as a whole.
type FetchConfig struct {
	UserAgent              string `mapstructure:"user_agent"`
	PrimaryTimeoutSeconds  int    `mapstructure:"primary_timeout_seconds"`
	FallbackTimeoutSeconds int    `mapstructure:"fallback_timeout_seconds"`
}

// HeadlessConfig configures the browser rendering strategy.
type HeadlessConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxParallel int  `mapstructure:"max_parallel"`
}

// RateLimitConfig spaces out requests per domain.
type RateLimitConfig struct {
	MinIntervalMs int `mapstructure:"min_interval_ms"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold       int `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int `mapstructure:"recovery_timeout_seconds"`
}

// RetryConfig tunes per-strategy retry behavior.
type RetryConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
}

// ExtractionConfig tunes the content extraction pipeline.
type ExtractionConfig struct {
	ElementsToRemove   []string `mapstructure:"elements_to_remove"`
	ChunkSizeThreshold int      `mapstructure:"chunk_size_threshold"`
	ChunkNodeLimit     int      `mapstructure:"chunk_node_limit"`
	MemoryLimitMB      int      `mapstructure:"memory_limit_mb"`
	MemoryMultiplier   float64  `mapstructure:"memory_multiplier"`
	EnableChunking     bool     `mapstructure:"enable_chunking"`
	FallbackEnabled    bool     `mapstructure:"fallback_enabled"`
	MonitorMemory      bool     `mapstructure:"monitor_memory"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.env", "development")
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.primary_timeout_seconds", 30)
	v.SetDefault("fetch.fallback_timeout_seconds", 15)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("rate_limit.min_interval_ms", 1000)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout_seconds", 30)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay_ms", 1000)
	v.SetDefault("extraction.chunk_size_threshold", 100_000)
	v.SetDefault("extraction.chunk_node_limit", 50)
	v.SetDefault("extraction.memory_limit_mb", 100)
	v.SetDefault("extraction.memory_multiplier", 1.2)
	v.SetDefault("extraction.enable_chunking", true)
	v.SetDefault("extraction.fallback_enabled", true)
	v.SetDefault("extraction.monitor_memory", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.PrimaryTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.primary_timeout_seconds must be > 0")
	}
	if c.Fetch.FallbackTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.fallback_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Extraction.MemoryMultiplier < 1 {
		return fmt.Errorf("extraction.memory_multiplier must be >= 1")
	}
	return nil
}

// PrimaryTimeout returns the per-attempt budget for the browser strategy.
func (c Config) PrimaryTimeout() time.Duration {
	return time.Duration(c.Fetch.PrimaryTimeoutSeconds) * time.Second
}

// FallbackTimeout returns the per-attempt budget for the HTTP strategy.
func (c Config) FallbackTimeout() time.Duration {
	return time.Duration(c.Fetch.FallbackTimeoutSeconds) * time.Second
}

// MinInterval returns the per-domain spacing between requests.
func (c Config) MinInterval() time.Duration {
	return time.Duration(c.RateLimit.MinIntervalMs) * time.Millisecond
}

// RecoveryTimeout returns how long the breaker stays open before probing.
func (c Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.Breaker.RecoveryTimeoutSeconds) * time.Second
}

// RetryInitialDelay returns the first backoff step.
func (c Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}
