// Package app initializes and holds the long-lived services of the scrape
// pipeline, acting as a dependency injection container.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/webharvest/webharvest/internal/blockdetect"
	"github.com/webharvest/webharvest/internal/config"
	"github.com/webharvest/webharvest/internal/extract"
	"github.com/webharvest/webharvest/internal/fetcher/headless"
	"github.com/webharvest/webharvest/internal/fetcher/httpprobe"
	"github.com/webharvest/webharvest/internal/logging"
	"github.com/webharvest/webharvest/internal/metrics"
	"github.com/webharvest/webharvest/internal/orchestrator"
	"github.com/webharvest/webharvest/internal/policy/breaker"
	"github.com/webharvest/webharvest/internal/policy/ratelimit"
	"github.com/webharvest/webharvest/internal/policy/retry"
	"github.com/webharvest/webharvest/internal/service"
)

// App holds the shared, long-lived services for the application.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Scraper  *service.Scraper
	headless *headless.Strategy
}

// New builds the full pipeline from configuration: rate limiter, circuit
// breaker, both fetch strategies, the orchestrator, and the extractor.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	detector := blockdetect.New()

	var slots []orchestrator.Slot
	var browser *headless.Strategy
	if cfg.Headless.Enabled {
		browser, err = headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.PrimaryTimeout(),
		}, detector)
		if err != nil {
			return nil, fmt.Errorf("init headless strategy: %w", err)
		}
		slots = append(slots, orchestrator.Slot{Strategy: browser, Timeout: cfg.PrimaryTimeout()})
	}
	probe := httpprobe.New(httpprobe.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FallbackTimeout(),
	}, detector)
	slots = append(slots, orchestrator.Slot{Strategy: probe, Timeout: cfg.FallbackTimeout()})

	limiter := ratelimit.New(cfg.MinInterval())
	brk := breaker.New(cfg.Breaker.FailureThreshold, cfg.RecoveryTimeout())
	policy := retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.RetryInitialDelay(),
	}

	orch := orchestrator.New(slots, limiter, brk, policy, metrics.NewSink(), logger)

	monitor := extract.NewMemoryMonitor(cfg.Extraction.MemoryLimitMB, cfg.Extraction.MonitorMemory)
	extractor := extract.New(extract.Config{
		ElementsToRemove:   cfg.Extraction.ElementsToRemove,
		ChunkSizeThreshold: cfg.Extraction.ChunkSizeThreshold,
		ChunkNodeLimit:     cfg.Extraction.ChunkNodeLimit,
		MemoryLimitMB:      cfg.Extraction.MemoryLimitMB,
		MemoryMultiplier:   cfg.Extraction.MemoryMultiplier,
		EnableChunking:     cfg.Extraction.EnableChunking,
		FallbackEnabled:    cfg.Extraction.FallbackEnabled,
	}, monitor, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Scraper:  service.New(orch, extractor, logger),
		headless: browser,
	}, nil
}

// Close shuts down the browser allocator and flushes the logger.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	_ = a.Logger.Sync()
}
