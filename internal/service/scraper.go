// Package service composes the fetch cascade with content extraction.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/webharvest/webharvest/internal/extract"
	"github.com/webharvest/webharvest/internal/orchestrator"
	"github.com/webharvest/webharvest/internal/scrape"
)

// ScrapeResponse is the end-to-end result of fetching and extracting a page.
type ScrapeResponse struct {
	URL          string `json:"url"`
	FinalURL     string `json:"final_url"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	CleanHTML    string `json:"clean_html,omitempty"`
	StrategyUsed string `json:"strategy_used"`
	Attempts     int    `json:"attempts"`
	ElapsedMS    int64  `json:"elapsed_ms"`
	UsedChunked  bool   `json:"used_chunked"`
}

// Scraper ties the fallback orchestrator to the extractor.
type Scraper struct {
	orch      *orchestrator.Orchestrator
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New creates a Scraper. A nil logger is replaced with a no-op one.
func New(orch *orchestrator.Orchestrator, extractor *extract.Extractor, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{orch: orch, extractor: extractor, logger: logger}
}

// Scrape fetches the URL through the strategy cascade, then extracts title,
// clean markup, and normalized text from the returned document.
func (s *Scraper) Scrape(ctx context.Context, req scrape.FetchRequest, extraRemovals []string) (ScrapeResponse, error) {
	fetched := s.orch.Fetch(ctx, req)
	if !fetched.Success {
		return ScrapeResponse{}, fmt.Errorf("fetch %s: %w", req.URL, fetched.Error)
	}

	extracted := s.extractor.Extract(fetched.Content, extraRemovals)
	if extracted.Err != nil {
		return ScrapeResponse{}, fmt.Errorf("extract %s: %w", req.URL, extracted.Err)
	}

	procMetrics := s.extractor.LastMetrics()
	s.logger.Info("scrape complete",
		zap.String("url", req.URL),
		zap.String("strategy", fetched.StrategyUsed),
		zap.Int("attempts", fetched.Attempts),
		zap.Bool("chunked", procMetrics.UsedChunkedPath),
		zap.Duration("elapsed", fetched.Elapsed),
	)

	return ScrapeResponse{
		URL:          req.URL,
		FinalURL:     fetched.FinalURL,
		Title:        extracted.Title,
		Text:         extracted.Text,
		CleanHTML:    extracted.CleanHTML,
		StrategyUsed: fetched.StrategyUsed,
		Attempts:     fetched.Attempts,
		ElapsedMS:    fetched.Elapsed.Milliseconds(),
		UsedChunked:  procMetrics.UsedChunkedPath,
	}, nil
}

// BreakerState reports the circuit breaker's current state for status
// endpoints.
func (s *Scraper) BreakerState() (string, int) {
	b := s.orch.Breaker()
	return b.State(), b.FailureCount()
}
