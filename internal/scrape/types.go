package scrape

import (
	"net/http"
	"time"
)

// Strategy identifiers reported in FetchResult.StrategyUsed.
const (
	StrategyPrimary   = "primary"
	StrategyFallback  = "fallback"
	StrategyAllFailed = "all_failed"
)

// FetchRequest captures everything needed to fetch one URL. It is an
// immutable value created per call; callers never share instances.
type FetchRequest struct {
	URL       string
	Headers   http.Header
	UserAgent string
	Timeout   time.Duration
}

// FetchResult is returned to the caller of the orchestrator.
type FetchResult struct {
	Success      bool
	Content      string
	StrategyUsed string
	Attempts     int
	Error        error
	Elapsed      time.Duration
	FinalURL     string
}

// StrategyResult is the payload of one successful strategy attempt.
type StrategyResult struct {
	Content    string
	FinalURL   string
	StatusCode int
}

// ExtractionResult holds the content recovered from raw markup.
type ExtractionResult struct {
	Title     string
	CleanHTML string
	Text      string
	Err       error
}

// ProcessingMetrics is a snapshot of the most recent extraction call.
// It is overwritten on every call, not accumulated.
type ProcessingMetrics struct {
	ProcessingTime   time.Duration
	ContentSizeBytes int
	UsedChunkedPath  bool
	PeakMemoryMB     float64
	ChunksProcessed  int
	Success          bool
	Error            string
}

// FetchMetrics is emitted to the MetricsSink after every orchestrated fetch.
type FetchMetrics struct {
	URL          string
	StrategyUsed string
	Attempts     int
	Elapsed      time.Duration
	ContentSize  int
	Success      bool
	Error        string
}
