package scrape

import (
	"context"
)

// Strategy turns a FetchRequest into raw markup or fails with a
// *StrategyError. Implementations must honor ctx for timeout and
// cancellation.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, request FetchRequest) (StrategyResult, error)
}

// MetricsSink receives one FetchMetrics record per orchestrated fetch.
// Implementations must never block the pipeline or report failure; the
// orchestrator does not depend on the sink succeeding.
type MetricsSink interface {
	RecordFetch(m FetchMetrics)
}

// NopSink discards all metrics.
type NopSink struct{}

// RecordFetch implements MetricsSink.
func (NopSink) RecordFetch(FetchMetrics) {}
