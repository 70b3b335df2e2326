// Package metrics exposes Prometheus collectors for the fetch pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webharvest/webharvest/internal/scrape"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_fetches_total",
			Help: "Total number of orchestrated fetches, labeled by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webharvest_fetch_duration_seconds",
			Help:    "Histogram of end-to-end fetch latencies, labeled by strategy.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	fetchAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webharvest_fetch_attempts",
			Help:    "Histogram of strategy attempts per fetch.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_fetch_bytes_total",
			Help: "Total bytes of raw markup fetched, labeled by strategy.",
		},
		[]string{"strategy"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webharvest_rate_limit_delays_seconds",
			Help:    "Histogram of per-domain rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	extractionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webharvest_extraction_duration_seconds",
			Help:    "Histogram of content extraction durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	extractionChunkedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_extraction_chunked_total",
			Help: "Total extractions, labeled by path (chunked or direct) and outcome.",
		},
		[]string{"path", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webharvest_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, delay time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(delay.Seconds())
}

// ObserveExtraction records one extraction outcome.
func ObserveExtraction(m scrape.ProcessingMetrics) {
	extractionDurationSeconds.Observe(m.ProcessingTime.Seconds())
	path := "direct"
	if m.UsedChunkedPath {
		path = "chunked"
	}
	extractionChunkedTotal.WithLabelValues(path, outcome(m.Success)).Inc()
}

// ObserveHTTPRequest increments the HTTP front-end metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Sink implements scrape.MetricsSink over the Prometheus collectors.
type Sink struct{}

// NewSink returns the Prometheus-backed metrics sink.
func NewSink() *Sink { return &Sink{} }

// RecordFetch implements scrape.MetricsSink.
func (*Sink) RecordFetch(m scrape.FetchMetrics) {
	fetchesTotal.WithLabelValues(m.StrategyUsed, outcome(m.Success)).Inc()
	fetchDurationSeconds.WithLabelValues(m.StrategyUsed).Observe(m.Elapsed.Seconds())
	fetchAttempts.Observe(float64(m.Attempts))
	if m.ContentSize > 0 {
		fetchBytesTotal.WithLabelValues(m.StrategyUsed).Add(float64(m.ContentSize))
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
