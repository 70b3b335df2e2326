package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webharvest/webharvest/internal/extract"
	"github.com/webharvest/webharvest/internal/orchestrator"
	"github.com/webharvest/webharvest/internal/policy/breaker"
	"github.com/webharvest/webharvest/internal/policy/ratelimit"
	"github.com/webharvest/webharvest/internal/policy/retry"
	"github.com/webharvest/webharvest/internal/scrape"
	"github.com/webharvest/webharvest/internal/service"
)

type cannedStrategy struct {
	name    string
	content string
	err     error
}

func (s *cannedStrategy) Name() string { return s.name }

func (s *cannedStrategy) Fetch(context.Context, scrape.FetchRequest) (scrape.StrategyResult, error) {
	if s.err != nil {
		return scrape.StrategyResult{}, s.err
	}
	return scrape.StrategyResult{Content: s.content, FinalURL: "https://example.com/"}, nil
}

func newTestServer(strategy scrape.Strategy, brk *breaker.Breaker) *Server {
	if brk == nil {
		brk = breaker.New(5, time.Minute)
	}
	orch := orchestrator.New(
		[]orchestrator.Slot{{Strategy: strategy, Timeout: time.Second}},
		ratelimit.New(0), brk,
		retry.Policy{MaxRetries: 0, InitialDelay: time.Millisecond},
		nil, nil,
	)
	scraper := service.New(orch, extract.New(extract.Config{}, nil, nil), nil)
	return NewServer(scraper, nil)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&cannedStrategy{name: scrape.StrategyPrimary}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestScrapeEndpoint(t *testing.T) {
	srv := newTestServer(&cannedStrategy{
		name:    scrape.StrategyPrimary,
		content: `<html><head><title>Hi</title></head><body><p>Body text.</p></body></html>`,
	}, nil)

	body := `{"url": "https://example.com/", "include_html": true}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Hi", resp.Title)
	require.Contains(t, resp.Text, "Body text.")
	require.NotEmpty(t, resp.CleanHTML)
	require.Equal(t, scrape.StrategyPrimary, resp.StrategyUsed)
}

func TestScrapeEndpointOmitsHTMLByDefault(t *testing.T) {
	srv := newTestServer(&cannedStrategy{
		name:    scrape.StrategyPrimary,
		content: `<html><head><title>Hi</title></head><body><p>Text</p></body></html>`,
	}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"url": "https://example.com/"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotContains(t, resp, "clean_html")
}

func TestScrapeEndpointBadRequests(t *testing.T) {
	srv := newTestServer(&cannedStrategy{name: scrape.StrategyPrimary}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(`{"url": ""}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeEndpointBreakerOpen(t *testing.T) {
	brk := breaker.New(1, time.Hour)
	brk.RecordFailure()
	srv := newTestServer(&cannedStrategy{name: scrape.StrategyPrimary}, brk)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"url": "https://example.com/"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScrapeEndpointUpstreamTimeout(t *testing.T) {
	srv := newTestServer(&cannedStrategy{
		name: scrape.StrategyPrimary,
		err:  scrape.NewStrategyError(scrape.KindTimeout, context.DeadlineExceeded),
	}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"url": "https://example.com/"}`)))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	brk := breaker.New(3, time.Minute)
	brk.RecordFailure()
	srv := newTestServer(&cannedStrategy{name: scrape.StrategyPrimary}, brk)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, breaker.StateClosed, resp["circuit_breaker"])
	require.EqualValues(t, 1, resp["failure_count"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&cannedStrategy{name: scrape.StrategyPrimary}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
