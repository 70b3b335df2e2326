// Package httpprobe implements the fallback fetch strategy: a plain HTTP
// client built on colly, no JavaScript execution.
package httpprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/webharvest/webharvest/internal/blockdetect"
	"github.com/webharvest/webharvest/internal/scrape"
)

// DefaultUserAgent is sent when neither the request nor the config sets one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// defaultHeaders make the probe look like a regular browser session.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "gzip, deflate",
	"Connection":      "keep-alive",
}

// Config controls the behavior of the HTTP probe strategy.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Strategy implements scrape.Strategy with a shared base collector that is
// cloned per fetch.
type Strategy struct {
	cfg      Config
	base     *colly.Collector
	detector *blockdetect.Detector
}

// New creates the HTTP probe strategy.
func New(cfg Config, detector *blockdetect.Detector) *Strategy {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if detector == nil {
		detector = blockdetect.New()
	}

	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	base.IgnoreRobotsTxt = true
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(&http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     60 * time.Second,
	})

	return &Strategy{cfg: cfg, base: base, detector: detector}
}

// Name implements scrape.Strategy.
func (s *Strategy) Name() string { return scrape.StrategyFallback }

// Fetch performs a single GET through a cloned collector. The body is
// returned as-is; no rendering happens on this path.
func (s *Strategy) Fetch(ctx context.Context, req scrape.FetchRequest) (scrape.StrategyResult, error) {
	c := s.base.Clone()
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	var (
		mu       sync.Mutex
		body     string
		status   int
		finalURL string
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for key, value := range defaultHeaders {
			if r.Headers.Get(key) == "" {
				r.Headers.Set(key, value)
			}
		}
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
		if req.UserAgent != "" {
			r.Headers.Set("User-Agent", req.UserAgent)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		body = string(r.Body)
		status = r.StatusCode
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil {
			status = r.StatusCode
			finalURL = r.Request.URL.String()
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		visitErr := c.Visit(req.URL)
		c.Wait()
		done <- visitErr
	}()

	select {
	case <-ctx.Done():
		return scrape.StrategyResult{}, scrape.NewStrategyError(scrape.KindTimeout,
			fmt.Errorf("fetch %s: %w", req.URL, ctx.Err()))
	case visitErr := <-done:
		mu.Lock()
		defer mu.Unlock()

		if fetchErr == nil {
			fetchErr = visitErr
		}
		if fetchErr != nil {
			return scrape.StrategyResult{}, s.classify(fetchErr, status, req.URL)
		}
		if status >= http.StatusBadRequest {
			return scrape.StrategyResult{}, scrape.NewHTTPStatusError(status,
				fmt.Errorf("fetch %s", req.URL))
		}
		if s.detector.Blocked(body) {
			return scrape.StrategyResult{}, scrape.NewStrategyError(scrape.KindBlocked,
				fmt.Errorf("anti-bot challenge detected at %s", finalURL))
		}
		return scrape.StrategyResult{Content: body, FinalURL: finalURL, StatusCode: status}, nil
	}
}

// classify maps transport and status failures onto the closed error set.
func (s *Strategy) classify(err error, status int, url string) error {
	if status >= http.StatusBadRequest {
		return scrape.NewHTTPStatusError(status, fmt.Errorf("fetch %s: %w", url, err))
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return scrape.NewStrategyError(scrape.KindTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return scrape.NewStrategyError(scrape.KindTimeout, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "EOF"):
		return scrape.NewStrategyError(scrape.KindConnection, err)
	default:
		return scrape.NewStrategyError(scrape.KindUnknown, err)
	}
}
