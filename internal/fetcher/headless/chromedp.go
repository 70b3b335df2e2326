// Package headless implements the primary fetch strategy: full browser
// rendering via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/webharvest/webharvest/internal/blockdetect"
	"github.com/webharvest/webharvest/internal/scrape"
)

// DefaultBlockedResourceTypes lists the resource kinds skipped during
// rendering. The document and scripts still load; heavy media does not.
var DefaultBlockedResourceTypes = []string{
	"image", "stylesheet", "font", "media", "websocket",
}

// Config controls the behavior of the headless strategy.
type Config struct {
	MaxParallel          int
	UserAgent            string
	NavigationTimeout    time.Duration
	BlockedResourceTypes []string
}

// Strategy implements scrape.Strategy using chromedp and headless Chrome.
type Strategy struct {
	cfg         Config
	blocked     map[string]bool
	limiter     chan struct{}
	detector    *blockdetect.Detector
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates the headless strategy backed by a shared exec allocator.
func New(cfg Config, detector *blockdetect.Detector) (*Strategy, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.BlockedResourceTypes == nil {
		cfg.BlockedResourceTypes = DefaultBlockedResourceTypes
	}
	if detector == nil {
		detector = blockdetect.New()
	}

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	blocked := make(map[string]bool, len(cfg.BlockedResourceTypes))
	for _, t := range cfg.BlockedResourceTypes {
		blocked[strings.ToLower(t)] = true
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Strategy{
		cfg:         cfg,
		blocked:     blocked,
		limiter:     limiter,
		detector:    detector,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Name implements scrape.Strategy.
func (s *Strategy) Name() string { return scrape.StrategyPrimary }

// Close cancels the allocator context, tearing down the browser.
func (s *Strategy) Close() { s.allocCancel() }

// Fetch navigates with a headless browser and returns the fully rendered
// DOM. Failures are classified into the closed strategy error set.
func (s *Strategy) Fetch(ctx context.Context, req scrape.FetchRequest) (scrape.StrategyResult, error) {
	if err := s.acquire(ctx); err != nil {
		return scrape.StrategyResult{}, scrape.NewStrategyError(scrape.KindTimeout, err)
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	// Bound the navigation by the caller's deadline when present,
	// otherwise by the strategy default.
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		taskCtx, cancel = contextWithDeadlineOf(taskCtx, ctx)
	} else {
		taskCtx, cancel = context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	}
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)
	s.interceptRequests(taskCtx)

	html, finalURL, err := s.run(taskCtx, req)
	if err != nil {
		return scrape.StrategyResult{}, s.classify(err)
	}

	status, finalURL := meta.snapshot(req.URL, finalURL)
	if status >= http.StatusBadRequest {
		return scrape.StrategyResult{}, scrape.NewHTTPStatusError(status,
			fmt.Errorf("document response for %s", req.URL))
	}
	if s.detector.Blocked(html) {
		return scrape.StrategyResult{}, scrape.NewStrategyError(scrape.KindBlocked,
			fmt.Errorf("anti-bot challenge detected at %s", finalURL))
	}

	return scrape.StrategyResult{Content: html, FinalURL: finalURL, StatusCode: status}, nil
}

func (s *Strategy) run(ctx context.Context, req scrape.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.setupAction(req),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

// setupAction enables the network and fetch domains, applies the
// user-agent override, and installs extra headers.
func (s *Strategy) setupAction(req scrape.FetchRequest) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(s.blocked) > 0 {
			if err := fetch.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable fetch domain: %w", err)
			}
		}
		if ua := s.userAgent(req); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(req.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(req.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// interceptRequests fails paused requests whose resource type is on the
// block list and continues everything else.
func (s *Strategy) interceptRequests(taskCtx context.Context) {
	chromedp.ListenTarget(taskCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(taskCtx)
			execCtx := cdp.WithExecutor(taskCtx, c.Target)
			if s.blocked[strings.ToLower(string(paused.ResourceType))] {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
		}()
	})
}

func (s *Strategy) userAgent(req scrape.FetchRequest) string {
	if req.UserAgent != "" {
		return req.UserAgent
	}
	return s.cfg.UserAgent
}

// classify maps chromedp failures onto the closed error taxonomy.
func (s *Strategy) classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return scrape.NewStrategyError(scrape.KindTimeout, err)
	case errors.Is(err, exec.ErrNotFound):
		return scrape.NewStrategyError(scrape.KindUnavailable, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "executable file not found"),
		strings.Contains(msg, "chrome failed to start"):
		return scrape.NewStrategyError(scrape.KindUnavailable, err)
	case strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED"),
		strings.Contains(msg, "net::ERR_CONNECTION"),
		strings.Contains(msg, "websocket"):
		return scrape.NewStrategyError(scrape.KindConnection, err)
	default:
		return scrape.NewStrategyError(scrape.KindUnknown, err)
	}
}

func (s *Strategy) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait: %w", ctx.Err())
	}
}

func (s *Strategy) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

// contextWithDeadlineOf applies src's deadline to parent.
func contextWithDeadlineOf(parent, src context.Context) (context.Context, context.CancelFunc) {
	deadline, _ := src.Deadline()
	return context.WithDeadline(parent, deadline)
}

// responseMeta captures the document response status and URL from CDP
// network events.
type responseMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

// snapshot returns the captured status and URL, falling back to the
// navigation result and then the request URL.
func (m *responseMeta) snapshot(requestURL, finalURL string) (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	url := m.url
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
