// Package ratelimit enforces a minimum interval between requests to the
// same network domain using per-domain token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/webharvest/webharvest/internal/metrics"
	"github.com/webharvest/webharvest/internal/scrape"
)

// Limiter spaces requests per domain. Each domain gets its own bucket
// (burst 1), so waits for one domain never delay another. The table is an
// instance field rather than process-global state, so independent
// orchestrators never share throttling history.
type Limiter struct {
	mu      sync.Mutex
	domains map[string]*rate.Limiter
	limit   rate.Limit
}

// New creates a Limiter enforcing minInterval between same-domain
// requests. A non-positive interval disables throttling.
func New(minInterval time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		domains: make(map[string]*rate.Limiter),
		limit:   limit,
	}
}

// Wait blocks until the domain of rawURL is allowed another request,
// respecting the context. URLs without a parsable domain return an error
// wrapping scrape.ErrNoDomain; callers treat that as non-fatal and proceed
// without throttling. The lock is held only for the table lookup, never
// across the wait itself.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain, err := Domain(rawURL)
	if err != nil {
		return err
	}

	l.mu.Lock()
	limiter, ok := l.domains[domain]
	if !ok {
		limiter = rate.NewLimiter(l.limit, 1)
		l.domains[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, delay)
	}
	return nil
}

// Domain extracts the normalized domain from rawURL: lowercase hostname
// with any leading "www." stripped. URLs missing a scheme or host yield
// scrape.ErrNoDomain.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", scrape.ErrNoDomain, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www."), nil
}
