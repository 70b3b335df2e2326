// Package retry runs fallible operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures retry behavior. It is stateless; one Policy may be
// shared by any number of concurrent calls.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// InitialDelay is the wait before the first retry; attempt i waits
	// InitialDelay * 2^i.
	InitialDelay time.Duration
}

// retryable is implemented by errors that know whether another attempt
// can plausibly succeed (see scrape.StrategyError).
type retryable interface {
	Retryable() bool
}

// Do executes op up to p.MaxRetries+1 times, sleeping with exponential
// backoff between attempts. The sleep honors ctx, so callers are never
// parked past cancellation. Do stops early when op returns an error
// marked non-retryable. On exhaustion the returned error names the total
// attempt count and wraps the last underlying error.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.InitialDelay << uint(attempt)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// shouldRetry consults the error's own marking first: a classified
// per-attempt timeout is retryable even though it wraps
// context.DeadlineExceeded. Bare context errors mean the caller is gone.
func shouldRetry(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
