// Package orchestrator composes rate limiting, circuit breaking, retry,
// and an ordered list of fetch strategies into one resilient fetch path.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/webharvest/webharvest/internal/policy/breaker"
	"github.com/webharvest/webharvest/internal/policy/ratelimit"
	"github.com/webharvest/webharvest/internal/policy/retry"
	"github.com/webharvest/webharvest/internal/scrape"
)

// Slot pairs a strategy with its default per-attempt timeout, used when
// the request does not carry one.
type Slot struct {
	Strategy scrape.Strategy
	Timeout  time.Duration
}

// Orchestrator runs each fetch through the full resilience stack:
// rate-limit wait, breaker gate, then each strategy in order (wrapped by
// timeout and retry) until one succeeds. All collaborators are injected;
// independent orchestrators share no state.
type Orchestrator struct {
	slots   []Slot
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	retry   retry.Policy
	sink    scrape.MetricsSink
	logger  *zap.Logger
}

// New builds an Orchestrator. The slot order is the fallback order; the
// first slot is the primary strategy.
func New(slots []Slot, limiter *ratelimit.Limiter, brk *breaker.Breaker, policy retry.Policy, sink scrape.MetricsSink, logger *zap.Logger) *Orchestrator {
	if sink == nil {
		sink = scrape.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		slots:   slots,
		limiter: limiter,
		breaker: brk,
		retry:   policy,
		sink:    sink,
		logger:  logger,
	}
}

// Breaker exposes the shared circuit breaker for health reporting.
func (o *Orchestrator) Breaker() *breaker.Breaker { return o.breaker }

// Fetch runs the request through the pipeline and always returns a
// structured result; it never panics across this boundary. A breaker-open
// rejection is the only path that performs zero I/O.
func (o *Orchestrator) Fetch(ctx context.Context, req scrape.FetchRequest) scrape.FetchResult {
	start := time.Now()

	if err := o.limiter.Wait(ctx, req.URL); err != nil {
		if !errors.Is(err, scrape.ErrNoDomain) {
			return o.finish(req, scrape.FetchResult{
				Success:      false,
				StrategyUsed: scrape.StrategyAllFailed,
				Error:        err,
				Elapsed:      time.Since(start),
			})
		}
		// Unparsable domain: skip throttling, fetch anyway.
		o.logger.Debug("rate limit skipped", zap.String("url", req.URL), zap.Error(err))
	}

	if o.breaker.IsOpen() {
		o.logger.Warn("circuit breaker open, rejecting fetch", zap.String("url", req.URL))
		return o.finish(req, scrape.FetchResult{
			Success:      false,
			StrategyUsed: scrape.StrategyAllFailed,
			Error:        scrape.ErrCircuitOpen,
			Attempts:     0,
			Elapsed:      time.Since(start),
		})
	}

	attempts := 0
	var lastErr error
	for _, slot := range o.slots {
		attempts++
		result, err := o.attempt(ctx, slot, req)
		if err != nil {
			lastErr = err
			o.breaker.RecordFailure()
			o.logger.Warn("strategy failed",
				zap.String("strategy", slot.Strategy.Name()),
				zap.String("url", req.URL),
				zap.String("kind", string(scrape.KindOf(err))),
				zap.Error(err),
			)
			continue
		}

		o.breaker.RecordSuccess()
		return o.finish(req, scrape.FetchResult{
			Success:      true,
			Content:      result.Content,
			StrategyUsed: slot.Strategy.Name(),
			Attempts:     attempts,
			Elapsed:      time.Since(start),
			FinalURL:     result.FinalURL,
		})
	}

	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}
	return o.finish(req, scrape.FetchResult{
		Success:      false,
		StrategyUsed: scrape.StrategyAllFailed,
		Attempts:     attempts,
		Error:        lastErr,
		Elapsed:      time.Since(start),
	})
}

// attempt invokes one strategy under its own timeout, wrapped by the
// retry policy. Each retry gets a fresh deadline; a parent cancellation
// ends the chain.
func (o *Orchestrator) attempt(ctx context.Context, slot Slot, req scrape.FetchRequest) (scrape.StrategyResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = slot.Timeout
	}
	return retry.Do(ctx, o.retry, func(ctx context.Context) (scrape.StrategyResult, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return slot.Strategy.Fetch(ctx, req)
	})
}

// finish records the metrics snapshot for the terminal transition and
// hands the result back. The sink contract forbids it from failing the
// fetch.
func (o *Orchestrator) finish(req scrape.FetchRequest, res scrape.FetchResult) scrape.FetchResult {
	m := scrape.FetchMetrics{
		URL:          req.URL,
		StrategyUsed: res.StrategyUsed,
		Attempts:     res.Attempts,
		Elapsed:      res.Elapsed,
		ContentSize:  len(res.Content),
		Success:      res.Success,
	}
	if res.Error != nil {
		m.Error = res.Error.Error()
	}
	o.sink.RecordFetch(m)
	return res
}
