// Package breaker implements a failure-counting circuit breaker that
// short-circuits calls to an unhealthy dependency during outages.
package breaker

import (
	"sync"
	"time"
)

// Breaker states as reported by State().
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// Breaker counts consecutive failures and opens after a configured
// threshold. Recovery is evaluated lazily: there is no background timer,
// so the OPEN to HALF_OPEN transition happens inside the next state
// observation after the recovery timeout has elapsed.
//
// All methods are safe for concurrent use; none block or perform I/O.
type Breaker struct {
	mu              sync.Mutex
	threshold       int
	recoveryTimeout time.Duration
	failureCount    int
	state           string
	lastFailureAt   time.Time
	now             func() time.Time
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a closed Breaker that opens after threshold consecutive
// failures and permits a trial request once recoveryTimeout has elapsed.
func New(threshold int, recoveryTimeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	b := &Breaker{
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		state:           StateClosed,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordFailure notes a failed call. In HALF_OPEN the trial failed and the
// breaker re-opens with a fresh recovery window. In CLOSED the counter
// advances and snaps to OPEN exactly at the threshold. In OPEN it is a
// no-op: the counter stays at the threshold and the recovery window keeps
// its original deadline.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.lastFailureAt = b.now()
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.state = StateOpen
			b.lastFailureAt = b.now()
		}
	}
}

// RecordSuccess notes a successful call. Any success in CLOSED clears
// accumulated failures; a success in HALF_OPEN closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
	case StateClosed:
		b.failureCount = 0
	}
}

// IsOpen reports whether calls should be rejected. Note the side effect:
// if the recovery timeout has elapsed, this observation itself moves the
// breaker from OPEN to HALF_OPEN (permitting one trial) and returns false.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observe() == StateOpen
}

// State returns the current state, applying the same lazy OPEN to
// HALF_OPEN transition as IsOpen.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observe()
}

// FailureCount returns the number of consecutive failures recorded since
// the last success.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// observe applies the lazy recovery transition. Callers must hold b.mu.
func (b *Breaker) observe() string {
	if b.state == StateOpen && b.now().Sub(b.lastFailureAt) >= b.recoveryTimeout {
		b.state = StateHalfOpen
	}
	return b.state
}
