package scrape

import (
	"errors"
	"fmt"
)

// ErrorKind classifies strategy failures into a closed set so the
// orchestrator's retry and fallback decisions never depend on matching
// error message strings.
type ErrorKind string

// The complete set of strategy error kinds.
const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindHTTPStatus  ErrorKind = "http_status"
	KindBlocked     ErrorKind = "blocked"
	KindUnavailable ErrorKind = "unavailable"
	KindUnknown     ErrorKind = "unknown"
)

// Sentinel errors surfaced by the pipeline itself rather than a strategy.
var (
	// ErrNoDomain reports that a URL carried no parsable domain. Rate
	// limiting is skipped for such URLs; the fetch itself proceeds.
	ErrNoDomain = errors.New("no domain in url")

	// ErrCircuitOpen is the fast-fail result when the breaker rejects a
	// request before any strategy runs.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMissingRoot reports that no usable root element survived
	// extraction (for example the entire document matched the removal
	// list).
	ErrMissingRoot = errors.New("missing root element")

	// ErrMemoryLimit reports that chunked extraction exceeded the
	// configured memory budget. It is recovered internally when
	// direct-mode fallback is enabled.
	ErrMemoryLimit = errors.New("memory limit exceeded")
)

// StrategyError is the tagged failure produced by the thin adapter around
// each fetch strategy.
type StrategyError struct {
	Kind       ErrorKind
	StatusCode int // set only for KindHTTPStatus
	Err        error
}

func (e *StrategyError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *StrategyError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same strategy can plausibly
// succeed. Client errors such as a 404, anti-bot blocks, and a missing
// driver are permanent for the current attempt chain.
func (e *StrategyError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindUnknown:
		return true
	case KindHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

// NewStrategyError builds a tagged strategy failure.
func NewStrategyError(kind ErrorKind, err error) *StrategyError {
	return &StrategyError{Kind: kind, Err: err}
}

// NewHTTPStatusError builds a tagged failure carrying the response code.
func NewHTTPStatusError(status int, err error) *StrategyError {
	return &StrategyError{Kind: KindHTTPStatus, StatusCode: status, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindUnknown when err was not
// produced by a strategy adapter.
func KindOf(err error) ErrorKind {
	var se *StrategyError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
