package scrape

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrategyErrorRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  *StrategyError
		want bool
	}{
		{name: "timeout", err: NewStrategyError(KindTimeout, nil), want: true},
		{name: "connection", err: NewStrategyError(KindConnection, nil), want: true},
		{name: "unknown", err: NewStrategyError(KindUnknown, nil), want: true},
		{name: "blocked", err: NewStrategyError(KindBlocked, nil), want: false},
		{name: "unavailable", err: NewStrategyError(KindUnavailable, nil), want: false},
		{name: "server error", err: NewHTTPStatusError(503, nil), want: true},
		{name: "too many requests", err: NewHTTPStatusError(429, nil), want: true},
		{name: "not found", err: NewHTTPStatusError(404, nil), want: false},
		{name: "forbidden", err: NewHTTPStatusError(403, nil), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.err.Retryable())
		})
	}
}

func TestStrategyErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewStrategyError(KindConnection, cause)
	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("fetch failed: %w", err)
	var se *StrategyError
	require.ErrorAs(t, wrapped, &se)
	require.Equal(t, KindConnection, se.Kind)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindTimeout, KindOf(NewStrategyError(KindTimeout, nil)))
	require.Equal(t, KindHTTPStatus, KindOf(fmt.Errorf("outer: %w", NewHTTPStatusError(500, nil))))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	err := NewHTTPStatusError(502, errors.New("bad gateway"))
	require.Contains(t, err.Error(), "502")
}
