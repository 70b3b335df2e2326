package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webharvest/webharvest/internal/scrape"
)

func newTestStrategy(t *testing.T) *Strategy {
	t.Helper()
	s, err := New(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestName(t *testing.T) {
	s := newTestStrategy(t)
	require.Equal(t, scrape.StrategyPrimary, s.Name())
}

func TestNewRejectsNegativeParallelism(t *testing.T) {
	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)
}

func TestBlockedResourceTypesNormalized(t *testing.T) {
	s, err := New(Config{BlockedResourceTypes: []string{"Image", "STYLESHEET"}}, nil)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.blocked["image"])
	require.True(t, s.blocked["stylesheet"])
	require.False(t, s.blocked["font"])
}

func TestClassify(t *testing.T) {
	s := newTestStrategy(t)

	cases := []struct {
		name string
		err  error
		want scrape.ErrorKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: scrape.KindTimeout},
		{name: "missing binary", err: errors.New(`exec: "google-chrome": executable file not found in $PATH`), want: scrape.KindUnavailable},
		{name: "chrome crash", err: errors.New("chrome failed to start: exit status 1"), want: scrape.KindUnavailable},
		{name: "dns", err: errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), want: scrape.KindConnection},
		{name: "refused", err: errors.New("page load error net::ERR_CONNECTION_REFUSED"), want: scrape.KindConnection},
		{name: "other", err: errors.New("unexpected devtools message"), want: scrape.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, scrape.KindOf(s.classify(tc.err)))
		})
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	s := newTestStrategy(t)
	require.NoError(t, s.acquire(context.Background()))

	// The single slot is taken; a cancelled context must not block.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.acquire(ctx))

	s.release()
	require.NoError(t, s.acquire(context.Background()))
	s.release()
}

func TestResponseMetaSnapshotFallbacks(t *testing.T) {
	m := newResponseMeta()
	status, url := m.snapshot("https://req.example.com/", "")
	require.Equal(t, http.StatusOK, status, "no captured response defaults to 200")
	require.Equal(t, "https://req.example.com/", url)

	status, url = m.snapshot("https://req.example.com/", "https://nav.example.com/")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://nav.example.com/", url, "navigation location beats the request URL")

	m.status = 404
	m.url = "https://captured.example.com/"
	status, url = m.snapshot("https://req.example.com/", "https://nav.example.com/")
	require.Equal(t, 404, status)
	require.Equal(t, "https://captured.example.com/", url)
}

func TestToNetworkHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Accept-Language", "en-US")
	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")

	out := toNetworkHeaders(h)
	require.Equal(t, "en-US", out["Accept-Language"])
	require.ElementsMatch(t, []string{"a", "b"}, out["X-Custom"].([]string))
}
