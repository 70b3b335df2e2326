package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webharvest/webharvest/internal/scrape"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>  Quarterly Report  </title><style>body{color:red}</style></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <article>
    <h1>Quarterly Report</h1>
    <p>Revenue grew in the <b>third</b> quarter.</p>
    <p>Costs stayed flat.</p>
    <div class="ad">Buy now!</div>
  </article>
  <script>trackPageView()</script>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtractTitleAndText(t *testing.T) {
	e := New(Config{}, nil, nil)

	res := e.Extract(samplePage, nil)
	require.NoError(t, res.Err)
	require.Equal(t, "Quarterly Report", res.Title)
	require.Contains(t, res.Text, "Revenue grew in the")
	require.Contains(t, res.Text, "third")
	require.Contains(t, res.Text, "Costs stayed flat.")
}

func TestExtractRemovesBoilerplate(t *testing.T) {
	e := New(Config{}, nil, nil)

	res := e.Extract(samplePage, nil)
	require.NoError(t, res.Err)
	require.NotContains(t, res.Text, "Site header")
	require.NotContains(t, res.Text, "Home")
	require.NotContains(t, res.Text, "Copyright")
	require.NotContains(t, res.Text, "trackPageView")
	require.NotContains(t, res.CleanHTML, "<script")
	require.NotContains(t, res.CleanHTML, "<nav")
}

func TestExtractCustomRemovals(t *testing.T) {
	e := New(Config{ElementsToRemove: []string{".ad"}}, nil, nil)

	res := e.Extract(samplePage, nil)
	require.NoError(t, res.Err)
	require.NotContains(t, res.Text, "Buy now!")

	// Per-call removals stack on top of configured ones.
	res = e.Extract(samplePage, []string{"h1"})
	require.NoError(t, res.Err)
	require.NotContains(t, res.Text, "Buy now!")
	require.NotContains(t, res.CleanHTML, "<h1>")
}

func TestExtractSkipsInvalidSelectors(t *testing.T) {
	e := New(Config{}, nil, nil)

	res := e.Extract(samplePage, []string{"div > p", "article p:first-child", ""})
	require.NoError(t, res.Err, "unsupported selectors are skipped, not fatal")
	require.Contains(t, res.Text, "Revenue grew in the")
}

func TestExtractEmptyDocument(t *testing.T) {
	e := New(Config{}, nil, nil)

	for _, markup := range []string{"", "   \n\t  "} {
		res := e.Extract(markup, nil)
		require.ErrorIs(t, res.Err, scrape.ErrMissingRoot)
	}
}

func TestExtractEverythingRemoved(t *testing.T) {
	e := New(Config{}, nil, nil)

	markup := `<html><head><title>Shell</title></head><body><nav>menu</nav><footer>fine print</footer></body></html>`
	res := e.Extract(markup, nil)
	require.ErrorIs(t, res.Err, scrape.ErrMissingRoot)
	require.Equal(t, "Shell", res.Title, "title survives a fully removed body")
}

func TestExtractChunkedMatchesDirect(t *testing.T) {
	markup := buildLargePage(300)

	direct := New(Config{EnableChunking: false}, nil, nil)
	chunked := New(Config{
		EnableChunking:     true,
		ChunkSizeThreshold: 512,
		ChunkNodeLimit:     5,
	}, nil, nil)

	dres := direct.Extract(markup, nil)
	require.NoError(t, dres.Err)
	cres := chunked.Extract(markup, nil)
	require.NoError(t, cres.Err)

	require.Equal(t, dres.Title, cres.Title)
	require.Equal(t, dres.Text, cres.Text, "both paths must yield identical normalized text")
	require.Equal(t, dres.CleanHTML, cres.CleanHTML, "both paths must yield identical cleaned markup")

	require.False(t, direct.LastMetrics().UsedChunkedPath)
	require.True(t, chunked.LastMetrics().UsedChunkedPath)
	require.Greater(t, chunked.LastMetrics().ChunksProcessed, 1)
}

func TestExtractSmallDocumentStaysDirect(t *testing.T) {
	e := New(Config{EnableChunking: true, ChunkSizeThreshold: 1 << 20}, nil, nil)

	res := e.Extract(samplePage, nil)
	require.NoError(t, res.Err)
	require.False(t, e.LastMetrics().UsedChunkedPath)
}

func TestExtractMemoryLimitFallsBackToDirect(t *testing.T) {
	monitor := &MemoryMonitor{
		limitMB: 10,
		enabled: true,
		usageMB: func() float64 { return 1000 },
	}
	e := New(Config{
		EnableChunking:     true,
		ChunkSizeThreshold: 64,
		FallbackEnabled:    true,
	}, monitor, nil)

	res := e.Extract(buildLargePage(50), nil)
	require.NoError(t, res.Err, "memory pressure on the chunked path recovers via direct extraction")
	require.Contains(t, res.Text, "paragraph 49")
	require.False(t, e.LastMetrics().UsedChunkedPath)
}

func TestExtractMemoryLimitWithoutFallbackFails(t *testing.T) {
	monitor := &MemoryMonitor{
		limitMB: 10,
		enabled: true,
		usageMB: func() float64 { return 1000 },
	}
	e := New(Config{
		EnableChunking:     true,
		ChunkSizeThreshold: 64,
		FallbackEnabled:    false,
	}, monitor, nil)

	res := e.Extract(buildLargePage(50), nil)
	require.ErrorIs(t, res.Err, scrape.ErrMemoryLimit)
	require.Equal(t, "Big Page", res.Title, "title survives even when extraction fails")
}

func TestExtractRecordsMetrics(t *testing.T) {
	e := New(Config{}, nil, nil)

	e.Extract(samplePage, nil)
	m := e.LastMetrics()
	require.True(t, m.Success)
	require.Equal(t, len(samplePage), m.ContentSizeBytes)
	require.Empty(t, m.Error)

	e.Extract("", nil)
	m = e.LastMetrics()
	require.False(t, m.Success)
	require.NotEmpty(t, m.Error)
}

func TestMemoryMonitorDisabled(t *testing.T) {
	m := NewMemoryMonitor(1, false)
	require.Zero(t, m.CurrentUsageMB())
	require.NoError(t, m.Check(1.2))
}

func TestMemoryMonitorThresholdMultiplier(t *testing.T) {
	m := &MemoryMonitor{limitMB: 100, enabled: true, usageMB: func() float64 { return 115 }}
	require.NoError(t, m.Check(1.2), "within the grace band")

	m.usageMB = func() float64 { return 125 }
	err := m.Check(1.2)
	require.ErrorIs(t, err, scrape.ErrMemoryLimit)
}

func buildLargePage(paragraphs int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Big Page</title></head><body><article>")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<section><h2>Section %d</h2><p>This is paragraph %d with some padding text to grow the document beyond the chunking threshold.</p></section>", i, i)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}
