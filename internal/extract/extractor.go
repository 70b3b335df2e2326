// Package extract turns raw markup into a title, cleaned markup, and
// plain text while bounding peak memory for very large documents.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/webharvest/webharvest/internal/metrics"
	"github.com/webharvest/webharvest/internal/scrape"
)

// Defaults adopted from the canonical chunked-processing configuration.
const (
	DefaultChunkSizeThreshold = 100_000 // bytes of markup
	DefaultChunkNodeLimit     = 50      // nodes per batch
	DefaultMemoryLimitMB      = 100
	DefaultMemoryMultiplier   = 1.2
)

// DefaultElementsToRemove lists the boilerplate stripped from every
// document before custom removals are applied.
var DefaultElementsToRemove = []string{
	"script", "style", "nav", "footer", "aside", "header",
	"form", "button", "input", "select", "textarea", "label",
	"iframe", "figure", "figcaption",
}

// Config controls extraction behavior.
type Config struct {
	ElementsToRemove   []string
	ChunkSizeThreshold int
	ChunkNodeLimit     int
	MemoryLimitMB      int
	MemoryMultiplier   float64
	EnableChunking     bool
	FallbackEnabled    bool
}

// withDefaults fills in the zero-valued knobs.
func (c Config) withDefaults() Config {
	if c.ChunkSizeThreshold <= 0 {
		c.ChunkSizeThreshold = DefaultChunkSizeThreshold
	}
	if c.ChunkNodeLimit <= 0 {
		c.ChunkNodeLimit = DefaultChunkNodeLimit
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if c.MemoryMultiplier <= 0 {
		c.MemoryMultiplier = DefaultMemoryMultiplier
	}
	return c
}

// Extractor reduces markup to clean content. Large documents go through a
// chunked, memory-bounded path; everything else takes the direct path.
// The two paths produce identical normalized text and structurally
// identical cleaned markup for the same input.
type Extractor struct {
	cfg     Config
	monitor *MemoryMonitor
	logger  *zap.Logger

	mu   sync.Mutex
	last scrape.ProcessingMetrics
}

// New creates an Extractor. A nil monitor disables memory enforcement.
func New(cfg Config, monitor *MemoryMonitor, logger *zap.Logger) *Extractor {
	cfg = cfg.withDefaults()
	if monitor == nil {
		monitor = NewMemoryMonitor(cfg.MemoryLimitMB, false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, monitor: monitor, logger: logger}
}

// Extract parses markup, removes boilerplate plus the supplied elements,
// and returns the page title, cleaned markup, and normalized plain text.
// elementsToRemove accepts plain tag names and simple .class/#id
// selectors; it is combined with the configured and default lists.
func (e *Extractor) Extract(markup string, elementsToRemove []string) scrape.ExtractionResult {
	start := time.Now()
	result, usedChunked, chunks := e.extract(markup, elementsToRemove)

	m := scrape.ProcessingMetrics{
		ProcessingTime:   time.Since(start),
		ContentSizeBytes: len(markup),
		UsedChunkedPath:  usedChunked,
		PeakMemoryMB:     e.monitor.CurrentUsageMB(),
		ChunksProcessed:  chunks,
		Success:          result.Err == nil,
	}
	if result.Err != nil {
		m.Error = result.Err.Error()
	}
	e.mu.Lock()
	e.last = m
	e.mu.Unlock()
	metrics.ObserveExtraction(m)

	return result
}

// LastMetrics returns the snapshot recorded by the most recent Extract
// call. It is overwritten on every call.
func (e *Extractor) LastMetrics() scrape.ProcessingMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Extractor) extract(markup string, elementsToRemove []string) (scrape.ExtractionResult, bool, int) {
	if strings.TrimSpace(markup) == "" {
		return scrape.ExtractionResult{Err: fmt.Errorf("%w: empty document", scrape.ErrMissingRoot)}, false, 0
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return scrape.ExtractionResult{Err: fmt.Errorf("no root element: %w", err)}, false, 0
	}

	// Title first: the removal list may legitimately strip the head.
	title := strings.TrimSpace(doc.Find("title").First().Text())

	e.removeElements(doc, elementsToRemove)

	target := doc.Find("body")
	if target.Length() == 0 {
		target = doc.Selection
	}

	if e.cfg.EnableChunking && len(markup) > e.cfg.ChunkSizeThreshold {
		res, chunks, err := e.extractChunked(title, target)
		if err == nil {
			return res, true, chunks
		}
		e.logger.Warn("chunked extraction failed",
			zap.Error(err),
			zap.Bool("fallback_enabled", e.cfg.FallbackEnabled),
		)
		if !e.cfg.FallbackEnabled {
			return scrape.ExtractionResult{Title: title, Err: err}, true, chunks
		}
		// Transparent recovery: rerun the already-cleaned tree through
		// the direct path.
	}

	return e.extractDirect(title, target), false, 0
}

// extractDirect serializes the cleaned target and flattens its text.
func (e *Extractor) extractDirect(title string, target *goquery.Selection) scrape.ExtractionResult {
	if !hasContent(target.Nodes) {
		return scrape.ExtractionResult{Title: title, Err: scrape.ErrMissingRoot}
	}
	cleanHTML := renderNodes(target.Nodes)
	text := normalizeText(collectText(target.Nodes))
	return scrape.ExtractionResult{Title: title, CleanHTML: cleanHTML, Text: text}
}

// hasContent reports whether any node still carries an element child or
// non-blank text. The parser synthesizes an empty body even for a fully
// removed document, so string emptiness is not a usable signal.
func hasContent(nodes []*html.Node) bool {
	stack := append([]*html.Node(nil), nodes...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				return true
			}
			stack = append(stack, c)
		}
	}
	return false
}

// removeElements strips the combined default, configured, and per-call
// removal lists from the document. Selectors beyond plain tag names and
// simple .class/#id forms are skipped with a warning rather than
// rejected, matching the tolerant behavior of the removal pass.
func (e *Extractor) removeElements(doc *goquery.Document, extra []string) {
	seen := make(map[string]struct{})
	for _, list := range [][]string{DefaultElementsToRemove, e.cfg.ElementsToRemove, extra} {
		for _, sel := range list {
			sel = strings.TrimSpace(sel)
			if sel == "" {
				continue
			}
			if _, dup := seen[sel]; dup {
				continue
			}
			seen[sel] = struct{}{}
			if !validSelector(sel) {
				e.logger.Warn("skipping unsupported removal selector", zap.String("selector", sel))
				continue
			}
			doc.Find(sel).Remove()
		}
	}
}

var selectorPattern = regexp.MustCompile(`^[.#]?[a-zA-Z][\w-]*$`)

// validSelector accepts plain tag names and single-class/single-ID
// selectors; anything fancier is not part of the removal contract.
func validSelector(sel string) bool {
	return selectorPattern.MatchString(sel)
}

// renderNodes serializes nodes to markup in document order.
func renderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}
	return buf.String()
}

// collectText gathers trimmed, non-empty text nodes in document order
// using an explicit stack. Recursion is deliberately avoided: removal
// lists cannot protect against arbitrarily deep documents.
func collectText(nodes []*html.Node) []string {
	var parts []string
	stack := make([]*html.Node, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			continue
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return parts
}

var blankRuns = regexp.MustCompile(`\n\s*\n`)

// normalizeText joins text fragments with newlines and collapses runs of
// blank lines to at most one blank line.
func normalizeText(parts []string) string {
	joined := strings.Join(parts, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(joined, "\n\n"))
}
