package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/webharvest/webharvest/internal/scrape"
)

// extractChunked walks the cleaned tree iteratively, accumulating text in
// bounded batches and consulting the memory monitor after each batch.
// Subtrees whose approximate rendered size exceeds the chunk threshold
// are subdivided rather than materialized as one unit. The serialized
// markup and normalized text are identical to the direct path; only the
// transient working-set shape differs.
func (e *Extractor) extractChunked(title string, target *goquery.Selection) (scrape.ExtractionResult, int, error) {
	sizes := subtreeSizes(target.Nodes)

	var (
		parts      []string
		batch      []string
		batchBytes int
		chunks     int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		parts = append(parts, batch...)
		batch = batch[:0]
		batchBytes = 0
		chunks++
		return e.monitor.Check(e.cfg.MemoryMultiplier)
	}

	add := func(t string) error {
		if len(batch) >= e.cfg.ChunkNodeLimit || batchBytes+len(t) > e.cfg.ChunkSizeThreshold {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, t)
		batchBytes += len(t)
		return nil
	}

	stack := make([]*html.Node, 0, len(target.Nodes))
	for i := len(target.Nodes) - 1; i >= 0; i-- {
		stack = append(stack, target.Nodes[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if err := add(t); err != nil {
					return scrape.ExtractionResult{}, chunks, err
				}
			}
			continue
		}

		// Oversized subtrees are subdivided; everything else is
		// flattened as a single unit.
		if sizes[n] > e.cfg.ChunkSizeThreshold {
			for c := n.LastChild; c != nil; c = c.PrevSibling {
				stack = append(stack, c)
			}
			continue
		}
		for _, t := range collectText([]*html.Node{n}) {
			if err := add(t); err != nil {
				return scrape.ExtractionResult{}, chunks, err
			}
		}
	}
	if err := flush(); err != nil {
		return scrape.ExtractionResult{}, chunks, err
	}

	if !hasContent(target.Nodes) {
		return scrape.ExtractionResult{Title: title, Err: scrape.ErrMissingRoot}, chunks, nil
	}
	cleanHTML := renderNodes(target.Nodes)
	text := normalizeText(parts)
	return scrape.ExtractionResult{Title: title, CleanHTML: cleanHTML, Text: text}, chunks, nil
}

// subtreeSizes computes an approximate rendered byte size for every node
// reachable from roots in a single iterative post-order pass.
func subtreeSizes(roots []*html.Node) map[*html.Node]int {
	sizes := make(map[*html.Node]int)

	type frame struct {
		n       *html.Node
		visited bool
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{n: roots[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.visited {
			stack = append(stack, frame{n: f.n, visited: true})
			for c := f.n.LastChild; c != nil; c = c.PrevSibling {
				stack = append(stack, frame{n: c})
			}
			continue
		}

		size := 0
		switch f.n.Type {
		case html.TextNode, html.CommentNode:
			size = len(f.n.Data)
		case html.ElementNode:
			// <tag ...></tag> plus attributes.
			size = 2*len(f.n.Data) + 5
			for _, a := range f.n.Attr {
				size += len(a.Key) + len(a.Val) + 4
			}
		}
		for c := f.n.FirstChild; c != nil; c = c.NextSibling {
			size += sizes[c]
		}
		sizes[f.n] = size
	}
	return sizes
}
