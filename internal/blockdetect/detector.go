// Package blockdetect recognizes anti-bot challenge pages in otherwise
// successful responses.
package blockdetect

import (
	"strings"
)

// Markers found on common challenge and denial interstitials. The scan is
// deliberately shallow: a successfully received page carrying one of
// these is a blocked response for the strategy that fetched it, not a
// fatal pipeline error.
var blockMarkers = []string{
	"cf-browser-verification",
	"cf-challenge",
	"checking your browser before accessing",
	"just a moment...",
	"attention required! | cloudflare",
	"ddos protection by",
	"are you a robot",
	"g-recaptcha",
	"h-captcha",
	"px-captcha",
	"access denied",
	"request unsuccessful. incapsula",
}

// Detector decides whether fetched markup is an anti-bot challenge
// rather than real content.
type Detector struct {
	// MaxScanBytes caps how much of the body is inspected; challenge
	// pages are small and markers sit near the top.
	MaxScanBytes int
}

// New creates a Detector with the default scan window.
func New() *Detector {
	return &Detector{MaxScanBytes: 64 * 1024}
}

// Blocked reports whether body looks like a challenge or denial page.
func (d *Detector) Blocked(body string) bool {
	if body == "" {
		return false
	}
	window := body
	if d.MaxScanBytes > 0 && len(window) > d.MaxScanBytes {
		window = window[:d.MaxScanBytes]
	}
	lower := strings.ToLower(window)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
