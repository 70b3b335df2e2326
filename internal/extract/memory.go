package extract

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/webharvest/webharvest/internal/scrape"
)

const bytesPerMB = 1 << 20

// MemoryMonitor tracks process memory during extraction and enforces the
// configured budget. When disabled it reports zero usage and never fails.
type MemoryMonitor struct {
	limitMB float64
	enabled bool
	usageMB func() float64
}

// NewMemoryMonitor creates a monitor with the given limit in megabytes.
func NewMemoryMonitor(limitMB int, enabled bool) *MemoryMonitor {
	return &MemoryMonitor{
		limitMB: float64(limitMB),
		enabled: enabled,
		usageMB: residentMemoryMB,
	}
}

// CurrentUsageMB returns the process resident set size in megabytes. It
// returns 0 when monitoring is disabled or the usage cannot be read.
func (m *MemoryMonitor) CurrentUsageMB() float64 {
	if !m.enabled {
		return 0
	}
	return m.usageMB()
}

// Check returns an error wrapping scrape.ErrMemoryLimit when current
// usage exceeds limit * thresholdMultiplier. It never blocks.
func (m *MemoryMonitor) Check(thresholdMultiplier float64) error {
	if !m.enabled {
		return nil
	}
	current := m.CurrentUsageMB()
	threshold := m.limitMB * thresholdMultiplier
	if current > threshold {
		return fmt.Errorf("%w: %.1f MB > %.1f MB (limit %.0f MB)",
			scrape.ErrMemoryLimit, current, threshold, m.limitMB)
	}
	return nil
}

func residentMemoryMB() float64 {
	proc, err := procfs.Self()
	if err != nil {
		return 0
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0
	}
	return float64(stat.ResidentMemory()) / bytesPerMB
}
