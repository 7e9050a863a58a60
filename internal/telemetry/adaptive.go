package telemetry

import (
	"sync"
	"time"
)

// Adaptive TTL tuning constants. Under stress we shrink toward the floor one
// second at a time for fresher data; when the host is idle we grow toward
// the ceiling two seconds at a time to cut scan overhead.
const (
	DefaultMinTTL = 10 * time.Second
	DefaultMaxTTL = 30 * time.Second

	shrinkStep = 1 * time.Second
	growStep   = 2 * time.Second

	stressSwapPercent = 50.0
	stressScanTime    = 2 * time.Second
	idleSwapPercent   = 20.0
	idleScanTime      = 500 * time.Millisecond
)

// AdaptiveTTL is a feedback controller for the telemetry cache TTL. It is a
// heuristic, not an optimal controller: the steps and bounds above were
// chosen to converge within a handful of collections.
type AdaptiveTTL struct {
	mu  sync.Mutex
	ttl time.Duration
	min time.Duration
	max time.Duration
}

// NewAdaptiveTTL creates a controller bounded by [min, max], starting at the
// floor. Non-positive bounds fall back to the defaults.
func NewAdaptiveTTL(min, max time.Duration) *AdaptiveTTL {
	if min <= 0 {
		min = DefaultMinTTL
	}
	if max <= 0 || max < min {
		max = DefaultMaxTTL
		if max < min {
			max = min
		}
	}
	return &AdaptiveTTL{ttl: min, min: min, max: max}
}

// Observe feeds the controller the system swap percent and scan duration
// seen by a real (non-cached) collection, and adjusts the TTL.
func (a *AdaptiveTTL) Observe(systemSwapPercent float64, scanDuration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case systemSwapPercent > stressSwapPercent || scanDuration > stressScanTime:
		a.ttl -= shrinkStep
		if a.ttl < a.min {
			a.ttl = a.min
		}
	case systemSwapPercent < idleSwapPercent && scanDuration < idleScanTime:
		a.ttl += growStep
		if a.ttl > a.max {
			a.ttl = a.max
		}
	}
}

// TTL returns the current cache TTL.
func (a *AdaptiveTTL) TTL() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ttl
}
