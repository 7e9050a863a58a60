package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bc-dunia/swapwatch/internal/procscan"
)

// Resolver is the PID resolution dependency, satisfied by
// procscan.Resolver.
type Resolver interface {
	Resolve(forceRefresh bool) map[string]procscan.Entry
	LastScanDuration() time.Duration
}

// Collector aggregates per-app swap usage. Results are cached behind the
// adaptive TTL; a forced refresh bypasses both this cache and the resolver's.
type Collector struct {
	resolver Resolver
	adaptive *AdaptiveTTL

	mu          sync.Mutex
	cached      []AppUsage
	lastCollect time.Time

	collections atomic.Int64
	cacheHits   atomic.Int64

	nowFunc       func() time.Time
	readSwapBytes func(pids []int32) map[int32]uint64
	systemSwap    func() (total uint64, usedPercent float64, err error)
}

// NewCollector creates a collector over the given resolver, paced by the
// given adaptive controller.
func NewCollector(resolver Resolver, adaptive *AdaptiveTTL) *Collector {
	return &Collector{
		resolver:      resolver,
		adaptive:      adaptive,
		nowFunc:       time.Now,
		readSwapBytes: ReadSwapBytes,
		systemSwap:    SystemSwap,
	}
}

// Collect returns the ranked per-app swap usage, highest consumer first.
// On a swap-less host the list is empty: remediation is meaningless without
// swap. The returned slice must not be mutated by callers.
func (c *Collector) Collect(forceRefresh bool) []AppUsage {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if !forceRefresh && now.Sub(c.lastCollect) < c.adaptive.TTL() && len(c.cached) > 0 {
		c.cacheHits.Add(1)
		return c.cached
	}

	usage, systemPercent := c.collect(forceRefresh)
	c.cached = usage
	c.lastCollect = now
	c.collections.Add(1)

	scanDuration := c.resolver.LastScanDuration()
	c.adaptive.Observe(systemPercent, scanDuration)

	return c.cached
}

func (c *Collector) collect(forceRefresh bool) ([]AppUsage, float64) {
	total, usedPercent, err := c.systemSwap()
	if err != nil || total == 0 {
		return []AppUsage{}, 0
	}

	entries := c.resolver.Resolve(forceRefresh)

	var allPIDs []int32
	for _, entry := range entries {
		allPIDs = append(allPIDs, entry.PIDs...)
	}

	var swapByPID map[int32]uint64
	if len(allPIDs) > 0 {
		swapByPID = c.readSwapBytes(allPIDs)
	}

	usage := make([]AppUsage, 0, len(entries))
	for name, entry := range entries {
		var bytes uint64
		for _, pid := range entry.PIDs {
			bytes += swapByPID[pid]
		}
		// Percent is always against current total capacity, never a cached
		// one.
		usage = append(usage, AppUsage{
			Name:            name,
			SwapBytes:       bytes,
			SwapPercent:     float64(bytes) / float64(total) * 100,
			IncludeChildren: entry.IncludeChildren,
			HasChildren:     entry.HasChildren,
		})
	}

	// Map iteration order is random; sort by name first so ties have a
	// stable order within this call, then rank by usage.
	sort.Slice(usage, func(i, j int) bool { return usage[i].Name < usage[j].Name })
	sort.SliceStable(usage, func(i, j int) bool {
		return usage[i].SwapPercent > usage[j].SwapPercent
	})

	return usage, usedPercent
}

// Stats returns the collector's counters and the current adaptive TTL.
func (c *Collector) Stats() Stats {
	return Stats{
		Collections:      c.collections.Load(),
		CacheHits:        c.cacheHits.Load(),
		LastScanDuration: c.resolver.LastScanDuration(),
		CacheTTL:         c.adaptive.TTL(),
	}
}
