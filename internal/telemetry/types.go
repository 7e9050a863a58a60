// Package telemetry collects per-application swap usage and paces its own
// refresh rate with an adaptive cache TTL.
package telemetry

import "time"

// AppUsage is one application's aggregated swap usage at collection time.
// The slice returned by Collect is ordered by SwapPercent descending and is
// replaced wholesale on every real collection.
type AppUsage struct {
	Name            string
	SwapBytes       uint64
	SwapPercent     float64
	IncludeChildren bool
	HasChildren     bool
}

// Stats are the collector's performance counters, exposed to the dashboard
// layer.
type Stats struct {
	Collections      int64
	CacheHits        int64
	LastScanDuration time.Duration
	CacheTTL         time.Duration
}
