package telemetry

import (
	"testing"
	"time"

	"github.com/bc-dunia/swapwatch/internal/procscan"
)

type fakeResolver struct {
	entries  map[string]procscan.Entry
	resolves int
	scanTime time.Duration
}

func (f *fakeResolver) Resolve(forceRefresh bool) map[string]procscan.Entry {
	f.resolves++
	return f.entries
}

func (f *fakeResolver) LastScanDuration() time.Duration { return f.scanTime }

const gib = 1024 * 1024 * 1024

func newTestCollector(resolver *fakeResolver, swapByPID map[int32]uint64, totalSwap uint64, usedPercent float64) *Collector {
	c := NewCollector(resolver, NewAdaptiveTTL(10*time.Second, 30*time.Second))
	c.readSwapBytes = func(pids []int32) map[int32]uint64 {
		out := make(map[int32]uint64, len(pids))
		for _, pid := range pids {
			out[pid] = swapByPID[pid]
		}
		return out
	}
	c.systemSwap = func() (uint64, float64, error) {
		return totalSwap, usedPercent, nil
	}
	return c
}

func TestCollectRanksAppsBySwapDescending(t *testing.T) {
	resolver := &fakeResolver{entries: map[string]procscan.Entry{
		"appA": {PIDs: []int32{1, 2}},
		"appB": {PIDs: []int32{3}},
		"appC": {PIDs: []int32{4}},
	}}
	// A = 5% of 1 GiB, B = 2%, C = 0%.
	swap := map[int32]uint64{
		1: 3 * gib / 100,
		2: 2 * gib / 100,
		3: 2 * gib / 100,
		4: 0,
	}
	c := newTestCollector(resolver, swap, gib, 30)

	got := c.Collect(false)

	if len(got) != 3 {
		t.Fatalf("expected 3 apps, got %d", len(got))
	}
	want := []string{"appA", "appB", "appC"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("rank %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
	if got[0].SwapBytes != 5*gib/100 {
		t.Fatalf("expected appA bytes summed across pids, got %d", got[0].SwapBytes)
	}
	if got[0].SwapPercent < 4.9 || got[0].SwapPercent > 5.1 {
		t.Fatalf("expected appA around 5%%, got %.2f", got[0].SwapPercent)
	}
}

func TestCollectEmptyWhenHostHasNoSwap(t *testing.T) {
	resolver := &fakeResolver{entries: map[string]procscan.Entry{
		"appA": {PIDs: []int32{1}},
	}}
	c := newTestCollector(resolver, map[int32]uint64{1: 100}, 0, 0)

	if got := c.Collect(false); len(got) != 0 {
		t.Fatalf("expected empty usage on swap-less host, got %v", got)
	}
	if resolver.resolves != 0 {
		t.Fatal("expected no pid resolution when host has no swap")
	}
}

func TestCollectCachesWithinTTL(t *testing.T) {
	resolver := &fakeResolver{entries: map[string]procscan.Entry{
		"appA": {PIDs: []int32{1}},
	}}
	c := newTestCollector(resolver, map[int32]uint64{1: gib / 100}, gib, 30)

	now := time.Unix(1700000000, 0)
	c.nowFunc = func() time.Time { return now }

	c.Collect(false)
	now = now.Add(5 * time.Second)
	c.Collect(false)

	if resolver.resolves != 1 {
		t.Fatalf("expected 1 real collection, got %d", resolver.resolves)
	}
	stats := c.Stats()
	if stats.Collections != 1 || stats.CacheHits != 1 {
		t.Fatalf("expected collections=1 hits=1, got %+v", stats)
	}
}

func TestCollectForceRefreshBypassesCache(t *testing.T) {
	resolver := &fakeResolver{entries: map[string]procscan.Entry{
		"appA": {PIDs: []int32{1}},
	}}
	c := newTestCollector(resolver, map[int32]uint64{1: gib / 100}, gib, 30)

	now := time.Unix(1700000000, 0)
	c.nowFunc = func() time.Time { return now }

	c.Collect(false)
	c.Collect(true)

	if resolver.resolves != 2 {
		t.Fatalf("expected forced recollection, got %d resolves", resolver.resolves)
	}
}

func TestCollectFeedsAdaptiveController(t *testing.T) {
	resolver := &fakeResolver{
		entries:  map[string]procscan.Entry{"appA": {PIDs: []int32{1}}},
		scanTime: 100 * time.Millisecond,
	}
	// Idle host: low swap, fast scan. TTL should grow from the floor.
	c := newTestCollector(resolver, map[int32]uint64{1: gib / 100}, gib, 5)

	c.Collect(true)

	if got := c.Stats().CacheTTL; got != 12*time.Second {
		t.Fatalf("expected TTL grown to 12s, got %v", got)
	}
}

func TestCollectStableTieOrder(t *testing.T) {
	resolver := &fakeResolver{entries: map[string]procscan.Entry{
		"zeta":  {PIDs: []int32{1}},
		"alpha": {PIDs: []int32{2}},
		"mid":   {PIDs: []int32{3}},
	}}
	c := newTestCollector(resolver, map[int32]uint64{}, gib, 30)

	// All apps tie at zero; repeated collections must agree on the order.
	first := c.Collect(true)
	second := c.Collect(true)

	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("tie order not stable: %v vs %v", first, second)
		}
	}
}
