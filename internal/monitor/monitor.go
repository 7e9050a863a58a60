// Package monitor owns the run loop: it paces snapshot refreshes, feeds the
// history store and metrics gauges, and hands control to the remediation
// engine on the check interval.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bc-dunia/swapwatch/internal/history"
	"github.com/bc-dunia/swapwatch/internal/otel"
	"github.com/bc-dunia/swapwatch/internal/remediation"
	"github.com/bc-dunia/swapwatch/internal/sysops"
	"github.com/bc-dunia/swapwatch/internal/telemetry"
)

// swapHistoryLen is the number of recent swap readings kept for the
// dashboard sparkline.
const swapHistoryLen = 60

// Collector supplies ranked per-app usage and cache statistics.
type Collector interface {
	Collect(forceRefresh bool) []telemetry.AppUsage
	Stats() telemetry.Stats
}

// Engine runs one remediation pass per check interval.
type Engine interface {
	Tick(ctx context.Context) remediation.PassResult
}

// ServiceController restarts services on operator request.
type ServiceController interface {
	Restart(ctx context.Context, serviceName string) sysops.Result
}

// Metrics receives the monitor's instrument updates, satisfied by
// otel.Metrics.
type Metrics interface {
	RecordScan(ctx context.Context, durationMs float64)
	RecordCacheHits(ctx context.Context, n int64)
	RecordRemediationAction(ctx context.Context, action, result string)
	SetSwapPercent(percent float64)
	SetCacheTTL(seconds int64)
}

// Config holds the monitor's pacing.
type Config struct {
	CheckInterval  time.Duration
	SampleInterval time.Duration
	MaxEvents      int
}

// Snapshot is one consistent view of the monitored host.
type Snapshot struct {
	Time        time.Time
	SwapPercent float64
	MemPercent  float64
	RankedUsage []telemetry.AppUsage
	Stats       telemetry.Stats
	Events      []Event
	SwapHistory []float64
}

// Monitor drives the sampling and remediation loops.
type Monitor struct {
	cfg       Config
	collector Collector
	engine    Engine
	services  ServiceController
	store     *history.Store
	metrics   Metrics
	tracer    *otel.Tracer
	events    *EventBuffer

	mu              sync.Mutex
	lastUsage       []telemetry.AppUsage
	swapHistory     []float64
	swapPercent     float64
	memPercent      float64
	seenCollections int64
	seenCacheHits   int64

	systemSwap func() (uint64, float64, error)
	systemMem  func() (float64, error)
	nowFunc    func() time.Time
}

// New wires a monitor. store may be a disabled history store; metrics and
// tracer may be the no-op instances.
func New(cfg Config, collector Collector, engine Engine, services ServiceController, store *history.Store, metrics Metrics, tracer *otel.Tracer) *Monitor {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 3 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	return &Monitor{
		cfg:        cfg,
		collector:  collector,
		engine:     engine,
		services:   services,
		store:      store,
		metrics:    metrics,
		tracer:     tracer,
		events:     NewEventBuffer(cfg.MaxEvents),
		systemSwap: telemetry.SystemSwap,
		systemMem:  telemetry.SystemMemoryPercent,
		nowFunc:    time.Now,
	}
}

// Events exposes the event buffer so the remediation engine can log into it.
func (m *Monitor) Events() *EventBuffer {
	return m.events
}

// Run drives the loops until ctx is canceled. Cancellation is honored only
// between ticks: a remediation pass in flight always runs to completion.
func (m *Monitor) Run(ctx context.Context) {
	m.events.Addf("Monitoring started (check every %s)", m.cfg.CheckInterval)
	m.sample()

	sampleTicker := time.NewTicker(m.cfg.SampleInterval)
	defer sampleTicker.Stop()
	checkTicker := time.NewTicker(m.cfg.CheckInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.events.Addf("Monitoring stopped")
			log.Printf("[Monitor] Shutting down")
			return
		case <-sampleTicker.C:
			m.sample()
		case <-checkTicker.C:
			m.check(ctx)
		}
	}
}

// sample refreshes the snapshot state and feeds the history store and
// metrics gauges. Sampling never forces a scan; the collector's cache
// decides when the process table is re-read.
func (m *Monitor) sample() {
	total, swapPct, err := m.systemSwap()
	if err != nil {
		log.Printf("[Monitor] Swap read failed: %v", err)
		return
	}
	memPct, err := m.systemMem()
	if err != nil {
		log.Printf("[Monitor] Memory read failed: %v", err)
	}

	usage := m.collector.Collect(false)
	stats := m.collector.Stats()

	m.mu.Lock()
	m.swapPercent = swapPct
	m.memPercent = memPct
	m.lastUsage = usage
	m.swapHistory = append(m.swapHistory, swapPct)
	if len(m.swapHistory) > swapHistoryLen {
		m.swapHistory = m.swapHistory[len(m.swapHistory)-swapHistoryLen:]
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSwapPercent(swapPct)
		m.metrics.SetCacheTTL(int64(stats.CacheTTL / time.Second))

		// Counters are cumulative in the collector; export only what is
		// new since the last sample.
		m.mu.Lock()
		newScans := stats.Collections - m.seenCollections
		newHits := stats.CacheHits - m.seenCacheHits
		m.seenCollections = stats.Collections
		m.seenCacheHits = stats.CacheHits
		m.mu.Unlock()

		ctx := context.Background()
		for i := int64(0); i < newScans; i++ {
			m.metrics.RecordScan(ctx, float64(stats.LastScanDuration)/float64(time.Millisecond))
		}
		if newHits > 0 {
			m.metrics.RecordCacheHits(ctx, newHits)
		}
	}

	if m.store != nil {
		used := uint64(float64(total) * swapPct / 100)
		m.store.RecordSample(history.Sample{
			SwapPercent:    swapPct,
			SwapUsedBytes:  used,
			SwapTotalBytes: total,
			MemPercent:     memPct,
		}, usage)
	}
}

// check runs one remediation pass under a trace span. The pass is detached
// from the shutdown context: cancellation is honored between ticks only, and
// an in-flight restart must never be killed half-measured. Per-operation
// timeouts still bound every action.
func (m *Monitor) check(ctx context.Context) {
	m.mu.Lock()
	swapPct := m.swapPercent
	m.mu.Unlock()

	spanCtx := context.WithoutCancel(ctx)
	if m.tracer != nil {
		var end func()
		spanCtx, end = m.startRemediationSpan(spanCtx, swapPct)
		defer end()
	}

	result := m.engine.Tick(spanCtx)

	if m.metrics != nil {
		for _, action := range result.Actions {
			m.metrics.RecordRemediationAction(spanCtx, "restart", string(action.Result.Outcome))
		}
	}

	// The pass may have changed the picture; refresh immediately.
	m.sample()
}

func (m *Monitor) startRemediationSpan(ctx context.Context, swapPct float64) (context.Context, func()) {
	spanCtx, span := m.tracer.StartRemediationSpan(ctx, swapPct)
	return spanCtx, func() { span.End() }
}

// CurrentSnapshot returns a consistent copy of the monitored state.
func (m *Monitor) CurrentSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage := make([]telemetry.AppUsage, len(m.lastUsage))
	copy(usage, m.lastUsage)
	hist := make([]float64, len(m.swapHistory))
	copy(hist, m.swapHistory)

	return Snapshot{
		Time:        m.nowFunc(),
		SwapPercent: m.swapPercent,
		MemPercent:  m.memPercent,
		RankedUsage: usage,
		Stats:       m.collector.Stats(),
		Events:      m.events.Snapshot(),
		SwapHistory: hist,
	}
}

// ForceRefresh discards the telemetry cache and rescans immediately.
func (m *Monitor) ForceRefresh() {
	usage := m.collector.Collect(true)

	m.mu.Lock()
	m.lastUsage = usage
	m.mu.Unlock()

	m.events.Addf("Process cache refreshed (%d apps)", len(usage))
}

// RestartService restarts one service on operator request. The result lands
// in the event buffer and the audit trail like any automated restart.
func (m *Monitor) RestartService(ctx context.Context, serviceName string) sysops.Result {
	m.events.Addf("Manual restart of %s requested", serviceName)
	result := m.services.Restart(ctx, serviceName)

	switch result.Outcome {
	case sysops.OutcomeSuccess:
		m.events.Addf("Service %s restarted", serviceName)
	case sysops.OutcomeTimeout:
		m.events.Addf("Restarting %s timed out", serviceName)
	default:
		m.events.Addf("Failed to restart %s: %s", serviceName, result.Detail)
	}

	if m.store != nil {
		m.store.RecordAction("manual_restart", serviceName, string(result.Outcome))
	}
	if m.metrics != nil {
		m.metrics.RecordRemediationAction(ctx, "manual_restart", string(result.Outcome))
	}
	return result
}
