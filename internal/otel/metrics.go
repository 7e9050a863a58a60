// Package otel provides OpenTelemetry metrics integration for swapwatch.
package otel

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "swapwatch",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with swapwatch-specific helpers.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.RWMutex

	// Observed state for the gauges, updated by the monitor loop.
	swapPercentBits atomic.Uint64
	cacheTTLSeconds atomic.Int64
	gaugeReg        metric.Registration

	// Metric instruments
	scanCounter        metric.Int64Counter
	cacheHitCounter    metric.Int64Counter
	scanDuration       metric.Float64Histogram
	remediationCounter metric.Int64Counter
	swapPercentGauge   metric.Float64ObservableGauge
	cacheTTLGauge      metric.Int64ObservableGauge
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	m.scanCounter, err = m.meter.Int64Counter(
		"swapwatch.process.scans",
		metric.WithDescription("Count of full process table scans"),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan counter: %w", err)
	}

	m.cacheHitCounter, err = m.meter.Int64Counter(
		"swapwatch.process.cache_hits",
		metric.WithDescription("Count of collections served from the PID cache"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	m.scanDuration, err = m.meter.Float64Histogram(
		"swapwatch.process.scan_duration",
		metric.WithDescription("Duration of process table scans"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan duration histogram: %w", err)
	}

	m.remediationCounter, err = m.meter.Int64Counter(
		"swapwatch.remediation.actions",
		metric.WithDescription("Count of remediation actions by type and result"),
	)
	if err != nil {
		return fmt.Errorf("failed to create remediation counter: %w", err)
	}

	m.swapPercentGauge, err = m.meter.Float64ObservableGauge(
		"swapwatch.swap.percent",
		metric.WithDescription("Current system swap usage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("failed to create swap percent gauge: %w", err)
	}

	m.cacheTTLGauge, err = m.meter.Int64ObservableGauge(
		"swapwatch.cache.ttl",
		metric.WithDescription("Current adaptive PID cache TTL"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache TTL gauge: %w", err)
	}

	m.gaugeReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveFloat64(m.swapPercentGauge, math.Float64frombits(m.swapPercentBits.Load()))
			o.ObserveInt64(m.cacheTTLGauge, m.cacheTTLSeconds.Load())
			return nil
		},
		m.swapPercentGauge,
		m.cacheTTLGauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register gauge callback: %w", err)
	}

	return nil
}

// RecordScan records one full process table scan and its duration.
func (m *Metrics) RecordScan(ctx context.Context, durationMs float64) {
	if m.scanCounter == nil {
		return
	}

	m.scanCounter.Add(ctx, 1)
	m.scanDuration.Record(ctx, durationMs)
}

// RecordCacheHits records n collections served from the PID cache.
func (m *Metrics) RecordCacheHits(ctx context.Context, n int64) {
	if m.cacheHitCounter == nil || n <= 0 {
		return
	}

	m.cacheHitCounter.Add(ctx, n)
}

// RecordRemediationAction records a remediation action with its outcome.
func (m *Metrics) RecordRemediationAction(ctx context.Context, action, result string) {
	if m.remediationCounter == nil {
		return
	}

	m.remediationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

// SetSwapPercent updates the value read by the swap usage gauge.
// This is thread-safe and will be read by the gauge callback.
func (m *Metrics) SetSwapPercent(percent float64) {
	m.swapPercentBits.Store(math.Float64bits(percent))
}

// SetCacheTTL updates the value read by the adaptive TTL gauge.
func (m *Metrics) SetCacheTTL(seconds int64) {
	m.cacheTTLSeconds.Store(seconds)
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gaugeReg != nil {
		if err := m.gaugeReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister gauge callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
