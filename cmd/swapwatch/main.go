package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/bc-dunia/swapwatch/internal/alerting"
	"github.com/bc-dunia/swapwatch/internal/config"
	"github.com/bc-dunia/swapwatch/internal/history"
	"github.com/bc-dunia/swapwatch/internal/monitor"
	"github.com/bc-dunia/swapwatch/internal/otel"
	"github.com/bc-dunia/swapwatch/internal/procscan"
	"github.com/bc-dunia/swapwatch/internal/remediation"
	"github.com/bc-dunia/swapwatch/internal/sysops"
	"github.com/bc-dunia/swapwatch/internal/telemetry"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "/etc/swapwatch/swapwatch.toml", "Path to the TOML config file")
	swapHigh := flag.Float64("swap-high", 0, "Override the high swap threshold (percent)")
	swapLow := flag.Float64("swap-low", 0, "Override the low swap threshold (percent)")
	checkInterval := flag.Int("check-interval", 0, "Override the check interval (seconds)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("swapwatch %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file.
	if *swapHigh > 0 {
		cfg.Thresholds.SwapHigh = *swapHigh
	}
	if *swapLow > 0 {
		cfg.Thresholds.SwapLow = *swapLow
	}
	if *checkInterval > 0 {
		cfg.General.CheckIntervalSeconds = *checkInterval
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "swapwatch needs root to drop caches and restart services")
		os.Exit(1)
	}

	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log.Printf("[Main] swapwatch %s starting (high=%.1f%% low=%.1f%%, %d monitored apps)",
		version, cfg.Thresholds.SwapHigh, cfg.Thresholds.SwapLow, len(cfg.MonitoredApps))

	// Observability first so everything downstream can record into it.
	exporter := otel.ExporterType(cfg.Observability.Exporter)

	metrics, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:        cfg.Observability.MetricsEnabled,
		ServiceName:    "swapwatch",
		ServiceVersion: version,
		ExporterType:   exporter,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	otel.SetGlobalMetrics(metrics)
	defer metrics.Shutdown(context.Background())

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        cfg.Observability.TracingEnabled,
		ServiceName:    "swapwatch",
		ServiceVersion: version,
		ExporterType:   exporter,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   cfg.Observability.OTLPInsecure,
		SampleRate:     1.0,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	otel.SetGlobalTracer(tracer)
	defer tracer.Shutdown(context.Background())

	// Telemetry pipeline: process resolver behind the adaptive cache.
	apps := make([]procscan.App, 0, len(cfg.MonitoredApps))
	services := make(map[string]string, len(cfg.MonitoredApps))
	for pattern, app := range cfg.MonitoredApps {
		apps = append(apps, procscan.App{
			Pattern:         pattern,
			ServiceName:     app.ServiceName,
			IncludeChildren: app.IncludeChildren,
		})
		services[pattern] = app.ServiceName
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Pattern < apps[j].Pattern })

	resolver := procscan.NewResolver(apps, procscan.GopsutilLister{})
	adaptive := telemetry.NewAdaptiveTTL(
		time.Duration(cfg.Performance.AdaptiveCacheMinSeconds)*time.Second,
		time.Duration(cfg.Performance.AdaptiveCacheMaxSeconds)*time.Second,
	)
	collector := telemetry.NewCollector(resolver, adaptive)

	// Alerting.
	var alerter *alerting.Manager
	if cfg.Alerts.Enabled {
		var channels []alerting.Channel
		if cfg.Alerts.Email.Enabled {
			channels = append(channels, alerting.NewEmailChannel(
				cfg.Alerts.Email.SMTPHost, cfg.Alerts.Email.SMTPPort,
				cfg.Alerts.Email.FromAddr, []string{cfg.Alerts.Email.To}, "", ""))
		}
		if cfg.Alerts.Webhook.Enabled {
			channels = append(channels, alerting.NewWebhookChannel(cfg.Alerts.Webhook.URL))
		}
		alerter = alerting.NewManager(cfg.AlertCooldown(), channels...)
		log.Printf("[Main] Alerting enabled (%d channels, %s cooldown)", len(channels), cfg.AlertCooldown())
	}

	// History.
	store := history.Disabled()
	if cfg.History.Enabled {
		s, err := history.Open(history.Config{
			DBPath:         cfg.History.DBPath,
			RetentionDays:  cfg.History.RetentionDays,
			SampleInterval: time.Duration(cfg.History.SampleIntervalSeconds) * time.Second,
		})
		if err != nil {
			log.Printf("[Main] History disabled: %v", err)
		} else {
			store = s
			defer store.Close()
			log.Printf("[Main] History at %s (%d day retention)", cfg.History.DBPath, cfg.History.RetentionDays)
		}
	}
	pruner := history.NewPruner(store)
	pruner.Start()
	defer pruner.Stop()

	// Remediation.
	engine := remediation.NewEngine(remediation.Config{
		HighThreshold: cfg.Thresholds.SwapHigh,
		LowThreshold:  cfg.Thresholds.SwapLow,
		Services:      services,
	}, collector, sysops.NewCacheDropper(), sysops.NewSystemdController())
	if alerter != nil {
		engine.SetAlerter(alerter)
	}
	engine.SetRecorder(store)
	engine.SetTracer(tracer)

	// Monitor loop.
	mon := monitor.New(monitor.Config{
		CheckInterval:  cfg.CheckInterval(),
		SampleInterval: cfg.SampleInterval(),
		MaxEvents:      cfg.General.MaxLogLines,
	}, collector, engine, sysops.NewSystemdController(), store, metrics, tracer)

	engine.SetEventFunc(func(format string, args ...any) {
		log.Printf(format, args...)
		mon.Events().Addf(format, args...)
	})

	mon.Run(ctx)

	log.Printf("[Main] swapwatch stopped")
	return nil
}
