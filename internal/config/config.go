// Package config defines the swapwatch configuration tree, loaded once at
// startup from a TOML file and never reloaded while the engine runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration. Zero values are filled by WithDefaults;
// Validate is the only fatal error path in the program.
type Config struct {
	General       GeneralConfig        `toml:"general"`
	Thresholds    ThresholdConfig      `toml:"thresholds"`
	Performance   PerformanceConfig    `toml:"performance"`
	MonitoredApps map[string]AppConfig `toml:"monitored_apps"`
	Alerts        AlertConfig          `toml:"alerts"`
	History       HistoryConfig        `toml:"history"`
	Observability ObservabilityConfig  `toml:"observability"`
}

// GeneralConfig holds loop pacing and log settings.
type GeneralConfig struct {
	// LogFile is the path for the append-only text log.
	LogFile string `toml:"log_file"`

	// CheckIntervalSeconds is the remediation check interval. Default: 300.
	CheckIntervalSeconds int `toml:"check_interval"`

	// SampleIntervalSeconds paces snapshot refresh and metrics sampling.
	// Default: 3.
	SampleIntervalSeconds int `toml:"ui_update_interval"`

	// MaxLogLines bounds the in-memory event buffer. Default: 1000.
	MaxLogLines int `toml:"max_log_lines"`
}

// ThresholdConfig holds the hysteresis thresholds, in percent of total swap.
type ThresholdConfig struct {
	// SwapHigh triggers remediation when crossed. Default: 80.
	SwapHigh float64 `toml:"swap_high"`

	// SwapLow is the target a remediation pass must reach before it stops.
	// Default: 65.
	SwapLow float64 `toml:"swap_low"`
}

// PerformanceConfig bounds the adaptive telemetry cache TTL.
type PerformanceConfig struct {
	// AdaptiveCacheMinSeconds is the TTL floor. Default: 10.
	AdaptiveCacheMinSeconds int `toml:"adaptive_cache_min"`

	// AdaptiveCacheMaxSeconds is the TTL ceiling. Default: 30.
	AdaptiveCacheMaxSeconds int `toml:"adaptive_cache_max"`
}

// AppConfig describes one monitored application. The map key in
// Config.MonitoredApps is the process name pattern matched against process
// name, executable path and arguments.
type AppConfig struct {
	// ServiceName is the systemd unit restarted when this app is targeted.
	ServiceName string `toml:"service_name"`

	// IncludeChildren unions descendant PIDs into the app's usage.
	IncludeChildren bool `toml:"include_children"`
}

// AlertConfig controls cooldown-gated alert delivery.
type AlertConfig struct {
	Enabled         bool          `toml:"enabled"`
	CooldownMinutes int           `toml:"cooldown_minutes"`
	Email           EmailConfig   `toml:"email"`
	Webhook         WebhookConfig `toml:"webhook"`
}

// EmailConfig is the SMTP delivery channel.
type EmailConfig struct {
	Enabled  bool   `toml:"enabled"`
	To       string `toml:"to"`
	FromAddr string `toml:"from_addr"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
}

// WebhookConfig is the HTTP POST delivery channel.
type WebhookConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

// HistoryConfig controls the sqlite metrics store.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`

	// RetentionDays is how long rows are kept. Default: 30.
	RetentionDays int `toml:"retention_days"`

	// SampleIntervalSeconds throttles system samples. Default: 300.
	SampleIntervalSeconds int `toml:"sample_interval"`
}

// ObservabilityConfig selects the OpenTelemetry exporters.
type ObservabilityConfig struct {
	MetricsEnabled bool   `toml:"metrics_enabled"`
	TracingEnabled bool   `toml:"tracing_enabled"`
	Exporter       string `toml:"exporter"` // none, stdout, otlp-grpc, otlp-http
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	OTLPInsecure   bool   `toml:"otlp_insecure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of the config with zero values replaced by
// defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.General.LogFile == "" {
		result.General.LogFile = "/var/log/swapwatch.log"
	}
	if result.General.CheckIntervalSeconds <= 0 {
		result.General.CheckIntervalSeconds = 300
	}
	if result.General.SampleIntervalSeconds <= 0 {
		result.General.SampleIntervalSeconds = 3
	}
	if result.General.MaxLogLines <= 0 {
		result.General.MaxLogLines = 1000
	}
	if result.Thresholds.SwapHigh == 0 {
		result.Thresholds.SwapHigh = 80
	}
	if result.Thresholds.SwapLow == 0 {
		result.Thresholds.SwapLow = 65
	}
	if result.Performance.AdaptiveCacheMinSeconds <= 0 {
		result.Performance.AdaptiveCacheMinSeconds = 10
	}
	if result.Performance.AdaptiveCacheMaxSeconds <= 0 {
		result.Performance.AdaptiveCacheMaxSeconds = 30
	}
	if result.Alerts.CooldownMinutes <= 0 {
		result.Alerts.CooldownMinutes = 15
	}
	if result.Alerts.Email.FromAddr == "" {
		result.Alerts.Email.FromAddr = "swapwatch@localhost"
	}
	if result.Alerts.Email.SMTPHost == "" {
		result.Alerts.Email.SMTPHost = "localhost"
	}
	if result.Alerts.Email.SMTPPort <= 0 {
		result.Alerts.Email.SMTPPort = 25
	}
	if result.History.DBPath == "" {
		result.History.DBPath = "/var/lib/swapwatch/metrics.db"
	}
	if result.History.RetentionDays <= 0 {
		result.History.RetentionDays = 30
	}
	if result.History.SampleIntervalSeconds <= 0 {
		result.History.SampleIntervalSeconds = 300
	}
	if result.Observability.Exporter == "" {
		result.Observability.Exporter = "none"
	}
	return result
}

// Load reads the TOML file at path and fills defaults. A missing file is not
// an error: the built-in defaults are returned so swapwatch can run without
// any config at all.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// Validate checks the invariants that must hold before the engine starts.
// Thresholds are validated exactly once here, never per tick.
func (c Config) Validate() error {
	if c.Thresholds.SwapLow >= c.Thresholds.SwapHigh {
		return fmt.Errorf("swap_low (%.1f) must be less than swap_high (%.1f)",
			c.Thresholds.SwapLow, c.Thresholds.SwapHigh)
	}
	if c.Thresholds.SwapLow < 0 || c.Thresholds.SwapLow > 100 ||
		c.Thresholds.SwapHigh < 0 || c.Thresholds.SwapHigh > 100 {
		return fmt.Errorf("thresholds must be between 0 and 100 (low=%.1f high=%.1f)",
			c.Thresholds.SwapLow, c.Thresholds.SwapHigh)
	}
	if c.Performance.AdaptiveCacheMinSeconds > c.Performance.AdaptiveCacheMaxSeconds {
		return fmt.Errorf("adaptive_cache_min (%d) must not exceed adaptive_cache_max (%d)",
			c.Performance.AdaptiveCacheMinSeconds, c.Performance.AdaptiveCacheMaxSeconds)
	}
	for pattern, app := range c.MonitoredApps {
		if pattern == "" {
			return fmt.Errorf("monitored app with empty pattern")
		}
		if app.ServiceName == "" {
			return fmt.Errorf("monitored app %q has no service_name", pattern)
		}
	}
	switch c.Observability.Exporter {
	case "none", "stdout", "otlp-grpc", "otlp-http":
	default:
		return fmt.Errorf("unknown observability exporter: %s", c.Observability.Exporter)
	}
	return nil
}

// CheckInterval returns the remediation check interval as a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.General.CheckIntervalSeconds) * time.Second
}

// SampleInterval returns the snapshot refresh interval as a duration.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.General.SampleIntervalSeconds) * time.Second
}

// AlertCooldown returns the alert cooldown as a duration.
func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownMinutes) * time.Minute
}
