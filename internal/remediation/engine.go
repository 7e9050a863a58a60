package remediation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bc-dunia/swapwatch/internal/sysops"
	"github.com/bc-dunia/swapwatch/internal/telemetry"
)

// DefaultSettleDelay is the pause after each action before re-measuring, so
// the action's effect on swap usage is actually observable.
const DefaultSettleDelay = 2 * time.Second

// UsageProvider supplies the ranked per-app swap usage.
type UsageProvider interface {
	Collect(forceRefresh bool) []telemetry.AppUsage
}

// ServiceController restarts services, classifying every attempt.
type ServiceController interface {
	Restart(ctx context.Context, serviceName string) sysops.Result
}

// CacheDropper releases reclaimable kernel caches.
type CacheDropper interface {
	Drop(ctx context.Context) (sysops.DropStats, error)
}

// Alerter dispatches severity alerts. Implementations own their cooldown.
type Alerter interface {
	Send(severity, message string, swapPercent float64)
}

// ActionRecorder persists the restart audit trail.
type ActionRecorder interface {
	RecordAction(actionType, target, result string)
}

// ActionTracer opens a span around one action, satisfied by otel.Tracer.
// The returned func ends the span.
type ActionTracer interface {
	StartAction(ctx context.Context, action, target string) (context.Context, func())
}

// Config holds the engine's validated thresholds and the app-to-service
// mapping. Thresholds were checked at startup; the engine trusts them.
type Config struct {
	HighThreshold float64
	LowThreshold  float64
	SettleDelay   time.Duration

	// Services maps an app pattern to its systemd unit.
	Services map[string]string
}

// PassResult summarizes one tick's remediation pass for the caller.
type PassResult struct {
	Phase       Phase
	SwapPercent float64
	Actions     []ActionResult
	Cleared     bool
}

// Engine is the hysteresis state machine. A tick runs to completion,
// including settle waits, before the caller considers the next one; the
// engine never runs two passes concurrently.
type Engine struct {
	cfg      Config
	usage    UsageProvider
	dropper  CacheDropper
	services ServiceController
	alerts   Alerter
	recorder ActionRecorder
	tracer   ActionTracer

	swapPercent func() (float64, error)
	sleep       func(time.Duration)
	eventf      func(format string, args ...any)
}

// NewEngine wires the engine. alerts and recorder may be nil; swapPercent
// defaults to the system reader.
func NewEngine(cfg Config, usage UsageProvider, dropper CacheDropper, services ServiceController) *Engine {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Engine{
		cfg:      cfg,
		usage:    usage,
		dropper:  dropper,
		services: services,
		swapPercent: func() (float64, error) {
			_, pct, err := telemetry.SystemSwap()
			return pct, err
		},
		sleep:  time.Sleep,
		eventf: log.Printf,
	}
}

// SetAlerter attaches the alert fan-out.
func (e *Engine) SetAlerter(a Alerter) { e.alerts = a }

// SetRecorder attaches the action audit trail.
func (e *Engine) SetRecorder(r ActionRecorder) { e.recorder = r }

// SetTracer attaches per-action span creation.
func (e *Engine) SetTracer(t ActionTracer) { e.tracer = t }

// SetEventFunc redirects the engine's event log (the monitor routes it into
// the dashboard event buffer).
func (e *Engine) SetEventFunc(f func(format string, args ...any)) { e.eventf = f }

// Tick runs one check-and-remediate pass. It blocks through all settle
// delays; cancellation is honored only between ticks, never mid-cascade.
func (e *Engine) Tick(ctx context.Context) PassResult {
	pct, err := e.swapPercent()
	if err != nil {
		e.eventf("[Remediation] Swap read failed: %v", err)
		return PassResult{Phase: PhaseNormal}
	}

	if pct < e.cfg.HighThreshold {
		e.eventf("[Remediation] Swap usage is %.1f%%, below the threshold of %.1f%%", pct, e.cfg.HighThreshold)
		return PassResult{Phase: PhaseNormal, SwapPercent: pct, Cleared: true}
	}

	e.eventf("[Remediation] Swap usage is %.1f%%, exceeds the threshold of %.1f%%", pct, e.cfg.HighThreshold)
	e.alert("critical", fmt.Sprintf("Swap usage at %.1f%%, exceeds %.1f%%", pct, e.cfg.HighThreshold), pct)

	phase := e.transition(PhaseNormal, PhaseCooling)
	pct = e.dropCaches(ctx)

	if pct < e.cfg.LowThreshold {
		phase = e.transition(phase, PhaseResumed)
		e.eventf("[Remediation] Swap usage is %.1f%%, now below the target of %.1f%%", pct, e.cfg.LowThreshold)
		return PassResult{Phase: phase, SwapPercent: pct, Cleared: true}
	}

	phase = e.transition(phase, PhaseRestarting)
	e.eventf("[Remediation] Swap usage still high at %.1f%%, restarting services by swap usage", pct)

	results, cleared := e.cascade(ctx, pct)
	phase = e.transition(phase, PhaseResumed)

	final := pct
	if len(results) > 0 {
		final = results[len(results)-1].SwapAfter
	}
	if cleared {
		e.eventf("[Remediation] Done: usage now at %.1f%%, below the target of %.1f%%", final, e.cfg.LowThreshold)
	} else {
		e.eventf("[Remediation] Gave up: usage still at %.1f%% after restarting all candidates", final)
		e.alert("warning", fmt.Sprintf("Remediation exhausted, swap still at %.1f%%", final), final)
	}
	e.eventf("[Remediation] Resuming normal operations")

	return PassResult{Phase: phase, SwapPercent: final, Actions: results, Cleared: cleared}
}

// dropCaches invokes the drop primitive, waits the settle delay, and
// re-reads swap usage.
func (e *Engine) dropCaches(ctx context.Context) float64 {
	dropCtx, end := e.startAction(ctx, "drop_caches", "kernel")
	stats, err := e.dropper.Drop(dropCtx)
	end()
	switch {
	case err == nil:
		const mib = 1024 * 1024
		if stats.MemFreedBytes > mib || stats.SwapFreedBytes > mib {
			e.eventf("[Remediation] Cleared caches: freed %.1fMB memory, %.1fMB swap",
				float64(stats.MemFreedBytes)/mib, float64(stats.SwapFreedBytes)/mib)
		}
		e.record("drop_caches", "kernel", "success")
	case errors.Is(err, os.ErrPermission):
		e.eventf("[Remediation] Cannot drop caches: insufficient permissions")
		e.record("drop_caches", "kernel", "permission_denied")
	default:
		e.eventf("[Remediation] Failed to drop caches: %v", err)
		e.record("drop_caches", "kernel", "failed: "+err.Error())
	}

	e.sleep(e.cfg.SettleDelay)

	pct, err := e.swapPercent()
	if err != nil {
		e.eventf("[Remediation] Swap re-read failed: %v", err)
		return 100 // assume the worst; the cascade will verify as it goes
	}
	return pct
}

// cascade force-refreshes the ranked usage and restarts monitored apps in
// order until the low threshold is met or candidates run out. pct is the
// latest swap reading, carried along so alerts report the host state as of
// the most recent measurement.
func (e *Engine) cascade(ctx context.Context, pct float64) ([]ActionResult, bool) {
	ranked := e.usage.Collect(true)

	targets := make([]Target, 0, len(ranked))
	for _, app := range ranked {
		service, ok := e.cfg.Services[app.Name]
		if !ok {
			continue
		}
		targets = append(targets, Target{App: app.Name, Service: service})
	}

	lastPct := pct

	restart := func(service string) sysops.Result {
		e.eventf("[Remediation] Restarting service %s", service)
		opCtx, end := e.startAction(ctx, "restart", service)
		result := e.services.Restart(opCtx, service)
		end()
		switch result.Outcome {
		case sysops.OutcomeSuccess:
			e.eventf("[Remediation] Service %s restarted", service)
			e.record("restart", service, "success")
		case sysops.OutcomeTimeout:
			e.eventf("[Remediation] Restarting %s timed out", service)
			e.record("restart", service, "timeout")
			e.alert("warning", fmt.Sprintf("Restart of %s timed out", service), lastPct)
		default:
			e.eventf("[Remediation] Failed to restart %s: %s", service, result.Detail)
			e.record("restart", service, "failed: "+result.Detail)
			e.alert("warning", fmt.Sprintf("Restart of %s failed: %s", service, result.Detail), lastPct)
		}
		return result
	}

	readSwap := func() float64 {
		p, err := e.swapPercent()
		if err != nil {
			p = 100
		}
		lastPct = p
		return p
	}

	return RunCascade(targets, e.cfg.LowThreshold, restart, readSwap, func() {
		e.sleep(e.cfg.SettleDelay)
	})
}

// startAction opens a span for one action when a tracer is attached.
func (e *Engine) startAction(ctx context.Context, action, target string) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, func() {}
	}
	return e.tracer.StartAction(ctx, action, target)
}

// transition validates and applies a phase change. An invalid transition is
// a programming error; it is logged and forced so the pass still completes.
func (e *Engine) transition(from, to Phase) Phase {
	if !CanTransition(from, to) {
		e.eventf("[Remediation] Invalid phase transition %s -> %s", from, to)
	}
	return to
}

func (e *Engine) alert(severity, message string, pct float64) {
	if e.alerts == nil {
		return
	}
	e.alerts.Send(severity, message, pct)
}

func (e *Engine) record(actionType, target, result string) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordAction(actionType, target, result)
}
