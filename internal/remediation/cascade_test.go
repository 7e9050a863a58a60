package remediation

import (
	"testing"

	"github.com/bc-dunia/swapwatch/internal/sysops"
)

func TestRunCascadeStopsWhenCleared(t *testing.T) {
	targets := []Target{
		{App: "postgres", Service: "postgresql.service"},
		{App: "redis", Service: "redis.service"},
		{App: "nginx", Service: "nginx.service"},
	}

	var restarted []string
	restart := func(service string) sysops.Result {
		restarted = append(restarted, service)
		return sysops.Result{Outcome: sysops.OutcomeSuccess}
	}

	// First restart brings swap from 75 down to 60, under the low threshold.
	readings := []float64{60, 55, 50}
	swap := func() float64 {
		pct := readings[0]
		readings = readings[1:]
		return pct
	}

	settled := 0
	results, cleared := RunCascade(targets, 65, restart, swap, func() { settled++ })

	if !cleared {
		t.Fatal("expected cascade to report cleared")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 action, got %d", len(results))
	}
	if len(restarted) != 1 || restarted[0] != "postgresql.service" {
		t.Fatalf("expected only the top consumer restarted, got %v", restarted)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settle, got %d", settled)
	}
	if results[0].SwapAfter != 60 {
		t.Errorf("expected SwapAfter 60, got %.1f", results[0].SwapAfter)
	}
}

func TestRunCascadeContinuesWhileHigh(t *testing.T) {
	targets := []Target{
		{App: "postgres", Service: "postgresql.service"},
		{App: "redis", Service: "redis.service"},
	}

	var restarted []string
	restart := func(service string) sysops.Result {
		restarted = append(restarted, service)
		return sysops.Result{Outcome: sysops.OutcomeSuccess}
	}

	readings := []float64{75, 62}
	swap := func() float64 {
		pct := readings[0]
		readings = readings[1:]
		return pct
	}

	results, cleared := RunCascade(targets, 65, restart, swap, func() {})

	if !cleared {
		t.Fatal("expected cascade to clear on the second restart")
	}
	if len(restarted) != 2 {
		t.Fatalf("expected both services restarted, got %v", restarted)
	}
	if results[1].SwapAfter != 62 {
		t.Errorf("expected final SwapAfter 62, got %.1f", results[1].SwapAfter)
	}
}

func TestRunCascadeExhaustsTargets(t *testing.T) {
	targets := []Target{
		{App: "postgres", Service: "postgresql.service"},
		{App: "redis", Service: "redis.service"},
	}

	restart := func(service string) sysops.Result {
		return sysops.Result{Outcome: sysops.OutcomeFailure, Detail: "unit not found"}
	}
	swap := func() float64 { return 90 }

	results, cleared := RunCascade(targets, 65, restart, swap, func() {})

	if cleared {
		t.Fatal("expected cascade to give up")
	}
	if len(results) != 2 {
		t.Fatalf("expected all targets attempted, got %d", len(results))
	}
	for _, r := range results {
		if r.Result.Outcome != sysops.OutcomeFailure {
			t.Errorf("expected failure outcome for %s, got %s", r.Service, r.Result.Outcome)
		}
	}
}

func TestRunCascadeNoTargets(t *testing.T) {
	results, cleared := RunCascade(nil, 65,
		func(string) sysops.Result { t.Fatal("restart should not run"); return sysops.Result{} },
		func() float64 { return 90 },
		func() {},
	)
	if cleared || len(results) != 0 {
		t.Fatalf("expected no actions and not cleared, got %d actions cleared=%v", len(results), cleared)
	}
}
