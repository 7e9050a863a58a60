package sysops

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

// fakeCommand substitutes a shell one-liner for systemctl.
func fakeCommand(script string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
}

func TestRestartSuccess(t *testing.T) {
	s := NewSystemdController()
	s.command = fakeCommand("exit 0")

	got := s.Restart(context.Background(), "nginx")
	if got.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", got.Outcome, got.Detail)
	}
}

func TestRestartFailureCarriesStderr(t *testing.T) {
	s := NewSystemdController()
	s.command = fakeCommand("echo 'Job for nginx.service failed' >&2; exit 1")

	got := s.Restart(context.Background(), "nginx")
	if got.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", got.Outcome)
	}
	if got.Detail != "Job for nginx.service failed" {
		t.Fatalf("expected stderr as detail, got %q", got.Detail)
	}
}

func TestRestartTimeout(t *testing.T) {
	s := NewSystemdController()
	s.Timeout = 50 * time.Millisecond
	s.command = fakeCommand("sleep 5")

	got := s.Restart(context.Background(), "nginx")
	if got.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s (%s)", got.Outcome, got.Detail)
	}
}

func TestRestartFailureWithoutStderrUsesError(t *testing.T) {
	s := NewSystemdController()
	s.command = fakeCommand("exit 3")

	got := s.Restart(context.Background(), "nginx")
	if got.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", got.Outcome)
	}
	if got.Detail == "" {
		t.Fatal("expected a non-empty detail")
	}
}
