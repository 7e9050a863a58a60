package sysops

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultRestartTimeout bounds one systemctl restart. Units that take longer
// are classified as timeouts and the cascade moves on.
const DefaultRestartTimeout = 60 * time.Second

// SystemdController restarts services through systemctl.
type SystemdController struct {
	Timeout time.Duration

	// command is swapped in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewSystemdController creates a controller with the default restart timeout.
func NewSystemdController() *SystemdController {
	return &SystemdController{
		Timeout: DefaultRestartTimeout,
		command: exec.CommandContext,
	}
}

// Restart restarts the named unit under the controller's timeout and
// classifies the outcome. It never returns an error: timeout and failure are
// results, not exceptions.
func (s *SystemdController) Restart(ctx context.Context, serviceName string) Result {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRestartTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := s.command
	if command == nil {
		command = exec.CommandContext
	}

	var stderr bytes.Buffer
	cmd := command(ctx, "systemctl", "restart", serviceName)
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return Result{Outcome: OutcomeSuccess}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Result{Outcome: OutcomeTimeout, Detail: "restart timed out"}
	default:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Result{Outcome: OutcomeFailure, Detail: detail}
	}
}
