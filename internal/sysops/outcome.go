// Package sysops wraps the privileged host operations swapwatch depends on:
// restarting systemd units and dropping reclaimable kernel caches.
package sysops

// Outcome classifies a service-control attempt. Service control never
// surfaces an error to the remediation cascade; every attempt resolves to
// one of these.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailure Outcome = "failure"
)

// Result is the classified outcome of one service-control attempt, with
// diagnostic text for the action log.
type Result struct {
	Outcome Outcome
	Detail  string
}
