// Package remediation decides when swap pressure warrants action and
// escalates from a cache drop to ranked service restarts, with hysteresis so
// one noisy measurement cannot re-trigger a pass.
package remediation

// Phase is the remediation state within a single tick. The engine always
// returns to the implicit Normal baseline between ticks.
type Phase string

const (
	// PhaseNormal: swap below the high threshold, nothing to do.
	PhaseNormal Phase = "normal"
	// PhaseCooling: high threshold crossed, dropping kernel caches.
	PhaseCooling Phase = "cooling"
	// PhaseRestarting: cache drop was not enough, cascading restarts.
	PhaseRestarting Phase = "restarting"
	// PhaseResumed: the pass finished (target met or options exhausted).
	PhaseResumed Phase = "resumed"
)

var allowedTransitions = map[Phase]map[Phase]struct{}{
	PhaseNormal: {
		PhaseCooling: {},
	},
	PhaseCooling: {
		PhaseRestarting: {},
		PhaseResumed:    {},
	},
	PhaseRestarting: {
		PhaseResumed: {},
	},
	PhaseResumed: {
		PhaseNormal: {},
	},
}

// CanTransition reports whether a phase transition is valid.
func CanTransition(from, to Phase) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}
