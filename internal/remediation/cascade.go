package remediation

import (
	"github.com/bc-dunia/swapwatch/internal/sysops"
)

// Target is one restart candidate, highest swap consumer first.
type Target struct {
	App     string
	Service string
}

// ActionResult is the recorded outcome of one restart in a cascade.
type ActionResult struct {
	App       string
	Service   string
	Result    sysops.Result
	SwapAfter float64
}

// RestartFunc restarts a service and classifies the outcome.
type RestartFunc func(service string) sysops.Result

// RunCascade restarts targets in order until swap usage drops under
// lowThreshold or targets run out. settle runs after each restart before the
// effect is measured. The function is pure in its decision logic: every side
// effect arrives through the callbacks, so the escalation policy can be
// tested without a host.
func RunCascade(
	targets []Target,
	lowThreshold float64,
	restart RestartFunc,
	swapPercent func() float64,
	settle func(),
) (results []ActionResult, cleared bool) {
	for _, target := range targets {
		result := restart(target.Service)
		settle()
		after := swapPercent()

		results = append(results, ActionResult{
			App:       target.App,
			Service:   target.Service,
			Result:    result,
			SwapAfter: after,
		})

		if after < lowThreshold {
			return results, true
		}
	}
	return results, false
}
