package schedule

import (
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// Detect finds the canonical triad matching the cursors' local steps.
// By construction one always matches; no match panics with a schedule
// contract violation.
func Detect(c *Cursors) domain.TriadPoint {
	steps := c.LocalSteps()
	for i, triad := range Triads {
		if sameSet(steps, triad) {
			return domain.TriadPoint{TimePoint: i, Steps: steps}
		}
	}
	panic(domain.NewEngineError(
		domain.ErrScheduleContract.Code,
		fmt.Sprintf("local steps %v match no triad", steps),
	))
}

func sameSet(a, b [3]int) bool {
	var seen [Steps + 1]int
	for _, v := range a {
		if !ValidStep(v) {
			return false
		}
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// Couplings returns the couplings active for the cursors' current terms,
// in a fixed order.
func Couplings(c *Cursors) []domain.Coupling {
	var has [domain.TermBalancedResponse + 1]bool
	for i := range c {
		has[c[i].Term] = true
	}
	var out []domain.Coupling
	if has[domain.TermSensoryInput] && has[domain.TermMemoryEncoding] {
		out = append(out, domain.CouplingPerceptionMemory)
	}
	if has[domain.TermPerception] && has[domain.TermIdeaFormation] {
		out = append(out, domain.CouplingAssessmentPlanning)
	}
	if has[domain.TermBalancedResponse] {
		out = append(out, domain.CouplingBalancedIntegration)
	}
	return out
}
