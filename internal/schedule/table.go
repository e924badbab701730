// Package schedule holds the fixed twelve-step stream schedule, the per-stream
// cursors derived from it, and convergence detection across the three streams.
package schedule

import (
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

const (
	// Steps is the length of one master cycle.
	Steps = 12
	// TriadSpan is the distance between members of a triad and between the
	// start steps of consecutive streams.
	TriadSpan = 4
	// TriadCount is the number of disjoint triads partitioning the schedule.
	TriadCount = TriadSpan
	// TriadSize is the number of steps in one triad, one per stream.
	TriadSize = Steps / TriadSpan
)

// Triads are the four canonical convergence sets, indexed by time point.
var Triads = [TriadCount][TriadSize]int{
	{1, 5, 9},
	{2, 6, 10},
	{3, 7, 11},
	{4, 8, 12},
}

// stepTerms assigns a term to each step, indexed by step-1. Each triad mixes
// terms so that every time point activates at least one coupling.
var stepTerms = [Steps]domain.Term{
	domain.TermSensoryInput,
	domain.TermPerception,
	domain.TermPerception,
	domain.TermMemoryEncoding,
	domain.TermIdeaFormation,
	domain.TermIdeaFormation,
	domain.TermBalancedResponse,
	domain.TermSensoryInput,
	domain.TermMemoryEncoding,
	domain.TermActionSequence,
	domain.TermIdeaFormation,
	domain.TermBalancedResponse,
}

var table = buildTable()

func buildTable() [Steps]domain.StepEntry {
	var t [Steps]domain.StepEntry
	for i := range t {
		step := i + 1
		t[i] = domain.StepEntry{
			Step:       step,
			Stream:     domain.StreamID(i / TriadSpan),
			Term:       stepTerms[i],
			Mode:       modeOf(step),
			Kind:       kindOf(step),
			PhaseAngle: i * 30,
		}
	}
	return t
}

// Seven expressive steps followed by five reflective ones.
func modeOf(step int) domain.Mode {
	if step <= 7 {
		return domain.ModeExpressive
	}
	return domain.ModeReflective
}

func kindOf(step int) domain.StepKind {
	switch {
	case step == 1 || step == 7:
		return domain.StepPivotal
	case step < 7:
		return domain.StepAffordance
	default:
		return domain.StepSalience
	}
}

// ValidStep reports whether step is a schedule position.
func ValidStep(step int) bool { return step >= 1 && step <= Steps }

// Lookup returns the entry for an absolute step in 1..12.
func Lookup(step int) (domain.StepEntry, error) {
	if !ValidStep(step) {
		return domain.StepEntry{}, domain.NewEngineError(
			domain.ErrScheduleContract.Code,
			fmt.Sprintf("step %d outside 1..%d", step, Steps),
		)
	}
	return table[step-1], nil
}

// MustLookup is Lookup for callers that already hold the step invariant.
// An out-of-range step means the schedule contract was broken and panics.
func MustLookup(step int) domain.StepEntry {
	e, err := Lookup(step)
	if err != nil {
		panic(err)
	}
	return e
}

// Table returns a copy of the full schedule.
func Table() [Steps]domain.StepEntry { return table }

// Offset returns the fixed phase offset of a stream in step units.
func Offset(s domain.StreamID) int { return int(s) * TriadSpan }

// StartStep returns the absolute step at which a stream's local step is 1.
func StartStep(s domain.StreamID) int { return Offset(s) + 1 }

// LocalStep maps an absolute step to a stream's local step:
// ((abs - 1 - offset) mod 12) + 1.
func LocalStep(abs int, s domain.StreamID) int {
	if !ValidStep(abs) || !s.Valid() {
		panic(domain.NewEngineError(
			domain.ErrScheduleContract.Code,
			fmt.Sprintf("local step for stream %d at absolute step %d", int(s), abs),
		))
	}
	return ((abs-1-Offset(s))%Steps+Steps)%Steps + 1
}

// TriadIndex returns the time point of the triad containing step.
func TriadIndex(step int) int {
	if !ValidStep(step) {
		panic(domain.NewEngineError(
			domain.ErrScheduleContract.Code,
			fmt.Sprintf("triad for step %d", step),
		))
	}
	return (step - 1) % TriadSpan
}

// NextStep returns the step after step, wrapping 12 to 1.
func NextStep(step int) int { return step%Steps + 1 }
