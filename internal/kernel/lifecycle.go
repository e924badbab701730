package kernel

import "github.com/Rogers-F/triad-kernel/internal/domain"

// validTransitions defines the legal process state transitions.
// Completed and Terminated have no outgoing edges.
var validTransitions = map[domain.ProcessState]map[domain.ProcessState]bool{
	domain.ProcessPending: {
		domain.ProcessActive:     true,
		domain.ProcessTerminated: true,
	},
	domain.ProcessActive: {
		domain.ProcessProcessing: true,
		domain.ProcessSuspended:  true,
		domain.ProcessTerminated: true,
	},
	domain.ProcessProcessing: {
		domain.ProcessCompleted:  true,
		domain.ProcessWaiting:    true,
		domain.ProcessTerminated: true,
	},
	domain.ProcessWaiting: {
		domain.ProcessProcessing: true,
		domain.ProcessTerminated: true,
	},
	domain.ProcessSuspended: {
		domain.ProcessActive:     true,
		domain.ProcessTerminated: true,
	},
}

// IsValidTransition checks if a process state transition is legal.
func IsValidTransition(from, to domain.ProcessState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
