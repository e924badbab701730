package domain

import "fmt"

// EngineError is the unified error type for the kernel.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("kernel error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so errors.Is works on
// errors built with NewEngineError or WrapEngineError from a sentinel's code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Schedule / clock errors (-32010 to -32019) ----

var (
	// ErrScheduleContract is the only fatal condition. It is raised by panic
	// from the schedule package, never returned.
	ErrScheduleContract = &EngineError{Code: -32010, Message: "schedule contract violation"}
	ErrKernelRunning    = &EngineError{Code: -32011, Message: "kernel clock is already running"}
	ErrKernelStopped    = &EngineError{Code: -32012, Message: "kernel has been stopped"}
)

// ---- Process table / lifecycle errors (-32040 to -32069) ----

var (
	ErrAdmissionRejected = &EngineError{Code: -32040, Message: "admission rejected: kernel at capacity"}
	ErrUnknownProcess    = &EngineError{Code: -32041, Message: "process not found"}
	ErrInvalidTransition = &EngineError{Code: -32042, Message: "invalid process state transition"}
	ErrProcessorFailure  = &EngineError{Code: -32043, Message: "cognitive processor reported failure"}
	ErrInvalidMessage    = &EngineError{Code: -32044, Message: "invalid inbound message"}
)

// ---- Correlation / bridge errors (-32070 to -32099) ----

var (
	ErrCorrelationMiss     = &EngineError{Code: -32070, Message: "no origin correlated with process"}
	ErrDuplicateOrigin     = &EngineError{Code: -32071, Message: "origin already has a live process"}
	ErrProviderUnavailable = &EngineError{Code: -32072, Message: "cognitive processor provider unavailable"}
	ErrProcessorProtocol   = &EngineError{Code: -32073, Message: "cognitive processor returned invalid response"}
)

// ---- Guard errors (-32100 to -32129) ----

var (
	ErrRateLimitExceeded = &EngineError{Code: -32100, Message: "rate limit exceeded"}
)

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit        = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery       = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite       = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSnapshotCorrupt  = &EngineError{Code: -32134, Message: "snapshot checksum mismatch"}
	ErrSnapshotNotFound = &EngineError{Code: -32135, Message: "no snapshot recorded"}
	ErrConfigInvalid    = &EngineError{Code: -32136, Message: "invalid configuration"}
)
