// Package domain defines the core types for the triad kernel.
package domain

import (
	"fmt"
	"time"
)

// StreamID identifies one of the three phase-offset processing streams.
type StreamID int

const (
	StreamPrimary StreamID = iota
	StreamSecondary
	StreamTertiary
)

// StreamCount is the number of streams sharing the master clock.
const StreamCount = 3

// Streams lists every stream in ordinal order.
var Streams = [StreamCount]StreamID{StreamPrimary, StreamSecondary, StreamTertiary}

var streamNames = [StreamCount]string{"primary", "secondary", "tertiary"}

func (s StreamID) String() string {
	if s < 0 || int(s) >= StreamCount {
		return fmt.Sprintf("stream(%d)", int(s))
	}
	return streamNames[s]
}

// Valid reports whether s is one of the three streams.
func (s StreamID) Valid() bool { return s >= 0 && int(s) < StreamCount }

// MarshalText implements encoding.TextMarshaler.
func (s StreamID) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stream id %d", int(s))
	}
	return []byte(streamNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StreamID) UnmarshalText(b []byte) error {
	for i, name := range streamNames {
		if name == string(b) {
			*s = StreamID(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stream %q", string(b))
}

// Term is the cognitive term a schedule slot performs.
type Term int

const (
	TermSensoryInput Term = iota
	TermPerception
	TermIdeaFormation
	TermMemoryEncoding
	TermActionSequence
	TermBalancedResponse
)

var termNames = [...]string{
	TermSensoryInput:     "T4-sensory-input",
	TermPerception:       "T1-perception",
	TermIdeaFormation:    "T2-idea-formation",
	TermMemoryEncoding:   "T7-memory-encoding",
	TermActionSequence:   "T5-action-sequence",
	TermBalancedResponse: "T8-balanced-response",
}

func (t Term) String() string {
	if t < 0 || int(t) >= len(termNames) {
		return fmt.Sprintf("term(%d)", int(t))
	}
	return termNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Term) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Term) UnmarshalText(b []byte) error {
	for i, name := range termNames {
		if name == string(b) {
			*t = Term(i)
			return nil
		}
	}
	return fmt.Errorf("unknown term %q", string(b))
}

// Mode is the processing mode of a schedule slot.
type Mode int

const (
	ModeExpressive Mode = iota
	ModeReflective
)

func (m Mode) String() string {
	switch m {
	case ModeExpressive:
		return "expressive"
	case ModeReflective:
		return "reflective"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "expressive":
		*m = ModeExpressive
	case "reflective":
		*m = ModeReflective
	default:
		return fmt.Errorf("unknown mode %q", string(b))
	}
	return nil
}

// StepKind classifies a schedule slot.
type StepKind int

const (
	StepPivotal StepKind = iota
	StepAffordance
	StepSalience
)

func (k StepKind) String() string {
	switch k {
	case StepPivotal:
		return "pivotal"
	case StepAffordance:
		return "affordance"
	case StepSalience:
		return "salience"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k StepKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// StepEntry is one of the twelve fixed schedule slots.
type StepEntry struct {
	Step       int      `json:"step"`
	Stream     StreamID `json:"stream"`
	Term       Term     `json:"term"`
	Mode       Mode     `json:"mode"`
	Kind       StepKind `json:"kind"`
	PhaseAngle int      `json:"phase_angle"`
}

// StreamCursor is the live position of a stream.
type StreamCursor struct {
	Stream    StreamID `json:"stream"`
	Offset    int      `json:"offset"`
	StartStep int      `json:"start_step"`
	LocalStep int      `json:"local_step"`
	Term      Term     `json:"term"`
	Mode      Mode     `json:"mode"`
	Active    bool     `json:"active"`
}

// TriadPoint records a convergence of the three streams on one triad.
type TriadPoint struct {
	TimePoint int    `json:"time_point"`
	Steps     [3]int `json:"steps"`
}

// Coupling names a cross-stream interaction active when particular terms
// are occupied at the same tick.
type Coupling string

const (
	CouplingPerceptionMemory    Coupling = "perception_memory"
	CouplingAssessmentPlanning  Coupling = "assessment_planning"
	CouplingBalancedIntegration Coupling = "balanced_integration"
)

// ProcessState is the lifecycle state of a message process.
type ProcessState string

const (
	ProcessPending    ProcessState = "pending"
	ProcessActive     ProcessState = "active"
	ProcessProcessing ProcessState = "processing"
	ProcessWaiting    ProcessState = "waiting"
	ProcessSuspended  ProcessState = "suspended"
	ProcessCompleted  ProcessState = "completed"
	ProcessTerminated ProcessState = "terminated"
)

// Terminal reports whether no further transition may leave s.
func (s ProcessState) Terminal() bool {
	return s == ProcessCompleted || s == ProcessTerminated
}

// Outcome is the result class of one processing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Message is the inbound and outbound unit shape.
type Message struct {
	ID         string            `json:"id"`
	From       string            `json:"from"`
	To         []string          `json:"to"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at,omitempty"`
}

// CognitiveContext is the per-process cognitive state handed to the processor.
type CognitiveContext struct {
	Salience        float64    `json:"salience"`
	Valence         float64    `json:"valence"`
	Arousal         float64    `json:"arousal"`
	ActiveCouplings []Coupling `json:"active_couplings,omitempty"`
	Perception      string     `json:"perception,omitempty"`
	Thought         string     `json:"thought,omitempty"`
	Action          string     `json:"action,omitempty"`
}

// ExecutionRecord is one processing attempt. Immutable once appended.
type ExecutionRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Step      int           `json:"step"`
	Stream    StreamID      `json:"stream"`
	Term      Term          `json:"term"`
	Mode      Mode          `json:"mode"`
	Duration  time.Duration `json:"duration"`
	Outcome   Outcome       `json:"outcome"`
	Output    string        `json:"output,omitempty"`
}

// MessageProcess is one unit of scheduled cognitive work.
type MessageProcess struct {
	ID            string            `json:"id"`
	OriginID      string            `json:"origin_id"`
	Sender        string            `json:"sender"`
	Destinations  []string          `json:"destinations"`
	Subject       string            `json:"subject"`
	Content       string            `json:"content"`
	State         ProcessState      `json:"state"`
	Priority      int               `json:"priority"`
	CurrentStep   int               `json:"current_step"`
	CurrentStream StreamID          `json:"current_stream"`
	Context       CognitiveContext  `json:"context"`
	CreatedAt     time.Time         `json:"created_at"`
	DispatchedAt  time.Time         `json:"dispatched_at,omitempty"`
	FinishedAt    time.Time         `json:"finished_at,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"`
	ChildIDs      []string          `json:"child_ids,omitempty"`
	History       []ExecutionRecord `json:"history,omitempty"`
	Generation    int64             `json:"generation"`
}

// Clone returns a deep copy safe to hand outside the process table.
func (p *MessageProcess) Clone() *MessageProcess {
	c := *p
	c.Destinations = append([]string(nil), p.Destinations...)
	c.ChildIDs = append([]string(nil), p.ChildIDs...)
	c.History = append([]ExecutionRecord(nil), p.History...)
	c.Context.ActiveCouplings = append([]Coupling(nil), p.Context.ActiveCouplings...)
	return &c
}

// KernelMetrics holds kernel counters and gauges.
type KernelMetrics struct {
	TotalSteps         int64   `json:"total_steps"`
	TotalCycles        int64   `json:"total_cycles"`
	ProcessesCompleted int64   `json:"processes_completed"`
	ProcessesFailed    int64   `json:"processes_failed"`
	AverageLatencyMS   float64 `json:"average_latency_ms"`
	StreamCoherence    float64 `json:"stream_coherence"`
	CognitiveLoad      float64 `json:"cognitive_load"`
	ActiveCouplings    int     `json:"active_couplings"`
}

// ProcessorRequest is what the kernel hands to the cognitive processor.
type ProcessorRequest struct {
	ProcessID string           `json:"process_id"`
	Subject   string           `json:"subject"`
	Content   string           `json:"content"`
	Priority  int              `json:"priority"`
	Step      int              `json:"step"`
	Stream    StreamID         `json:"stream"`
	Term      Term             `json:"term"`
	Mode      Mode             `json:"mode"`
	Context   CognitiveContext `json:"context"`
}

// ProcessorResult is what the cognitive processor returns. A failed call is
// reported as OutcomeFailed, never as a panic.
type ProcessorResult struct {
	Outcome    Outcome  `json:"outcome"`
	Output     string   `json:"output"`
	Perception string   `json:"perception,omitempty"`
	Thought    string   `json:"thought,omitempty"`
	Action     string   `json:"action,omitempty"`
	Valence    *float64 `json:"valence,omitempty"`
	Arousal    *float64 `json:"arousal,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// EventType names a kernel event.
type EventType string

const (
	EventStepAdvance       EventType = "step_advance"
	EventTriadConvergence  EventType = "triad_convergence"
	EventProcessCreated    EventType = "process_created"
	EventProcessAdmitted   EventType = "process_admitted"
	EventProcessDispatched EventType = "process_dispatched"
	EventProcessState      EventType = "process_state"
	EventProcessCompleted  EventType = "process_completed"
	EventProcessTerminated EventType = "process_terminated"
	EventCouplingActivated EventType = "coupling_activated"
	EventStreamSync        EventType = "stream_sync"
	EventCycleComplete     EventType = "cycle_complete"
)

// Event is a kernel emission. Only the fields relevant to Type are set.
type Event struct {
	Seq       int64            `json:"seq"`
	Type      EventType        `json:"type"`
	Step      int              `json:"step"`
	Cycle     int64            `json:"cycle"`
	At        time.Time        `json:"at"`
	Triad     *TriadPoint      `json:"triad,omitempty"`
	Process   *MessageProcess  `json:"process,omitempty"`
	ProcessID string           `json:"process_id,omitempty"`
	Result    *ProcessorResult `json:"result,omitempty"`
	Coupling  Coupling         `json:"coupling,omitempty"`
	Streams   []StreamCursor   `json:"streams,omitempty"`
	Metrics   *KernelMetrics   `json:"metrics,omitempty"`
	From      ProcessState     `json:"from,omitempty"`
	To        ProcessState     `json:"to,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// KernelSnapshot is an aggregate runtime snapshot of the kernel.
type KernelSnapshot struct {
	Name      string                    `json:"name"`
	Version   string                    `json:"version"`
	Running   bool                      `json:"running"`
	Uptime    time.Duration             `json:"uptime"`
	Step      int                       `json:"step"`
	Cycle     int64                     `json:"cycle"`
	Cursors   [StreamCount]StreamCursor `json:"cursors"`
	Metrics   KernelMetrics             `json:"metrics"`
	Processes []*MessageProcess         `json:"processes"`
	Pending   int                       `json:"pending"`
	Active    int                       `json:"active"`
	TakenAt   time.Time                 `json:"taken_at"`
}

// StoredEvent is a journaled kernel event.
type StoredEvent struct {
	ID          int64
	Seq         int64
	Type        EventType
	Step        int
	Cycle       int64
	ProcessID   string
	PayloadJSON string
	CreatedAt   int64
}

// SnapshotRecord is a persisted, checksummed kernel snapshot.
type SnapshotRecord struct {
	ID        int64
	Cycle     int64
	Step      int
	Data      []byte
	Checksum  string
	CreatedAt int64
}

// OutboxEntry is an assembled response awaiting delivery.
type OutboxEntry struct {
	ID        int64   `json:"id"`
	ProcessID string  `json:"process_id"`
	OriginID  string  `json:"origin_id"`
	Message   Message `json:"message"`
	CreatedAt int64   `json:"created_at"`
}

// AuditRecord logs operational decisions such as timeouts and correlation misses.
type AuditRecord struct {
	ID         string
	ProcessID  string
	Category   string
	Actor      string
	Action     string
	DetailJSON string
	Severity   string
	CreatedAt  int64
}
