// Package kernel implements the phase-multiplexed scheduler: the master
// clock shared by three offset streams, the process table with its lifecycle
// machine, and asynchronous dispatch to the cognitive processor.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/schedule"
)

// Version is reported by Status.
const Version = "0.4.0"

// Processor performs the cognitive work for one dispatched process. A
// returned error is recorded as a failed outcome; it never stops the clock.
type Processor interface {
	Process(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error) {
	return f(ctx, req)
}

// SalienceSource scores how salient a message is, in [0,1]. It is optional;
// scheduling never depends on it succeeding.
type SalienceSource interface {
	Salience(ctx context.Context, msg domain.Message) (float64, error)
}

// Config holds the kernel's tunables. Nil or zero fields take the values
// from DefaultConfig.
type Config struct {
	Name                     string
	StepDuration             time.Duration
	MaxConcurrentProcesses   int
	MaxQueueDepth            int
	EnableParallelCognition  *bool
	DefaultSalienceThreshold *float64
	EventBuffer              int
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Name:                     "triad",
		StepDuration:             100 * time.Millisecond,
		MaxConcurrentProcesses:   100,
		MaxQueueDepth:            1000,
		EnableParallelCognition:  Bool(true),
		DefaultSalienceThreshold: Float64(0.3),
		EventBuffer:              defaultEventBuffer,
	}
}

// Option configures optional kernel collaborators.
type Option func(*Kernel)

// WithClock sets the time source. Defaults to clockwork.NewRealClock().
func WithClock(c clockwork.Clock) Option { return func(k *Kernel) { k.clock = c } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(k *Kernel) { k.logger = l } }

// WithSalience sets the salience source.
func WithSalience(s SalienceSource) Option { return func(k *Kernel) { k.salience = s } }

// WithEventSeq starts event numbering after seq.
func WithEventSeq(seq int64) Option { return func(k *Kernel) { k.seq = seq } }

// entry is the kernel-side record of a live process.
type entry struct {
	p *domain.MessageProcess
	// rearm marks a process resumed from Waiting: it is Processing but must
	// be dispatched again at its next matching step.
	rearm bool
}

// dispatch is one processor invocation handed off by a tick.
type dispatch struct {
	id    string
	gen   int64
	req   domain.ProcessorRequest
	entry domain.StepEntry
}

// Kernel is the scheduler. All table mutation happens under mu; processor
// calls run outside it.
type Kernel struct {
	cfg      Config
	proc     Processor
	clock    clockwork.Clock
	logger   *slog.Logger
	salience SalienceSource
	bus      *Bus
	sem      *semaphore.Weighted
	bootTime time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	pubMu    sync.Mutex

	mu           sync.Mutex
	step         int
	cycle        int64
	cursors      schedule.Cursors
	couplings    []domain.Coupling
	procs        map[string]*entry
	pending      []string
	active       map[string]struct{}
	metrics      domain.KernelMetrics
	latencyTotal time.Duration
	seq          int64
	queue        []domain.Event
	running      bool
	stopped      bool
}

// New creates a kernel positioned before its first tick. Nil or zero-valued
// config fields take their defaults.
func New(cfg Config, proc Processor, opts ...Option) *Kernel {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.StepDuration <= 0 {
		cfg.StepDuration = def.StepDuration
	}
	if cfg.MaxConcurrentProcesses <= 0 {
		cfg.MaxConcurrentProcesses = def.MaxConcurrentProcesses
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = def.MaxQueueDepth
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.EnableParallelCognition == nil {
		cfg.EnableParallelCognition = def.EnableParallelCognition
	}
	if cfg.DefaultSalienceThreshold == nil {
		cfg.DefaultSalienceThreshold = def.DefaultSalienceThreshold
	}

	k := &Kernel{
		cfg:    cfg,
		proc:   proc,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		stopCh: make(chan struct{}),
		step:   schedule.Steps,
		procs:  make(map[string]*entry),
		active: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(k)
	}
	k.bus = NewBus(k.logger)
	k.bootTime = k.clock.Now()
	k.cursors = schedule.NewCursors(k.step)
	k.metrics.StreamCoherence = 1

	weight := int64(1)
	if *cfg.EnableParallelCognition {
		weight = int64(cfg.MaxConcurrentProcesses)
	}
	k.sem = semaphore.NewWeighted(weight)
	k.ctx, k.cancel = context.WithCancel(context.Background())
	return k
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Subscribe registers a lossy event subscriber. See Bus.
func (k *Kernel) Subscribe(types ...domain.EventType) *Subscription {
	return k.bus.Subscribe(k.cfg.EventBuffer, types...)
}

// SubscribeReliable registers a subscriber that never misses an event. See Bus.
func (k *Kernel) SubscribeReliable(types ...domain.EventType) *Subscription {
	return k.bus.SubscribeReliable(k.cfg.EventBuffer, types...)
}

// emit queues an event for publication. Caller holds mu.
func (k *Kernel) emit(ev domain.Event) {
	k.seq++
	ev.Seq = k.seq
	ev.Step = k.step
	ev.Cycle = k.cycle
	if ev.At.IsZero() {
		ev.At = k.clock.Now()
	}
	k.queue = append(k.queue, ev)
}

// flush publishes queued events in emission order. Must be called without mu.
func (k *Kernel) flush() {
	k.pubMu.Lock()
	defer k.pubMu.Unlock()
	for {
		k.mu.Lock()
		batch := k.queue
		k.queue = nil
		k.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		k.bus.Publish(batch...)
	}
}

// Create scores an inbound message and inserts a Pending process for it.
// It fails with ErrAdmissionRejected when the active set or the admission
// queue is full.
func (k *Kernel) Create(ctx context.Context, msg domain.Message) (*domain.MessageProcess, error) {
	return k.create(ctx, "", msg, nil)
}

// CreateBound is Create with a hook that runs while the new process is being
// inserted, before any event about it is published. A hook error aborts the
// insertion and is returned unchanged.
func (k *Kernel) CreateBound(ctx context.Context, msg domain.Message, bind func(*domain.MessageProcess) error) (*domain.MessageProcess, error) {
	return k.create(ctx, "", msg, bind)
}

// Spawn creates a process as a child of a live parent process.
func (k *Kernel) Spawn(ctx context.Context, parentID string, msg domain.Message) (*domain.MessageProcess, error) {
	return k.SpawnBound(ctx, parentID, msg, nil)
}

// SpawnBound is Spawn with the insertion hook of CreateBound.
func (k *Kernel) SpawnBound(ctx context.Context, parentID string, msg domain.Message, bind func(*domain.MessageProcess) error) (*domain.MessageProcess, error) {
	if parentID == "" {
		return nil, domain.NewEngineError(domain.ErrInvalidMessage.Code, "parent id is required")
	}
	return k.create(ctx, parentID, msg, bind)
}

func (k *Kernel) create(ctx context.Context, parentID string, msg domain.Message, bind func(*domain.MessageProcess) error) (*domain.MessageProcess, error) {
	if msg.ID == "" || msg.From == "" {
		return nil, domain.NewEngineError(domain.ErrInvalidMessage.Code, "message id and sender are required")
	}
	priority := Priority(msg)
	salience := k.scoreSalience(ctx, msg, priority)

	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return nil, domain.ErrKernelStopped
	}
	if len(k.active) >= k.cfg.MaxConcurrentProcesses {
		k.mu.Unlock()
		return nil, domain.NewEngineError(domain.ErrAdmissionRejected.Code,
			fmt.Sprintf("active set holds %d of %d processes", len(k.active), k.cfg.MaxConcurrentProcesses))
	}
	if len(k.pending) >= k.cfg.MaxQueueDepth {
		k.mu.Unlock()
		return nil, domain.NewEngineError(domain.ErrAdmissionRejected.Code,
			fmt.Sprintf("admission queue holds %d of %d processes", len(k.pending), k.cfg.MaxQueueDepth))
	}
	var parent *entry
	if parentID != "" {
		var ok bool
		if parent, ok = k.procs[parentID]; !ok {
			k.mu.Unlock()
			return nil, domain.ErrUnknownProcess
		}
	}

	p := &domain.MessageProcess{
		ID:           "proc-" + uuid.NewString(),
		OriginID:     msg.ID,
		Sender:       msg.From,
		Destinations: append([]string(nil), msg.To...),
		Subject:      msg.Subject,
		Content:      msg.Body,
		State:        domain.ProcessPending,
		Priority:     priority,
		CreatedAt:    k.clock.Now(),
		ParentID:     parentID,
		Context: domain.CognitiveContext{
			Salience: salience,
			Arousal:  float64(priority) / maxPriority,
		},
	}
	out := p.Clone()
	if bind != nil {
		if err := bind(out); err != nil {
			k.mu.Unlock()
			return nil, err
		}
	}
	if parent != nil {
		parent.p.ChildIDs = append(parent.p.ChildIDs, p.ID)
	}
	k.procs[p.ID] = &entry{p: p}
	k.pending = append(k.pending, p.ID)
	k.emit(domain.Event{Type: domain.EventProcessCreated, ProcessID: p.ID, Process: out})
	k.mu.Unlock()

	k.flush()
	return out, nil
}

func (k *Kernel) scoreSalience(ctx context.Context, msg domain.Message, priority int) float64 {
	fallback := float64(priority) / maxPriority
	if k.salience == nil {
		return fallback
	}
	s, err := k.salience.Salience(ctx, msg)
	if err != nil || math.IsNaN(s) {
		k.logger.Warn("salience source failed, using priority", "origin_id", msg.ID, "error", err)
		return fallback
	}
	return clamp01(s)
}

// Tick advances the master clock by one step: cursors move, convergence is
// detected, pending processes are admitted, and processes whose stream has
// reached their step are dispatched without waiting for the processor.
func (k *Kernel) Tick() {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	dispatches := k.tickLocked()
	k.mu.Unlock()

	k.flush()
	for _, d := range dispatches {
		k.launch(d)
	}
}

func (k *Kernel) tickLocked() []dispatch {
	if k.step == schedule.Steps {
		k.step = 1
		if k.metrics.TotalSteps > 0 {
			k.metrics.TotalCycles++
			snapshot := k.metrics
			k.emit(domain.Event{Type: domain.EventCycleComplete, Metrics: &snapshot})
			k.cycle++
		}
	} else {
		k.step++
	}
	k.emit(domain.Event{Type: domain.EventStepAdvance})

	k.cursors.Advance(k.step)
	k.emit(domain.Event{Type: domain.EventStreamSync, Streams: k.cursors.Slice()})

	triad := schedule.Detect(&k.cursors)
	k.emit(domain.Event{Type: domain.EventTriadConvergence, Triad: &triad})

	current := schedule.Couplings(&k.cursors)
	for _, c := range current {
		if !containsCoupling(k.couplings, c) {
			k.emit(domain.Event{Type: domain.EventCouplingActivated, Coupling: c})
		}
	}
	k.couplings = current

	k.admitLocked()
	dispatches := k.dispatchLocked()

	k.metrics.TotalSteps++
	k.refreshGaugesLocked()
	return dispatches
}

// admitLocked moves pending processes into the active set, highest priority
// first, while there is room.
func (k *Kernel) admitLocked() {
	if len(k.pending) == 0 {
		return
	}
	k.sortByUrgency(k.pending)

	n := 0
	for _, id := range k.pending {
		if len(k.active) >= k.cfg.MaxConcurrentProcesses {
			break
		}
		e := k.procs[id]
		stream := k.leastLoadedStream()
		step := k.cursors[stream].LocalStep
		if e.p.Context.Salience < *k.cfg.DefaultSalienceThreshold {
			step = nextReflective(step)
		}
		from := e.p.State
		e.p.State = domain.ProcessActive
		e.p.CurrentStream = stream
		e.p.CurrentStep = step
		k.active[id] = struct{}{}
		k.emit(domain.Event{
			Type:      domain.EventProcessAdmitted,
			ProcessID: id,
			Process:   e.p.Clone(),
			From:      from,
			To:        domain.ProcessActive,
		})
		n++
	}
	k.pending = append(k.pending[:0], k.pending[n:]...)
}

// nextReflective returns the first reflective step at or after step.
func nextReflective(step int) int {
	s := step
	for i := 0; i < schedule.Steps; i++ {
		if schedule.MustLookup(s).Mode == domain.ModeReflective {
			return s
		}
		s = schedule.NextStep(s)
	}
	return step
}

func (k *Kernel) leastLoadedStream() domain.StreamID {
	loads := k.streamLoadsLocked()
	best := domain.StreamPrimary
	for _, s := range domain.Streams[1:] {
		if loads[s] < loads[best] {
			best = s
		}
	}
	return best
}

func (k *Kernel) streamLoadsLocked() [domain.StreamCount]int {
	var loads [domain.StreamCount]int
	for id := range k.active {
		loads[k.procs[id].p.CurrentStream]++
	}
	return loads
}

// dispatchLocked hands every process whose stream just reached its step to
// the processor path.
func (k *Kernel) dispatchLocked() []dispatch {
	ids := make([]string, 0, len(k.active))
	for id := range k.active {
		ids = append(ids, id)
	}
	k.sortByUrgency(ids)

	var out []dispatch
	now := k.clock.Now()
	for _, id := range ids {
		e := k.procs[id]
		p := e.p
		ready := p.State == domain.ProcessActive || (p.State == domain.ProcessProcessing && e.rearm)
		if !ready || k.cursors[p.CurrentStream].LocalStep != p.CurrentStep {
			continue
		}
		from := p.State
		p.State = domain.ProcessProcessing
		e.rearm = false
		p.Generation++
		p.DispatchedAt = now
		p.Context.ActiveCouplings = append([]domain.Coupling(nil), k.couplings...)

		se := schedule.MustLookup(p.CurrentStep)
		out = append(out, dispatch{
			id:    id,
			gen:   p.Generation,
			entry: se,
			req: domain.ProcessorRequest{
				ProcessID: id,
				Subject:   p.Subject,
				Content:   p.Content,
				Priority:  p.Priority,
				Step:      p.CurrentStep,
				Stream:    p.CurrentStream,
				Term:      se.Term,
				Mode:      se.Mode,
				Context:   p.Clone().Context,
			},
		})
		k.emit(domain.Event{
			Type:      domain.EventProcessDispatched,
			ProcessID: id,
			From:      from,
			To:        domain.ProcessProcessing,
		})
	}
	return out
}

// sortByUrgency orders ids by priority (desc), then creation time, then id.
func (k *Kernel) sortByUrgency(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := k.procs[ids[i]].p, k.procs[ids[j]].p
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// launch runs one processor call in its own goroutine.
func (k *Kernel) launch(d dispatch) {
	k.inflight.Add(1)
	go func() {
		defer k.inflight.Done()
		if err := k.sem.Acquire(k.ctx, 1); err != nil {
			return
		}
		defer k.sem.Release(1)

		start := k.clock.Now()
		res := k.callProcessor(d.req)
		k.resolve(d, res, k.clock.Now().Sub(start))
	}()
}

func (k *Kernel) callProcessor(req domain.ProcessorRequest) (res domain.ProcessorResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.ProcessorResult{Outcome: domain.OutcomeFailed, Error: fmt.Sprintf("processor panic: %v", r)}
		}
	}()
	if k.proc == nil {
		return domain.ProcessorResult{Outcome: domain.OutcomeFailed, Error: domain.ErrProviderUnavailable.Message}
	}
	out, err := k.proc.Process(k.ctx, req)
	if err != nil {
		return domain.ProcessorResult{Outcome: domain.OutcomeFailed, Error: err.Error()}
	}
	if out.Outcome == "" {
		out.Outcome = domain.OutcomeSuccess
	}
	return out
}

// resolve applies a processor result. Results for processes that are no
// longer Processing, or that belong to an earlier dispatch, are dropped.
func (k *Kernel) resolve(d dispatch, res domain.ProcessorResult, dur time.Duration) {
	k.mu.Lock()
	e, ok := k.procs[d.id]
	if !ok || e.p.State != domain.ProcessProcessing || e.p.Generation != d.gen || e.rearm {
		k.mu.Unlock()
		k.logger.Warn("dropping stale processor result", "process_id", d.id, "generation", d.gen)
		return
	}
	p := e.p
	now := k.clock.Now()
	p.History = append(p.History, domain.ExecutionRecord{
		Timestamp: now,
		Step:      d.req.Step,
		Stream:    d.req.Stream,
		Term:      d.entry.Term,
		Mode:      d.entry.Mode,
		Duration:  dur,
		Outcome:   res.Outcome,
		Output:    res.Output,
	})
	applyResultContext(&p.Context, res)

	to := domain.ProcessCompleted
	if res.Outcome == domain.OutcomeFailed {
		to = domain.ProcessTerminated
		k.metrics.ProcessesFailed++
	} else {
		k.metrics.ProcessesCompleted++
		k.latencyTotal += now.Sub(p.CreatedAt)
		k.metrics.AverageLatencyMS = float64(k.latencyTotal.Milliseconds()) / float64(k.metrics.ProcessesCompleted)
	}
	from := p.State
	p.State = to
	p.FinishedAt = now
	k.retireLocked(d.id)
	k.refreshGaugesLocked()

	result := res
	k.emit(domain.Event{
		Type:      domain.EventProcessCompleted,
		ProcessID: d.id,
		Process:   p.Clone(),
		Result:    &result,
		From:      from,
		To:        to,
	})
	k.mu.Unlock()
	k.flush()
}

func applyResultContext(c *domain.CognitiveContext, res domain.ProcessorResult) {
	if res.Perception != "" {
		c.Perception = res.Perception
	}
	if res.Thought != "" {
		c.Thought = res.Thought
	}
	if res.Action != "" {
		c.Action = res.Action
	}
	if res.Valence != nil && !math.IsNaN(*res.Valence) {
		c.Valence = math.Max(-1, math.Min(1, *res.Valence))
	}
	if res.Arousal != nil && !math.IsNaN(*res.Arousal) {
		c.Arousal = clamp01(*res.Arousal)
	}
}

// retireLocked removes a process from every kernel structure.
func (k *Kernel) retireLocked(id string) {
	delete(k.procs, id)
	delete(k.active, id)
	for i, pid := range k.pending {
		if pid == id {
			k.pending = append(k.pending[:i], k.pending[i+1:]...)
			break
		}
	}
}

// Terminate cancels a live process. An in-flight processor call is not
// interrupted, but its result will be discarded.
func (k *Kernel) Terminate(id, reason string) error {
	k.mu.Lock()
	if err := k.terminateLocked(id, reason); err != nil {
		k.mu.Unlock()
		return err
	}
	k.refreshGaugesLocked()
	k.mu.Unlock()
	k.flush()
	return nil
}

func (k *Kernel) terminateLocked(id, reason string) error {
	e, ok := k.procs[id]
	if !ok {
		return domain.ErrUnknownProcess
	}
	from := e.p.State
	if !IsValidTransition(from, domain.ProcessTerminated) {
		return domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", from, domain.ProcessTerminated))
	}
	e.p.State = domain.ProcessTerminated
	e.p.FinishedAt = k.clock.Now()
	k.retireLocked(id)
	k.emit(domain.Event{
		Type:      domain.EventProcessTerminated,
		ProcessID: id,
		Process:   e.p.Clone(),
		From:      from,
		To:        domain.ProcessTerminated,
		Reason:    reason,
	})
	return nil
}

// Suspend pauses a process: Active becomes Suspended, Processing becomes Waiting.
func (k *Kernel) Suspend(id string) error {
	return k.transition(id, map[domain.ProcessState]domain.ProcessState{
		domain.ProcessActive:     domain.ProcessSuspended,
		domain.ProcessProcessing: domain.ProcessWaiting,
	})
}

// Resume undoes Suspend. The process re-enters dispatch at its next
// matching step.
func (k *Kernel) Resume(id string) error {
	return k.transition(id, map[domain.ProcessState]domain.ProcessState{
		domain.ProcessSuspended: domain.ProcessActive,
		domain.ProcessWaiting:   domain.ProcessProcessing,
	})
}

func (k *Kernel) transition(id string, moves map[domain.ProcessState]domain.ProcessState) error {
	k.mu.Lock()
	e, ok := k.procs[id]
	if !ok {
		k.mu.Unlock()
		return domain.ErrUnknownProcess
	}
	from := e.p.State
	to, ok := moves[from]
	if !ok || !IsValidTransition(from, to) {
		k.mu.Unlock()
		return domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("process %s cannot leave %s this way", id, from))
	}
	e.p.State = to
	if from == domain.ProcessWaiting {
		e.rearm = true
	}
	k.emit(domain.Event{Type: domain.EventProcessState, ProcessID: id, From: from, To: to})
	k.mu.Unlock()
	k.flush()
	return nil
}

// Stimulate raises a live process's salience by amount, clamped to [0,1].
func (k *Kernel) Stimulate(id string, amount float64) (*domain.MessageProcess, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, domain.NewEngineError(domain.ErrInvalidMessage.Code, "stimulus must be finite")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.procs[id]
	if !ok {
		return nil, domain.ErrUnknownProcess
	}
	e.p.Context.Salience = clamp01(e.p.Context.Salience + amount)
	return e.p.Clone(), nil
}

// Get returns a copy of a live process.
func (k *Kernel) Get(id string) (*domain.MessageProcess, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.procs[id]
	if !ok {
		return nil, domain.ErrUnknownProcess
	}
	return e.p.Clone(), nil
}

// List returns copies of every live process, oldest first.
func (k *Kernel) List() []*domain.MessageProcess {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.listLocked()
}

func (k *Kernel) listLocked() []*domain.MessageProcess {
	out := make([]*domain.MessageProcess, 0, len(k.procs))
	for _, e := range k.procs {
		out = append(out, e.p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Metrics returns the current counters and gauges.
func (k *Kernel) Metrics() domain.KernelMetrics {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.metrics
}

// Position returns the current absolute step and cycle number.
func (k *Kernel) Position() (step int, cycle int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.step, k.cycle
}

// Status returns an aggregate snapshot of the kernel.
func (k *Kernel) Status() domain.KernelSnapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.clock.Now()
	return domain.KernelSnapshot{
		Name:      k.cfg.Name,
		Version:   Version,
		Running:   k.running,
		Uptime:    now.Sub(k.bootTime),
		Step:      k.step,
		Cycle:     k.cycle,
		Cursors:   k.cursors,
		Metrics:   k.metrics,
		Processes: k.listLocked(),
		Pending:   len(k.pending),
		Active:    len(k.active),
		TakenAt:   now,
	}
}

// Run drives Tick every StepDuration until ctx is cancelled or Stop is called.
func (k *Kernel) Run(ctx context.Context) error {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return domain.ErrKernelStopped
	}
	if k.running {
		k.mu.Unlock()
		return domain.ErrKernelRunning
	}
	k.running = true
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.running = false
		k.mu.Unlock()
	}()

	ticker := k.clock.NewTicker(k.cfg.StepDuration)
	defer ticker.Stop()
	k.logger.Info("kernel clock started", "name", k.cfg.Name, "step_duration", k.cfg.StepDuration)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-k.stopCh:
			return nil
		case <-ticker.Chan():
			k.Tick()
		}
	}
}

// Stop halts the clock, terminates every live process, waits for in-flight
// processor calls to return, and closes all subscriptions. Safe to call
// more than once.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopCh)

		k.mu.Lock()
		k.stopped = true
		for _, p := range k.listLocked() {
			_ = k.terminateLocked(p.ID, "shutdown")
		}
		k.refreshGaugesLocked()
		k.mu.Unlock()
		k.flush()

		k.cancel()
		k.inflight.Wait()
		k.bus.Close()
		k.logger.Info("kernel stopped", "name", k.cfg.Name)
	})
}

// refreshGaugesLocked recomputes load and coherence from the live table.
func (k *Kernel) refreshGaugesLocked() {
	processing := 0
	for id := range k.active {
		if k.procs[id].p.State == domain.ProcessProcessing {
			processing++
		}
	}
	k.metrics.CognitiveLoad = float64(processing) / float64(k.cfg.MaxConcurrentProcesses)

	loads := k.streamLoadsLocked()
	lo, hi := loads[0], loads[0]
	for _, l := range loads[1:] {
		lo = min(lo, l)
		hi = max(hi, l)
	}
	if hi == 0 {
		k.metrics.StreamCoherence = 1
	} else {
		k.metrics.StreamCoherence = float64(lo) / float64(hi)
	}
	k.metrics.ActiveCouplings = len(k.couplings)
}

// Wait blocks until every launched processor call has returned.
func (k *Kernel) Wait() { k.inflight.Wait() }

func containsCoupling(list []domain.Coupling, c domain.Coupling) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
