package kernel

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

const defaultEventBuffer = 256

// Bus fans kernel events out to subscribers in emission order.
//
// Lossy subscribers drop events when their buffer is full. Reliable
// subscribers apply backpressure to the publisher instead, so their receive
// loop must not call kernel operations that emit events.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription receives the events it was registered for on C. C is closed
// when the subscription or the bus is closed.
type Subscription struct {
	C <-chan domain.Event

	ch       chan domain.Event
	types    map[domain.EventType]bool
	reliable bool
	dropped  atomic.Int64
	bus      *Bus
	once     sync.Once
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a lossy subscriber for the given event types, or for
// all types when none are given.
func (b *Bus) Subscribe(buffer int, types ...domain.EventType) *Subscription {
	return b.subscribe(buffer, false, types)
}

// SubscribeReliable registers a subscriber that never misses an event.
func (b *Bus) SubscribeReliable(buffer int, types ...domain.EventType) *Subscription {
	return b.subscribe(buffer, true, types)
}

func (b *Bus) subscribe(buffer int, reliable bool, types []domain.EventType) *Subscription {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan domain.Event, buffer)
	s := &Subscription{C: ch, ch: ch, reliable: reliable, bus: b}
	if len(types) > 0 {
		s.types = make(map[domain.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Dropped returns how many events a lossy subscriber has missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s]; ok {
		delete(s.bus.subs, s)
		s.closeChan()
	}
}

func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

func (s *Subscription) wants(t domain.EventType) bool {
	return s.types == nil || s.types[t]
}

// Publish delivers events to every interested subscriber, in order.
func (b *Bus) Publish(events ...domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ev := range events {
		for s := range b.subs {
			if !s.wants(ev.Type) {
				continue
			}
			if s.reliable {
				s.ch <- ev
				continue
			}
			select {
			case s.ch <- ev:
			default:
				if s.dropped.Add(1) == 1 {
					b.logger.Warn("event subscriber buffer full, dropping events",
						"event", ev.Type, "seq", ev.Seq)
				}
			}
		}
	}
}

// Close closes every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closeChan()
		delete(b.subs, s)
	}
}
