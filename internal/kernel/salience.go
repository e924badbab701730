package kernel

import (
	"context"
	"strings"
	"sync"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// DefaultSalienceMemory is how many conversation threads NoveltySalience
// remembers when no limit is given.
const DefaultSalienceMemory = 1024

// NoveltySalience scores a message by its priority weighted by how novel its
// conversation thread is. A thread is a sender plus its subject without
// reply markers. Each score is remembered for the thread, so a burst of
// messages on the same thread loses salience until it alternates back.
//
// score = base * (exploration*novelty + (1-exploration)*base)
// where base = priority/10 and novelty = 1 - last score for the thread.
type NoveltySalience struct {
	exploration float64
	memory      int

	mu    sync.Mutex
	last  map[string]float64
	order []string
}

// NewNoveltySalience creates a source. exploration is clamped to [0,1];
// memory <= 0 means DefaultSalienceMemory.
func NewNoveltySalience(exploration float64, memory int) *NoveltySalience {
	if memory <= 0 {
		memory = DefaultSalienceMemory
	}
	return &NoveltySalience{
		exploration: clamp01(exploration),
		memory:      memory,
		last:        make(map[string]float64),
	}
}

// Salience implements SalienceSource.
func (n *NoveltySalience) Salience(_ context.Context, msg domain.Message) (float64, error) {
	base := float64(Priority(msg)) / maxPriority
	key := threadKey(msg)

	n.mu.Lock()
	defer n.mu.Unlock()

	prev, seen := n.last[key]
	novelty := 1 - prev
	score := clamp01(base * (n.exploration*novelty + (1-n.exploration)*base))

	if !seen {
		n.order = append(n.order, key)
		if len(n.order) > n.memory {
			delete(n.last, n.order[0])
			n.order = n.order[1:]
		}
	}
	n.last[key] = score
	return score, nil
}

// Threads reports how many threads are remembered.
func (n *NoveltySalience) Threads() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.last)
}

func threadKey(msg domain.Message) string {
	subject := strings.TrimSpace(strings.ToLower(msg.Subject))
	for strings.HasPrefix(subject, replyMarker) {
		subject = strings.TrimSpace(subject[len(replyMarker):])
	}
	return strings.ToLower(strings.TrimSpace(msg.From)) + "|" + subject
}
