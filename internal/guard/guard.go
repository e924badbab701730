// Package guard screens inbound messages before they reach the kernel.
package guard

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

const (
	rateWindow = 60 * time.Second
	// pruneThreshold bounds how many idle sender buckets are kept before
	// expired ones are swept.
	pruneThreshold = 1024
)

// GuardConfig holds admission limits. A zero RateLimitPerMinute disables
// rate limiting.
type GuardConfig struct {
	RateLimitPerMinute int
}

// Guard coordinates message validation and per-sender rate checks.
type Guard struct {
	Config GuardConfig
	Clock  clockwork.Clock

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

// NewGuard creates a Guard. A nil clock uses the real one.
func NewGuard(cfg GuardConfig, clk clockwork.Clock) *Guard {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Guard{
		Config:     cfg,
		Clock:      clk,
		rateCounts: make(map[string]*rateBucket),
	}
}

// CheckAll runs all checks in order: message shape, then rate limit.
// It short-circuits on the first error.
func (g *Guard) CheckAll(msg domain.Message) error {
	if err := CheckMessage(msg); err != nil {
		return err
	}
	return g.CheckRateLimit(msg.From)
}

// CheckMessage rejects messages the kernel cannot schedule or answer.
func CheckMessage(msg domain.Message) error {
	switch {
	case strings.TrimSpace(msg.ID) == "":
		return domain.NewEngineError(domain.ErrInvalidMessage.Code, "message id is required")
	case strings.TrimSpace(msg.From) == "":
		return domain.NewEngineError(domain.ErrInvalidMessage.Code, "message sender is required")
	}
	for _, to := range msg.To {
		if strings.TrimSpace(to) == "" {
			return domain.NewEngineError(domain.ErrInvalidMessage.Code, "empty recipient address")
		}
	}
	return nil
}

// CheckRateLimit enforces a per-sender fixed window rate limit.
// The window is 60 seconds. If the count exceeds the configured limit,
// ErrRateLimitExceeded is returned.
func (g *Guard) CheckRateLimit(sender string) error {
	if g.Config.RateLimitPerMinute <= 0 {
		return nil
	}
	key := strings.ToLower(sender)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Clock.Now()
	bucket, ok := g.rateCounts[key]
	if !ok {
		if len(g.rateCounts) >= pruneThreshold {
			g.pruneLocked(now)
		}
		g.rateCounts[key] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now.Sub(bucket.windowStart) >= rateWindow {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

func (g *Guard) pruneLocked(now time.Time) {
	for k, b := range g.rateCounts {
		if now.Sub(b.windowStart) >= rateWindow {
			delete(g.rateCounts, k)
		}
	}
}

// Senders returns how many senders currently have a rate bucket.
func (g *Guard) Senders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rateCounts)
}
