package guard

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setupGuard(limit int) (*Guard, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(epoch)
	return NewGuard(GuardConfig{RateLimitPerMinute: limit}, fc), fc
}

func TestCheckRateLimit_WithinLimit(t *testing.T) {
	g, _ := setupGuard(5)
	for i := 0; i < 5; i++ {
		if err := g.CheckRateLimit("a@x"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}
}

func TestCheckRateLimit_Exceeded(t *testing.T) {
	g, _ := setupGuard(5)
	for i := 0; i < 5; i++ {
		g.CheckRateLimit("a@x")
	}
	if err := g.CheckRateLimit("a@x"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Errorf("err = %v, want ErrRateLimitExceeded", err)
	}
}

func TestCheckRateLimit_PerSender(t *testing.T) {
	g, _ := setupGuard(1)
	if err := g.CheckRateLimit("a@x"); err != nil {
		t.Fatal(err)
	}
	if err := g.CheckRateLimit("b@x"); err != nil {
		t.Errorf("other sender limited: %v", err)
	}
	if err := g.CheckRateLimit("A@X"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Errorf("sender match should ignore case: err = %v", err)
	}
}

func TestCheckRateLimit_WindowResets(t *testing.T) {
	g, fc := setupGuard(2)
	g.CheckRateLimit("a@x")
	g.CheckRateLimit("a@x")
	if err := g.CheckRateLimit("a@x"); err == nil {
		t.Fatal("expected rate limit within the window")
	}

	fc.Advance(59 * time.Second)
	if err := g.CheckRateLimit("a@x"); err == nil {
		t.Fatal("window should not reset before 60s")
	}

	fc.Advance(time.Second)
	if err := g.CheckRateLimit("a@x"); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestCheckRateLimit_Disabled(t *testing.T) {
	g, _ := setupGuard(0)
	for i := 0; i < 100; i++ {
		if err := g.CheckRateLimit("a@x"); err != nil {
			t.Fatalf("disabled limit rejected call %d: %v", i, err)
		}
	}
	if g.Senders() != 0 {
		t.Errorf("Senders = %d, want 0 when disabled", g.Senders())
	}
}

func TestCheckRateLimit_PrunesExpiredBuckets(t *testing.T) {
	g, fc := setupGuard(10)
	for i := 0; i < pruneThreshold; i++ {
		g.CheckRateLimit(fmt.Sprintf("s%d@x", i))
	}
	fc.Advance(rateWindow)
	g.CheckRateLimit("fresh@x")
	if g.Senders() != 1 {
		t.Errorf("Senders = %d, want 1 after prune", g.Senders())
	}
}

func TestCheckMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     domain.Message
		wantErr bool
	}{
		{"valid", domain.Message{ID: "m1", From: "a@x", To: []string{"bot@x"}}, false},
		{"no recipients", domain.Message{ID: "m1", From: "a@x"}, false},
		{"missing id", domain.Message{From: "a@x"}, true},
		{"blank sender", domain.Message{ID: "m1", From: "  "}, true},
		{"blank recipient", domain.Message{ID: "m1", From: "a@x", To: []string{"bot@x", ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMessage(tt.msg)
			if tt.wantErr && !errors.Is(err, domain.ErrInvalidMessage) {
				t.Errorf("err = %v, want ErrInvalidMessage", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckAll_ShortCircuits(t *testing.T) {
	g, _ := setupGuard(1)
	if err := g.CheckAll(domain.Message{From: "a@x"}); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("err = %v, want ErrInvalidMessage", err)
	}
	if g.Senders() != 0 {
		t.Error("invalid message consumed rate budget")
	}
	msg := domain.Message{ID: "m1", From: "a@x"}
	if err := g.CheckAll(msg); err != nil {
		t.Fatal(err)
	}
	if err := g.CheckAll(msg); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Errorf("err = %v, want ErrRateLimitExceeded", err)
	}
}
