package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// hang blocks until the kernel cancels its context.
func hang() kernel.Processor {
	return kernel.ProcessorFunc(func(ctx context.Context, _ domain.ProcessorRequest) (domain.ProcessorResult, error) {
		<-ctx.Done()
		return domain.ProcessorResult{}, ctx.Err()
	})
}

func newSupervisorTest(t *testing.T, timeout time.Duration) (*Supervisor, *kernel.Kernel, *clockwork.FakeClock) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fc := clockwork.NewFakeClockAt(epoch)
	k := kernel.New(kernel.Config{}, hang(), kernel.WithClock(fc), kernel.WithLogger(logger))
	t.Cleanup(k.Stop)

	s := NewSupervisor(k, db, fc, SupervisorConfig{
		CheckInterval:   100 * time.Millisecond,
		DispatchTimeout: timeout,
	}, logger)
	return s, k, fc
}

func dispatchOne(t *testing.T, k *kernel.Kernel) string {
	t.Helper()
	p, err := k.Create(context.Background(), domain.Message{ID: "m1", From: "a@x", To: []string{"bot@x"}, Subject: "ping"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	k.Tick()
	got, err := k.Get(p.ID)
	if err != nil || got.State != domain.ProcessProcessing {
		t.Fatalf("process not dispatched: %+v, %v", got, err)
	}
	return p.ID
}

func TestNewSupervisor_Defaults(t *testing.T) {
	k := kernel.New(kernel.Config{}, hang())
	defer k.Stop()
	s := NewSupervisor(k, nil, nil, SupervisorConfig{}, nil)
	if s.Config.CheckInterval != time.Second {
		t.Errorf("CheckInterval = %v, want 1s", s.Config.CheckInterval)
	}
	if s.Config.DispatchTimeout != 0 {
		t.Errorf("DispatchTimeout = %v, want disabled", s.Config.DispatchTimeout)
	}
}

func TestCheckTimeouts_NoTimeouts(t *testing.T) {
	s, k, fc := newSupervisorTest(t, time.Second)
	dispatchOne(t, k)

	actions, err := s.CheckTimeouts(context.Background(), fc.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("CheckTimeouts: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("actions = %+v, want none at exactly the timeout", actions)
	}
}

func TestCheckTimeouts_TerminatesAndAudits(t *testing.T) {
	s, k, fc := newSupervisorTest(t, time.Second)
	sub := k.Subscribe(domain.EventProcessTerminated)
	defer sub.Close()
	id := dispatchOne(t, k)

	actions, err := s.CheckTimeouts(context.Background(), fc.Now().Add(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("CheckTimeouts: %v", err)
	}
	if len(actions) != 1 || actions[0].ProcessID != id || actions[0].Elapsed != 1500*time.Millisecond {
		t.Fatalf("actions = %+v", actions)
	}
	if _, err := k.Get(id); !errors.Is(err, domain.ErrUnknownProcess) {
		t.Errorf("timed out process still live: %v", err)
	}

	select {
	case ev := <-sub.C:
		if ev.Reason != TimeoutReason {
			t.Errorf("Reason = %q, want %q", ev.Reason, TimeoutReason)
		}
	default:
		t.Error("no termination event")
	}

	recs, err := s.AuditRepo.ListByProcess(context.Background(), s.DB, id)
	if err != nil {
		t.Fatalf("ListByProcess: %v", err)
	}
	if len(recs) != 1 || recs[0].Action != TimeoutReason || recs[0].Category != "supervisor" {
		t.Errorf("audit = %+v", recs)
	}
}

func TestCheckTimeouts_IgnoresUndispatched(t *testing.T) {
	s, k, fc := newSupervisorTest(t, time.Second)
	if _, err := k.Create(context.Background(), domain.Message{ID: "m1", From: "a@x"}); err != nil {
		t.Fatal(err)
	}
	actions, err := s.CheckTimeouts(context.Background(), fc.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Errorf("pending process timed out: %+v", actions)
	}
}

func TestCheckTimeouts_Disabled(t *testing.T) {
	s, k, fc := newSupervisorTest(t, 0)
	dispatchOne(t, k)
	actions, err := s.CheckTimeouts(context.Background(), fc.Now().Add(time.Hour))
	if err != nil || len(actions) != 0 {
		t.Errorf("disabled supervisor acted: %+v, %v", actions, err)
	}
}

func TestStartStopMonitoring(t *testing.T) {
	s, k, fc := newSupervisorTest(t, 250*time.Millisecond)
	sub := k.SubscribeReliable(domain.EventProcessTerminated)
	id := dispatchOne(t, k)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartMonitoring(ctx)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := fc.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker not registered: %v", err)
	}

	for i := 0; i < 3; i++ {
		fc.Advance(100 * time.Millisecond)
	}
	select {
	case ev := <-sub.C:
		if ev.ProcessID != id || ev.Reason != TimeoutReason {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not terminate the process")
	}

	s.StopMonitoring()
	s.StopMonitoring()
}
