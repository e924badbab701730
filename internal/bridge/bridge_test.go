package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/guard"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// chanOutbox hands delivered responses to the test.
type chanOutbox struct {
	ch chan domain.OutboxEntry
}

func (o *chanOutbox) Deliver(_ context.Context, e domain.OutboxEntry) error {
	o.ch <- e
	return nil
}

// testHarness wires a Bridge to a real kernel and SQLite database.
type testHarness struct {
	Bridge *Bridge
	Kernel *kernel.Kernel
	Outbox *chanOutbox
	Clock  *clockwork.FakeClock
}

func newHarness(t *testing.T, proc kernel.Processor, rateLimit int) *testHarness {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fc := clockwork.NewFakeClockAt(epoch)
	k := kernel.New(kernel.Config{}, proc, kernel.WithClock(fc), kernel.WithLogger(logger))
	g := guard.NewGuard(guard.GuardConfig{RateLimitPerMinute: rateLimit}, fc)
	out := &chanOutbox{ch: make(chan domain.OutboxEntry, 8)}

	b := NewBridge(k, g, out, db, "bot@x", logger)
	b.Clock = fc

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()
	t.Cleanup(func() {
		k.Stop()
		cancel()
		wg.Wait()
	})

	return &testHarness{Bridge: b, Kernel: k, Outbox: out, Clock: fc}
}

func pong() kernel.Processor {
	return kernel.ProcessorFunc(func(context.Context, domain.ProcessorRequest) (domain.ProcessorResult, error) {
		return domain.ProcessorResult{Outcome: domain.OutcomeSuccess, Output: "pong"}, nil
	})
}

func m1() domain.Message {
	return domain.Message{ID: "m1", From: "a@x", To: []string{"b@x"}, Subject: "Re: ping", Body: "hi"}
}

func (h *testHarness) awaitResponse(t *testing.T) domain.OutboxEntry {
	t.Helper()
	select {
	case e := <-h.Outbox.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
	}
	return domain.OutboxEntry{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAccept_ReplyRoundTrip(t *testing.T) {
	h := newHarness(t, pong(), 100)
	ctx := context.Background()

	p, err := h.Bridge.Accept(ctx, m1())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if p.Priority != 8 {
		t.Errorf("Priority = %d, want 8", p.Priority)
	}
	if got, ok := h.Bridge.Correlator.Process("m1"); !ok || got != p.ID {
		t.Fatalf("origin lookup = %q, %v", got, ok)
	}
	if got, ok := h.Bridge.Correlator.Origin(p.ID); !ok || got != "m1" {
		t.Fatalf("process lookup = %q, %v", got, ok)
	}

	h.Kernel.Tick()
	e := h.awaitResponse(t)

	if e.OriginID != "m1" || e.ProcessID != p.ID {
		t.Errorf("entry = %+v", e)
	}
	resp := e.Message
	if resp.Subject != "Re: Re: ping" {
		t.Errorf("Subject = %q, want %q", resp.Subject, "Re: Re: ping")
	}
	if resp.Body != "pong" {
		t.Errorf("Body = %q, want pong", resp.Body)
	}
	if len(resp.To) != 1 || resp.To[0] != "a@x" {
		t.Errorf("To = %v, want [a@x]", resp.To)
	}
	if resp.From != "bot@x" {
		t.Errorf("From = %q, want bot@x", resp.From)
	}
	if resp.ID == "" || resp.ID == "m1" {
		t.Errorf("ID = %q, want fresh id", resp.ID)
	}

	if _, ok := h.Bridge.Correlator.Process("m1"); ok {
		t.Error("origin still correlated after completion")
	}
	if _, ok := h.Bridge.Correlator.Origin(p.ID); ok {
		t.Error("process still correlated after completion")
	}
	if _, err := h.Kernel.Get(p.ID); !errors.Is(err, domain.ErrUnknownProcess) {
		t.Errorf("process still in table: %v", err)
	}
}

func TestAccept_EmptyOutputFallsBackToAck(t *testing.T) {
	silent := kernel.ProcessorFunc(func(context.Context, domain.ProcessorRequest) (domain.ProcessorResult, error) {
		return domain.ProcessorResult{Output: "  "}, nil
	})
	h := newHarness(t, silent, 100)
	if _, err := h.Bridge.Accept(context.Background(), m1()); err != nil {
		t.Fatal(err)
	}
	h.Kernel.Tick()
	if e := h.awaitResponse(t); e.Message.Body != DefaultAck {
		t.Errorf("Body = %q, want ack", e.Message.Body)
	}
}

func TestAcceptChild_CorrelatesAndLinks(t *testing.T) {
	h := newHarness(t, pong(), 100)
	ctx := context.Background()
	parent, err := h.Bridge.Accept(ctx, m1())
	if err != nil {
		t.Fatal(err)
	}
	follow := m1()
	follow.ID = "m2"
	child, err := h.Bridge.AcceptChild(ctx, parent.ID, follow)
	if err != nil {
		t.Fatalf("AcceptChild: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, parent.ID)
	}
	if got, ok := h.Bridge.Correlator.Process("m2"); !ok || got != child.ID {
		t.Errorf("child origin lookup = %q, %v", got, ok)
	}

	orphan := m1()
	orphan.ID = "m3"
	if _, err := h.Bridge.AcceptChild(ctx, "proc-missing", orphan); !errors.Is(err, domain.ErrUnknownProcess) {
		t.Fatalf("err = %v, want ErrUnknownProcess", err)
	}
	if _, ok := h.Bridge.Correlator.Process("m3"); ok {
		t.Error("orphan origin was correlated")
	}
}

func TestAccept_DuplicateOrigin(t *testing.T) {
	h := newHarness(t, pong(), 100)
	ctx := context.Background()
	if _, err := h.Bridge.Accept(ctx, m1()); err != nil {
		t.Fatal(err)
	}
	_, err := h.Bridge.Accept(ctx, m1())
	if !errors.Is(err, domain.ErrDuplicateOrigin) {
		t.Fatalf("err = %v, want ErrDuplicateOrigin", err)
	}
	if n := len(h.Kernel.List()); n != 1 {
		t.Errorf("table size = %d, want 1", n)
	}
}

func TestAccept_GuardDenied(t *testing.T) {
	h := newHarness(t, pong(), 1)
	ctx := context.Background()
	if _, err := h.Bridge.Accept(ctx, m1()); err != nil {
		t.Fatal(err)
	}
	second := m1()
	second.ID = "m2"
	if _, err := h.Bridge.Accept(ctx, second); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("err = %v, want ErrRateLimitExceeded", err)
	}
	if _, err := h.Bridge.Accept(ctx, domain.Message{ID: "m3"}); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("err = %v, want ErrInvalidMessage", err)
	}
}

func TestAccept_AdmissionRejectedLeavesNoCorrelation(t *testing.T) {
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	k := kernel.New(kernel.Config{MaxConcurrentProcesses: 1, MaxQueueDepth: 1}, pong(),
		kernel.WithClock(clockwork.NewFakeClockAt(epoch)))
	defer k.Stop()
	b := NewBridge(k, nil, &chanOutbox{ch: make(chan domain.OutboxEntry, 1)}, db, "bot@x", nil)

	ctx := context.Background()
	if _, err := b.Accept(ctx, m1()); err != nil {
		t.Fatal(err)
	}
	second := m1()
	second.ID = "m2"
	if _, err := b.Accept(ctx, second); !errors.Is(err, domain.ErrAdmissionRejected) {
		t.Fatalf("err = %v, want ErrAdmissionRejected", err)
	}
	if _, ok := b.Correlator.Process("m2"); ok {
		t.Error("rejected origin was correlated")
	}
}

func TestTerminate_RetiresCorrelation(t *testing.T) {
	h := newHarness(t, pong(), 100)
	p, err := h.Bridge.Accept(context.Background(), m1())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Kernel.Terminate(p.ID, "operator"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	waitFor(t, "correlation removal", func() bool { return h.Bridge.Correlator.Len() == 0 })

	select {
	case e := <-h.Outbox.ch:
		t.Errorf("terminated process produced a response: %+v", e)
	default:
	}
}

func TestCompletion_CorrelationMissIsAudited(t *testing.T) {
	h := newHarness(t, pong(), 100)
	// Created directly on the kernel, so the bridge never bound it.
	p, err := h.Kernel.Create(context.Background(), m1())
	if err != nil {
		t.Fatal(err)
	}
	h.Kernel.Tick()
	h.Kernel.Wait()

	repo := &store.AuditRepo{}
	var recs []domain.AuditRecord
	waitFor(t, "audit record", func() bool {
		var err error
		recs, err = repo.ListByProcess(context.Background(), h.Bridge.DB, p.ID)
		return err == nil && len(recs) == 1 && recs[0].Action == "correlation_miss"
	})
	var detail struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal([]byte(recs[0].DetailJSON), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Code != domain.ErrCorrelationMiss.Code {
		t.Errorf("detail code = %d, want %d", detail.Code, domain.ErrCorrelationMiss.Code)
	}
	select {
	case e := <-h.Outbox.ch:
		t.Errorf("uncorrelated completion produced a response: %+v", e)
	default:
	}
}

func TestAssembleResponse(t *testing.T) {
	p := &domain.MessageProcess{Sender: "a@x", Subject: "status"}
	now := epoch.Add(time.Second)
	got := AssembleResponse(p, "m9", "bot@x", "all good", now)

	if got.Subject != "Re: status" || got.Body != "all good" || got.From != "bot@x" {
		t.Errorf("response = %+v", got)
	}
	if got.Headers["In-Reply-To"] != "m9" {
		t.Errorf("Headers = %v", got.Headers)
	}
	later := AssembleResponse(p, "m9", "bot@x", "", now.Add(time.Nanosecond))
	if later.ID == got.ID {
		t.Error("response ids should differ by timestamp")
	}
	if later.Body != DefaultAck {
		t.Errorf("Body = %q, want ack", later.Body)
	}
}

func TestStoreOutbox_Deliver(t *testing.T) {
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	out := NewStoreOutbox(db)
	ctx := context.Background()
	entry := domain.OutboxEntry{
		ProcessID: "proc-1",
		OriginID:  "m1",
		Message:   domain.Message{ID: "m1-re-1", From: "bot@x", To: []string{"a@x"}, Subject: "Re: hi", Body: "pong"},
		CreatedAt: epoch.Unix(),
	}
	if err := out.Deliver(ctx, entry); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got, err := out.Repo.ListSince(ctx, db, 0, 0)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(got) != 1 || got[0].Message.Body != "pong" {
		t.Errorf("outbox = %+v", got)
	}
}
