// Package bridge connects external message traffic to the kernel: it admits
// inbound messages, correlates each process with its origin, and turns
// completed processes into responses.
package bridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/guard"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

// DefaultAck is the response body used when the processor produced no text.
const DefaultAck = "Your message was received and processed."

const replyPrefix = "Re: "

// Bridge is the integration layer between inbound messages and the kernel.
type Bridge struct {
	Kernel     *kernel.Kernel
	Guard      *guard.Guard
	Correlator *Correlator
	Outbox     Outbox
	AuditRepo  *store.AuditRepo
	DB         *sql.DB
	Clock      clockwork.Clock

	identity string
	logger   *slog.Logger
	sub      *kernel.Subscription
}

// NewBridge creates a Bridge and subscribes it to process completion and
// termination events. The subscription is reliable, so Run must be started
// before the kernel ticks. db may be nil, in which case audit records are
// skipped.
func NewBridge(k *kernel.Kernel, g *guard.Guard, outbox Outbox, db *sql.DB, botIdentity string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		Kernel:     k,
		Guard:      g,
		Correlator: NewCorrelator(),
		Outbox:     outbox,
		AuditRepo:  &store.AuditRepo{},
		DB:         db,
		Clock:      clockwork.NewRealClock(),
		identity:   botIdentity,
		logger:     logger.With("component", "bridge"),
		sub:        k.SubscribeReliable(domain.EventProcessCompleted, domain.EventProcessTerminated),
	}
}

// Accept screens an inbound message and creates a correlated process for it.
func (b *Bridge) Accept(ctx context.Context, msg domain.Message) (*domain.MessageProcess, error) {
	return b.AcceptChild(ctx, "", msg)
}

// AcceptChild is Accept for a follow-up message handled as a child of a
// live process. An empty parentID behaves like Accept.
func (b *Bridge) AcceptChild(ctx context.Context, parentID string, msg domain.Message) (*domain.MessageProcess, error) {
	if b.Guard != nil {
		if err := b.Guard.CheckAll(msg); err != nil {
			return nil, err
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = b.Clock.Now()
	}
	bind := func(p *domain.MessageProcess) error {
		return b.Correlator.Bind(msg.ID, p.ID)
	}
	var (
		p   *domain.MessageProcess
		err error
	)
	if parentID == "" {
		p, err = b.Kernel.CreateBound(ctx, msg, bind)
	} else {
		p, err = b.Kernel.SpawnBound(ctx, parentID, msg, bind)
	}
	if err != nil {
		return nil, fmt.Errorf("accept %s: %w", msg.ID, err)
	}
	b.logger.Debug("message accepted", "origin_id", msg.ID, "process_id", p.ID, "parent_id", parentID, "priority", p.Priority)
	return p, nil
}

// Run handles completion events until ctx is cancelled or the kernel stops.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-b.sub.C:
			if !ok {
				return nil
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventProcessTerminated:
		if origin, ok := b.Correlator.Remove(ev.ProcessID); ok {
			b.logger.Info("correlation retired", "origin_id", origin, "process_id", ev.ProcessID, "reason", ev.Reason)
		}
	case domain.EventProcessCompleted:
		origin, ok := b.Correlator.Remove(ev.ProcessID)
		if !ok {
			miss := domain.ErrCorrelationMiss
			b.logger.Warn(miss.Message, "code", miss.Code, "process_id", ev.ProcessID, "event", ev.Type)
			b.audit(ctx, ev.ProcessID, "correlation_miss", "warn", map[string]any{
				"seq":     ev.Seq,
				"code":    miss.Code,
				"message": miss.Message,
			})
			return
		}
		if ev.Process == nil {
			return
		}
		output := ""
		if ev.Result != nil {
			output = ev.Result.Output
		}
		resp := AssembleResponse(ev.Process, origin, b.identity, output, b.Clock.Now())
		entry := domain.OutboxEntry{
			ProcessID: ev.ProcessID,
			OriginID:  origin,
			Message:   resp,
			CreatedAt: resp.ReceivedAt.Unix(),
		}
		if err := b.Outbox.Deliver(ctx, entry); err != nil {
			b.logger.Error("deliver response", "origin_id", origin, "process_id", ev.ProcessID, "error", err)
			b.audit(ctx, ev.ProcessID, "deliver_failed", "error", map[string]any{"origin_id": origin, "error": err.Error()})
			return
		}
		b.logger.Info("response assembled", "origin_id", origin, "process_id", ev.ProcessID, "response_id", resp.ID)
	}
}

// AssembleResponse builds the reply to the origin of a completed process.
// A blank output falls back to DefaultAck.
func AssembleResponse(p *domain.MessageProcess, originID, botIdentity, output string, now time.Time) domain.Message {
	body := output
	if strings.TrimSpace(body) == "" {
		body = DefaultAck
	}
	return domain.Message{
		ID:         fmt.Sprintf("%s-re-%d", originID, now.UnixNano()),
		From:       botIdentity,
		To:         []string{p.Sender},
		Subject:    replyPrefix + p.Subject,
		Body:       body,
		Headers:    map[string]string{"In-Reply-To": originID},
		ReceivedAt: now,
	}
}

func (b *Bridge) audit(ctx context.Context, processID, action, severity string, detail map[string]any) {
	if b.DB == nil {
		return
	}
	now := b.Clock.Now()
	err := b.AuditRepo.Record(ctx, b.DB, domain.AuditRecord{
		ID:         fmt.Sprintf("aud-%s-%s-%d", action, processID, now.UnixNano()),
		ProcessID:  processID,
		Category:   "bridge",
		Actor:      "bridge",
		Action:     action,
		DetailJSON: mustJSON(detail),
		Severity:   severity,
		CreatedAt:  now.Unix(),
	})
	if err != nil {
		b.logger.Error("record audit", "action", action, "error", err)
	}
}

// mustJSON marshals v to a JSON string, returning "{}" on error.
func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
