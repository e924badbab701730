// Package journal persists the kernel's event stream. Process lifecycle,
// coupling and cycle events are appended to kernel_events, terminal
// processes are archived with their execution records, and a checksummed
// snapshot is written whenever a cycle completes. The per-tick clock events
// are not journaled; the latest snapshot carries the clock position.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

// DefaultSnapshotRetention is how many snapshots are kept after each save.
const DefaultSnapshotRetention = 64

// Journaled lists the event types written to kernel_events.
var Journaled = []domain.EventType{
	domain.EventProcessCreated,
	domain.EventProcessAdmitted,
	domain.EventProcessDispatched,
	domain.EventProcessState,
	domain.EventProcessCompleted,
	domain.EventProcessTerminated,
	domain.EventCouplingActivated,
	domain.EventCycleComplete,
}

// Journal is a reliable kernel subscriber that writes through to SQLite.
type Journal struct {
	DB        *sql.DB
	Kernel    *kernel.Kernel
	Events    *store.EventRepo
	Processes *store.ProcessRepo
	Snapshots *store.SnapshotRepo
	// SnapshotRetention bounds kernel_snapshots; <= 0 keeps every snapshot.
	SnapshotRetention int

	logger *slog.Logger
	sub    *kernel.Subscription
}

// New subscribes to the Journaled event types. Events emitted before New
// returns are not journaled.
func New(k *kernel.Kernel, db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		DB:        db,
		Kernel:    k,
		Events:    &store.EventRepo{},
		Processes: &store.ProcessRepo{},
		Snapshots: &store.SnapshotRepo{},

		SnapshotRetention: DefaultSnapshotRetention,

		logger: logger.With("component", "journal"),
		sub:    k.SubscribeReliable(Journaled...),
	}
}

// Run journals events until ctx is cancelled or the kernel stops. A failed
// write is logged and the event skipped; the kernel is never blocked on a
// broken store for longer than one transaction.
func (j *Journal) Run(ctx context.Context) error {
	defer j.sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-j.sub.C:
			if !ok {
				return nil
			}
			if err := j.Record(ctx, ev); err != nil {
				j.logger.Error("journal write failed", "event", ev.Type, "seq", ev.Seq, "error", err)
			}
		}
	}
}

// Record writes one event and its side records in a single transaction.
func (j *Journal) Record(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}

	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin journal tx", err)
	}
	defer tx.Rollback()

	err = j.Events.AppendTx(ctx, tx, domain.StoredEvent{
		Seq:         ev.Seq,
		Type:        ev.Type,
		Step:        ev.Step,
		Cycle:       ev.Cycle,
		ProcessID:   ev.ProcessID,
		PayloadJSON: string(payload),
		CreatedAt:   ev.At.Unix(),
	})
	if err != nil {
		return err
	}

	switch ev.Type {
	case domain.EventProcessCompleted, domain.EventProcessTerminated:
		if ev.Process != nil {
			if err := j.Processes.ArchiveTx(ctx, tx, ev.Process); err != nil {
				return err
			}
		}
	case domain.EventCycleComplete:
		rec, err := store.EncodeSnapshot(j.Kernel.Status())
		if err != nil {
			return err
		}
		if err := j.Snapshots.SaveTx(ctx, tx, rec); err != nil {
			return err
		}
		pruned, err := j.Snapshots.PruneTx(ctx, tx, j.SnapshotRetention)
		if err != nil {
			return err
		}
		j.logger.Debug("snapshot saved", "cycle", rec.Cycle, "checksum", rec.Checksum, "pruned", pruned)
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit journal tx", err)
	}
	return nil
}
