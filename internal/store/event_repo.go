package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// EventRepo handles persistence for journaled kernel events.
type EventRepo struct{}

// AppendTx inserts a kernel event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.StoredEvent) error {
	const q = `INSERT INTO kernel_events (seq_no, event_type, step, cycle, process_id, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.Seq,
		string(event.Type),
		event.Step,
		event.Cycle,
		event.ProcessID,
		event.PayloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListSince returns up to limit events with sequence numbers greater than
// sinceSeq, ordered by sequence number ascending. limit <= 0 means no limit.
func (r *EventRepo) ListSince(ctx context.Context, db *sql.DB, sinceSeq int64, limit int) ([]domain.StoredEvent, error) {
	const q = `SELECT id, seq_no, event_type, step, cycle, process_id, payload_json, created_at
FROM kernel_events
WHERE seq_no > ?
ORDER BY seq_no ASC
LIMIT ?`

	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, q, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByProcess returns every event recorded for a process, in order.
func (r *EventRepo) ListByProcess(ctx context.Context, db *sql.DB, processID string) ([]domain.StoredEvent, error) {
	const q = `SELECT id, seq_no, event_type, step, cycle, process_id, payload_json, created_at
FROM kernel_events
WHERE process_id = ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, processID)
	if err != nil {
		return nil, fmt.Errorf("list process events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastSeq returns the highest journaled sequence number, or 0.
func (r *EventRepo) LastSeq(ctx context.Context, db *sql.DB) (int64, error) {
	var seq sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(seq_no) FROM kernel_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return seq.Int64, nil
}

func scanEvents(rows *sql.Rows) ([]domain.StoredEvent, error) {
	var events []domain.StoredEvent
	for rows.Next() {
		var e domain.StoredEvent
		var typ string
		if err := rows.Scan(&e.ID, &e.Seq, &typ, &e.Step, &e.Cycle, &e.ProcessID, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}
