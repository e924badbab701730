package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// ProcessRepo archives processes that reached a terminal state, together
// with their execution records.
type ProcessRepo struct{}

// ArchiveTx upserts a process row and its execution records within an
// existing transaction.
func (r *ProcessRepo) ArchiveTx(ctx context.Context, tx *sql.Tx, p *domain.MessageProcess) error {
	dests, err := json.Marshal(p.Destinations)
	if err != nil {
		return fmt.Errorf("encode destinations: %w", err)
	}
	cctx, err := json.Marshal(p.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	const q = `INSERT INTO processes (process_id, origin_id, parent_id, sender, destinations_json, subject, content,
	state, priority, current_step, current_stream, context_json, generation, created_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(process_id) DO UPDATE SET
	state = excluded.state,
	current_step = excluded.current_step,
	current_stream = excluded.current_stream,
	context_json = excluded.context_json,
	generation = excluded.generation,
	finished_at = excluded.finished_at`
	_, err = tx.ExecContext(ctx, q,
		p.ID,
		p.OriginID,
		p.ParentID,
		p.Sender,
		string(dests),
		p.Subject,
		p.Content,
		string(p.State),
		p.Priority,
		p.CurrentStep,
		p.CurrentStream.String(),
		string(cctx),
		p.Generation,
		p.CreatedAt.UnixMilli(),
		unixMilli(p.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("archive process %s: %w", p.ID, err)
	}

	const rq = `INSERT OR IGNORE INTO execution_records (process_id, ordinal, step, stream, term, mode, duration_ns, outcome, output, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, rec := range p.History {
		_, err := tx.ExecContext(ctx, rq,
			p.ID,
			i,
			rec.Step,
			rec.Stream.String(),
			rec.Term.String(),
			rec.Mode.String(),
			int64(rec.Duration),
			string(rec.Outcome),
			rec.Output,
			rec.Timestamp.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("archive execution record %s/%d: %w", p.ID, i, err)
		}
	}
	return nil
}

// Get returns an archived process with its history, or ErrUnknownProcess.
func (r *ProcessRepo) Get(ctx context.Context, db *sql.DB, id string) (*domain.MessageProcess, error) {
	const q = `SELECT process_id, origin_id, parent_id, sender, destinations_json, subject, content,
	state, priority, current_step, current_stream, context_json, generation, created_at, finished_at
FROM processes WHERE process_id = ?`

	p, err := scanProcess(db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrUnknownProcess
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if p.History, err = r.history(ctx, db, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByOrigin returns archived processes created for an origin message,
// oldest first. History is not loaded.
func (r *ProcessRepo) ListByOrigin(ctx context.Context, db *sql.DB, originID string) ([]*domain.MessageProcess, error) {
	const q = `SELECT process_id, origin_id, parent_id, sender, destinations_json, subject, content,
	state, priority, current_step, current_stream, context_json, generation, created_at, finished_at
FROM processes WHERE origin_id = ?
ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, q, originID)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var out []*domain.MessageProcess
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProcessRepo) history(ctx context.Context, db *sql.DB, id string) ([]domain.ExecutionRecord, error) {
	const q = `SELECT step, stream, term, mode, duration_ns, outcome, output, created_at
FROM execution_records WHERE process_id = ?
ORDER BY ordinal ASC`

	rows, err := db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionRecord
	for rows.Next() {
		var (
			rec                   domain.ExecutionRecord
			stream, term, mode    string
			outcome               string
			durationNS, createdAt int64
		)
		if err := rows.Scan(&rec.Step, &stream, &term, &mode, &durationNS, &outcome, &rec.Output, &createdAt); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		if err := rec.Stream.UnmarshalText([]byte(stream)); err != nil {
			return nil, err
		}
		if err := rec.Term.UnmarshalText([]byte(term)); err != nil {
			return nil, err
		}
		if err := rec.Mode.UnmarshalText([]byte(mode)); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationNS)
		rec.Outcome = domain.Outcome(outcome)
		rec.Timestamp = time.UnixMilli(createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*domain.MessageProcess, error) {
	var (
		p                     domain.MessageProcess
		dests, cctx           string
		state, stream         string
		createdAt, finishedAt int64
	)
	err := row.Scan(&p.ID, &p.OriginID, &p.ParentID, &p.Sender, &dests, &p.Subject, &p.Content,
		&state, &p.Priority, &p.CurrentStep, &stream, &cctx, &p.Generation, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dests), &p.Destinations); err != nil {
		return nil, fmt.Errorf("decode destinations: %w", err)
	}
	if err := json.Unmarshal([]byte(cctx), &p.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if err := p.CurrentStream.UnmarshalText([]byte(stream)); err != nil {
		return nil, err
	}
	p.State = domain.ProcessState(state)
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if finishedAt != 0 {
		p.FinishedAt = time.UnixMilli(finishedAt).UTC()
	}
	return &p, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
