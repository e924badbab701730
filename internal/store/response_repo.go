package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// ResponseRepo is the outbox of assembled responses.
type ResponseRepo struct{}

// Save appends an outbox entry and returns its id.
func (r *ResponseRepo) Save(ctx context.Context, db *sql.DB, e domain.OutboxEntry) (int64, error) {
	msg, err := json.Marshal(e.Message)
	if err != nil {
		return 0, fmt.Errorf("encode response: %w", err)
	}
	const q = `INSERT INTO responses (process_id, origin_id, message_json, created_at)
VALUES (?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, q, e.ProcessID, e.OriginID, string(msg), e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("save response: %w", err)
	}
	return res.LastInsertId()
}

// ListSince returns up to limit entries with ids greater than sinceID,
// oldest first. limit <= 0 means no limit.
func (r *ResponseRepo) ListSince(ctx context.Context, db *sql.DB, sinceID int64, limit int) ([]domain.OutboxEntry, error) {
	const q = `SELECT id, process_id, origin_id, message_json, created_at
FROM responses
WHERE id > ?
ORDER BY id ASC
LIMIT ?`

	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, q, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxEntry
	for rows.Next() {
		var (
			e   domain.OutboxEntry
			msg string
		)
		if err := rows.Scan(&e.ID, &e.ProcessID, &e.OriginID, &msg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if err := json.Unmarshal([]byte(msg), &e.Message); err != nil {
			return nil, fmt.Errorf("decode response %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
