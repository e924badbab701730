package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, process_id, category, actor, action, detail_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.ProcessID,
		rec.Category,
		rec.Actor,
		rec.Action,
		rec.DetailJSON,
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByProcess returns all audit records for a given process, ordered by creation time.
func (r *AuditRepo) ListByProcess(ctx context.Context, db *sql.DB, processID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, process_id, category, actor, action, detail_json, severity, created_at
FROM audit_records
WHERE process_id = ?
ORDER BY created_at ASC, id ASC`
	return r.list(ctx, db, q, processID)
}

// ListByCategory returns all audit records in a category, ordered by creation time.
func (r *AuditRepo) ListByCategory(ctx context.Context, db *sql.DB, category string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, process_id, category, actor, action, detail_json, severity, created_at
FROM audit_records
WHERE category = ?
ORDER BY created_at ASC, id ASC`
	return r.list(ctx, db, q, category)
}

func (r *AuditRepo) list(ctx context.Context, db *sql.DB, q string, arg string) ([]domain.AuditRecord, error) {
	rows, err := db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.ProcessID, &a.Category, &a.Actor, &a.Action,
			&a.DetailJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
