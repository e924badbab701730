package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// SnapshotRepo handles persistence for checksummed kernel snapshots.
type SnapshotRepo struct{}

// SaveTx inserts a snapshot record within an existing transaction.
func (r *SnapshotRepo) SaveTx(ctx context.Context, tx *sql.Tx, snap domain.SnapshotRecord) error {
	const q = `INSERT INTO kernel_snapshots (cycle, step, data, checksum, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		snap.Cycle,
		snap.Step,
		snap.Data,
		snap.Checksum,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// PruneTx deletes all but the newest keep snapshots. keep <= 0 keeps
// everything.
func (r *SnapshotRepo) PruneTx(ctx context.Context, tx *sql.Tx, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	const q = `DELETE FROM kernel_snapshots
WHERE id NOT IN (SELECT id FROM kernel_snapshots ORDER BY id DESC LIMIT ?)`
	res, err := tx.ExecContext(ctx, q, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored snapshots.
func (r *SnapshotRepo) Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kernel_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// GetLatest returns the most recently saved snapshot record.
// Returns ErrSnapshotNotFound if none exists.
func (r *SnapshotRepo) GetLatest(ctx context.Context, db *sql.DB) (*domain.SnapshotRecord, error) {
	const q = `SELECT id, cycle, step, data, checksum, created_at
FROM kernel_snapshots
ORDER BY id DESC
LIMIT 1`

	var s domain.SnapshotRecord
	err := db.QueryRowContext(ctx, q).Scan(&s.ID, &s.Cycle, &s.Step, &s.Data, &s.Checksum, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &s, nil
}

// LoadLatest returns the most recent snapshot, verified and decoded.
func (r *SnapshotRepo) LoadLatest(ctx context.Context, db *sql.DB) (domain.KernelSnapshot, error) {
	rec, err := r.GetLatest(ctx, db)
	if err != nil {
		return domain.KernelSnapshot{}, err
	}
	return DecodeSnapshot(*rec)
}
