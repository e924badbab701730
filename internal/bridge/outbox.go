package bridge

import (
	"context"
	"database/sql"

	"github.com/Rogers-F/triad-kernel/internal/domain"
	"github.com/Rogers-F/triad-kernel/internal/store"
)

// Outbox receives assembled responses for delivery.
type Outbox interface {
	Deliver(ctx context.Context, entry domain.OutboxEntry) error
}

// StoreOutbox persists responses to the responses table for a transport
// adapter to pick up.
type StoreOutbox struct {
	DB   *sql.DB
	Repo *store.ResponseRepo
}

// NewStoreOutbox creates an outbox backed by db.
func NewStoreOutbox(db *sql.DB) *StoreOutbox {
	return &StoreOutbox{DB: db, Repo: &store.ResponseRepo{}}
}

// Deliver appends the entry to the outbox table.
func (o *StoreOutbox) Deliver(ctx context.Context, entry domain.OutboxEntry) error {
	_, err := o.Repo.Save(ctx, o.DB, entry)
	return err
}
