package reports

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens read-only ledger snapshots on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithSnapshot runs fn inside a read-only repeatable-read transaction so every
// query observes the same ledger state.
func (r *Repository) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	if r == nil {
		return errors.New("reports repository not initialised")
	}
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, accounting.NewTxRepository(tx))
	})
}
