package manufacturing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists BOMs and work orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. The journal surface is
// carried so document numbers come from the shared sequence table.
type TxRepository interface {
	inventory.StockTx
	accounting.JournalTx
	InsertBOM(ctx context.Context, bom BOM) (BOM, error)
	GetBOM(ctx context.Context, number string) (BOM, error)
	ListBOMs(ctx context.Context) ([]BOM, error)
	InsertWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error)
	GetWorkOrderForUpdate(ctx context.Context, number string) (WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo WorkOrder) error
	ListWorkOrders(ctx context.Context) ([]WorkOrder, error)
}

type txRepository struct {
	*inventory.StockStore
	*accounting.JournalStore
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("manufacturing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			StockStore:   inventory.NewStockTx(tx),
			JournalStore: accounting.NewJournalTx(tx),
			tx:           tx,
		})
	})
}

func (r *txRepository) InsertBOM(ctx context.Context, bom BOM) (BOM, error) {
	components, err := json.Marshal(bom.Components)
	if err != nil {
		return BOM{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO boms (number, product_id, product_name, components, created_at) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		bom.Number, bom.ProductID, bom.ProductName, components, bom.CreatedAt).Scan(&bom.ID)
	return bom, err
}

func scanBOM(row pgx.Row) (BOM, error) {
	var bom BOM
	var components []byte
	if err := row.Scan(&bom.ID, &bom.Number, &bom.ProductID, &bom.ProductName, &components, &bom.CreatedAt); err != nil {
		return BOM{}, err
	}
	if err := json.Unmarshal(components, &bom.Components); err != nil {
		return BOM{}, err
	}
	return bom, nil
}

func (r *txRepository) GetBOM(ctx context.Context, number string) (BOM, error) {
	bom, err := scanBOM(r.tx.QueryRow(ctx, `SELECT id, number, product_id, product_name, components, created_at FROM boms WHERE number=$1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return BOM{}, fmt.Errorf("%s: %w", number, ErrBOMNotFound)
	}
	return bom, err
}

func (r *txRepository) ListBOMs(ctx context.Context) ([]BOM, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, number, product_id, product_name, components, created_at FROM boms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BOM
	for rows.Next() {
		bom, err := scanBOM(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bom)
	}
	return out, rows.Err()
}

const workOrderColumns = `id, number, bom_number, product_id, product_name, quantity, warehouse, status, steps, estimated_cost, actual_cost, created_at, completed_at`

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	var steps []byte
	if err := row.Scan(&wo.ID, &wo.Number, &wo.BOMNumber, &wo.ProductID, &wo.ProductName, &wo.Quantity, &wo.Warehouse, &wo.Status,
		&steps, &wo.EstimatedCost, &wo.ActualCost, &wo.CreatedAt, &wo.CompletedAt); err != nil {
		return WorkOrder{}, err
	}
	if err := json.Unmarshal(steps, &wo.Steps); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

func (r *txRepository) InsertWorkOrder(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	steps, err := json.Marshal(wo.Steps)
	if err != nil {
		return WorkOrder{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO work_orders (number, bom_number, product_id, product_name, quantity, warehouse, status, steps, estimated_cost, actual_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		wo.Number, wo.BOMNumber, wo.ProductID, wo.ProductName, wo.Quantity, wo.Warehouse, wo.Status, steps,
		wo.EstimatedCost, wo.ActualCost, wo.CreatedAt).Scan(&wo.ID)
	return wo, err
}

func (r *txRepository) GetWorkOrderForUpdate(ctx context.Context, number string) (WorkOrder, error) {
	wo, err := scanWorkOrder(r.tx.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE number=$1 FOR UPDATE`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, fmt.Errorf("%s: %w", number, ErrWorkOrderNotFound)
	}
	return wo, err
}

func (r *txRepository) UpdateWorkOrder(ctx context.Context, wo WorkOrder) error {
	steps, err := json.Marshal(wo.Steps)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE work_orders SET status=$2, steps=$3, actual_cost=$4, completed_at=$5 WHERE id=$1`,
		wo.ID, wo.Status, steps, wo.ActualCost, wo.CompletedAt)
	return err
}

func (r *txRepository) ListWorkOrders(ctx context.Context) ([]WorkOrder, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+workOrderColumns+` FROM work_orders ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}
