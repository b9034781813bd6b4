package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	inventory.StockTx
	accounting.JournalTx
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, number string) (PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error)
}

type txRepository struct {
	*inventory.StockStore
	*accounting.JournalStore
	tx pgx.Tx
}

// WithTx wraps operations within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			StockStore:   inventory.NewStockTx(tx),
			JournalStore: accounting.NewJournalTx(tx),
			tx:           tx,
		})
	})
}

const poColumns = `id, number, date, supplier, warehouse, subtotal, tax_rate, tax, total, amount_paid, payment_status, status, received_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.Date, &po.Supplier, &po.Warehouse, &po.Subtotal, &po.TaxRate, &po.Tax, &po.Total,
		&po.AmountPaid, &po.PaymentStatus, &po.Status, &po.ReceivedAt)
	return po, err
}

func (r *txRepository) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, date, supplier, warehouse, subtotal, tax_rate, tax, total, amount_paid, payment_status, status, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		po.Number, po.Date, po.Supplier, po.Warehouse, po.Subtotal, po.TaxRate, po.Tax, po.Total, po.AmountPaid,
		po.PaymentStatus, po.Status, po.ReceivedAt).Scan(&po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i, item := range po.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO po_items (po_id, line_no, product_id, product_name, quantity, unit_cost) VALUES ($1,$2,$3,$4,$5,$6)`,
			po.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitCost); err != nil {
			return PurchaseOrder{}, err
		}
	}
	return po, nil
}

func (r *txRepository) GetPurchaseOrderForUpdate(ctx context.Context, number string) (PurchaseOrder, error) {
	po, err := scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE number=$1 FOR UPDATE`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%s: %w", number, ErrPONotFound)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	return r.loadItems(ctx, po)
}

func (r *txRepository) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET amount_paid=$2, payment_status=$3, status=$4, received_at=$5 WHERE id=$1`,
		po.ID, po.AmountPaid, po.PaymentStatus, po.Status, po.ReceivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", po.Number, ErrPONotFound)
	}
	return nil
}

func (r *txRepository) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, po)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i], err = r.loadItems(ctx, out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *txRepository) loadItems(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, product_name, quantity, unit_cost FROM po_items WHERE po_id=$1 ORDER BY line_no`, po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	po.Items = nil
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitCost); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}
