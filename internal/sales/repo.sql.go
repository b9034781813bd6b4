package sales

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

// Repository persists orders and returns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations a sales event needs inside one
// transaction: stock, journal and the order documents.
type TxRepository interface {
	inventory.StockTx
	accounting.JournalTx
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, number string) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	ListOrders(ctx context.Context) ([]Order, error)
	InsertReturn(ctx context.Context, ret SalesReturn) (SalesReturn, error)
	ListReturns(ctx context.Context, orderNumber string) ([]SalesReturn, error)
}

type txRepository struct {
	*inventory.StockStore
	*accounting.JournalStore
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			StockStore:   inventory.NewStockTx(tx),
			JournalStore: accounting.NewJournalTx(tx),
			tx:           tx,
		})
	})
}

const orderColumns = `id, number, date, customer, warehouse, subtotal, discount, tax_rate, tax, total, amount_paid, credited_amount, payment_status, COALESCE(payment_method, ''), status, completed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.Date, &o.Customer, &o.Warehouse, &o.Subtotal, &o.Discount, &o.TaxRate, &o.Tax,
		&o.Total, &o.AmountPaid, &o.CreditedAmount, &o.PaymentStatus, &o.PaymentMethod, &o.Status, &o.CompletedAt)
	return o, err
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (number, date, customer, warehouse, subtotal, discount, tax_rate, tax, total, amount_paid, credited_amount, payment_status, payment_method, status, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13,''),$14,$15) RETURNING id`,
		o.Number, o.Date, o.Customer, o.Warehouse, o.Subtotal, o.Discount, o.TaxRate, o.Tax, o.Total,
		o.AmountPaid, o.CreditedAmount, o.PaymentStatus, string(o.PaymentMethod), o.Status, o.CompletedAt).Scan(&o.ID)
	if err != nil {
		return Order{}, err
	}
	for i, item := range o.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, price) VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.Price); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, number string) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number=$1 FOR UPDATE`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%s: %w", number, ErrOrderNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	return r.loadItems(ctx, o)
}

func (r *txRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET amount_paid=$2, credited_amount=$3, payment_status=$4, payment_method=NULLIF($5,''), status=$6, completed_at=$7 WHERE id=$1`,
		o.ID, o.AmountPaid, o.CreditedAmount, o.PaymentStatus, string(o.PaymentMethod), o.Status, o.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", o.Number, ErrOrderNotFound)
	}
	return nil
}

func (r *txRepository) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
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

func (r *txRepository) loadItems(ctx context.Context, o Order) (Order, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, product_name, quantity, price FROM order_items WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Items = nil
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *txRepository) InsertReturn(ctx context.Context, ret SalesReturn) (SalesReturn, error) {
	items, err := json.Marshal(ret.Items)
	if err != nil {
		return SalesReturn{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO sales_returns (number, order_number, date, items, pre_tax_refund, tax_refund, total_refund, method, credit_account)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		ret.Number, ret.OrderNumber, ret.Date, items, ret.PreTaxRefund, ret.TaxRefund, ret.TotalRefund, ret.Method, ret.CreditAccount).Scan(&ret.ID)
	return ret, err
}

func (r *txRepository) ListReturns(ctx context.Context, orderNumber string) ([]SalesReturn, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, number, order_number, date, items, pre_tax_refund, tax_refund, total_refund, method, credit_account
FROM sales_returns WHERE order_number=$1 ORDER BY id`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SalesReturn
	for rows.Next() {
		var ret SalesReturn
		var items []byte
		if err := rows.Scan(&ret.ID, &ret.Number, &ret.OrderNumber, &ret.Date, &items, &ret.PreTaxRefund, &ret.TaxRefund,
			&ret.TotalRefund, &ret.Method, &ret.CreditAccount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &ret.Items); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}
