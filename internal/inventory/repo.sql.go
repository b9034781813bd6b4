package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockTx
	accounting.JournalTx
	InsertProduct(ctx context.Context, product Product) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	ListStock(ctx context.Context, filter MovementFilter) ([]StockItem, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	ListAdjustments(ctx context.Context) ([]Adjustment, error)
	InsertTransfer(ctx context.Context, transfer Transfer) (Transfer, error)
	ListTransfers(ctx context.Context) ([]Transfer, error)
}

type txRepository struct {
	*StockStore
	*accounting.JournalStore
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{StockStore: NewStockTx(tx), JournalStore: accounting.NewJournalTx(tx), tx: tx})
	})
}

// StockStore implements StockTx on a pgx transaction.
type StockStore struct {
	tx pgx.Tx
}

// NewStockTx returns the stock surface for tx.
func NewStockTx(tx pgx.Tx) *StockStore {
	return &StockStore{tx: tx}
}

const productColumns = `id, sku, name, cost, price, min_stock, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Cost, &p.Price, &p.MinStock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrUnknownProduct
	}
	return p, err
}

// GetProduct implements StockTx.
func (s *StockStore) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(s.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, ErrUnknownProduct) {
		return Product{}, fmt.Errorf("product %d: %w", id, err)
	}
	return p, err
}

// GetWarehouse implements StockTx.
func (s *StockStore) GetWarehouse(ctx context.Context, name string) (Warehouse, error) {
	var wh Warehouse
	err := s.tx.QueryRow(ctx, `SELECT id, name, created_at FROM warehouses WHERE lower(name)=lower($1)`, name).
		Scan(&wh.ID, &wh.Name, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, fmt.Errorf("%s: %w", name, ErrWarehouseNotFound)
	}
	return wh, err
}

// GetStockForUpdate implements StockTx. The row lock is held until commit.
func (s *StockStore) GetStockForUpdate(ctx context.Context, productID int64, warehouse string) (StockItem, bool, error) {
	item := StockItem{ProductID: productID, Warehouse: warehouse}
	err := s.tx.QueryRow(ctx, `SELECT stock, updated_at FROM stock_items WHERE product_id=$1 AND warehouse=$2 FOR UPDATE`, productID, warehouse).
		Scan(&item.Stock, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, false, nil
	}
	if err != nil {
		return StockItem{}, false, err
	}
	return item, true, nil
}

// UpsertStock implements StockTx.
func (s *StockStore) UpsertStock(ctx context.Context, item StockItem) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_items (product_id, warehouse, stock, updated_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (product_id, warehouse) DO UPDATE SET stock=EXCLUDED.stock, updated_at=EXCLUDED.updated_at`,
		item.ProductID, item.Warehouse, item.Stock, item.UpdatedAt)
	return err
}

// InsertMovement implements StockTx.
func (s *StockStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_movements (date, product_id, product_name, type, quantity_change, from_warehouse, to_warehouse, reference_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		m.Date, m.ProductID, m.ProductName, m.Type, m.QuantityChange, nullString(m.FromWarehouse), nullString(m.ToWarehouse), m.ReferenceID).Scan(&m.ID)
	return m, err
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO products (sku, name, cost, price, min_stock, created_at) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		p.SKU, p.Name, p.Cost, p.Price, p.MinStock, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, fmt.Errorf("%s: %w", p.SKU, ErrDuplicateSKU)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouses (name, created_at) VALUES ($1,$2) RETURNING id`, wh.Name, wh.CreatedAt).Scan(&wh.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Warehouse{}, fmt.Errorf("%s: %w", wh.Name, ErrDuplicateWarehouse)
		}
		return Warehouse{}, err
	}
	return wh, nil
}

func (r *txRepository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, created_at FROM warehouses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Name, &wh.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *txRepository) ListStock(ctx context.Context, filter MovementFilter) ([]StockItem, error) {
	var where string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where = appendCond(where, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.Warehouse != "" {
		args = append(args, filter.Warehouse)
		where = appendCond(where, fmt.Sprintf("warehouse=$%d", len(args)))
	}
	rows, err := r.tx.Query(ctx, `SELECT product_id, warehouse, stock, updated_at FROM stock_items`+where+` ORDER BY product_id, warehouse`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockItem
	for rows.Next() {
		var item StockItem
		if err := rows.Scan(&item.ProductID, &item.Warehouse, &item.Stock, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *txRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var where string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where = appendCond(where, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.Warehouse != "" {
		args = append(args, filter.Warehouse)
		where = appendCond(where, fmt.Sprintf("(from_warehouse=$%[1]d OR to_warehouse=$%[1]d)", len(args)))
	}
	if filter.ReferenceID != "" {
		args = append(args, filter.ReferenceID)
		where = appendCond(where, fmt.Sprintf("reference_id=$%d", len(args)))
	}
	query := `SELECT id, date, product_id, product_name, type, quantity_change, COALESCE(from_warehouse, ''), COALESCE(to_warehouse, ''), reference_id
FROM inventory_movements` + where + ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Date, &m.ProductID, &m.ProductName, &m.Type, &m.QuantityChange, &m.FromWarehouse, &m.ToWarehouse, &m.ReferenceID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	items, err := json.Marshal(adj.Items)
	if err != nil {
		return Adjustment{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments (number, date, warehouse, notes, items) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		adj.Number, adj.Date, adj.Warehouse, adj.Notes, items).Scan(&adj.ID)
	return adj, err
}

func (r *txRepository) ListAdjustments(ctx context.Context) ([]Adjustment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, number, date, warehouse, notes, items FROM inventory_adjustments ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Adjustment
	for rows.Next() {
		var adj Adjustment
		var items []byte
		if err := rows.Scan(&adj.ID, &adj.Number, &adj.Date, &adj.Warehouse, &adj.Notes, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &adj.Items); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return Transfer{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (number, date, from_warehouse, to_warehouse, notes, items) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		t.Number, t.Date, t.FromWarehouse, t.ToWarehouse, t.Notes, items).Scan(&t.ID)
	return t, err
}

func (r *txRepository) ListTransfers(ctx context.Context) ([]Transfer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, number, date, from_warehouse, to_warehouse, notes, items FROM stock_transfers ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		var t Transfer
		var items []byte
		if err := rows.Scan(&t.ID, &t.Number, &t.Date, &t.FromWarehouse, &t.ToWarehouse, &t.Notes, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &t.Items); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func appendCond(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
