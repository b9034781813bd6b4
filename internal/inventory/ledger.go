package inventory

import (
	"context"
	"fmt"
	"time"
)

const qtyEpsilon = 1e-9

// StockTx is the stock surface every module transaction exposes.
type StockTx interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetWarehouse(ctx context.Context, name string) (Warehouse, error)
	GetStockForUpdate(ctx context.Context, productID int64, warehouse string) (StockItem, bool, error)
	UpsertStock(ctx context.Context, item StockItem) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
}

// MovementInput describes one stock change. Warehouse is where the stock
// changes; Counterpart is the other side of a transfer, if any.
type MovementInput struct {
	Type        MovementType
	ProductID   int64
	Delta       float64
	ReferenceID string
	Warehouse   string
	Counterpart string
}

// Ledger applies stock deltas and records their movements.
type Ledger struct {
	allowNegative bool
	now           func() time.Time
}

// NewLedger builds a Ledger. allowNegative lets stock fall below zero.
func NewLedger(allowNegative bool) Ledger {
	return Ledger{allowNegative: allowNegative, now: time.Now}
}

// WithNow returns a copy of the ledger using now as its clock.
func (l Ledger) WithNow(now func() time.Time) Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

func (l Ledger) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

// GetStock returns the quantity held, zero when no row exists.
func GetStock(ctx context.Context, tx StockTx, productID int64, warehouse string) (float64, error) {
	item, ok, err := tx.GetStockForUpdate(ctx, productID, warehouse)
	if err != nil || !ok {
		return 0, err
	}
	return item.Stock, nil
}

// UpdateStock adds delta to the stock row, creating it on first receipt.
func (l Ledger) UpdateStock(ctx context.Context, tx StockTx, productID int64, warehouse string, delta float64) (StockItem, error) {
	item, ok, err := tx.GetStockForUpdate(ctx, productID, warehouse)
	if err != nil {
		return StockItem{}, err
	}
	if !ok {
		if delta < 0 && !l.allowNegative {
			return StockItem{}, fmt.Errorf("product %d at %s: %w", productID, warehouse, ErrNegativeStock)
		}
		item = StockItem{ProductID: productID, Warehouse: warehouse}
	}
	next := item.Stock + delta
	if next < -qtyEpsilon && !l.allowNegative {
		return StockItem{}, fmt.Errorf("product %d at %s: %w", productID, warehouse, ErrNegativeStock)
	}
	if next > -qtyEpsilon && next < qtyEpsilon {
		next = 0
	}
	item.Stock = next
	item.UpdatedAt = l.clock()
	if err := tx.UpsertStock(ctx, item); err != nil {
		return StockItem{}, err
	}
	return item, nil
}

// CreateMovement appends a movement, deriving the from/to warehouses from the
// sign of the delta.
func (l Ledger) CreateMovement(ctx context.Context, tx StockTx, in MovementInput) (Movement, error) {
	product, err := tx.GetProduct(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	m := Movement{
		Date:           l.clock(),
		ProductID:      product.ID,
		ProductName:    product.Name,
		Type:           in.Type,
		QuantityChange: in.Delta,
		ReferenceID:    in.ReferenceID,
	}
	if in.Delta < 0 {
		m.FromWarehouse = in.Warehouse
		m.ToWarehouse = in.Counterpart
	} else {
		m.ToWarehouse = in.Warehouse
		m.FromWarehouse = in.Counterpart
	}
	return tx.InsertMovement(ctx, m)
}

// Apply validates the product, updates stock and records the movement.
func (l Ledger) Apply(ctx context.Context, tx StockTx, in MovementInput) (StockItem, Movement, error) {
	if in.Delta > -qtyEpsilon && in.Delta < qtyEpsilon {
		return StockItem{}, Movement{}, ErrInvalidQuantity
	}
	if _, err := tx.GetProduct(ctx, in.ProductID); err != nil {
		return StockItem{}, Movement{}, err
	}
	item, err := l.UpdateStock(ctx, tx, in.ProductID, in.Warehouse, in.Delta)
	if err != nil {
		return StockItem{}, Movement{}, err
	}
	movement, err := l.CreateMovement(ctx, tx, in)
	if err != nil {
		return StockItem{}, Movement{}, err
	}
	return item, movement, nil
}

// Issue decrements stock after checking availability, returning a shortage
// error that names the product when stock is insufficient.
func (l Ledger) Issue(ctx context.Context, tx StockTx, in MovementInput) (StockItem, Movement, error) {
	if in.Delta >= 0 {
		return StockItem{}, Movement{}, ErrInvalidQuantity
	}
	if err := CheckAvailable(ctx, tx, in.ProductID, in.Warehouse, -in.Delta); err != nil && !(l.allowNegative && IsShortage(err)) {
		return StockItem{}, Movement{}, err
	}
	return l.Apply(ctx, tx, in)
}

// CheckAvailable returns a ShortageError when less than qty is held.
func CheckAvailable(ctx context.Context, tx StockTx, productID int64, warehouse string, qty float64) error {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	stock, err := GetStock(ctx, tx, productID, warehouse)
	if err != nil {
		return err
	}
	if stock+qtyEpsilon < qty {
		return &ShortageError{ProductID: productID, Name: product.Name, Warehouse: warehouse, Required: qty, Available: stock}
	}
	return nil
}

// LowStock returns a warning when item is below the product minimum.
func LowStock(product Product, item StockItem) *LowStockWarning {
	if product.MinStock <= 0 || item.Stock >= product.MinStock {
		return nil
	}
	return &LowStockWarning{
		ProductID:   product.ID,
		ProductName: product.Name,
		Warehouse:   item.Warehouse,
		Stock:       item.Stock,
		MinStock:    product.MinStock,
	}
}

// StockFromMovements rebuilds the stock of one product in one warehouse from
// the movement log.
func StockFromMovements(movements []Movement, productID int64, warehouse string) float64 {
	var total float64
	for _, m := range movements {
		if m.ProductID == productID && m.AffectedWarehouse() == warehouse {
			total += m.QuantityChange
		}
	}
	return total
}
