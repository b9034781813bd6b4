package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementType enumerates the business reasons stock changes.
type MovementType string

const (
	MovementSalesIssue        MovementType = "SalesIssue"
	MovementSalesReturn       MovementType = "SalesReturn"
	MovementPurchaseReceipt   MovementType = "PurchaseReceipt"
	MovementAdjustment        MovementType = "Adjustment"
	MovementTransferOut       MovementType = "TransferOut"
	MovementTransferIn        MovementType = "TransferIn"
	MovementProductionIssue   MovementType = "ProductionIssue"
	MovementProductionReceipt MovementType = "ProductionReceipt"
)

// Document number prefixes owned by inventory.
const (
	AdjustmentPrefix = "ADJ"
	TransferPrefix   = "TRF"
)

// Product is the master data the ledger values stock with.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Cost      decimal.Decimal `json:"cost"`
	Price     decimal.Decimal `json:"price"`
	MinStock  float64         `json:"minStock"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Warehouse is a named stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// StockItem is the quantity of one product held in one warehouse.
type StockItem struct {
	ProductID int64     `json:"productId"`
	Warehouse string    `json:"warehouse"`
	Stock     float64   `json:"stock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Movement is an append-only record of a stock change. A negative
// QuantityChange leaves FromWarehouse, a positive one enters ToWarehouse.
type Movement struct {
	ID             int64        `json:"id"`
	Date           time.Time    `json:"date"`
	ProductID      int64        `json:"productId"`
	ProductName    string       `json:"productName"`
	Type           MovementType `json:"type"`
	QuantityChange float64      `json:"quantityChange"`
	FromWarehouse  string       `json:"fromWarehouse,omitempty"`
	ToWarehouse    string       `json:"toWarehouse,omitempty"`
	ReferenceID    string       `json:"referenceId"`
}

// AffectedWarehouse returns the warehouse whose stock the movement changed.
func (m Movement) AffectedWarehouse() string {
	if m.QuantityChange < 0 {
		return m.FromWarehouse
	}
	return m.ToWarehouse
}

// LowStockWarning flags a product that fell below its minimum stock.
type LowStockWarning struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Warehouse   string  `json:"warehouse"`
	Stock       float64 `json:"stock"`
	MinStock    float64 `json:"minStock"`
}

// Message renders the warning for operators.
func (w LowStockWarning) Message() string {
	return fmt.Sprintf("%s stock at %s is %.2f, below minimum %.2f", w.ProductName, w.Warehouse, w.Stock, w.MinStock)
}

// AdjustmentItem is one counted product inside an adjustment.
type AdjustmentItem struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	SystemStock float64 `json:"systemStock"`
	ActualStock float64 `json:"actualStock"`
	Difference  float64 `json:"difference"`
}

// Adjustment records a stock count reconciled against system stock.
type Adjustment struct {
	ID        int64            `json:"-"`
	Number    string           `json:"id"`
	Date      time.Time        `json:"date"`
	Warehouse string           `json:"warehouse"`
	Notes     string           `json:"notes"`
	Items     []AdjustmentItem `json:"items"`
}

// TransferItem is one product moved by a transfer.
type TransferItem struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
}

// Transfer moves stock between two warehouses.
type Transfer struct {
	ID            int64          `json:"-"`
	Number        string         `json:"id"`
	Date          time.Time      `json:"date"`
	FromWarehouse string         `json:"fromWarehouse"`
	ToWarehouse   string         `json:"toWarehouse"`
	Notes         string         `json:"notes"`
	Items         []TransferItem `json:"items"`
}

// MovementFilter narrows movement and stock listings. Zero values match all.
type MovementFilter struct {
	ProductID   int64
	Warehouse   string
	ReferenceID string
	Limit       int
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrUnknownProduct indicates a movement for a product that does not exist.
	ErrUnknownProduct = fmt.Errorf("inventory: unknown product: %w", shared.ErrValidation)
	// ErrSameWarehouse indicates a transfer whose source and destination match.
	ErrSameWarehouse = fmt.Errorf("inventory: source and destination warehouse must differ: %w", shared.ErrValidation)
	// ErrNoDifference indicates an adjustment where every count matches system stock.
	ErrNoDifference = fmt.Errorf("inventory: adjustment has no stock differences: %w", shared.ErrValidation)
	// ErrInsufficientStock indicates a request for more stock than available.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", shared.ErrValidation)
	// ErrDuplicateWarehouse indicates the warehouse name is taken.
	ErrDuplicateWarehouse = fmt.Errorf("inventory: warehouse name already exists: %w", shared.ErrValidation)
	// ErrDuplicateSKU indicates the product SKU is taken.
	ErrDuplicateSKU = fmt.Errorf("inventory: product sku already exists: %w", shared.ErrValidation)
	// ErrWarehouseNotFound indicates an unknown warehouse.
	ErrWarehouseNotFound = fmt.Errorf("inventory: warehouse not found: %w", shared.ErrNotFound)
	// ErrEmptyDocument indicates a document without items.
	ErrEmptyDocument = fmt.Errorf("inventory: at least one item required: %w", shared.ErrValidation)
	// ErrDuplicateCount indicates a product counted twice in one adjustment.
	ErrDuplicateCount = fmt.Errorf("inventory: product counted more than once: %w", shared.ErrValidation)
)

// ShortageError names the product and amount missing for an issue.
type ShortageError struct {
	ProductID int64
	Name      string
	Warehouse string
	Required  float64
	Available float64
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s at %s: required %.2f, available %.2f", e.Name, e.Warehouse, e.Required, e.Available)
}

// Unwrap exposes the sentinel so errors.Is(err, ErrInsufficientStock) holds.
func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}

// IsShortage reports whether err is a stock shortage.
func IsShortage(err error) bool {
	var shortage *ShortageError
	return errors.As(err, &shortage)
}
