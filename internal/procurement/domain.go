package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusOrdered   POStatus = "ORDERED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	switch s {
	case POStatusDraft, POStatusOrdered, POStatusReceived, POStatusCancelled:
		return true
	}
	return false
}

// PurchaseOrderPrefix numbers purchase orders.
const PurchaseOrderPrefix = "PO"

var hundred = decimal.NewFromInt(100)

// POItem is one ordered product line valued at purchase cost.
type POItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    float64         `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID            int64                `json:"-"`
	Number        string               `json:"id"`
	Date          time.Time            `json:"date"`
	Supplier      string               `json:"supplier"`
	Warehouse     string               `json:"warehouse"`
	Items         []POItem             `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxRate       decimal.Decimal      `json:"taxRate"`
	Tax           decimal.Decimal      `json:"tax"`
	Total         decimal.Decimal      `json:"total"`
	AmountPaid    decimal.Decimal      `json:"amountPaid"`
	PaymentStatus shared.PaymentStatus `json:"paymentStatus"`
	Status        POStatus             `json:"status"`
	ReceivedAt    *time.Time           `json:"receivedAt,omitempty"`
}

// Recalculate derives subtotal, tax and total from the lines.
func (po *PurchaseOrder) Recalculate() {
	subtotal := decimal.Zero
	for _, item := range po.Items {
		subtotal = subtotal.Add(item.UnitCost.Mul(decimal.NewFromFloat(item.Quantity)).Round(2))
	}
	po.Subtotal = subtotal
	po.Tax = subtotal.Mul(po.TaxRate).Div(hundred).Round(2)
	po.Total = subtotal.Add(po.Tax)
	po.PaymentStatus = shared.DerivePaymentStatus(po.AmountPaid, po.Total)
}

// ApplyPayment adds amount to the paid total and re-derives payment status.
func (po *PurchaseOrder) ApplyPayment(amount decimal.Decimal) {
	po.AmountPaid = po.AmountPaid.Add(amount)
	po.PaymentStatus = shared.DerivePaymentStatus(po.AmountPaid, po.Total)
}

// CanTransition reports whether the status change is allowed. Receipt fires
// only from Draft or Ordered; Received and Cancelled are terminal.
func CanTransition(from, to POStatus) bool {
	switch from {
	case POStatusDraft:
		return to == POStatusOrdered || to == POStatusReceived || to == POStatusCancelled
	case POStatusOrdered:
		return to == POStatusReceived || to == POStatusCancelled
	default:
		return false
	}
}

var (
	// ErrPONotFound indicates an unknown purchase order.
	ErrPONotFound = fmt.Errorf("procurement: purchase order not found: %w", shared.ErrNotFound)
	// ErrAlreadyReceived guards repeated receipt.
	ErrAlreadyReceived = fmt.Errorf("procurement: purchase order already received: %w", shared.ErrConflict)
	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = fmt.Errorf("procurement: invalid status transition: %w", shared.ErrConflict)
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = fmt.Errorf("procurement: unknown status: %w", shared.ErrValidation)
	// ErrEmptyOrder indicates a purchase order without lines.
	ErrEmptyOrder = fmt.Errorf("procurement: purchase order requires at least one item: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = fmt.Errorf("procurement: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidAmount indicates a non-positive money amount.
	ErrInvalidAmount = fmt.Errorf("procurement: amount must be positive: %w", shared.ErrValidation)
	// ErrInvalidMethod indicates a payment method other than cash or bank.
	ErrInvalidMethod = fmt.Errorf("procurement: invalid payment method: %w", shared.ErrValidation)
	// ErrCancelled indicates the purchase order no longer accepts payments.
	ErrCancelled = fmt.Errorf("procurement: purchase order cancelled: %w", shared.ErrConflict)
)
