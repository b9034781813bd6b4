package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Document number prefixes owned by sales.
const (
	OrderPrefix  = "DH"
	ReturnPrefix = "RET"
)

var hundred = decimal.NewFromInt(100)

// OrderItem is one sold product line.
type OrderItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    float64         `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// LineTotal is price times quantity, rounded to cents.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromFloat(i.Quantity)).Round(2)
}

// Order is a customer order. Total = Subtotal - Discount + Tax.
type Order struct {
	ID             int64                `json:"-"`
	Number         string               `json:"id"`
	Date           time.Time            `json:"date"`
	Customer       string               `json:"customer"`
	Warehouse      string               `json:"warehouse"`
	Items          []OrderItem          `json:"items"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	Discount       decimal.Decimal      `json:"discount"`
	TaxRate        decimal.Decimal      `json:"taxRate"`
	Tax            decimal.Decimal      `json:"tax"`
	Total          decimal.Decimal      `json:"total"`
	AmountPaid     decimal.Decimal      `json:"amountPaid"`
	CreditedAmount decimal.Decimal      `json:"creditedAmount"`
	PaymentStatus  shared.PaymentStatus `json:"paymentStatus"`
	PaymentMethod  shared.PaymentMethod `json:"paymentMethod,omitempty"`
	Status         OrderStatus          `json:"status"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
}

// Recalculate derives subtotal, tax and total from the items, discount and
// tax rate. Tax applies to the discounted subtotal.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	o.Subtotal = subtotal
	o.Tax = subtotal.Sub(o.Discount).Mul(o.TaxRate).Div(hundred).Round(2)
	o.Total = subtotal.Sub(o.Discount).Add(o.Tax)
	o.PaymentStatus = shared.DerivePaymentStatus(o.Settled(), o.Total)
}

// ApplyPayment adds amount to the paid total and re-derives payment status.
func (o *Order) ApplyPayment(amount decimal.Decimal) {
	o.AmountPaid = o.AmountPaid.Add(amount)
	o.PaymentStatus = shared.DerivePaymentStatus(o.Settled(), o.Total)
}

// ApplyCredit records a return credited to receivables. AmountPaid is left
// alone; the credit still settles part of the total.
func (o *Order) ApplyCredit(amount decimal.Decimal) {
	o.CreditedAmount = o.CreditedAmount.Add(amount)
	o.PaymentStatus = shared.DerivePaymentStatus(o.Settled(), o.Total)
}

// Settled is what has cleared the receivable: payments plus credits.
func (o Order) Settled() decimal.Decimal {
	return o.AmountPaid.Add(o.CreditedAmount)
}

// Outstanding returns the unpaid balance, never below zero.
func (o Order) Outstanding() decimal.Decimal {
	debt := o.Total.Sub(o.Settled())
	if debt.IsNegative() {
		return decimal.Zero
	}
	return debt
}

// OrderedQuantity sums quantities of productID across order lines.
func (o Order) OrderedQuantity(productID int64) float64 {
	var qty float64
	for _, item := range o.Items {
		if item.ProductID == productID {
			qty += item.Quantity
		}
	}
	return qty
}

// ReturnItem is one product handed back by the customer.
type ReturnItem struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
}

// SalesReturn refunds part of a completed order.
type SalesReturn struct {
	ID            int64                `json:"-"`
	Number        string               `json:"id"`
	OrderNumber   string               `json:"orderId"`
	Date          time.Time            `json:"date"`
	Items         []ReturnItem         `json:"items"`
	PreTaxRefund  decimal.Decimal      `json:"preTaxRefund"`
	TaxRefund     decimal.Decimal      `json:"taxRefund"`
	TotalRefund   decimal.Decimal      `json:"totalRefund"`
	Method        shared.PaymentMethod `json:"method"`
	CreditAccount string               `json:"creditAccount"`
}

var (
	// ErrOrderNotFound indicates an unknown order number.
	ErrOrderNotFound = fmt.Errorf("sales: order not found: %w", shared.ErrNotFound)
	// ErrAlreadyCompleted guards repeated completion.
	ErrAlreadyCompleted = fmt.Errorf("sales: order already completed: %w", shared.ErrConflict)
	// ErrOrderCancelled indicates the order can no longer change.
	ErrOrderCancelled = fmt.Errorf("sales: order cancelled: %w", shared.ErrConflict)
	// ErrNotCompleted indicates a payment or return against an open order.
	ErrNotCompleted = fmt.Errorf("sales: order not completed: %w", shared.ErrConflict)
	// ErrEmptyOrder indicates an order without lines.
	ErrEmptyOrder = fmt.Errorf("sales: order requires at least one item: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = fmt.Errorf("sales: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidAmount indicates a non-positive money amount.
	ErrInvalidAmount = fmt.Errorf("sales: amount must be positive: %w", shared.ErrValidation)
	// ErrInvalidMethod indicates a payment method not valid for the operation.
	ErrInvalidMethod = fmt.Errorf("sales: invalid payment method: %w", shared.ErrValidation)
	// ErrInvalidDiscount indicates a discount outside [0, subtotal].
	ErrInvalidDiscount = fmt.Errorf("sales: discount out of range: %w", shared.ErrValidation)
	// ErrReturnExceedsOrder indicates more units returned than were sold.
	ErrReturnExceedsOrder = fmt.Errorf("sales: returned quantity exceeds ordered quantity: %w", shared.ErrValidation)
	// ErrRefundExceedsSales indicates refunds above the order's net sales.
	ErrRefundExceedsSales = fmt.Errorf("sales: refund exceeds net sales: %w", shared.ErrValidation)
)
