package shared

import "github.com/shopspring/decimal"

// PaymentStatus is derived from the amount paid against a document total.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "UNPAID"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPaid          PaymentStatus = "PAID"
)

// DerivePaymentStatus returns Paid when paid >= total, PartiallyPaid when
// paid > 0, Unpaid otherwise.
func DerivePaymentStatus(amountPaid, total decimal.Decimal) PaymentStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(total):
		return PaymentStatusPaid
	case amountPaid.IsPositive():
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusUnpaid
	}
}

// PaymentMethod selects the money account a payment settles through.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodCredit PaymentMethod = "credit"
)
