package integration

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Monetary values qty units at unitCost, rounded to cents.
func Monetary(qty float64, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromFloat(qty)).Round(2)
}

// SettlementAccount maps a payment method to the account it settles through.
func SettlementAccount(method shared.PaymentMethod) string {
	switch method {
	case shared.PaymentMethodBank:
		return accounting.CodeBank
	case shared.PaymentMethodCredit:
		return accounting.CodeAccountsReceivable
	default:
		return accounting.CodeCash
	}
}

func abs(value float64) float64 {
	return math.Abs(value)
}
