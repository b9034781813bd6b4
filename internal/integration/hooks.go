package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SaleCompleted is raised when an order is fulfilled. DebitAccount is AR for
// credit sales and Cash or Bank for point-of-sale orders.
type SaleCompleted struct {
	OrderNumber  string
	Date         time.Time
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	COGS         decimal.Decimal
	DebitAccount string
}

// PaymentReceived is a customer payment against an order.
type PaymentReceived struct {
	OrderNumber string
	Date        time.Time
	Amount      decimal.Decimal
	Method      shared.PaymentMethod
}

// SaleReturned is a customer return. CreditAccount is Cash, Bank or AR.
type SaleReturned struct {
	ReturnNumber  string
	OrderNumber   string
	Date          time.Time
	PreTax        decimal.Decimal
	Tax           decimal.Decimal
	CreditAccount string
}

// GoodsReceived is a purchase order receipt.
type GoodsReceived struct {
	PONumber string
	Date     time.Time
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// SupplierPaid is a payment against a purchase order.
type SupplierPaid struct {
	PONumber string
	Date     time.Time
	Amount   decimal.Decimal
	Method   shared.PaymentMethod
}

// AdjustmentLine is a counted stock difference valued at cost.
type AdjustmentLine struct {
	ProductID int64
	Qty       float64
	UnitCost  decimal.Decimal
}

// StockAdjusted is an inventory count posted against the system stock.
type StockAdjusted struct {
	AdjustmentNumber string
	Date             time.Time
	Lines            []AdjustmentLine
}

// Config toggles optional postings.
type Config struct {
	PostAdjustments bool
}

// Hooks turn business events into balanced journal entries posted through the
// caller's transaction.
type Hooks struct {
	cfg Config
}

// NewHooks constructs integration hooks.
func NewHooks(cfg Config) *Hooks {
	return &Hooks{cfg: cfg}
}

// SaleCompletedPostings builds the revenue entry and, when COGS is positive,
// the cost entry.
func SaleCompletedPostings(evt SaleCompleted) []accounting.PostingInput {
	net := evt.Subtotal.Sub(evt.Discount)
	lines := []accounting.PostingLineInput{
		accounting.Debit(evt.DebitAccount, evt.Total),
		accounting.Credit(accounting.CodeRevenue, net),
	}
	if evt.Tax.IsPositive() {
		lines = append(lines, accounting.Credit(accounting.CodeVATPayable, evt.Tax))
	}
	out := []accounting.PostingInput{{
		Date:         evt.Date,
		Description:  fmt.Sprintf("Revenue for order %s", evt.OrderNumber),
		ReferenceID:  evt.OrderNumber,
		SourceModule: accounting.SourceSales,
		Lines:        lines,
	}}
	if evt.COGS.IsPositive() {
		out = append(out, accounting.PostingInput{
			Date:         evt.Date,
			Description:  fmt.Sprintf("COGS for order %s", evt.OrderNumber),
			ReferenceID:  evt.OrderNumber,
			SourceModule: accounting.SourceSales,
			Lines: []accounting.PostingLineInput{
				accounting.Debit(accounting.CodeCOGS, evt.COGS),
				accounting.Credit(accounting.CodeInventory, evt.COGS),
			},
		})
	}
	return out
}

// PaymentReceivedPosting debits Cash or Bank and credits AR.
func PaymentReceivedPosting(evt PaymentReceived) accounting.PostingInput {
	return accounting.PostingInput{
		Date:         evt.Date,
		Description:  fmt.Sprintf("Payment for order %s", evt.OrderNumber),
		ReferenceID:  evt.OrderNumber,
		SourceModule: accounting.SourceSales,
		Lines: []accounting.PostingLineInput{
			accounting.Debit(SettlementAccount(evt.Method), evt.Amount),
			accounting.Credit(accounting.CodeAccountsReceivable, evt.Amount),
		},
	}
}

// SaleReturnedPosting reverses revenue and output VAT for the refunded amount.
func SaleReturnedPosting(evt SaleReturned) accounting.PostingInput {
	lines := []accounting.PostingLineInput{accounting.Debit(accounting.CodeRevenue, evt.PreTax)}
	if evt.Tax.IsPositive() {
		lines = append(lines, accounting.Debit(accounting.CodeVATPayable, evt.Tax))
	}
	lines = append(lines, accounting.Credit(evt.CreditAccount, evt.PreTax.Add(evt.Tax)))
	return accounting.PostingInput{
		Date:         evt.Date,
		Description:  fmt.Sprintf("Sales return %s for order %s", evt.ReturnNumber, evt.OrderNumber),
		ReferenceID:  evt.ReturnNumber,
		SourceModule: accounting.SourceSales,
		Lines:        lines,
	}
}

// GoodsReceivedPosting capitalises the receipt into inventory. It reports
// false when the subtotal is zero and nothing should be posted.
func GoodsReceivedPosting(evt GoodsReceived) (accounting.PostingInput, bool) {
	if !evt.Subtotal.IsPositive() {
		return accounting.PostingInput{}, false
	}
	lines := []accounting.PostingLineInput{accounting.Debit(accounting.CodeInventory, evt.Subtotal)}
	if evt.Tax.IsPositive() {
		lines = append(lines, accounting.Debit(accounting.CodeVATReceivable, evt.Tax))
	}
	lines = append(lines, accounting.Credit(accounting.CodeAccountsPayable, evt.Total))
	return accounting.PostingInput{
		Date:         evt.Date,
		Description:  fmt.Sprintf("Goods received for %s", evt.PONumber),
		ReferenceID:  evt.PONumber,
		SourceModule: accounting.SourceProcurement,
		Lines:        lines,
	}, true
}

// SupplierPaidPosting debits AP and credits Cash or Bank.
func SupplierPaidPosting(evt SupplierPaid) accounting.PostingInput {
	return accounting.PostingInput{
		Date:         evt.Date,
		Description:  fmt.Sprintf("Payment for %s", evt.PONumber),
		ReferenceID:  evt.PONumber,
		SourceModule: accounting.SourceProcurement,
		Lines: []accounting.PostingLineInput{
			accounting.Debit(accounting.CodeAccountsPayable, evt.Amount),
			accounting.Credit(SettlementAccount(evt.Method), evt.Amount),
		},
	}
}

// StockAdjustedPostings expenses shrinkage to other expenses and books
// overage to other income, one entry per direction.
func StockAdjustedPostings(evt StockAdjusted) []accounting.PostingInput {
	loss, gain := decimal.Zero, decimal.Zero
	for _, line := range evt.Lines {
		amount := Monetary(abs(line.Qty), line.UnitCost)
		if line.Qty < 0 {
			loss = loss.Add(amount)
		} else {
			gain = gain.Add(amount)
		}
	}
	var out []accounting.PostingInput
	if loss.IsPositive() {
		out = append(out, accounting.PostingInput{
			Date:         evt.Date,
			Description:  fmt.Sprintf("Inventory shrinkage %s", evt.AdjustmentNumber),
			ReferenceID:  evt.AdjustmentNumber,
			SourceModule: accounting.SourceInventory,
			Lines: []accounting.PostingLineInput{
				accounting.Debit(accounting.CodeOtherExpense, loss),
				accounting.Credit(accounting.CodeInventory, loss),
			},
		})
	}
	if gain.IsPositive() {
		out = append(out, accounting.PostingInput{
			Date:         evt.Date,
			Description:  fmt.Sprintf("Inventory overage %s", evt.AdjustmentNumber),
			ReferenceID:  evt.AdjustmentNumber,
			SourceModule: accounting.SourceInventory,
			Lines: []accounting.PostingLineInput{
				accounting.Debit(accounting.CodeInventory, gain),
				accounting.Credit(accounting.CodeOtherIncome, gain),
			},
		})
	}
	return out
}

// HandleSaleCompleted posts the revenue and COGS entries.
func (h *Hooks) HandleSaleCompleted(ctx context.Context, tx accounting.JournalTx, evt SaleCompleted) ([]accounting.JournalEntry, error) {
	return accounting.PostAll(ctx, tx, SaleCompletedPostings(evt)...)
}

// HandlePaymentReceived posts a customer payment.
func (h *Hooks) HandlePaymentReceived(ctx context.Context, tx accounting.JournalTx, evt PaymentReceived) (accounting.JournalEntry, error) {
	return accounting.Post(ctx, tx, PaymentReceivedPosting(evt))
}

// HandleSaleReturned posts a sales return.
func (h *Hooks) HandleSaleReturned(ctx context.Context, tx accounting.JournalTx, evt SaleReturned) (accounting.JournalEntry, error) {
	return accounting.Post(ctx, tx, SaleReturnedPosting(evt))
}

// HandleGoodsReceived posts a purchase receipt. The entry is nil when the
// receipt has no value.
func (h *Hooks) HandleGoodsReceived(ctx context.Context, tx accounting.JournalTx, evt GoodsReceived) (*accounting.JournalEntry, error) {
	input, ok := GoodsReceivedPosting(evt)
	if !ok {
		return nil, nil
	}
	entry, err := accounting.Post(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// HandleSupplierPaid posts a supplier payment.
func (h *Hooks) HandleSupplierPaid(ctx context.Context, tx accounting.JournalTx, evt SupplierPaid) (accounting.JournalEntry, error) {
	return accounting.Post(ctx, tx, SupplierPaidPosting(evt))
}

// HandleStockAdjusted posts shrinkage and overage entries when enabled.
func (h *Hooks) HandleStockAdjusted(ctx context.Context, tx accounting.JournalTx, evt StockAdjusted) ([]accounting.JournalEntry, error) {
	if h == nil || !h.cfg.PostAdjustments {
		return nil, nil
	}
	return accounting.PostAll(ctx, tx, StockAdjustedPostings(evt)...)
}
