package sales_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func widgetOrder(f *ledgertest.Fixture, qty float64) sales.OrderInput {
	return sales.OrderInput{
		Customer:  "Jane",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Widget.ID, Quantity: qty}},
		Discount:  ledgertest.D("5"),
		TaxRate:   ledgertest.D("10"),
	}
}

func requireLine(t *testing.T, entry accounting.JournalEntry, code, debit, credit string) {
	t.Helper()
	for _, line := range entry.Lines {
		if line.AccountCode == code {
			require.Truef(t, line.Debit.Equal(ledgertest.D(debit)), "%s debit %s", code, line.Debit)
			require.Truef(t, line.Credit.Equal(ledgertest.D(credit)), "%s credit %s", code, line.Credit)
			return
		}
	}
	t.Fatalf("%s has no line for %s", entry.Number, code)
}

func TestCreateOrderLeavesStockAndLedgerUntouched(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)
	require.Equal(t, "DH001", order.Number)
	require.Equal(t, sales.OrderStatusPending, order.Status)
	require.True(t, order.Items[0].Price.Equal(ledgertest.D("10")), "zero price uses the list price")
	require.True(t, order.Subtotal.Equal(ledgertest.D("30")))
	require.True(t, order.Tax.Equal(ledgertest.D("2.5")))
	require.True(t, order.Total.Equal(ledgertest.D("27.5")))
	require.Equal(t, shared.PaymentStatusUnpaid, order.PaymentStatus)

	require.InDelta(t, 10, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	require.Len(t, f.Entries(t), 1)
}

func TestCreateOrderValidation(t *testing.T) {
	f := ledgertest.New(t)

	in := widgetOrder(f, 1)
	in.Discount = ledgertest.D("11")
	_, err := f.Services.Sales.CreateOrder(f.Ctx, in)
	require.ErrorIs(t, err, sales.ErrInvalidDiscount)

	in = widgetOrder(f, 1)
	in.Items = nil
	_, err = f.Services.Sales.CreateOrder(f.Ctx, in)
	require.ErrorIs(t, err, sales.ErrEmptyOrder)

	in = widgetOrder(f, 0)
	_, err = f.Services.Sales.CreateOrder(f.Ctx, in)
	require.ErrorIs(t, err, sales.ErrInvalidQuantity)

	in = widgetOrder(f, 1)
	in.Warehouse = "Nowhere"
	_, err = f.Services.Sales.CreateOrder(f.Ctx, in)
	require.ErrorIs(t, err, shared.ErrNotFound)

	in = widgetOrder(f, 1)
	in.Items[0].ProductID = 999
	_, err = f.Services.Sales.CreateOrder(f.Ctx, in)
	require.ErrorIs(t, err, inventory.ErrUnknownProduct)

	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 1))
	require.NoError(t, err)
	require.Equal(t, "DH001", order.Number, "rejected orders consume no number")
}

func TestCompleteOrderPostsRevenueAndCOGS(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)

	res, err := f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, sales.OrderStatusCompleted, res.Order.Status)
	require.NotNil(t, res.Order.CompletedAt)
	require.Empty(t, res.StockWarnings)
	require.Len(t, res.Movements, 1)
	require.Equal(t, inventory.MovementSalesIssue, res.Movements[0].Type)
	require.InDelta(t, -3, res.Movements[0].QuantityChange, 1e-9)
	require.InDelta(t, 7, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	require.Len(t, res.JournalEntries, 2)
	revenue, cogs := res.JournalEntries[0], res.JournalEntries[1]
	require.Equal(t, order.Number, revenue.ReferenceID)
	requireLine(t, revenue, accounting.CodeAccountsReceivable, "27.5", "0")
	requireLine(t, revenue, accounting.CodeRevenue, "0", "25")
	requireLine(t, revenue, accounting.CodeVATPayable, "0", "2.5")
	requireLine(t, cogs, accounting.CodeCOGS, "18", "0")
	requireLine(t, cogs, accounting.CodeInventory, "0", "18")

	require.True(t, f.Balance(t, accounting.CodeInventory).Equal(ledgertest.D("42")))
	f.RequireBalanced(t)

	entries := len(f.Entries(t))
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.ErrorIs(t, err, sales.ErrAlreadyCompleted)
	require.Len(t, f.Entries(t), entries)
	require.InDelta(t, 7, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
}

func TestCompleteOrderWarnsOnLowStock(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 6, ledgertest.MainWarehouse)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 2))
	require.NoError(t, err)

	res, err := f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.Len(t, res.StockWarnings, 1)
	require.Equal(t, "Widget stock at Main is 4.00, below minimum 5.00", res.StockWarnings[0].Message())
}

func TestCompleteOrderShortageRollsBack(t *testing.T) {
	f := ledgertest.New(t)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, sales.OrderInput{
		Customer:  "Jane",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Gadget.ID, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.True(t, inventory.IsShortage(err))

	got, err := f.Services.Sales.GetOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, sales.OrderStatusPending, got.Status)
	require.Empty(t, f.Entries(t))
}

func TestCompleteOrderAllowsNegativeStockWhenConfigured(t *testing.T) {
	f := ledgertest.New(t, ledgertest.AllowNegativeStock())
	order, err := f.Services.Sales.CreateOrder(f.Ctx, sales.OrderInput{
		Customer:  "Jane",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Gadget.ID, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.InDelta(t, -5, f.Stock(t, f.Gadget, ledgertest.MainWarehouse), 1e-9)
	f.RequireBalanced(t)
}

func TestPointOfSaleOrder(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Gadget, 2, ledgertest.MainWarehouse)
	in := sales.OrderInput{
		Customer:  "Walk-in",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Gadget.ID, Quantity: 1}},
	}

	res, err := f.Services.Sales.CreateAndCompleteOrder(f.Ctx, in, shared.PaymentMethodBank)
	require.NoError(t, err)
	require.Equal(t, "DH001", res.Order.Number)
	require.Equal(t, sales.OrderStatusCompleted, res.Order.Status)
	require.Equal(t, shared.PaymentStatusPaid, res.Order.PaymentStatus)
	require.True(t, res.Order.AmountPaid.Equal(ledgertest.D("35")))
	require.Len(t, res.JournalEntries, 2)
	requireLine(t, res.JournalEntries[0], accounting.CodeBank, "35", "0")
	requireLine(t, res.JournalEntries[0], accounting.CodeRevenue, "0", "35")
	require.Len(t, res.JournalEntries[0].Lines, 2, "no VAT line without tax")
	requireLine(t, res.JournalEntries[1], accounting.CodeCOGS, "20", "0")
	require.InDelta(t, 1, f.Stock(t, f.Gadget, ledgertest.MainWarehouse), 1e-9)
	f.RequireBalanced(t)
}

func TestPointOfSaleRejectsShortageEvenWhenNegativeAllowed(t *testing.T) {
	f := ledgertest.New(t, ledgertest.AllowNegativeStock())
	f.Receive(t, f.Gadget, 2, ledgertest.MainWarehouse)
	entries := len(f.Entries(t))

	_, err := f.Services.Sales.CreateAndCompleteOrder(f.Ctx, sales.OrderInput{
		Customer:  "Walk-in",
		Warehouse: ledgertest.MainWarehouse,
		Items: []sales.OrderLineInput{
			{ProductID: f.Gadget.ID, Quantity: 2},
			{ProductID: f.Gadget.ID, Quantity: 1},
		},
	}, shared.PaymentMethodCash)
	require.True(t, inventory.IsShortage(err))
	require.InDelta(t, 2, f.Stock(t, f.Gadget, ledgertest.MainWarehouse), 1e-9)
	require.Len(t, f.Entries(t), entries)

	orders, err := f.Services.Sales.ListOrders(f.Ctx)
	require.NoError(t, err)
	require.Empty(t, orders)

	_, err = f.Services.Sales.CreateAndCompleteOrder(f.Ctx, sales.OrderInput{
		Customer:  "Walk-in",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Gadget.ID, Quantity: 1}},
	}, shared.PaymentMethodCredit)
	require.ErrorIs(t, err, sales.ErrInvalidMethod)
}

func TestRecordOrderPayment(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	pending, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 1))
	require.NoError(t, err)
	_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, pending.Number, sales.PaymentInput{Amount: ledgertest.D("1")})
	require.ErrorIs(t, err, sales.ErrNotCompleted)

	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)

	_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: ledgertest.D("0")})
	require.ErrorIs(t, err, sales.ErrInvalidAmount)
	_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: ledgertest.D("1"), Method: shared.PaymentMethodCredit})
	require.ErrorIs(t, err, sales.ErrInvalidMethod)

	first, err := f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: ledgertest.D("10")})
	require.NoError(t, err)
	require.Equal(t, shared.PaymentStatusPartiallyPaid, first.Order.PaymentStatus)
	requireLine(t, first.JournalEntry, accounting.CodeCash, "10", "0")
	requireLine(t, first.JournalEntry, accounting.CodeAccountsReceivable, "0", "10")

	second, err := f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: ledgertest.D("20"), Method: shared.PaymentMethodBank})
	require.NoError(t, err)
	require.Equal(t, shared.PaymentStatusPaid, second.Order.PaymentStatus)
	require.True(t, second.Order.AmountPaid.Equal(ledgertest.D("30")), "overpayment is accepted")
	requireLine(t, second.JournalEntry, accounting.CodeBank, "20", "0")

	require.True(t, f.Balance(t, accounting.CodeAccountsReceivable).Equal(ledgertest.D("-2.5")))
	f.RequireBalanced(t)
}

func TestCreateSalesReturn(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: ledgertest.D("27.5")})
	require.NoError(t, err)

	res, err := f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
		PreTaxRefund: ledgertest.D("10"),
	})
	require.NoError(t, err)
	ret := res.Return
	require.Equal(t, "RET001", ret.Number)
	require.Equal(t, shared.PaymentMethodCash, ret.Method, "paid orders refund in cash by default")
	require.Equal(t, accounting.CodeCash, ret.CreditAccount)
	require.True(t, ret.TaxRefund.Equal(ledgertest.D("1")))
	require.True(t, ret.TotalRefund.Equal(ledgertest.D("11")))
	require.Equal(t, inventory.MovementSalesReturn, res.Movements[0].Type)
	require.Equal(t, "RET001", res.Movements[0].ReferenceID)
	require.InDelta(t, 8, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	requireLine(t, res.JournalEntry, accounting.CodeRevenue, "10", "0")
	requireLine(t, res.JournalEntry, accounting.CodeVATPayable, "1", "0")
	requireLine(t, res.JournalEntry, accounting.CodeCash, "0", "11")

	_, err = f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 3}},
		PreTaxRefund: ledgertest.D("1"),
	})
	require.ErrorIs(t, err, sales.ErrReturnExceedsOrder)

	_, err = f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
		PreTaxRefund: ledgertest.D("16"),
	})
	require.ErrorIs(t, err, sales.ErrRefundExceedsSales)

	returns, err := f.Services.Sales.ListReturns(f.Ctx, order.Number)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	require.InDelta(t, 8, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	f.RequireBalanced(t)
}

func TestCreditReturnOnUnpaidOrder(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)

	_, err = f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
		PreTaxRefund: ledgertest.D("10"),
	})
	require.ErrorIs(t, err, sales.ErrNotCompleted)

	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	res, err := f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
		PreTaxRefund: ledgertest.D("10"),
	})
	require.NoError(t, err)
	require.Equal(t, shared.PaymentMethodCredit, res.Return.Method)
	requireLine(t, res.JournalEntry, accounting.CodeAccountsReceivable, "0", "11")

	got, err := f.Services.Sales.GetOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.IsZero())
	require.True(t, got.CreditedAmount.Equal(ledgertest.D("11")))
	require.True(t, got.Outstanding().Equal(ledgertest.D("16.5")))
	require.True(t, f.Balance(t, accounting.CodeAccountsReceivable).Equal(ledgertest.D("16.5")))
	f.RequireBalanced(t)
}

func TestCreditReturnKeepsAgingInStepWithReceivables(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 3))
	require.NoError(t, err)
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.NoError(t, err)

	res, err := f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
		Items:        []sales.ReturnLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
		PreTaxRefund: ledgertest.D("10"),
		Method:       shared.PaymentMethodCredit,
	})
	require.NoError(t, err)
	require.Equal(t, shared.PaymentStatusPartiallyPaid, res.Order.PaymentStatus)

	aging, err := f.Services.Sales.ReceivablesAging(f.Ctx)
	require.NoError(t, err)
	ar := f.Balance(t, accounting.CodeAccountsReceivable)
	require.Truef(t, aging.Total.Equal(ar), "aging %s, receivable %s", aging.Total, ar)

	paid, err := f.Services.Sales.RecordOrderPayment(f.Ctx, order.Number, sales.PaymentInput{Amount: aging.Total})
	require.NoError(t, err)
	require.Equal(t, shared.PaymentStatusPaid, paid.Order.PaymentStatus)
	require.True(t, f.Balance(t, accounting.CodeAccountsReceivable).IsZero())

	aging, err = f.Services.Sales.ReceivablesAging(f.Ctx)
	require.NoError(t, err)
	require.Empty(t, aging.Rows)
	f.RequireBalanced(t)
}

func TestCancelOrder(t *testing.T) {
	f := ledgertest.New(t)
	order, err := f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 1))
	require.NoError(t, err)

	cancelled, err := f.Services.Sales.CancelOrder(f.Ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, sales.OrderStatusCancelled, cancelled.Status)

	_, err = f.Services.Sales.CancelOrder(f.Ctx, order.Number)
	require.ErrorIs(t, err, sales.ErrOrderCancelled)
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
	require.ErrorIs(t, err, sales.ErrOrderCancelled)
	_, err = f.Services.Sales.CompleteOrder(f.Ctx, "DH999")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceivablesAging(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 20, ledgertest.MainWarehouse)

	sell := func(customer string, qty float64) sales.Order {
		in := widgetOrder(f, qty)
		in.Customer = customer
		in.Discount = ledgertest.D("0")
		in.TaxRate = ledgertest.D("0")
		order, err := f.Services.Sales.CreateOrder(f.Ctx, in)
		require.NoError(t, err)
		_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
		require.NoError(t, err)
		f.Clock.Advance(24 * time.Hour)
		return order
	}
	first := sell("Jane", 2)
	sell("Bob", 5)
	third := sell("Jane", 1)
	paid := sell("Carol", 1)
	_, err := f.Services.Sales.RecordOrderPayment(f.Ctx, third.Number, sales.PaymentInput{Amount: ledgertest.D("4")})
	require.NoError(t, err)
	_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, paid.Number, sales.PaymentInput{Amount: ledgertest.D("10")})
	require.NoError(t, err)
	_, err = f.Services.Sales.CreateOrder(f.Ctx, widgetOrder(f, 1))
	require.NoError(t, err)

	aging, err := f.Services.Sales.ReceivablesAging(f.Ctx)
	require.NoError(t, err)
	require.Len(t, aging.Rows, 2)
	require.Equal(t, "Bob", aging.Rows[0].Counterparty)
	require.True(t, aging.Rows[0].TotalDebt.Equal(ledgertest.D("50")))
	require.Equal(t, "Jane", aging.Rows[1].Counterparty)
	require.True(t, aging.Rows[1].TotalDebt.Equal(ledgertest.D("26")))
	require.ElementsMatch(t, []string{first.Number, third.Number}, aging.Rows[1].Documents)
	require.True(t, aging.Rows[1].OldestDate.Equal(first.Date))
	require.True(t, aging.Total.Equal(ledgertest.D("76")))
}
