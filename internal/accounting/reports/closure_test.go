package reports_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
)

// Any interleaving of business events keeps every entry balanced and the
// trial balance closed. Rejected events must be rejected as user errors.
func TestMixedEventsKeepLedgerClosed(t *testing.T) {
	f := ledgertest.New(t, ledgertest.PostAdjustments())
	rng := rand.New(rand.NewPCG(7, 42))
	products := []inventory.Product{f.Widget, f.Gadget}
	warehouses := []string{ledgertest.MainWarehouse, ledgertest.OutletWarehouse}
	var orders, pos []string

	pick := func() (inventory.Product, string) {
		return products[rng.IntN(len(products))], warehouses[rng.IntN(len(warehouses))]
	}
	qty := func() float64 { return float64(1 + rng.IntN(6)) }

	for step := 0; step < 80; step++ {
		product, wh := pick()
		var err error
		switch rng.IntN(8) {
		case 0:
			var po procurement.PurchaseOrder
			po, err = f.Services.Procurement.CreatePurchaseOrder(f.Ctx, procurement.CreatePOInput{
				Supplier: "Acme", Warehouse: wh, TaxRate: ledgertest.D("10"),
				Items: []procurement.POLineInput{{ProductID: product.ID, Quantity: qty() * 3}},
			})
			if err == nil {
				_, err = f.Services.Procurement.ReceivePurchaseOrder(f.Ctx, po.Number)
				pos = append(pos, po.Number)
			}
		case 1:
			var order sales.Order
			order, err = f.Services.Sales.CreateOrder(f.Ctx, sales.OrderInput{
				Customer: "Jane", Warehouse: wh, TaxRate: ledgertest.D("10"), Discount: ledgertest.D("1"),
				Items: []sales.OrderLineInput{{ProductID: product.ID, Quantity: qty()}},
			})
			if err == nil {
				_, err = f.Services.Sales.CompleteOrder(f.Ctx, order.Number)
				orders = append(orders, order.Number)
			}
		case 2:
			_, err = f.Services.Sales.CreateAndCompleteOrder(f.Ctx, sales.OrderInput{
				Customer: "Walk-in", Warehouse: wh,
				Items: []sales.OrderLineInput{{ProductID: product.ID, Quantity: qty()}},
			}, shared.PaymentMethodBank)
		case 3:
			if len(orders) > 0 {
				_, err = f.Services.Sales.RecordOrderPayment(f.Ctx, orders[rng.IntN(len(orders))], sales.PaymentInput{
					Amount: decimal.NewFromInt(int64(5 + rng.IntN(30))),
				})
			}
		case 4:
			if len(orders) > 0 {
				order, getErr := f.Services.Sales.GetOrder(f.Ctx, orders[rng.IntN(len(orders))])
				require.NoError(t, getErr)
				item := order.Items[0]
				_, err = f.Services.Sales.CreateSalesReturn(f.Ctx, order.Number, sales.ReturnInput{
					Items:        []sales.ReturnLineInput{{ProductID: item.ProductID, Quantity: 1}},
					PreTaxRefund: item.Price,
				})
			}
		case 5:
			if len(pos) > 0 {
				_, err = f.Services.Procurement.RecordPurchasePayment(f.Ctx, pos[rng.IntN(len(pos))], procurement.PaymentInput{
					Amount: decimal.NewFromInt(int64(10 + rng.IntN(50))),
				})
			}
		case 6:
			_, err = f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
				FromWarehouse: wh, ToWarehouse: warehouses[(slices.Index(warehouses, wh)+1)%2],
				Items: []inventory.TransferLineInput{{ProductID: product.ID, Quantity: qty()}},
			})
		case 7:
			_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
				Warehouse: wh,
				Items:     []inventory.AdjustmentLineInput{{ProductID: product.ID, ActualStock: qty()}},
			})
		}
		if err != nil {
			require.Truef(t, errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict),
				"step %d: unexpected error kind: %v", step, err)
		}
		f.RequireBalanced(t)
		for _, p := range products {
			for _, w := range warehouses {
				require.GreaterOrEqual(t, f.Stock(t, p, w), 0.0, "step %d", step)
			}
		}
	}

	require.NotEmpty(t, pos)
	require.NotEmpty(t, orders)
	require.NotEmpty(t, f.Entries(t))
}
