package inventory_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestAdjustInventoryRecordsDifferences(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	entriesBefore := len(f.Entries(t))

	res, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Notes:     "cycle count",
		Items: []inventory.AdjustmentLineInput{
			{ProductID: f.Widget.ID, ActualStock: 7},
			{ProductID: f.Gadget.ID, ActualStock: 0},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "ADJ001", res.Adjustment.Number)
	require.Len(t, res.Adjustment.Items, 1, "matching counts are dropped")
	item := res.Adjustment.Items[0]
	require.InDelta(t, 10, item.SystemStock, 1e-9)
	require.InDelta(t, 7, item.ActualStock, 1e-9)
	require.InDelta(t, -3, item.Difference, 1e-9)

	require.Len(t, res.Movements, 1)
	require.Equal(t, inventory.MovementAdjustment, res.Movements[0].Type)
	require.Equal(t, "ADJ001", res.Movements[0].ReferenceID)
	require.Equal(t, ledgertest.MainWarehouse, res.Movements[0].FromWarehouse)
	require.InDelta(t, 7, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	require.Empty(t, res.JournalEntries)
	require.Len(t, f.Entries(t), entriesBefore, "adjustments post nothing unless enabled")
}

func TestAdjustInventoryWithoutDifferenceIsRejected(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 4, ledgertest.MainWarehouse)

	_, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 4}},
	})
	require.ErrorIs(t, err, inventory.ErrNoDifference)

	res, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, "ADJ001", res.Adjustment.Number, "a rejected adjustment does not consume a number")
}

func TestAdjustInventoryValidation(t *testing.T) {
	f := ledgertest.New(t)

	_, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{Warehouse: ledgertest.MainWarehouse})
	require.ErrorIs(t, err, inventory.ErrEmptyDocument)

	_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: -1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: "Nowhere",
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 1}},
	})
	require.ErrorIs(t, err, inventory.ErrWarehouseNotFound)

	_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: 999, ActualStock: 1}},
	})
	require.ErrorIs(t, err, inventory.ErrUnknownProduct)
}

func TestAdjustInventoryUsesStoredWarehouseName(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	res, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: "main",
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 7}},
	})
	require.NoError(t, err)
	require.Equal(t, ledgertest.MainWarehouse, res.Adjustment.Warehouse)
	require.InDelta(t, 10, res.Adjustment.Items[0].SystemStock, 1e-9)
	require.InDelta(t, -3, res.Adjustment.Items[0].Difference, 1e-9)
	require.Equal(t, ledgertest.MainWarehouse, res.Movements[0].FromWarehouse)
	require.InDelta(t, 7, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	stock, err := f.Services.Inventory.ListStock(f.Ctx, inventory.MovementFilter{ProductID: f.Widget.ID})
	require.NoError(t, err)
	for _, row := range stock {
		require.Equal(t, ledgertest.MainWarehouse, row.Warehouse, "no row under another spelling")
	}
}

func TestAdjustInventoryRejectsProductCountedTwice(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 50, ledgertest.MainWarehouse)

	_, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items: []inventory.AdjustmentLineInput{
			{ProductID: f.Widget.ID, ActualStock: 45},
			{ProductID: f.Widget.ID, ActualStock: 45},
		},
	})
	require.ErrorIs(t, err, inventory.ErrDuplicateCount)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.InDelta(t, 50, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 45}},
	})
	require.NoError(t, err)
	require.InDelta(t, 45, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
}

func TestAdjustInventoryPostsShrinkageAndOverage(t *testing.T) {
	f := ledgertest.New(t, ledgertest.PostAdjustments())
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	res, err := f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.MainWarehouse,
		Items: []inventory.AdjustmentLineInput{
			{ProductID: f.Widget.ID, ActualStock: 7},
			{ProductID: f.Gadget.ID, ActualStock: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.JournalEntries, 2)

	loss := res.JournalEntries[0]
	require.Equal(t, accounting.SourceInventory, loss.SourceModule)
	require.Equal(t, res.Adjustment.Number, loss.ReferenceID)
	require.Equal(t, accounting.CodeOtherExpense, loss.Lines[0].AccountCode)
	require.True(t, loss.Lines[0].Debit.Equal(ledgertest.D("18")))
	require.Equal(t, accounting.CodeInventory, loss.Lines[1].AccountCode)

	gain := res.JournalEntries[1]
	require.Equal(t, accounting.CodeInventory, gain.Lines[0].AccountCode)
	require.True(t, gain.Lines[0].Debit.Equal(ledgertest.D("40")))
	require.Equal(t, accounting.CodeOtherIncome, gain.Lines[1].AccountCode)

	require.True(t, f.Balance(t, accounting.CodeInventory).Equal(ledgertest.D("82")))
	f.RequireBalanced(t)
}

func TestTransferStockMovesBothSides(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	res, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, "TRF001", res.Transfer.Number)
	require.Len(t, res.Movements, 2)

	out, in := res.Movements[0], res.Movements[1]
	require.Equal(t, inventory.MovementTransferOut, out.Type)
	require.InDelta(t, -4, out.QuantityChange, 1e-9)
	require.Equal(t, ledgertest.MainWarehouse, out.FromWarehouse)
	require.Equal(t, ledgertest.OutletWarehouse, out.ToWarehouse)
	require.Equal(t, inventory.MovementTransferIn, in.Type)
	require.InDelta(t, 4, in.QuantityChange, 1e-9)
	require.Equal(t, ledgertest.OutletWarehouse, in.ToWarehouse)
	require.Equal(t, ledgertest.MainWarehouse, in.FromWarehouse)
	require.Equal(t, out.ReferenceID, in.ReferenceID)

	require.InDelta(t, 6, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	require.InDelta(t, 4, f.Stock(t, f.Widget, ledgertest.OutletWarehouse), 1e-9)

	moves, err := f.Services.Inventory.ListMovements(f.Ctx, inventory.MovementFilter{ReferenceID: "TRF001"})
	require.NoError(t, err)
	require.Len(t, moves, 2)
}

func TestTransferStockRejectsShortageAtomically(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	_, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items: []inventory.TransferLineInput{
			{ProductID: f.Widget.ID, Quantity: 4},
			{ProductID: f.Gadget.ID, Quantity: 1},
		},
	})
	require.Error(t, err)
	require.True(t, inventory.IsShortage(err))
	require.ErrorIs(t, err, shared.ErrValidation)

	var shortage *inventory.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, f.Gadget.ID, shortage.ProductID)

	require.InDelta(t, 10, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	transfers, err := f.Services.Inventory.ListTransfers(f.Ctx)
	require.NoError(t, err)
	require.Empty(t, transfers)
}

func TestTransferStockSumsDuplicateLines(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 5, ledgertest.MainWarehouse)

	_, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items: []inventory.TransferLineInput{
			{ProductID: f.Widget.ID, Quantity: 3},
			{ProductID: f.Widget.ID, Quantity: 3},
		},
	})
	require.True(t, inventory.IsShortage(err))
}

func TestTransferStockUsesStoredWarehouseNames(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 5, ledgertest.MainWarehouse)

	res, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: "MAIN",
		ToWarehouse:   "outlet",
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, ledgertest.MainWarehouse, res.Transfer.FromWarehouse)
	require.Equal(t, ledgertest.OutletWarehouse, res.Transfer.ToWarehouse)
	require.InDelta(t, 3, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	require.InDelta(t, 2, f.Stock(t, f.Widget, ledgertest.OutletWarehouse), 1e-9)
}

func TestTransferStockValidation(t *testing.T) {
	f := ledgertest.New(t)

	_, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   "main",
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, inventory.ErrSameWarehouse)

	_, err = f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 0}},
	})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   "Annex",
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransferStockAllowsNegativeWhenConfigured(t *testing.T) {
	f := ledgertest.New(t, ledgertest.AllowNegativeStock())

	_, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.InDelta(t, -3, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)
	require.InDelta(t, 3, f.Stock(t, f.Widget, ledgertest.OutletWarehouse), 1e-9)
}

func TestMasterDataUniqueness(t *testing.T) {
	f := ledgertest.New(t)

	_, err := f.Services.Inventory.CreateWarehouse(f.Ctx, " main ")
	require.ErrorIs(t, err, inventory.ErrDuplicateWarehouse)

	_, err = f.Services.Inventory.CreateProduct(f.Ctx, inventory.ProductInput{SKU: "WID-1", Name: "Another"})
	require.ErrorIs(t, err, inventory.ErrDuplicateSKU)

	_, err = f.Services.Inventory.CreateProduct(f.Ctx, inventory.ProductInput{SKU: "NEG", Name: "Negative", Cost: ledgertest.D("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	warehouses, err := f.Services.Inventory.ListWarehouses(f.Ctx)
	require.NoError(t, err)
	require.Len(t, warehouses, 2)
}

func TestStockMatchesMovementLog(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	_, err := f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 2.5}},
	})
	require.NoError(t, err)
	_, err = f.Services.Inventory.AdjustInventory(f.Ctx, inventory.AdjustmentInput{
		Warehouse: ledgertest.OutletWarehouse,
		Items:     []inventory.AdjustmentLineInput{{ProductID: f.Widget.ID, ActualStock: 2}},
	})
	require.NoError(t, err)

	moves, err := f.Services.Inventory.ListMovements(f.Ctx, inventory.MovementFilter{})
	require.NoError(t, err)
	stock, err := f.Services.Inventory.ListStock(f.Ctx, inventory.MovementFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, stock)
	for _, item := range stock {
		require.InDelta(t, item.Stock, inventory.StockFromMovements(moves, item.ProductID, item.Warehouse), 1e-9)
	}
}
