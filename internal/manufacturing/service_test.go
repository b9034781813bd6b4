package manufacturing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func breadBOM(t *testing.T, f *ledgertest.Fixture) manufacturing.BOM {
	t.Helper()
	bom, err := f.Services.Manufacturing.CreateBOM(f.Ctx, manufacturing.BOMInput{
		ProductID: f.Bread.ID,
		Components: []manufacturing.ComponentInput{
			{ProductID: f.Flour.ID, Quantity: 0.5, WastePercent: 10},
			{ProductID: f.Sugar.ID, Quantity: 0.1},
		},
	})
	require.NoError(t, err)
	return bom
}

func TestCreateBOM(t *testing.T) {
	f := ledgertest.New(t)
	bom := breadBOM(t, f)
	require.Equal(t, "BOM001", bom.Number)
	require.Equal(t, "Bread", bom.ProductName)
	require.Len(t, bom.Components, 2)
	require.Equal(t, "Flour", bom.Components[0].ProductName)

	cases := map[string]struct {
		in   manufacturing.BOMInput
		want error
	}{
		"empty": {
			in:   manufacturing.BOMInput{ProductID: f.Bread.ID},
			want: manufacturing.ErrEmptyBOM,
		},
		"self component": {
			in:   manufacturing.BOMInput{ProductID: f.Bread.ID, Components: []manufacturing.ComponentInput{{ProductID: f.Bread.ID, Quantity: 1}}},
			want: manufacturing.ErrSelfComponent,
		},
		"zero quantity": {
			in:   manufacturing.BOMInput{ProductID: f.Bread.ID, Components: []manufacturing.ComponentInput{{ProductID: f.Flour.ID}}},
			want: manufacturing.ErrInvalidQuantity,
		},
		"negative waste": {
			in:   manufacturing.BOMInput{ProductID: f.Bread.ID, Components: []manufacturing.ComponentInput{{ProductID: f.Flour.ID, Quantity: 1, WastePercent: -1}}},
			want: manufacturing.ErrInvalidWaste,
		},
		"unknown material": {
			in:   manufacturing.BOMInput{ProductID: f.Bread.ID, Components: []manufacturing.ComponentInput{{ProductID: 999, Quantity: 1}}},
			want: inventory.ErrUnknownProduct,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.Services.Manufacturing.CreateBOM(f.Ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	boms, err := f.Services.Manufacturing.ListBOMs(f.Ctx)
	require.NoError(t, err)
	require.Len(t, boms, 1)
}

func TestCreateWorkOrderEstimatesCost(t *testing.T) {
	f := ledgertest.New(t)
	bom := breadBOM(t, f)

	wo, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{
		BOMNumber: bom.Number,
		Quantity:  10,
		Warehouse: "main",
	})
	require.NoError(t, err)
	require.Equal(t, "WO001", wo.Number)
	require.Equal(t, ledgertest.MainWarehouse, wo.Warehouse)
	require.Equal(t, manufacturing.WorkOrderStatusPlanned, wo.Status)
	require.True(t, wo.EstimatedCost.Equal(ledgertest.D("12.5")), wo.EstimatedCost.String())
	require.True(t, wo.ActualCost.IsZero())
	require.Len(t, wo.Steps, len(manufacturing.DefaultSteps))
	for _, step := range wo.Steps {
		require.False(t, step.Completed)
	}

	custom, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{
		BOMNumber: bom.Number,
		Quantity:  1,
		Warehouse: ledgertest.MainWarehouse,
		Steps:     []string{"Mix", "Bake"},
	})
	require.NoError(t, err)
	require.Len(t, custom.Steps, 2)

	_, err = f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: "BOM404", Quantity: 1, Warehouse: ledgertest.MainWarehouse})
	require.ErrorIs(t, err, manufacturing.ErrBOMNotFound)
	_, err = f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 0, Warehouse: ledgertest.MainWarehouse})
	require.ErrorIs(t, err, manufacturing.ErrInvalidQuantity)
	_, err = f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 1, Warehouse: "Annex"})
	require.ErrorIs(t, err, inventory.ErrWarehouseNotFound)
}

func TestCompleteWorkOrder(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Flour, 6, ledgertest.MainWarehouse)
	f.Receive(t, f.Sugar, 1, ledgertest.MainWarehouse)
	entries := len(f.Entries(t))
	bom := breadBOM(t, f)
	wo, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 10, Warehouse: ledgertest.MainWarehouse})
	require.NoError(t, err)

	res, err := f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{})
	require.NoError(t, err)
	require.Equal(t, manufacturing.WorkOrderStatusCompleted, res.WorkOrder.Status)
	require.NotNil(t, res.WorkOrder.CompletedAt)
	require.True(t, res.WorkOrder.ActualCost.Equal(res.WorkOrder.EstimatedCost))
	for _, step := range res.WorkOrder.Steps {
		require.True(t, step.Completed)
	}

	require.Len(t, res.Movements, 3)
	require.Equal(t, inventory.MovementProductionIssue, res.Movements[0].Type)
	require.InDelta(t, -5.5, res.Movements[0].QuantityChange, 1e-9)
	require.Equal(t, inventory.MovementProductionIssue, res.Movements[1].Type)
	require.InDelta(t, -1, res.Movements[1].QuantityChange, 1e-9)
	require.Equal(t, inventory.MovementProductionReceipt, res.Movements[2].Type)
	require.Equal(t, wo.Number, res.Movements[2].ReferenceID)

	require.InDelta(t, 0.5, f.Stock(t, f.Flour, ledgertest.MainWarehouse), 1e-9)
	require.InDelta(t, 0, f.Stock(t, f.Sugar, ledgertest.MainWarehouse), 1e-9)
	require.InDelta(t, 10, f.Stock(t, f.Bread, ledgertest.MainWarehouse), 1e-9)
	require.Len(t, f.Entries(t), entries, "production posts no journal entries")

	_, err = f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{})
	require.ErrorIs(t, err, manufacturing.ErrAlreadyCompleted)
	_, err = f.Services.Manufacturing.CancelWorkOrder(f.Ctx, wo.Number)
	require.ErrorIs(t, err, manufacturing.ErrAlreadyCompleted)
	require.InDelta(t, 10, f.Stock(t, f.Bread, ledgertest.MainWarehouse), 1e-9)
}

func TestCompleteWorkOrderRecordsActualCost(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Flour, 1, ledgertest.MainWarehouse)
	f.Receive(t, f.Sugar, 1, ledgertest.MainWarehouse)
	bom := breadBOM(t, f)
	wo, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 1, Warehouse: ledgertest.MainWarehouse})
	require.NoError(t, err)

	negative := ledgertest.D("-1")
	_, err = f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{ActualCost: &negative})
	require.ErrorIs(t, err, manufacturing.ErrInvalidCost)

	actual := ledgertest.D("13.456")
	res, err := f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{ActualCost: &actual})
	require.NoError(t, err)
	require.True(t, res.WorkOrder.ActualCost.Equal(ledgertest.D("13.46")))

	got, err := f.Services.Manufacturing.GetWorkOrder(f.Ctx, wo.Number)
	require.NoError(t, err)
	require.True(t, got.ActualCost.Equal(ledgertest.D("13.46")))
}

func TestCompleteWorkOrderReportsFirstShortMaterial(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Flour, 5, ledgertest.MainWarehouse)
	bom := breadBOM(t, f)
	wo, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 10, Warehouse: ledgertest.MainWarehouse})
	require.NoError(t, err)

	_, err = f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{})
	require.ErrorIs(t, err, manufacturing.ErrInsufficientMaterial)
	var short *manufacturing.InsufficientMaterialError
	require.True(t, errors.As(err, &short))
	require.Equal(t, f.Flour.ID, short.ProductID)
	require.InDelta(t, 5.5, short.Required, 1e-9)
	require.InDelta(t, 5, short.Available, 1e-9)
	require.InDelta(t, 0.5, short.Shortfall(), 1e-9)

	require.InDelta(t, 5, f.Stock(t, f.Flour, ledgertest.MainWarehouse), 1e-9)
	require.Zero(t, f.Stock(t, f.Bread, ledgertest.MainWarehouse))
	got, err := f.Services.Manufacturing.GetWorkOrder(f.Ctx, wo.Number)
	require.NoError(t, err)
	require.Equal(t, manufacturing.WorkOrderStatusPlanned, got.Status)
}

func TestCancelWorkOrder(t *testing.T) {
	f := ledgertest.New(t)
	bom := breadBOM(t, f)
	wo, err := f.Services.Manufacturing.CreateWorkOrder(f.Ctx, manufacturing.WorkOrderInput{BOMNumber: bom.Number, Quantity: 2, Warehouse: ledgertest.OutletWarehouse})
	require.NoError(t, err)

	cancelled, err := f.Services.Manufacturing.CancelWorkOrder(f.Ctx, wo.Number)
	require.NoError(t, err)
	require.Equal(t, manufacturing.WorkOrderStatusCancelled, cancelled.Status)

	_, err = f.Services.Manufacturing.CompleteWorkOrder(f.Ctx, wo.Number, manufacturing.CompletionInput{})
	require.ErrorIs(t, err, manufacturing.ErrCancelled)
	_, err = f.Services.Manufacturing.CancelWorkOrder(f.Ctx, wo.Number)
	require.ErrorIs(t, err, manufacturing.ErrCancelled)

	orders, err := f.Services.Manufacturing.ListWorkOrders(f.Ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}
