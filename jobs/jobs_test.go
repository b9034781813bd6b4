package jobs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func busyLedger(t *testing.T) *ledgertest.Fixture {
	t.Helper()
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	_, err := f.Services.Sales.CreateAndCompleteOrder(f.Ctx, sales.OrderInput{
		Customer:  "Walk-in",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Widget.ID, Quantity: 2}},
		TaxRate:   ledgertest.D("10"),
	}, "")
	require.NoError(t, err)
	_, err = f.Services.Inventory.TransferStock(f.Ctx, inventory.TransferInput{
		FromWarehouse: ledgertest.MainWarehouse,
		ToWarehouse:   ledgertest.OutletWarehouse,
		Items:         []inventory.TransferLineInput{{ProductID: f.Widget.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	return f
}

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestGLIntegrityCleanLedger(t *testing.T) {
	f := busyLedger(t)
	job := jobs.NewGLIntegrityJob(f.Repos.Reports, nil, nil)

	report, err := job.Run(f.Ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), report.Findings)
	require.Equal(t, 3, report.Entries)
	require.True(t, report.TotalDebit.Equal(report.TotalCredit))
}

func TestGLIntegrityFindsUnbalancedEntry(t *testing.T) {
	f := busyLedger(t)
	err := f.Repos.Accounting.WithTx(f.Ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		cash, err := tx.GetAccountByCode(ctx, accounting.CodeCash)
		if err != nil {
			return err
		}
		equity, err := tx.GetAccountByCode(ctx, accounting.CodeOwnerEquity)
		if err != nil {
			return err
		}
		_, err = tx.InsertJournalEntry(ctx, accounting.JournalEntry{
			Number:       "JE900",
			Date:         f.Clock.Now(),
			SourceModule: accounting.SourceManual,
			Lines: []accounting.JournalLine{
				{AccountID: cash.ID, AccountCode: cash.Code, Debit: ledgertest.D("10"), Credit: ledgertest.D("0")},
				{AccountID: equity.ID, AccountCode: equity.Code, Debit: ledgertest.D("0"), Credit: ledgertest.D("4")},
			},
		})
		return err
	})
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	job := jobs.NewGLIntegrityJob(f.Repos.Reports, nil, metrics)
	report, err := job.Run(f.Ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Len(t, report.Findings, 2)
	require.True(t, strings.HasPrefix(report.Findings[0], "JE900: debit 10.00 != credit 4.00"))
	require.True(t, strings.HasPrefix(report.Findings[1], "trial balance"))

	task, err := jobs.NewGLIntegrityTask("test")
	require.NoError(t, err)
	require.NoError(t, job.Handle(f.Ctx, task), "findings do not fail the task")
	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_drift{check="journal"} 2`)
	require.Contains(t, body, `odyssey_jobs_total{status="ok",task="ledger:gl_integrity"} 1`)
}

func TestStockReconcile(t *testing.T) {
	f := busyLedger(t)
	job := jobs.NewStockReconcileJob(f.Repos.Inventory, nil, nil)

	drifts, err := job.Run(f.Ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	err = f.Repos.Inventory.WithTx(f.Ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		return tx.UpsertStock(ctx, inventory.StockItem{ProductID: f.Widget.ID, Warehouse: ledgertest.OutletWarehouse, Stock: 9})
	})
	require.NoError(t, err)

	drifts, err = job.Run(f.Ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, f.Widget.ID, drifts[0].ProductID)
	require.Equal(t, ledgertest.OutletWarehouse, drifts[0].Warehouse)
	require.InDelta(t, 9, drifts[0].Recorded, 1e-9)
	require.InDelta(t, 3, drifts[0].Rebuilt, 1e-9)
}

func TestHandlersRejectMalformedPayload(t *testing.T) {
	f := ledgertest.New(t)
	gl := jobs.NewGLIntegrityJob(f.Repos.Reports, nil, nil)
	stock := jobs.NewStockReconcileJob(f.Repos.Inventory, nil, nil)

	bad := asynq.NewTask(jobs.TaskGLIntegrity, []byte("{"))
	require.ErrorIs(t, gl.Handle(f.Ctx, bad), asynq.SkipRetry)
	require.ErrorIs(t, stock.Handle(f.Ctx, asynq.NewTask(jobs.TaskStockReconcile, []byte("nope"))), asynq.SkipRetry)

	require.NoError(t, gl.Handle(f.Ctx, asynq.NewTask(jobs.TaskGLIntegrity, nil)))
	task, err := jobs.NewStockReconcileTask("manual")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStockReconcile, task.Type())
	require.NoError(t, stock.Handle(f.Ctx, task))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	h := jobs.NewHandler(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router := chi.NewRouter()
	h.MountRoutes(router)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"queue":"default","pending":0}`, rr.Body.String())
}
