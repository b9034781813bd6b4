package reports_test

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func sellWidgets(t *testing.T, f *ledgertest.Fixture, qty float64) {
	t.Helper()
	_, err := f.Services.Sales.CreateAndCompleteOrder(f.Ctx, sales.OrderInput{
		Customer:  "Walk-in",
		Warehouse: ledgertest.MainWarehouse,
		Items:     []sales.OrderLineInput{{ProductID: f.Widget.ID, Quantity: qty}},
		TaxRate:   ledgertest.D("10"),
	}, "")
	require.NoError(t, err)
}

func TestReportsOverLedger(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	sellWidgets(t, f, 4)

	w, err := f.Services.Reports.ResolvePeriod(reports.PeriodMonth, time.Time{}, time.Time{})
	require.NoError(t, err)
	pl, err := f.Services.Reports.ProfitAndLoss(f.Ctx, w)
	require.NoError(t, err)
	require.True(t, pl.Revenue.Total.Equal(ledgertest.D("40")))
	require.True(t, pl.COGS.Equal(ledgertest.D("24")))
	require.True(t, pl.NetProfit.Equal(ledgertest.D("16")))

	bs, err := f.Services.Reports.BalanceSheet(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	require.True(t, bs.CurrentEarnings.Equal(ledgertest.D("16")))
	require.True(t, bs.Assets.Total.Equal(ledgertest.D("80")))

	gl, err := f.Services.Reports.GeneralLedger(f.Ctx, reports.Window{}, accounting.CodeInventory)
	require.NoError(t, err)
	require.Len(t, gl.Accounts, 1)
	require.Len(t, gl.Accounts[0].Lines, 2)
	require.True(t, gl.Accounts[0].Closing.Equal(ledgertest.D("36")))

	f.Clock.Advance(45 * 24 * time.Hour)
	next, err := f.Services.Reports.ResolvePeriod("", time.Time{}, time.Time{})
	require.NoError(t, err)
	later, err := f.Services.Reports.ProfitAndLoss(f.Ctx, next)
	require.NoError(t, err)
	require.True(t, later.Revenue.Total.IsZero(), "last month's sales fall outside the window")
	f.RequireBalanced(t)
}

func TestCachedReportsFollowNewPostings(t *testing.T) {
	f := ledgertest.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := reports.NewService(f.Repos.Reports, reports.NewCache(client, time.Minute), nil)

	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	before, err := svc.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, before.TotalDebit.Equal(ledgertest.D("60")))
	require.Len(t, mr.Keys(), 1)

	again, err := svc.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, again.TotalDebit.Equal(before.TotalDebit))
	require.Len(t, mr.Keys(), 1, "unchanged ledger is served from cache")

	sellWidgets(t, f, 1)
	after, err := svc.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, after.Balanced())
	require.False(t, after.TotalDebit.Equal(before.TotalDebit))
	require.Len(t, mr.Keys(), 2)
}

func TestCachedReportsFollowChartEdits(t *testing.T) {
	f := ledgertest.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := reports.NewService(f.Repos.Reports, reports.NewCache(client, time.Minute), nil)

	rent, err := f.Services.Accounting.CreateAccount(f.Ctx, accounting.AccountInput{Code: "642", Name: "Rent", Type: accounting.AccountTypeExpense})
	require.NoError(t, err)
	_, err = f.Services.Accounting.CreateJournalEntry(f.Ctx, accounting.ManualEntryInput{
		Description: "March rent",
		Lines: []accounting.PostingLineInput{
			accounting.Debit("642", ledgertest.D("50")),
			accounting.Credit(accounting.CodeCash, ledgertest.D("50")),
		},
	})
	require.NoError(t, err)

	nameOf := func(tb reports.TrialBalance, code string) string {
		for _, g := range tb.Groups {
			for _, a := range g.Accounts {
				if a.Code == code {
					return a.Name
				}
			}
		}
		return ""
	}
	before, err := svc.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Rent", nameOf(before, "642"))

	_, err = f.Services.Accounting.UpdateAccount(f.Ctx, rent.ID, accounting.AccountInput{Name: "Office rent"})
	require.NoError(t, err)
	after, err := svc.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Office rent", nameOf(after, "642"), "a renamed account is not served from cache")
	require.Len(t, mr.Keys(), 2)
}

func TestConcurrentReportBuilds(t *testing.T) {
	f := ledgertest.New(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)
	sellWidgets(t, f, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb, err := f.Services.Reports.TrialBalance(f.Ctx, time.Time{})
			if assert.NoError(t, err) {
				assert.True(t, tb.Balanced())
			}
		}()
	}
	wg.Wait()
}
