// Package ledgertest assembles every service over an in-memory store for
// tests, with a seeded chart of accounts, two warehouses and a small catalogue.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// Warehouses seeded by New.
const (
	MainWarehouse   = "Main"
	OutletWarehouse = "Outlet"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Fixture bundles the store, the services and the seeded catalogue.
type Fixture struct {
	Ctx      context.Context
	Clock    *Clock
	Store    *memory.Store
	Repos    app.Repositories
	Services *app.Services

	Widget inventory.Product
	Gadget inventory.Product
	Flour  inventory.Product
	Sugar  inventory.Product
	Bread  inventory.Product
}

// Option tweaks the fixture configuration.
type Option func(*app.Config)

// AllowNegativeStock lets stock fall below zero.
func AllowNegativeStock() Option {
	return func(cfg *app.Config) { cfg.AllowNegativeStock = true }
}

// PostAdjustments enables journal postings for stock counts.
func PostAdjustments() Option {
	return func(cfg *app.Config) { cfg.PostAdjustmentJournals = true }
}

// New builds a fixture whose clock starts at 2024-03-15 09:00 UTC.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()
	cfg := &app.Config{StoreDriver: app.StoreDriverMemory}
	for _, opt := range opts {
		opt(cfg)
	}
	clock := &Clock{now: time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)}
	store := memory.New().WithNow(clock.Now)
	repos := app.MemoryRepositories(store)
	services := app.NewServices(repos, app.ServiceDeps{Config: cfg})
	services.Accounting.WithNow(clock.Now)
	services.Reports.WithNow(clock.Now)
	services.Inventory.WithNow(clock.Now)
	services.Sales.WithNow(clock.Now)
	services.Procurement.WithNow(clock.Now)
	services.Manufacturing.WithNow(clock.Now)

	f := &Fixture{Ctx: context.Background(), Clock: clock, Store: store, Repos: repos, Services: services}
	_, err := services.Accounting.SeedChart(f.Ctx)
	require.NoError(t, err)
	for _, name := range []string{MainWarehouse, OutletWarehouse} {
		_, err := services.Inventory.CreateWarehouse(f.Ctx, name)
		require.NoError(t, err)
	}
	f.Widget = f.product(t, "WID-1", "Widget", "6", "10", 5)
	f.Gadget = f.product(t, "GAD-1", "Gadget", "20", "35", 0)
	f.Flour = f.product(t, "FLR-1", "Flour", "2", "3", 0)
	f.Sugar = f.product(t, "SUG-1", "Sugar", "1.5", "2", 0)
	f.Bread = f.product(t, "BRD-1", "Bread", "0", "8", 0)
	return f
}

func (f *Fixture) product(t testing.TB, sku, name, cost, price string, minStock float64) inventory.Product {
	t.Helper()
	p, err := f.Services.Inventory.CreateProduct(f.Ctx, inventory.ProductInput{
		SKU:      sku,
		Name:     name,
		Cost:     decimal.RequireFromString(cost),
		Price:    decimal.RequireFromString(price),
		MinStock: minStock,
	})
	require.NoError(t, err)
	return p
}

// Receive brings qty units of product into warehouse through a received
// purchase order valued at the product cost.
func (f *Fixture) Receive(t testing.TB, product inventory.Product, qty float64, warehouse string) procurement.PurchaseOrder {
	t.Helper()
	po, err := f.Services.Procurement.CreatePurchaseOrder(f.Ctx, procurement.CreatePOInput{
		Supplier:  "Acme Supply",
		Warehouse: warehouse,
		Items:     []procurement.POLineInput{{ProductID: product.ID, Quantity: qty}},
	})
	require.NoError(t, err)
	res, err := f.Services.Procurement.ReceivePurchaseOrder(f.Ctx, po.Number)
	require.NoError(t, err)
	return res.PurchaseOrder
}

// Stock returns the recorded quantity of product in warehouse.
func (f *Fixture) Stock(t testing.TB, product inventory.Product, warehouse string) float64 {
	t.Helper()
	items, err := f.Services.Inventory.ListStock(f.Ctx, inventory.MovementFilter{ProductID: product.ID, Warehouse: warehouse})
	require.NoError(t, err)
	if len(items) == 0 {
		return 0
	}
	return items[0].Stock
}

// Entries returns every journal entry in posting order.
func (f *Fixture) Entries(t testing.TB) []accounting.JournalEntry {
	t.Helper()
	var out []accounting.JournalEntry
	err := f.Repos.Accounting.WithTx(f.Ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		var err error
		out, err = tx.ListJournalEntries(ctx)
		return err
	})
	require.NoError(t, err)
	return out
}

// RequireBalanced asserts every entry balances and the trial balance agrees.
func (f *Fixture) RequireBalanced(t testing.TB) {
	t.Helper()
	for _, entry := range f.Entries(t) {
		debit, credit := entry.Totals()
		require.Truef(t, debit.Equal(credit), "%s: debit %s credit %s", entry.Number, debit, credit)
	}
	tb, err := f.Services.Reports.TrialBalance(f.Ctx, time.Time{})
	require.NoError(t, err)
	require.Truef(t, tb.Balanced(), "trial balance debit %s credit %s", tb.TotalDebit, tb.TotalCredit)
}

// Balance returns the signed balance of the account with code.
func (f *Fixture) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	balances, err := f.Services.Reports.AccountBalances(f.Ctx, reports.Window{})
	require.NoError(t, err)
	for _, b := range balances {
		if b.Code == code {
			return b.Balance()
		}
	}
	t.Fatalf("account %s not found", code)
	return decimal.Zero
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
