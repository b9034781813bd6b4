// Package memory keeps the whole ledger in process memory. It backs the
// memory store driver and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store serialises transactions behind one mutex. Each transaction works on
// a copy of the state which replaces the committed state only when the
// callback succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time

	auditMu sync.Mutex
	audit   []shared.AuditLog
}

type stockKey struct {
	productID int64
	warehouse string
}

type state struct {
	ids         map[string]int64
	sequences   map[string]int64
	accounts    []accounting.Account
	entries     []accounting.JournalEntry
	products    []inventory.Product
	warehouses  []inventory.Warehouse
	stock       map[stockKey]inventory.StockItem
	movements   []inventory.Movement
	adjustments []inventory.Adjustment
	transfers   []inventory.Transfer
	orders      []sales.Order
	returns     []sales.SalesReturn
	purchases   []procurement.PurchaseOrder
	boms        []manufacturing.BOM
	workOrders  []manufacturing.WorkOrder
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state: &state{
			ids:       make(map[string]int64),
			sequences: make(map[string]int64),
			stock:     make(map[stockKey]inventory.StockItem),
		},
		now: time.Now,
	}
}

// WithNow overrides the clock used for created/updated timestamps.
func (s *Store) WithNow(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(ctx, &Tx{st: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Record implements shared.AuditPort.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns recorded audit entries in insertion order.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return slices.Clone(s.audit)
}

// Accounting adapts the store to accounting.RepositoryPort.
func (s *Store) Accounting() AccountingRepo { return AccountingRepo{s} }

// Inventory adapts the store to inventory.RepositoryPort.
func (s *Store) Inventory() InventoryRepo { return InventoryRepo{s} }

// Sales adapts the store to sales.RepositoryPort.
func (s *Store) Sales() SalesRepo { return SalesRepo{s} }

// Procurement adapts the store to procurement.RepositoryPort.
func (s *Store) Procurement() ProcurementRepo { return ProcurementRepo{s} }

// Manufacturing adapts the store to manufacturing.RepositoryPort.
func (s *Store) Manufacturing() ManufacturingRepo { return ManufacturingRepo{s} }

// Reports adapts the store to reports.RepositoryPort.
func (s *Store) Reports() ReportsRepo { return ReportsRepo{s} }

// AccountingRepo runs accounting transactions against the store.
type AccountingRepo struct{ s *Store }

// WithTx runs fn in one all-or-nothing transaction.
func (r AccountingRepo) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// InventoryRepo runs inventory transactions against the store.
type InventoryRepo struct{ s *Store }

// WithTx runs fn in one all-or-nothing transaction.
func (r InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// SalesRepo runs sales transactions against the store.
type SalesRepo struct{ s *Store }

// WithTx runs fn in one all-or-nothing transaction.
func (r SalesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// ProcurementRepo runs procurement transactions against the store.
type ProcurementRepo struct{ s *Store }

// WithTx runs fn in one all-or-nothing transaction.
func (r ProcurementRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// ManufacturingRepo runs manufacturing transactions against the store.
type ManufacturingRepo struct{ s *Store }

// WithTx runs fn in one all-or-nothing transaction.
func (r ManufacturingRepo) WithTx(ctx context.Context, fn func(context.Context, manufacturing.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// ReportsRepo serves report snapshots from the store.
type ReportsRepo struct{ s *Store }

// WithSnapshot hands fn a read view of the committed state. Anything fn
// writes through the view is discarded.
func (r ReportsRepo) WithSnapshot(ctx context.Context, fn func(context.Context, reports.Reader) error) error {
	r.s.mu.Lock()
	snapshot := r.s.state.clone()
	r.s.mu.Unlock()
	return fn(ctx, &Tx{st: snapshot, now: r.s.now})
}

func (st *state) clone() *state {
	out := &state{
		ids:         make(map[string]int64, len(st.ids)),
		sequences:   make(map[string]int64, len(st.sequences)),
		accounts:    slices.Clone(st.accounts),
		entries:     make([]accounting.JournalEntry, len(st.entries)),
		products:    slices.Clone(st.products),
		warehouses:  slices.Clone(st.warehouses),
		stock:       make(map[stockKey]inventory.StockItem, len(st.stock)),
		movements:   slices.Clone(st.movements),
		adjustments: make([]inventory.Adjustment, len(st.adjustments)),
		transfers:   make([]inventory.Transfer, len(st.transfers)),
		orders:      make([]sales.Order, len(st.orders)),
		returns:     make([]sales.SalesReturn, len(st.returns)),
		purchases:   make([]procurement.PurchaseOrder, len(st.purchases)),
		boms:        make([]manufacturing.BOM, len(st.boms)),
		workOrders:  make([]manufacturing.WorkOrder, len(st.workOrders)),
	}
	for k, v := range st.ids {
		out.ids[k] = v
	}
	for k, v := range st.sequences {
		out.sequences[k] = v
	}
	for k, v := range st.stock {
		out.stock[k] = v
	}
	for i, e := range st.entries {
		out.entries[i] = cloneEntry(e)
	}
	for i, a := range st.adjustments {
		a.Items = slices.Clone(a.Items)
		out.adjustments[i] = a
	}
	for i, t := range st.transfers {
		t.Items = slices.Clone(t.Items)
		out.transfers[i] = t
	}
	for i, o := range st.orders {
		out.orders[i] = cloneOrder(o)
	}
	for i, r := range st.returns {
		r.Items = slices.Clone(r.Items)
		out.returns[i] = r
	}
	for i, po := range st.purchases {
		out.purchases[i] = clonePurchase(po)
	}
	for i, b := range st.boms {
		b.Components = slices.Clone(b.Components)
		out.boms[i] = b
	}
	for i, wo := range st.workOrders {
		out.workOrders[i] = cloneWorkOrder(wo)
	}
	return out
}

func cloneEntry(e accounting.JournalEntry) accounting.JournalEntry {
	e.Lines = slices.Clone(e.Lines)
	return e
}

func cloneOrder(o sales.Order) sales.Order {
	o.Items = slices.Clone(o.Items)
	if o.CompletedAt != nil {
		at := *o.CompletedAt
		o.CompletedAt = &at
	}
	return o
}

func clonePurchase(po procurement.PurchaseOrder) procurement.PurchaseOrder {
	po.Items = slices.Clone(po.Items)
	if po.ReceivedAt != nil {
		at := *po.ReceivedAt
		po.ReceivedAt = &at
	}
	return po
}

func cloneWorkOrder(wo manufacturing.WorkOrder) manufacturing.WorkOrder {
	wo.Steps = slices.Clone(wo.Steps)
	if wo.CompletedAt != nil {
		at := *wo.CompletedAt
		wo.CompletedAt = &at
	}
	return wo
}
