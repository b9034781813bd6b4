package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
)

// Tx is one open transaction. It implements the TxRepository of every
// module so a processor sees stock, documents and the journal together.
type Tx struct {
	st  *state
	now func() time.Time
}

func (t *Tx) nextID(table string) int64 {
	t.st.ids[table]++
	return t.st.ids[table]
}

// NextValue implements shared.Sequencer.
func (t *Tx) NextValue(_ context.Context, prefix string) (int64, error) {
	t.st.sequences[prefix]++
	return t.st.sequences[prefix], nil
}

// Accounts and journal.

// GetAccountByCode looks an account up by chart code.
func (t *Tx) GetAccountByCode(_ context.Context, code string) (accounting.Account, error) {
	for _, a := range t.st.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

// GetAccountByID looks an account up by id.
func (t *Tx) GetAccountByID(_ context.Context, id int64) (accounting.Account, error) {
	for _, a := range t.st.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

// ListAccounts returns the chart ordered by code.
func (t *Tx) ListAccounts(context.Context) ([]accounting.Account, error) {
	out := slices.Clone(t.st.accounts)
	slices.SortFunc(out, func(a, b accounting.Account) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

// InsertAccount adds an account; codes are unique.
func (t *Tx) InsertAccount(_ context.Context, account accounting.Account) (accounting.Account, error) {
	for _, a := range t.st.accounts {
		if a.Code == account.Code {
			return accounting.Account{}, fmt.Errorf("%s: %w", account.Code, accounting.ErrDuplicateCode)
		}
	}
	account.ID = t.nextID("accounts")
	account.CreatedAt = t.now()
	account.UpdatedAt = account.CreatedAt
	t.st.accounts = append(t.st.accounts, account)
	return account, nil
}

// UpdateAccount replaces the stored account with the same id.
func (t *Tx) UpdateAccount(_ context.Context, account accounting.Account) (accounting.Account, error) {
	for i, a := range t.st.accounts {
		if a.ID == account.ID {
			account.UpdatedAt = t.now()
			t.st.accounts[i] = account
			return account, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

// DeleteAccount removes an account by id.
func (t *Tx) DeleteAccount(_ context.Context, id int64) error {
	for i, a := range t.st.accounts {
		if a.ID == id && !a.IsSystem {
			t.st.accounts = slices.Delete(t.st.accounts, i, i+1)
			return nil
		}
	}
	return accounting.ErrAccountNotFound
}

// AccountHasPostings reports whether any journal line uses the account.
func (t *Tx) AccountHasPostings(_ context.Context, id int64) (bool, error) {
	for _, e := range t.st.entries {
		for _, line := range e.Lines {
			if line.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// InsertJournalEntry keeps at most one reversal per original entry.
func (t *Tx) InsertJournalEntry(_ context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	if entry.ReversalOf != "" {
		for _, e := range t.st.entries {
			if e.ReversalOf == entry.ReversalOf {
				return accounting.JournalEntry{}, accounting.ErrAlreadyReversed
			}
		}
	}
	entry.ID = t.nextID("journal_entries")
	entry.CreatedAt = t.now()
	entry = cloneEntry(entry)
	t.st.entries = append(t.st.entries, entry)
	return cloneEntry(entry), nil
}

// ListJournalEntries returns entries in posting order.
func (t *Tx) ListJournalEntries(context.Context) ([]accounting.JournalEntry, error) {
	out := make([]accounting.JournalEntry, len(t.st.entries))
	for i, e := range t.st.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

// GetJournalEntry loads an entry by number.
func (t *Tx) GetJournalEntry(_ context.Context, number string) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		if e.Number == number {
			return cloneEntry(e), nil
		}
	}
	return accounting.JournalEntry{}, accounting.ErrJournalNotFound
}

// FindReversalOf returns the entry that reverses number, if any.
func (t *Tx) FindReversalOf(_ context.Context, number string) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		if e.ReversalOf == number {
			return cloneEntry(e), nil
		}
	}
	return accounting.JournalEntry{}, accounting.ErrJournalNotFound
}

// JournalWatermark is the number of posted entries.
func (t *Tx) JournalWatermark(context.Context) (int64, error) {
	return t.st.ids["journal_entries"], nil
}

// Stock.

// GetProduct looks a product up by id.
func (t *Tx) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	for _, p := range t.st.products {
		if p.ID == id {
			return p, nil
		}
	}
	return inventory.Product{}, fmt.Errorf("product %d: %w", id, inventory.ErrUnknownProduct)
}

// GetWarehouse matches the warehouse name case-insensitively.
func (t *Tx) GetWarehouse(_ context.Context, name string) (inventory.Warehouse, error) {
	for _, wh := range t.st.warehouses {
		if strings.EqualFold(wh.Name, name) {
			return wh, nil
		}
	}
	return inventory.Warehouse{}, fmt.Errorf("%s: %w", name, inventory.ErrWarehouseNotFound)
}

// GetStockForUpdate returns the stock row and whether it exists.
func (t *Tx) GetStockForUpdate(_ context.Context, productID int64, warehouse string) (inventory.StockItem, bool, error) {
	item, ok := t.st.stock[stockKey{productID, warehouse}]
	return item, ok, nil
}

// UpsertStock writes the stock row for the product and warehouse.
func (t *Tx) UpsertStock(_ context.Context, item inventory.StockItem) error {
	t.st.stock[stockKey{item.ProductID, item.Warehouse}] = item
	return nil
}

// InsertMovement appends to the movement log.
func (t *Tx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = t.nextID("inventory_movements")
	t.st.movements = append(t.st.movements, m)
	return m, nil
}

// InsertProduct adds a product; SKUs are unique.
func (t *Tx) InsertProduct(_ context.Context, p inventory.Product) (inventory.Product, error) {
	for _, existing := range t.st.products {
		if p.SKU != "" && existing.SKU == p.SKU {
			return inventory.Product{}, fmt.Errorf("%s: %w", p.SKU, inventory.ErrDuplicateSKU)
		}
	}
	p.ID = t.nextID("products")
	t.st.products = append(t.st.products, p)
	return p, nil
}

// ListProducts returns the catalogue.
func (t *Tx) ListProducts(context.Context) ([]inventory.Product, error) {
	return slices.Clone(t.st.products), nil
}

// InsertWarehouse adds a warehouse; names are unique ignoring case.
func (t *Tx) InsertWarehouse(_ context.Context, wh inventory.Warehouse) (inventory.Warehouse, error) {
	for _, existing := range t.st.warehouses {
		if strings.EqualFold(existing.Name, wh.Name) {
			return inventory.Warehouse{}, fmt.Errorf("%s: %w", wh.Name, inventory.ErrDuplicateWarehouse)
		}
	}
	wh.ID = t.nextID("warehouses")
	t.st.warehouses = append(t.st.warehouses, wh)
	return wh, nil
}

// ListWarehouses returns every warehouse.
func (t *Tx) ListWarehouses(context.Context) ([]inventory.Warehouse, error) {
	out := slices.Clone(t.st.warehouses)
	slices.SortFunc(out, func(a, b inventory.Warehouse) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// ListStock returns matching stock rows ordered by product and warehouse.
func (t *Tx) ListStock(_ context.Context, filter inventory.MovementFilter) ([]inventory.StockItem, error) {
	var out []inventory.StockItem
	for _, item := range t.st.stock {
		if filter.ProductID != 0 && item.ProductID != filter.ProductID {
			continue
		}
		if filter.Warehouse != "" && item.Warehouse != filter.Warehouse {
			continue
		}
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b inventory.StockItem) int {
		return cmp.Or(cmp.Compare(a.ProductID, b.ProductID), cmp.Compare(a.Warehouse, b.Warehouse))
	})
	return out, nil
}

// ListMovements returns matching movements, most recent first.
func (t *Tx) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for i := len(t.st.movements) - 1; i >= 0; i-- {
		m := t.st.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Warehouse != "" && m.FromWarehouse != filter.Warehouse && m.ToWarehouse != filter.Warehouse {
			continue
		}
		if filter.ReferenceID != "" && m.ReferenceID != filter.ReferenceID {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// InsertAdjustment stores a stock count.
func (t *Tx) InsertAdjustment(_ context.Context, adj inventory.Adjustment) (inventory.Adjustment, error) {
	adj.ID = t.nextID("inventory_adjustments")
	adj.Items = slices.Clone(adj.Items)
	t.st.adjustments = append(t.st.adjustments, adj)
	return adj, nil
}

// ListAdjustments returns stock counts, most recent first.
func (t *Tx) ListAdjustments(context.Context) ([]inventory.Adjustment, error) {
	out := make([]inventory.Adjustment, 0, len(t.st.adjustments))
	for i := len(t.st.adjustments) - 1; i >= 0; i-- {
		adj := t.st.adjustments[i]
		adj.Items = slices.Clone(adj.Items)
		out = append(out, adj)
	}
	return out, nil
}

// InsertTransfer stores a transfer.
func (t *Tx) InsertTransfer(_ context.Context, tr inventory.Transfer) (inventory.Transfer, error) {
	tr.ID = t.nextID("stock_transfers")
	tr.Items = slices.Clone(tr.Items)
	t.st.transfers = append(t.st.transfers, tr)
	return tr, nil
}

// ListTransfers returns transfers, most recent first.
func (t *Tx) ListTransfers(context.Context) ([]inventory.Transfer, error) {
	out := make([]inventory.Transfer, 0, len(t.st.transfers))
	for i := len(t.st.transfers) - 1; i >= 0; i-- {
		tr := t.st.transfers[i]
		tr.Items = slices.Clone(tr.Items)
		out = append(out, tr)
	}
	return out, nil
}

// Sales.

// InsertOrder stores a customer order.
func (t *Tx) InsertOrder(_ context.Context, order sales.Order) (sales.Order, error) {
	order.ID = t.nextID("orders")
	t.st.orders = append(t.st.orders, cloneOrder(order))
	return order, nil
}

// GetOrderForUpdate loads an order by number.
func (t *Tx) GetOrderForUpdate(_ context.Context, number string) (sales.Order, error) {
	for _, o := range t.st.orders {
		if o.Number == number {
			return cloneOrder(o), nil
		}
	}
	return sales.Order{}, fmt.Errorf("%s: %w", number, sales.ErrOrderNotFound)
}

// UpdateOrder replaces the stored order with the same id.
func (t *Tx) UpdateOrder(_ context.Context, order sales.Order) error {
	for i, o := range t.st.orders {
		if o.ID == order.ID {
			t.st.orders[i] = cloneOrder(order)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", order.Number, sales.ErrOrderNotFound)
}

// ListOrders returns orders, most recent first.
func (t *Tx) ListOrders(context.Context) ([]sales.Order, error) {
	out := make([]sales.Order, 0, len(t.st.orders))
	for i := len(t.st.orders) - 1; i >= 0; i-- {
		out = append(out, cloneOrder(t.st.orders[i]))
	}
	return out, nil
}

// InsertReturn stores a sales return.
func (t *Tx) InsertReturn(_ context.Context, ret sales.SalesReturn) (sales.SalesReturn, error) {
	ret.ID = t.nextID("sales_returns")
	ret.Items = slices.Clone(ret.Items)
	t.st.returns = append(t.st.returns, ret)
	return ret, nil
}

// ListReturns returns the returns booked against an order.
func (t *Tx) ListReturns(_ context.Context, orderNumber string) ([]sales.SalesReturn, error) {
	var out []sales.SalesReturn
	for _, r := range t.st.returns {
		if r.OrderNumber == orderNumber {
			r.Items = slices.Clone(r.Items)
			out = append(out, r)
		}
	}
	return out, nil
}

// Procurement.

// InsertPurchaseOrder stores a purchase order.
func (t *Tx) InsertPurchaseOrder(_ context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	po.ID = t.nextID("purchase_orders")
	t.st.purchases = append(t.st.purchases, clonePurchase(po))
	return po, nil
}

// GetPurchaseOrderForUpdate loads a purchase order by number.
func (t *Tx) GetPurchaseOrderForUpdate(_ context.Context, number string) (procurement.PurchaseOrder, error) {
	for _, po := range t.st.purchases {
		if po.Number == number {
			return clonePurchase(po), nil
		}
	}
	return procurement.PurchaseOrder{}, fmt.Errorf("%s: %w", number, procurement.ErrPONotFound)
}

// UpdatePurchaseOrder replaces the stored purchase order with the same id.
func (t *Tx) UpdatePurchaseOrder(_ context.Context, po procurement.PurchaseOrder) error {
	for i, existing := range t.st.purchases {
		if existing.ID == po.ID {
			t.st.purchases[i] = clonePurchase(po)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", po.Number, procurement.ErrPONotFound)
}

// ListPurchaseOrders returns purchase orders, most recent first.
func (t *Tx) ListPurchaseOrders(context.Context) ([]procurement.PurchaseOrder, error) {
	out := make([]procurement.PurchaseOrder, 0, len(t.st.purchases))
	for i := len(t.st.purchases) - 1; i >= 0; i-- {
		out = append(out, clonePurchase(t.st.purchases[i]))
	}
	return out, nil
}

// Manufacturing.

// InsertBOM stores a bill of materials.
func (t *Tx) InsertBOM(_ context.Context, bom manufacturing.BOM) (manufacturing.BOM, error) {
	bom.ID = t.nextID("boms")
	bom.Components = slices.Clone(bom.Components)
	t.st.boms = append(t.st.boms, bom)
	return bom, nil
}

// GetBOM loads a bill of materials by number.
func (t *Tx) GetBOM(_ context.Context, number string) (manufacturing.BOM, error) {
	for _, bom := range t.st.boms {
		if bom.Number == number {
			bom.Components = slices.Clone(bom.Components)
			return bom, nil
		}
	}
	return manufacturing.BOM{}, fmt.Errorf("%s: %w", number, manufacturing.ErrBOMNotFound)
}

// ListBOMs returns every bill of materials.
func (t *Tx) ListBOMs(context.Context) ([]manufacturing.BOM, error) {
	out := make([]manufacturing.BOM, 0, len(t.st.boms))
	for _, bom := range t.st.boms {
		bom.Components = slices.Clone(bom.Components)
		out = append(out, bom)
	}
	return out, nil
}

// InsertWorkOrder stores a work order.
func (t *Tx) InsertWorkOrder(_ context.Context, wo manufacturing.WorkOrder) (manufacturing.WorkOrder, error) {
	wo.ID = t.nextID("work_orders")
	t.st.workOrders = append(t.st.workOrders, cloneWorkOrder(wo))
	return wo, nil
}

// GetWorkOrderForUpdate loads a work order by number.
func (t *Tx) GetWorkOrderForUpdate(_ context.Context, number string) (manufacturing.WorkOrder, error) {
	for _, wo := range t.st.workOrders {
		if wo.Number == number {
			return cloneWorkOrder(wo), nil
		}
	}
	return manufacturing.WorkOrder{}, fmt.Errorf("%s: %w", number, manufacturing.ErrWorkOrderNotFound)
}

// UpdateWorkOrder replaces the stored work order with the same id.
func (t *Tx) UpdateWorkOrder(_ context.Context, wo manufacturing.WorkOrder) error {
	for i, existing := range t.st.workOrders {
		if existing.ID == wo.ID {
			t.st.workOrders[i] = cloneWorkOrder(wo)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", wo.Number, manufacturing.ErrWorkOrderNotFound)
}

// ListWorkOrders returns work orders, most recent first.
func (t *Tx) ListWorkOrders(context.Context) ([]manufacturing.WorkOrder, error) {
	out := make([]manufacturing.WorkOrder, 0, len(t.st.workOrders))
	for i := len(t.st.workOrders) - 1; i >= 0; i-- {
		out = append(out, cloneWorkOrder(t.st.workOrders[i]))
	}
	return out, nil
}
