package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	ledger Ledger
	hooks  *integration.Hooks
	audit  shared.AuditPort
	locker *shared.DocumentLocker
	now    func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, hooks *integration.Hooks, audit shared.AuditPort, locker *shared.DocumentLocker) *Service {
	return &Service{
		repo:   repo,
		ledger: NewLedger(cfg.AllowNegativeStock),
		hooks:  hooks,
		audit:  audit,
		locker: locker,
		now:    time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.ledger = s.ledger.WithNow(now)
	}
}

// AdjustmentLineInput is a counted quantity for one product.
type AdjustmentLineInput struct {
	ProductID   int64
	ActualStock float64
}

// AdjustmentInput describes a stock count.
type AdjustmentInput struct {
	Warehouse string
	Notes     string
	Items     []AdjustmentLineInput
}

// AdjustmentResult is returned by AdjustInventory.
type AdjustmentResult struct {
	Adjustment     Adjustment                `json:"newAdjustment"`
	Movements      []Movement                `json:"newMovements"`
	UpdatedStock   []StockItem               `json:"updatedStock"`
	JournalEntries []accounting.JournalEntry `json:"newJournalEntries,omitempty"`
}

// AdjustInventory reconciles counted stock against system stock. Items whose
// count matches are dropped; an adjustment without any difference is rejected.
func (s *Service) AdjustInventory(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	warehouse := strings.TrimSpace(input.Warehouse)
	if warehouse == "" {
		return AdjustmentResult{}, fmt.Errorf("inventory: warehouse required: %w", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return AdjustmentResult{}, ErrEmptyDocument
	}
	counted := make(map[int64]struct{}, len(input.Items))
	for _, item := range input.Items {
		if item.ActualStock < 0 {
			return AdjustmentResult{}, fmt.Errorf("inventory: product %d counted below zero: %w", item.ProductID, shared.ErrValidation)
		}
		if _, dup := counted[item.ProductID]; dup {
			return AdjustmentResult{}, fmt.Errorf("product %d: %w", item.ProductID, ErrDuplicateCount)
		}
		counted[item.ProductID] = struct{}{}
	}
	var result AdjustmentResult
	err := s.locker.WithLock(ctx, warehouseLockKey(warehouse), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			wh, err := tx.GetWarehouse(ctx, warehouse)
			if err != nil {
				return err
			}
			// Stock rows are keyed by the stored name, not the request spelling.
			warehouse = wh.Name
			adj := Adjustment{Date: s.now(), Warehouse: warehouse, Notes: input.Notes}
			var valued []integration.AdjustmentLine
			for _, line := range input.Items {
				product, err := tx.GetProduct(ctx, line.ProductID)
				if err != nil {
					return err
				}
				system, err := GetStock(ctx, tx, line.ProductID, warehouse)
				if err != nil {
					return err
				}
				diff := line.ActualStock - system
				if math.Abs(diff) < qtyEpsilon {
					continue
				}
				adj.Items = append(adj.Items, AdjustmentItem{
					ProductID:   product.ID,
					ProductName: product.Name,
					SystemStock: system,
					ActualStock: line.ActualStock,
					Difference:  diff,
				})
				valued = append(valued, integration.AdjustmentLine{ProductID: product.ID, Qty: diff, UnitCost: product.Cost})
			}
			if len(adj.Items) == 0 {
				return ErrNoDifference
			}
			number, err := shared.NextNumber(ctx, tx, AdjustmentPrefix)
			if err != nil {
				return err
			}
			adj.Number = number
			for _, item := range adj.Items {
				stock, movement, err := s.ledger.Apply(ctx, tx, MovementInput{
					Type:        MovementAdjustment,
					ProductID:   item.ProductID,
					Delta:       item.Difference,
					ReferenceID: number,
					Warehouse:   warehouse,
				})
				if err != nil {
					return err
				}
				result.Movements = append(result.Movements, movement)
				result.UpdatedStock = append(result.UpdatedStock, stock)
			}
			if adj, err = tx.InsertAdjustment(ctx, adj); err != nil {
				return err
			}
			entries, err := s.hooks.HandleStockAdjusted(ctx, tx, integration.StockAdjusted{
				AdjustmentNumber: number,
				Date:             adj.Date,
				Lines:            valued,
			})
			if err != nil {
				return err
			}
			result.Adjustment = adj
			result.JournalEntries = entries
			return nil
		})
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	s.record(ctx, "inventory.adjust", "adjustment", result.Adjustment.Number, map[string]any{
		"warehouse": warehouse,
		"items":     len(result.Adjustment.Items),
	})
	return result, nil
}

// TransferLineInput is a quantity of one product to move.
type TransferLineInput struct {
	ProductID int64
	Quantity  float64
}

// TransferInput describes transfer request between warehouses.
type TransferInput struct {
	FromWarehouse string
	ToWarehouse   string
	Notes         string
	Items         []TransferLineInput
}

// TransferResult is returned by TransferStock.
type TransferResult struct {
	Transfer     Transfer    `json:"newTransfer"`
	Movements    []Movement  `json:"newMovements"`
	UpdatedStock []StockItem `json:"updatedStock"`
}

// TransferStock moves stock between warehouses using a TransferOut and a
// TransferIn movement per item, both referencing the transfer number.
func (s *Service) TransferStock(ctx context.Context, input TransferInput) (TransferResult, error) {
	from := strings.TrimSpace(input.FromWarehouse)
	to := strings.TrimSpace(input.ToWarehouse)
	if from == "" || to == "" {
		return TransferResult{}, fmt.Errorf("inventory: source and destination warehouse required: %w", shared.ErrValidation)
	}
	if strings.EqualFold(from, to) {
		return TransferResult{}, ErrSameWarehouse
	}
	if len(input.Items) == 0 {
		return TransferResult{}, ErrEmptyDocument
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return TransferResult{}, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
	}
	var result TransferResult
	err := s.locker.WithLock(ctx, warehouseLockKey(from), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			source, err := tx.GetWarehouse(ctx, from)
			if err != nil {
				return err
			}
			destination, err := tx.GetWarehouse(ctx, to)
			if err != nil {
				return err
			}
			from, to = source.Name, destination.Name
			required := make(map[int64]float64)
			for _, item := range input.Items {
				required[item.ProductID] += item.Quantity
			}
			for _, item := range input.Items {
				if err := CheckAvailable(ctx, tx, item.ProductID, from, required[item.ProductID]); err != nil && !(s.ledger.allowNegative && IsShortage(err)) {
					return err
				}
			}
			number, err := shared.NextNumber(ctx, tx, TransferPrefix)
			if err != nil {
				return err
			}
			transfer := Transfer{Number: number, Date: s.now(), FromWarehouse: from, ToWarehouse: to, Notes: input.Notes}
			for _, item := range input.Items {
				outStock, outMove, err := s.ledger.Apply(ctx, tx, MovementInput{
					Type:        MovementTransferOut,
					ProductID:   item.ProductID,
					Delta:       -item.Quantity,
					ReferenceID: number,
					Warehouse:   from,
					Counterpart: to,
				})
				if err != nil {
					return err
				}
				inStock, inMove, err := s.ledger.Apply(ctx, tx, MovementInput{
					Type:        MovementTransferIn,
					ProductID:   item.ProductID,
					Delta:       item.Quantity,
					ReferenceID: number,
					Warehouse:   to,
					Counterpart: from,
				})
				if err != nil {
					return err
				}
				transfer.Items = append(transfer.Items, TransferItem{ProductID: item.ProductID, ProductName: outMove.ProductName, Quantity: item.Quantity})
				result.Movements = append(result.Movements, outMove, inMove)
				result.UpdatedStock = append(result.UpdatedStock, outStock, inStock)
			}
			if transfer, err = tx.InsertTransfer(ctx, transfer); err != nil {
				return err
			}
			result.Transfer = transfer
			return nil
		})
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.record(ctx, "inventory.transfer", "transfer", result.Transfer.Number, map[string]any{
		"from": from,
		"to":   to,
	})
	return result, nil
}

// CreateWarehouse registers a warehouse with a unique name.
func (s *Service) CreateWarehouse(ctx context.Context, name string) (Warehouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Warehouse{}, fmt.Errorf("inventory: warehouse name required: %w", shared.ErrValidation)
	}
	var wh Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetWarehouse(ctx, name); err == nil {
			return fmt.Errorf("%s: %w", name, ErrDuplicateWarehouse)
		} else if !errors.Is(err, ErrWarehouseNotFound) {
			return err
		}
		var err error
		wh, err = tx.InsertWarehouse(ctx, Warehouse{Name: name, CreatedAt: s.now()})
		return err
	})
	return wh, err
}

// ProductInput carries product master data.
type ProductInput struct {
	SKU      string
	Name     string
	Cost     decimal.Decimal
	Price    decimal.Decimal
	MinStock float64
}

// CreateProduct registers a product with a unique SKU.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	product := Product{
		SKU:       strings.TrimSpace(input.SKU),
		Name:      strings.TrimSpace(input.Name),
		Cost:      input.Cost,
		Price:     input.Price,
		MinStock:  input.MinStock,
		CreatedAt: s.now(),
	}
	if product.SKU == "" || product.Name == "" {
		return Product{}, fmt.Errorf("inventory: sku and name required: %w", shared.ErrValidation)
	}
	if product.Cost.IsNegative() || product.Price.IsNegative() || product.MinStock < 0 {
		return Product{}, fmt.Errorf("inventory: cost, price and min stock must not be negative: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.InsertProduct(ctx, product)
		return err
	})
	return product, err
}

// ListProducts returns the product catalogue.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListProducts(ctx)
		return err
	})
	return out, err
}

// ListWarehouses returns every warehouse.
func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	var out []Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListWarehouses(ctx)
		return err
	})
	return out, err
}

// ListStock returns stock rows matching filter.
func (s *Service) ListStock(ctx context.Context, filter MovementFilter) ([]StockItem, error) {
	var out []StockItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListStock(ctx, filter)
		return err
	})
	return out, err
}

// ListMovements returns movements matching filter, most recent first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListMovements(ctx, filter)
		return err
	})
	return out, err
}

// ListAdjustments returns recorded adjustments.
func (s *Service) ListAdjustments(ctx context.Context) ([]Adjustment, error) {
	var out []Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListAdjustments(ctx)
		return err
	})
	return out, err
}

// ListTransfers returns recorded transfers.
func (s *Service) ListTransfers(ctx context.Context) ([]Transfer, error) {
	var out []Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListTransfers(ctx)
		return err
	})
	return out, err
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}

// warehouseLockKey folds case so that every spelling of a warehouse name
// contends for the same lock.
func warehouseLockKey(name string) string {
	return shared.DocumentLockKey("warehouse", strings.ToLower(name))
}
