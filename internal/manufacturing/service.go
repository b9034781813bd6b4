package manufacturing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service runs production.
type Service struct {
	repo   RepositoryPort
	ledger inventory.Ledger
	audit  shared.AuditPort
	locker *shared.DocumentLocker
	now    func() time.Time
}

// NewService builds Service. Materials are always checked before a run, so
// the stock ledger keeps its non-negative guard.
func NewService(repo RepositoryPort, audit shared.AuditPort, locker *shared.DocumentLocker) *Service {
	return &Service{
		repo:   repo,
		ledger: inventory.NewLedger(false),
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

// ComponentInput is one raw material line.
type ComponentInput struct {
	ProductID    int64
	Quantity     float64
	WastePercent float64
}

// BOMInput describes a new bill of materials.
type BOMInput struct {
	ProductID  int64
	Components []ComponentInput
}

// WorkOrderInput describes a production run.
type WorkOrderInput struct {
	BOMNumber string
	Quantity  float64
	Warehouse string
	Steps     []string
}

// CompletionInput carries the cost captured on the shop floor. A nil
// ActualCost keeps the estimate.
type CompletionInput struct {
	ActualCost *decimal.Decimal
}

// CompletionResult is returned by CompleteWorkOrder.
type CompletionResult struct {
	WorkOrder    WorkOrder             `json:"updatedWorkOrder"`
	Movements    []inventory.Movement  `json:"newMovements"`
	UpdatedStock []inventory.StockItem `json:"updatedStock"`
}

// CreateBOM records the recipe for a finished good.
func (s *Service) CreateBOM(ctx context.Context, input BOMInput) (BOM, error) {
	if len(input.Components) == 0 {
		return BOM{}, ErrEmptyBOM
	}
	for _, c := range input.Components {
		if c.ProductID == input.ProductID {
			return BOM{}, ErrSelfComponent
		}
		if c.Quantity <= 0 {
			return BOM{}, fmt.Errorf("component %d: %w", c.ProductID, ErrInvalidQuantity)
		}
		if c.WastePercent < 0 {
			return BOM{}, fmt.Errorf("component %d: %w", c.ProductID, ErrInvalidWaste)
		}
	}
	var bom BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}
		bom = BOM{ProductID: product.ID, ProductName: product.Name, CreatedAt: s.now()}
		for _, c := range input.Components {
			material, err := tx.GetProduct(ctx, c.ProductID)
			if err != nil {
				return err
			}
			bom.Components = append(bom.Components, Component{
				ProductID:    material.ID,
				ProductName:  material.Name,
				Quantity:     c.Quantity,
				WastePercent: c.WastePercent,
			})
		}
		if bom.Number, err = shared.NextNumber(ctx, tx, BOMPrefix); err != nil {
			return err
		}
		bom, err = tx.InsertBOM(ctx, bom)
		return err
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, "manufacturing.bom.create", "bom", bom.Number, map[string]any{"product": bom.ProductID})
	return bom, nil
}

// CreateWorkOrder plans a run and estimates its material cost at current
// product cost.
func (s *Service) CreateWorkOrder(ctx context.Context, input WorkOrderInput) (WorkOrder, error) {
	if input.Quantity <= 0 {
		return WorkOrder{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(input.Warehouse) == "" {
		return WorkOrder{}, fmt.Errorf("manufacturing: warehouse required: %w", shared.ErrValidation)
	}
	steps := input.Steps
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	var wo WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bom, err := tx.GetBOM(ctx, input.BOMNumber)
		if err != nil {
			return err
		}
		wh, err := tx.GetWarehouse(ctx, strings.TrimSpace(input.Warehouse))
		if err != nil {
			return err
		}
		estimate := decimal.Zero
		for _, c := range bom.Components {
			material, err := tx.GetProduct(ctx, c.ProductID)
			if err != nil {
				return err
			}
			estimate = estimate.Add(integration.Monetary(c.Required(input.Quantity), material.Cost))
		}
		wo = WorkOrder{
			BOMNumber:     bom.Number,
			ProductID:     bom.ProductID,
			ProductName:   bom.ProductName,
			Quantity:      input.Quantity,
			Warehouse:     wh.Name,
			Status:        WorkOrderStatusPlanned,
			EstimatedCost: estimate,
			ActualCost:    decimal.Zero,
			CreatedAt:     s.now(),
		}
		for _, name := range steps {
			wo.Steps = append(wo.Steps, ProductionStep{Name: name})
		}
		if wo.Number, err = shared.NextNumber(ctx, tx, WorkOrderPrefix); err != nil {
			return err
		}
		wo, err = tx.InsertWorkOrder(ctx, wo)
		return err
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.record(ctx, "manufacturing.work_order.create", "work_order", wo.Number, map[string]any{
		"bom":      wo.BOMNumber,
		"quantity": wo.Quantity,
	})
	return wo, nil
}

// CompleteWorkOrder consumes raw materials with their waste allowance and
// receives the finished good. Every material is checked before any stock
// moves; the first short material is reported.
func (s *Service) CompleteWorkOrder(ctx context.Context, number string, input CompletionInput) (CompletionResult, error) {
	if input.ActualCost != nil && input.ActualCost.IsNegative() {
		return CompletionResult{}, ErrInvalidCost
	}
	var result CompletionResult
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("work_order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			wo, err := tx.GetWorkOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			switch wo.Status {
			case WorkOrderStatusCompleted:
				return fmt.Errorf("%s: %w", number, ErrAlreadyCompleted)
			case WorkOrderStatusCancelled:
				return fmt.Errorf("%s: %w", number, ErrCancelled)
			}
			bom, err := tx.GetBOM(ctx, wo.BOMNumber)
			if err != nil {
				return err
			}
			if err := checkMaterials(ctx, tx, bom, wo); err != nil {
				return err
			}
			for _, c := range bom.Components {
				stock, movement, err := s.ledger.Apply(ctx, tx, inventory.MovementInput{
					Type:        inventory.MovementProductionIssue,
					ProductID:   c.ProductID,
					Delta:       -c.Required(wo.Quantity),
					ReferenceID: wo.Number,
					Warehouse:   wo.Warehouse,
				})
				if err != nil {
					return err
				}
				result.UpdatedStock = append(result.UpdatedStock, stock)
				result.Movements = append(result.Movements, movement)
			}
			stock, movement, err := s.ledger.Apply(ctx, tx, inventory.MovementInput{
				Type:        inventory.MovementProductionReceipt,
				ProductID:   wo.ProductID,
				Delta:       wo.Quantity,
				ReferenceID: wo.Number,
				Warehouse:   wo.Warehouse,
			})
			if err != nil {
				return err
			}
			result.UpdatedStock = append(result.UpdatedStock, stock)
			result.Movements = append(result.Movements, movement)

			now := s.now()
			for i := range wo.Steps {
				wo.Steps[i].Completed = true
			}
			wo.Status = WorkOrderStatusCompleted
			wo.CompletedAt = &now
			wo.ActualCost = wo.EstimatedCost
			if input.ActualCost != nil {
				wo.ActualCost = input.ActualCost.Round(2)
			}
			if err := tx.UpdateWorkOrder(ctx, wo); err != nil {
				return err
			}
			result.WorkOrder = wo
			return nil
		})
	})
	if err != nil {
		return CompletionResult{}, err
	}
	s.record(ctx, "manufacturing.work_order.complete", "work_order", number, map[string]any{
		"actual_cost": result.WorkOrder.ActualCost.String(),
	})
	return result, nil
}

func checkMaterials(ctx context.Context, tx TxRepository, bom BOM, wo WorkOrder) error {
	required := make(map[int64]float64)
	for _, c := range bom.Components {
		required[c.ProductID] += c.Required(wo.Quantity)
	}
	for _, c := range bom.Components {
		available, err := inventory.GetStock(ctx, tx, c.ProductID, wo.Warehouse)
		if err != nil {
			return err
		}
		if available+1e-9 < required[c.ProductID] {
			return &InsufficientMaterialError{
				ProductID: c.ProductID,
				Name:      c.ProductName,
				Required:  required[c.ProductID],
				Available: available,
			}
		}
	}
	return nil
}

// CancelWorkOrder cancels a planned run.
func (s *Service) CancelWorkOrder(ctx context.Context, number string) (WorkOrder, error) {
	var wo WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wo, err = tx.GetWorkOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		switch wo.Status {
		case WorkOrderStatusCompleted:
			return fmt.Errorf("%s: %w", number, ErrAlreadyCompleted)
		case WorkOrderStatusCancelled:
			return fmt.Errorf("%s: %w", number, ErrCancelled)
		}
		wo.Status = WorkOrderStatusCancelled
		return tx.UpdateWorkOrder(ctx, wo)
	})
	return wo, err
}

// ListBOMs returns every bill of materials.
func (s *Service) ListBOMs(ctx context.Context) ([]BOM, error) {
	var out []BOM
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListBOMs(ctx)
		return err
	})
	return out, err
}

// ListWorkOrders returns work orders, most recent first.
func (s *Service) ListWorkOrders(ctx context.Context) ([]WorkOrder, error) {
	var out []WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListWorkOrders(ctx)
		return err
	})
	return out, err
}

// GetWorkOrder loads one work order.
func (s *Service) GetWorkOrder(ctx context.Context, number string) (WorkOrder, error) {
	var wo WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		wo, err = tx.GetWorkOrderForUpdate(ctx, number)
		return err
	})
	return wo, err
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
