package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo   RepositoryPort
	ledger inventory.Ledger
	hooks  *integration.Hooks
	audit  shared.AuditPort
	locker *shared.DocumentLocker
	now    func() time.Time
}

// NewService constructs procurement service. Receipts only add stock, so the
// ledger never needs to allow negative balances here.
func NewService(repo RepositoryPort, hooks *integration.Hooks, audit shared.AuditPort, locker *shared.DocumentLocker) *Service {
	return &Service{
		repo:   repo,
		ledger: inventory.NewLedger(false),
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

// POLineInput describes an ordered line. A zero unit cost falls back to the
// product cost.
type POLineInput struct {
	ProductID int64
	Quantity  float64
	UnitCost  decimal.Decimal
}

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	Supplier  string
	Warehouse string
	Items     []POLineInput
	TaxRate   decimal.Decimal
}

// StatusResult is returned by UpdatePurchaseOrderStatus. Stock and journal
// fields are only set when the change received the goods.
type StatusResult struct {
	PurchaseOrder PurchaseOrder            `json:"updatedPO"`
	Movements     []inventory.Movement     `json:"newMovements"`
	UpdatedStock  []inventory.StockItem    `json:"updatedStock"`
	JournalEntry  *accounting.JournalEntry `json:"newJournalEntry,omitempty"`
}

// PaymentInput is a supplier payment.
type PaymentInput struct {
	Amount decimal.Decimal
	Method shared.PaymentMethod
}

// PaymentResult is returned by RecordPurchasePayment.
type PaymentResult struct {
	PurchaseOrder PurchaseOrder           `json:"updatedPO"`
	JournalEntry  accounting.JournalEntry `json:"newJournalEntry"`
}

// CreatePurchaseOrder records a draft purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if strings.TrimSpace(input.Supplier) == "" || strings.TrimSpace(input.Warehouse) == "" {
		return PurchaseOrder{}, fmt.Errorf("procurement: supplier and warehouse required: %w", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, ErrEmptyOrder
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
		if item.UnitCost.IsNegative() {
			return PurchaseOrder{}, fmt.Errorf("product %d: unit cost must not be negative: %w", item.ProductID, shared.ErrValidation)
		}
	}
	if input.TaxRate.IsNegative() {
		return PurchaseOrder{}, fmt.Errorf("procurement: tax rate must not be negative: %w", shared.ErrValidation)
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wh, err := tx.GetWarehouse(ctx, strings.TrimSpace(input.Warehouse))
		if err != nil {
			return err
		}
		po = PurchaseOrder{
			Date:      s.now(),
			Supplier:  strings.TrimSpace(input.Supplier),
			Warehouse: wh.Name,
			TaxRate:   input.TaxRate,
			Status:    POStatusDraft,
		}
		for _, line := range input.Items {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			cost := line.UnitCost
			if cost.IsZero() {
				cost = product.Cost
			}
			po.Items = append(po.Items, POItem{ProductID: product.ID, ProductName: product.Name, Quantity: line.Quantity, UnitCost: cost})
		}
		po.Recalculate()
		if po.Number, err = shared.NextNumber(ctx, tx, PurchaseOrderPrefix); err != nil {
			return err
		}
		po, err = tx.InsertPurchaseOrder(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.record(ctx, "procurement.po.create", po.Number, map[string]any{"total": po.Total.String()})
	return po, nil
}

// UpdatePurchaseOrderStatus moves a purchase order through its lifecycle.
// Only Draft or Ordered to Received brings the goods into stock and books
// the payable; every other allowed change only updates the status.
func (s *Service) UpdatePurchaseOrderStatus(ctx context.Context, number string, status POStatus) (StatusResult, error) {
	if !status.Valid() {
		return StatusResult{}, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	var result StatusResult
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("purchase_order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.GetPurchaseOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			if po.Status == POStatusReceived && status == POStatusReceived {
				return fmt.Errorf("%s: %w", number, ErrAlreadyReceived)
			}
			if !CanTransition(po.Status, status) {
				return fmt.Errorf("%s %s -> %s: %w", number, po.Status, status, ErrInvalidTransition)
			}
			po.Status = status
			if status == POStatusReceived {
				now := s.now()
				po.ReceivedAt = &now
				if err := s.receive(ctx, tx, po, &result); err != nil {
					return err
				}
			}
			if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
				return err
			}
			result.PurchaseOrder = po
			return nil
		})
	})
	if err != nil {
		return StatusResult{}, err
	}
	s.record(ctx, "procurement.po.status", number, map[string]any{"status": string(status)})
	return result, nil
}

// ReceivePurchaseOrder is UpdatePurchaseOrderStatus to Received.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, number string) (StatusResult, error) {
	return s.UpdatePurchaseOrderStatus(ctx, number, POStatusReceived)
}

func (s *Service) receive(ctx context.Context, tx TxRepository, po PurchaseOrder, result *StatusResult) error {
	for _, item := range po.Items {
		stock, movement, err := s.ledger.Apply(ctx, tx, inventory.MovementInput{
			Type:        inventory.MovementPurchaseReceipt,
			ProductID:   item.ProductID,
			Delta:       item.Quantity,
			ReferenceID: po.Number,
			Warehouse:   po.Warehouse,
		})
		if err != nil {
			return err
		}
		result.UpdatedStock = append(result.UpdatedStock, stock)
		result.Movements = append(result.Movements, movement)
	}
	entry, err := s.hooks.HandleGoodsReceived(ctx, tx, integration.GoodsReceived{
		PONumber: po.Number,
		Date:     *po.ReceivedAt,
		Subtotal: po.Subtotal,
		Tax:      po.Tax,
		Total:    po.Total,
	})
	if err != nil {
		return err
	}
	result.JournalEntry = entry
	return nil
}

// RecordPurchasePayment posts a supplier payment. Payment status follows the
// same rule as customer orders; overpayment is accepted.
func (s *Service) RecordPurchasePayment(ctx context.Context, number string, input PaymentInput) (PaymentResult, error) {
	if !input.Amount.IsPositive() {
		return PaymentResult{}, ErrInvalidAmount
	}
	method := input.Method
	if method == "" {
		method = shared.PaymentMethodCash
	}
	if method != shared.PaymentMethodCash && method != shared.PaymentMethodBank {
		return PaymentResult{}, fmt.Errorf("%s: %w", method, ErrInvalidMethod)
	}
	var result PaymentResult
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("purchase_order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.GetPurchaseOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			if po.Status == POStatusCancelled {
				return fmt.Errorf("%s: %w", number, ErrCancelled)
			}
			po.ApplyPayment(input.Amount)
			if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
				return err
			}
			entry, err := s.hooks.HandleSupplierPaid(ctx, tx, integration.SupplierPaid{
				PONumber: po.Number,
				Date:     s.now(),
				Amount:   input.Amount,
				Method:   method,
			})
			if err != nil {
				return err
			}
			result = PaymentResult{PurchaseOrder: po, JournalEntry: entry}
			return nil
		})
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.record(ctx, "procurement.po.payment", number, map[string]any{
		"amount": input.Amount.String(),
		"status": string(result.PurchaseOrder.PaymentStatus),
	})
	return result, nil
}

// GetPurchaseOrder loads one purchase order.
func (s *Service) GetPurchaseOrder(ctx context.Context, number string) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, number)
		return err
	})
	return po, err
}

// ListPurchaseOrders returns purchase orders, most recent first.
func (s *Service) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListPurchaseOrders(ctx)
		return err
	})
	return out, err
}

// PayablesAging groups received, not fully paid purchase orders by supplier.
func (s *Service) PayablesAging(ctx context.Context) (reports.Aging, error) {
	pos, err := s.ListPurchaseOrders(ctx)
	if err != nil {
		return reports.Aging{}, err
	}
	docs := make([]reports.OpenDocument, 0, len(pos))
	for _, po := range pos {
		if po.Status != POStatusReceived || po.PaymentStatus == shared.PaymentStatusPaid {
			continue
		}
		docs = append(docs, reports.OpenDocument{
			Number:       po.Number,
			Counterparty: po.Supplier,
			Date:         po.Date,
			Total:        po.Total,
			AmountPaid:   po.AmountPaid,
		})
	}
	return reports.BuildAging(docs), nil
}

func (s *Service) record(ctx context.Context, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "purchase_order",
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}
