package sales

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

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service processes sales events.
type Service struct {
	repo   RepositoryPort
	ledger inventory.Ledger
	hooks  *integration.Hooks
	audit  shared.AuditPort
	locker *shared.DocumentLocker
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, hooks *integration.Hooks, audit shared.AuditPort, locker *shared.DocumentLocker) *Service {
	return &Service{
		repo:   repo,
		ledger: inventory.NewLedger(cfg.AllowNegativeStock),
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

// OrderLineInput is one requested line. A zero price falls back to the
// product list price.
type OrderLineInput struct {
	ProductID int64
	Quantity  float64
	Price     decimal.Decimal
}

// OrderInput describes a new order.
type OrderInput struct {
	Customer  string
	Warehouse string
	Items     []OrderLineInput
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal
}

func (in OrderInput) validate() error {
	if strings.TrimSpace(in.Customer) == "" || strings.TrimSpace(in.Warehouse) == "" {
		return fmt.Errorf("sales: customer and warehouse required: %w", shared.ErrValidation)
	}
	if len(in.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("product %d: price must not be negative: %w", item.ProductID, shared.ErrValidation)
		}
	}
	if in.Discount.IsNegative() || in.TaxRate.IsNegative() {
		return ErrInvalidDiscount
	}
	return nil
}

// CompletionResult is returned by CompleteOrder.
type CompletionResult struct {
	Order          Order                       `json:"updatedOrder"`
	UpdatedStock   []inventory.StockItem       `json:"updatedStock"`
	Movements      []inventory.Movement        `json:"newMovements"`
	StockWarnings  []inventory.LowStockWarning `json:"stockWarning,omitempty"`
	JournalEntries []accounting.JournalEntry   `json:"newJournalEntries"`
}

// POSResult is returned by CreateAndCompleteOrder.
type POSResult struct {
	Order          Order                       `json:"newOrder"`
	UpdatedStock   []inventory.StockItem       `json:"updatedStock"`
	Movements      []inventory.Movement        `json:"newMovements"`
	StockWarnings  []inventory.LowStockWarning `json:"stockWarning,omitempty"`
	JournalEntries []accounting.JournalEntry   `json:"newJournalEntries"`
}

// PaymentInput is a customer payment.
type PaymentInput struct {
	Amount decimal.Decimal
	Method shared.PaymentMethod
}

// PaymentResult is returned by RecordOrderPayment.
type PaymentResult struct {
	Order        Order                   `json:"updatedOrder"`
	JournalEntry accounting.JournalEntry `json:"newJournalEntry"`
}

// ReturnLineInput is one returned product.
type ReturnLineInput struct {
	ProductID int64
	Quantity  float64
}

// ReturnInput describes a sales return. An empty Method credits AR when the
// order is unpaid and Cash otherwise.
type ReturnInput struct {
	Items        []ReturnLineInput
	PreTaxRefund decimal.Decimal
	Method       shared.PaymentMethod
}

// ReturnResult is returned by CreateSalesReturn.
type ReturnResult struct {
	Return       SalesReturn             `json:"newReturn"`
	Order        Order                   `json:"updatedOrder"`
	UpdatedStock []inventory.StockItem   `json:"updatedStock"`
	Movements    []inventory.Movement    `json:"newMovements"`
	JournalEntry accounting.JournalEntry `json:"newJournalEntry"`
}

// CreateOrder records a pending order. Nothing touches stock or the ledger
// until the order is completed.
func (s *Service) CreateOrder(ctx context.Context, input OrderInput) (Order, error) {
	if err := input.validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		built, err := s.buildOrder(ctx, tx, input)
		if err != nil {
			return err
		}
		built.Status = OrderStatusPending
		order, err = tx.InsertOrder(ctx, built)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "sales.order.create", "order", order.Number, map[string]any{"total": order.Total.String()})
	return order, nil
}

// CompleteOrder issues the order's stock and posts revenue and COGS. A
// completed or cancelled order is rejected without side effects.
func (s *Service) CompleteOrder(ctx context.Context, number string) (CompletionResult, error) {
	var result CompletionResult
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			order, err := tx.GetOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			switch order.Status {
			case OrderStatusCompleted:
				return fmt.Errorf("%s: %w", number, ErrAlreadyCompleted)
			case OrderStatusCancelled:
				return fmt.Errorf("%s: %w", number, ErrOrderCancelled)
			}
			issue, err := s.issueItems(ctx, tx, order)
			if err != nil {
				return err
			}
			now := s.now()
			order.Status = OrderStatusCompleted
			order.CompletedAt = &now
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
			entries, err := s.hooks.HandleSaleCompleted(ctx, tx, integration.SaleCompleted{
				OrderNumber:  order.Number,
				Date:         now,
				Subtotal:     order.Subtotal,
				Discount:     order.Discount,
				Tax:          order.Tax,
				Total:        order.Total,
				COGS:         issue.cogs,
				DebitAccount: accounting.CodeAccountsReceivable,
			})
			if err != nil {
				return err
			}
			result = CompletionResult{
				Order:          order,
				UpdatedStock:   issue.stock,
				Movements:      issue.movements,
				StockWarnings:  issue.warnings,
				JournalEntries: entries,
			}
			return nil
		})
	})
	if err != nil {
		return CompletionResult{}, err
	}
	s.record(ctx, "sales.order.complete", "order", number, map[string]any{
		"total": result.Order.Total.String(),
		"cogs":  len(result.JournalEntries) > 1,
	})
	return result, nil
}

// CreateAndCompleteOrder is the point-of-sale path: the order is created
// completed and paid in one step, settling through Cash or Bank. Every line
// must be in stock or the whole order is rejected.
func (s *Service) CreateAndCompleteOrder(ctx context.Context, input OrderInput, method shared.PaymentMethod) (POSResult, error) {
	if err := input.validate(); err != nil {
		return POSResult{}, err
	}
	if method == "" {
		method = shared.PaymentMethodCash
	}
	if method != shared.PaymentMethodCash && method != shared.PaymentMethodBank {
		return POSResult{}, fmt.Errorf("%s: %w", method, ErrInvalidMethod)
	}
	var result POSResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := s.buildOrder(ctx, tx, input)
		if err != nil {
			return err
		}
		required := make(map[int64]float64)
		for _, item := range order.Items {
			required[item.ProductID] += item.Quantity
		}
		for _, item := range order.Items {
			if err := inventory.CheckAvailable(ctx, tx, item.ProductID, order.Warehouse, required[item.ProductID]); err != nil {
				return err
			}
		}
		now := s.now()
		order.Status = OrderStatusCompleted
		order.CompletedAt = &now
		order.PaymentMethod = method
		order.ApplyPayment(order.Total)
		if order, err = tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		issue, err := s.issueItems(ctx, tx, order)
		if err != nil {
			return err
		}
		entries, err := s.hooks.HandleSaleCompleted(ctx, tx, integration.SaleCompleted{
			OrderNumber:  order.Number,
			Date:         now,
			Subtotal:     order.Subtotal,
			Discount:     order.Discount,
			Tax:          order.Tax,
			Total:        order.Total,
			COGS:         issue.cogs,
			DebitAccount: integration.SettlementAccount(method),
		})
		if err != nil {
			return err
		}
		result = POSResult{
			Order:          order,
			UpdatedStock:   issue.stock,
			Movements:      issue.movements,
			StockWarnings:  issue.warnings,
			JournalEntries: entries,
		}
		return nil
	})
	if err != nil {
		return POSResult{}, err
	}
	s.record(ctx, "sales.order.pos", "order", result.Order.Number, map[string]any{
		"total":  result.Order.Total.String(),
		"method": string(method),
	})
	return result, nil
}

// RecordOrderPayment posts a customer payment against a completed order.
// Overpayment is accepted; payment status is re-derived from the new total.
func (s *Service) RecordOrderPayment(ctx context.Context, number string, input PaymentInput) (PaymentResult, error) {
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
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			order, err := tx.GetOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			if order.Status != OrderStatusCompleted {
				return fmt.Errorf("%s: %w", number, ErrNotCompleted)
			}
			order.ApplyPayment(input.Amount)
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
			entry, err := s.hooks.HandlePaymentReceived(ctx, tx, integration.PaymentReceived{
				OrderNumber: order.Number,
				Date:        s.now(),
				Amount:      input.Amount,
				Method:      method,
			})
			if err != nil {
				return err
			}
			result = PaymentResult{Order: order, JournalEntry: entry}
			return nil
		})
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.record(ctx, "sales.order.payment", "order", number, map[string]any{
		"amount": input.Amount.String(),
		"status": string(result.Order.PaymentStatus),
	})
	return result, nil
}

// CreateSalesReturn puts returned goods back into the order warehouse and
// reverses revenue and output VAT for the refunded amount.
func (s *Service) CreateSalesReturn(ctx context.Context, number string, input ReturnInput) (ReturnResult, error) {
	if len(input.Items) == 0 {
		return ReturnResult{}, ErrEmptyOrder
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return ReturnResult{}, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
	}
	if !input.PreTaxRefund.IsPositive() {
		return ReturnResult{}, ErrInvalidAmount
	}
	switch input.Method {
	case "", shared.PaymentMethodCash, shared.PaymentMethodBank, shared.PaymentMethodCredit:
	default:
		return ReturnResult{}, fmt.Errorf("%s: %w", input.Method, ErrInvalidMethod)
	}
	var result ReturnResult
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("order", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			order, err := tx.GetOrderForUpdate(ctx, number)
			if err != nil {
				return err
			}
			if order.Status != OrderStatusCompleted {
				return fmt.Errorf("%s: %w", number, ErrNotCompleted)
			}
			previous, err := tx.ListReturns(ctx, order.Number)
			if err != nil {
				return err
			}
			returned := make(map[int64]float64)
			refunded := input.PreTaxRefund.Round(2)
			for _, ret := range previous {
				refunded = refunded.Add(ret.PreTaxRefund)
				for _, item := range ret.Items {
					returned[item.ProductID] += item.Quantity
				}
			}
			for _, item := range input.Items {
				returned[item.ProductID] += item.Quantity
				if returned[item.ProductID] > order.OrderedQuantity(item.ProductID)+1e-9 {
					return fmt.Errorf("product %d on %s: %w", item.ProductID, number, ErrReturnExceedsOrder)
				}
			}
			if refunded.GreaterThan(order.Subtotal.Sub(order.Discount)) {
				return fmt.Errorf("%s: %w", number, ErrRefundExceedsSales)
			}

			method := input.Method
			if method == "" {
				method = shared.PaymentMethodCash
				if order.AmountPaid.IsZero() {
					method = shared.PaymentMethodCredit
				}
			}
			tax := input.PreTaxRefund.Mul(order.TaxRate).Div(hundred).Round(2)
			ret := SalesReturn{
				OrderNumber:   order.Number,
				Date:          s.now(),
				PreTaxRefund:  input.PreTaxRefund.Round(2),
				TaxRefund:     tax,
				TotalRefund:   input.PreTaxRefund.Round(2).Add(tax),
				Method:        method,
				CreditAccount: integration.SettlementAccount(method),
			}
			if ret.Number, err = shared.NextNumber(ctx, tx, ReturnPrefix); err != nil {
				return err
			}
			for _, item := range input.Items {
				stock, movement, err := s.ledger.Apply(ctx, tx, inventory.MovementInput{
					Type:        inventory.MovementSalesReturn,
					ProductID:   item.ProductID,
					Delta:       item.Quantity,
					ReferenceID: ret.Number,
					Warehouse:   order.Warehouse,
				})
				if err != nil {
					return err
				}
				ret.Items = append(ret.Items, ReturnItem{ProductID: item.ProductID, ProductName: movement.ProductName, Quantity: item.Quantity})
				result.UpdatedStock = append(result.UpdatedStock, stock)
				result.Movements = append(result.Movements, movement)
			}
			if ret, err = tx.InsertReturn(ctx, ret); err != nil {
				return err
			}
			if method == shared.PaymentMethodCredit {
				order.ApplyCredit(ret.TotalRefund)
				if err := tx.UpdateOrder(ctx, order); err != nil {
					return err
				}
			}
			entry, err := s.hooks.HandleSaleReturned(ctx, tx, integration.SaleReturned{
				ReturnNumber:  ret.Number,
				OrderNumber:   order.Number,
				Date:          ret.Date,
				PreTax:        ret.PreTaxRefund,
				Tax:           ret.TaxRefund,
				CreditAccount: ret.CreditAccount,
			})
			if err != nil {
				return err
			}
			result.Return = ret
			result.Order = order
			result.JournalEntry = entry
			return nil
		})
	})
	if err != nil {
		return ReturnResult{}, err
	}
	s.record(ctx, "sales.return.create", "sales_return", result.Return.Number, map[string]any{
		"order":  number,
		"refund": result.Return.TotalRefund.String(),
	})
	return result, nil
}

// CancelOrder cancels a pending order.
func (s *Service) CancelOrder(ctx context.Context, number string) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		switch order.Status {
		case OrderStatusCompleted:
			return fmt.Errorf("%s: %w", number, ErrAlreadyCompleted)
		case OrderStatusCancelled:
			return fmt.Errorf("%s: %w", number, ErrOrderCancelled)
		}
		order.Status = OrderStatusCancelled
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "sales.order.cancel", "order", number, nil)
	return order, nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, number string) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, number)
		return err
	})
	return order, err
}

// ListOrders returns orders, most recent first.
func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListOrders(ctx)
		return err
	})
	return out, err
}

// ListReturns returns the returns booked against an order.
func (s *Service) ListReturns(ctx context.Context, number string) ([]SalesReturn, error) {
	var out []SalesReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, number); err != nil {
			return err
		}
		var err error
		out, err = tx.ListReturns(ctx, number)
		return err
	})
	return out, err
}

// ReceivablesAging groups completed, not fully paid orders by customer.
func (s *Service) ReceivablesAging(ctx context.Context) (reports.Aging, error) {
	orders, err := s.ListOrders(ctx)
	if err != nil {
		return reports.Aging{}, err
	}
	docs := make([]reports.OpenDocument, 0, len(orders))
	for _, order := range orders {
		if order.Status != OrderStatusCompleted || order.PaymentStatus == shared.PaymentStatusPaid {
			continue
		}
		docs = append(docs, reports.OpenDocument{
			Number:       order.Number,
			Counterparty: order.Customer,
			Date:         order.Date,
			Total:        order.Total,
			AmountPaid:   order.Settled(),
		})
	}
	return reports.BuildAging(docs), nil
}

func (s *Service) buildOrder(ctx context.Context, tx TxRepository, input OrderInput) (Order, error) {
	wh, err := tx.GetWarehouse(ctx, strings.TrimSpace(input.Warehouse))
	if err != nil {
		return Order{}, err
	}
	order := Order{
		Date:      s.now(),
		Customer:  strings.TrimSpace(input.Customer),
		Warehouse: wh.Name,
		Discount:  input.Discount.Round(2),
		TaxRate:   input.TaxRate,
	}
	for _, line := range input.Items {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return Order{}, err
		}
		price := line.Price
		if price.IsZero() {
			price = product.Price
		}
		order.Items = append(order.Items, OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       price,
		})
	}
	order.Recalculate()
	if order.Discount.GreaterThan(order.Subtotal) {
		return Order{}, ErrInvalidDiscount
	}
	if !order.Total.IsPositive() {
		return Order{}, ErrInvalidAmount
	}
	if order.Number, err = shared.NextNumber(ctx, tx, OrderPrefix); err != nil {
		return Order{}, err
	}
	return order, nil
}

type issued struct {
	stock     []inventory.StockItem
	movements []inventory.Movement
	warnings  []inventory.LowStockWarning
	cogs      decimal.Decimal
}

// issueItems decrements stock per order line and values the cost of sale at
// product cost.
func (s *Service) issueItems(ctx context.Context, tx TxRepository, order Order) (issued, error) {
	out := issued{cogs: decimal.Zero}
	for _, item := range order.Items {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return issued{}, err
		}
		stock, movement, err := s.ledger.Issue(ctx, tx, inventory.MovementInput{
			Type:        inventory.MovementSalesIssue,
			ProductID:   item.ProductID,
			Delta:       -item.Quantity,
			ReferenceID: order.Number,
			Warehouse:   order.Warehouse,
		})
		if err != nil {
			return issued{}, err
		}
		out.cogs = out.cogs.Add(integration.Monetary(item.Quantity, product.Cost))
		out.stock = append(out.stock, stock)
		out.movements = append(out.movements, movement)
		if warning := inventory.LowStock(product, stock); warning != nil {
			out.warnings = append(out.warnings, *warning)
		}
	}
	return out, nil
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
