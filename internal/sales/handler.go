package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Post("/pos", h.createAndComplete)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Post("/complete", h.completeOrder)
		r.Post("/cancel", h.cancelOrder)
		r.Post("/payments", h.recordPayment)
		r.Get("/returns", h.listReturns)
		r.Post("/returns", h.createReturn)
	})
}

type orderLineRequest struct {
	ProductID int64           `json:"productId" validate:"required,gt=0"`
	Quantity  float64         `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

type orderRequest struct {
	Customer  string             `json:"customer" validate:"required"`
	Warehouse string             `json:"warehouse" validate:"required"`
	Items     []orderLineRequest `json:"items" validate:"required,min=1,dive"`
	Discount  decimal.Decimal    `json:"discount"`
	TaxRate   decimal.Decimal    `json:"taxRate"`
	Method    string             `json:"paymentMethod" validate:"omitempty,oneof=cash bank"`
}

func (req orderRequest) input() OrderInput {
	in := OrderInput{Customer: req.Customer, Warehouse: req.Warehouse, Discount: req.Discount, TaxRate: req.TaxRate}
	for _, item := range req.Items {
		in.Items = append(in.Items, OrderLineInput{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	return in
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,oneof=cash bank"`
}

type returnRequest struct {
	Items []struct {
		ProductID int64   `json:"productId" validate:"required,gt=0"`
		Quantity  float64 `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	PreTaxRefund decimal.Decimal `json:"preTaxRefund"`
	Method       string          `json:"method" validate:"omitempty,oneof=cash bank credit"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newOrder": order})
}

func (h *Handler) createAndComplete(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.CreateAndCompleteOrder(r.Context(), req.input(), shared.PaymentMethod(req.Method))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("pos order completed", slog.String("order", result.Order.Number), slog.String("total", result.Order.Total.String()))
	httpx.Success(w, http.StatusCreated, httpx.Envelope{
		"newOrder":          result.Order,
		"newJournalEntries": result.JournalEntries,
		"updatedStock":      result.UpdatedStock,
		"newMovements":      result.Movements,
		"stockWarning":      result.StockWarnings,
	})
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CompleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	for _, warning := range result.StockWarnings {
		h.logger.Warn("low stock", slog.String("message", warning.Message()))
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"updatedOrder":      result.Order,
		"updatedStock":      result.UpdatedStock,
		"newMovements":      result.Movements,
		"stockWarning":      result.StockWarnings,
		"newJournalEntries": result.JournalEntries,
	})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"updatedOrder": order})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.RecordOrderPayment(r.Context(), chi.URLParam(r, "id"), PaymentInput{
		Amount: req.Amount,
		Method: shared.PaymentMethod(req.Method),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"updatedOrder":    result.Order,
		"newJournalEntry": result.JournalEntry,
	})
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := ReturnInput{PreTaxRefund: req.PreTaxRefund, Method: shared.PaymentMethod(req.Method)}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReturnLineInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	result, err := h.service.CreateSalesReturn(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{
		"newReturn":       result.Return,
		"updatedStock":    result.UpdatedStock,
		"newMovements":    result.Movements,
		"newJournalEntry": result.JournalEntry,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"orders": orders})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"order": order})
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := h.service.ListReturns(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"returns": returns})
}

// ReceivablesAging serves the open receivables grouped by customer.
func (h *Handler) ReceivablesAging(w http.ResponseWriter, r *http.Request) {
	aging, err := h.service.ReceivablesAging(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"aging": aging})
}
