package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/status", h.updateStatus)
		r.Post("/payments", h.recordPayment)
	})
}

type createRequest struct {
	Supplier  string `json:"supplier" validate:"required"`
	Warehouse string `json:"warehouse" validate:"required"`
	Items     []struct {
		ProductID int64           `json:"productId" validate:"required,gt=0"`
		Quantity  float64         `json:"quantity" validate:"gt=0"`
		UnitCost  decimal.Decimal `json:"unitCost"`
	} `json:"items" validate:"required,min=1,dive"`
	TaxRate decimal.Decimal `json:"taxRate"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT ORDERED RECEIVED CANCELLED"`
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,oneof=cash bank"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := CreatePOInput{Supplier: req.Supplier, Warehouse: req.Warehouse, TaxRate: req.TaxRate}
	for _, item := range req.Items {
		input.Items = append(input.Items, POLineInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: item.UnitCost})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newPO": po})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.UpdatePurchaseOrderStatus(r.Context(), chi.URLParam(r, "id"), POStatus(req.Status))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body := httpx.Envelope{
		"updatedPO":    result.PurchaseOrder,
		"newMovements": result.Movements,
		"updatedStock": result.UpdatedStock,
	}
	if result.JournalEntry != nil {
		body["newJournalEntry"] = result.JournalEntry
	}
	httpx.Success(w, http.StatusOK, body)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.RecordPurchasePayment(r.Context(), chi.URLParam(r, "id"), PaymentInput{
		Amount: req.Amount,
		Method: shared.PaymentMethod(req.Method),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"updatedPO":       result.PurchaseOrder,
		"newJournalEntry": result.JournalEntry,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	pos, err := h.service.ListPurchaseOrders(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"purchaseOrders": pos})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"purchaseOrder": po})
}

// PayablesAging serves the open payables grouped by supplier.
func (h *Handler) PayablesAging(w http.ResponseWriter, r *http.Request) {
	aging, err := h.service.PayablesAging(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"aging": aging})
}
