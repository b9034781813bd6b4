package manufacturing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes manufacturing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers BOM and work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/boms", h.listBOMs)
	r.Post("/boms", h.createBOM)
	r.Get("/work-orders", h.listWorkOrders)
	r.Post("/work-orders", h.createWorkOrder)
	r.Get("/work-orders/{id}", h.getWorkOrder)
	r.Post("/work-orders/{id}/complete", h.completeWorkOrder)
	r.Post("/work-orders/{id}/cancel", h.cancelWorkOrder)
}

type bomRequest struct {
	ProductID  int64 `json:"productId" validate:"required,gt=0"`
	Components []struct {
		ProductID    int64   `json:"productId" validate:"required,gt=0"`
		Quantity     float64 `json:"quantity" validate:"gt=0"`
		WastePercent float64 `json:"wastePercent" validate:"gte=0"`
	} `json:"components" validate:"required,min=1,dive"`
}

type workOrderRequest struct {
	BOMNumber string   `json:"bomId" validate:"required"`
	Quantity  float64  `json:"quantityToProduce" validate:"gt=0"`
	Warehouse string   `json:"warehouse" validate:"required"`
	Steps     []string `json:"productionSteps" validate:"omitempty,dive,required"`
}

type completeRequest struct {
	ActualCost *decimal.Decimal `json:"actualCost"`
}

func (h *Handler) createBOM(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := BOMInput{ProductID: req.ProductID}
	for _, c := range req.Components {
		input.Components = append(input.Components, ComponentInput{ProductID: c.ProductID, Quantity: c.Quantity, WastePercent: c.WastePercent})
	}
	bom, err := h.service.CreateBOM(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newBOM": bom})
}

func (h *Handler) listBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := h.service.ListBOMs(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"boms": boms})
}

func (h *Handler) createWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req workOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	wo, err := h.service.CreateWorkOrder(r.Context(), WorkOrderInput{
		BOMNumber: req.BOMNumber,
		Quantity:  req.Quantity,
		Warehouse: req.Warehouse,
		Steps:     req.Steps,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newWorkOrder": wo})
}

func (h *Handler) listWorkOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListWorkOrders(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"workOrders": orders})
}

func (h *Handler) getWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := h.service.GetWorkOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"workOrder": wo})
}

func (h *Handler) completeWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	result, err := h.service.CompleteWorkOrder(r.Context(), chi.URLParam(r, "id"), CompletionInput{ActualCost: req.ActualCost})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{
		"updatedWorkOrder": result.WorkOrder,
		"newMovements":     result.Movements,
		"updatedStock":     result.UpdatedStock,
	})
}

func (h *Handler) cancelWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := h.service.CancelWorkOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"updatedWorkOrder": wo})
}
