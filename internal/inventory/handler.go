package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.listStock)
	r.Get("/movements", h.listMovements)
	r.Get("/adjustments", h.listAdjustments)
	r.Post("/adjustments", h.createAdjustment)
	r.Get("/transfers", h.listTransfers)
	r.Post("/transfers", h.createTransfer)
	r.Get("/warehouses", h.listWarehouses)
	r.Post("/warehouses", h.createWarehouse)
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
}

type adjustmentRequest struct {
	Warehouse string `json:"warehouse" validate:"required"`
	Notes     string `json:"notes"`
	Items     []struct {
		ProductID   int64   `json:"productId" validate:"required,gt=0"`
		ActualStock float64 `json:"actualStock" validate:"gte=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type transferRequest struct {
	FromWarehouse string `json:"fromWarehouse" validate:"required"`
	ToWarehouse   string `json:"toWarehouse" validate:"required"`
	Notes         string `json:"notes"`
	Items         []struct {
		ProductID int64   `json:"productId" validate:"required,gt=0"`
		Quantity  float64 `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type warehouseRequest struct {
	Name string `json:"name" validate:"required"`
}

type productRequest struct {
	SKU      string          `json:"sku" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Cost     decimal.Decimal `json:"cost"`
	Price    decimal.Decimal `json:"price"`
	MinStock float64         `json:"minStock" validate:"gte=0"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := AdjustmentInput{Warehouse: req.Warehouse, Notes: req.Notes}
	for _, item := range req.Items {
		input.Items = append(input.Items, AdjustmentLineInput{ProductID: item.ProductID, ActualStock: item.ActualStock})
	}
	result, err := h.service.AdjustInventory(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("inventory adjusted",
		slog.String("adjustment", result.Adjustment.Number),
		slog.Int("movements", len(result.Movements)))
	httpx.Success(w, http.StatusCreated, httpx.Envelope{
		"newAdjustment":     result.Adjustment,
		"newMovements":      result.Movements,
		"updatedStock":      result.UpdatedStock,
		"newJournalEntries": result.JournalEntries,
	})
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input := TransferInput{FromWarehouse: req.FromWarehouse, ToWarehouse: req.ToWarehouse, Notes: req.Notes}
	for _, item := range req.Items {
		input.Items = append(input.Items, TransferLineInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	result, err := h.service.TransferStock(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{
		"newTransfer":  result.Transfer,
		"newMovements": result.Movements,
		"updatedStock": result.UpdatedStock,
	})
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, err := h.service.ListStock(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"stock": items})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"movements": movements})
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	adjustments, err := h.service.ListAdjustments(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"adjustments": adjustments})
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.service.ListTransfers(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"transfers": transfers})
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"warehouses": warehouses})
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), req.Name)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"warehouse": wh})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"products": products})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		SKU:      req.SKU,
		Name:     req.Name,
		Cost:     req.Cost,
		Price:    req.Price,
		MinStock: req.MinStock,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"product": product})
}

func parseFilter(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	filter := MovementFilter{Warehouse: q.Get("warehouse"), ReferenceID: q.Get("reference")}
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return MovementFilter{}, ErrUnknownProduct
		}
		filter.ProductID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return MovementFilter{}, ErrInvalidQuantity
		}
		filter.Limit = limit
	}
	return filter, nil
}
