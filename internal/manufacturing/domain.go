package manufacturing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// WorkOrderStatus tracks a production run.
type WorkOrderStatus string

const (
	WorkOrderStatusPlanned   WorkOrderStatus = "PLANNED"
	WorkOrderStatusCompleted WorkOrderStatus = "COMPLETED"
	WorkOrderStatusCancelled WorkOrderStatus = "CANCELLED"
)

// Document number prefixes owned by manufacturing.
const (
	BOMPrefix       = "BOM"
	WorkOrderPrefix = "WO"
)

// DefaultSteps are used when a work order is created without explicit steps.
var DefaultSteps = []string{"Material preparation", "Production", "Quality check"}

// Component is one raw material consumed per unit of finished good.
type Component struct {
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	Quantity     float64 `json:"quantity"`
	WastePercent float64 `json:"wastePercent"`
}

// Required returns the quantity consumed to produce produced units,
// including the waste allowance.
func (c Component) Required(produced float64) float64 {
	return c.Quantity * produced * (1 + c.WastePercent/100)
}

// BOM is the bill of materials for one finished good.
type BOM struct {
	ID          int64       `json:"-"`
	Number      string      `json:"id"`
	ProductID   int64       `json:"productId"`
	ProductName string      `json:"productName"`
	Components  []Component `json:"components"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ProductionStep is one stage of a work order.
type ProductionStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// WorkOrder produces Quantity units of a BOM's finished good in Warehouse.
type WorkOrder struct {
	ID            int64            `json:"-"`
	Number        string           `json:"id"`
	BOMNumber     string           `json:"bomId"`
	ProductID     int64            `json:"productId"`
	ProductName   string           `json:"productName"`
	Quantity      float64          `json:"quantityToProduce"`
	Warehouse     string           `json:"warehouse"`
	Status        WorkOrderStatus  `json:"status"`
	Steps         []ProductionStep `json:"productionSteps"`
	EstimatedCost decimal.Decimal  `json:"estimatedCost"`
	ActualCost    decimal.Decimal  `json:"actualCost"`
	CreatedAt     time.Time        `json:"createdAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

var (
	// ErrBOMNotFound indicates an unknown bill of materials.
	ErrBOMNotFound = fmt.Errorf("manufacturing: bill of materials not found: %w", shared.ErrNotFound)
	// ErrWorkOrderNotFound indicates an unknown work order.
	ErrWorkOrderNotFound = fmt.Errorf("manufacturing: work order not found: %w", shared.ErrNotFound)
	// ErrAlreadyCompleted guards repeated completion.
	ErrAlreadyCompleted = fmt.Errorf("manufacturing: work order already completed: %w", shared.ErrConflict)
	// ErrCancelled indicates the work order can no longer run.
	ErrCancelled = fmt.Errorf("manufacturing: work order cancelled: %w", shared.ErrConflict)
	// ErrEmptyBOM indicates a BOM without components.
	ErrEmptyBOM = fmt.Errorf("manufacturing: bill of materials requires at least one component: %w", shared.ErrValidation)
	// ErrSelfComponent indicates a BOM that consumes its own finished good.
	ErrSelfComponent = fmt.Errorf("manufacturing: finished good cannot be its own component: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("manufacturing: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidWaste indicates a negative waste allowance.
	ErrInvalidWaste = fmt.Errorf("manufacturing: waste percent must not be negative: %w", shared.ErrValidation)
	// ErrInvalidCost indicates a negative actual cost.
	ErrInvalidCost = fmt.Errorf("manufacturing: actual cost must not be negative: %w", shared.ErrValidation)
	// ErrInsufficientMaterial is the sentinel behind InsufficientMaterialError.
	ErrInsufficientMaterial = fmt.Errorf("manufacturing: insufficient material: %w", shared.ErrValidation)
)

// InsufficientMaterialError names the first raw material short for a run.
type InsufficientMaterialError struct {
	ProductID int64
	Name      string
	Required  float64
	Available float64
}

// Shortfall is the missing quantity.
func (e *InsufficientMaterialError) Shortfall() float64 {
	return e.Required - e.Available
}

func (e *InsufficientMaterialError) Error() string {
	return fmt.Sprintf("manufacturing: insufficient %s: required %.2f, available %.2f, short %.2f",
		e.Name, e.Required, e.Available, e.Shortfall())
}

// Unwrap exposes ErrInsufficientMaterial.
func (e *InsufficientMaterialError) Unwrap() error {
	return ErrInsufficientMaterial
}
