package stock

import (
	"time"
)

// ============================================================================
// ENUMS
// ============================================================================

// Category classifies a trackable equipment SKU.
type Category string

const (
	CategoryRouter    Category = "router"
	CategorySwitch    Category = "switch"
	CategoryConverter Category = "converter"
	CategoryCable     Category = "cable"
	CategoryCamera    Category = "camera"
	CategoryAccessory Category = "accessory"
	CategoryOther     Category = "other"
)

// IsValid checks if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRouter, CategorySwitch, CategoryConverter, CategoryCable,
		CategoryCamera, CategoryAccessory, CategoryOther:
		return true
	default:
		return false
	}
}

// ItemStatus represents the availability state of a stock item.
type ItemStatus string

const (
	ItemStatusAvailable     ItemStatus = "available"
	ItemStatusReserved      ItemStatus = "reserved"
	ItemStatusSeparated     ItemStatus = "separated"
	ItemStatusDispatched    ItemStatus = "dispatched"
	ItemStatusInMaintenance ItemStatus = "in_maintenance"
	ItemStatusDefective     ItemStatus = "defective"
)

// IsValid checks if the status is known.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusAvailable, ItemStatusReserved, ItemStatusSeparated,
		ItemStatusDispatched, ItemStatusInMaintenance, ItemStatusDefective:
		return true
	default:
		return false
	}
}

// MovementType enumerates supported stock movements.
type MovementType string

const (
	MovementTypeEntry      MovementType = "entry"
	MovementTypeExit       MovementType = "exit"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeReturn     MovementType = "return"
	MovementTypeLoss       MovementType = "loss"
)

// ReferenceType tags the operation that originated a movement.
type ReferenceType string

const (
	ReferenceTypeEntry    ReferenceType = "entry"
	ReferenceTypeDispatch ReferenceType = "dispatch"
	ReferenceTypeSale     ReferenceType = "sale"
)

// DispatchStatus represents the lifecycle of a dispatch.
type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "pending"
	DispatchStatusDispatched DispatchStatus = "dispatched"
	DispatchStatusDelivered  DispatchStatus = "delivered"
	DispatchStatusCancelled  DispatchStatus = "cancelled"
)

// IsValid checks if the status is known.
func (s DispatchStatus) IsValid() bool {
	switch s {
	case DispatchStatusPending, DispatchStatusDispatched, DispatchStatusDelivered, DispatchStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a dispatch may move from s to target.
func (s DispatchStatus) CanTransition(target DispatchStatus) bool {
	switch s {
	case DispatchStatusPending:
		return target == DispatchStatusDispatched || target == DispatchStatusCancelled
	case DispatchStatusDispatched:
		return target == DispatchStatusDelivered || target == DispatchStatusCancelled
	default:
		return false
	}
}

// ============================================================================
// ENTITIES
// ============================================================================

// Location describes the physical placement of an item in the warehouse.
type Location struct {
	Warehouse string  `json:"warehouse"`
	Shelf     *string `json:"shelf,omitempty"`
	Position  *string `json:"position,omitempty"`
}

// Item is a distinct, trackable equipment SKU with its on-hand quantity.
type Item struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Model            string     `json:"model"`
	Category         Category   `json:"category"`
	Manufacturer     *string    `json:"manufacturer,omitempty"`
	Quantity         int        `json:"quantity"`
	ReservedQuantity int        `json:"reserved_quantity"`
	MinimumStock     int        `json:"minimum_stock"`
	Location         Location   `json:"location"`
	Status           ItemStatus `json:"status"`
	UnitPrice        *float64   `json:"unit_price,omitempty"`
	Supplier         *string    `json:"supplier,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LowStock reports whether the item is at or below its reorder threshold.
func (i Item) LowStock() bool {
	return i.Quantity <= i.MinimumStock
}

// Movement is an immutable audit record of a single quantity change.
type Movement struct {
	ID               string         `json:"id"`
	ItemID           string         `json:"item_id"`
	ItemName         string         `json:"item_name"`
	Type             MovementType   `json:"type"`
	Quantity         int            `json:"quantity"` // signed: positive in, negative out
	Description      string         `json:"description"`
	PerformedBy      string         `json:"performed_by"`
	PreviousQuantity int            `json:"previous_quantity"`
	NewQuantity      int            `json:"new_quantity"`
	ReferenceID      *string        `json:"reference_id,omitempty"`
	ReferenceType    *ReferenceType `json:"reference_type,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Entry is a receipt-of-goods record.
type Entry struct {
	ID            string     `json:"id"`
	ItemID        string     `json:"item_id"`
	ItemName      string     `json:"item_name"`
	Quantity      int        `json:"quantity"`
	UnitPrice     float64    `json:"unit_price"`
	TotalPrice    float64    `json:"total_price"`
	Supplier      string     `json:"supplier"`
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
	ReceivedBy    string     `json:"received_by"`
	ReceivedDate  time.Time  `json:"received_date"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DispatchLine is one shipped item inside a dispatch.
type DispatchLine struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// Dispatch is a shipment-of-goods record, optionally linked to a sale.
type Dispatch struct {
	ID                string         `json:"id"`
	Lines             []DispatchLine `json:"lines"`
	SaleID            *string        `json:"sale_id,omitempty"`
	ClientID          *string        `json:"client_id,omitempty"`
	ClientName        *string        `json:"client_name,omitempty"`
	SeparationOrderID *string        `json:"separation_order_id,omitempty"`
	Destination       string         `json:"destination"`
	DispatchDate      time.Time      `json:"dispatch_date"`
	DispatchedBy      string         `json:"dispatched_by"`
	Technician        *string        `json:"technician,omitempty"`
	TechnicianContact *string        `json:"technician_contact,omitempty"`
	Status            DispatchStatus `json:"status"`
	TrackingCode      *string        `json:"tracking_code,omitempty"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time     `json:"actual_delivery,omitempty"`
	Notes             *string        `json:"notes,omitempty"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateItemRequest registers a new SKU, optionally with an opening quantity.
type CreateItemRequest struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Model        string     `json:"model" validate:"required,max=100"`
	Category     Category   `json:"category" validate:"required"`
	Manufacturer *string    `json:"manufacturer,omitempty" validate:"omitempty,max=200"`
	Quantity     int        `json:"quantity" validate:"gte=0"`
	MinimumStock int        `json:"minimum_stock" validate:"gte=0"`
	Location     Location   `json:"location"`
	Status       ItemStatus `json:"status,omitempty"`
	UnitPrice    *float64   `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Supplier     *string    `json:"supplier,omitempty" validate:"omitempty,max=200"`
	Notes        *string    `json:"notes,omitempty"`
}

// UpdateItemRequest patches mutable item fields. Quantity is deliberately
// absent: quantity changes only flow through entries and dispatches.
type UpdateItemRequest struct {
	Name         *string     `json:"name,omitempty" validate:"omitempty,max=200"`
	Model        *string     `json:"model,omitempty" validate:"omitempty,max=100"`
	Category     *Category   `json:"category,omitempty"`
	Manufacturer *string     `json:"manufacturer,omitempty" validate:"omitempty,max=200"`
	MinimumStock *int        `json:"minimum_stock,omitempty" validate:"omitempty,gte=0"`
	Location     *Location   `json:"location,omitempty"`
	Status       *ItemStatus `json:"status,omitempty"`
	UnitPrice    *float64    `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Supplier     *string     `json:"supplier,omitempty" validate:"omitempty,max=200"`
	Notes        *string     `json:"notes,omitempty"`
}

// CreateEntryRequest receives goods against an existing item.
type CreateEntryRequest struct {
	ItemID        string     `json:"item_id" validate:"required"`
	Quantity      int        `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64    `json:"unit_price" validate:"gte=0"`
	Supplier      string     `json:"supplier" validate:"required,max=200"`
	InvoiceNumber *string    `json:"invoice_number,omitempty" validate:"omitempty,max=100"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	RequestKey    string     `json:"request_key,omitempty"`
}

// CreateDispatchLineRequest is a line item in a dispatch request.
type CreateDispatchLineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// CreateDispatchRequest ships goods out of the warehouse.
type CreateDispatchRequest struct {
	Lines             []CreateDispatchLineRequest `json:"lines" validate:"required,min=1,dive"`
	SaleID            *string                     `json:"sale_id,omitempty"`
	ClientID          *string                     `json:"client_id,omitempty"`
	ClientName        *string                     `json:"client_name,omitempty"`
	SeparationOrderID *string                     `json:"separation_order_id,omitempty"`
	Destination       string                      `json:"destination" validate:"required,max=500"`
	DispatchDate      time.Time                   `json:"dispatch_date" validate:"required"`
	Technician        *string                     `json:"technician,omitempty" validate:"omitempty,max=200"`
	TechnicianContact *string                     `json:"technician_contact,omitempty" validate:"omitempty,max=100"`
	TrackingCode      *string                     `json:"tracking_code,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time                  `json:"estimated_delivery,omitempty"`
	Notes             *string                     `json:"notes,omitempty"`
	RequestKey        string                      `json:"request_key,omitempty"`
}

// ReservationLineRequest reserves quantity for a sale without moving stock.
type ReservationLineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// Filters narrows item listings. All predicates are ANDed.
type Filters struct {
	Category  Category
	Status    ItemStatus
	Warehouse string
	LowStock  bool
	Search    string
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return f.Category == "" && f.Status == "" && f.Warehouse == "" && !f.LowStock && f.Search == ""
}

// ============================================================================
// STATS
// ============================================================================

// CategoryCount pairs a category with its item count.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Stats summarises the warehouse for dashboards. Recomputed on demand.
type Stats struct {
	TotalItems          int             `json:"total_items"`
	TotalValue          float64         `json:"total_value"`
	TotalValueFormatted string          `json:"total_value_formatted"`
	LowStockItems       int             `json:"low_stock_items"`
	AvailableItems      int             `json:"available_items"`
	ReservedItems       int             `json:"reserved_items"`
	DispatchedItems     int             `json:"dispatched_items"`
	DefectiveItems      int             `json:"defective_items"`
	PendingSeparations  int             `json:"pending_separations"`
	Categories          []CategoryCount `json:"categories"`
}
