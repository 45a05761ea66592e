package separation

import (
	"time"
)

// Status represents the picking lifecycle of a separation order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSeparating Status = "separating"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSeparating, StatusReady, StatusDispatched, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an order may move from s to target.
func (s Status) CanTransition(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusSeparating || target == StatusCancelled
	case StatusSeparating:
		return target == StatusReady || target == StatusCancelled
	case StatusReady:
		return target == StatusDispatched
	default:
		return false
	}
}

// Open reports whether the order still has picking work ahead of it.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusSeparating
}

// Line is one item to pick for an order.
type Line struct {
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	Model     string `json:"model"`
	Quantity  int    `json:"quantity"`
	Separated bool   `json:"separated"`
}

// Order is a warehouse picking task generated from a sale.
type Order struct {
	ID          string     `json:"id"`
	SaleID      string     `json:"sale_id"`
	ClientID    string     `json:"client_id"`
	ClientName  string     `json:"client_name"`
	PlanName    string     `json:"plan_name"`
	Lines       []Line     `json:"lines"`
	Status      Status     `json:"status"`
	Deadline    time.Time  `json:"deadline"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	SeparatedBy *string    `json:"separated_by,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// CreateLineRequest is one item line when opening an order.
type CreateLineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	ItemName string `json:"item_name" validate:"required"`
	Model    string `json:"model"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// CreateFromSaleRequest opens a picking order for a sale.
type CreateFromSaleRequest struct {
	SaleID     string              `json:"sale_id" validate:"required"`
	ClientID   string              `json:"client_id" validate:"required"`
	ClientName string              `json:"client_name" validate:"required"`
	PlanName   string              `json:"plan_name"`
	Lines      []CreateLineRequest `json:"lines" validate:"required,min=1,dive"`
	Deadline   time.Time           `json:"deadline" validate:"required"`
	Notes      *string             `json:"notes,omitempty"`
}

// Filters narrows order listings.
type Filters struct {
	Status Status
	SaleID string
}
