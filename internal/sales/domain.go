package sales

import (
	"time"
)

// ============================================================================
// ENUMS
// ============================================================================

// Status represents where a sale sits on the fulfillment journey.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusStockSeparated Status = "stock_separated"
	StatusDispatched     Status = "dispatched"
	StatusInstalling     Status = "installing"
	StatusActive         Status = "active"
	StatusCancelled      Status = "cancelled"
	StatusSuspended      Status = "suspended"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusStockSeparated, StatusDispatched,
		StatusInstalling, StatusActive, StatusCancelled, StatusSuspended:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// CanTransition reports whether a sale may move from s to target. The happy
// path is linear; cancellation and suspension are side exits from any
// non-terminal state, and a suspended sale can only resume or cancel.
func (s Status) CanTransition(target Status) bool {
	if s == target {
		return false
	}
	switch s {
	case StatusPending:
		return target == StatusInProgress || target == StatusCancelled || target == StatusSuspended
	case StatusInProgress:
		return target == StatusStockSeparated || target == StatusCancelled || target == StatusSuspended
	case StatusStockSeparated:
		return target == StatusDispatched || target == StatusCancelled || target == StatusSuspended
	case StatusDispatched:
		return target == StatusInstalling || target == StatusCancelled || target == StatusSuspended
	case StatusInstalling:
		return target == StatusActive || target == StatusCancelled || target == StatusSuspended
	case StatusActive:
		return target == StatusCancelled || target == StatusSuspended
	case StatusSuspended:
		return target == StatusActive || target == StatusCancelled
	default:
		return false
	}
}

// Description returns the canned timeline text for a status.
func (s Status) Description() string {
	switch s {
	case StatusPending:
		return "Aguardando processamento"
	case StatusInProgress:
		return "Venda em andamento"
	case StatusStockSeparated:
		return "Equipamentos separados no estoque"
	case StatusDispatched:
		return "Equipamentos despachados para instalação"
	case StatusInstalling:
		return "Instalação em andamento"
	case StatusActive:
		return "Instalação concluída - Cliente ativo"
	case StatusCancelled:
		return "Venda cancelada"
	case StatusSuspended:
		return "Serviço suspenso"
	default:
		return string(s)
	}
}

// PaymentStatus tracks the billing state of a sale.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsValid checks if the payment status is known.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentOverdue, PaymentCancelled:
		return true
	default:
		return false
	}
}

// PaymentMethod enumerates accepted billing methods.
type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "credit_card"
	MethodDebitCard  PaymentMethod = "debit_card"
	MethodBankSlip   PaymentMethod = "bank_slip"
	MethodPix        PaymentMethod = "pix"
	MethodCash       PaymentMethod = "cash"
)

// EquipmentStatus tracks one equipment line through fulfillment.
type EquipmentStatus string

const (
	EquipmentPending    EquipmentStatus = "pending"
	EquipmentSeparated  EquipmentStatus = "separated"
	EquipmentDispatched EquipmentStatus = "dispatched"
	EquipmentInstalled  EquipmentStatus = "installed"
)

// DocumentType classifies an attached document.
type DocumentType string

const (
	DocContract          DocumentType = "contract"
	DocPaymentProof      DocumentType = "payment_proof"
	DocInstallationPhoto DocumentType = "installation_photo"
	DocOther             DocumentType = "other"
)

// IsValid checks if the document type is known.
func (d DocumentType) IsValid() bool {
	switch d {
	case DocContract, DocPaymentProof, DocInstallationPhoto, DocOther:
		return true
	default:
		return false
	}
}

// ============================================================================
// ENTITIES
// ============================================================================

// Plan is the service plan embedded in a sale at contract time.
type Plan struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	Value           float64  `json:"value"`
	InstallationFee *float64 `json:"installation_fee,omitempty"`
	Features        []string `json:"features,omitempty"`
}

// Equipment is one equipment line sold with the plan.
type Equipment struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Model        string          `json:"model"`
	SerialNumber *string         `json:"serial_number,omitempty"`
	Quantity     int             `json:"quantity"`
	Status       EquipmentStatus `json:"status"`
}

// Payment is the billing sub-record of a sale.
type Payment struct {
	TotalValue       float64        `json:"total_value"`
	InstallationFee  float64        `json:"installation_fee"`
	FirstPaymentDate *time.Time     `json:"first_payment_date,omitempty"`
	Method           *PaymentMethod `json:"payment_method,omitempty"`
	Status           PaymentStatus  `json:"payment_status"`
}

// Address is the installation address of a sale.
type Address struct {
	Street       string  `json:"street"`
	Number       string  `json:"number"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood string  `json:"neighborhood"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	ZipCode      string  `json:"zip_code"`
}

// TimelineEvent is one append-only entry on the sale journey.
type TimelineEvent struct {
	Seq         int       `json:"seq"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is attached paperwork metadata. The URL is stored as given; no
// file content passes through the system.
type Document struct {
	Seq        int          `json:"seq"`
	Name       string       `json:"name"`
	Type       DocumentType `json:"type"`
	URL        string       `json:"url"`
	UploadedBy string       `json:"uploaded_by"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Sale is the contract binding a client, a plan and its fulfillment journey.
type Sale struct {
	ID                        string          `json:"id"`
	ClientID                  string          `json:"client_id"`
	ClientName                string          `json:"client_name"`
	Plan                      Plan            `json:"plan"`
	Equipments                []Equipment     `json:"equipments"`
	Payment                   Payment         `json:"payment"`
	Status                    Status          `json:"status"`
	InstallationAddress       Address         `json:"installation_address"`
	SaleDate                  time.Time       `json:"sale_date"`
	EstimatedInstallationDate *time.Time      `json:"estimated_installation_date,omitempty"`
	ActualInstallationDate    *time.Time      `json:"actual_installation_date,omitempty"`
	ActivationDate            *time.Time      `json:"activation_date,omitempty"`
	Documents                 []Document      `json:"documents"`
	Timeline                  []TimelineEvent `json:"timeline"`
	Notes                     *string         `json:"notes,omitempty"`
	InternalNotes             *string         `json:"internal_notes,omitempty"`
	CreatedBy                 string          `json:"created_by"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
	StockOrderID              *string         `json:"stock_order_id,omitempty"`
	ServiceOrderID            *string         `json:"service_order_id,omitempty"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// EquipmentRequest is one equipment line when creating or updating a sale.
type EquipmentRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name" validate:"required,max=200"`
	Model        string  `json:"model" validate:"max=100"`
	SerialNumber *string `json:"serial_number,omitempty" validate:"omitempty,max=100"`
	Quantity     int     `json:"quantity" validate:"required,gt=0"`
}

// PaymentRequest carries billing fields on create/update.
type PaymentRequest struct {
	TotalValue       float64        `json:"total_value" validate:"gte=0"`
	InstallationFee  float64        `json:"installation_fee" validate:"gte=0"`
	FirstPaymentDate *time.Time     `json:"first_payment_date,omitempty"`
	Method           *PaymentMethod `json:"payment_method,omitempty"`
	Status           PaymentStatus  `json:"payment_status,omitempty"`
}

// CreateSaleRequest registers a new sale.
type CreateSaleRequest struct {
	ClientID                  string             `json:"client_id" validate:"required"`
	ClientName                string             `json:"client_name" validate:"required,max=200"`
	Plan                      Plan               `json:"plan" validate:"required"`
	Equipments                []EquipmentRequest `json:"equipments" validate:"dive"`
	Payment                   PaymentRequest     `json:"payment"`
	InstallationAddress       Address            `json:"installation_address"`
	EstimatedInstallationDate *time.Time         `json:"estimated_installation_date,omitempty"`
	Notes                     *string            `json:"notes,omitempty"`
}

// UpdateSaleRequest patches mutable sale fields. Status is deliberately
// absent: status only changes through UpdateStatus.
type UpdateSaleRequest struct {
	Plan                      *Plan              `json:"plan,omitempty"`
	Equipments                []EquipmentRequest `json:"equipments,omitempty" validate:"omitempty,dive"`
	Payment                   *PaymentRequest    `json:"payment,omitempty"`
	InstallationAddress       *Address           `json:"installation_address,omitempty"`
	EstimatedInstallationDate *time.Time         `json:"estimated_installation_date,omitempty"`
	ActualInstallationDate    *time.Time         `json:"actual_installation_date,omitempty"`
	Notes                     *string            `json:"notes,omitempty"`
	InternalNotes             *string            `json:"internal_notes,omitempty"`
}

// UpdateStatusRequest advances the sale journey.
type UpdateStatusRequest struct {
	Status Status  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// AddDocumentRequest attaches document metadata to a sale.
type AddDocumentRequest struct {
	Name string       `json:"name" validate:"required,max=200"`
	Type DocumentType `json:"type" validate:"required"`
	URL  string       `json:"url" validate:"required,max=1000"`
}

// Filters narrows sale listings. All predicates are ANDed.
type Filters struct {
	Status        Status
	PaymentStatus PaymentStatus
	ClientID      string
	Search        string
	DateFrom      *time.Time
	DateTo        *time.Time
	MinValue      *float64
	MaxValue      *float64
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return f.Status == "" && f.PaymentStatus == "" && f.ClientID == "" &&
		f.Search == "" && f.DateFrom == nil && f.DateTo == nil &&
		f.MinValue == nil && f.MaxValue == nil
}

// ============================================================================
// STATS
// ============================================================================

// Stats summarises the sales funnel for dashboards. Recomputed on demand.
type Stats struct {
	Total                     int     `json:"total"`
	Pending                   int     `json:"pending"`
	InProgress                int     `json:"in_progress"`
	Active                    int     `json:"active"`
	Cancelled                 int     `json:"cancelled"`
	TotalRevenue              float64 `json:"total_revenue"`
	TotalRevenueFormatted     string  `json:"total_revenue_formatted"`
	AverageTicket             float64 `json:"average_ticket"`
	AverageTicketFormatted    string  `json:"average_ticket_formatted"`
	ThisMonthSales            int     `json:"this_month_sales"`
	ThisMonthRevenue          float64 `json:"this_month_revenue"`
	ThisMonthRevenueFormatted string  `json:"this_month_revenue_formatted"`
}

// ============================================================================
// PLAN CATALOG
// ============================================================================

func strptr(s string) *string { return &s }

func f64ptr(f float64) *float64 { return &f }

// AvailablePlans is the fixed plan catalog offered by the console.
var AvailablePlans = []Plan{
	{
		ID:              "plan-replay-gold",
		Name:            "Replay Gold",
		Description:     strptr("Plano premium com recursos avançados"),
		Value:           199.9,
		InstallationFee: f64ptr(99.9),
		Features:        []string{"Suporte 24/7", "Equipamentos premium", "Instalação grátis"},
	},
	{
		ID:              "plan-replay-silver",
		Name:            "Replay Silver",
		Description:     strptr("Plano intermediário com ótimo custo-benefício"),
		Value:           149.9,
		InstallationFee: f64ptr(79.9),
		Features:        []string{"Suporte em horário comercial", "Equipamentos padrão"},
	},
	{
		ID:              "plan-replay-bronze",
		Name:            "Replay Bronze",
		Description:     strptr("Plano básico ideal para iniciantes"),
		Value:           99.9,
		InstallationFee: f64ptr(59.9),
		Features:        []string{"Suporte por email", "Equipamentos básicos"},
	},
	{
		ID:              "plan-replay-business",
		Name:            "Replay Business",
		Description:     strptr("Plano empresarial com recursos corporativos"),
		Value:           299.9,
		InstallationFee: f64ptr(149.9),
		Features:        []string{"Suporte dedicado", "SLA garantido", "Equipamentos empresariais"},
	},
}
