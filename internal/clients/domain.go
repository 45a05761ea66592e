package clients

import (
	"time"
)

// Status represents the standing of a client.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
	StatusPending  Status = "pending"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusBlocked, StatusPending:
		return true
	default:
		return false
	}
}

// Type distinguishes residential and commercial clients.
type Type string

const (
	TypeResidential Type = "residential"
	TypeCommercial  Type = "commercial"
)

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	return t == TypeResidential || t == TypeCommercial
}

// DocumentType is the Brazilian tax id kind.
type DocumentType string

const (
	DocCPF  DocumentType = "cpf"
	DocCNPJ DocumentType = "cnpj"
)

// IsValid checks if the document type is known.
func (d DocumentType) IsValid() bool {
	return d == DocCPF || d == DocCNPJ
}

// Address is one service address of a client.
type Address struct {
	Street        string  `json:"street"`
	Number        string  `json:"number"`
	Complement    *string `json:"complement,omitempty"`
	Neighborhood  string  `json:"neighborhood"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zip_code"`
	IsMainAddress bool    `json:"is_main_address"`
}

// Client is a service subscriber.
type Client struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Email             string       `json:"email"`
	Phone             string       `json:"phone"`
	AlternativePhone  *string      `json:"alternative_phone,omitempty"`
	Document          string       `json:"document"`
	DocumentType      DocumentType `json:"document_type"`
	Type              Type         `json:"type"`
	Status            Status       `json:"status"`
	Addresses         []Address    `json:"addresses"`
	CompanyName       *string      `json:"company_name,omitempty"`
	TradeName         *string      `json:"trade_name,omitempty"`
	StateRegistration *string      `json:"state_registration,omitempty"`
	Notes             *string      `json:"notes,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
	LastServiceDate   *time.Time   `json:"last_service_date,omitempty"`
	CreatedBy         string       `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// CreateClientRequest registers a new client.
type CreateClientRequest struct {
	Name              string       `json:"name" validate:"required,max=200"`
	Email             string       `json:"email" validate:"required,email"`
	Phone             string       `json:"phone" validate:"required,max=30"`
	AlternativePhone  *string      `json:"alternative_phone,omitempty" validate:"omitempty,max=30"`
	Document          string       `json:"document" validate:"required,max=20"`
	DocumentType      DocumentType `json:"document_type" validate:"required"`
	Type              Type         `json:"type" validate:"required"`
	Status            Status       `json:"status,omitempty"`
	Addresses         []Address    `json:"addresses" validate:"required,min=1"`
	CompanyName       *string      `json:"company_name,omitempty" validate:"omitempty,max=200"`
	TradeName         *string      `json:"trade_name,omitempty" validate:"omitempty,max=200"`
	StateRegistration *string      `json:"state_registration,omitempty" validate:"omitempty,max=50"`
	Notes             *string      `json:"notes,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
}

// UpdateClientRequest patches mutable client fields.
type UpdateClientRequest struct {
	Name             *string   `json:"name,omitempty" validate:"omitempty,max=200"`
	Email            *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	AlternativePhone *string   `json:"alternative_phone,omitempty" validate:"omitempty,max=30"`
	Status           *Status   `json:"status,omitempty"`
	Addresses        []Address `json:"addresses,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
}

// Filters narrows client listings.
type Filters struct {
	Status Status
	Type   Type
	Search string
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return f.Status == "" && f.Type == "" && f.Search == ""
}

// Stats summarises the client base for dashboards.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Blocked  int `json:"blocked"`
	Pending  int `json:"pending"`
}
