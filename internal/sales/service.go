package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/replay-console/replay-console/internal/platform/httpx"
	"github.com/replay-console/replay-console/internal/shared"
)

// SeparationDeadline is how long the warehouse has to pick a new sale.
const SeparationDeadline = 72 * time.Hour

// Common errors.
var (
	ErrSaleNotFound = fmt.Errorf("%w: sale", httpx.ErrNotFound)
	ErrStaleStatus  = errors.New("sale status changed concurrently")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fmt.Sprintf(format, args...))
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InsertSale(ctx context.Context, sale Sale) error
	GetSale(ctx context.Context, id string) (Sale, error)
	ListSales(ctx context.Context, filters Filters) ([]Sale, error)
	UpdateStatusWithEvent(ctx context.Context, id string, from, to Status, event TimelineEvent, stamp DateStamp, now time.Time) error
	UpdateSale(ctx context.Context, id string, patch UpdateSaleRequest, equipments []Equipment, now time.Time) error
	AppendDocument(ctx context.Context, saleID string, doc Document) (Document, error)
	DeleteSale(ctx context.Context, id string) error
}

// SeparationLinePayload is one equipment line handed to the picking worker.
type SeparationLinePayload struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Model    string `json:"model"`
	Quantity int    `json:"quantity"`
}

// CreateSeparationPayload asks the worker to open a picking order for a sale.
type CreateSeparationPayload struct {
	SaleID     string                  `json:"sale_id"`
	ClientID   string                  `json:"client_id"`
	ClientName string                  `json:"client_name"`
	PlanName   string                  `json:"plan_name"`
	Lines      []SeparationLinePayload `json:"lines"`
	Deadline   time.Time               `json:"deadline"`
	Actor      string                  `json:"actor"`
}

// SeparationQueue enqueues the best-effort picking order creation.
type SeparationQueue interface {
	EnqueueCreateSeparation(ctx context.Context, payload CreateSeparationPayload) error
}

// SeparationCanceller closes open picking orders when a sale goes away.
type SeparationCanceller interface {
	CancelOpenBySale(ctx context.Context, saleID, actor string) (int, error)
}

// Service coordinates the sale lifecycle.
type Service struct {
	repo        RepositoryPort
	queue       SeparationQueue
	separations SeparationCanceller
	logger      *slog.Logger
	statsGroup  singleflight.Group
}

// NewService builds Service. queue and separations are optional.
func NewService(repo RepositoryPort, queue SeparationQueue, separations SeparationCanceller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, queue: queue, separations: separations, logger: logger}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateSale registers a sale in pending status with the opening timeline
// event, then asks the worker to open a picking order for its equipments.
// A queue failure is logged and never fails the sale.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest, actor string) (Sale, error) {
	if req.Plan.Name == "" {
		return Sale{}, validationErr("plan is required")
	}
	if req.Payment.Status != "" && !req.Payment.Status.IsValid() {
		return Sale{}, validationErr("unknown payment status %q", req.Payment.Status)
	}
	for _, eq := range req.Equipments {
		if eq.Quantity <= 0 {
			return Sale{}, validationErr("equipment quantity must be positive")
		}
	}

	now := time.Now()
	paymentStatus := req.Payment.Status
	if paymentStatus == "" {
		paymentStatus = PaymentPending
	}

	sale := Sale{
		ID:         uuid.NewString(),
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Plan:       req.Plan,
		Payment: Payment{
			TotalValue:       req.Payment.TotalValue,
			InstallationFee:  req.Payment.InstallationFee,
			FirstPaymentDate: req.Payment.FirstPaymentDate,
			Method:           req.Payment.Method,
			Status:           paymentStatus,
		},
		Status:                    StatusPending,
		InstallationAddress:       req.InstallationAddress,
		SaleDate:                  now,
		EstimatedInstallationDate: req.EstimatedInstallationDate,
		Notes:                     req.Notes,
		CreatedBy:                 actor,
		CreatedAt:                 now,
		UpdatedAt:                 now,
		Timeline: []TimelineEvent{{
			Seq:         1,
			Status:      StatusPending,
			Description: "Venda registrada no sistema",
			CreatedBy:   actor,
			CreatedAt:   now,
		}},
	}
	for _, eq := range req.Equipments {
		id := eq.ID
		if id == "" {
			id = uuid.NewString()
		}
		sale.Equipments = append(sale.Equipments, Equipment{
			ID:           id,
			Name:         eq.Name,
			Model:        eq.Model,
			SerialNumber: eq.SerialNumber,
			Quantity:     eq.Quantity,
			Status:       EquipmentPending,
		})
	}

	if err := s.repo.InsertSale(ctx, sale); err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	if len(sale.Equipments) > 0 && s.queue != nil {
		payload := CreateSeparationPayload{
			SaleID:     sale.ID,
			ClientID:   sale.ClientID,
			ClientName: sale.ClientName,
			PlanName:   sale.Plan.Name,
			Deadline:   now.Add(SeparationDeadline),
			Actor:      actor,
		}
		for _, eq := range sale.Equipments {
			payload.Lines = append(payload.Lines, SeparationLinePayload{
				ItemID:   eq.ID,
				ItemName: eq.Name,
				Model:    eq.Model,
				Quantity: eq.Quantity,
			})
		}
		if err := s.queue.EnqueueCreateSeparation(ctx, payload); err != nil {
			s.logger.Error("enqueue separation order creation",
				slog.String("sale_id", sale.ID),
				slog.Any("error", err))
		}
	}

	return sale, nil
}

// ============================================================================
// READ
// ============================================================================

// GetSale fetches one sale by id.
func (s *Service) GetSale(ctx context.Context, id string) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales returns sales matching all supplied predicates, newest first.
// Equality and date predicates run in SQL; search and value range here.
func (s *Service) ListSales(ctx context.Context, filters Filters) ([]Sale, error) {
	sales, err := s.repo.ListSales(ctx, filters)
	if err != nil {
		return nil, err
	}
	if filters.Search == "" && filters.MinValue == nil && filters.MaxValue == nil {
		return sales, nil
	}

	search := strings.ToLower(filters.Search)
	matched := make([]Sale, 0, len(sales))
	for _, sale := range sales {
		if search != "" && !matchesSearch(sale, search) {
			continue
		}
		if filters.MinValue != nil && sale.Payment.TotalValue < *filters.MinValue {
			continue
		}
		if filters.MaxValue != nil && sale.Payment.TotalValue > *filters.MaxValue {
			continue
		}
		matched = append(matched, sale)
	}
	return matched, nil
}

func matchesSearch(sale Sale, search string) bool {
	if strings.Contains(strings.ToLower(sale.ClientName), search) {
		return true
	}
	if strings.Contains(strings.ToLower(sale.Plan.Name), search) {
		return true
	}
	return strings.Contains(strings.ToLower(sale.ID), search)
}

// Plans returns the fixed plan catalog.
func (s *Service) Plans() []Plan {
	return AvailablePlans
}

// ============================================================================
// STATUS
// ============================================================================

// UpdateStatus advances the sale journey: the status column and exactly one
// timeline event change together. Reaching active stamps the activation and
// actual installation dates.
func (s *Service) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest, actor string) (Sale, error) {
	if !req.Status.IsValid() {
		return Sale{}, validationErr("unknown status %q", req.Status)
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	if !sale.Status.CanTransition(req.Status) {
		return Sale{}, validationErr("cannot move sale from %s to %s", sale.Status, req.Status)
	}

	now := time.Now()
	var stamp DateStamp
	if req.Status == StatusActive {
		stamp.ActivationDate = &now
		if sale.ActualInstallationDate == nil {
			stamp.ActualInstallationDate = &now
		}
	}

	event := TimelineEvent{
		Status:      req.Status,
		Description: req.Status.Description(),
		Notes:       req.Notes,
		CreatedBy:   actor,
		CreatedAt:   now,
	}
	if err := s.repo.UpdateStatusWithEvent(ctx, id, sale.Status, req.Status, event, stamp, now); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return Sale{}, validationErr("cannot move sale from %s to %s", sale.Status, req.Status)
		}
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// ============================================================================
// UPDATE / DOCUMENTS / DELETE
// ============================================================================

// UpdateSale patches mutable fields. A supplied equipments list replaces the
// lines; lines matching an existing equipment id keep their fulfillment
// status, new lines start pending.
func (s *Service) UpdateSale(ctx context.Context, id string, patch UpdateSaleRequest) (Sale, error) {
	if patch.Payment != nil && patch.Payment.Status != "" && !patch.Payment.Status.IsValid() {
		return Sale{}, validationErr("unknown payment status %q", patch.Payment.Status)
	}

	var equipments []Equipment
	if patch.Equipments != nil {
		sale, err := s.repo.GetSale(ctx, id)
		if err != nil {
			return Sale{}, err
		}
		existing := make(map[string]EquipmentStatus, len(sale.Equipments))
		for _, eq := range sale.Equipments {
			existing[eq.ID] = eq.Status
		}
		equipments = make([]Equipment, 0, len(patch.Equipments))
		for _, eq := range patch.Equipments {
			if eq.Quantity <= 0 {
				return Sale{}, validationErr("equipment quantity must be positive")
			}
			eqID := eq.ID
			if eqID == "" {
				eqID = uuid.NewString()
			}
			status := EquipmentPending
			if prev, ok := existing[eqID]; ok {
				status = prev
			}
			equipments = append(equipments, Equipment{
				ID:           eqID,
				Name:         eq.Name,
				Model:        eq.Model,
				SerialNumber: eq.SerialNumber,
				Quantity:     eq.Quantity,
				Status:       status,
			})
		}
	}

	if err := s.repo.UpdateSale(ctx, id, patch, equipments, time.Now()); err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// AddDocument attaches document metadata to a sale.
func (s *Service) AddDocument(ctx context.Context, saleID string, req AddDocumentRequest, actor string) (Document, error) {
	if !req.Type.IsValid() {
		return Document{}, validationErr("unknown document type %q", req.Type)
	}
	doc := Document{
		Name:       req.Name,
		Type:       req.Type,
		URL:        req.URL,
		UploadedBy: actor,
		UploadedAt: time.Now(),
	}
	return s.repo.AppendDocument(ctx, saleID, doc)
}

// DeleteSale removes a sale. Open picking orders for the sale are cancelled
// first; a cancellation failure is logged and does not block the delete.
func (s *Service) DeleteSale(ctx context.Context, id string, actor string) error {
	if _, err := s.repo.GetSale(ctx, id); err != nil {
		return err
	}
	if s.separations != nil {
		if cancelled, err := s.separations.CancelOpenBySale(ctx, id, actor); err != nil {
			s.logger.Warn("cancel separation orders for deleted sale",
				slog.String("sale_id", id),
				slog.Any("error", err))
		} else if cancelled > 0 {
			s.logger.Info("cancelled separation orders for deleted sale",
				slog.String("sale_id", id),
				slog.Int("cancelled", cancelled))
		}
	}
	return s.repo.DeleteSale(ctx, id)
}

// ============================================================================
// STATS
// ============================================================================

// Stats recomputes funnel roll-ups from current rows. Concurrent callers
// share one scan via singleflight; nothing is cached.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	v, err, _ := s.statsGroup.Do("sales-stats", func() (any, error) {
		return s.computeStats(ctx)
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (s *Service) computeStats(ctx context.Context) (Stats, error) {
	sales, err := s.repo.ListSales(ctx, Filters{})
	if err != nil {
		return Stats{}, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := Stats{Total: len(sales)}
	for _, sale := range sales {
		switch sale.Status {
		case StatusPending:
			stats.Pending++
		case StatusInProgress, StatusStockSeparated, StatusDispatched, StatusInstalling:
			stats.InProgress++
		case StatusActive:
			stats.Active++
		case StatusCancelled:
			stats.Cancelled++
		}
		stats.TotalRevenue += sale.Payment.TotalValue
		if !sale.SaleDate.Before(monthStart) {
			stats.ThisMonthSales++
			stats.ThisMonthRevenue += sale.Payment.TotalValue
		}
	}
	if stats.Total > 0 {
		stats.AverageTicket = stats.TotalRevenue / float64(stats.Total)
	}

	stats.TotalRevenueFormatted = shared.FormatBRL(stats.TotalRevenue)
	stats.AverageTicketFormatted = shared.FormatBRL(stats.AverageTicket)
	stats.ThisMonthRevenueFormatted = shared.FormatBRL(stats.ThisMonthRevenue)
	return stats, nil
}
