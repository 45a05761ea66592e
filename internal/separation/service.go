package separation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/replay-console/replay-console/internal/platform/httpx"
)

// Common errors.
var (
	ErrOrderNotFound = fmt.Errorf("%w: separation order", httpx.ErrNotFound)
	ErrLineNotFound  = fmt.Errorf("%w: separation order line", httpx.ErrNotFound)
	ErrStaleStatus   = errors.New("order status changed concurrently")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fmt.Sprintf(format, args...))
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, filters Filters) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, stamp StatusStamp) error
	MarkLineSeparated(ctx context.Context, orderID, itemID string) error
	CountByStatuses(ctx context.Context, statuses ...Status) (int, error)
	ListOpenBySale(ctx context.Context, saleID string) ([]Order, error)
}

// Service coordinates separation order operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateFromSale opens a picking order for a sale. Lines start unpicked.
func (s *Service) CreateFromSale(ctx context.Context, req CreateFromSaleRequest, actor string) (Order, error) {
	if len(req.Lines) == 0 {
		return Order{}, validationErr("at least one line is required")
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return Order{}, validationErr("line quantity must be positive")
		}
	}

	order := Order{
		ID:         uuid.NewString(),
		SaleID:     req.SaleID,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		PlanName:   req.PlanName,
		Status:     StatusPending,
		Deadline:   req.Deadline,
		CreatedAt:  time.Now(),
		CreatedBy:  actor,
		Notes:      req.Notes,
	}
	for _, line := range req.Lines {
		order.Lines = append(order.Lines, Line{
			ItemID:   line.ItemID,
			ItemName: line.ItemName,
			Model:    line.Model,
			Quantity: line.Quantity,
		})
	}

	if err := s.repo.InsertOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("insert separation order: %w", err)
	}
	return order, nil
}

// Get fetches one order by id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders matching filters, newest first.
func (s *Service) List(ctx context.Context, filters Filters) ([]Order, error) {
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, validationErr("unknown status %q", filters.Status)
	}
	return s.repo.ListOrders(ctx, filters)
}

// UpdateStatus advances an order through its lifecycle. Moving to separating
// stamps started_at and the picker; reaching ready stamps completed_at.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, actor string) (Order, error) {
	if !status.IsValid() {
		return Order{}, validationErr("unknown status %q", status)
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !order.Status.CanTransition(status) {
		return Order{}, validationErr("cannot move separation order from %s to %s", order.Status, status)
	}

	now := time.Now()
	var stamp StatusStamp
	switch status {
	case StatusSeparating:
		stamp.StartedAt = &now
		stamp.SeparatedBy = &actor
	case StatusReady:
		stamp.CompletedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, id, order.Status, status, stamp); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return Order{}, validationErr("cannot move separation order from %s to %s", order.Status, status)
		}
		return Order{}, err
	}
	return s.repo.GetOrder(ctx, id)
}

// MarkLineSeparated ticks one picked line. Only open orders accept picks.
func (s *Service) MarkLineSeparated(ctx context.Context, orderID, itemID, actor string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !order.Status.Open() {
		return Order{}, validationErr("order %s is %s and no longer accepts picks", orderID, order.Status)
	}
	if err := s.repo.MarkLineSeparated(ctx, orderID, itemID); err != nil {
		return Order{}, err
	}
	s.logger.Info("separation line picked",
		slog.String("order_id", orderID),
		slog.String("item_id", itemID),
		slog.String("picked_by", actor))
	return s.repo.GetOrder(ctx, orderID)
}

// CountPending counts orders that still need picking work.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.repo.CountByStatuses(ctx, StatusPending, StatusSeparating)
}

// CancelOpenBySale cancels every open order tied to a sale. Used when the
// sale itself is removed.
func (s *Service) CancelOpenBySale(ctx context.Context, saleID, actor string) (int, error) {
	orders, err := s.repo.ListOpenBySale(ctx, saleID)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, order := range orders {
		if err := s.repo.UpdateStatus(ctx, order.ID, order.Status, StatusCancelled, StatusStamp{}); err != nil {
			if errors.Is(err, ErrStaleStatus) || errors.Is(err, httpx.ErrNotFound) {
				continue
			}
			return cancelled, err
		}
		cancelled++
		s.logger.Info("separation order cancelled with sale",
			slog.String("order_id", order.ID),
			slog.String("sale_id", saleID),
			slog.String("cancelled_by", actor))
	}
	return cancelled, nil
}
