package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/replay-console/replay-console/internal/platform/httpx"
	"github.com/replay-console/replay-console/internal/shared"
)

// Common errors.
var (
	ErrItemNotFound     = fmt.Errorf("%w: stock item", httpx.ErrNotFound)
	ErrDispatchNotFound = fmt.Errorf("%w: dispatch", httpx.ErrNotFound)
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fmt.Sprintf(format, args...))
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, id string, patch UpdateItemRequest, now time.Time) (Item, error)
	DeleteItem(ctx context.Context, id string) error
	InsertMovement(ctx context.Context, movement Movement) error
	ListMovementsByItem(ctx context.Context, itemID string) ([]Movement, error)
	CountMovementsByItem(ctx context.Context, itemID string) (int, error)
	ListEntries(ctx context.Context) ([]Entry, error)
	GetDispatch(ctx context.Context, id string) (Dispatch, error)
	ListDispatches(ctx context.Context) ([]Dispatch, error)
	UpdateDispatchStatus(ctx context.Context, id string, status DispatchStatus, actualDelivery *time.Time, now time.Time) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id string) (Item, error)
	AddItemQuantity(ctx context.Context, id string, delta int, now time.Time) error
	AddReservedQuantity(ctx context.Context, id string, delta int) error
	InsertEntry(ctx context.Context, entry Entry) error
	InsertDispatch(ctx context.Context, dispatch Dispatch) error
}

// SeparationCounter reports open picking work for warehouse stats.
type SeparationCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// DispatchLinkedPayload asks the worker to advance the separation order and
// sale linked to a committed dispatch.
type DispatchLinkedPayload struct {
	DispatchID        string  `json:"dispatch_id"`
	SeparationOrderID string  `json:"separation_order_id"`
	SaleID            *string `json:"sale_id,omitempty"`
	Actor             string  `json:"actor"`
}

// FulfillmentQueue enqueues best-effort side effects of a dispatch.
type FulfillmentQueue interface {
	EnqueueDispatchLinked(ctx context.Context, payload DispatchLinkedPayload) error
}

// Service coordinates stock ledger operations.
type Service struct {
	repo        RepositoryPort
	separations SeparationCounter
	queue       FulfillmentQueue
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	statsGroup  singleflight.Group
}

// NewService builds Service. separations, queue and idem are optional.
func NewService(repo RepositoryPort, separations SeparationCounter, queue FulfillmentQueue, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, separations: separations, queue: queue, idempotency: idem, logger: logger}
}

// ============================================================================
// ITEMS
// ============================================================================

// CreateItem registers a new SKU. An opening quantity produces one entry
// movement (previous 0, new quantity).
func (s *Service) CreateItem(ctx context.Context, req CreateItemRequest, actor string) (Item, error) {
	if !req.Category.IsValid() {
		return Item{}, validationErr("unknown category %q", req.Category)
	}
	status := req.Status
	if status == "" {
		status = ItemStatusAvailable
	}
	if !status.IsValid() {
		return Item{}, validationErr("unknown status %q", status)
	}
	if strings.TrimSpace(req.Location.Warehouse) == "" {
		return Item{}, validationErr("location.warehouse is required")
	}

	now := time.Now()
	item := Item{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Model:            req.Model,
		Category:         req.Category,
		Manufacturer:     req.Manufacturer,
		Quantity:         req.Quantity,
		ReservedQuantity: 0,
		MinimumStock:     req.MinimumStock,
		Location:         req.Location,
		Status:           status,
		UnitPrice:        req.UnitPrice,
		Supplier:         req.Supplier,
		Notes:            req.Notes,
		CreatedBy:        actor,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.InsertItem(ctx, item); err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	if req.Quantity > 0 {
		s.recordMovement(ctx, Movement{
			ItemID:           item.ID,
			ItemName:         item.Name,
			Type:             MovementTypeEntry,
			Quantity:         req.Quantity,
			Description:      "Entrada inicial no estoque",
			PerformedBy:      actor,
			PreviousQuantity: 0,
			NewQuantity:      req.Quantity,
		})
	}

	return item, nil
}

// GetItem fetches one item by id.
func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns items matching all supplied predicates. Empty filters
// return every item ordered by name.
func (s *Service) ListItems(ctx context.Context, filters Filters) ([]Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	if filters.Empty() {
		return items, nil
	}

	search := strings.ToLower(filters.Search)
	matched := make([]Item, 0, len(items))
	for _, item := range items {
		if filters.Category != "" && item.Category != filters.Category {
			continue
		}
		if filters.Status != "" && item.Status != filters.Status {
			continue
		}
		if filters.Warehouse != "" && item.Location.Warehouse != filters.Warehouse {
			continue
		}
		if filters.LowStock && !item.LowStock() {
			continue
		}
		if search != "" && !matchesSearch(item, search) {
			continue
		}
		matched = append(matched, item)
	}
	return matched, nil
}

func matchesSearch(item Item, search string) bool {
	if strings.Contains(strings.ToLower(item.Name), search) {
		return true
	}
	if strings.Contains(strings.ToLower(item.Model), search) {
		return true
	}
	if item.Manufacturer != nil && strings.Contains(strings.ToLower(*item.Manufacturer), search) {
		return true
	}
	return false
}

// UpdateItem patches mutable fields. Quantity is never touched here.
func (s *Service) UpdateItem(ctx context.Context, id string, req UpdateItemRequest) (Item, error) {
	if req.Category != nil && !req.Category.IsValid() {
		return Item{}, validationErr("unknown category %q", *req.Category)
	}
	if req.Status != nil && !req.Status.IsValid() {
		return Item{}, validationErr("unknown status %q", *req.Status)
	}
	if req.Location != nil && strings.TrimSpace(req.Location.Warehouse) == "" {
		return Item{}, validationErr("location.warehouse is required")
	}
	return s.repo.UpdateItem(ctx, id, req, time.Now())
}

// DeleteItem removes an item unconditionally. Open orders referencing the
// item keep their snapshots; the movement history loses its parent row, so
// the delete is logged when history exists.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	count, err := s.repo.CountMovementsByItem(ctx, id)
	if err == nil && count > 0 {
		s.logger.Warn("deleting stock item with movement history",
			slog.String("item_id", id),
			slog.Int("movements", count))
	}
	return s.repo.DeleteItem(ctx, id)
}

// ============================================================================
// ENTRIES
// ============================================================================

// CreateEntry receives goods: the entry record and the quantity increment
// commit in one transaction; the movement is recorded best-effort afterwards.
func (s *Service) CreateEntry(ctx context.Context, req CreateEntryRequest, actor string) (Entry, error) {
	if req.Quantity <= 0 {
		return Entry{}, validationErr("quantity must be positive")
	}
	if req.UnitPrice < 0 {
		return Entry{}, validationErr("unit price must not be negative")
	}
	if strings.TrimSpace(req.Supplier) == "" {
		return Entry{}, validationErr("supplier is required")
	}

	insertedKey := false
	if req.RequestKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, "entry:"+req.RequestKey, "stock"); err != nil {
			return Entry{}, err
		}
		insertedKey = true
	}

	now := time.Now()
	var entry Entry
	var previous int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, req.ItemID)
		if err != nil {
			return err
		}
		previous = item.Quantity
		entry = Entry{
			ID:            uuid.NewString(),
			ItemID:        item.ID,
			ItemName:      item.Name,
			Quantity:      req.Quantity,
			UnitPrice:     req.UnitPrice,
			TotalPrice:    float64(req.Quantity) * req.UnitPrice,
			Supplier:      req.Supplier,
			InvoiceNumber: req.InvoiceNumber,
			InvoiceDate:   req.InvoiceDate,
			ReceivedBy:    actor,
			ReceivedDate:  now,
			Notes:         req.Notes,
			CreatedBy:     actor,
			CreatedAt:     now,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if err := tx.AddItemQuantity(ctx, item.ID, req.Quantity, now); err != nil {
			return fmt.Errorf("increment quantity: %w", err)
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "entry:"+req.RequestKey)
		}
		return Entry{}, err
	}

	invoice := "N/A"
	if req.InvoiceNumber != nil && *req.InvoiceNumber != "" {
		invoice = *req.InvoiceNumber
	}
	refType := ReferenceTypeEntry
	s.recordMovement(ctx, Movement{
		ItemID:           entry.ItemID,
		ItemName:         entry.ItemName,
		Type:             MovementTypeEntry,
		Quantity:         req.Quantity,
		Description:      fmt.Sprintf("Entrada de estoque - NF: %s", invoice),
		PerformedBy:      actor,
		PreviousQuantity: previous,
		NewQuantity:      previous + req.Quantity,
		ReferenceID:      &entry.ID,
		ReferenceType:    &refType,
	})

	return entry, nil
}

// ListEntries returns all entries, newest first.
func (s *Service) ListEntries(ctx context.Context) ([]Entry, error) {
	return s.repo.ListEntries(ctx)
}

// ============================================================================
// DISPATCHES
// ============================================================================

// CreateDispatch ships goods. Every line is validated against the locked
// item row inside one transaction: any shortage aborts the whole operation
// with no partial writes. Exit movements are recorded best-effort after
// commit, and a linked separation order is advanced through the worker.
func (s *Service) CreateDispatch(ctx context.Context, req CreateDispatchRequest, actor string) (Dispatch, error) {
	if len(req.Lines) == 0 {
		return Dispatch{}, validationErr("at least one line is required")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return Dispatch{}, validationErr("destination is required")
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return Dispatch{}, validationErr("line quantity must be positive")
		}
	}

	insertedKey := false
	if req.RequestKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, "dispatch:"+req.RequestKey, "stock"); err != nil {
			return Dispatch{}, err
		}
		insertedKey = true
	}

	now := time.Now()
	dispatch := Dispatch{
		ID:                uuid.NewString(),
		SaleID:            req.SaleID,
		ClientID:          req.ClientID,
		ClientName:        req.ClientName,
		SeparationOrderID: req.SeparationOrderID,
		Destination:       req.Destination,
		DispatchDate:      req.DispatchDate,
		DispatchedBy:      actor,
		Technician:        req.Technician,
		TechnicianContact: req.TechnicianContact,
		Status:            DispatchStatusDispatched,
		TrackingCode:      req.TrackingCode,
		EstimatedDelivery: req.EstimatedDelivery,
		Notes:             req.Notes,
		CreatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	previous := make(map[string]int, len(req.Lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range req.Lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if line.Quantity > item.Quantity {
				return validationErr("quantidade insuficiente para %s", item.Name)
			}
			if err := tx.AddItemQuantity(ctx, item.ID, -line.Quantity, now); err != nil {
				return fmt.Errorf("decrement quantity: %w", err)
			}
			previous[item.ID] = item.Quantity
			dispatch.Lines = append(dispatch.Lines, DispatchLine{
				ItemID:   item.ID,
				ItemName: item.Name,
				Quantity: line.Quantity,
			})
		}
		return tx.InsertDispatch(ctx, dispatch)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "dispatch:"+req.RequestKey)
		}
		return Dispatch{}, err
	}

	refType := ReferenceTypeDispatch
	for _, line := range dispatch.Lines {
		s.recordMovement(ctx, Movement{
			ItemID:           line.ItemID,
			ItemName:         line.ItemName,
			Type:             MovementTypeExit,
			Quantity:         -line.Quantity,
			Description:      fmt.Sprintf("Despacho para %s", req.Destination),
			PerformedBy:      actor,
			PreviousQuantity: previous[line.ItemID],
			NewQuantity:      previous[line.ItemID] - line.Quantity,
			ReferenceID:      &dispatch.ID,
			ReferenceType:    &refType,
		})
	}

	if req.SeparationOrderID != nil && s.queue != nil {
		payload := DispatchLinkedPayload{
			DispatchID:        dispatch.ID,
			SeparationOrderID: *req.SeparationOrderID,
			SaleID:            req.SaleID,
			Actor:             actor,
		}
		if err := s.queue.EnqueueDispatchLinked(ctx, payload); err != nil {
			s.logger.Error("enqueue dispatch fulfillment",
				slog.String("dispatch_id", dispatch.ID),
				slog.String("separation_order_id", *req.SeparationOrderID),
				slog.Any("error", err))
		}
	}

	return dispatch, nil
}

// ListDispatches returns all dispatches, newest first.
func (s *Service) ListDispatches(ctx context.Context) ([]Dispatch, error) {
	return s.repo.ListDispatches(ctx)
}

// UpdateDispatchStatus advances a dispatch through its lifecycle.
func (s *Service) UpdateDispatchStatus(ctx context.Context, id string, status DispatchStatus) (Dispatch, error) {
	if !status.IsValid() {
		return Dispatch{}, validationErr("unknown dispatch status %q", status)
	}
	dispatch, err := s.repo.GetDispatch(ctx, id)
	if err != nil {
		return Dispatch{}, err
	}
	if !dispatch.Status.CanTransition(status) {
		return Dispatch{}, validationErr("cannot move dispatch from %s to %s", dispatch.Status, status)
	}
	now := time.Now()
	var actualDelivery *time.Time
	if status == DispatchStatusDelivered {
		actualDelivery = &now
	}
	if err := s.repo.UpdateDispatchStatus(ctx, id, status, actualDelivery, now); err != nil {
		return Dispatch{}, err
	}
	return s.repo.GetDispatch(ctx, id)
}

// ============================================================================
// RESERVATIONS
// ============================================================================

// ReserveItems bumps reserved quantity per line. Unknown items are skipped,
// mirroring the forgiving semantics of the original console.
func (s *Service) ReserveItems(ctx context.Context, lines []ReservationLineRequest) error {
	if len(lines) == 0 {
		return validationErr("at least one line is required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if line.Quantity <= 0 {
				return validationErr("line quantity must be positive")
			}
			if _, err := tx.GetItemForUpdate(ctx, line.ItemID); err != nil {
				continue
			}
			if err := tx.AddReservedQuantity(ctx, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// ============================================================================
// MOVEMENTS
// ============================================================================

// ListMovements returns the movement history for one item, newest first.
func (s *Service) ListMovements(ctx context.Context, itemID string) ([]Movement, error) {
	return s.repo.ListMovementsByItem(ctx, itemID)
}

// recordMovement appends an audit row after the parent operation committed.
// A failure here must never undo or surface into the primary operation.
func (s *Service) recordMovement(ctx context.Context, movement Movement) {
	movement.ID = uuid.NewString()
	movement.CreatedAt = time.Now()
	if err := s.repo.InsertMovement(ctx, movement); err != nil {
		s.logger.Warn("record stock movement",
			slog.String("item_id", movement.ItemID),
			slog.String("type", string(movement.Type)),
			slog.Any("error", err))
	}
}

// ============================================================================
// STATS
// ============================================================================

// Stats recomputes warehouse roll-ups from current rows. Concurrent callers
// share one scan via singleflight; nothing is cached.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	v, err, _ := s.statsGroup.Do("stock-stats", func() (any, error) {
		return s.computeStats(ctx)
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (s *Service) computeStats(ctx context.Context) (Stats, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalItems: len(items)}
	categoryCounts := make(map[Category]int)
	for _, item := range items {
		if item.UnitPrice != nil {
			stats.TotalValue += *item.UnitPrice * float64(item.Quantity)
		}
		if item.LowStock() {
			stats.LowStockItems++
		}
		switch item.Status {
		case ItemStatusAvailable:
			stats.AvailableItems++
		case ItemStatusReserved:
			stats.ReservedItems++
		case ItemStatusDispatched:
			stats.DispatchedItems++
		case ItemStatusDefective:
			stats.DefectiveItems++
		}
		categoryCounts[item.Category]++
	}

	categories := make([]CategoryCount, 0, len(categoryCounts))
	for category, count := range categoryCounts {
		categories = append(categories, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Category < categories[j].Category })
	stats.Categories = categories

	if s.separations != nil {
		pending, err := s.separations.CountPending(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.PendingSeparations = pending
	}

	stats.TotalValueFormatted = shared.FormatBRL(stats.TotalValue)
	return stats, nil
}
