package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/replay-console/replay-console/internal/platform/httpx"
	"github.com/replay-console/replay-console/internal/sales"
	"github.com/replay-console/replay-console/internal/separation"
	"github.com/replay-console/replay-console/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleCreateSeparation opens a picking order for a new sale.
	TaskSaleCreateSeparation = "sale:create_separation"
	// TaskDispatchFulfillOrder advances a picking order and its sale after
	// the goods left the warehouse.
	TaskDispatchFulfillOrder = "dispatch:fulfill_order"
)

// NewCreateSeparationTask constructs an Asynq task.
func NewCreateSeparationTask(payload sales.CreateSeparationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleCreateSeparation, data), nil
}

// NewDispatchFulfillTask constructs an Asynq task.
func NewDispatchFulfillTask(payload stock.DispatchLinkedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchFulfillOrder, data), nil
}

// CreateSeparationJob handles TaskSaleCreateSeparation.
type CreateSeparationJob struct {
	separations *separation.Service
	logger      *slog.Logger
}

// NewCreateSeparationJob constructs the job.
func NewCreateSeparationJob(separations *separation.Service, logger *slog.Logger) *CreateSeparationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateSeparationJob{separations: separations, logger: logger}
}

// Handle opens the picking order described by the payload. Malformed
// payloads and validation failures never retry.
func (j *CreateSeparationJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload sales.CreateSeparationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	req := separation.CreateFromSaleRequest{
		SaleID:     payload.SaleID,
		ClientID:   payload.ClientID,
		ClientName: payload.ClientName,
		PlanName:   payload.PlanName,
		Deadline:   payload.Deadline,
	}
	for _, line := range payload.Lines {
		req.Lines = append(req.Lines, separation.CreateLineRequest{
			ItemID:   line.ItemID,
			ItemName: line.ItemName,
			Model:    line.Model,
			Quantity: line.Quantity,
		})
	}

	order, err := j.separations.CreateFromSale(ctx, req, payload.Actor)
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			return fmt.Errorf("create separation order: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("create separation order: %w", err)
	}

	j.logger.Info("separation order opened",
		slog.String("order_id", order.ID),
		slog.String("sale_id", payload.SaleID))
	return nil
}

// DispatchFulfillJob handles TaskDispatchFulfillOrder.
type DispatchFulfillJob struct {
	separations *separation.Service
	sales       *sales.Service
	logger      *slog.Logger
}

// NewDispatchFulfillJob constructs the job.
func NewDispatchFulfillJob(separations *separation.Service, salesSvc *sales.Service, logger *slog.Logger) *DispatchFulfillJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchFulfillJob{separations: separations, sales: salesSvc, logger: logger}
}

// Handle walks the picking order to dispatched and the linked sale to
// dispatched. Orders and sales already past those points are left alone;
// cancelled ones stop the task for good.
func (j *DispatchFulfillJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload stock.DispatchLinkedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := j.advanceOrder(ctx, payload.SeparationOrderID, payload.Actor); err != nil {
		return err
	}
	if payload.SaleID != nil {
		if err := j.advanceSale(ctx, *payload.SaleID, payload.Actor); err != nil {
			return err
		}
	}

	j.logger.Info("dispatch fulfillment applied",
		slog.String("dispatch_id", payload.DispatchID),
		slog.String("separation_order_id", payload.SeparationOrderID))
	return nil
}

func (j *DispatchFulfillJob) advanceOrder(ctx context.Context, orderID, actor string) error {
	order, err := j.separations.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("separation order %s gone: %w", orderID, asynq.SkipRetry)
		}
		return err
	}

	var steps []separation.Status
	switch order.Status {
	case separation.StatusPending:
		steps = []separation.Status{separation.StatusSeparating, separation.StatusReady, separation.StatusDispatched}
	case separation.StatusSeparating:
		steps = []separation.Status{separation.StatusReady, separation.StatusDispatched}
	case separation.StatusReady:
		steps = []separation.Status{separation.StatusDispatched}
	case separation.StatusDispatched:
		return nil
	case separation.StatusCancelled:
		return fmt.Errorf("separation order %s cancelled: %w", orderID, asynq.SkipRetry)
	}

	for _, status := range steps {
		if _, err := j.separations.UpdateStatus(ctx, orderID, status, actor); err != nil {
			if errors.Is(err, httpx.ErrValidation) {
				return fmt.Errorf("advance separation order %s: %v: %w", orderID, err, asynq.SkipRetry)
			}
			return err
		}
	}
	return nil
}

func (j *DispatchFulfillJob) advanceSale(ctx context.Context, saleID, actor string) error {
	sale, err := j.sales.GetSale(ctx, saleID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("sale %s gone: %w", saleID, asynq.SkipRetry)
		}
		return err
	}

	var steps []sales.Status
	switch sale.Status {
	case sales.StatusPending:
		steps = []sales.Status{sales.StatusInProgress, sales.StatusStockSeparated, sales.StatusDispatched}
	case sales.StatusInProgress:
		steps = []sales.Status{sales.StatusStockSeparated, sales.StatusDispatched}
	case sales.StatusStockSeparated:
		steps = []sales.Status{sales.StatusDispatched}
	default:
		// already dispatched or beyond, or terminal; nothing to do
		return nil
	}

	for _, status := range steps {
		if _, err := j.sales.UpdateStatus(ctx, saleID, sales.UpdateStatusRequest{Status: status}, actor); err != nil {
			if errors.Is(err, httpx.ErrValidation) {
				return fmt.Errorf("advance sale %s: %v: %w", saleID, err, asynq.SkipRetry)
			}
			return err
		}
	}
	return nil
}
