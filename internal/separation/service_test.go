package separation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-console/replay-console/internal/platform/httpx"
)

type fakeRepo struct {
	mu     sync.Mutex
	orders map[string]Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]Order)}
}

func (f *fakeRepo) InsertOrder(_ context.Context, o Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) GetOrder(_ context.Context, id string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeRepo) ListOrders(_ context.Context, filters Filters) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.SaleID != "" && o.SaleID != filters.SaleID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, from, to Status, stamp StatusStamp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return ErrStaleStatus
	}
	o.Status = to
	if stamp.StartedAt != nil {
		o.StartedAt = stamp.StartedAt
	}
	if stamp.CompletedAt != nil {
		o.CompletedAt = stamp.CompletedAt
	}
	if stamp.SeparatedBy != nil {
		o.SeparatedBy = stamp.SeparatedBy
	}
	f.orders[id] = o
	return nil
}

func (f *fakeRepo) MarkLineSeparated(_ context.Context, orderID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			o.Lines[i].Separated = true
			f.orders[orderID] = o
			return nil
		}
	}
	return ErrLineNotFound
}

func (f *fakeRepo) CountByStatuses(_ context.Context, statuses ...Status) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, o := range f.orders {
		for _, s := range statuses {
			if o.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeRepo) ListOpenBySale(_ context.Context, saleID string) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.SaleID == saleID && o.Status.Open() {
			out = append(out, o)
		}
	}
	return out, nil
}

func newTestOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	order, err := svc.CreateFromSale(context.Background(), CreateFromSaleRequest{
		SaleID:     "sale-1",
		ClientID:   "client-1",
		ClientName: "Maria Souza",
		PlanName:   "Fibra 500",
		Lines: []CreateLineRequest{
			{ItemID: "item-1", ItemName: "Router X", Model: "M-1", Quantity: 1},
			{ItemID: "item-2", ItemName: "Converter Z", Model: "C-2", Quantity: 2},
		},
		Deadline: time.Now().Add(72 * time.Hour),
	}, "user-1")
	require.NoError(t, err)
	return order
}

func TestCreateFromSale(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	order := newTestOrder(t, svc)
	assert.Equal(t, StatusPending, order.Status)
	require.Len(t, order.Lines, 2)
	for _, line := range order.Lines {
		assert.False(t, line.Separated)
	}
	assert.Equal(t, "user-1", order.CreatedBy)
}

func TestUpdateStatusHappyPath(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	order := newTestOrder(t, svc)

	separating, err := svc.UpdateStatus(context.Background(), order.ID, StatusSeparating, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSeparating, separating.Status)
	assert.NotNil(t, separating.StartedAt)
	require.NotNil(t, separating.SeparatedBy)
	assert.Equal(t, "picker-1", *separating.SeparatedBy)

	ready, err := svc.UpdateStatus(context.Background(), order.ID, StatusReady, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, ready.Status)
	assert.NotNil(t, ready.CompletedAt)

	dispatched, err := svc.UpdateStatus(context.Background(), order.ID, StatusDispatched, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, dispatched.Status)
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	order := newTestOrder(t, svc)

	// pending cannot jump straight to ready or dispatched
	_, err := svc.UpdateStatus(context.Background(), order.ID, StatusReady, "picker-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.UpdateStatus(context.Background(), order.ID, StatusDispatched, "picker-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.UpdateStatus(context.Background(), order.ID, StatusCancelled, "picker-1")
	require.NoError(t, err)

	// cancelled is terminal
	_, err = svc.UpdateStatus(context.Background(), order.ID, StatusSeparating, "picker-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.UpdateStatus(context.Background(), "ghost", StatusSeparating, "picker-1")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestMarkLineSeparated(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	order := newTestOrder(t, svc)

	got, err := svc.MarkLineSeparated(context.Background(), order.ID, "item-1", "picker-1")
	require.NoError(t, err)
	assert.True(t, got.Lines[0].Separated)
	assert.False(t, got.Lines[1].Separated)

	_, err = svc.MarkLineSeparated(context.Background(), order.ID, "ghost", "picker-1")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestMarkLineSeparatedRejectedOnceClosed(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	order := newTestOrder(t, svc)

	_, err := svc.UpdateStatus(context.Background(), order.ID, StatusCancelled, "picker-1")
	require.NoError(t, err)

	_, err = svc.MarkLineSeparated(context.Background(), order.ID, "item-1", "picker-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCountPending(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	a := newTestOrder(t, svc)
	newTestOrder(t, svc)

	count, err := svc.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.UpdateStatus(context.Background(), a.ID, StatusSeparating, "picker-1")
	require.NoError(t, err)
	count, err = svc.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count) // separating still counts as open

	_, err = svc.UpdateStatus(context.Background(), a.ID, StatusReady, "picker-1")
	require.NoError(t, err)
	count, err = svc.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCancelOpenBySale(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	a := newTestOrder(t, svc)
	newTestOrder(t, svc)

	// one already dispatched order must be left alone
	_, err := svc.UpdateStatus(context.Background(), a.ID, StatusSeparating, "picker-1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), a.ID, StatusReady, "picker-1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), a.ID, StatusDispatched, "picker-1")
	require.NoError(t, err)

	cancelled, err := svc.CancelOpenBySale(context.Background(), "sale-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	got, err := svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, got.Status)
}
