package stock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-console/replay-console/internal/platform/httpx"
)

// fakeRepo is an in-memory RepositoryPort. WithTx snapshots item state and
// restores it when the callback fails, mimicking a rollback.
type fakeRepo struct {
	mu            sync.Mutex
	items         map[string]Item
	movements     []Movement
	entries       []Entry
	dispatches    map[string]Dispatch
	failMovements bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:      make(map[string]Item),
		dispatches: make(map[string]Dispatch),
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[string]Item, len(f.items))
	for id, item := range f.items {
		snapshot[id] = item
	}
	entriesLen := len(f.entries)
	dispatchSnapshot := make(map[string]Dispatch, len(f.dispatches))
	for id, d := range f.dispatches {
		dispatchSnapshot[id] = d
	}

	if err := fn(ctx, (*fakeTx)(f)); err != nil {
		f.items = snapshot
		f.entries = f.entries[:entriesLen]
		f.dispatches = dispatchSnapshot
		return err
	}
	return nil
}

type fakeTx fakeRepo

func (t *fakeTx) GetItemForUpdate(_ context.Context, id string) (Item, error) {
	item, ok := t.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (t *fakeTx) AddItemQuantity(_ context.Context, id string, delta int, now time.Time) error {
	item, ok := t.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Quantity += delta
	item.UpdatedAt = now
	t.items[id] = item
	return nil
}

func (t *fakeTx) AddReservedQuantity(_ context.Context, id string, delta int) error {
	item, ok := t.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.ReservedQuantity += delta
	t.items[id] = item
	return nil
}

func (t *fakeTx) InsertEntry(_ context.Context, entry Entry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func (t *fakeTx) InsertDispatch(_ context.Context, dispatch Dispatch) error {
	t.dispatches[dispatch.ID] = dispatch
	return nil
}

func (f *fakeRepo) GetItem(_ context.Context, id string) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (f *fakeRepo) ListItems(_ context.Context) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]Item, 0, len(f.items))
	for _, item := range f.items {
		items = append(items, item)
	}
	return items, nil
}

func (f *fakeRepo) InsertItem(_ context.Context, item Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) UpdateItem(_ context.Context, id string, patch UpdateItemRequest, now time.Time) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.MinimumStock != nil {
		item.MinimumStock = *patch.MinimumStock
	}
	if patch.Status != nil {
		item.Status = *patch.Status
	}
	item.UpdatedAt = now
	f.items[id] = item
	return item, nil
}

func (f *fakeRepo) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) InsertMovement(_ context.Context, movement Movement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMovements {
		return errors.New("movement store unavailable")
	}
	f.movements = append(f.movements, movement)
	return nil
}

func (f *fakeRepo) ListMovementsByItem(_ context.Context, itemID string) ([]Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Movement
	for _, m := range f.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountMovementsByItem(ctx context.Context, itemID string) (int, error) {
	movements, err := f.ListMovementsByItem(ctx, itemID)
	return len(movements), err
}

func (f *fakeRepo) ListEntries(_ context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Entry(nil), f.entries...), nil
}

func (f *fakeRepo) GetDispatch(_ context.Context, id string) (Dispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dispatches[id]
	if !ok {
		return Dispatch{}, ErrDispatchNotFound
	}
	return d, nil
}

func (f *fakeRepo) ListDispatches(_ context.Context) ([]Dispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Dispatch, 0, len(f.dispatches))
	for _, d := range f.dispatches {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRepo) UpdateDispatchStatus(_ context.Context, id string, status DispatchStatus, actualDelivery *time.Time, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dispatches[id]
	if !ok {
		return ErrDispatchNotFound
	}
	d.Status = status
	if actualDelivery != nil {
		d.ActualDelivery = actualDelivery
	}
	d.UpdatedAt = now
	f.dispatches[id] = d
	return nil
}

type fakeCounter struct {
	pending int
}

func (f *fakeCounter) CountPending(context.Context) (int, error) {
	return f.pending, nil
}

type captureQueue struct {
	payloads []DispatchLinkedPayload
	fail     bool
}

func (q *captureQueue) EnqueueDispatchLinked(_ context.Context, p DispatchLinkedPayload) error {
	if q.fail {
		return errors.New("broker down")
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, nil, nil, nil, slog.Default())
}

func seedItem(t *testing.T, svc *Service, name string, quantity, minimum int, price float64) Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), CreateItemRequest{
		Name:         name,
		Model:        "M-1",
		Category:     CategoryRouter,
		Quantity:     quantity,
		MinimumStock: minimum,
		Location:     Location{Warehouse: "central"},
		UnitPrice:    &price,
	}, "user-1")
	require.NoError(t, err)
	return item
}

// ============================================================================
// ITEMS
// ============================================================================

func TestCreateItemRecordsOpeningMovement(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	item := seedItem(t, svc, "Router X", 5, 2, 100)

	movements, err := svc.ListMovements(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, MovementTypeEntry, movements[0].Type)
	assert.Equal(t, 0, movements[0].PreviousQuantity)
	assert.Equal(t, 5, movements[0].NewQuantity)
	assert.Equal(t, "user-1", movements[0].PerformedBy)
}

func TestCreateItemZeroQuantityHasNoMovement(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	item := seedItem(t, svc, "Router X", 0, 2, 100)

	movements, err := svc.ListMovements(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestCreateItemRejectsUnknownCategory(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.CreateItem(context.Background(), CreateItemRequest{
		Name:     "Thing",
		Model:    "M",
		Category: Category("spaceship"),
		Location: Location{Warehouse: "central"},
	}, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateItemSurvivesMovementFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failMovements = true
	svc := newTestService(repo)

	item := seedItem(t, svc, "Router X", 5, 2, 100)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestListItemsFilters(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	low := seedItem(t, svc, "Almost Out", 2, 2, 10) // at threshold counts as low
	seedItem(t, svc, "Plenty", 50, 2, 10)

	all, err := svc.ListItems(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	lowStock, err := svc.ListItems(context.Background(), Filters{LowStock: true})
	require.NoError(t, err)
	require.Len(t, lowStock, 1)
	assert.Equal(t, low.ID, lowStock[0].ID)

	bySearch, err := svc.ListItems(context.Background(), Filters{Search: "plenty"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Plenty", bySearch[0].Name)

	none, err := svc.ListItems(context.Background(), Filters{Warehouse: "branch"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ============================================================================
// ENTRIES
// ============================================================================

func TestCreateEntryComputesTotalAndIncrements(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	item := seedItem(t, svc, "Router X", 5, 2, 100)

	entry, err := svc.CreateEntry(context.Background(), CreateEntryRequest{
		ItemID:    item.ID,
		Quantity:  10,
		UnitPrice: 2.5,
		Supplier:  "ACME",
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, entry.TotalPrice)
	assert.Equal(t, item.Name, entry.ItemName)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Quantity)

	movements, err := svc.ListMovements(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	last := movements[1]
	assert.Equal(t, 5, last.PreviousQuantity)
	assert.Equal(t, 15, last.NewQuantity)
	require.NotNil(t, last.ReferenceID)
	assert.Equal(t, entry.ID, *last.ReferenceID)
}

func TestCreateEntryUnknownItem(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.CreateEntry(context.Background(), CreateEntryRequest{
		ItemID:    "missing",
		Quantity:  1,
		UnitPrice: 1,
		Supplier:  "ACME",
	}, "user-1")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCreateEntrySurvivesMovementFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	item := seedItem(t, svc, "Router X", 5, 2, 100)
	repo.failMovements = true

	_, err := svc.CreateEntry(context.Background(), CreateEntryRequest{
		ItemID:    item.ID,
		Quantity:  3,
		UnitPrice: 1,
		Supplier:  "ACME",
	}, "user-1")
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Quantity)
}

// ============================================================================
// DISPATCHES
// ============================================================================

func TestCreateDispatchDecrementsAndRecords(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	a := seedItem(t, svc, "Router X", 10, 2, 100)
	b := seedItem(t, svc, "Switch Y", 4, 1, 50)

	dispatch, err := svc.CreateDispatch(context.Background(), CreateDispatchRequest{
		Lines: []CreateDispatchLineRequest{
			{ItemID: a.ID, Quantity: 3},
			{ItemID: b.ID, Quantity: 4},
		},
		Destination:  "Rua das Flores 100",
		DispatchDate: time.Now(),
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, DispatchStatusDispatched, dispatch.Status)
	require.Len(t, dispatch.Lines, 2)

	gotA, err := svc.GetItem(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, gotA.Quantity)
	gotB, err := svc.GetItem(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotB.Quantity)

	movements, err := svc.ListMovements(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	exit := movements[1]
	assert.Equal(t, MovementTypeExit, exit.Type)
	assert.Equal(t, -3, exit.Quantity)
	assert.Equal(t, 10, exit.PreviousQuantity)
	assert.Equal(t, 7, exit.NewQuantity)
}

func TestCreateDispatchInsufficientStockAbortsAll(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	a := seedItem(t, svc, "Router X", 10, 2, 100)
	b := seedItem(t, svc, "Switch Y", 1, 1, 50)

	_, err := svc.CreateDispatch(context.Background(), CreateDispatchRequest{
		Lines: []CreateDispatchLineRequest{
			{ItemID: a.ID, Quantity: 3},
			{ItemID: b.ID, Quantity: 5},
		},
		Destination:  "Rua das Flores 100",
		DispatchDate: time.Now(),
	}, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "Switch Y")

	// first line rolled back too
	gotA, err := svc.GetItem(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, gotA.Quantity)

	dispatches, err := svc.ListDispatches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dispatches)
}

func TestCreateDispatchEnqueuesLinkedFulfillment(t *testing.T) {
	repo := newFakeRepo()
	queue := &captureQueue{}
	svc := NewService(repo, nil, queue, nil, slog.Default())
	item := seedItem(t, svc, "Router X", 10, 2, 100)

	sepID := "sep-1"
	saleID := "sale-1"
	dispatch, err := svc.CreateDispatch(context.Background(), CreateDispatchRequest{
		Lines:             []CreateDispatchLineRequest{{ItemID: item.ID, Quantity: 1}},
		SaleID:            &saleID,
		SeparationOrderID: &sepID,
		Destination:       "Rua das Flores 100",
		DispatchDate:      time.Now(),
	}, "user-1")
	require.NoError(t, err)

	require.Len(t, queue.payloads, 1)
	assert.Equal(t, dispatch.ID, queue.payloads[0].DispatchID)
	assert.Equal(t, "sep-1", queue.payloads[0].SeparationOrderID)
	require.NotNil(t, queue.payloads[0].SaleID)
	assert.Equal(t, "sale-1", *queue.payloads[0].SaleID)
}

func TestCreateDispatchEnqueueFailureDoesNotFail(t *testing.T) {
	repo := newFakeRepo()
	queue := &captureQueue{fail: true}
	svc := NewService(repo, nil, queue, nil, slog.Default())
	item := seedItem(t, svc, "Router X", 10, 2, 100)

	sepID := "sep-1"
	_, err := svc.CreateDispatch(context.Background(), CreateDispatchRequest{
		Lines:             []CreateDispatchLineRequest{{ItemID: item.ID, Quantity: 1}},
		SeparationOrderID: &sepID,
		Destination:       "Rua das Flores 100",
		DispatchDate:      time.Now(),
	}, "user-1")
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Quantity)
}

func TestUpdateDispatchStatusLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	item := seedItem(t, svc, "Router X", 10, 2, 100)

	dispatch, err := svc.CreateDispatch(context.Background(), CreateDispatchRequest{
		Lines:        []CreateDispatchLineRequest{{ItemID: item.ID, Quantity: 1}},
		Destination:  "Rua das Flores 100",
		DispatchDate: time.Now(),
	}, "user-1")
	require.NoError(t, err)

	delivered, err := svc.UpdateDispatchStatus(context.Background(), dispatch.ID, DispatchStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, DispatchStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.ActualDelivery)

	_, err = svc.UpdateDispatchStatus(context.Background(), dispatch.ID, DispatchStatusCancelled)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

// ============================================================================
// RESERVATIONS
// ============================================================================

func TestReserveItemsSkipsUnknown(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	item := seedItem(t, svc, "Router X", 10, 2, 100)

	err := svc.ReserveItems(context.Background(), []ReservationLineRequest{
		{ItemID: item.ID, Quantity: 2},
		{ItemID: "ghost", Quantity: 3},
	})
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReservedQuantity)
	assert.Equal(t, 10, got.Quantity)
}

// ============================================================================
// STATS
// ============================================================================

func TestStats(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeCounter{pending: 3}, nil, nil, slog.Default())

	seedItem(t, svc, "Router X", 2, 2, 100) // low stock, value 200
	seedItem(t, svc, "Switch Y", 10, 1, 50) // value 500

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 700.0, stats.TotalValue)
	assert.Equal(t, 1, stats.LowStockItems)
	assert.Equal(t, 2, stats.AvailableItems)
	assert.Equal(t, 3, stats.PendingSeparations)
	assert.Contains(t, stats.TotalValueFormatted, "R$")
	require.Len(t, stats.Categories, 1)
	assert.Equal(t, CategoryRouter, stats.Categories[0].Category)
	assert.Equal(t, 2, stats.Categories[0].Count)
}
