package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-console/replay-console/internal/platform/httpx"
)

type fakeRepo struct {
	mu    sync.Mutex
	sales map[string]Sale
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sales: make(map[string]Sale)}
}

func (f *fakeRepo) InsertSale(_ context.Context, sale Sale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sales[sale.ID] = sale
	return nil
}

func (f *fakeRepo) GetSale(_ context.Context, id string) (Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (f *fakeRepo) ListSales(_ context.Context, filters Filters) ([]Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sale
	for _, sale := range f.sales {
		if filters.Status != "" && sale.Status != filters.Status {
			continue
		}
		if filters.PaymentStatus != "" && sale.Payment.Status != filters.PaymentStatus {
			continue
		}
		if filters.ClientID != "" && sale.ClientID != filters.ClientID {
			continue
		}
		if filters.DateFrom != nil && sale.SaleDate.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && sale.SaleDate.After(*filters.DateTo) {
			continue
		}
		out = append(out, sale)
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatusWithEvent(_ context.Context, id string, from, to Status, event TimelineEvent, stamp DateStamp, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	if sale.Status != from {
		return ErrStaleStatus
	}
	sale.Status = to
	if stamp.ActivationDate != nil {
		sale.ActivationDate = stamp.ActivationDate
	}
	if stamp.ActualInstallationDate != nil {
		sale.ActualInstallationDate = stamp.ActualInstallationDate
	}
	event.Seq = len(sale.Timeline) + 1
	sale.Timeline = append(sale.Timeline, event)
	sale.UpdatedAt = now
	f.sales[id] = sale
	return nil
}

func (f *fakeRepo) UpdateSale(_ context.Context, id string, patch UpdateSaleRequest, equipments []Equipment, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	if patch.Plan != nil {
		sale.Plan = *patch.Plan
	}
	if patch.Payment != nil {
		sale.Payment = Payment{
			TotalValue:       patch.Payment.TotalValue,
			InstallationFee:  patch.Payment.InstallationFee,
			FirstPaymentDate: patch.Payment.FirstPaymentDate,
			Method:           patch.Payment.Method,
			Status:           patch.Payment.Status,
		}
	}
	if patch.Notes != nil {
		sale.Notes = patch.Notes
	}
	if patch.InternalNotes != nil {
		sale.InternalNotes = patch.InternalNotes
	}
	if equipments != nil {
		sale.Equipments = equipments
	}
	sale.UpdatedAt = now
	f.sales[id] = sale
	return nil
}

func (f *fakeRepo) AppendDocument(_ context.Context, saleID string, doc Document) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[saleID]
	if !ok {
		return Document{}, ErrSaleNotFound
	}
	doc.Seq = len(sale.Documents) + 1
	sale.Documents = append(sale.Documents, doc)
	f.sales[saleID] = sale
	return doc, nil
}

func (f *fakeRepo) DeleteSale(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sales[id]; !ok {
		return ErrSaleNotFound
	}
	delete(f.sales, id)
	return nil
}

type captureQueue struct {
	payloads []CreateSeparationPayload
	fail     bool
}

func (q *captureQueue) EnqueueCreateSeparation(_ context.Context, p CreateSeparationPayload) error {
	if q.fail {
		return errors.New("broker down")
	}
	q.payloads = append(q.payloads, p)
	return nil
}

type captureCanceller struct {
	saleIDs []string
}

func (c *captureCanceller) CancelOpenBySale(_ context.Context, saleID, _ string) (int, error) {
	c.saleIDs = append(c.saleIDs, saleID)
	return 1, nil
}

func newSaleRequest(value float64) CreateSaleRequest {
	return CreateSaleRequest{
		ClientID:   "client-1",
		ClientName: "Maria Souza",
		Plan:       AvailablePlans[0],
		Equipments: []EquipmentRequest{
			{ID: "eq-1", Name: "Router X", Model: "M-1", Quantity: 1},
		},
		Payment: PaymentRequest{TotalValue: value, InstallationFee: 99.9},
		InstallationAddress: Address{
			Street: "Rua das Flores", Number: "100", Neighborhood: "Centro",
			City: "Curitiba", State: "PR", ZipCode: "80000-000",
		},
	}
}

func TestCreateSale(t *testing.T) {
	queue := &captureQueue{}
	svc := NewService(newFakeRepo(), queue, nil, nil)

	before := time.Now()
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(199.9), "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, sale.Status)
	assert.Equal(t, PaymentPending, sale.Payment.Status)
	require.Len(t, sale.Timeline, 1)
	assert.Equal(t, 1, sale.Timeline[0].Seq)
	assert.Equal(t, StatusPending, sale.Timeline[0].Status)
	assert.Equal(t, "Venda registrada no sistema", sale.Timeline[0].Description)
	require.Len(t, sale.Equipments, 1)
	assert.Equal(t, EquipmentPending, sale.Equipments[0].Status)

	require.Len(t, queue.payloads, 1)
	payload := queue.payloads[0]
	assert.Equal(t, sale.ID, payload.SaleID)
	require.Len(t, payload.Lines, 1)
	assert.Equal(t, "Router X", payload.Lines[0].ItemName)
	// picking deadline sits 3 days out
	assert.WithinDuration(t, before.Add(72*time.Hour), payload.Deadline, 5*time.Second)
}

func TestCreateSaleSurvivesEnqueueFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &captureQueue{fail: true}, nil, nil)

	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestCreateSaleWithoutEquipmentsSkipsQueue(t *testing.T) {
	queue := &captureQueue{}
	svc := NewService(newFakeRepo(), queue, nil, nil)

	req := newSaleRequest(100)
	req.Equipments = nil
	_, err := svc.CreateSale(context.Background(), req, "user-1")
	require.NoError(t, err)
	assert.Empty(t, queue.payloads)
}

func TestUpdateStatusAppendsTimeline(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	got, err := svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusInProgress}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, 2, got.Timeline[1].Seq)
	assert.Equal(t, "Venda em andamento", got.Timeline[1].Description)
	assert.Equal(t, "user-2", got.Timeline[1].CreatedBy)
}

func TestUpdateStatusRejectsSkips(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusActive}, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Len(t, got.Timeline, 1)
}

func TestUpdateStatusFullJourneyStampsDates(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	var got Sale
	for _, status := range []Status{StatusInProgress, StatusStockSeparated, StatusDispatched, StatusInstalling, StatusActive} {
		got, err = svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: status}, "user-1")
		require.NoError(t, err)
	}

	assert.Equal(t, StatusActive, got.Status)
	assert.NotNil(t, got.ActivationDate)
	assert.NotNil(t, got.ActualInstallationDate)
	require.Len(t, got.Timeline, 6)
	for i, event := range got.Timeline {
		assert.Equal(t, i+1, event.Seq)
	}
}

func TestUpdateStatusSuspendAndResume(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusSuspended}, "user-1")
	require.NoError(t, err)

	got, err := svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusActive}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusCancelled}, "user-1")
	require.NoError(t, err)

	// cancelled is terminal
	_, err = svc.UpdateStatus(context.Background(), sale.ID, UpdateStatusRequest{Status: StatusPending}, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestAddDocument(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	first, err := svc.AddDocument(context.Background(), sale.ID, AddDocumentRequest{
		Name: "Contrato", Type: DocContract, URL: "https://files.local/contrato.pdf",
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)

	second, err := svc.AddDocument(context.Background(), sale.ID, AddDocumentRequest{
		Name: "Comprovante", Type: DocPaymentProof, URL: "https://files.local/comprovante.pdf",
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)

	_, err = svc.AddDocument(context.Background(), sale.ID, AddDocumentRequest{
		Name: "X", Type: DocumentType("selfie"), URL: "https://files.local/x",
	}, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteSaleCancelsOpenSeparations(t *testing.T) {
	canceller := &captureCanceller{}
	svc := NewService(newFakeRepo(), nil, canceller, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSale(context.Background(), sale.ID, "user-1"))
	assert.Equal(t, []string{sale.ID}, canceller.saleIDs)

	_, err = svc.GetSale(context.Background(), sale.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestUpdateSaleKeepsEquipmentStatus(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	sale, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)

	got, err := svc.UpdateSale(context.Background(), sale.ID, UpdateSaleRequest{
		Equipments: []EquipmentRequest{
			{ID: "eq-1", Name: "Router X", Model: "M-1", Quantity: 2},
			{Name: "Converter Z", Model: "C-2", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, got.Equipments, 2)
	assert.Equal(t, 2, got.Equipments[0].Quantity)
	assert.Equal(t, EquipmentPending, got.Equipments[1].Status)
	assert.NotEmpty(t, got.Equipments[1].ID)
}

func TestListSalesSearchAndValueRange(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	_, err := svc.CreateSale(context.Background(), newSaleRequest(100), "user-1")
	require.NoError(t, err)
	big := newSaleRequest(300)
	big.ClientName = "João Pereira"
	_, err = svc.CreateSale(context.Background(), big, "user-1")
	require.NoError(t, err)

	byName, err := svc.ListSales(context.Background(), Filters{Search: "joão"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "João Pereira", byName[0].ClientName)

	min := 200.0
	byValue, err := svc.ListSales(context.Background(), Filters{MinValue: &min})
	require.NoError(t, err)
	require.Len(t, byValue, 1)
	assert.Equal(t, 300.0, byValue[0].Payment.TotalValue)
}

func TestStats(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	for _, value := range []float64{100, 200, 300} {
		_, err := svc.CreateSale(context.Background(), newSaleRequest(value), "user-1")
		require.NoError(t, err)
	}

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 600.0, stats.TotalRevenue)
	assert.Equal(t, 200.0, stats.AverageTicket)
	assert.Equal(t, 3, stats.ThisMonthSales)
	assert.Equal(t, 600.0, stats.ThisMonthRevenue)
	assert.Contains(t, stats.TotalRevenueFormatted, "R$")
}

func TestStatsEmpty(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.AverageTicket)
}
