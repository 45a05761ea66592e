package clients

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
	mu           sync.Mutex
	clients      map[string]Client
	salesPerUser map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients:      make(map[string]Client),
		salesPerUser: make(map[string]int),
	}
}

func (f *fakeRepo) InsertClient(_ context.Context, c Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
	return nil
}

func (f *fakeRepo) GetClient(_ context.Context, id string) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListClients(_ context.Context, filters Filters) ([]Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Client
	for _, c := range f.clients {
		if filters.Status != "" && c.Status != filters.Status {
			continue
		}
		if filters.Type != "" && c.Type != filters.Type {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) UpdateClient(_ context.Context, id string, patch UpdateClientRequest, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.Addresses != nil {
		c.Addresses = patch.Addresses
	}
	c.UpdatedAt = now
	f.clients[id] = c
	return nil
}

func (f *fakeRepo) DeleteClient(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(f.clients, id)
	return nil
}

func (f *fakeRepo) CountSalesByClient(_ context.Context, clientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.salesPerUser[clientID], nil
}

func newClientRequest(name, email string) CreateClientRequest {
	return CreateClientRequest{
		Name:         name,
		Email:        email,
		Phone:        "41999990000",
		Document:     "12345678900",
		DocumentType: DocCPF,
		Type:         TypeResidential,
		Addresses: []Address{{
			Street: "Rua das Flores", Number: "100", Neighborhood: "Centro",
			City: "Curitiba", State: "PR", ZipCode: "80000-000", IsMainAddress: true,
		}},
	}
}

func TestCreateClientDefaultsToPending(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	client, err := svc.Create(context.Background(), newClientRequest("Maria Souza", "maria@example.com"), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, client.Status)
	assert.Equal(t, "user-1", client.CreatedBy)
	require.Len(t, client.Addresses, 1)
	assert.True(t, client.Addresses[0].IsMainAddress)
}

func TestCreateClientRejectsBadEnums(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	req := newClientRequest("Maria Souza", "maria@example.com")
	req.DocumentType = DocumentType("rg")
	_, err := svc.Create(context.Background(), req, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	req = newClientRequest("Maria Souza", "maria@example.com")
	req.Addresses = nil
	_, err = svc.Create(context.Background(), req, "user-1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListClientsSearch(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	_, err := svc.Create(context.Background(), newClientRequest("Maria Souza", "maria@example.com"), "user-1")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), newClientRequest("João Pereira", "joao@example.com"), "user-1")
	require.NoError(t, err)

	matched, err := svc.List(context.Background(), Filters{Search: "maria"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Maria Souza", matched[0].Name)

	all, err := svc.List(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateClient(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	client, err := svc.Create(context.Background(), newClientRequest("Maria Souza", "maria@example.com"), "user-1")
	require.NoError(t, err)

	active := StatusActive
	got, err := svc.Update(context.Background(), client.ID, UpdateClientRequest{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	bad := Status("frozen")
	_, err = svc.Update(context.Background(), client.ID, UpdateClientRequest{Status: &bad})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteClient(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	client, err := svc.Create(context.Background(), newClientRequest("Maria Souza", "maria@example.com"), "user-1")
	require.NoError(t, err)
	repo.salesPerUser[client.ID] = 2 // delete proceeds anyway

	require.NoError(t, svc.Delete(context.Background(), client.ID))
	_, err = svc.Get(context.Background(), client.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestClientStats(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	a, err := svc.Create(context.Background(), newClientRequest("A", "a@example.com"), "user-1")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), newClientRequest("B", "b@example.com"), "user-1")
	require.NoError(t, err)

	active := StatusActive
	_, err = svc.Update(context.Background(), a.ID, UpdateClientRequest{Status: &active})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Pending)
}
