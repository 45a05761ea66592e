package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/replay-console/replay-console/internal/platform/httpx"
)

// ErrClientNotFound is returned for unknown client ids.
var ErrClientNotFound = fmt.Errorf("%w: client", httpx.ErrNotFound)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", httpx.ErrValidation, fmt.Sprintf(format, args...))
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InsertClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id string) (Client, error)
	ListClients(ctx context.Context, filters Filters) ([]Client, error)
	UpdateClient(ctx context.Context, id string, patch UpdateClientRequest, now time.Time) error
	DeleteClient(ctx context.Context, id string) error
	CountSalesByClient(ctx context.Context, clientID string) (int, error)
}

// Service coordinates client operations.
type Service struct {
	repo       RepositoryPort
	logger     *slog.Logger
	statsGroup singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create registers a new client, defaulting status to pending.
func (s *Service) Create(ctx context.Context, req CreateClientRequest, actor string) (Client, error) {
	if !req.DocumentType.IsValid() {
		return Client{}, validationErr("unknown document type %q", req.DocumentType)
	}
	if !req.Type.IsValid() {
		return Client{}, validationErr("unknown client type %q", req.Type)
	}
	status := req.Status
	if status == "" {
		status = StatusPending
	}
	if !status.IsValid() {
		return Client{}, validationErr("unknown status %q", status)
	}
	if len(req.Addresses) == 0 {
		return Client{}, validationErr("at least one address is required")
	}

	now := time.Now()
	client := Client{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		AlternativePhone:  req.AlternativePhone,
		Document:          req.Document,
		DocumentType:      req.DocumentType,
		Type:              req.Type,
		Status:            status,
		Addresses:         req.Addresses,
		CompanyName:       req.CompanyName,
		TradeName:         req.TradeName,
		StateRegistration: req.StateRegistration,
		Notes:             req.Notes,
		Tags:              req.Tags,
		CreatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertClient(ctx, client); err != nil {
		return Client{}, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}

// Get fetches one client by id.
func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	return s.repo.GetClient(ctx, id)
}

// List returns clients matching all supplied predicates, ordered by name.
func (s *Service) List(ctx context.Context, filters Filters) ([]Client, error) {
	list, err := s.repo.ListClients(ctx, filters)
	if err != nil {
		return nil, err
	}
	if filters.Search == "" {
		return list, nil
	}

	search := strings.ToLower(filters.Search)
	matched := make([]Client, 0, len(list))
	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Name), search) ||
			strings.Contains(strings.ToLower(c.Email), search) ||
			strings.Contains(c.Document, search) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// Update patches mutable client fields.
func (s *Service) Update(ctx context.Context, id string, patch UpdateClientRequest) (Client, error) {
	if patch.Status != nil && !patch.Status.IsValid() {
		return Client{}, validationErr("unknown status %q", *patch.Status)
	}
	if err := s.repo.UpdateClient(ctx, id, patch, time.Now()); err != nil {
		return Client{}, err
	}
	return s.repo.GetClient(ctx, id)
}

// Delete removes a client unconditionally. Existing sales keep their client
// name snapshot, so the delete is logged when sales reference the client.
func (s *Service) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountSalesByClient(ctx, id)
	if err == nil && count > 0 {
		s.logger.Warn("deleting client referenced by sales",
			slog.String("client_id", id),
			slog.Int("sales", count))
	}
	return s.repo.DeleteClient(ctx, id)
}

// Stats recomputes client base roll-ups from current rows.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	v, err, _ := s.statsGroup.Do("client-stats", func() (any, error) {
		list, err := s.repo.ListClients(ctx, Filters{})
		if err != nil {
			return Stats{}, err
		}
		stats := Stats{Total: len(list)}
		for _, c := range list {
			switch c.Status {
			case StatusActive:
				stats.Active++
			case StatusInactive:
				stats.Inactive++
			case StatusBlocked:
				stats.Blocked++
			case StatusPending:
				stats.Pending++
			}
		}
		return stats, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}
