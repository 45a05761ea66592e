package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/replay-console/replay-console/internal/platform/httpx"
	"github.com/replay-console/replay-console/internal/shared"
)

// Common errors.
var (
	ErrUserNotFound      = fmt.Errorf("%w: user", httpx.ErrNotFound)
	ErrEmailTaken        = fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
	ErrInvalidCredential = fmt.Errorf("%w: invalid email or password", httpx.ErrUnauthorized)
	ErrSessionExpired    = fmt.Errorf("%w: session expired", httpx.ErrUnauthorized)
)

// UserRepository abstracts user persistence for the service.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, u User) error
}

// SessionPort abstracts the session store for the service.
type SessionPort interface {
	Create(ctx context.Context, actor shared.Actor) (string, error)
	Get(ctx context.Context, token string) (shared.Actor, error)
	Delete(ctx context.Context, token string) error
}

// Service handles authentication and session lifecycle.
type Service struct {
	users    UserRepository
	sessions SessionPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(users UserRepository, sessions SessionPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, sessions: sessions, logger: logger}
}

// Register creates an operator account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (UserInfo, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserInfo{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.InsertUser(ctx, user); err != nil {
		return UserInfo{}, err
	}
	return UserInfo{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// Login verifies credentials and opens a session. Unknown emails and bad
// passwords produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResponse{}, ErrInvalidCredential
		}
		return LoginResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResponse{}, ErrInvalidCredential
	}

	actor := shared.Actor{ID: user.ID, Email: user.Email, Name: user.Name}
	token, err := s.sessions.Create(ctx, actor)
	if err != nil {
		return LoginResponse{}, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return LoginResponse{
		Token: token,
		User:  UserInfo{ID: user.ID, Email: user.Email, Name: user.Name},
	}, nil
}

// Logout closes a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve maps a bearer token to its actor.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	return s.sessions.Get(ctx, token)
}

// Me returns the account behind an actor id.
func (s *Service) Me(ctx context.Context, userID string) (UserInfo, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}
