package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-console/replay-console/internal/platform/httpx"
	"github.com/replay-console/replay-console/internal/shared"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]User // keyed by id
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]User)}
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) InsertUser(_ context.Context, u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	f.users[u.ID] = u
	return nil
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Hour)
	return NewService(newFakeUserRepo(), store, nil), mr
}

func register(t *testing.T, svc *Service) UserInfo {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "maria@example.com",
		Name:     "Maria Souza",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	user := register(t, svc)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "maria@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, "Maria Souza", resp.User.Name)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "maria@example.com",
		Name:     "Other",
		Password: "another pass",
	})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc)

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "maria@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)

	// unknown email yields the same error
	_, err = svc.Login(context.Background(), LoginRequest{
		Email:    "ghost@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestResolveAndLogout(t *testing.T) {
	svc, _ := newTestService(t)
	user := register(t, svc)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "maria@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	actor, err := svc.Resolve(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.ID)
	assert.Equal(t, "maria@example.com", actor.Email)

	require.NoError(t, svc.Logout(context.Background(), resp.Token))
	_, err = svc.Resolve(context.Background(), resp.Token)
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestSessionExpiry(t *testing.T) {
	svc, mr := newTestService(t)
	register(t, svc)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "maria@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = svc.Resolve(context.Background(), resp.Token)
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	actor := shared.Actor{ID: "u-1", Email: "a@b.c", Name: "A"}
	token, err := store.Create(context.Background(), actor)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	require.NoError(t, store.Delete(context.Background(), token))
	_, err = store.Get(context.Background(), token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
