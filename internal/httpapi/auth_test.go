package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Active = active
	s.users[username] = user
	return nil
}

func newStubWithAdmin() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := newStubWithAdmin()

	manager := NewAuthManager("test-secret", time.Hour, users)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	users := newStubWithAdmin()
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Counter1",
		Password: "pass1234",
		Role:     domain.RolePharmacist,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "counter1" || created.Role != domain.RolePharmacist {
		t.Fatalf("unexpected user %+v", created)
	}

	saved := users.users["counter1"]
	if saved.Password == "pass1234" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", saved.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "counter1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
	if resp.Role != domain.RolePharmacist {
		t.Fatalf("expected pharmacist role, got %s", resp.Role)
	}
}

func TestCreateUserRejectsBadInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubWithAdmin())
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.UserCreateRequest
		want error
	}{
		{"short username", domain.UserCreateRequest{Username: "ab", Password: "pass1234"}, store.ErrValidation},
		{"short password", domain.UserCreateRequest{Username: "newuser", Password: "abc"}, store.ErrValidation},
		{"unknown role", domain.UserCreateRequest{Username: "newuser", Password: "pass1234", Role: "owner"}, store.ErrValidation},
		{"duplicate", domain.UserCreateRequest{Username: "ADMIN", Password: "pass1234"}, store.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.CreateUser(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeactivatedUserCannotUseToken(t *testing.T) {
	users := newStubWithAdmin()
	manager := NewAuthManager("test-secret", time.Hour, users)
	ctx := context.Background()

	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "seller1", Password: "pass1234"}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "seller1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	admin := domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	if _, err := manager.SetUserActive(ctx, admin, "seller1", false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token of deactivated user to be rejected")
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "seller1", Password: "pass1234"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}

	if _, err := manager.SetUserActive(ctx, admin, "admin", false); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected self-deactivation to be rejected, got %v", err)
	}
	if _, err := manager.SetUserActive(ctx, admin, "ghost", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChangePasswordRehashes(t *testing.T) {
	users := newStubWithAdmin()
	manager := NewAuthManager("test-secret", time.Hour, users)
	ctx := context.Background()

	if err := manager.ChangePassword(ctx, "admin", "new-secret"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); err == nil {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "new-secret"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, newStubWithAdmin())
	verifier := NewAuthManager("secret-two", time.Hour, nil)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	actor, err := issuer.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
