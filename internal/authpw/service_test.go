package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users  map[string]store.User
	logins map[string]time.Time
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:  make(map[string]store.User),
		logins: make(map[string]time.Time),
	}
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, fmt.Errorf("get user by username: %w", store.ErrNotFound)
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, fmt.Errorf("get user: %w", store.ErrNotFound)
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if _, err := m.GetUserByUsername(ctx, user.Username); err == nil {
		return store.User{}, fmt.Errorf("insert user: %w", store.ErrConflict)
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *mockUserStore) CountUsers(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *mockUserStore) UpdateUserProfile(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	user := m.users[userID]
	user.LastLoginDate = user.LoginDate
	user.LoginDate = &at
	m.users[userID] = user
	m.logins[userID] = at
	return nil
}

var admin = &rbac.Subject{ID: "admin", Role: rbac.GlobalAdmin}

func newTestService(t *testing.T) (*Service, *mockUserStore) {
	t.Helper()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)
	svc.cost = bcrypt.MinCost
	return svc, mockStore
}

func mustCreate(t *testing.T, svc *Service, username, password string) store.User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), admin, CreateUserRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return user
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService(t)
	user := mustCreate(t, svc, "avery", "password123")

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return first }

	t.Run("successful sign in", func(t *testing.T) {
		got, err := svc.SignIn(ctx, "avery", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("expected user %s, got %s", user.ID, got.ID)
		}
		if got.LoginDate == nil || !got.LoginDate.Equal(first) {
			t.Errorf("expected login date %v, got %v", first, got.LoginDate)
		}
		if got.LastLoginDate != nil {
			t.Errorf("expected no last login date on first sign in, got %v", got.LastLoginDate)
		}
	})

	t.Run("second sign in shifts last login", func(t *testing.T) {
		second := first.Add(time.Hour)
		svc.now = func() time.Time { return second }
		got, err := svc.SignIn(ctx, "avery", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.LastLoginDate == nil || !got.LastLoginDate.Equal(first) {
			t.Errorf("expected last login %v, got %v", first, got.LastLoginDate)
		}
		if !mockStore.logins[user.ID].Equal(second) {
			t.Errorf("expected recorded login %v, got %v", second, mockStore.logins[user.ID])
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "avery", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "", ""); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		actor *rbac.Subject
		req   CreateUserRequest
		want  error
	}{
		{name: "non admin", actor: &rbac.Subject{ID: "u", Role: rbac.GlobalUser}, req: CreateUserRequest{Username: "dana", Password: "password123"}, want: ErrPermissionDenied},
		{name: "anonymous", actor: nil, req: CreateUserRequest{Username: "dana", Password: "password123"}, want: ErrPermissionDenied},
		{name: "short username", actor: admin, req: CreateUserRequest{Username: "da", Password: "password123"}, want: ErrUsernameTooShort},
		{name: "short password", actor: admin, req: CreateUserRequest{Username: "dana", Password: "short"}, want: ErrPasswordTooShort},
		{name: "bad email", actor: admin, req: CreateUserRequest{Username: "dana", Password: "password123", Email: "not-an-email"}, want: ErrInvalidEmail},
		{name: "bad role", actor: admin, req: CreateUserRequest{Username: "dana", Password: "password123", Role: "root"}, want: rbac.ErrInvalidRole},
		{name: "duplicate username", actor: admin, req: CreateUserRequest{Username: "avery", Password: "password123"}, want: ErrUsernameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			mustCreate(t, svc, "avery", "password123")
			_, err := svc.CreateUser(ctx, tt.actor, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("defaults role to user", func(t *testing.T) {
		svc, _ := newTestService(t)
		user := mustCreate(t, svc, "dana", "password123")
		if user.Role != string(rbac.GlobalUser) {
			t.Errorf("expected role user, got %q", user.Role)
		}
		if user.PasswordHash == "password123" || user.PasswordHash == "" {
			t.Error("expected password to be hashed")
		}
	})
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService(t)

	created, err := svc.Bootstrap(ctx, "root-admin", "password123")
	if err != nil || !created {
		t.Fatalf("Bootstrap() = %v, %v", created, err)
	}
	user, err := mockStore.GetUserByUsername(ctx, "root-admin")
	if err != nil {
		t.Fatalf("bootstrap user missing: %v", err)
	}
	if user.Role != string(rbac.GlobalAdmin) {
		t.Errorf("expected admin role, got %q", user.Role)
	}

	created, err = svc.Bootstrap(ctx, "second", "password123")
	if err != nil || created {
		t.Fatalf("second Bootstrap() = %v, %v", created, err)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	avery := mustCreate(t, svc, "avery", "password123")
	mustCreate(t, svc, "dana", "password123")

	t.Run("updates fields", func(t *testing.T) {
		got, err := svc.UpdateProfile(ctx, avery.ID, ProfileUpdate{Username: "avery2", Name: " Avery ", Email: "avery@example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Username != "avery2" || got.Name != "Avery" || got.Email != "avery@example.com" {
			t.Errorf("unexpected profile: %+v", got)
		}
	})

	t.Run("email optional", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, avery.ID, ProfileUpdate{Username: "avery2"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("taken username", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, avery.ID, ProfileUpdate{Username: "dana"}); !errors.Is(err, ErrUsernameTaken) {
			t.Errorf("expected ErrUsernameTaken, got %v", err)
		}
	})

	t.Run("short username", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, avery.ID, ProfileUpdate{Username: "ab"}); !errors.Is(err, ErrUsernameTooShort) {
			t.Errorf("expected ErrUsernameTooShort, got %v", err)
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, avery.ID, ProfileUpdate{Username: "avery2", Email: "avery@"}); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("expected ErrInvalidEmail, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, "missing", ProfileUpdate{Username: "ghost"}); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	user := mustCreate(t, svc, "avery", "password123")

	if err := svc.UpdatePassword(ctx, user.ID, "wrong-password", "newpassword1"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}
	if err := svc.UpdatePassword(ctx, user.ID, "password123", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := svc.UpdatePassword(ctx, user.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "avery", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should no longer work, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "avery", "newpassword1"); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	user := mustCreate(t, svc, "avery", "password123")

	if _, err := svc.SetRole(ctx, &rbac.Subject{ID: user.ID, Role: rbac.GlobalUser}, user.ID, "admin"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	_, err := svc.SetRole(ctx, admin, user.ID, "superuser")
	if !errors.Is(err, rbac.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "superuser") {
		t.Errorf("expected error to name the role, got %v", err)
	}
	got, err := svc.SetRole(ctx, admin, user.ID, "admin")
	if err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if got.Role != "admin" {
		t.Errorf("expected admin, got %q", got.Role)
	}
	if _, err := svc.SetRole(ctx, admin, "missing", "user"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
