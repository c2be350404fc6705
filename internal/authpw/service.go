// Package authpw provides username/password authentication and account
// management.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

const (
	minUsernameLength = 3
	minPasswordLength = 8
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTooShort   = errors.New("username must be at least 3 characters")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrPermissionDenied   = errors.New("only administrators can manage users")
	ErrUserNotFound       = errors.New("user not found")
)

// Service provides password authentication and account management
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUserProfile(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	UpdateUserRole(ctx context.Context, userID, role string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{
		store: store,
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
	}
}

// SignIn authenticates a user and records the login. The previous login
// date becomes the user's last login date.
func (s *Service) SignIn(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	at := s.now().UTC()
	if err := s.store.RecordLogin(ctx, user.ID, at); err != nil {
		return store.User{}, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginDate = user.LoginDate
	user.LoginDate = &at
	return user, nil
}

// CreateUserRequest contains the fields of a new account
type CreateUserRequest struct {
	Username string
	Password string
	Name     string
	Surname  string
	Email    string
	Role     string
}

// CreateUser adds an account. Only administrators may call it.
func (s *Service) CreateUser(ctx context.Context, actor *rbac.Subject, req CreateUserRequest) (store.User, error) {
	if !rbac.IsAdmin(actor) {
		return store.User{}, ErrPermissionDenied
	}
	return s.createUser(ctx, req)
}

// Bootstrap creates the first administrator when no account exists yet.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.createUser(ctx, CreateUserRequest{
		Username: username,
		Password: password,
		Role:     string(rbac.GlobalAdmin),
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) createUser(ctx context.Context, req CreateUserRequest) (store.User, error) {
	username, err := validateUsername(req.Username)
	if err != nil {
		return store.User{}, err
	}
	email, err := validateEmail(req.Email)
	if err != nil {
		return store.User{}, err
	}
	role := rbac.GlobalUser
	if strings.TrimSpace(req.Role) != "" {
		if role, err = rbac.ValidateGlobalRole(req.Role); err != nil {
			return store.User{}, err
		}
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return store.User{}, err
	}

	user, err := s.store.CreateUser(ctx, store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        email,
		PasswordHash: hash,
		Role:         string(role),
	})
	if errors.Is(err, store.ErrConflict) {
		return store.User{}, ErrUsernameTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// ProfileUpdate contains the editable profile fields
type ProfileUpdate struct {
	Username string
	Name     string
	Surname  string
	Email    string
}

// UpdateProfile edits the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, req ProfileUpdate) (store.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	username, err := validateUsername(req.Username)
	if err != nil {
		return store.User{}, err
	}
	email, err := validateEmail(req.Email)
	if err != nil {
		return store.User{}, err
	}

	if !strings.EqualFold(username, user.Username) {
		existing, err := s.store.GetUserByUsername(ctx, username)
		if err == nil && existing.ID != user.ID {
			return store.User{}, ErrUsernameTaken
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.User{}, fmt.Errorf("lookup username: %w", err)
		}
	}

	user.Username = username
	user.Name = strings.TrimSpace(req.Name)
	user.Surname = strings.TrimSpace(req.Surname)
	user.Email = email
	if err := s.store.UpdateUserProfile(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// UpdatePassword replaces the password after checking the current one.
func (s *Service) UpdatePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetRole changes a user's global role. Only administrators may call it.
func (s *Service) SetRole(ctx context.Context, actor *rbac.Subject, userID, role string) (store.User, error) {
	if !rbac.IsAdminField(actor) {
		return store.User{}, ErrPermissionDenied
	}
	validated, err := rbac.ValidateGlobalRole(role)
	if err != nil {
		return store.User{}, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.UpdateUserRole(ctx, user.ID, string(validated)); err != nil {
		return store.User{}, fmt.Errorf("update role: %w", err)
	}
	user.Role = string(validated)
	return user, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUserNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len([]rune(username)) < minUsernameLength {
		return "", ErrUsernameTooShort
	}
	return username, nil
}

// validateEmail accepts an empty address.
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
