package app

import (
	"context"
	"fmt"

	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

func (s *Service) Me(ctx context.Context) (store.User, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.User{}, err
	}
	user, err := s.store.GetUserByID(ctx, subject.ID)
	if err != nil {
		return store.User{}, fmt.Errorf("load current user: %w", err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, update authpw.ProfileUpdate) (store.User, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.User{}, err
	}
	return s.accounts.UpdateProfile(ctx, subject.ID, update)
}

func (s *Service) UpdatePassword(ctx context.Context, current, next string) error {
	subject, err := actor(ctx)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, subject.ID, current, next)
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	subject, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if !rbac.IsAdmin(subject) {
		return nil, authpw.ErrPermissionDenied
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []store.User{}
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, req authpw.CreateUserRequest) (store.User, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.User{}, err
	}
	return s.accounts.CreateUser(ctx, subject, req)
}

func (s *Service) SetUserRole(ctx context.Context, userID, role string) (store.User, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.User{}, err
	}
	return s.accounts.SetRole(ctx, subject, userID, role)
}
