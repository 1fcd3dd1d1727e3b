package services

import (
	"context"
	"errors"
	"fleetpush/backend/app/models"
	"fleetpush/backend/app/repo"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserService struct{ users *repo.UserRepository }

func NewUserService(users *repo.UserRepository) *UserService { return &UserService{users: users} }

func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	count, err := s.users.CountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.CreateUser(ctx, username, password, models.RoleAdmin, "")
}

func (s *UserService) CreateUser(ctx context.Context, username, password, role, deviceID string) error {
	if username == "" || password == "" {
		return ErrInvalidInput
	}
	switch role {
	case "":
		role = models.RoleOperator
	case models.RoleAdmin, models.RoleOperator:
	case models.RoleDevice:
		if deviceID == "" {
			return ErrInvalidInput
		}
	default:
		return ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.Create(ctx, &models.User{Username: username, PasswordHash: string(hash), Role: role, DeviceID: deviceID})
}

func (s *UserService) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
