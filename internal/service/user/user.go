package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/service/auth"
)

// UserService is the user and admin directory
type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}
}

// CreateUser creates user with zero balance
func (s *UserService) CreateUser(ctx context.Context, username string, password string, isAdmin bool) (models.User, error) {
	var user models.User
	if password == "" {
		return user, errors.New("password must not be empty")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, username, hash, isAdmin)
		if err != nil {
			return err
		}

		_, err = storage.Balance().CreateBalance(ctx, user.ID)
		return err
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// EnsureAdmin creates admin account if it does not exist yet
// Existing non admin user with the same username is an error
func (s *UserService) EnsureAdmin(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case err == nil && user.IsAdmin:
		return user, nil
	case err == nil:
		return user, fmt.Errorf("user %q exists and is not an admin: %w", username, apperrors.ErrUserAlreadyExists)
	case errors.Is(err, apperrors.ErrUserNotFound):
		return s.CreateUser(ctx, username, password, true)
	default:
		return user, err
	}
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// SetSuspended suspends or reactivates user account
// Only admins may do it and never for themselves
func (s *UserService) SetSuspended(ctx context.Context, actor models.Actor, userID uuid.UUID, suspended bool) (models.User, error) {
	if !actor.IsAdmin || actor.Suspended {
		return models.User{}, apperrors.ErrInvalidUserPermissions
	}
	if actor.ID == userID {
		return models.User{}, fmt.Errorf("%w: admin can't change own suspension", apperrors.ErrInvalidUserPermissions)
	}

	return s.storage.User().SetSuspended(ctx, userID, suspended)
}

// AdminIDs returns ids of active admins
func (s *UserService) AdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	admins, err := s.storage.User().ListAdmins(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}

	return ids, nil
}
