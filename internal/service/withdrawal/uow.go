package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
)

// inUnitOfWork runs fn in a transaction bounded by the operation timeout, fn gets the bounded context
// Conflicts are retried, unexpected failures and timeouts surface as apperrors.ErrInternal
// fn may run several times so it must not leak state between attempts
func (s *Service) inUnitOfWork(ctx context.Context, op string, fn func(context.Context, repository.Storage) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.storage.InTx(ctx, func(storage repository.Storage) error {
			return fn(ctx, storage)
		})

		switch {
		case err == nil:
			return nil

		case ctx.Err() != nil:
			s.logger.Error("Operation timed out", "op", op, "attempt", attempt, "error", err)
			return fmt.Errorf("%w: %s timed out", apperrors.ErrInternal, op)

		case errors.Is(err, apperrors.ErrConflict):
			s.logger.Warn("Storage conflict, retrying", "op", op, "attempt", attempt, "error", err)
			continue

		case apperrors.Code(err) == apperrors.CodeInternal:
			s.logger.Error("Operation failed", "op", op, "error", err)
			return fmt.Errorf("%w: %s failed", apperrors.ErrInternal, op)

		default:
			return err
		}
	}

	s.logger.Error("Operation gave up on storage conflicts", "op", op, "attempts", s.maxAttempts, "error", err)
	return fmt.Errorf("%w: %s conflicted %d times", apperrors.ErrInternal, op, s.maxAttempts)
}

// authorize checks the actor still exists and is active
func (s *Service) authorize(ctx context.Context, actor models.Actor, adminOnly bool) error {
	if adminOnly && !actor.IsAdmin {
		return apperrors.ErrInvalidUserPermissions
	}

	user, err := s.storage.User().GetUserByID(ctx, actor.ID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return err
	case err != nil:
		s.logger.Error("Failed to load actor", "user_id", actor.ID, "error", err)
		return fmt.Errorf("%w: can't load user", apperrors.ErrInternal)
	case user.Suspended:
		return apperrors.ErrAccountSuspended
	case adminOnly && !user.IsAdmin:
		return apperrors.ErrInvalidUserPermissions
	}

	return nil
}

// lockPending loads the request under row lock and makes sure it is still pending
func lockPending(ctx context.Context, storage repository.Storage, id uuid.UUID, notPending error) (models.Withdrawal, error) {
	w, err := storage.Withdrawal().Get(ctx, id, true)
	if err != nil {
		return w, err
	}

	if !w.IsPending() {
		return w, fmt.Errorf("%w: request is %s", notPending, w.Status)
	}

	return w, nil
}
