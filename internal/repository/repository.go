package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/models"
)

// User directory
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string, isAdmin bool) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Users with administrative rights
	ListAdmins(ctx context.Context) ([]models.User, error)

	// If user not found must return apperrors.ErrUserNotFound
	SetSuspended(ctx context.Context, userID uuid.UUID, suspended bool) (models.User, error)
}

type BalanceRepo interface {
	// Create zero balance for the user
	CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Get user balance
	// With forUpdate the balance row stays locked until the transaction ends
	// If balance not found must return apperrors.ErrUserNotFound
	GetBalance(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Balance, error)

	// Persist all balance figures as is
	UpdateBalance(ctx context.Context, b models.Balance) (models.Balance, error)
}

type ListWithdrawalsOpts struct {
	// Filter by owner, uuid.Nil means any user
	UserID uuid.UUID

	// Filter by statuses, empty means any
	Statuses []models.WithdrawalStatus

	// Sort by "created_at" (default) or "amount"
	SortBy string
	// Ascending order, default is descending
	Asc bool

	Limit  int
	Offset int
}

type WithdrawalRepo interface {
	Create(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)

	// Get withdrawal by id
	// With forUpdate the row stays locked until the transaction ends
	// If not found must return apperrors.ErrWithdrawalNotFound
	Get(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Withdrawal, error)

	// Persist mutable fields: method, amount, status, details, processing info and edit history
	Update(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)

	// List withdrawals and total count matching filters (ignoring limit and offset)
	List(ctx context.Context, opts ListWithdrawalsOpts) ([]models.Withdrawal, int, error)

	// Stats of the user's requests used by the fraud guard
	// requestedSince bounds RequestedInWindow, duplicateSince bounds duplicate lookup for method and amount
	Stats(ctx context.Context, userID uuid.UUID, method models.Method, amount decimal.Decimal, requestedSince time.Time, duplicateSince time.Time) (models.WithdrawalStats, error)
}

type Storage interface {
	User() UserRepo
	Balance() BalanceRepo
	Withdrawal() WithdrawalRepo

	// Run fn in one transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
