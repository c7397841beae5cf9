package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

const balanceColumns = `user_id, withdrawable, pending, withdrawn, affiliate_earnings, updated_at`

const createBalance = `-- name: CreateBalance
INSERT INTO balances (user_id)
VALUES ($1)
RETURNING ` + balanceColumns

func (r *BalanceRepo) CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, createBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return balance, fmt.Errorf("user balance already exists: %w", err)
			case pgerrcode.ForeignKeyViolation:
				return balance, apperrors.ErrUserNotFound
			}
		}

		return balance, fmt.Errorf("db error: %w", dbError(err))
	}

	return balance, nil
}

const getBalance = `-- name: GetBalance
SELECT ` + balanceColumns + ` FROM balances
WHERE user_id = $1
`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Balance, error) {
	query := getBalance
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", dbError(err))
	}
}

const updateBalance = `-- name: UpdateBalance
UPDATE balances
SET withdrawable = $2, pending = $3, withdrawn = $4, affiliate_earnings = $5, updated_at = now()
WHERE user_id = $1
RETURNING ` + balanceColumns

func (r *BalanceRepo) UpdateBalance(ctx context.Context, b models.Balance) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, updateBalance,
		b.UserID,
		b.WithdrawableBalance,
		b.PendingWithdrawals,
		b.TotalWithdrawn,
		b.AffiliateEarnings,
	)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation:
		return balance, fmt.Errorf("%w: balance constraint %s violated", apperrors.ErrInsufficientLedgerBalance, pgErr.ConstraintName)
	default:
		return balance, fmt.Errorf("db error: %w", dbError(err))
	}
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.WithdrawableBalance, &b.PendingWithdrawals, &b.TotalWithdrawn, &b.AffiliateEarnings, &b.UpdatedAt)
	return b, err
}
