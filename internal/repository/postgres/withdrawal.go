package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
)

type WithdrawalRepo struct {
	DB DBTX
}

const withdrawalColumns = `id, user_id, method, amount, status, details, processed_by, processed_at,
	transaction_reference, rejection_reason, edit_history, created_at, updated_at`

const createWithdrawal = `-- name: CreateWithdrawal
INSERT INTO withdrawals (id, user_id, method, amount, status, details, edit_history, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Create(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	if w.EditHistory == nil {
		w.EditHistory = []models.EditEntry{}
	}

	details, history, err := marshalWithdrawal(w)
	if err != nil {
		return w, err
	}

	rows, _ := r.DB.Query(ctx, createWithdrawal,
		w.ID, w.UserID, string(w.Method), w.Amount, string(w.Status), details, history, w.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrUserNotFound
		}

		return created, fmt.Errorf("db error: %w", dbError(err))
	}

	return created, nil
}

const getWithdrawal = `-- name: GetWithdrawal
SELECT ` + withdrawalColumns + ` FROM withdrawals
WHERE id = $1
`

func (r *WithdrawalRepo) Get(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Withdrawal, error) {
	query := getWithdrawal
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, id)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", dbError(err))
	}
}

const updateWithdrawal = `-- name: UpdateWithdrawal
UPDATE withdrawals
SET method = $2, amount = $3, status = $4, details = $5, processed_by = $6, processed_at = $7,
	transaction_reference = $8, rejection_reason = $9, edit_history = $10, updated_at = now()
WHERE id = $1
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Update(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	details, history, err := marshalWithdrawal(w)
	if err != nil {
		return w, err
	}

	var reference *string
	if w.TransactionReference != "" {
		reference = &w.TransactionReference
	}

	rows, _ := r.DB.Query(ctx, updateWithdrawal,
		w.ID, string(w.Method), w.Amount, string(w.Status), details,
		w.ProcessedBy, w.ProcessedAt, reference, w.RejectionReason, history,
	)
	updated, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, apperrors.ErrWithdrawalNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return updated, fmt.Errorf("%w: transaction reference already used", apperrors.ErrValidation)
	default:
		return updated, fmt.Errorf("db error: %w", dbError(err))
	}
}

const listWithdrawalsWhere = `
WHERE ($1::uuid IS NULL OR user_id = $1)
	AND (cardinality($2::text[]) = 0 OR status = ANY($2))
`

const countWithdrawals = `-- name: CountWithdrawals
SELECT count(*) FROM withdrawals` + listWithdrawalsWhere

const listWithdrawals = `-- name: ListWithdrawals
SELECT ` + withdrawalColumns + ` FROM withdrawals` + listWithdrawalsWhere

func (r *WithdrawalRepo) List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.Withdrawal, int, error) {
	var userID *uuid.UUID
	if opts.UserID != uuid.Nil {
		userID = &opts.UserID
	}

	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	var total int
	err := r.DB.QueryRow(ctx, countWithdrawals, userID, statuses).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", dbError(err))
	}

	// Sort column is never taken from input as is
	column := "created_at"
	if opts.SortBy == "amount" {
		column = "amount"
	}
	direction := "DESC"
	if opts.Asc {
		direction = "ASC"
	}

	query := listWithdrawals + fmt.Sprintf("ORDER BY %s %s, id %s\n", column, direction, direction)
	args := []any{userID, statuses}
	if opts.Limit > 0 {
		query += "LIMIT $3 OFFSET $4"
		args = append(args, opts.Limit, max(opts.Offset, 0))
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	withdrawals, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", dbError(err))
	}

	return withdrawals, total, nil
}

const withdrawalStats = `-- name: WithdrawalStats
SELECT
	count(*) FILTER (WHERE status = 'pending'),
	coalesce(sum(amount) FILTER (WHERE status <> 'rejected' AND created_at >= $2), 0),
	count(*) FILTER (WHERE status = 'approved'),
	coalesce(round(avg(amount) FILTER (WHERE status = 'approved'), 2), 0),
	coalesce(max(amount) FILTER (WHERE status = 'approved'), 0),
	coalesce(bool_or(status = 'pending' AND method = $3 AND amount = $4 AND created_at >= $5), false)
FROM withdrawals
WHERE user_id = $1
`

func (r *WithdrawalRepo) Stats(
	ctx context.Context,
	userID uuid.UUID,
	method models.Method,
	amount decimal.Decimal,
	requestedSince time.Time,
	duplicateSince time.Time,
) (models.WithdrawalStats, error) {
	var s models.WithdrawalStats

	err := r.DB.QueryRow(ctx, withdrawalStats, userID, requestedSince, string(method), amount, duplicateSince).Scan(
		&s.PendingCount,
		&s.RequestedInWindow,
		&s.ApprovedCount,
		&s.ApprovedAvg,
		&s.ApprovedMax,
		&s.HasRecentDuplicate,
	)
	if err != nil {
		return s, fmt.Errorf("db error: %w", dbError(err))
	}

	return s, nil
}

func marshalWithdrawal(w models.Withdrawal) (details []byte, history []byte, err error) {
	if w.Details == nil || w.Details.Method() != w.Method {
		return nil, nil, fmt.Errorf("%w: details do not match method %s", apperrors.ErrValidation, w.Method)
	}

	details, err = json.Marshal(w.Details)
	if err != nil {
		return nil, nil, fmt.Errorf("error while encoding withdrawal details. Err: %w", err)
	}

	history, err = json.Marshal(w.EditHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("error while encoding withdrawal edit history. Err: %w", err)
	}

	return details, history, nil
}

func unmarshalDetails(method models.Method, raw []byte) (models.MethodDetails, error) {
	switch method {
	case models.MethodMobileBanking:
		var d models.MobileBankingDetails
		err := json.Unmarshal(raw, &d)
		return d, err
	case models.MethodBankTransfer:
		var d models.BankTransferDetails
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("unknown withdrawal method %q", method)
	}
}

func rowToWithdrawal(row pgx.CollectableRow) (models.Withdrawal, error) {
	var (
		w         models.Withdrawal
		method    string
		status    string
		details   []byte
		history   []byte
		reference *string
	)

	err := row.Scan(
		&w.ID, &w.UserID, &method, &w.Amount, &status, &details, &w.ProcessedBy, &w.ProcessedAt,
		&reference, &w.RejectionReason, &history, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return w, err
	}

	w.Method = models.Method(method)
	w.Status = models.WithdrawalStatus(status)
	if reference != nil {
		w.TransactionReference = *reference
	}

	w.Details, err = unmarshalDetails(w.Method, details)
	if err != nil {
		return w, fmt.Errorf("error while decoding withdrawal details. Err: %w", err)
	}

	if err := json.Unmarshal(history, &w.EditHistory); err != nil {
		return w, fmt.Errorf("error while decoding withdrawal edit history. Err: %w", err)
	}

	return w, nil
}
