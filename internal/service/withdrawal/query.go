package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/service/ledger"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100

	// Largest row offset a page may start at
	maxOffset = math.MaxInt32
)

// Query filters and pages request listings
type Query struct {
	// Owner filter, admin listings only. uuid.Nil means any user
	UserID uuid.UUID

	Statuses []models.WithdrawalStatus

	// "created_at" (default) or "amount"
	SortBy string
	Asc    bool

	// Page is 1-based, zero values are replaced with defaults
	Page    int
	PerPage int
}

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	NextPage    int `json:"nextPage"`
	PrevPage    int `json:"prevPage"`
	LastPage    int `json:"lastPage"`
	Count       int `json:"count"`
}

type Page struct {
	Items      []models.Withdrawal
	Pagination Pagination
}

// Get returns the request to its owner or to an admin
// Other users get apperrors.ErrWithdrawalNotFound, not a permission error
func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Withdrawal, error) {
	if err := s.authorize(ctx, actor, false); err != nil {
		return models.Withdrawal{}, err
	}

	w, err := s.storage.Withdrawal().Get(ctx, id, false)
	switch {
	case err != nil:
		return models.Withdrawal{}, s.queryError("get withdrawal", err)
	case w.UserID != actor.ID && !actor.IsAdmin:
		return models.Withdrawal{}, apperrors.ErrWithdrawalNotFound
	}

	return w, nil
}

// History lists the actor's own requests
func (s *Service) History(ctx context.Context, actor models.Actor, q Query) (Page, error) {
	if err := s.authorize(ctx, actor, false); err != nil {
		return Page{}, err
	}

	q.UserID = actor.ID
	return s.list(ctx, q)
}

// ListForReview lists requests of all users, optionally of one
func (s *Service) ListForReview(ctx context.Context, actor models.Actor, q Query) (Page, error) {
	if err := s.authorize(ctx, actor, true); err != nil {
		return Page{}, err
	}

	return s.list(ctx, q)
}

func (s *Service) list(ctx context.Context, q Query) (Page, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return Page{}, err
	}

	items, total, err := s.storage.Withdrawal().List(ctx, repository.ListWithdrawalsOpts{
		UserID:   q.UserID,
		Statuses: q.Statuses,
		SortBy:   q.SortBy,
		Asc:      q.Asc,
		Limit:    q.PerPage,
		Offset:   (q.Page - 1) * q.PerPage,
	})
	if err != nil {
		return Page{}, s.queryError("list withdrawals", err)
	}

	return Page{Items: items, Pagination: paginate(q.Page, q.PerPage, total)}, nil
}

func normalizeQuery(q Query) (Query, error) {
	for _, status := range q.Statuses {
		if !status.Valid() {
			return q, apperrors.NewFieldError("status", fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, status))
		}
	}

	switch q.SortBy {
	case "":
		q.SortBy = "created_at"
	case "created_at", "amount":
	default:
		return q, apperrors.NewFieldError("sort", fmt.Errorf("%w: can't sort by %q", apperrors.ErrValidation, q.SortBy))
	}

	if q.Page < 0 || q.PerPage < 0 {
		return q, apperrors.NewFieldError("page", fmt.Errorf("%w: page must not be negative", apperrors.ErrValidation))
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	q.PerPage = min(q.PerPage, MaxPerPage)

	if q.Page-1 > maxOffset/q.PerPage {
		return q, apperrors.NewFieldError("page", fmt.Errorf("%w: page %d is out of range", apperrors.ErrValidation, q.Page))
	}

	return q, nil
}

func paginate(page, perPage, total int) Pagination {
	p := Pagination{
		CurrentPage: page,
		LastPage:    (total + perPage - 1) / perPage,
		Count:       total,
	}
	if page < p.LastPage {
		p.NextPage = page + 1
	}
	if page > 1 {
		p.PrevPage = page - 1
	}
	return p
}

// AvailableBalance returns the actor's balance figures, Balance.Available is the ceiling for new requests
func (s *Service) AvailableBalance(ctx context.Context, actor models.Actor) (models.Balance, error) {
	if err := s.authorize(ctx, actor, false); err != nil {
		return models.Balance{}, err
	}

	balance, err := s.storage.Balance().GetBalance(ctx, actor.ID, false)
	if err != nil {
		return models.Balance{}, s.queryError("get balance", err)
	}

	return balance, nil
}

// Earn credits affiliate earnings to the user
func (s *Service) Earn(ctx context.Context, actor models.Actor, userID uuid.UUID, amount decimal.Decimal) (models.Balance, error) {
	var balance models.Balance

	if err := s.authorize(ctx, actor, true); err != nil {
		return balance, err
	}

	err := s.inUnitOfWork(ctx, "earn", func(ctx context.Context, storage repository.Storage) error {
		current, err := storage.Balance().GetBalance(ctx, userID, true)
		if err != nil {
			return err
		}

		next, err := ledger.Earn(current, amount)
		if err != nil {
			return err
		}

		balance, err = storage.Balance().UpdateBalance(ctx, next)
		return err
	})
	if err != nil {
		return models.Balance{}, err
	}

	s.logger.Info("Earnings credited", "user_id", userID, "amount", ledger.Round(amount).StringFixed(2), "by", actor.ID)

	return balance, nil
}

// queryError hides storage failures of read only operations behind apperrors.ErrInternal
func (s *Service) queryError(op string, err error) error {
	if apperrors.Code(err) != apperrors.CodeInternal || errors.Is(err, apperrors.ErrInternal) {
		return err
	}

	s.logger.Error("Query failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s failed", apperrors.ErrInternal, op)
}
