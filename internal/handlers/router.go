package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/handlers/middleware"
	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/service/validate"
	"github.com/nkiryanov/payouts/internal/service/withdrawal"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	withdrawalService withdrawalService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	auth := middleware.NewAuth(authService)

	apiuser := http.NewServeMux()

	apiuser.Handle("POST /login", handleLogin(authService, logger))
	apiuser.Handle("POST /register", handleRegister(authService, logger))

	apiuser.Handle("GET /me", auth.Auth(handleUserMe(userService, logger)))
	apiuser.Handle("GET /balance", auth.Auth(handleUserBalance(withdrawalService, logger)))
	apiuser.Handle("POST /withdrawals", auth.Auth(handleCreateWithdrawal(withdrawalService, logger)))
	apiuser.Handle("GET /withdrawals", auth.Auth(handleListWithdrawals(withdrawalService, logger)))
	apiuser.Handle("GET /withdrawals/{id}", auth.Auth(handleGetWithdrawal(withdrawalService, logger)))

	apiadmin := http.NewServeMux()

	apiadmin.Handle("GET /withdrawals", handleReviewWithdrawals(withdrawalService, logger))
	apiadmin.Handle("PATCH /withdrawals/{id}", handleEditWithdrawal(withdrawalService, logger))
	apiadmin.Handle("POST /withdrawals/{id}/approve", handleApproveWithdrawal(withdrawalService, logger))
	apiadmin.Handle("POST /withdrawals/{id}/reject", handleRejectWithdrawal(withdrawalService, logger))
	apiadmin.Handle("POST /users/{id}/earnings", handleEarn(withdrawalService, logger))
	apiadmin.Handle("PUT /users/{id}/suspension", handleSuspension(userService, logger))

	root := http.NewServeMux()
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", chain(apiadmin, auth.Auth, auth.AdminOnly)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found or password does not match
	Login(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Set access token to response
	SetAuth(w http.ResponseWriter, token models.IssuedToken)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type withdrawalService interface {
	Create(ctx context.Context, actor models.Actor, in validate.Input) (models.Withdrawal, error)
	Edit(ctx context.Context, actor models.Actor, id uuid.UUID, req withdrawal.EditRequest) (models.Withdrawal, error)
	Approve(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (models.Withdrawal, error)
	Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (models.Withdrawal, error)

	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (models.Withdrawal, error)
	History(ctx context.Context, actor models.Actor, q withdrawal.Query) (withdrawal.Page, error)
	ListForReview(ctx context.Context, actor models.Actor, q withdrawal.Query) (withdrawal.Page, error)

	AvailableBalance(ctx context.Context, actor models.Actor) (models.Balance, error)
	Earn(ctx context.Context, actor models.Actor, userID uuid.UUID, amount decimal.Decimal) (models.Balance, error)
}

type userService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	SetSuspended(ctx context.Context, actor models.Actor, userID uuid.UUID, suspended bool) (models.User, error)
}

// renderError renders application error, unexpected ones are logged
func renderError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	if apperrors.Code(err) == apperrors.CodeInternal {
		l.Error(msg, "error", err)
	}
	render.AppError(w, err)
}

// pathID parses the {id} path value
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return id, apperrors.NewFieldError("id", apperrors.ErrValidation)
	}
	return id, nil
}
