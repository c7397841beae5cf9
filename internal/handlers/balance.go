package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/handlers/userctx"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/models"
)

type balanceResponse struct {
	WithdrawableBalance string `json:"withdrawableBalance"`
	PendingWithdrawals  string `json:"pendingWithdrawals"`
	AvailableBalance    string `json:"availableBalance"`
	TotalWithdrawn      string `json:"totalWithdrawn"`
	AffiliateEarnings   string `json:"affiliateEarnings"`
}

func newBalanceResponse(b models.Balance) balanceResponse {
	return balanceResponse{
		WithdrawableBalance: money(b.WithdrawableBalance),
		PendingWithdrawals:  money(b.PendingWithdrawals),
		AvailableBalance:    money(b.Available()),
		TotalWithdrawn:      money(b.TotalWithdrawn),
		AffiliateEarnings:   money(b.AffiliateEarnings),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func handleUserBalance(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := withdrawalService.AvailableBalance(r.Context(), actor)
		if err != nil {
			renderError(w, l, "Failed to get balance", err)
			return
		}

		render.JSON(w, newBalanceResponse(balance))
	})
}

func handleEarn(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount *decimal.Decimal `json:"amount" validate:"required"`
	}

	type response struct {
		UserID uuid.UUID `json:"userId"`
		balanceResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		userID, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		balance, err := withdrawalService.Earn(r.Context(), actor, userID, *data.Amount)
		if err != nil {
			renderError(w, l, "Failed to credit earnings", err)
			return
		}

		render.JSON(w, response{UserID: balance.UserID, balanceResponse: newBalanceResponse(balance)})
	})
}
