package handlers

import (
	"net/http"

	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/handlers/userctx"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/service/withdrawal"
)

func handleReviewWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		q, err := parseQuery(r.URL.Query())
		if err != nil {
			render.AppError(w, err)
			return
		}

		page, err := withdrawalService.ListForReview(r.Context(), actor, q)
		if err != nil {
			renderError(w, l, "Failed to list withdrawals for review", err)
			return
		}

		render.JSON(w, newPageResponse(page))
	})
}

func handleEditWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		id, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		data, err := render.BindAndValidate[withdrawalRequest](w, r)
		if err != nil {
			return
		}

		edited, err := withdrawalService.Edit(r.Context(), actor, id, withdrawal.EditRequest{
			Method:        data.Method,
			Amount:        data.Amount,
			MobileBanking: data.MobileBanking,
			BankTransfer:  data.BankTransfer,
		})
		if err != nil {
			renderError(w, l, "Failed to edit withdrawal", err)
			return
		}

		render.JSON(w, newWithdrawalResponse(edited))
	})
}

func handleApproveWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		TransactionReference string `json:"transactionReference" validate:"max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		id, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		data, err := render.BindOptional[request](w, r)
		if err != nil {
			return
		}

		approved, err := withdrawalService.Approve(r.Context(), actor, id, data.TransactionReference)
		if err != nil {
			renderError(w, l, "Failed to approve withdrawal", err)
			return
		}

		render.JSON(w, newWithdrawalResponse(approved))
	})
}

func handleRejectWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		RejectionReason string `json:"rejectionReason" validate:"max=1000"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		id, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		data, err := render.BindOptional[request](w, r)
		if err != nil {
			return
		}

		rejected, err := withdrawalService.Reject(r.Context(), actor, id, data.RejectionReason)
		if err != nil {
			renderError(w, l, "Failed to reject withdrawal", err)
			return
		}

		render.JSON(w, newWithdrawalResponse(rejected))
	})
}
