package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/handlers/userctx"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/service/validate"
	"github.com/nkiryanov/payouts/internal/service/withdrawal"
)

type withdrawalResponse struct {
	ID                   uuid.UUID                    `json:"id"`
	UserID               uuid.UUID                    `json:"userId"`
	Method               models.Method                `json:"method"`
	Amount               string                       `json:"amount"`
	Status               models.WithdrawalStatus      `json:"status"`
	MobileBankingDetails *models.MobileBankingDetails `json:"mobileBankingDetails,omitempty"`
	BankTransferDetails  *models.BankTransferDetails  `json:"bankTransferDetails,omitempty"`
	ProcessedBy          *uuid.UUID                   `json:"processedBy,omitempty"`
	ProcessedAt          *time.Time                   `json:"processedAt,omitempty"`
	TransactionReference string                       `json:"transactionReference,omitempty"`
	RejectionReason      string                       `json:"rejectionReason,omitempty"`
	EditHistory          []models.EditEntry           `json:"editHistory"`
	CreatedAt            time.Time                    `json:"createdAt"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
}

func newWithdrawalResponse(w models.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:                   w.ID,
		UserID:               w.UserID,
		Method:               w.Method,
		Amount:               money(w.Amount),
		Status:               w.Status,
		ProcessedBy:          w.ProcessedBy,
		ProcessedAt:          w.ProcessedAt,
		TransactionReference: w.TransactionReference,
		RejectionReason:      w.RejectionReason,
		EditHistory:          w.EditHistory,
		CreatedAt:            w.CreatedAt,
		UpdatedAt:            w.UpdatedAt,
	}
	if resp.EditHistory == nil {
		resp.EditHistory = []models.EditEntry{}
	}

	switch d := w.Details.(type) {
	case models.MobileBankingDetails:
		resp.MobileBankingDetails = &d
	case models.BankTransferDetails:
		resp.BankTransferDetails = &d
	}

	return resp
}

type pageResponse struct {
	Items      []withdrawalResponse  `json:"items"`
	Pagination withdrawal.Pagination `json:"pagination"`
}

func newPageResponse(p withdrawal.Page) pageResponse {
	items := make([]withdrawalResponse, 0, len(p.Items))
	for _, w := range p.Items {
		items = append(items, newWithdrawalResponse(w))
	}
	return pageResponse{Items: items, Pagination: p.Pagination}
}

// withdrawalRequest is the body of create and edit requests
// Fields are checked by the withdrawal pipeline, not by tags
type withdrawalRequest struct {
	Method        *string                      `json:"method"`
	Amount        *decimal.Decimal             `json:"amount"`
	MobileBanking *validate.MobileBankingInput `json:"mobileBankingDetails"`
	BankTransfer  *validate.BankTransferInput  `json:"bankTransferDetails"`
}

func handleCreateWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[withdrawalRequest](w, r)
		if err != nil {
			return
		}

		in := validate.Input{
			Amount:        data.Amount,
			MobileBanking: data.MobileBanking,
			BankTransfer:  data.BankTransfer,
		}
		if data.Method != nil {
			in.Method = *data.Method
		}

		created, err := withdrawalService.Create(r.Context(), actor, in)
		if err != nil {
			renderError(w, l, "Failed to create withdrawal", err)
			return
		}

		render.JSONWithStatus(w, newWithdrawalResponse(created), http.StatusCreated)
	})
}

func handleListWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		q, err := parseQuery(r.URL.Query())
		if err != nil {
			render.AppError(w, err)
			return
		}

		page, err := withdrawalService.History(r.Context(), actor, q)
		if err != nil {
			renderError(w, l, "Failed to list withdrawals", err)
			return
		}

		render.JSON(w, newPageResponse(page))
	})
}

func handleGetWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		id, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		found, err := withdrawalService.Get(r.Context(), actor, id)
		if err != nil {
			renderError(w, l, "Failed to get withdrawal", err)
			return
		}

		render.JSON(w, newWithdrawalResponse(found))
	})
}

// parseQuery reads listing filters: status (repeated or comma separated), sort, order, page, per_page
// user_id is only honored by admin listings
func parseQuery(values url.Values) (withdrawal.Query, error) {
	var q withdrawal.Query

	for _, raw := range values["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Statuses = append(q.Statuses, models.WithdrawalStatus(s))
			}
		}
	}

	q.SortBy = values.Get("sort")

	switch order := values.Get("order"); order {
	case "", "desc":
	case "asc":
		q.Asc = true
	default:
		return q, apperrors.NewFieldError("order", fmt.Errorf("%w: order must be asc or desc", apperrors.ErrValidation))
	}

	var err error
	if q.Page, err = intParam(values, "page"); err != nil {
		return q, err
	}
	if q.PerPage, err = intParam(values, "per_page"); err != nil {
		return q, err
	}

	if raw := values.Get("user_id"); raw != "" {
		if q.UserID, err = uuid.Parse(raw); err != nil {
			return q, apperrors.NewFieldError("user_id", fmt.Errorf("%w: not a valid id", apperrors.ErrValidation))
		}
	}

	return q, nil
}

func intParam(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.NewFieldError(name, fmt.Errorf("%w: must be a positive integer", apperrors.ErrValidation))
	}
	return n, nil
}
