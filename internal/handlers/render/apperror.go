package render

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/payouts/internal/apperrors"
)

// Status maps application error to HTTP status code
func Status(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInsufficientBalance),
		errors.Is(err, apperrors.ErrInsufficientUserBalance),
		errors.Is(err, apperrors.ErrInsufficientLedgerBalance):
		return http.StatusUnprocessableEntity

	case apperrors.IsValidation(err):
		return http.StatusBadRequest

	case errors.Is(err, apperrors.ErrDuplicateRequest),
		errors.Is(err, apperrors.ErrWithdrawalAlreadyProcessed),
		errors.Is(err, apperrors.ErrWithdrawalCannotBeEdited),
		errors.Is(err, apperrors.ErrUserAlreadyExists):
		return http.StatusConflict

	case errors.Is(err, apperrors.ErrTooManyRequests):
		return http.StatusTooManyRequests

	case errors.Is(err, apperrors.ErrSuspiciousActivity),
		errors.Is(err, apperrors.ErrAccountSuspended),
		errors.Is(err, apperrors.ErrInvalidUserPermissions):
		return http.StatusForbidden

	case errors.Is(err, apperrors.ErrWithdrawalNotFound),
		errors.Is(err, apperrors.ErrUserNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// AppError renders application error with its stable code
// Internal errors never expose their message
func AppError(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	status := Status(err)

	response := ErrorResponse{Error: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		response = ErrorResponse{Error: apperrors.CodeInternal, Message: "Internal server error"}
		jsonWithStatus(w, response, status)
		return
	}

	var fieldErr *apperrors.FieldError
	if errors.As(err, &fieldErr) {
		response.Message = fieldErr.Err.Error()
		response.Fields = map[string]string{fieldErr.Field: fieldErr.Err.Error()}
	}

	var amountErr *apperrors.AmountError
	if errors.As(err, &amountErr) {
		response.Details = amountErr.Details()
	}

	jsonWithStatus(w, response, status)
}
