package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrAccountSuspended  = errors.New("account suspended")

	ErrInvalidUserPermissions = errors.New("invalid user permissions")
)

// Validation failures
var (
	ErrValidation    = errors.New("validation error")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidMethod = errors.New("invalid withdrawal method")

	ErrMissingMobileBankingDetails = errors.New("missing mobile banking details")
	ErrInvalidHolderName           = errors.New("invalid account holder name")
	ErrInvalidMobileNumber         = errors.New("invalid mobile number")
	ErrInvalidProvider             = errors.New("invalid mobile banking provider")

	ErrMissingBankTransferDetails = errors.New("missing bank transfer details")
	ErrInvalidAccountName         = errors.New("invalid account name")
	ErrInvalidAccountNumber       = errors.New("invalid account number")
	ErrInvalidBankName            = errors.New("invalid bank name")
	ErrInvalidIBAN                = errors.New("invalid IBAN")
	ErrInvalidSWIFT               = errors.New("invalid SWIFT code")
	ErrInvalidCountry             = errors.New("invalid country code")
)

// Balance failures, distinguished by the check that caught them
var (
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientUserBalance   = errors.New("insufficient user balance")
	ErrInsufficientLedgerBalance = errors.New("insufficient ledger balance")
)

// Rate and fraud guard
var (
	ErrDuplicateRequest   = errors.New("duplicate withdrawal request")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrSuspiciousActivity = errors.New("suspicious activity")
)

// Withdrawal lifecycle
var (
	ErrWithdrawalNotFound         = errors.New("withdrawal not found")
	ErrWithdrawalAlreadyProcessed = errors.New("withdrawal already processed")
	ErrWithdrawalCannotBeEdited   = errors.New("withdrawal cannot be edited")
	ErrNothingToEdit              = errors.New("nothing to edit")
)

var (
	// Transient storage failure (serialization, deadlock, lock timeout). Safe to retry
	ErrConflict = errors.New("storage conflict")

	ErrInternal = errors.New("internal error")
)

// AmountError is an amount related failure that carries the figures a client needs to explain it
type AmountError struct {
	Err       error
	Requested decimal.Decimal
	Available decimal.Decimal
}

func NewAmountError(err error, requested, available decimal.Decimal) *AmountError {
	return &AmountError{Err: err, Requested: requested, Available: available}
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%s: requested %s, available %s", e.Err, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *AmountError) Unwrap() error {
	return e.Err
}

func (e *AmountError) Details() map[string]any {
	return map[string]any{
		"requestedAmount":  e.Requested.StringFixed(2),
		"availableBalance": e.Available.StringFixed(2),
	}
}

// FieldError binds a validation failure to the request field that caused it
type FieldError struct {
	Field string
	Err   error
}

func NewFieldError(field string, err error) *FieldError {
	return &FieldError{Field: field, Err: err}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
