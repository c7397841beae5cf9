package apperrors

import "errors"

const CodeInternal = "internal_error"

// Ordered: specific errors go before the generic ones they may wrap
var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientUserBalance, "insufficient_user_balance"},
	{ErrInsufficientLedgerBalance, "insufficient_ledger_balance"},

	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidMethod, "invalid_method"},
	{ErrMissingMobileBankingDetails, "missing_mobile_banking_details"},
	{ErrInvalidHolderName, "invalid_account_holder_name"},
	{ErrInvalidMobileNumber, "invalid_mobile_number"},
	{ErrInvalidProvider, "invalid_provider"},
	{ErrMissingBankTransferDetails, "missing_bank_transfer_details"},
	{ErrInvalidAccountName, "invalid_account_name"},
	{ErrInvalidAccountNumber, "invalid_account_number"},
	{ErrInvalidBankName, "invalid_bank_name"},
	{ErrInvalidIBAN, "invalid_iban"},
	{ErrInvalidSWIFT, "invalid_swift"},
	{ErrInvalidCountry, "invalid_country"},
	{ErrNothingToEdit, "nothing_to_edit"},
	{ErrValidation, "validation_error"},

	{ErrDuplicateRequest, "duplicate_request"},
	{ErrTooManyRequests, "too_many_requests"},
	{ErrSuspiciousActivity, "suspicious_activity"},

	{ErrWithdrawalNotFound, "withdrawal_not_found"},
	{ErrWithdrawalAlreadyProcessed, "withdrawal_already_processed"},
	{ErrWithdrawalCannotBeEdited, "withdrawal_cannot_be_edited"},

	{ErrUserAlreadyExists, "user_already_exists"},
	{ErrUserNotFound, "user_not_found"},
	{ErrAccountSuspended, "account_suspended"},
	{ErrInvalidUserPermissions, "invalid_user_permissions"},

	{ErrInternal, CodeInternal},
}

// Code returns stable machine readable code of the error
// Unknown errors are reported as internal ones
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsValidation reports whether err is an expected input validation failure
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrNothingToEdit):
		return true
	}

	var fe *FieldError
	return errors.As(err, &fe)
}
