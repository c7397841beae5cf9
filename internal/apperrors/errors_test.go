package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain sentinel", ErrTooManyRequests, "too_many_requests"},
		{"wrapped sentinel", fmt.Errorf("create: %w", ErrDuplicateRequest), "duplicate_request"},
		{"amount error", NewAmountError(ErrInsufficientBalance, decimal.NewFromInt(1500), decimal.NewFromInt(1000)), "insufficient_balance"},
		{"field error", NewFieldError("mobileNumber", ErrInvalidMobileNumber), "invalid_mobile_number"},
		{"unknown error", errors.New("boom"), CodeInternal},
		{"internal wrapping conflict", fmt.Errorf("%w: %w", ErrInternal, ErrConflict), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestAmountError(t *testing.T) {
	err := fmt.Errorf("create withdrawal: %w", NewAmountError(ErrInsufficientBalance, decimal.NewFromInt(1500), decimal.NewFromInt(1000)))

	var amountErr *AmountError
	require.ErrorAs(t, err, &amountErr)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, map[string]any{"requestedAmount": "1500.00", "availableBalance": "1000.00"}, amountErr.Details())
	require.Contains(t, err.Error(), "requested 1500.00, available 1000.00")
}

func TestIsValidation(t *testing.T) {
	require.True(t, IsValidation(NewFieldError("amount", ErrInvalidAmount)))
	require.True(t, IsValidation(fmt.Errorf("x: %w", ErrInvalidMethod)))
	require.True(t, IsValidation(NewFieldError("bankName", ErrInvalidBankName)))
	require.False(t, IsValidation(ErrTooManyRequests))
	require.False(t, IsValidation(NewAmountError(ErrInsufficientBalance, decimal.Zero, decimal.Zero)))
}
