// Package ledger holds the only operations allowed to mutate user balance figures.
//
// Every operation takes a balance snapshot and returns the new one, so callers load the
// balance under a row lock, apply an operation and persist the result in the same transaction.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
)

// Minor units of the currency
const Precision = 2

// Round rounds money to the currency minor units
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// Earn credits affiliate earnings and makes them withdrawable
func Earn(b models.Balance, amount decimal.Decimal) (models.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return b, err
	}

	next := b
	next.AffiliateEarnings = Round(b.AffiliateEarnings.Add(amount))
	next.WithdrawableBalance = Round(b.WithdrawableBalance.Add(amount))

	return settle(b, next)
}

// ReservePending earmarks amount for a not yet finalized withdrawal
// The caller checks the amount against available balance first, the ledger checks it once more
func ReservePending(b models.Balance, amount decimal.Decimal) (models.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return b, err
	}

	pending := Round(b.PendingWithdrawals.Add(amount))
	if pending.GreaterThan(b.WithdrawableBalance) {
		return b, apperrors.NewAmountError(apperrors.ErrInsufficientLedgerBalance, amount, b.Available())
	}

	next := b
	next.PendingWithdrawals = pending

	return settle(b, next)
}

// CommitWithdrawn moves reserved amount out of the withdrawable balance
func CommitWithdrawn(b models.Balance, amount decimal.Decimal) (models.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return b, err
	}

	if amount.GreaterThan(b.WithdrawableBalance) {
		return b, apperrors.NewAmountError(apperrors.ErrInsufficientLedgerBalance, amount, b.WithdrawableBalance)
	}

	next := b
	next.WithdrawableBalance = Round(b.WithdrawableBalance.Sub(amount))
	next.TotalWithdrawn = Round(b.TotalWithdrawn.Add(amount))
	next.PendingWithdrawals = clampSub(b.PendingWithdrawals, amount)

	return settle(b, next)
}

// ReleasePending returns reserved amount back to the available balance
func ReleasePending(b models.Balance, amount decimal.Decimal) (models.Balance, error) {
	amount, err := checkAmount(amount)
	if err != nil {
		return b, err
	}

	next := b
	next.PendingWithdrawals = clampSub(b.PendingWithdrawals, amount)

	return settle(b, next)
}

// WouldClamp reports whether releasing amount from pending withdrawals hits the zero floor
func WouldClamp(b models.Balance, amount decimal.Decimal) bool {
	return b.PendingWithdrawals.LessThan(Round(amount))
}

func clampSub(v, amount decimal.Decimal) decimal.Decimal {
	return Round(decimal.Max(decimal.Zero, v.Sub(amount)))
}

func checkAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = Round(amount)
	if !amount.IsPositive() {
		return amount, fmt.Errorf("%w: amount must be positive, got %s", apperrors.ErrInvalidAmount, amount)
	}
	return amount, nil
}

// settle returns next if it keeps the invariants, otherwise prev with the violation
func settle(prev, next models.Balance) (models.Balance, error) {
	if err := check(next); err != nil {
		return prev, err
	}
	return next, nil
}

func check(b models.Balance) error {
	for name, v := range map[string]decimal.Decimal{
		"withdrawable": b.WithdrawableBalance,
		"pending":      b.PendingWithdrawals,
		"withdrawn":    b.TotalWithdrawn,
		"earnings":     b.AffiliateEarnings,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s balance is negative", apperrors.ErrInternal, name)
		}
	}

	if b.PendingWithdrawals.GreaterThan(b.WithdrawableBalance) {
		return fmt.Errorf("%w: pending %s exceeds withdrawable %s", apperrors.ErrInsufficientLedgerBalance, b.PendingWithdrawals, b.WithdrawableBalance)
	}

	return nil
}
