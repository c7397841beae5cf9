package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is the balance bearing part of a user record
type Balance struct {
	UserID              uuid.UUID
	WithdrawableBalance decimal.Decimal
	PendingWithdrawals  decimal.Decimal
	TotalWithdrawn      decimal.Decimal
	AffiliateEarnings   decimal.Decimal
	UpdatedAt           time.Time
}

// Available is the ceiling for new withdrawal requests: max(0, withdrawable - pending)
func (b Balance) Available() decimal.Decimal {
	return decimal.Max(decimal.Zero, b.WithdrawableBalance.Sub(b.PendingWithdrawals))
}
