// Package notify delivers withdrawal lifecycle notifications.
//
// Notifications are fire-and-forget: publishing never blocks the caller and delivery
// failures are logged only.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/models"
)

type Event string

const (
	EventWithdrawalSubmitted Event = "withdrawal_submitted"
	EventWithdrawalApproved  Event = "withdrawal_approved"
	EventWithdrawalRejected  Event = "withdrawal_rejected"
	EventWithdrawalEdited    Event = "withdrawal_edited"
)

type Notification struct {
	Event      Event           `json:"event"`
	UserID     uuid.UUID       `json:"userId"`
	RequestID  uuid.UUID       `json:"requestId"`
	Amount     decimal.Decimal `json:"amount"`
	Method     models.Method   `json:"method"`
	Recipients []uuid.UUID     `json:"recipients"`

	TransactionReference string `json:"transactionReference,omitempty"`
	RejectionReason      string `json:"rejectionReason,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
}

// ForWithdrawal builds notification about the request
// The owner is always a recipient, extra recipients are appended once
func ForWithdrawal(event Event, w models.Withdrawal, extra ...uuid.UUID) Notification {
	recipients := []uuid.UUID{w.UserID}
	seen := map[uuid.UUID]bool{w.UserID: true}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}

	return Notification{
		Event:                event,
		UserID:               w.UserID,
		RequestID:            w.ID,
		Amount:               w.Amount,
		Method:               w.Method,
		Recipients:           recipients,
		TransactionReference: w.TransactionReference,
		RejectionReason:      w.RejectionReason,
		OccurredAt:           time.Now().UTC(),
	}
}

// Sender delivers one notification
type Sender interface {
	Send(ctx context.Context, n Notification) error
}
