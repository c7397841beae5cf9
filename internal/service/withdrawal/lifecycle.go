package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/service/ledger"
	"github.com/nkiryanov/payouts/internal/service/notify"
	"github.com/nkiryanov/payouts/internal/service/validate"
)

// EditRequest holds changes to a pending request, nil fields stay as is
// Changing the method requires details of the new method
type EditRequest struct {
	Method        *string
	Amount        *decimal.Decimal
	MobileBanking *validate.MobileBankingInput
	BankTransfer  *validate.BankTransferInput
}

func (r EditRequest) empty() bool {
	return r.Method == nil && r.Amount == nil && r.MobileBanking == nil && r.BankTransfer == nil
}

// Edit changes a pending request and moves the amount difference in or out of pending withdrawals
func (s *Service) Edit(ctx context.Context, actor models.Actor, id uuid.UUID, req EditRequest) (models.Withdrawal, error) {
	var edited models.Withdrawal

	if err := s.authorize(ctx, actor, true); err != nil {
		return edited, err
	}
	if req.empty() {
		return edited, apperrors.ErrNothingToEdit
	}

	err := s.inUnitOfWork(ctx, "edit withdrawal", func(ctx context.Context, storage repository.Storage) error {
		w, err := lockPending(ctx, storage, id, apperrors.ErrWithdrawalCannotBeEdited)
		if err != nil {
			return err
		}

		payload, err := s.validator.Withdrawal(mergeEdit(w, req))
		if err != nil {
			return err
		}

		changed, prev, next := diff(w, payload)
		if len(changed) == 0 {
			return apperrors.ErrNothingToEdit
		}

		balance, err := storage.Balance().GetBalance(ctx, w.UserID, true)
		if err != nil {
			return err
		}

		delta := payload.Amount.Sub(w.Amount)
		switch {
		case delta.IsPositive():
			// The request's own reservation counts as available for it
			available := balance.Available().Add(w.Amount)
			if payload.Amount.GreaterThan(available) {
				return apperrors.NewAmountError(apperrors.ErrInsufficientBalance, payload.Amount, available)
			}
			balance, err = ledger.ReservePending(balance, delta)

		case delta.IsNegative():
			s.warnClamp("edit withdrawal", balance, delta.Neg())
			balance, err = ledger.ReleasePending(balance, delta.Neg())
		}
		if err != nil {
			return err
		}
		if !delta.IsZero() {
			if _, err := storage.Balance().UpdateBalance(ctx, balance); err != nil {
				return err
			}
		}

		w.Method = payload.Method
		w.Amount = payload.Amount
		w.Details = payload.Details
		w.EditHistory = append(w.EditHistory, models.EditEntry{
			Editor:         actor.ID,
			Timestamp:      time.Now().UTC(),
			ChangedFields:  changed,
			PreviousValues: prev,
			NewValues:      next,
		})

		edited, err = storage.Withdrawal().Update(ctx, w)
		return err
	})
	if err != nil {
		return models.Withdrawal{}, err
	}

	s.logger.Info("Withdrawal edited", "withdrawal_id", edited.ID, "editor", actor.ID, "amount", edited.Amount.StringFixed(2))
	s.notify(notify.ForWithdrawal(notify.EventWithdrawalEdited, edited, actor.ID))

	return edited, nil
}

// Approve commits the reserved amount as withdrawn
// Empty reference is replaced with a generated one
func (s *Service) Approve(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (models.Withdrawal, error) {
	var approved models.Withdrawal

	if err := s.authorize(ctx, actor, true); err != nil {
		return approved, err
	}

	reference = validate.Sanitize(reference, validate.DefaultMaxFieldLen)
	if reference == "" {
		var err error
		if reference, err = s.newReference(); err != nil {
			s.logger.Error("Failed to generate transaction reference", "error", err)
			return approved, fmt.Errorf("%w: can't generate transaction reference", apperrors.ErrInternal)
		}
	}

	err := s.inUnitOfWork(ctx, "approve withdrawal", func(ctx context.Context, storage repository.Storage) error {
		w, err := lockPending(ctx, storage, id, apperrors.ErrWithdrawalAlreadyProcessed)
		if err != nil {
			return err
		}

		balance, err := storage.Balance().GetBalance(ctx, w.UserID, true)
		if err != nil {
			return err
		}

		if w.Amount.GreaterThan(balance.WithdrawableBalance) {
			return apperrors.NewAmountError(apperrors.ErrInsufficientUserBalance, w.Amount, balance.WithdrawableBalance)
		}

		s.warnClamp("approve withdrawal", balance, w.Amount)
		balance, err = ledger.CommitWithdrawn(balance, w.Amount)
		if err != nil {
			return err
		}
		if _, err := storage.Balance().UpdateBalance(ctx, balance); err != nil {
			return err
		}

		approved, err = storage.Withdrawal().Update(ctx, finalize(w, actor, models.WithdrawalStatusApproved, func(w *models.Withdrawal) {
			w.TransactionReference = reference
		}))
		return err
	})
	if err != nil {
		return models.Withdrawal{}, err
	}

	s.logger.Info("Withdrawal approved", "withdrawal_id", approved.ID, "approver", actor.ID, "reference", approved.TransactionReference)
	s.notify(notify.ForWithdrawal(notify.EventWithdrawalApproved, approved))

	return approved, nil
}

// Reject returns the reserved amount to the available balance
func (s *Service) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (models.Withdrawal, error) {
	var rejected models.Withdrawal

	if err := s.authorize(ctx, actor, true); err != nil {
		return rejected, err
	}

	reason = validate.Sanitize(reason, validate.DefaultMaxFieldLen)

	err := s.inUnitOfWork(ctx, "reject withdrawal", func(ctx context.Context, storage repository.Storage) error {
		w, err := lockPending(ctx, storage, id, apperrors.ErrWithdrawalAlreadyProcessed)
		if err != nil {
			return err
		}

		balance, err := storage.Balance().GetBalance(ctx, w.UserID, true)
		if err != nil {
			return err
		}

		s.warnClamp("reject withdrawal", balance, w.Amount)
		balance, err = ledger.ReleasePending(balance, w.Amount)
		if err != nil {
			return err
		}
		if _, err := storage.Balance().UpdateBalance(ctx, balance); err != nil {
			return err
		}

		rejected, err = storage.Withdrawal().Update(ctx, finalize(w, actor, models.WithdrawalStatusRejected, func(w *models.Withdrawal) {
			w.RejectionReason = reason
		}))
		return err
	})
	if err != nil {
		return models.Withdrawal{}, err
	}

	s.logger.Info("Withdrawal rejected", "withdrawal_id", rejected.ID, "reviewer", actor.ID)
	s.notify(notify.ForWithdrawal(notify.EventWithdrawalRejected, rejected))

	return rejected, nil
}

func finalize(w models.Withdrawal, actor models.Actor, status models.WithdrawalStatus, apply func(*models.Withdrawal)) models.Withdrawal {
	now := time.Now().UTC()
	processedBy := actor.ID

	w.Status = status
	w.ProcessedBy = &processedBy
	w.ProcessedAt = &now
	apply(&w)

	return w
}

// warnClamp reports releases that hit the zero floor of pending withdrawals
// It never happens unless pending withdrawals were adjusted outside of requests
func (s *Service) warnClamp(op string, b models.Balance, amount decimal.Decimal) {
	if ledger.WouldClamp(b, amount) {
		s.logger.Warn("Pending withdrawals clamped to zero",
			"op", op,
			"user_id", b.UserID,
			"pending", b.PendingWithdrawals.StringFixed(2),
			"amount", amount.StringFixed(2),
		)
	}
}

// mergeEdit builds pipeline input of the edited request
// Current details are kept when the method stays the same and no new details given
func mergeEdit(w models.Withdrawal, req EditRequest) validate.Input {
	in := validate.Input{
		Method:        string(w.Method),
		Amount:        &w.Amount,
		MobileBanking: req.MobileBanking,
		BankTransfer:  req.BankTransfer,
	}
	if req.Method != nil {
		in.Method = *req.Method
	}
	if req.Amount != nil {
		in.Amount = req.Amount
	}

	if in.Method == string(w.Method) && in.MobileBanking == nil && in.BankTransfer == nil {
		switch d := w.Details.(type) {
		case models.MobileBankingDetails:
			in.MobileBanking = &validate.MobileBankingInput{
				AccountHolderName: d.AccountHolderName,
				MobileNumber:      d.MobileNumber,
				Provider:          d.Provider,
			}
		case models.BankTransferDetails:
			in.BankTransfer = &validate.BankTransferInput{
				AccountName:   d.AccountName,
				AccountNumber: d.AccountNumber,
				BankName:      d.BankName,
				IBAN:          d.IBAN,
				SWIFT:         d.SWIFT,
				Country:       d.Country,
			}
		}
	}

	return in
}

func diff(w models.Withdrawal, p validate.Payload) (changed []string, prev map[string]any, next map[string]any) {
	prev = make(map[string]any)
	next = make(map[string]any)

	if !p.Amount.Equal(w.Amount) {
		changed = append(changed, "amount")
		prev["amount"] = w.Amount.StringFixed(ledger.Precision)
		next["amount"] = p.Amount.StringFixed(ledger.Precision)
	}
	if p.Method != w.Method {
		changed = append(changed, "method")
		prev["method"] = string(w.Method)
		next["method"] = string(p.Method)
	}
	if p.Details != w.Details {
		changed = append(changed, "details")
		prev["details"] = w.Details
		next["details"] = p.Details
	}

	return changed, prev, next
}
