package withdrawal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/service/guard"
	"github.com/nkiryanov/payouts/internal/service/ledger"
	"github.com/nkiryanov/payouts/internal/service/notify"
	"github.com/nkiryanov/payouts/internal/service/validate"
)

// Create validates the request and reserves its amount from the actor's available balance
func (s *Service) Create(ctx context.Context, actor models.Actor, in validate.Input) (models.Withdrawal, error) {
	var created models.Withdrawal

	if err := s.authorize(ctx, actor, false); err != nil {
		return created, err
	}

	// Cap is reported before the request itself is judged, it is checked again under the lock
	if err := s.checkPending(ctx, actor.ID); err != nil {
		return created, err
	}

	// Balance is checked under the lock, not here
	in.Available = nil
	payload, err := s.validator.Withdrawal(in)
	if err != nil {
		return created, err
	}

	release, err := s.guard.Allow(actor.ID, actor.IP)
	if err != nil {
		return created, err
	}

	magnitudeSince, duplicateSince := s.guard.StatsWindow()

	err = s.inUnitOfWork(ctx, "create withdrawal", func(ctx context.Context, storage repository.Storage) error {
		balance, err := storage.Balance().GetBalance(ctx, actor.ID, true)
		if err != nil {
			return err
		}

		stats, err := storage.Withdrawal().Stats(ctx, actor.ID, payload.Method, payload.Amount, magnitudeSince, duplicateSince)
		if err != nil {
			return err
		}

		if err := s.guard.CheckPending(stats.PendingCount); err != nil {
			return err
		}

		if err := validate.CheckAvailable(payload.Amount, balance.Available()); err != nil {
			return err
		}

		err = s.guard.Inspect(guard.Input{
			UserID:       actor.ID,
			Amount:       payload.Amount,
			Withdrawable: balance.WithdrawableBalance,
			Stats:        stats,
		})
		if err != nil {
			return err
		}

		balance, err = ledger.ReservePending(balance, payload.Amount)
		if err != nil {
			return err
		}
		if _, err := storage.Balance().UpdateBalance(ctx, balance); err != nil {
			return err
		}

		created, err = storage.Withdrawal().Create(ctx, models.Withdrawal{
			UserID:    actor.ID,
			Method:    payload.Method,
			Amount:    payload.Amount,
			Status:    models.WithdrawalStatusPending,
			Details:   payload.Details,
			CreatedAt: time.Now(),
		})
		return err
	})
	if err != nil {
		// Only created requests count toward velocity limits
		release()
		return models.Withdrawal{}, err
	}

	s.logger.Info("Withdrawal requested",
		"withdrawal_id", created.ID,
		"user_id", actor.ID,
		"amount", created.Amount.StringFixed(2),
		"method", created.Method,
		"destination", destination(created.Details),
	)
	s.notify(notify.ForWithdrawal(notify.EventWithdrawalSubmitted, created, s.adminIDs(ctx)...))

	return created, nil
}

// checkPending rejects the request when the actor is at the pending cap
func (s *Service) checkPending(ctx context.Context, userID uuid.UUID) error {
	_, pending, err := s.storage.Withdrawal().List(ctx, repository.ListWithdrawalsOpts{
		UserID:   userID,
		Statuses: []models.WithdrawalStatus{models.WithdrawalStatusPending},
		Limit:    1,
	})
	if err != nil {
		return s.queryError("count pending withdrawals", err)
	}

	return s.guard.CheckPending(pending)
}

// destination is the account funds are paid to. Logger masks it
func destination(d models.MethodDetails) string {
	switch d := d.(type) {
	case models.MobileBankingDetails:
		return d.MobileNumber
	case models.BankTransferDetails:
		return d.AccountNumber
	default:
		return ""
	}
}
