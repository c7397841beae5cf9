// Package withdrawal is the use case layer of withdrawal requests.
//
// Every mutating operation runs as one unit of work: the request row, the owner's
// balance row and the ledger change commit together or not at all. Rows are always
// locked in the same order, the withdrawal row first and the balance row second.
package withdrawal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/service/guard"
	"github.com/nkiryanov/payouts/internal/service/notify"
	"github.com/nkiryanov/payouts/internal/service/validate"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultMaxAttempts      = 3
)

type Guard interface {
	StatsWindow() (magnitudeSince time.Time, duplicateSince time.Time)
	Allow(userID uuid.UUID, ip string) (release func(), err error)
	CheckPending(pendingCount int) error
	Inspect(in guard.Input) error
}

type Publisher interface {
	Publish(n notify.Notification)
}

type Config struct {
	// Upper bound of one operation including retries
	OperationTimeout time.Duration

	// Attempts made when storage reports a transient conflict
	MaxAttempts int
}

type Service struct {
	storage   repository.Storage
	validator *validate.Validator
	guard     Guard
	notifier  Publisher
	logger    logger.Logger

	timeout     time.Duration
	maxAttempts int

	newReference func() (string, error)
}

func NewService(
	cfg Config,
	storage repository.Storage,
	validator *validate.Validator,
	guard Guard,
	notifier Publisher,
	l logger.Logger,
) *Service {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &Service{
		storage:      storage,
		validator:    validator,
		guard:        guard,
		notifier:     notifier,
		logger:       l,
		timeout:      cfg.OperationTimeout,
		maxAttempts:  cfg.MaxAttempts,
		newReference: NewTransactionReference,
	}
}

// notify is called after commit only
func (s *Service) notify(n notify.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(n)
}

// adminIDs are extra recipients of new requests, lookup failures are only logged
func (s *Service) adminIDs(ctx context.Context) []uuid.UUID {
	admins, err := s.storage.User().ListAdmins(ctx)
	if err != nil {
		s.logger.Error("Failed to list admins to notify", "error", err)
		return nil
	}

	ids := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids
}
