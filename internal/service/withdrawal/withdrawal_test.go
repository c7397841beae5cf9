package withdrawal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
	"github.com/nkiryanov/payouts/internal/repository/postgres"
	"github.com/nkiryanov/payouts/internal/service/guard"
	"github.com/nkiryanov/payouts/internal/service/notify"
	"github.com/nkiryanov/payouts/internal/service/validate"
	"github.com/nkiryanov/payouts/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]notify.Event, 0, len(r.sent))
	for _, n := range r.sent {
		events = append(events, n.Event)
	}
	return events
}

func (r *recorder) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

// Velocity limits are loose so tests may create many requests in a row
var looseGuard = guard.Config{ShortLimit: 1000, LongLimit: 1000}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mobileInput(amount string) validate.Input {
	return validate.Input{
		Method: "mobile_banking",
		Amount: decPtr(amount),
		MobileBanking: &validate.MobileBankingInput{
			AccountHolderName: "Rahim Uddin",
			MobileNumber:      "01712345678",
			Provider:          "bKash",
		},
	}
}

func bankInput(amount string) validate.Input {
	return validate.Input{
		Method: "bank_transfer",
		Amount: decPtr(amount),
		BankTransfer: &validate.BankTransferInput{
			AccountName:   "Rahim Uddin",
			AccountNumber: "1234567890",
			BankName:      "City Bank",
		},
	}
}

type fixture struct {
	s        *Service
	storage  repository.Storage
	notified *recorder
}

func newFixture(storage repository.Storage, guardCfg guard.Config) fixture {
	notified := &recorder{}
	s := NewService(
		Config{},
		storage,
		validate.New(validate.DefaultPolicy()),
		guard.New(guardCfg, logger.NewNoOpLogger()),
		notified,
		logger.NewNoOpLogger(),
	)
	return fixture{s: s, storage: storage, notified: notified}
}

// createUser creates user with the given withdrawable balance
func (f fixture) createUser(t *testing.T, username string, isAdmin bool, withdrawable string) models.User {
	t.Helper()

	user, err := f.storage.User().CreateUser(t.Context(), username, "hash", isAdmin)
	require.NoError(t, err)
	_, err = f.storage.Balance().CreateBalance(t.Context(), user.ID)
	require.NoError(t, err)

	if withdrawable != "" {
		_, err = f.storage.Balance().UpdateBalance(t.Context(), models.Balance{
			UserID:              user.ID,
			WithdrawableBalance: dec(withdrawable),
			AffiliateEarnings:   dec(withdrawable),
		})
		require.NoError(t, err)
	}

	return user
}

func (f fixture) balance(t *testing.T, userID uuid.UUID) models.Balance {
	t.Helper()

	b, err := f.storage.Balance().GetBalance(t.Context(), userID, false)
	require.NoError(t, err)
	return b
}

func requireBalance(t *testing.T, b models.Balance, withdrawable, pending, withdrawn string) {
	t.Helper()

	assert.Equal(t, withdrawable, b.WithdrawableBalance.StringFixed(2), "withdrawable")
	assert.Equal(t, pending, b.PendingWithdrawals.StringFixed(2), "pending")
	assert.Equal(t, withdrawn, b.TotalWithdrawn.StringFixed(2), "withdrawn")
}

func TestService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, guardCfg guard.Config, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(newFixture(postgres.NewStorage(tx), guardCfg))
		})
	}

	t.Run("Create", func(t *testing.T) {
		t.Run("reserves amount", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")

				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))

				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalStatusPending, w.Status)
				assert.Equal(t, "500.00", w.Amount.StringFixed(2))
				assert.Equal(t, models.MobileBankingDetails{AccountHolderName: "Rahim Uddin", MobileNumber: "01712345678", Provider: "bkash"}, w.Details)

				b := f.balance(t, user.ID)
				requireBalance(t, b, "1000.00", "500.00", "0.00")
				assert.Equal(t, "500.00", b.Available().StringFixed(2))

				n := f.notified.last()
				assert.Equal(t, notify.EventWithdrawalSubmitted, n.Event)
				assert.Equal(t, w.ID, n.RequestID)
				assert.Equal(t, []uuid.UUID{user.ID, admin.ID}, n.Recipients)
			})
		})

		t.Run("insufficient balance", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("1500"))

				var amountErr *apperrors.AmountError
				require.ErrorAs(t, err, &amountErr)
				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
				assert.Equal(t, map[string]any{"requestedAmount": "1500.00", "availableBalance": "1000.00"}, amountErr.Details())

				requireBalance(t, f.balance(t, user.ID), "1000.00", "0.00", "0.00")
				assert.Empty(t, f.notified.events())
			})
		})

		t.Run("available takes pending into account", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("600"))
				require.NoError(t, err)

				_, err = f.s.Create(t.Context(), user.Actor(), bankInput("500"))

				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
				requireBalance(t, f.balance(t, user.ID), "1000.00", "600.00", "0.00")
			})
		})

		t.Run("validation failures", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				badNumber := mobileInput("100")
				badNumber.MobileBanking.MobileNumber = "123456789"
				_, err := f.s.Create(t.Context(), user.Actor(), badNumber)
				require.ErrorIs(t, err, apperrors.ErrInvalidMobileNumber)

				badAccount := bankInput("100")
				badAccount.BankTransfer.AccountNumber = "ABC-123"
				_, err = f.s.Create(t.Context(), user.Actor(), badAccount)
				require.ErrorIs(t, err, apperrors.ErrInvalidAccountNumber)

				_, err = f.s.Create(t.Context(), user.Actor(), mobileInput("10"))
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

				requireBalance(t, f.balance(t, user.ID), "1000.00", "0.00", "0.00")
			})
		})

		t.Run("duplicate request", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("100"))
				require.NoError(t, err)

				_, err = f.s.Create(t.Context(), user.Actor(), mobileInput("100"))

				require.ErrorIs(t, err, apperrors.ErrDuplicateRequest)
				requireBalance(t, f.balance(t, user.ID), "1000.00", "100.00", "0.00")
			})
		})

		t.Run("pending cap", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "10000")

				for i := range 5 {
					_, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 100+i)))
					require.NoError(t, err)
				}

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("200"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests)

				// Any method
				_, err = f.s.Create(t.Context(), user.Actor(), bankInput("200"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests)

				requireBalance(t, f.balance(t, user.ID), "10000.00", "510.00", "0.00")
			})
		})

		t.Run("pending cap reported before amount errors", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				for i := range 5 {
					_, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 100+i)))
					require.NoError(t, err)
				}
				requireBalance(t, f.balance(t, user.ID), "1000.00", "510.00", "0.00")

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("600"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests, "amount over available balance")
				require.NotErrorIs(t, err, apperrors.ErrInsufficientBalance)

				_, err = f.s.Create(t.Context(), user.Actor(), mobileInput("10"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests, "amount below method minimum")
				require.NotErrorIs(t, err, apperrors.ErrInvalidAmount)

				badNumber := mobileInput("100")
				badNumber.MobileBanking.MobileNumber = "123456789"
				_, err = f.s.Create(t.Context(), user.Actor(), badNumber)
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests, "invalid details")

				requireBalance(t, f.balance(t, user.ID), "1000.00", "510.00", "0.00")
			})
		})

		t.Run("velocity limit", func(t *testing.T) {
			inTx(t, guard.Config{}, func(f fixture) {
				user := f.createUser(t, "user", false, "10000")

				for i := range 3 {
					_, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 100+i)))
					require.NoError(t, err)
				}

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("200"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests)
			})
		})

		t.Run("failed requests not counted by velocity limit", func(t *testing.T) {
			inTx(t, guard.Config{}, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")

				for i := range 4 {
					_, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 5000+i)))
					require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

					_, err = f.s.Create(t.Context(), user.Actor(), mobileInput("10"))
					require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
				}

				for i := range 3 {
					_, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 100+i)))
					require.NoError(t, err, "request %d should be allowed", i+1)
				}

				_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("200"))
				require.ErrorIs(t, err, apperrors.ErrTooManyRequests)
				requireBalance(t, f.balance(t, user.ID), "1000.00", "303.00", "0.00")
			})
		})

		t.Run("suspicious first withdrawal", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "90000")

				_, err := f.s.Create(t.Context(), user.Actor(), bankInput("25000"))

				require.ErrorIs(t, err, apperrors.ErrSuspiciousActivity)
				requireBalance(t, f.balance(t, user.ID), "90000.00", "0.00", "0.00")
			})
		})

		t.Run("suspended account", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")
				_, err := f.storage.User().SetSuspended(t.Context(), user.ID, true)
				require.NoError(t, err)

				_, err = f.s.Create(t.Context(), user.Actor(), mobileInput("100"))

				require.ErrorIs(t, err, apperrors.ErrAccountSuspended)
			})
		})

		t.Run("unknown user", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				_, err := f.s.Create(t.Context(), models.Actor{ID: uuid.New()}, mobileInput("100"))

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("Approve", func(t *testing.T) {
		t.Run("commits withdrawn", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)

				approved, err := f.s.Approve(t.Context(), admin.Actor(), w.ID, "")

				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalStatusApproved, approved.Status)
				assert.Regexp(t, `^TRX[A-Z0-9]{12}$`, approved.TransactionReference)
				require.NotNil(t, approved.ProcessedBy)
				assert.Equal(t, admin.ID, *approved.ProcessedBy)
				assert.NotNil(t, approved.ProcessedAt)
				requireBalance(t, f.balance(t, user.ID), "500.00", "0.00", "500.00")

				n := f.notified.last()
				assert.Equal(t, notify.EventWithdrawalApproved, n.Event)
				assert.Equal(t, approved.TransactionReference, n.TransactionReference)
			})
		})

		t.Run("keeps given reference", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)

				approved, err := f.s.Approve(t.Context(), admin.Actor(), w.ID, "  BANK-REF <42>  ")

				require.NoError(t, err)
				assert.Equal(t, "BANK-REF 42", approved.TransactionReference)
			})
		})

		t.Run("twice", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)
				_, err = f.s.Approve(t.Context(), admin.Actor(), w.ID, "")
				require.NoError(t, err)

				_, err = f.s.Approve(t.Context(), admin.Actor(), w.ID, "")
				require.ErrorIs(t, err, apperrors.ErrWithdrawalAlreadyProcessed)

				_, err = f.s.Reject(t.Context(), admin.Actor(), w.ID, "")
				require.ErrorIs(t, err, apperrors.ErrWithdrawalAlreadyProcessed)

				requireBalance(t, f.balance(t, user.ID), "500.00", "0.00", "500.00")
			})
		})

		t.Run("withdrawable dropped below amount", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)

				_, err = f.storage.Balance().UpdateBalance(t.Context(), models.Balance{
					UserID:              user.ID,
					WithdrawableBalance: dec("400"),
					PendingWithdrawals:  dec("400"),
				})
				require.NoError(t, err)

				_, err = f.s.Approve(t.Context(), admin.Actor(), w.ID, "")

				require.ErrorIs(t, err, apperrors.ErrInsufficientUserBalance)
				got, err := f.storage.Withdrawal().Get(t.Context(), w.ID, false)
				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalStatusPending, got.Status)
			})
		})

		t.Run("not admin", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)

				_, err = f.s.Approve(t.Context(), user.Actor(), w.ID, "")

				require.ErrorIs(t, err, apperrors.ErrInvalidUserPermissions)
			})
		})

		t.Run("not found", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")

				_, err := f.s.Approve(t.Context(), admin.Actor(), uuid.New(), "")

				require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)
			})
		})
	})

	t.Run("Reject", func(t *testing.T) {
		t.Run("releases pending", func(t *testing.T) {
			inTx(t, looseGuard, func(f fixture) {
				admin := f.createUser(t, "admin", true, "")
				user := f.createUser(t, "user", false, "1000")
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)

				rejected, err := f.s.Reject(t.Context(), admin.Actor(), w.ID, "bad details")

				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalStatusRejected, rejected.Status)
				assert.Equal(t, "bad details", rejected.RejectionReason)
				assert.Empty(t, rejected.TransactionReference)
				requireBalance(t, f.balance(t, user.ID), "1000.00", "0.00", "0.00")
				assert.Equal(t, notify.EventWithdrawalRejected, f.notified.last().Event)

				_, err = f.s.Reject(t.Context(), admin.Actor(), w.ID, "again")
				require.ErrorIs(t, err, apperrors.ErrWithdrawalAlreadyProcessed)
				requireBalance(t, f.balance(t, user.ID), "1000.00", "0.00", "0.00")
			})
		})
	})

	t.Run("Edit", func(t *testing.T) {
		inTx(t, looseGuard, func(f fixture) {
			admin := f.createUser(t, "admin", true, "")
			user := f.createUser(t, "user", false, "1000")
			other, err := f.s.Create(t.Context(), user.Actor(), bankInput("200"))
			require.NoError(t, err)

			edit := func(t *testing.T, fn func(w models.Withdrawal)) {
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
				require.NoError(t, err)
				defer func() {
					_, _ = f.s.Reject(t.Context(), admin.Actor(), w.ID, "")
				}()
				fn(w)
			}

			t.Run("increase amount", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					got, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{Amount: decPtr("700")})

					require.NoError(t, err)
					assert.Equal(t, "700.00", got.Amount.StringFixed(2))
					requireBalance(t, f.balance(t, user.ID), "1000.00", "900.00", "0.00")

					require.Len(t, got.EditHistory, 1)
					entry := got.EditHistory[0]
					assert.Equal(t, admin.ID, entry.Editor)
					assert.Equal(t, []string{"amount"}, entry.ChangedFields)
					assert.Equal(t, "500.00", entry.PreviousValues["amount"])
					assert.Equal(t, "700.00", entry.NewValues["amount"])
					assert.Equal(t, notify.EventWithdrawalEdited, f.notified.last().Event)
				})
			})

			t.Run("decrease amount", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					_, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{Amount: decPtr("300")})

					require.NoError(t, err)
					requireBalance(t, f.balance(t, user.ID), "1000.00", "500.00", "0.00")
				})
			})

			t.Run("amount over available", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					_, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{Amount: decPtr("900")})

					var amountErr *apperrors.AmountError
					require.ErrorAs(t, err, &amountErr)
					require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
					assert.Equal(t, "800.00", amountErr.Available.StringFixed(2), "own reservation is available for the request")
					requireBalance(t, f.balance(t, user.ID), "1000.00", "700.00", "0.00")
				})
			})

			t.Run("change method", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					method := "bank_transfer"
					got, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{
						Method:       &method,
						BankTransfer: bankInput("0").BankTransfer,
					})

					require.NoError(t, err)
					assert.Equal(t, models.MethodBankTransfer, got.Method)
					assert.IsType(t, models.BankTransferDetails{}, got.Details)
					assert.Equal(t, []string{"method", "details"}, got.EditHistory[0].ChangedFields)
					requireBalance(t, f.balance(t, user.ID), "1000.00", "700.00", "0.00")
				})
			})

			t.Run("change method without details", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					method := "bank_transfer"
					_, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{Method: &method})

					require.ErrorIs(t, err, apperrors.ErrMissingBankTransferDetails)
				})
			})

			t.Run("nothing changed", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					_, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{Amount: decPtr("500")})
					require.ErrorIs(t, err, apperrors.ErrNothingToEdit)

					_, err = f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{})
					require.ErrorIs(t, err, apperrors.ErrNothingToEdit)
				})
			})

			t.Run("invalid details", func(t *testing.T) {
				edit(t, func(w models.Withdrawal) {
					details := *mobileInput("0").MobileBanking
					details.MobileNumber = "123456789"

					_, err := f.s.Edit(t.Context(), admin.Actor(), w.ID, EditRequest{MobileBanking: &details})

					require.ErrorIs(t, err, apperrors.ErrInvalidMobileNumber)
				})
			})

			t.Run("finalized request", func(t *testing.T) {
				_, err := f.s.Approve(t.Context(), admin.Actor(), other.ID, "")
				require.NoError(t, err)

				_, err = f.s.Edit(t.Context(), admin.Actor(), other.ID, EditRequest{Amount: decPtr("150")})

				require.ErrorIs(t, err, apperrors.ErrWithdrawalCannotBeEdited)
			})

			t.Run("not admin", func(t *testing.T) {
				_, err := f.s.Edit(t.Context(), user.Actor(), other.ID, EditRequest{Amount: decPtr("150")})

				require.ErrorIs(t, err, apperrors.ErrInvalidUserPermissions)
			})
		})
	})

	t.Run("Get", func(t *testing.T) {
		inTx(t, looseGuard, func(f fixture) {
			admin := f.createUser(t, "admin", true, "")
			owner := f.createUser(t, "owner", false, "1000")
			stranger := f.createUser(t, "stranger", false, "")
			w, err := f.s.Create(t.Context(), owner.Actor(), mobileInput("100"))
			require.NoError(t, err)

			got, err := f.s.Get(t.Context(), owner.Actor(), w.ID)
			require.NoError(t, err)
			assert.Equal(t, w.ID, got.ID)

			_, err = f.s.Get(t.Context(), admin.Actor(), w.ID)
			require.NoError(t, err)

			_, err = f.s.Get(t.Context(), stranger.Actor(), w.ID)
			require.ErrorIs(t, err, apperrors.ErrWithdrawalNotFound)
		})
	})

	t.Run("History", func(t *testing.T) {
		inTx(t, looseGuard, func(f fixture) {
			admin := f.createUser(t, "admin", true, "")
			user := f.createUser(t, "user", false, "10000")
			other := f.createUser(t, "other", false, "1000")

			amounts := []string{"100", "300", "200"}
			var created []models.Withdrawal
			for _, amount := range amounts {
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput(amount))
				require.NoError(t, err)
				created = append(created, w)
			}
			_, err := f.s.Create(t.Context(), other.Actor(), mobileInput("100"))
			require.NoError(t, err)
			_, err = f.s.Reject(t.Context(), admin.Actor(), created[0].ID, "")
			require.NoError(t, err)

			t.Run("own requests only", func(t *testing.T) {
				page, err := f.s.History(t.Context(), user.Actor(), Query{})

				require.NoError(t, err)
				require.Len(t, page.Items, 3)
				assert.Equal(t, Pagination{CurrentPage: 1, LastPage: 1, Count: 3}, page.Pagination)
			})

			t.Run("sorted by amount", func(t *testing.T) {
				page, err := f.s.History(t.Context(), user.Actor(), Query{SortBy: "amount", Asc: true})

				require.NoError(t, err)
				got := make([]string, 0, len(page.Items))
				for _, w := range page.Items {
					got = append(got, w.Amount.StringFixed(0))
				}
				assert.Equal(t, []string{"100", "200", "300"}, got)
			})

			t.Run("filtered by status", func(t *testing.T) {
				page, err := f.s.History(t.Context(), user.Actor(), Query{Statuses: []models.WithdrawalStatus{models.WithdrawalStatusRejected}})

				require.NoError(t, err)
				require.Len(t, page.Items, 1)
				assert.Equal(t, created[0].ID, page.Items[0].ID)
			})

			t.Run("paginated", func(t *testing.T) {
				page, err := f.s.History(t.Context(), user.Actor(), Query{Page: 2, PerPage: 2})

				require.NoError(t, err)
				require.Len(t, page.Items, 1)
				assert.Equal(t, Pagination{CurrentPage: 2, PrevPage: 1, LastPage: 2, Count: 3}, page.Pagination)
			})

			t.Run("bad query", func(t *testing.T) {
				_, err := f.s.History(t.Context(), user.Actor(), Query{SortBy: "user_id"})
				require.ErrorIs(t, err, apperrors.ErrValidation)

				_, err = f.s.History(t.Context(), user.Actor(), Query{Statuses: []models.WithdrawalStatus{"paid"}})
				require.ErrorIs(t, err, apperrors.ErrValidation)
			})

			t.Run("review lists all users", func(t *testing.T) {
				page, err := f.s.ListForReview(t.Context(), admin.Actor(), Query{Statuses: []models.WithdrawalStatus{models.WithdrawalStatusPending}})

				require.NoError(t, err)
				assert.Equal(t, 3, page.Pagination.Count)

				_, err = f.s.ListForReview(t.Context(), user.Actor(), Query{})
				require.ErrorIs(t, err, apperrors.ErrInvalidUserPermissions)
			})
		})
	})

	t.Run("AvailableBalance", func(t *testing.T) {
		inTx(t, looseGuard, func(f fixture) {
			user := f.createUser(t, "user", false, "1000")
			_, err := f.s.Create(t.Context(), user.Actor(), mobileInput("250"))
			require.NoError(t, err)

			b, err := f.s.AvailableBalance(t.Context(), user.Actor())

			require.NoError(t, err)
			assert.Equal(t, "750.00", b.Available().StringFixed(2))
		})
	})

	t.Run("Earn", func(t *testing.T) {
		inTx(t, looseGuard, func(f fixture) {
			admin := f.createUser(t, "admin", true, "")
			user := f.createUser(t, "user", false, "")

			b, err := f.s.Earn(t.Context(), admin.Actor(), user.ID, dec("10.005"))
			require.NoError(t, err)
			assert.Equal(t, "10.01", b.WithdrawableBalance.StringFixed(2))
			assert.Equal(t, "10.01", b.AffiliateEarnings.StringFixed(2))

			_, err = f.s.Earn(t.Context(), admin.Actor(), user.ID, dec("-1"))
			require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

			_, err = f.s.Earn(t.Context(), user.Actor(), user.ID, dec("1"))
			require.ErrorIs(t, err, apperrors.ErrInvalidUserPermissions)

			_, err = f.s.Earn(t.Context(), admin.Actor(), uuid.New(), dec("1"))
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}

// Concurrent operations run on the pool so every unit of work commits for real
func TestService_Concurrent(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	f := newFixture(postgres.NewStorage(pg.Pool), guard.Config{ShortLimit: 1000, LongLimit: 1000, MaxPending: 1000})
	admin := f.createUser(t, "admin", true, "")

	t.Run("creates never overdraw", func(t *testing.T) {
		user := f.createUser(t, "creator", false, "1000")

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			reserved = decimal.Zero
		)
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w, err := f.s.Create(t.Context(), user.Actor(), mobileInput(fmt.Sprintf("%d", 200+i)))
				if err != nil {
					assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
					return
				}
				mu.Lock()
				reserved = reserved.Add(w.Amount)
				mu.Unlock()
			}()
		}
		wg.Wait()

		b := f.balance(t, user.ID)
		assert.Equal(t, reserved.StringFixed(2), b.PendingWithdrawals.StringFixed(2))
		assert.True(t, b.PendingWithdrawals.LessThanOrEqual(b.WithdrawableBalance), "pending must not exceed withdrawable")
	})

	t.Run("single finalization", func(t *testing.T) {
		user := f.createUser(t, "finalized", false, "1000")
		w, err := f.s.Create(t.Context(), user.Actor(), mobileInput("500"))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					_, err = f.s.Approve(t.Context(), admin.Actor(), w.ID, "")
				} else {
					_, err = f.s.Reject(t.Context(), admin.Actor(), w.ID, "")
				}
				if err != nil {
					assert.ErrorIs(t, err, apperrors.ErrWithdrawalAlreadyProcessed)
					return
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)

		got, err := f.storage.Withdrawal().Get(t.Context(), w.ID, false)
		require.NoError(t, err)
		b := f.balance(t, user.ID)
		switch got.Status {
		case models.WithdrawalStatusApproved:
			requireBalance(t, b, "500.00", "0.00", "500.00")
		case models.WithdrawalStatusRejected:
			requireBalance(t, b, "1000.00", "0.00", "0.00")
		default:
			t.Fatalf("request must be finalized, got %s", got.Status)
		}
	})

	t.Run("timeout surfaces internal error", func(t *testing.T) {
		user := f.createUser(t, "slow", false, "1000")
		s := NewService(Config{OperationTimeout: time.Nanosecond}, f.storage, validate.New(validate.DefaultPolicy()), guard.New(looseGuard, logger.NewNoOpLogger()), nil, logger.NewNoOpLogger())

		_, err := s.Create(t.Context(), user.Actor(), mobileInput("100"))

		require.ErrorIs(t, err, apperrors.ErrInternal)
		requireBalance(t, f.balance(t, user.ID), "1000.00", "0.00", "0.00")
	})
}
