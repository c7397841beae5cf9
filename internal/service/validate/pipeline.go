package validate

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/service/ledger"
)

// Validation policy with sensible defaults
type Policy struct {
	// Per method amount floors and the global ceiling
	MinAmount map[models.Method]decimal.Decimal
	MaxAmount decimal.Decimal

	MinAccountNumberLen int
	MaxAccountNumberLen int

	// Allowed mobile banking providers, lowercase
	Providers []string

	MaxFieldLen int
}

func DefaultPolicy() Policy {
	return Policy{
		MinAmount: map[models.Method]decimal.Decimal{
			models.MethodMobileBanking: decimal.NewFromInt(50),
			models.MethodBankTransfer:  decimal.NewFromInt(100),
		},
		MaxAmount:           decimal.NewFromInt(100000),
		MinAccountNumberLen: 8,
		MaxAccountNumberLen: 20,
		Providers:           []string{"bkash", "nagad", "rocket", "upay"},
		MaxFieldLen:         DefaultMaxFieldLen,
	}
}

type MobileBankingInput struct {
	AccountHolderName string `json:"accountHolderName"`
	MobileNumber      string `json:"mobileNumber"`
	Provider          string `json:"provider"`
}

type BankTransferInput struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	IBAN          string `json:"iban"`
	SWIFT         string `json:"swift"`
	Country       string `json:"country"`
}

// Input is the raw, untrusted withdrawal payload
type Input struct {
	Method        string
	Amount        *decimal.Decimal
	MobileBanking *MobileBankingInput
	BankTransfer  *BankTransferInput

	// Optional: when set the amount is checked against it as well
	Available *decimal.Decimal
}

// Payload is sanitized and validated withdrawal data, safe to pass downstream
type Payload struct {
	Method  models.Method
	Amount  decimal.Decimal
	Details models.MethodDetails
}

type Validator struct {
	policy   Policy
	validate *validator.Validate
}

func New(policy Policy) *Validator {
	v := validator.New()
	registerValidations(v, policy)

	return &Validator{policy: policy, validate: v}
}

// Withdrawal runs the whole pipeline and stops on the first failure
// sanitize -> required fields -> amount -> method details
func (v *Validator) Withdrawal(in Input) (Payload, error) {
	var p Payload

	// Work on copies, never mutate caller data
	if in.MobileBanking != nil {
		d := *in.MobileBanking
		sanitizeMobileBanking(&d, v.policy.MaxFieldLen)
		in.MobileBanking = &d
	}
	if in.BankTransfer != nil {
		d := *in.BankTransfer
		sanitizeBankTransfer(&d, v.policy.MaxFieldLen)
		in.BankTransfer = &d
	}
	method := models.Method(Sanitize(in.Method, v.policy.MaxFieldLen))

	if err := v.required(method, in); err != nil {
		return p, err
	}

	amount := ledger.Round(*in.Amount)
	if err := v.Amount(method, amount); err != nil {
		return p, err
	}
	if in.Available != nil {
		if err := CheckAvailable(amount, *in.Available); err != nil {
			return p, err
		}
	}

	var details models.MethodDetails
	switch method {
	case models.MethodMobileBanking:
		d := models.MobileBankingDetails{
			AccountHolderName: in.MobileBanking.AccountHolderName,
			MobileNumber:      NormalizeMobileNumber(in.MobileBanking.MobileNumber),
			Provider:          in.MobileBanking.Provider,
		}
		if err := v.MobileBankingDetails(d); err != nil {
			return p, err
		}
		details = d

	case models.MethodBankTransfer:
		d := models.BankTransferDetails{
			AccountName:   in.BankTransfer.AccountName,
			AccountNumber: in.BankTransfer.AccountNumber,
			BankName:      in.BankTransfer.BankName,
			IBAN:          in.BankTransfer.IBAN,
			SWIFT:         in.BankTransfer.SWIFT,
			Country:       in.BankTransfer.Country,
		}
		if err := v.BankTransferDetails(d); err != nil {
			return p, err
		}
		details = d
	}

	return Payload{Method: method, Amount: amount, Details: details}, nil
}

func (v *Validator) required(method models.Method, in Input) error {
	switch {
	case method == "":
		return apperrors.NewFieldError("method", fmt.Errorf("%w: method is required", apperrors.ErrValidation))
	case !method.Valid():
		return apperrors.NewFieldError("method", fmt.Errorf("%w: %q", apperrors.ErrInvalidMethod, method))
	case in.Amount == nil:
		return apperrors.NewFieldError("amount", fmt.Errorf("%w: amount is required", apperrors.ErrValidation))
	}

	switch method {
	case models.MethodMobileBanking:
		if in.MobileBanking == nil {
			return apperrors.NewFieldError("mobileBankingDetails", apperrors.ErrMissingMobileBankingDetails)
		}
		if in.BankTransfer != nil {
			return apperrors.NewFieldError("bankTransferDetails", fmt.Errorf("%w: details do not match method %s", apperrors.ErrValidation, method))
		}
	case models.MethodBankTransfer:
		if in.BankTransfer == nil {
			return apperrors.NewFieldError("bankTransferDetails", apperrors.ErrMissingBankTransferDetails)
		}
		if in.MobileBanking != nil {
			return apperrors.NewFieldError("mobileBankingDetails", fmt.Errorf("%w: details do not match method %s", apperrors.ErrValidation, method))
		}
	}

	return nil
}

// Amount checks the method floor and the global ceiling
func (v *Validator) Amount(method models.Method, amount decimal.Decimal) error {
	amount = ledger.Round(amount)

	if !amount.IsPositive() {
		return apperrors.NewFieldError("amount", fmt.Errorf("%w: amount must be positive", apperrors.ErrInvalidAmount))
	}

	if minAmount, ok := v.policy.MinAmount[method]; ok && amount.LessThan(minAmount) {
		return apperrors.NewFieldError("amount", fmt.Errorf("%w: minimum for %s is %s", apperrors.ErrInvalidAmount, method, minAmount.StringFixed(2)))
	}

	if amount.GreaterThan(v.policy.MaxAmount) {
		return apperrors.NewFieldError("amount", fmt.Errorf("%w: maximum is %s", apperrors.ErrInvalidAmount, v.policy.MaxAmount.StringFixed(2)))
	}

	return nil
}

// CheckAvailable fails with amount figures when the request exceeds available balance
func CheckAvailable(amount, available decimal.Decimal) error {
	if amount.GreaterThan(available) {
		return apperrors.NewAmountError(apperrors.ErrInsufficientBalance, amount, available)
	}
	return nil
}

func (v *Validator) MobileBankingDetails(d models.MobileBankingDetails) error {
	checks := []func() error{
		func() error { return v.HolderName(d.AccountHolderName) },
		func() error { return v.MobileNumber(d.MobileNumber) },
		func() error { return v.Provider(d.Provider) },
	}
	return firstErr(checks)
}

func (v *Validator) BankTransferDetails(d models.BankTransferDetails) error {
	checks := []func() error{
		func() error { return v.AccountName(d.AccountName) },
		func() error { return v.AccountNumber(d.AccountNumber) },
		func() error { return v.BankName(d.BankName) },
		func() error { return v.IBAN(d.IBAN) },
		func() error { return v.SWIFT(d.SWIFT) },
		func() error { return v.Country(d.Country) },
	}
	return firstErr(checks)
}

func firstErr(checks []func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
