package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/payouts/internal/apperrors"
)

var (
	holderNameRe    = regexp.MustCompile(`^\p{L}[\p{L} .\-]*$`)
	bankNameRe      = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} .,\-]*$`)
	accountNumberRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

	// Local numbers like 01712345678, optionally with country prefix 88 or +88
	nationalMobileRe = regexp.MustCompile(`^(?:\+?88)?01[3-9]\d{8}$`)
	// E.164
	internationalMobileRe = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

	mobileNumberSeparators = strings.NewReplacer(" ", "", "-", "")
)

// NormalizeMobileNumber drops separators people commonly type inside phone numbers
func NormalizeMobileNumber(number string) string {
	return mobileNumberSeparators.Replace(number)
}

func registerValidations(v *validator.Validate, p Policy) {
	_ = v.RegisterValidation("holder_name", func(fl validator.FieldLevel) bool {
		return holderNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bank_name", func(fl validator.FieldLevel) bool {
		return bankNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("mobile_number", func(fl validator.FieldLevel) bool {
		number := fl.Field().String()
		return nationalMobileRe.MatchString(number) || internationalMobileRe.MatchString(number)
	})
	_ = v.RegisterValidation("account_number", func(fl validator.FieldLevel) bool {
		number := fl.Field().String()
		return len(number) >= p.MinAccountNumberLen && len(number) <= p.MaxAccountNumberLen && accountNumberRe.MatchString(number)
	})
	_ = v.RegisterValidation("iban", func(fl validator.FieldLevel) bool {
		return IBAN(fl.Field().String()) == nil
	})
}

// field checks one value against validator tags and reports failure as a field error
func (v *Validator) field(name string, value string, tags string, sentinel error) error {
	err := v.validate.Var(value, tags)
	if err == nil {
		return nil
	}

	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return apperrors.NewFieldError(name, fmt.Errorf("%w: failed on '%s' rule", sentinel, errs[0].Tag()))
	}

	// Invalid tags or value kinds are programmer errors
	return fmt.Errorf("%w: validating %s: %w", apperrors.ErrInternal, name, err)
}

func (v *Validator) HolderName(name string) error {
	return v.field("accountHolderName", name, "required,min=2,max=100,holder_name", apperrors.ErrInvalidHolderName)
}

func (v *Validator) MobileNumber(number string) error {
	return v.field("mobileNumber", NormalizeMobileNumber(number), "required,mobile_number", apperrors.ErrInvalidMobileNumber)
}

func (v *Validator) Provider(provider string) error {
	return v.field("provider", strings.ToLower(provider), "required,oneof="+strings.Join(v.policy.Providers, " "), apperrors.ErrInvalidProvider)
}

func (v *Validator) AccountName(name string) error {
	return v.field("accountName", name, "required,min=2,max=100", apperrors.ErrInvalidAccountName)
}

func (v *Validator) AccountNumber(number string) error {
	return v.field("accountNumber", number, "required,account_number", apperrors.ErrInvalidAccountNumber)
}

func (v *Validator) BankName(name string) error {
	return v.field("bankName", name, "required,min=2,max=100,bank_name", apperrors.ErrInvalidBankName)
}

// International transfer fields are optional, but must be well formed when present

func (v *Validator) IBAN(code string) error {
	return v.field("iban", code, "omitempty,iban", apperrors.ErrInvalidIBAN)
}

func (v *Validator) SWIFT(code string) error {
	return v.field("swift", code, "omitempty,bic", apperrors.ErrInvalidSWIFT)
}

func (v *Validator) Country(code string) error {
	return v.field("country", code, "omitempty,iso3166_1_alpha2", apperrors.ErrInvalidCountry)
}
