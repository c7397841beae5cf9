package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodMobileBanking Method = "mobile_banking"
	MethodBankTransfer  Method = "bank_transfer"
)

func (m Method) Valid() bool {
	return m == MethodMobileBanking || m == MethodBankTransfer
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected:
		return true
	}
	return false
}

// MethodDetails holds payout details of exactly one method
// Implemented by MobileBankingDetails and BankTransferDetails only
type MethodDetails interface {
	Method() Method
}

type MobileBankingDetails struct {
	AccountHolderName string `json:"accountHolderName"`
	MobileNumber      string `json:"mobileNumber"`
	Provider          string `json:"provider"`
}

func (MobileBankingDetails) Method() Method { return MethodMobileBanking }

type BankTransferDetails struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	IBAN          string `json:"iban,omitempty"`
	SWIFT         string `json:"swift,omitempty"`
	Country       string `json:"country,omitempty"`
}

func (BankTransferDetails) Method() Method { return MethodBankTransfer }

type EditEntry struct {
	Editor         uuid.UUID      `json:"editor"`
	Timestamp      time.Time      `json:"timestamp"`
	ChangedFields  []string       `json:"changedFields"`
	PreviousValues map[string]any `json:"previousValues"`
	NewValues      map[string]any `json:"newValues"`
}

type Withdrawal struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Method  Method
	Amount  decimal.Decimal
	Status  WithdrawalStatus
	Details MethodDetails

	ProcessedBy          *uuid.UUID
	ProcessedAt          *time.Time
	TransactionReference string
	RejectionReason      string

	EditHistory []EditEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Withdrawal) IsPending() bool {
	return w.Status == WithdrawalStatusPending
}

// WithdrawalStats is the user's recent request history the fraud guard evaluates
type WithdrawalStats struct {
	PendingCount int

	// Sum of amounts of not rejected requests created since the window start
	RequestedInWindow decimal.Decimal

	ApprovedCount int
	ApprovedAvg   decimal.Decimal
	ApprovedMax   decimal.Decimal

	// Pending request with the same amount and method created recently
	HasRecentDuplicate bool
}
