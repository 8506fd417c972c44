package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// DistributeCommissionRequest is sent by a service module after a monetized transaction completes
type DistributeCommissionRequest struct {
	ServiceType    string          `json:"service_type" validate:"required,max=50"`  // e.g. recharge, taxi, rental
	TransactionRef int64           `json:"transaction_ref" validate:"required,gt=0"` // Id of the originating entity
	Amount         decimal.Decimal `json:"amount"`                                   // Verified transaction amount
	Provider       *string         `json:"provider,omitempty" validate:"omitempty,max=50"`
	CustomerID     uint            `json:"customer_id" validate:"required"` // Originating customer
}

// BeneficiaryShareDTO is one beneficiary's part of a distribution
type BeneficiaryShareDTO struct {
	CommissionID uint            `json:"commission_id"`
	UserID       uint            `json:"user_id"`
	Role         string          `json:"role"`
	Percentage   decimal.Decimal `json:"percentage"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
}

// DistributeCommissionResponse summarizes a distribution
type DistributeCommissionResponse struct {
	DistributionID     string                `json:"distribution_id,omitempty"`
	ServiceType        string                `json:"service_type"`
	TransactionRef     int64                 `json:"transaction_ref"`
	TotalDistributed   decimal.Decimal       `json:"total_distributed"`
	Beneficiaries      []BeneficiaryShareDTO `json:"beneficiaries"`
	AlreadyDistributed bool                  `json:"already_distributed"`
}

// ListCommissionsRequest pages through commission transactions
type ListCommissionsRequest struct {
	Page     int `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize int `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=500"`
}

// CommissionTransactionDTO is the API view of a commission transaction
type CommissionTransactionDTO struct {
	ID             uint            `json:"id"`
	UUID           string          `json:"uuid"`
	DistributionID string          `json:"distribution_id"`
	ServiceType    string          `json:"service_type"`
	TransactionRef int64           `json:"transaction_ref"`
	UserID         uint            `json:"user_id"`
	Role           string          `json:"role"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	Percentage     decimal.Decimal `json:"percentage"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
}

// CommissionListResponse is a page of commission transactions
type CommissionListResponse struct {
	Items    []CommissionTransactionDTO `json:"items"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
	Total    decimal.Decimal            `json:"total_amount"` // Sum of Amount over Items
}

// MarkCommissionsPaidRequest settles pending commissions
type MarkCommissionsPaidRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

// MarkCommissionsFailedRequest flags pending commissions whose payout failed
type MarkCommissionsFailedRequest struct {
	IDs    []uint `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// MarkCommissionsResponse reports how many rows changed state
type MarkCommissionsResponse struct {
	Requested int   `json:"requested"`
	Updated   int64 `json:"updated"`
}

// WalletReconciliationResponse compares a wallet with its ledger
type WalletReconciliationResponse struct {
	UserID     uint            `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}
