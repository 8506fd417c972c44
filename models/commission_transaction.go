package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionStatus represents the settlement state of a commission transaction
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending" // Credited to wallet, awaiting settlement
	CommissionStatusPaid    CommissionStatus = "paid"    // Settled
	CommissionStatusFailed  CommissionStatus = "failed"  // Settlement failed
)

// ServiceTypeCommission tags wallet ledger entries produced by distributions
const ServiceTypeCommission = "commission"

// CommissionTransaction is one beneficiary's share of one distribution.
// Only Status, PaidAt, FailedAt and FailureReason change after creation.
type CommissionTransaction struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	DistributionID uuid.UUID `gorm:"type:uuid;index;not null" json:"distribution_id"`

	ServiceType    string   `gorm:"type:varchar(50);not null;uniqueIndex:uk_commission_transactions_beneficiary,priority:1" json:"service_type"`
	TransactionRef int64    `gorm:"not null;uniqueIndex:uk_commission_transactions_beneficiary,priority:2" json:"transaction_ref"`
	UserID         uint     `gorm:"not null;index;uniqueIndex:uk_commission_transactions_beneficiary,priority:3" json:"user_id"`
	Role           UserRole `gorm:"type:varchar(20);not null;uniqueIndex:uk_commission_transactions_beneficiary,priority:4" json:"role"`

	BaseAmount decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"base_amount"`
	Percentage decimal.Decimal `gorm:"type:numeric(7,4);not null" json:"percentage"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`

	Status        CommissionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	FailedAt      *time.Time       `json:"failed_at,omitempty"`
	FailureReason *string          `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate ensures UUID and DistributionID are set
func (ct *CommissionTransaction) BeforeCreate(tx *gorm.DB) error {
	if ct.UUID == uuid.Nil {
		ct.UUID = uuid.New()
	}
	if ct.DistributionID == uuid.Nil {
		ct.DistributionID = uuid.New()
	}
	return nil
}

func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}

// IsPaid returns true if the commission has been settled
func (ct *CommissionTransaction) IsPaid() bool {
	return ct.Status == CommissionStatusPaid
}

// IsPending returns true if the commission awaits settlement
func (ct *CommissionTransaction) IsPending() bool {
	return ct.Status == CommissionStatusPending
}

// CanBePaid returns true if the commission can still be settled
func (ct *CommissionTransaction) CanBePaid() bool {
	return ct.Status == CommissionStatusPending
}

// CommissionTransactionFilter represents filter criteria for commission transaction queries
type CommissionTransactionFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	DistributionID *uuid.UUID
	ServiceType    *string
	TransactionRef *int64
	UserID         *uint
	Role           *UserRole
	Status         *CommissionStatus
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	PaidAfter      *time.Time
	PaidBefore     *time.Time
}
