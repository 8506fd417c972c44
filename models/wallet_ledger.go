package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntryType is the direction of a wallet mutation
type LedgerEntryType string

const (
	LedgerEntryTypeCredit LedgerEntryType = "credit"
	LedgerEntryTypeDebit  LedgerEntryType = "debit"
)

// LedgerReferenceCommission marks entries created for a CommissionTransaction
const LedgerReferenceCommission = "commission_transaction"

// WalletLedgerEntry is an append-only record of one wallet mutation.
// For every user, WalletBalance equals the signed sum of its entries.
type WalletLedgerEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	UserID      uint            `gorm:"not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Type        LedgerEntryType `gorm:"type:varchar(10);not null" json:"type"`
	Description string          `gorm:"type:text" json:"description"`
	ServiceType string          `gorm:"type:varchar(50);not null;index" json:"service_type"`

	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	ReferenceType string          `gorm:"type:varchar(50)" json:"reference_type,omitempty"`
	ReferenceID   *uint           `gorm:"index" json:"reference_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// BeforeCreate ensures UUID and CorrelationID are set
func (e *WalletLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.CorrelationID == uuid.Nil {
		e.CorrelationID = uuid.New()
	}
	return nil
}

func (WalletLedgerEntry) TableName() string {
	return "wallet_ledger"
}

// Signed returns the amount with its direction applied
func (e *WalletLedgerEntry) Signed() decimal.Decimal {
	if e.Type == LedgerEntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// WalletLedgerFilter represents filter criteria for wallet ledger queries
type WalletLedgerFilter struct {
	ID            *uint
	CorrelationID *uuid.UUID
	UserID        *uint
	Type          *LedgerEntryType
	ServiceType   *string
	ReferenceType *string
	ReferenceID   *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
