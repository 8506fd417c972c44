package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IncidentStatus tracks whether a failed distribution still needs a backfill
type IncidentStatus string

const (
	IncidentStatusOpen      IncidentStatus = "open"      // Waiting for a retry
	IncidentStatusResolved  IncidentStatus = "resolved"  // A later retry succeeded
	IncidentStatusAbandoned IncidentStatus = "abandoned" // Attempt cap reached
)

// DistributionIncident stores the arguments of a distribution that could not
// be applied, so it can be replayed once the cause is fixed.
type DistributionIncident struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ServiceType    string          `gorm:"type:varchar(50);not null;uniqueIndex:uk_distribution_incidents_ref,priority:1" json:"service_type"`
	TransactionRef int64           `gorm:"not null;uniqueIndex:uk_distribution_incidents_ref,priority:2" json:"transaction_ref"`
	CustomerID     uint            `gorm:"not null" json:"customer_id"`
	BaseAmount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"base_amount"`
	Provider       *string         `gorm:"type:varchar(50)" json:"provider,omitempty"`

	Reason    string         `gorm:"type:text;not null" json:"reason"`
	ErrorCode string         `gorm:"type:varchar(50);not null" json:"error_code"`
	Status    IncidentStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DistributionIncident) TableName() string {
	return "distribution_incidents"
}

func (i *DistributionIncident) IsOpen() bool {
	return i.Status == IncidentStatusOpen
}

// DistributionIncidentFilter represents filter criteria for incident queries
type DistributionIncidentFilter struct {
	ID             *uint
	ServiceType    *string
	TransactionRef *int64
	Status         *IncidentStatus
	MaxAttempts    *int
}
