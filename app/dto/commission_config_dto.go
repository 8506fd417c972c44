package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCommissionConfigRequest defines a new rate set for a service type
type CreateCommissionConfigRequest struct {
	ServiceType       string          `json:"service_type" validate:"required,max=50"`
	Provider          *string         `json:"provider,omitempty" validate:"omitempty,max=50"`
	AdminPct          decimal.Decimal `json:"admin_pct"`
	BranchManagerPct  decimal.Decimal `json:"branch_manager_pct"`
	TalukManagerPct   decimal.Decimal `json:"taluk_manager_pct"`
	ServiceAgentPct   decimal.Decimal `json:"service_agent_pct"`
	RegisteredUserPct decimal.Decimal `json:"registered_user_pct"`
	TotalPct          decimal.Decimal `json:"total_pct"`
	StartDate         *time.Time      `json:"start_date,omitempty"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	IsPeakRate        bool            `json:"is_peak_rate"`
	Description       string          `json:"description" validate:"max=1000"`
}

// ListCommissionConfigsRequest filters the config listing
type ListCommissionConfigsRequest struct {
	ServiceType *string `query:"service_type" validate:"omitempty,max=50"`
	ActiveOnly  bool    `query:"active_only"`
}

// CommissionConfigDTO is the API view of a commission config
type CommissionConfigDTO struct {
	ID                uint            `json:"id"`
	UUID              string          `json:"uuid"`
	ServiceType       string          `json:"service_type"`
	Provider          *string         `json:"provider,omitempty"`
	AdminPct          decimal.Decimal `json:"admin_pct"`
	BranchManagerPct  decimal.Decimal `json:"branch_manager_pct"`
	TalukManagerPct   decimal.Decimal `json:"taluk_manager_pct"`
	ServiceAgentPct   decimal.Decimal `json:"service_agent_pct"`
	RegisteredUserPct decimal.Decimal `json:"registered_user_pct"`
	TotalPct          decimal.Decimal `json:"total_pct"`
	StartDate         *time.Time      `json:"start_date,omitempty"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	IsPeakRate        bool            `json:"is_peak_rate"`
	IsActive          bool            `json:"is_active"`
	Description       string          `json:"description"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DistributionIncidentDTO is the API view of a failed distribution awaiting backfill
type DistributionIncidentDTO struct {
	ID             uint            `json:"id"`
	ServiceType    string          `json:"service_type"`
	TransactionRef int64           `json:"transaction_ref"`
	CustomerID     uint            `json:"customer_id"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	Provider       *string         `json:"provider,omitempty"`
	Reason         string          `json:"reason"`
	ErrorCode      string          `json:"error_code"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ListIncidentsRequest filters the incident listing
type ListIncidentsRequest struct {
	Status   *string `query:"status" validate:"omitempty,oneof=open resolved abandoned"`
	Page     int     `query:"page" validate:"omitempty,min=1"`
	PageSize int     `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// RetryIncidentResponse reports the outcome of a manual backfill
type RetryIncidentResponse struct {
	Incident     DistributionIncidentDTO       `json:"incident"`
	Distribution *DistributeCommissionResponse `json:"distribution,omitempty"`
}

// DistributionIncidentListResponse is a page of incidents
type DistributionIncidentListResponse struct {
	Items    []DistributionIncidentDTO `json:"items"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
	Total    int64                     `json:"total"`
}
