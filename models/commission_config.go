package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionConfig holds the per-role percentage rates for a service type,
// optionally narrowed to one provider and to a [StartDate, EndDate) window.
type CommissionConfig struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	ServiceType string  `gorm:"type:varchar(50);not null;index:idx_commission_configs_lookup" json:"service_type"`
	Provider    *string `gorm:"type:varchar(50);index:idx_commission_configs_lookup" json:"provider,omitempty"`

	// Rates in percent, e.g. 3.0 means 3%
	AdminPct          decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"admin_pct"`
	BranchManagerPct  decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"branch_manager_pct"`
	TalukManagerPct   decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"taluk_manager_pct"`
	ServiceAgentPct   decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"service_agent_pct"`
	RegisteredUserPct decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"registered_user_pct"`
	TotalPct          decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"total_pct"`

	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	IsPeakRate bool       `gorm:"not null;default:false" json:"is_peak_rate"`
	IsActive   bool       `gorm:"not null;default:true;index:idx_commission_configs_lookup" json:"is_active"`

	Description string `gorm:"type:text" json:"description"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate ensures UUID is set
func (cc *CommissionConfig) BeforeCreate(tx *gorm.DB) error {
	if cc.UUID == uuid.Nil {
		cc.UUID = uuid.New()
	}
	return nil
}

func (CommissionConfig) TableName() string {
	return "commission_configs"
}

// RateFor returns the configured percentage for a role
func (cc *CommissionConfig) RateFor(role UserRole) decimal.Decimal {
	switch role {
	case UserRoleAdmin:
		return cc.AdminPct
	case UserRoleBranchManager:
		return cc.BranchManagerPct
	case UserRoleTalukManager:
		return cc.TalukManagerPct
	case UserRoleServiceAgent:
		return cc.ServiceAgentPct
	case UserRoleRegisteredUser:
		return cc.RegisteredUserPct
	}
	return decimal.Zero
}

// RateSum adds up the five role rates
func (cc *CommissionConfig) RateSum() decimal.Decimal {
	return cc.AdminPct.
		Add(cc.BranchManagerPct).
		Add(cc.TalukManagerPct).
		Add(cc.ServiceAgentPct).
		Add(cc.RegisteredUserPct)
}

// HasWindow reports whether the config is bounded in time
func (cc *CommissionConfig) HasWindow() bool {
	return cc.StartDate != nil || cc.EndDate != nil
}

// CoversTime reports whether at falls inside [StartDate, EndDate). A missing
// bound is open on that side.
func (cc *CommissionConfig) CoversTime(at time.Time) bool {
	if cc.StartDate != nil && at.Before(*cc.StartDate) {
		return false
	}
	if cc.EndDate != nil && !at.Before(*cc.EndDate) {
		return false
	}
	return true
}

// IsProviderSpecific reports whether the config targets a single provider
func (cc *CommissionConfig) IsProviderSpecific() bool {
	return cc.Provider != nil && *cc.Provider != ""
}

// CommissionConfigFilter represents filter criteria for commission config queries
type CommissionConfigFilter struct {
	ID          *uint
	UUID        *uuid.UUID
	ServiceType *string
	Provider    *string
	IsPeakRate  *bool
	IsActive    *bool
}
