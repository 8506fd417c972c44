// Package models contains domain entities for the commission engine
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserRole is the position of a user in the commission hierarchy
type UserRole string

const (
	UserRoleServiceAgent   UserRole = "service_agent"   // Pincode-local operator
	UserRoleTalukManager   UserRole = "taluk_manager"   // Supervises agents of one taluk
	UserRoleBranchManager  UserRole = "branch_manager"  // Supervises one district
	UserRoleAdmin          UserRole = "admin"           // Root of the hierarchy
	UserRoleRegisteredUser UserRole = "registered_user" // End customer
)

// IsValid reports whether r is one of the known roles
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleServiceAgent, UserRoleTalukManager, UserRoleBranchManager, UserRoleAdmin, UserRoleRegisteredUser:
		return true
	}
	return false
}

func (r UserRole) String() string {
	return string(r)
}

// User is any account that can earn commission. WalletBalance is only ever
// changed together with a WalletLedgerEntry.
type User struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	Name   string   `gorm:"size:255;not null" json:"name"`
	Mobile string   `gorm:"size:20;not null;uniqueIndex:uk_users_mobile" json:"mobile"`
	Role   UserRole `gorm:"type:varchar(20);not null;index:idx_users_role_pincode;index:idx_users_role_district_taluk" json:"role"`

	// Organisational parent, informational only
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`

	// Geography
	District string `gorm:"size:100;index:idx_users_role_district_taluk" json:"district"`
	Taluk    string `gorm:"size:100;index:idx_users_role_district_taluk" json:"taluk"`
	Pincode  string `gorm:"size:10;index:idx_users_role_pincode" json:"pincode"`

	WalletBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"wallet_balance"`
	IsActive      *bool           `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// BeforeCreate ensures UUID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	return nil
}

func (User) TableName() string {
	return "users"
}

// Active reports whether the account may receive commission
func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Mobile   *string
	Role     *UserRole
	District *string
	Taluk    *string
	Pincode  *string
	ParentID *uint
	IsActive *bool
}
