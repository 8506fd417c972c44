package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/utils"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// Hierarchy is one complete geographic chain plus a customer under it
type Hierarchy struct {
	Admin         *models.User
	BranchManager *models.User
	TalukManager  *models.User
	ServiceAgent  *models.User
	Customer      *models.User
}

// Location places a user in the geography
type Location struct {
	District string
	Taluk    string
	Pincode  string
}

func randomMobile() string {
	return fmt.Sprintf("+9198%08d", rand.Intn(100000000))
}

// CreateUser inserts an active user with the given role and location
func (tf *TestFixtures) CreateUser(role models.UserRole, loc Location) (*models.User, error) {
	user := &models.User{
		Name:          fmt.Sprintf("%s %d", role, rand.Intn(1000000)),
		Mobile:        randomMobile(),
		Role:          role,
		District:      loc.District,
		Taluk:         loc.Taluk,
		Pincode:       loc.Pincode,
		WalletBalance: decimal.Zero,
		IsActive:      utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", role, err)
	}
	return user, nil
}

// CreateHierarchy creates admin, branch manager, taluk manager, service agent
// and a registered customer sharing one district/taluk/pincode
func (tf *TestFixtures) CreateHierarchy(loc Location) (*Hierarchy, error) {
	h := &Hierarchy{}
	var err error
	if h.Admin, err = tf.CreateUser(models.UserRoleAdmin, Location{}); err != nil {
		return nil, err
	}
	if h.BranchManager, err = tf.CreateUser(models.UserRoleBranchManager, Location{District: loc.District}); err != nil {
		return nil, err
	}
	if h.TalukManager, err = tf.CreateUser(models.UserRoleTalukManager, Location{District: loc.District, Taluk: loc.Taluk}); err != nil {
		return nil, err
	}
	if h.ServiceAgent, err = tf.CreateUser(models.UserRoleServiceAgent, loc); err != nil {
		return nil, err
	}
	if h.Customer, err = tf.CreateUser(models.UserRoleRegisteredUser, loc); err != nil {
		return nil, err
	}
	return h, nil
}

// DefaultLocation is the geography used by most integration tests
func DefaultLocation() Location {
	return Location{District: "Mysuru", Taluk: "Hunsur", Pincode: "571105"}
}

// CreateConfig inserts an active commission config with the given rates
// (admin, branch manager, taluk manager, service agent, registered user)
func (tf *TestFixtures) CreateConfig(serviceType string, provider *string, rates [5]string) (*models.CommissionConfig, error) {
	cfg := &models.CommissionConfig{
		ServiceType:       serviceType,
		Provider:          provider,
		AdminPct:          decimal.RequireFromString(rates[0]),
		BranchManagerPct:  decimal.RequireFromString(rates[1]),
		TalukManagerPct:   decimal.RequireFromString(rates[2]),
		ServiceAgentPct:   decimal.RequireFromString(rates[3]),
		RegisteredUserPct: decimal.RequireFromString(rates[4]),
		IsActive:          true,
	}
	cfg.TotalPct = cfg.RateSum()
	if err := tf.DB.DB.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create commission config: %w", err)
	}
	return cfg, nil
}

// CreateWindowedConfig inserts a config valid in [start, end)
func (tf *TestFixtures) CreateWindowedConfig(serviceType string, rates [5]string, start, end time.Time, peak bool) (*models.CommissionConfig, error) {
	cfg, err := tf.CreateConfig(serviceType, nil, rates)
	if err != nil {
		return nil, err
	}
	err = tf.DB.DB.Model(cfg).Updates(map[string]any{
		"start_date":   start.UTC(),
		"end_date":     end.UTC(),
		"is_peak_rate": peak,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to set config window: %w", err)
	}
	return cfg, nil
}

// DeactivateUser flips is_active off
func (tf *TestFixtures) DeactivateUser(userID uint) error {
	return tf.DB.DB.Model(&models.User{}).Where("id = ?", userID).Update("is_active", false).Error
}

// DefaultRates is the reference split: 0.5 / 0.5 / 1.0 / 3.0 / 1.0 = 6%
func DefaultRates() [5]string {
	return [5]string{"0.5", "0.5", "1.0", "3.0", "1.0"}
}
