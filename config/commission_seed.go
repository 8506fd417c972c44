package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amirphl/commission-engine/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type commissionSeedFile struct {
	Configs []commissionSeedEntry `yaml:"configs"`
}

type commissionSeedEntry struct {
	ServiceType    string  `yaml:"service_type"`
	Provider       string  `yaml:"provider"`
	Admin          string  `yaml:"admin"`
	BranchManager  string  `yaml:"branch_manager"`
	TalukManager   string  `yaml:"taluk_manager"`
	ServiceAgent   string  `yaml:"service_agent"`
	RegisteredUser string  `yaml:"registered_user"`
	Total          string  `yaml:"total"`
	StartDate      *string `yaml:"start_date"`
	EndDate        *string `yaml:"end_date"`
	IsPeakRate     bool    `yaml:"is_peak_rate"`
	Description    string  `yaml:"description"`
}

// LoadCommissionSeed reads commission configs from a YAML file:
//
//	configs:
//	  - service_type: recharge
//	    provider: airtel
//	    admin: "0.5"
//	    branch_manager: "0.5"
//	    taluk_manager: "1.0"
//	    service_agent: "3.0"
//	    registered_user: "1.0"
//	    total: "6.0"
//
// Rates are strings so they parse into exact decimals. Dates are RFC3339.
// A missing path yields no configs.
func LoadCommissionSeed(path string) ([]*models.CommissionConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read commission seed: %w", err)
	}
	return ParseCommissionSeed(raw)
}

// ParseCommissionSeed decodes the YAML seed document
func ParseCommissionSeed(raw []byte) ([]*models.CommissionConfig, error) {
	var f commissionSeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse commission seed: %w", err)
	}

	out := make([]*models.CommissionConfig, 0, len(f.Configs))
	for i, e := range f.Configs {
		cfg, err := e.toModel()
		if err != nil {
			return nil, fmt.Errorf("commission seed entry %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (e commissionSeedEntry) toModel() (*models.CommissionConfig, error) {
	serviceType := strings.TrimSpace(e.ServiceType)
	if serviceType == "" {
		return nil, fmt.Errorf("service_type is required")
	}

	rates := make([]decimal.Decimal, 5)
	for i, raw := range []string{e.Admin, e.BranchManager, e.TalukManager, e.ServiceAgent, e.RegisteredUser} {
		d, err := parseRate(raw)
		if err != nil {
			return nil, err
		}
		rates[i] = d
	}

	cfg := &models.CommissionConfig{
		ServiceType:       serviceType,
		AdminPct:          rates[0],
		BranchManagerPct:  rates[1],
		TalukManagerPct:   rates[2],
		ServiceAgentPct:   rates[3],
		RegisteredUserPct: rates[4],
		IsPeakRate:        e.IsPeakRate,
		IsActive:          true,
		Description:       e.Description,
	}
	if p := strings.TrimSpace(e.Provider); p != "" {
		cfg.Provider = &p
	}

	// total defaults to the sum of the role rates
	if strings.TrimSpace(e.Total) == "" {
		cfg.TotalPct = cfg.RateSum()
	} else {
		total, err := parseRate(e.Total)
		if err != nil {
			return nil, err
		}
		cfg.TotalPct = total
	}

	var err error
	if cfg.StartDate, err = parseSeedTime(e.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if cfg.EndDate, err = parseSeedTime(e.EndDate); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	return cfg, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", raw, err)
	}
	return d, nil
}

func parseSeedTime(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
