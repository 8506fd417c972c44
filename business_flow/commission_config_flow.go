package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/shopspring/decimal"
)

var rateTolerance = decimal.RequireFromString("0.0001")

// CommissionConfigFlow manages commission rate sets
type CommissionConfigFlow interface {
	CreateConfig(ctx context.Context, req *dto.CreateCommissionConfigRequest, metadata *ClientMetadata) (*dto.CommissionConfigDTO, error)
	ListConfigs(ctx context.Context, req *dto.ListCommissionConfigsRequest) ([]dto.CommissionConfigDTO, error)
	DeactivateConfig(ctx context.Context, id uint, metadata *ClientMetadata) error
	// SeedConfigs inserts configs only when no config exists yet
	SeedConfigs(ctx context.Context, configs []*models.CommissionConfig) (int, error)
}

// CommissionConfigFlowImpl implements CommissionConfigFlow
type CommissionConfigFlowImpl struct {
	configRepo repository.CommissionConfigRepository
	auditRepo  repository.AuditLogRepository
	resolver   ConfigResolver
}

func NewCommissionConfigFlow(configRepo repository.CommissionConfigRepository, auditRepo repository.AuditLogRepository, resolver ConfigResolver) CommissionConfigFlow {
	return &CommissionConfigFlowImpl{
		configRepo: configRepo,
		auditRepo:  auditRepo,
		resolver:   resolver,
	}
}

func (f *CommissionConfigFlowImpl) CreateConfig(ctx context.Context, req *dto.CreateCommissionConfigRequest, metadata *ClientMetadata) (*dto.CommissionConfigDTO, error) {
	cfg := &models.CommissionConfig{
		ServiceType:       strings.TrimSpace(req.ServiceType),
		Provider:          req.Provider,
		AdminPct:          req.AdminPct,
		BranchManagerPct:  req.BranchManagerPct,
		TalukManagerPct:   req.TalukManagerPct,
		ServiceAgentPct:   req.ServiceAgentPct,
		RegisteredUserPct: req.RegisteredUserPct,
		TotalPct:          req.TotalPct,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		IsPeakRate:        req.IsPeakRate,
		IsActive:          true,
		Description:       req.Description,
	}
	if cfg.Provider != nil && strings.TrimSpace(*cfg.Provider) == "" {
		cfg.Provider = nil
	}

	if err := ValidateCommissionConfig(cfg); err != nil {
		return nil, err
	}

	if err := f.configRepo.Save(ctx, cfg); err != nil {
		return nil, NewBusinessError("CREATE_COMMISSION_CONFIG_FAILED", "Failed to create commission config", err)
	}
	f.resolver.Invalidate(ctx, cfg.ServiceType)

	msg := fmt.Sprintf("Commission config %d created for %s (total %s%%)", cfg.ID, cfg.ServiceType, cfg.TotalPct.String())
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionConfigCreated, msg, true, nil, map[string]any{"config_id": cfg.ID}, metadata)

	out := ToCommissionConfigDTO(cfg)
	return &out, nil
}

func (f *CommissionConfigFlowImpl) ListConfigs(ctx context.Context, req *dto.ListCommissionConfigsRequest) ([]dto.CommissionConfigDTO, error) {
	filter := models.CommissionConfigFilter{}
	if req != nil {
		if req.ServiceType != nil && strings.TrimSpace(*req.ServiceType) != "" {
			st := strings.TrimSpace(*req.ServiceType)
			filter.ServiceType = &st
		}
		if req.ActiveOnly {
			active := true
			filter.IsActive = &active
		}
	}

	configs, err := f.configRepo.ByFilter(ctx, filter, "service_type ASC, updated_at DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_COMMISSION_CONFIGS_FAILED", "Failed to list commission configs", err)
	}

	out := make([]dto.CommissionConfigDTO, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, ToCommissionConfigDTO(cfg))
	}
	return out, nil
}

func (f *CommissionConfigFlowImpl) DeactivateConfig(ctx context.Context, id uint, metadata *ClientMetadata) error {
	cfg, err := f.configRepo.ByID(ctx, id)
	if err != nil {
		return NewBusinessError("COMMISSION_CONFIG_LOOKUP_FAILED", "Failed to load commission config", err)
	}
	if cfg == nil {
		return ErrCommissionConfigNotFound
	}

	ok, err := f.configRepo.Deactivate(ctx, id)
	if err != nil {
		return NewBusinessError("DEACTIVATE_COMMISSION_CONFIG_FAILED", "Failed to deactivate commission config", err)
	}
	if !ok {
		return ErrCommissionConfigNotFound
	}
	f.resolver.Invalidate(ctx, cfg.ServiceType)

	msg := fmt.Sprintf("Commission config %d deactivated for %s", cfg.ID, cfg.ServiceType)
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionConfigDeactivated, msg, true, nil, map[string]any{"config_id": cfg.ID}, metadata)
	return nil
}

func (f *CommissionConfigFlowImpl) SeedConfigs(ctx context.Context, configs []*models.CommissionConfig) (int, error) {
	if len(configs) == 0 {
		return 0, ErrCommissionConfigsRequired
	}

	exists, err := f.configRepo.Exists(ctx, models.CommissionConfigFilter{})
	if err != nil {
		return 0, NewBusinessError("SEED_COMMISSION_CONFIGS_FAILED", "Failed to check existing commission configs", err)
	}
	if exists {
		return 0, nil
	}

	for i, cfg := range configs {
		if err := ValidateCommissionConfig(cfg); err != nil {
			return 0, fmt.Errorf("seed config %d (%s): %w", i, cfg.ServiceType, err)
		}
	}
	if err := f.configRepo.SaveBatch(ctx, configs); err != nil {
		return 0, NewBusinessError("SEED_COMMISSION_CONFIGS_FAILED", "Failed to seed commission configs", err)
	}

	seen := map[string]bool{}
	for _, cfg := range configs {
		if !seen[cfg.ServiceType] {
			seen[cfg.ServiceType] = true
			f.resolver.Invalidate(ctx, cfg.ServiceType)
		}
	}
	return len(configs), nil
}

// ValidateCommissionConfig checks rate signs, the rate sum, the total range
// and the validity window of cfg.
func ValidateCommissionConfig(cfg *models.CommissionConfig) error {
	if strings.TrimSpace(cfg.ServiceType) == "" {
		return ErrServiceTypeRequired
	}
	for _, rate := range []decimal.Decimal{cfg.AdminPct, cfg.BranchManagerPct, cfg.TalukManagerPct, cfg.ServiceAgentPct, cfg.RegisteredUserPct, cfg.TotalPct} {
		if rate.IsNegative() {
			return ErrNegativeRate
		}
	}
	if cfg.TotalPct.GreaterThan(hundred) {
		return ErrTotalRateOutOfRange
	}
	if cfg.RateSum().Sub(cfg.TotalPct).Abs().GreaterThan(rateTolerance) {
		return ErrRateSumMismatch
	}
	if cfg.StartDate != nil && cfg.EndDate != nil && !cfg.EndDate.After(*cfg.StartDate) {
		return ErrInvalidConfigWindow
	}
	return nil
}
