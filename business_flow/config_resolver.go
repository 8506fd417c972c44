package businessflow

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/amirphl/commission-engine/config"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/redis/go-redis/v9"
)

const commissionConfigsCacheKey = "commission_configs:"

// ConfigResolver picks the single commission config that applies to a distribution
type ConfigResolver interface {
	Resolve(ctx context.Context, serviceType string, provider *string, at time.Time) (*models.CommissionConfig, error)
	// Invalidate drops cached candidates of a service type after a config write
	Invalidate(ctx context.Context, serviceType string)
}

// ConfigResolverImpl implements ConfigResolver with a redis cache-aside of
// the active candidates per service type. rc may be nil.
type ConfigResolverImpl struct {
	configRepo  repository.CommissionConfigRepository
	rc          *redis.Client
	cacheConfig *config.CacheConfig
}

func NewConfigResolver(configRepo repository.CommissionConfigRepository, rc *redis.Client, cacheConfig *config.CacheConfig) ConfigResolver {
	return &ConfigResolverImpl{
		configRepo:  configRepo,
		rc:          rc,
		cacheConfig: cacheConfig,
	}
}

func (r *ConfigResolverImpl) Resolve(ctx context.Context, serviceType string, provider *string, at time.Time) (*models.CommissionConfig, error) {
	candidates, err := r.candidates(ctx, serviceType)
	if err != nil {
		return nil, NewBusinessError("CONFIG_LOOKUP_FAILED", "Failed to load commission configs", err)
	}

	cfg := selectConfig(candidates, provider, at)
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

func (r *ConfigResolverImpl) Invalidate(ctx context.Context, serviceType string) {
	if !r.cacheEnabled() {
		return
	}
	if err := r.rc.Del(ctx, r.cacheKey(serviceType)).Err(); err != nil {
		log.Printf("commission config cache invalidation failed for %s: %v", serviceType, err)
	}
}

func (r *ConfigResolverImpl) candidates(ctx context.Context, serviceType string) ([]*models.CommissionConfig, error) {
	key := r.cacheKey(serviceType)

	// try redis first
	if r.cacheEnabled() {
		if bs, err := r.rc.Get(ctx, key).Bytes(); err == nil && len(bs) > 0 {
			var cached []*models.CommissionConfig
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	configs, err := r.configRepo.ListActiveByServiceType(ctx, serviceType)
	if err != nil {
		return nil, err
	}

	if r.cacheEnabled() {
		if bs, err := json.Marshal(configs); err == nil {
			_ = r.rc.Set(ctx, key, bs, r.cacheConfig.DefaultTTL).Err()
		}
	}

	return configs, nil
}

func (r *ConfigResolverImpl) cacheEnabled() bool {
	return r.rc != nil && r.cacheConfig != nil && r.cacheConfig.Enabled
}

func (r *ConfigResolverImpl) cacheKey(serviceType string) string {
	prefix := ""
	if r.cacheConfig != nil {
		prefix = r.cacheConfig.RedisPrefix
	}
	return redisKey(prefix, commissionConfigsCacheKey+serviceType)
}

func redisKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// selectConfig returns the best eligible candidate for (provider, at) or nil.
//
// Eligible means active, covering at, and either generic or matching the
// provider. Without a provider only generic configs are eligible. Ranking:
// provider-specific over generic, then windowed over window-less, peak over
// regular, latest updated_at, highest id. A seasonal window therefore only
// overrides the default of its own provider scope.
func selectConfig(candidates []*models.CommissionConfig, provider *string, at time.Time) *models.CommissionConfig {
	eligible := make([]*models.CommissionConfig, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || !c.IsActive || !c.CoversTime(at) {
			continue
		}
		if c.IsProviderSpecific() {
			if provider == nil || *provider != *c.Provider {
				continue
			}
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.IsProviderSpecific() != b.IsProviderSpecific() {
			return a.IsProviderSpecific()
		}
		if a.HasWindow() != b.HasWindow() {
			return a.HasWindow()
		}
		if a.IsPeakRate != b.IsPeakRate {
			return a.IsPeakRate
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})

	return eligible[0]
}
