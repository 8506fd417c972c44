package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/commission-engine/config"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	testingutil "github.com/amirphl/commission-engine/testing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resolveAt = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type configOpt func(*models.CommissionConfig)

func withProvider(p string) configOpt {
	return func(c *models.CommissionConfig) { c.Provider = &p }
}

func withWindow(start, end time.Time) configOpt {
	return func(c *models.CommissionConfig) { c.StartDate, c.EndDate = &start, &end }
}

func withPeak() configOpt {
	return func(c *models.CommissionConfig) { c.IsPeakRate = true }
}

func withUpdatedAt(t time.Time) configOpt {
	return func(c *models.CommissionConfig) { c.UpdatedAt = t }
}

func inactive() configOpt {
	return func(c *models.CommissionConfig) { c.IsActive = false }
}

func cfgWith(id uint, opts ...configOpt) *models.CommissionConfig {
	c := referenceConfig()
	c.ID = id
	c.UpdatedAt = resolveAt.Add(-time.Hour)
	for _, o := range opts {
		o(c)
	}
	return c
}

func TestSelectConfig(t *testing.T) {
	day := 24 * time.Hour
	covering := withWindow(resolveAt.Add(-day), resolveAt.Add(day))
	airtel := "airtel"
	jio := "jio"

	tests := []struct {
		name       string
		candidates []*models.CommissionConfig
		provider   *string
		wantID     uint
	}{
		{
			name:       "no candidates",
			candidates: nil,
			wantID:     0,
		},
		{
			name:       "single generic",
			candidates: []*models.CommissionConfig{cfgWith(1)},
			wantID:     1,
		},
		{
			name:       "inactive is ignored",
			candidates: []*models.CommissionConfig{cfgWith(1, inactive())},
			wantID:     0,
		},
		{
			name:       "windowed beats window-less",
			candidates: []*models.CommissionConfig{cfgWith(1), cfgWith(2, covering)},
			wantID:     2,
		},
		{
			name: "expired window falls back to default",
			candidates: []*models.CommissionConfig{
				cfgWith(1),
				cfgWith(2, withWindow(resolveAt.Add(-3*day), resolveAt.Add(-day))),
			},
			wantID: 1,
		},
		{
			name: "window end is exclusive",
			candidates: []*models.CommissionConfig{
				cfgWith(1),
				cfgWith(2, withWindow(resolveAt.Add(-day), resolveAt)),
			},
			wantID: 1,
		},
		{
			name: "window start is inclusive",
			candidates: []*models.CommissionConfig{
				cfgWith(1),
				cfgWith(2, withWindow(resolveAt, resolveAt.Add(day))),
			},
			wantID: 2,
		},
		{
			name: "open ended window",
			candidates: []*models.CommissionConfig{
				cfgWith(1),
				cfgWith(2, func(c *models.CommissionConfig) { s := resolveAt.Add(-day); c.StartDate = &s }),
			},
			wantID: 2,
		},
		{
			name:       "provider specific beats generic",
			candidates: []*models.CommissionConfig{cfgWith(1), cfgWith(2, withProvider("airtel"))},
			provider:   &airtel,
			wantID:     2,
		},
		{
			name:       "other provider is not eligible",
			candidates: []*models.CommissionConfig{cfgWith(1), cfgWith(2, withProvider("airtel"))},
			provider:   &jio,
			wantID:     1,
		},
		{
			name:       "no provider only matches generic",
			candidates: []*models.CommissionConfig{cfgWith(2, withProvider("airtel"))},
			provider:   nil,
			wantID:     0,
		},
		{
			name: "provider default beats windowed generic",
			candidates: []*models.CommissionConfig{
				cfgWith(1, withProvider("airtel")),
				cfgWith(2, covering, withPeak()),
			},
			provider: &airtel,
			wantID:   1,
		},
		{
			name: "windowed generic still applies to other providers",
			candidates: []*models.CommissionConfig{
				cfgWith(1, withProvider("airtel")),
				cfgWith(2, covering),
				cfgWith(3),
			},
			provider: &jio,
			wantID:   2,
		},
		{
			name: "provider window beats provider default",
			candidates: []*models.CommissionConfig{
				cfgWith(1, withProvider("airtel")),
				cfgWith(2, withProvider("airtel"), covering),
				cfgWith(3, covering),
			},
			provider: &airtel,
			wantID:   2,
		},
		{
			name: "overlapping windows: provider specific wins",
			candidates: []*models.CommissionConfig{
				cfgWith(1, covering, withPeak()),
				cfgWith(2, covering, withProvider("airtel")),
			},
			provider: &airtel,
			wantID:   2,
		},
		{
			name: "overlapping windows: peak wins",
			candidates: []*models.CommissionConfig{
				cfgWith(1, covering),
				cfgWith(2, covering, withPeak()),
			},
			wantID: 2,
		},
		{
			name: "overlapping windows: latest update wins",
			candidates: []*models.CommissionConfig{
				cfgWith(1, covering, withUpdatedAt(resolveAt.Add(-time.Minute))),
				cfgWith(2, covering, withUpdatedAt(resolveAt.Add(-time.Hour))),
			},
			wantID: 1,
		},
		{
			name: "full tie: highest id wins",
			candidates: []*models.CommissionConfig{
				cfgWith(7, covering),
				cfgWith(9, covering),
				cfgWith(8, covering),
			},
			wantID: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectConfig(tt.candidates, tt.provider, resolveAt)
			if tt.wantID == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelectConfig_OrderIndependent(t *testing.T) {
	covering := withWindow(resolveAt.Add(-time.Hour), resolveAt.Add(time.Hour))
	a := cfgWith(1, covering)
	b := cfgWith(2, covering, withPeak())
	c := cfgWith(3)

	for _, order := range [][]*models.CommissionConfig{{a, b, c}, {c, b, a}, {b, c, a}} {
		got := selectConfig(order, nil, resolveAt)
		require.NotNil(t, got)
		assert.Equal(t, uint(2), got.ID)
	}
}

// stubConfigRepo overrides the one lookup the resolver uses
type stubConfigRepo struct {
	repository.CommissionConfigRepository
	configs []*models.CommissionConfig
	err     error
	calls   int
}

func (s *stubConfigRepo) ListActiveByServiceType(ctx context.Context, serviceType string) ([]*models.CommissionConfig, error) {
	s.calls++
	return s.configs, s.err
}

func TestConfigResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo := &stubConfigRepo{configs: []*models.CommissionConfig{cfgWith(3)}}
		resolver := NewConfigResolver(repo, nil, nil)

		cfg, err := resolver.Resolve(ctx, "recharge", nil, resolveAt)
		require.NoError(t, err)
		assert.Equal(t, uint(3), cfg.ID)
		assert.Equal(t, 1, repo.calls)
	})

	t.Run("not found", func(t *testing.T) {
		resolver := NewConfigResolver(&stubConfigRepo{}, nil, nil)

		_, err := resolver.Resolve(ctx, "recharge", nil, resolveAt)
		assert.True(t, IsConfigNotFound(err))
	})

	t.Run("lookup failure", func(t *testing.T) {
		resolver := NewConfigResolver(&stubConfigRepo{err: errors.New("connection reset")}, nil, nil)

		_, err := resolver.Resolve(ctx, "recharge", nil, resolveAt)
		require.Error(t, err)
		assert.False(t, IsConfigNotFound(err))
		var be *BusinessError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "CONFIG_LOOKUP_FAILED", be.Code)
	})

	t.Run("invalidate without cache is a no-op", func(t *testing.T) {
		resolver := NewConfigResolver(&stubConfigRepo{}, nil, nil)
		assert.NotPanics(t, func() { resolver.Invalidate(ctx, "recharge") })
	})
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "commission_configs:recharge", redisKey("", commissionConfigsCacheKey+"recharge"))
	assert.Equal(t, "commission:commission_configs:recharge", redisKey("commission", commissionConfigsCacheKey+"recharge"))
}

func TestConfigResolver_RedisCache(t *testing.T) {
	rc, prefix := testingutil.RequireRedis(t)
	ctx := context.Background()
	cacheCfg := &config.CacheConfig{Enabled: true, RedisPrefix: prefix, DefaultTTL: time.Minute}

	start := resolveAt.Add(-time.Hour)
	end := resolveAt.Add(time.Hour)
	stored := cfgWith(11, withProvider("airtel"), withWindow(start, end), withPeak())
	stored.ServiceAgentPct = decimal.RequireFromString("3.125")
	repo := &stubConfigRepo{configs: []*models.CommissionConfig{stored, cfgWith(12)}}
	resolver := NewConfigResolver(repo, rc, cacheCfg)
	key := resolver.(*ConfigResolverImpl).cacheKey("recharge")
	airtel := "airtel"

	first, err := resolver.Resolve(ctx, "recharge", &airtel, resolveAt)
	require.NoError(t, err)
	assert.Equal(t, uint(11), first.ID)
	assert.Equal(t, 1, repo.calls)

	ttl, err := rc.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %s", ttl)

	t.Run("hit skips the repository and keeps field fidelity", func(t *testing.T) {
		cached, err := resolver.Resolve(ctx, "recharge", &airtel, resolveAt)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.calls)

		assert.Equal(t, uint(11), cached.ID)
		require.NotNil(t, cached.Provider)
		assert.Equal(t, "airtel", *cached.Provider)
		require.NotNil(t, cached.StartDate)
		require.NotNil(t, cached.EndDate)
		assert.True(t, cached.StartDate.Equal(start))
		assert.True(t, cached.EndDate.Equal(end))
		assert.True(t, cached.IsPeakRate)
		assert.True(t, cached.ServiceAgentPct.Equal(decimal.RequireFromString("3.125")))
		assert.True(t, cached.TotalPct.Equal(stored.TotalPct))

		generic, err := resolver.Resolve(ctx, "recharge", nil, resolveAt)
		require.NoError(t, err)
		assert.Equal(t, uint(12), generic.ID)
		assert.Nil(t, generic.Provider)
		assert.Equal(t, 1, repo.calls)
	})

	t.Run("invalidate drops the key", func(t *testing.T) {
		resolver.Invalidate(ctx, "recharge")
		n, err := rc.Exists(ctx, key).Result()
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = resolver.Resolve(ctx, "recharge", &airtel, resolveAt)
		require.NoError(t, err)
		assert.Equal(t, 2, repo.calls)
	})

	t.Run("corrupt entry falls back to the repository", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, key, "{not json", time.Minute).Err())
		cfg, err := resolver.Resolve(ctx, "recharge", &airtel, resolveAt)
		require.NoError(t, err)
		assert.Equal(t, uint(11), cfg.ID)
		assert.Equal(t, 3, repo.calls)
	})

	t.Run("service types are cached apart", func(t *testing.T) {
		other := &stubConfigRepo{}
		r := NewConfigResolver(other, rc, cacheCfg)
		_, err := r.Resolve(ctx, "purchase", nil, resolveAt)
		assert.True(t, IsConfigNotFound(err))
		assert.Equal(t, 1, other.calls)
	})
}
