package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
configs:
  - service_type: recharge
    provider: airtel
    admin: "0.5"
    branch_manager: "0.5"
    taluk_manager: "1.0"
    service_agent: "3.0"
    registered_user: "1.0"
    total: "6.0"
    description: default recharge split
  - service_type: booking
    service_agent: "2.5"
    registered_user: "0.5"
    start_date: "2026-12-20T00:00:00Z"
    end_date: "2027-01-05T00:00:00+05:30"
    is_peak_rate: true
`

func TestParseCommissionSeed(t *testing.T) {
	configs, err := ParseCommissionSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, configs, 2)

	recharge := configs[0]
	assert.Equal(t, "recharge", recharge.ServiceType)
	require.NotNil(t, recharge.Provider)
	assert.Equal(t, "airtel", *recharge.Provider)
	assert.True(t, recharge.TotalPct.Equal(decimal.RequireFromString("6")))
	assert.True(t, recharge.ServiceAgentPct.Equal(decimal.RequireFromString("3")))
	assert.True(t, recharge.IsActive)
	assert.False(t, recharge.HasWindow())

	booking := configs[1]
	assert.Nil(t, booking.Provider)
	assert.True(t, booking.TotalPct.Equal(decimal.RequireFromString("3")), "total defaults to the rate sum")
	assert.True(t, booking.IsPeakRate)
	require.NotNil(t, booking.StartDate)
	require.NotNil(t, booking.EndDate)
	assert.Equal(t, "2027-01-04T18:30:00Z", booking.EndDate.Format("2006-01-02T15:04:05Z07:00"))
}

func TestParseCommissionSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "malformed yaml", doc: "configs: [", want: "parse commission seed"},
		{name: "missing service type", doc: "configs:\n  - admin: \"1\"\n", want: "service_type is required"},
		{name: "bad rate", doc: "configs:\n  - service_type: x\n    admin: abc\n", want: "invalid rate"},
		{name: "bad date", doc: "configs:\n  - service_type: x\n    start_date: yesterday\n", want: "start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommissionSeed([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCommissionSeed(t *testing.T) {
	configs, err := LoadCommissionSeed("")
	require.NoError(t, err)
	assert.Empty(t, configs)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	configs, err = LoadCommissionSeed(path)
	require.NoError(t, err)
	assert.Len(t, configs, 2)

	_, err = LoadCommissionSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
