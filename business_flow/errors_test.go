package businessflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/amirphl/commission-engine/models"
	"github.com/stretchr/testify/assert"
)

func TestBeneficiaryNotFoundError(t *testing.T) {
	err := newBeneficiaryNotFound(models.UserRoleTalukManager)

	assert.True(t, IsBeneficiaryNotFound(err))
	assert.Contains(t, err.Error(), "taluk_manager")

	wrapped := &DistributionError{Stage: StageResolving, Err: fmt.Errorf("resolve chain: %w", err)}
	assert.True(t, IsBeneficiaryNotFound(wrapped))

	role, ok := MissingRole(wrapped)
	assert.True(t, ok)
	assert.Equal(t, models.UserRoleTalukManager, role)

	_, ok = MissingRole(ErrConfigNotFound)
	assert.False(t, ok)
}

func TestBusinessError(t *testing.T) {
	cause := errors.New("timeout")
	err := NewBusinessErrorf("HIERARCHY_LOOKUP_FAILED", "Failed to look up %s", cause, models.UserRoleAdmin)

	assert.Equal(t, "Failed to look up admin: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bare", NewBusinessError("X", "bare", nil).Error())
}

func TestDistributionErrorStage(t *testing.T) {
	err := &DistributionError{Stage: StageApplying, Err: ErrAlreadyDistributed}

	assert.Equal(t, StageApplying, StageOf(err))
	assert.Equal(t, StageFailed, StageOf(errors.New("plain")))
	assert.True(t, IsAlreadyDistributed(err))
	assert.Contains(t, err.Error(), "applying")
}

func TestErrorGroups(t *testing.T) {
	tests := []struct {
		err            error
		invalidRequest bool
		invalidConfig  bool
	}{
		{err: ErrInvalidAmount, invalidRequest: true},
		{err: ErrServiceTypeRequired, invalidRequest: true},
		{err: ErrTransactionRefRequired, invalidRequest: true},
		{err: fmt.Errorf("wrapped: %w", ErrCustomerRequired), invalidRequest: true},
		{err: ErrNegativeRate, invalidConfig: true},
		{err: ErrRateSumMismatch, invalidConfig: true},
		{err: ErrTotalRateOutOfRange, invalidConfig: true},
		{err: ErrInvalidConfigWindow, invalidConfig: true},
		{err: ErrConfigNotFound},
		{err: ErrIncidentResolved},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.invalidRequest, IsInvalidDistributionRequest(tt.err))
			assert.Equal(t, tt.invalidConfig, IsInvalidCommissionConfig(tt.err))
		})
	}
}

func TestIncidentCode(t *testing.T) {
	assert.Equal(t, IncidentCodeConfigNotFound, incidentCode(ErrConfigNotFound))
	assert.Equal(t, IncidentCodeBeneficiaryNotFound, incidentCode(newBeneficiaryNotFound(models.UserRoleAdmin)))
	assert.Equal(t, IncidentCodePersistenceFailed, incidentCode(errors.New("deadlock detected")))
}
