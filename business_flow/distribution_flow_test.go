package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/app/services"
	"github.com/amirphl/commission-engine/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type distributionFixture struct {
	configs   *mockConfigResolver
	hierarchy *mockHierarchyResolver
	ledger    *mockLedger
	publisher *mockPublisher
	flow      DistributionFlow
}

func newDistributionFixture() *distributionFixture {
	f := &distributionFixture{
		configs:   &mockConfigResolver{},
		hierarchy: &mockHierarchyResolver{},
		ledger:    &mockLedger{},
		publisher: &mockPublisher{},
	}
	f.flow = NewDistributionFlow(f.configs, f.hierarchy, NewCommissionCalculator(), f.ledger, nil, nil, f.publisher)
	return f
}

func (f *distributionFixture) assertExpectations(t *testing.T) {
	f.configs.AssertExpectations(t)
	f.hierarchy.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func validInput() DistributeInput {
	return DistributeInput{
		ServiceType:    "recharge",
		TransactionRef: 1001,
		BaseAmount:     dec("100"),
		CustomerID:     5,
	}
}

// appliedResult mirrors what the ledger returns for a plan
func appliedResult(plan *DistributionPlan, status models.CommissionStatus) *DistributionResult {
	id := plan.DistributionID
	result := &DistributionResult{
		DistributionID:   &id,
		ServiceType:      plan.ServiceType,
		TransactionRef:   plan.TransactionRef,
		TotalDistributed: plan.Total(),
	}
	for i, s := range plan.Shares {
		result.Beneficiaries = append(result.Beneficiaries, BeneficiaryResult{
			CommissionID: uint(100 + i),
			UserID:       s.UserID,
			Role:         s.Role,
			Percentage:   s.Percentage,
			Amount:       s.Amount,
			Status:       status,
		})
	}
	return result
}

func TestDistributionFlow_Execute_Success(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()
	in := validInput()

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()

	var applied *DistributionPlan
	f.ledger.On("Apply", ctx, mock.MatchedBy(func(p *DistributionPlan) bool {
		return p.ServiceType == "recharge" && p.TransactionRef == 1001 && len(p.Shares) == 5 && p.DistributionID != uuid.Nil
	})).Run(func(args mock.Arguments) {
		applied = args.Get(1).(*DistributionPlan)
	}).Return(func(ctx context.Context, p *DistributionPlan) *DistributionResult {
		return appliedResult(p, models.CommissionStatusPaid)
	}, nil).Once()

	var keys []string
	f.publisher.On("Publish", mock.Anything, services.EventCommissionEarned, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			keys = append(keys, args.String(3))
			var ev CommissionEarnedEvent
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &ev))
			assert.Equal(t, "recharge", ev.ServiceType)
			assert.Equal(t, int64(1001), ev.TransactionRef)
			assert.NotEmpty(t, ev.EventID)
		}).Return(nil).Times(5)

	result, err := f.flow.Execute(ctx, in, nil)
	require.NoError(t, err)
	require.NotNil(t, applied)

	assert.False(t, result.AlreadyDistributed)
	assert.Equal(t, "6.00", result.TotalDistributed.StringFixed(2))
	assert.Len(t, result.Beneficiaries, 5)
	assert.Equal(t, applied.DistributionID, *result.DistributionID)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, keys)
	f.assertExpectations(t)
}

func TestDistributionFlow_Execute_PriorDistribution(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	id := uuid.New()
	prior := &DistributionResult{DistributionID: &id, ServiceType: "recharge", TransactionRef: 1001, TotalDistributed: dec("6")}
	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(prior, nil).Once()

	result, err := f.flow.Execute(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyDistributed)
	assert.Equal(t, id, *result.DistributionID)

	f.configs.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributionFlow_Execute_ConcurrentDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	id := uuid.New()
	winner := &DistributionResult{DistributionID: &id, ServiceType: "recharge", TransactionRef: 1001, TotalDistributed: dec("6")}

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()
	f.ledger.On("Apply", ctx, mock.Anything).Return(winner, ErrAlreadyDistributed).Once()

	result, err := f.flow.Execute(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyDistributed)
	assert.Equal(t, id, *result.DistributionID)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributionFlow_Execute_ResolvingFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("config not found", func(t *testing.T) {
		f := newDistributionFixture()
		f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
		f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(nil, ErrConfigNotFound).Once()

		_, err := f.flow.Execute(ctx, validInput(), nil)
		require.Error(t, err)
		assert.True(t, IsConfigNotFound(err))
		assert.Equal(t, StageResolving, StageOf(err))
		f.hierarchy.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
		f.ledger.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	})

	t.Run("missing hierarchy role", func(t *testing.T) {
		f := newDistributionFixture()
		f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
		f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
		f.hierarchy.On("Resolve", ctx, uint(5)).Return(nil, newBeneficiaryNotFound(models.UserRoleTalukManager)).Once()

		_, err := f.flow.Execute(ctx, validInput(), nil)
		require.Error(t, err)
		role, ok := MissingRole(err)
		require.True(t, ok)
		assert.Equal(t, models.UserRoleTalukManager, role)
		assert.Equal(t, StageResolving, StageOf(err))
		f.ledger.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	})

	t.Run("prior lookup failure", func(t *testing.T) {
		f := newDistributionFixture()
		f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, errors.New("db down")).Once()

		_, err := f.flow.Execute(ctx, validInput(), nil)
		require.Error(t, err)
		assert.Equal(t, StageResolving, StageOf(err))
	})
}

func TestDistributionFlow_Execute_ApplyFailure(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()
	f.ledger.On("Apply", ctx, mock.Anything).Return(nil, NewBusinessError("LEDGER_APPLY_FAILED", "Failed to apply commission distribution", errors.New("serialization failure"))).Once()

	_, err := f.flow.Execute(ctx, validInput(), nil)
	require.Error(t, err)
	assert.Equal(t, StageApplying, StageOf(err))
	assert.False(t, IsAlreadyDistributed(err))
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributionFlow_Execute_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()
	f.ledger.On("Apply", ctx, mock.Anything).Return(func(ctx context.Context, p *DistributionPlan) *DistributionResult {
		return appliedResult(p, models.CommissionStatusPending)
	}, nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker unavailable")).Times(5)

	result, err := f.flow.Execute(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Beneficiaries, 5)
	f.assertExpectations(t)
}

func TestDistributionFlow_Execute_EmptyPlan(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	zero := referenceConfig()
	zero.AdminPct, zero.BranchManagerPct, zero.TalukManagerPct = decimal.Zero, decimal.Zero, decimal.Zero
	zero.ServiceAgentPct, zero.RegisteredUserPct, zero.TotalPct = decimal.Zero, decimal.Zero, decimal.Zero

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(zero, nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()
	f.ledger.On("Apply", ctx, mock.MatchedBy(func(p *DistributionPlan) bool { return len(p.Shares) == 0 })).
		Return(&DistributionResult{ServiceType: "recharge", TransactionRef: 1001, TotalDistributed: decimal.Zero}, nil).Once()

	result, err := f.flow.Execute(ctx, validInput(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Beneficiaries)
	assert.True(t, result.TotalDistributed.IsZero())
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributionFlow_Execute_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*DistributeInput)
		want   error
	}{
		{name: "zero amount", mutate: func(in *DistributeInput) { in.BaseAmount = decimal.Zero }, want: ErrInvalidAmount},
		{name: "negative amount", mutate: func(in *DistributeInput) { in.BaseAmount = dec("-1") }, want: ErrInvalidAmount},
		{name: "blank service type", mutate: func(in *DistributeInput) { in.ServiceType = "   " }, want: ErrServiceTypeRequired},
		{name: "zero reference", mutate: func(in *DistributeInput) { in.TransactionRef = 0 }, want: ErrTransactionRefRequired},
		{name: "missing customer", mutate: func(in *DistributeInput) { in.CustomerID = 0 }, want: ErrCustomerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDistributionFixture()
			in := validInput()
			tt.mutate(&in)

			_, err := f.flow.Execute(ctx, in, nil)
			assert.ErrorIs(t, err, tt.want)
			f.ledger.AssertNotCalled(t, "Prior", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDistributionFlow_Distribute_ProviderNormalization(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()

	blank := "  "
	req := &dto.DistributeCommissionRequest{
		ServiceType:    " recharge ",
		TransactionRef: 1001,
		Amount:         dec("100"),
		Provider:       &blank,
		CustomerID:     5,
	}

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", (*string)(nil), mock.Anything).Return(nil, ErrConfigNotFound).Once()

	resp, err := f.flow.Distribute(ctx, req, nil)
	assert.Nil(t, resp)
	assert.True(t, IsConfigNotFound(err))
	f.assertExpectations(t)
}

func TestDistributionFlow_Distribute_Response(t *testing.T) {
	ctx := context.Background()
	f := newDistributionFixture()
	airtel := "airtel"

	f.ledger.On("Prior", ctx, "recharge", int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, "recharge", &airtel, mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(fullChain(), nil).Once()
	f.ledger.On("Apply", ctx, mock.Anything).Return(func(ctx context.Context, p *DistributionPlan) *DistributionResult {
		return appliedResult(p, models.CommissionStatusPaid)
	}, nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	resp, err := f.flow.Distribute(ctx, &dto.DistributeCommissionRequest{
		ServiceType:    "recharge",
		TransactionRef: 1001,
		Amount:         dec("100"),
		Provider:       &airtel,
		CustomerID:     5,
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DistributionID)
	assert.Len(t, resp.Beneficiaries, 5)
	assert.Equal(t, "paid", resp.Beneficiaries[0].Status)
	assert.Equal(t, "service_agent", resp.Beneficiaries[0].Role)
}

func TestDistributionFlow_MetricsLabelOnlyConfiguredServiceTypes(t *testing.T) {
	ctx := context.Background()
	bogus := "bogus-" + uuid.NewString()
	configured := "metered-" + uuid.NewString()

	f := newDistributionFixture()
	f.ledger.On("Prior", ctx, bogus, int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, bogus, (*string)(nil), mock.Anything).Return(nil, ErrConfigNotFound).Once()

	in := validInput()
	in.ServiceType = bogus
	_, err := f.flow.Execute(ctx, in, nil)
	require.True(t, IsConfigNotFound(err))

	assert.Equal(t, unknownServiceType, serviceTypeLabel(bogus))
	assert.False(t, distributionsTotal.DeleteLabelValues(bogus, outcomeFailed))
	assert.True(t, distributionsTotal.DeleteLabelValues(unknownServiceType, outcomeFailed))

	// once a config resolves, later failures keep the real label
	f = newDistributionFixture()
	f.ledger.On("Prior", ctx, configured, int64(1001)).Return(nil, nil).Once()
	f.configs.On("Resolve", ctx, configured, (*string)(nil), mock.Anything).Return(referenceConfig(), nil).Once()
	f.hierarchy.On("Resolve", ctx, uint(5)).Return(nil, newBeneficiaryNotFound(models.UserRoleAdmin)).Once()

	in.ServiceType = configured
	_, err = f.flow.Execute(ctx, in, nil)
	require.True(t, IsBeneficiaryNotFound(err))

	assert.Equal(t, configured, serviceTypeLabel(configured))
	assert.True(t, distributionsTotal.DeleteLabelValues(configured, outcomeFailed))
	f.assertExpectations(t)
}
