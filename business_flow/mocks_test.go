package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type mockConfigResolver struct {
	mock.Mock
}

func (m *mockConfigResolver) Resolve(ctx context.Context, serviceType string, provider *string, at time.Time) (*models.CommissionConfig, error) {
	args := m.Called(ctx, serviceType, provider, at)
	cfg, _ := args.Get(0).(*models.CommissionConfig)
	return cfg, args.Error(1)
}

func (m *mockConfigResolver) Invalidate(ctx context.Context, serviceType string) {
	m.Called(ctx, serviceType)
}

type mockHierarchyResolver struct {
	mock.Mock
}

func (m *mockHierarchyResolver) Resolve(ctx context.Context, customerID uint) ([]Beneficiary, error) {
	args := m.Called(ctx, customerID)
	chain, _ := args.Get(0).([]Beneficiary)
	return chain, args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Prior(ctx context.Context, serviceType string, transactionRef int64) (*DistributionResult, error) {
	args := m.Called(ctx, serviceType, transactionRef)
	res, _ := args.Get(0).(*DistributionResult)
	return res, args.Error(1)
}

func (m *mockLedger) Apply(ctx context.Context, plan *DistributionPlan) (*DistributionResult, error) {
	args := m.Called(ctx, plan)
	if fn, ok := args.Get(0).(func(context.Context, *DistributionPlan) *DistributionResult); ok {
		return fn(ctx, plan), args.Error(1)
	}
	res, _ := args.Get(0).(*DistributionResult)
	return res, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return m.Called(ctx, eventType, payload, partitionKey).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

type mockDistributionFlow struct {
	mock.Mock
}

func (m *mockDistributionFlow) Execute(ctx context.Context, in DistributeInput, metadata *ClientMetadata) (*DistributionResult, error) {
	args := m.Called(ctx, in, metadata)
	res, _ := args.Get(0).(*DistributionResult)
	return res, args.Error(1)
}

func (m *mockDistributionFlow) Distribute(ctx context.Context, req *dto.DistributeCommissionRequest, metadata *ClientMetadata) (*dto.DistributeCommissionResponse, error) {
	args := m.Called(ctx, req, metadata)
	resp, _ := args.Get(0).(*dto.DistributeCommissionResponse)
	return resp, args.Error(1)
}

// mockUserRepository mocks the lookups used by hierarchy resolution and the
// wallet credit; other repository methods panic through the nil embedded interface.
type mockUserRepository struct {
	repository.UserRepository
	mock.Mock
}

func (m *mockUserRepository) ByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserRepository) FirstActive(ctx context.Context, filter models.UserFilter) (*models.User, error) {
	args := m.Called(ctx, filter)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserRepository) AddToWalletBalance(ctx context.Context, userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, delta)
	bal, _ := args.Get(0).(decimal.Decimal)
	return bal, args.Error(1)
}
