package businessflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/amirphl/commission-engine/app/dto"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	testingutil "github.com/amirphl/commission-engine/testing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	distribution businessflow.DistributionFlow
	settlement   businessflow.SettlementFlow
	incidents    businessflow.IncidentFlow
	fixtures     *testingutil.TestFixtures
	db           *testingutil.TestDB
}

func newEngine(tdb *testingutil.TestDB, immediateCredit bool) *engine {
	return newEngineWithWallets(tdb, immediateCredit, nil)
}

// newEngineWithWallets lets the ledger credit wallets through wallets instead of the real user repository
func newEngineWithWallets(tdb *testingutil.TestDB, immediateCredit bool, wallets repository.UserRepository) *engine {
	db := tdb.DB
	userRepo := repository.NewUserRepository(db)
	if wallets == nil {
		wallets = userRepo
	}
	configRepo := repository.NewCommissionConfigRepository(db)
	commissionRepo := repository.NewCommissionTransactionRepository(db)
	walletRepo := repository.NewWalletLedgerRepository(db)
	incidentRepo := repository.NewDistributionIncidentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	distribution := businessflow.NewDistributionFlow(
		businessflow.NewConfigResolver(configRepo, nil, nil),
		businessflow.NewGeographicHierarchyResolver(userRepo),
		businessflow.NewCommissionCalculator(),
		businessflow.NewLedger(commissionRepo, wallets, walletRepo, db, immediateCredit),
		incidentRepo,
		auditRepo,
		nil,
	)

	return &engine{
		distribution: distribution,
		settlement:   businessflow.NewSettlementFlow(commissionRepo, userRepo, walletRepo, auditRepo),
		incidents:    businessflow.NewIncidentFlow(incidentRepo, auditRepo, distribution, 3),
		fixtures:     testingutil.NewTestFixtures(tdb),
		db:           tdb,
	}
}

func (e *engine) distribute(ctx context.Context, ref int64, customerID uint) (*businessflow.DistributionResult, error) {
	return e.distribution.Execute(ctx, businessflow.DistributeInput{
		ServiceType:    "recharge",
		TransactionRef: ref,
		BaseAmount:     decimal.RequireFromString("100"),
		CustomerID:     customerID,
	}, nil)
}

func (e *engine) count(model any, where string, args ...any) int64 {
	var n int64
	e.db.DB.Model(model).Where(where, args...).Count(&n)
	return n
}

func balanceOf(t *testing.T, e *engine, userID uint) decimal.Decimal {
	var user models.User
	require.NoError(t, e.db.DB.First(&user, userID).Error)
	return user.WalletBalance
}

func TestDistribution_ReferenceScenario(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		result, err := e.distribute(ctx, 1001, h.Customer.ID)
		require.NoError(t, err)
		assert.False(t, result.AlreadyDistributed)
		assert.Equal(t, "6.00", result.TotalDistributed.StringFixed(2))
		require.Len(t, result.Beneficiaries, 5)

		want := map[uint]string{
			h.ServiceAgent.ID:  "3.00",
			h.TalukManager.ID:  "1.00",
			h.BranchManager.ID: "0.50",
			h.Admin.ID:         "0.50",
			h.Customer.ID:      "1.00",
		}
		for userID, amount := range want {
			assert.Equal(t, amount, balanceOf(t, e, userID).StringFixed(2), "user %d", userID)
		}
		for _, b := range result.Beneficiaries {
			assert.Equal(t, models.CommissionStatusPending, b.Status)
		}
		assert.EqualValues(t, 5, e.count(&models.WalletLedgerEntry{}, "correlation_id = ?", *result.DistributionID))
		return nil
	})
}

func TestDistribution_IsIdempotent(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		first, err := e.distribute(ctx, 1001, h.Customer.ID)
		require.NoError(t, err)
		second, err := e.distribute(ctx, 1001, h.Customer.ID)
		require.NoError(t, err)

		assert.True(t, second.AlreadyDistributed)
		assert.Equal(t, *first.DistributionID, *second.DistributionID)
		assert.True(t, first.TotalDistributed.Equal(second.TotalDistributed))
		assert.EqualValues(t, 5, e.count(&models.CommissionTransaction{}, "service_type = ? AND transaction_ref = ?", "recharge", 1001))
		assert.Equal(t, "3.00", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))
		return nil
	})
}

func TestDistribution_ConcurrentSameReference(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		const workers = 8
		var wg sync.WaitGroup
		results := make([]*businessflow.DistributionResult, workers)
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = e.distribute(ctx, 4242, h.Customer.ID)
			}(i)
		}
		wg.Wait()

		fresh := 0
		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			if !results[i].AlreadyDistributed {
				fresh++
			}
		}
		assert.Equal(t, 1, fresh)
		assert.EqualValues(t, 5, e.count(&models.CommissionTransaction{}, "transaction_ref = ?", 4242))
		assert.Equal(t, "3.00", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))
		return nil
	})
}

func TestDistribution_ConcurrentDistinctReferences(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, true)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(ref int64) {
				defer wg.Done()
				if _, err := e.distribute(ctx, ref, h.Customer.ID); err != nil {
					errs <- fmt.Errorf("ref %d: %w", ref, err)
				}
			}(int64(5000 + i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}

		assert.Equal(t, "30.00", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))
		assert.Equal(t, "5.00", balanceOf(t, e, h.Admin.ID).StringFixed(2))
		assert.EqualValues(t, n*5, e.count(&models.CommissionTransaction{}, "status = ?", models.CommissionStatusPaid))

		for _, id := range []uint{h.Admin.ID, h.BranchManager.ID, h.TalukManager.ID, h.ServiceAgent.ID, h.Customer.ID} {
			rec, err := e.settlement.ReconcileWallet(ctx, id)
			require.NoError(t, err)
			assert.True(t, rec.Consistent, "user %d balance %s ledger %s", id, rec.Balance, rec.LedgerSum)
		}
		return nil
	})
}

// flakyWallets fails the failOn-th wallet credit, simulating a crash mid-distribution
type flakyWallets struct {
	repository.UserRepository
	failOn int
	calls  int
}

func (f *flakyWallets) AddToWalletBalance(ctx context.Context, userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	f.calls++
	if f.calls == f.failOn {
		return decimal.Zero, errors.New("connection lost")
	}
	return f.UserRepository.AddToWalletBalance(ctx, userID, delta)
}

func TestDistribution_PartialCreditFailureRollsBack(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		wallets := &flakyWallets{UserRepository: repository.NewUserRepository(tdb.DB), failOn: 3}
		broken := newEngineWithWallets(tdb, false, wallets)

		h, err := broken.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = broken.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)
		everyone := []uint{h.Admin.ID, h.BranchManager.ID, h.TalukManager.ID, h.ServiceAgent.ID, h.Customer.ID}

		_, err = broken.distribute(ctx, 6001, h.Customer.ID)
		require.Error(t, err)
		assert.Equal(t, businessflow.StageApplying, businessflow.StageOf(err))
		assert.Equal(t, 3, wallets.calls)

		assert.Zero(t, broken.count(&models.CommissionTransaction{}, "service_type = ? AND transaction_ref = ?", "recharge", 6001))
		assert.Zero(t, broken.count(&models.WalletLedgerEntry{}, "1 = 1"))
		for _, id := range everyone {
			assert.True(t, balanceOf(t, broken, id).IsZero(), "user %d", id)
		}
		assert.EqualValues(t, 1, broken.count(&models.DistributionIncident{}, "transaction_ref = ? AND error_code = ?", 6001, businessflow.IncidentCodePersistenceFailed))

		healthy := newEngine(tdb, false)
		result, err := healthy.distribute(ctx, 6001, h.Customer.ID)
		require.NoError(t, err)
		assert.False(t, result.AlreadyDistributed)
		assert.EqualValues(t, 5, healthy.count(&models.CommissionTransaction{}, "service_type = ? AND transaction_ref = ?", "recharge", 6001))
		assert.EqualValues(t, 5, healthy.count(&models.WalletLedgerEntry{}, "1 = 1"))
		assert.Equal(t, "3.00", balanceOf(t, healthy, h.ServiceAgent.ID).StringFixed(2))
		assert.Equal(t, "0.50", balanceOf(t, healthy, h.Admin.ID).StringFixed(2))

		again, err := healthy.distribute(ctx, 6001, h.Customer.ID)
		require.NoError(t, err)
		assert.True(t, again.AlreadyDistributed)
		assert.EqualValues(t, 5, healthy.count(&models.CommissionTransaction{}, "transaction_ref = ?", 6001))
		return nil
	})
}

func TestDistribution_CustomerIsPincodeAgent(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		result, err := e.distribute(ctx, 6101, h.ServiceAgent.ID)
		require.NoError(t, err)
		require.Len(t, result.Beneficiaries, 4)
		for _, b := range result.Beneficiaries {
			assert.NotEqual(t, models.UserRoleRegisteredUser, b.Role)
		}

		assert.EqualValues(t, 4, e.count(&models.CommissionTransaction{}, "transaction_ref = ?", 6101))
		assert.EqualValues(t, 1, e.count(&models.WalletLedgerEntry{}, "user_id = ?", h.ServiceAgent.ID))
		assert.Equal(t, "3.00", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))
		assert.True(t, balanceOf(t, e, h.Customer.ID).IsZero())
		return nil
	})
}

func TestDistribution_MissingAgentWritesNothing(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		require.NoError(t, e.fixtures.DeactivateUser(h.ServiceAgent.ID))
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		_, err = e.distribute(ctx, 7001, h.Customer.ID)
		require.Error(t, err)
		role, ok := businessflow.MissingRole(err)
		require.True(t, ok)
		assert.Equal(t, models.UserRoleServiceAgent, role)

		assert.Zero(t, e.count(&models.CommissionTransaction{}, "transaction_ref = ?", 7001))
		assert.Zero(t, e.count(&models.WalletLedgerEntry{}, "1 = 1"))
		assert.True(t, balanceOf(t, e, h.Admin.ID).IsZero())

		var incident models.DistributionIncident
		require.NoError(t, tdb.DB.Where("transaction_ref = ?", 7001).First(&incident).Error)
		assert.Equal(t, models.IncidentStatusOpen, incident.Status)
		assert.Equal(t, businessflow.IncidentCodeBeneficiaryNotFound, incident.ErrorCode)
		return nil
	})
}

func TestDistribution_NoConfigRecordsIncident(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)

		_, err = e.distribute(ctx, 7002, h.Customer.ID)
		assert.True(t, businessflow.IsConfigNotFound(err))
		assert.Equal(t, businessflow.StageResolving, businessflow.StageOf(err))
		assert.EqualValues(t, 1, e.count(&models.DistributionIncident{}, "transaction_ref = ? AND error_code = ?", 7002, businessflow.IncidentCodeConfigNotFound))
		return nil
	})
}

func TestIncident_RefreshedByLatestCall(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)

		_, err = e.distribute(ctx, 8101, h.ServiceAgent.ID)
		require.True(t, businessflow.IsConfigNotFound(err))

		airtel := "airtel"
		_, err = e.distribution.Execute(ctx, businessflow.DistributeInput{
			ServiceType:    "recharge",
			TransactionRef: 8101,
			BaseAmount:     decimal.RequireFromString("250"),
			Provider:       &airtel,
			CustomerID:     h.Customer.ID,
		}, nil)
		require.True(t, businessflow.IsConfigNotFound(err))

		var incidents []models.DistributionIncident
		require.NoError(t, tdb.DB.Where("transaction_ref = ?", 8101).Find(&incidents).Error)
		require.Len(t, incidents, 1)
		incident := incidents[0]
		assert.Equal(t, h.Customer.ID, incident.CustomerID)
		assert.Equal(t, "250.00", incident.BaseAmount.StringFixed(2))
		require.NotNil(t, incident.Provider)
		assert.Equal(t, "airtel", *incident.Provider)

		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)
		resp, err := e.incidents.Retry(ctx, incident.ID, nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Distribution)
		assert.Len(t, resp.Distribution.Beneficiaries, 5)
		assert.Equal(t, "2.50", balanceOf(t, e, h.Customer.ID).StringFixed(2))
		assert.Equal(t, "7.50", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))
		return nil
	})
}

func TestIncidentRetry_AfterConfigIsAdded(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)

		_, err = e.distribute(ctx, 8001, h.Customer.ID)
		require.Error(t, err)

		var incident models.DistributionIncident
		require.NoError(t, tdb.DB.Where("transaction_ref = ?", 8001).First(&incident).Error)

		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		resp, err := e.incidents.Retry(ctx, incident.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, string(models.IncidentStatusResolved), resp.Incident.Status)
		assert.Equal(t, 1, resp.Incident.Attempts)
		require.NotNil(t, resp.Distribution)
		assert.Len(t, resp.Distribution.Beneficiaries, 5)

		_, err = e.incidents.Retry(ctx, incident.ID, nil)
		assert.True(t, businessflow.IsIncidentResolved(err))
		return nil
	})
}

func TestSettlement_PendingMarkPaidAndUserHistory(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)

		for _, ref := range []int64{9001, 9002} {
			_, err := e.distribute(ctx, ref, h.Customer.ID)
			require.NoError(t, err)
		}

		pending, err := e.settlement.GetPendingCommissions(ctx, &dto.ListCommissionsRequest{})
		require.NoError(t, err)
		require.Len(t, pending.Items, 10)
		assert.Equal(t, "12.00", pending.Total.StringFixed(2))

		agentHistory, err := e.settlement.GetCommissionsForUser(ctx, h.ServiceAgent.ID, &dto.ListCommissionsRequest{})
		require.NoError(t, err)
		require.Len(t, agentHistory.Items, 2)
		ids := []uint{agentHistory.Items[0].ID, agentHistory.Items[1].ID}

		// duplicates and unknown ids do not count
		resp, err := e.settlement.MarkPaid(ctx, &dto.MarkCommissionsPaidRequest{IDs: append(ids, ids[0], 999999)}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Requested)
		assert.EqualValues(t, 2, resp.Updated)

		again, err := e.settlement.MarkPaid(ctx, &dto.MarkCommissionsPaidRequest{IDs: ids}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 0, again.Updated)

		pending, err = e.settlement.GetPendingCommissions(ctx, &dto.ListCommissionsRequest{})
		require.NoError(t, err)
		assert.Len(t, pending.Items, 8)

		agentHistory, err = e.settlement.GetCommissionsForUser(ctx, h.ServiceAgent.ID, &dto.ListCommissionsRequest{})
		require.NoError(t, err)
		for _, item := range agentHistory.Items {
			assert.Equal(t, string(models.CommissionStatusPaid), item.Status)
			assert.NotNil(t, item.PaidAt)
		}

		_, err = e.settlement.GetCommissionsForUser(ctx, 999999, &dto.ListCommissionsRequest{})
		assert.True(t, businessflow.IsUserNotFound(err))
		return nil
	})
}

func TestSettlement_MarkFailedLeavesWalletUntouched(t *testing.T) {
	testingutil.RunWithDB(t, func(tdb *testingutil.TestDB) error {
		ctx := context.Background()
		e := newEngine(tdb, false)

		h, err := e.fixtures.CreateHierarchy(testingutil.DefaultLocation())
		require.NoError(t, err)
		_, err = e.fixtures.CreateConfig("recharge", nil, testingutil.DefaultRates())
		require.NoError(t, err)
		result, err := e.distribute(ctx, 9101, h.Customer.ID)
		require.NoError(t, err)

		var agentCommission uint
		for _, b := range result.Beneficiaries {
			if b.Role == models.UserRoleServiceAgent {
				agentCommission = b.CommissionID
			}
		}

		resp, err := e.settlement.MarkFailed(ctx, &dto.MarkCommissionsFailedRequest{IDs: []uint{agentCommission}, Reason: "bank rejected"}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, resp.Updated)
		assert.Equal(t, "3.00", balanceOf(t, e, h.ServiceAgent.ID).StringFixed(2))

		paid, err := e.settlement.MarkPaid(ctx, &dto.MarkCommissionsPaidRequest{IDs: []uint{agentCommission}}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 0, paid.Updated)
		return nil
	})
}
