package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger persists distributions: commission rows, wallet credits and the
// matching ledger entries, all in one database transaction.
type Ledger interface {
	// Prior returns the already applied distribution for the reference, or nil
	Prior(ctx context.Context, serviceType string, transactionRef int64) (*DistributionResult, error)
	// Apply persists the plan. A reference that was already applied yields
	// the prior result together with ErrAlreadyDistributed.
	Apply(ctx context.Context, plan *DistributionPlan) (*DistributionResult, error)
}

// LedgerImpl implements Ledger
type LedgerImpl struct {
	commissionRepo  repository.CommissionTransactionRepository
	userRepo        repository.UserRepository
	walletRepo      repository.WalletLedgerRepository
	db              *gorm.DB
	immediateCredit bool
}

// NewLedger creates a ledger. With immediateCredit rows are created paid,
// otherwise pending until settlement. Wallets are credited either way.
func NewLedger(
	commissionRepo repository.CommissionTransactionRepository,
	userRepo repository.UserRepository,
	walletRepo repository.WalletLedgerRepository,
	db *gorm.DB,
	immediateCredit bool,
) Ledger {
	return &LedgerImpl{
		commissionRepo:  commissionRepo,
		userRepo:        userRepo,
		walletRepo:      walletRepo,
		db:              db,
		immediateCredit: immediateCredit,
	}
}

func (l *LedgerImpl) Prior(ctx context.Context, serviceType string, transactionRef int64) (*DistributionResult, error) {
	rows, err := l.commissionRepo.ByReference(ctx, serviceType, transactionRef)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to load prior distribution", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	result := resultFromTransactions(serviceType, transactionRef, rows)
	result.AlreadyDistributed = true
	return result, nil
}

func (l *LedgerImpl) Apply(ctx context.Context, plan *DistributionPlan) (*DistributionResult, error) {
	if plan == nil || len(plan.Shares) == 0 {
		result := &DistributionResult{TotalDistributed: decimal.Zero, Beneficiaries: []BeneficiaryResult{}}
		if plan != nil {
			result.ServiceType = plan.ServiceType
			result.TransactionRef = plan.TransactionRef
		}
		return result, nil
	}

	if plan.DistributionID == uuid.Nil {
		plan.DistributionID = uuid.New()
	}

	var prior *DistributionResult
	var rows []*models.CommissionTransaction

	err := repository.WithTransaction(ctx, l.db, func(txCtx context.Context) error {
		existing, err := l.commissionRepo.ByReference(txCtx, plan.ServiceType, plan.TransactionRef)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			prior = resultFromTransactions(plan.ServiceType, plan.TransactionRef, existing)
			return ErrAlreadyDistributed
		}

		rows = l.buildTransactions(plan)
		if err := l.commissionRepo.SaveBatch(txCtx, rows); err != nil {
			return err
		}

		// Credit wallets in ascending user id so that two distributions
		// sharing beneficiaries always lock rows in the same order.
		ordered := make([]*models.CommissionTransaction, len(rows))
		copy(ordered, rows)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

		entries := make([]*models.WalletLedgerEntry, 0, len(ordered))
		for _, row := range ordered {
			balance, err := l.userRepo.AddToWalletBalance(txCtx, row.UserID, row.Amount)
			if err != nil {
				return err
			}
			entries = append(entries, &models.WalletLedgerEntry{
				CorrelationID: plan.DistributionID,
				UserID:        row.UserID,
				Amount:        row.Amount,
				Type:          models.LedgerEntryTypeCredit,
				Description:   fmt.Sprintf("%s commission for %s #%d", row.Role, plan.ServiceType, plan.TransactionRef),
				ServiceType:   models.ServiceTypeCommission,
				BalanceAfter:  balance,
				ReferenceType: models.LedgerReferenceCommission,
				ReferenceID:   utils.ToPtr(row.ID),
			})
		}

		return l.walletRepo.SaveBatch(txCtx, entries)
	})

	switch {
	case err == nil:
		return resultFromTransactions(plan.ServiceType, plan.TransactionRef, rows), nil
	case errors.Is(err, ErrAlreadyDistributed):
		prior.AlreadyDistributed = true
		return prior, ErrAlreadyDistributed
	case isUniqueViolation(err):
		// A concurrent call for the same reference committed first
		existing, lerr := l.Prior(ctx, plan.ServiceType, plan.TransactionRef)
		if lerr != nil {
			return nil, lerr
		}
		if existing == nil {
			return nil, NewBusinessError("LEDGER_APPLY_FAILED", "Failed to apply distribution", err)
		}
		return existing, ErrAlreadyDistributed
	default:
		return nil, NewBusinessError("LEDGER_APPLY_FAILED", "Failed to apply distribution", err)
	}
}

func (l *LedgerImpl) buildTransactions(plan *DistributionPlan) []*models.CommissionTransaction {
	status := models.CommissionStatusPending
	now := utils.UTCNow()
	if l.immediateCredit {
		status = models.CommissionStatusPaid
	}

	rows := make([]*models.CommissionTransaction, 0, len(plan.Shares))
	for _, share := range plan.Shares {
		row := &models.CommissionTransaction{
			DistributionID: plan.DistributionID,
			ServiceType:    plan.ServiceType,
			TransactionRef: plan.TransactionRef,
			UserID:         share.UserID,
			Role:           share.Role,
			BaseAmount:     plan.BaseAmount,
			Percentage:     share.Percentage,
			Amount:         share.Amount,
			Status:         status,
		}
		if l.immediateCredit {
			row.PaidAt = utils.ToPtr(now)
		}
		rows = append(rows, row)
	}
	return rows
}

// isUniqueViolation detects a unique constraint failure whether or not gorm
// translated the driver error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
}
