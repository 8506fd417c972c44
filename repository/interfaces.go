// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/commission-engine/models"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// UserRepository defines operations for hierarchy members and their wallets
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByMobile(ctx context.Context, mobile string) (*models.User, error)
	// FirstActive returns the active user with the lowest id matching filter, or nil.
	FirstActive(ctx context.Context, filter models.UserFilter) (*models.User, error)
	// AddToWalletBalance atomically adds delta to the balance and returns the new value.
	AddToWalletBalance(ctx context.Context, userID uint, delta decimal.Decimal) (decimal.Decimal, error)
}

// CommissionConfigRepository defines operations for commission configurations
type CommissionConfigRepository interface {
	Repository[models.CommissionConfig, models.CommissionConfigFilter]
	ListActiveByServiceType(ctx context.Context, serviceType string) ([]*models.CommissionConfig, error)
	Deactivate(ctx context.Context, id uint) (bool, error)
}

// CommissionTransactionRepository defines operations for commission transactions
type CommissionTransactionRepository interface {
	Repository[models.CommissionTransaction, models.CommissionTransactionFilter]
	ByReference(ctx context.Context, serviceType string, transactionRef int64) ([]*models.CommissionTransaction, error)
	ListPending(ctx context.Context, limit, offset int) ([]*models.CommissionTransaction, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.CommissionTransaction, error)
	MarkPaid(ctx context.Context, ids []uint, paidAt time.Time) (int64, error)
	MarkFailed(ctx context.Context, ids []uint, reason string, failedAt time.Time) (int64, error)
}

// WalletLedgerRepository defines operations for wallet ledger entries
type WalletLedgerRepository interface {
	Repository[models.WalletLedgerEntry, models.WalletLedgerFilter]
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.WalletLedgerEntry, error)
	SumByUser(ctx context.Context, userID uint) (decimal.Decimal, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// DistributionIncidentRepository defines operations for failed distribution records
type DistributionIncidentRepository interface {
	Repository[models.DistributionIncident, models.DistributionIncidentFilter]
	ByReference(ctx context.Context, serviceType string, transactionRef int64) (*models.DistributionIncident, error)
	// Upsert records an incident, keeping attempts and status of an existing one.
	Upsert(ctx context.Context, incident *models.DistributionIncident) error
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*models.DistributionIncident, error)
	RecordAttempt(ctx context.Context, id uint, status models.IncidentStatus, reason string, at time.Time) error
}
