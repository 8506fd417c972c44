package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/commission-engine/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletLedgerRepositoryImpl implements WalletLedgerRepository interface
type WalletLedgerRepositoryImpl struct {
	*BaseRepository[models.WalletLedgerEntry, models.WalletLedgerFilter]
}

// NewWalletLedgerRepository creates a new wallet ledger repository
func NewWalletLedgerRepository(db *gorm.DB) WalletLedgerRepository {
	return &WalletLedgerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WalletLedgerEntry, models.WalletLedgerFilter](db),
	}
}

// ListByUser returns a user's ledger, newest first
func (r *WalletLedgerRepositoryImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.WalletLedgerEntry, error) {
	return r.ByFilter(ctx, models.WalletLedgerFilter{UserID: &userID}, "id DESC", limit, offset)
}

// SumByUser returns credits minus debits for a user
func (r *WalletLedgerRepositoryImpl) SumByUser(ctx context.Context, userID uint) (decimal.Decimal, error) {
	db := r.getDB(ctx)

	var row struct {
		Total decimal.Decimal
	}
	err := db.Model(&models.WalletLedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE amount END), 0) AS total", models.LedgerEntryTypeDebit).
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger of user %d: %w", userID, err)
	}
	return row.Total, nil
}

// ByFilter retrieves ledger entries based on filter criteria
func (r *WalletLedgerRepositoryImpl) ByFilter(ctx context.Context, filter models.WalletLedgerFilter, orderBy string, limit, offset int) ([]*models.WalletLedgerEntry, error) {
	db := r.getDB(ctx)
	var entries []*models.WalletLedgerEntry

	query := r.applyFilter(db.Model(&models.WalletLedgerEntry{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}

	err := paginate(query, limit, offset).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of ledger entries matching the filter
func (r *WalletLedgerRepositoryImpl) Count(ctx context.Context, filter models.WalletLedgerFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := r.applyFilter(db.Model(&models.WalletLedgerEntry{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any ledger entry matching the filter exists
func (r *WalletLedgerRepositoryImpl) Exists(ctx context.Context, filter models.WalletLedgerFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *WalletLedgerRepositoryImpl) applyFilter(query *gorm.DB, filter models.WalletLedgerFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CorrelationID != nil {
		query = query.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.ReferenceType != nil {
		query = query.Where("reference_type = ?", *filter.ReferenceType)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
