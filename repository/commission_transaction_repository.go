package repository

import (
	"context"
	"time"

	"github.com/amirphl/commission-engine/models"
	"gorm.io/gorm"
)

// CommissionTransactionRepositoryImpl implements CommissionTransactionRepository interface
type CommissionTransactionRepositoryImpl struct {
	*BaseRepository[models.CommissionTransaction, models.CommissionTransactionFilter]
}

// NewCommissionTransactionRepository creates a new commission transaction repository
func NewCommissionTransactionRepository(db *gorm.DB) CommissionTransactionRepository {
	return &CommissionTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionTransaction, models.CommissionTransactionFilter](db),
	}
}

// ByReference finds every beneficiary row of one distribution
func (r *CommissionTransactionRepositoryImpl) ByReference(ctx context.Context, serviceType string, transactionRef int64) ([]*models.CommissionTransaction, error) {
	db := r.getDB(ctx)
	var commissions []*models.CommissionTransaction
	err := db.Where("service_type = ? AND transaction_ref = ?", serviceType, transactionRef).
		Order("id ASC").
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

// ListPending gets commissions awaiting settlement, oldest first
func (r *CommissionTransactionRepositoryImpl) ListPending(ctx context.Context, limit, offset int) ([]*models.CommissionTransaction, error) {
	status := models.CommissionStatusPending
	return r.ByFilter(ctx, models.CommissionTransactionFilter{Status: &status}, "id ASC", limit, offset)
}

// ListByUser gets a beneficiary's commissions, newest first
func (r *CommissionTransactionRepositoryImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.CommissionTransaction, error) {
	return r.ByFilter(ctx, models.CommissionTransactionFilter{UserID: &userID}, "created_at DESC, id DESC", limit, offset)
}

// MarkPaid moves pending commissions to paid and returns how many changed
func (r *CommissionTransactionRepositoryImpl) MarkPaid(ctx context.Context, ids []uint, paidAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Model(&models.CommissionTransaction{}).
		Where("id IN ? AND status = ?", ids, models.CommissionStatusPending).
		Updates(map[string]any{
			"status":     models.CommissionStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	if err = finish(db, shouldCommit, result.Error); err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

// MarkFailed moves pending commissions to failed and returns how many changed
func (r *CommissionTransactionRepositoryImpl) MarkFailed(ctx context.Context, ids []uint, reason string, failedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Model(&models.CommissionTransaction{}).
		Where("id IN ? AND status = ?", ids, models.CommissionStatusPending).
		Updates(map[string]any{
			"status":         models.CommissionStatusFailed,
			"failed_at":      failedAt,
			"failure_reason": reason,
			"updated_at":     failedAt,
		})
	if err = finish(db, shouldCommit, result.Error); err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

// ByFilter retrieves commission transactions based on filter criteria
func (r *CommissionTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionTransactionFilter, orderBy string, limit, offset int) ([]*models.CommissionTransaction, error) {
	db := r.getDB(ctx)
	var commissions []*models.CommissionTransaction

	query := r.applyFilter(db.Model(&models.CommissionTransaction{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}

	err := paginate(query, limit, offset).Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

// Count returns the number of commission transactions matching the filter
func (r *CommissionTransactionRepositoryImpl) Count(ctx context.Context, filter models.CommissionTransactionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := r.applyFilter(db.Model(&models.CommissionTransaction{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any commission transaction matching the filter exists
func (r *CommissionTransactionRepositoryImpl) Exists(ctx context.Context, filter models.CommissionTransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies the filter to the query
func (r *CommissionTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.DistributionID != nil {
		query = query.Where("distribution_id = ?", *filter.DistributionID)
	}
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.TransactionRef != nil {
		query = query.Where("transaction_ref = ?", *filter.TransactionRef)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.PaidAfter != nil {
		query = query.Where("paid_at > ?", *filter.PaidAfter)
	}
	if filter.PaidBefore != nil {
		query = query.Where("paid_at < ?", *filter.PaidBefore)
	}
	return query
}
