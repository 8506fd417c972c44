package repository

import (
	"context"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/utils"
	"gorm.io/gorm"
)

// CommissionConfigRepositoryImpl implements CommissionConfigRepository interface
type CommissionConfigRepositoryImpl struct {
	*BaseRepository[models.CommissionConfig, models.CommissionConfigFilter]
}

// NewCommissionConfigRepository creates a new commission config repository
func NewCommissionConfigRepository(db *gorm.DB) CommissionConfigRepository {
	return &CommissionConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CommissionConfig, models.CommissionConfigFilter](db),
	}
}

// ListActiveByServiceType returns every active config of a service type,
// regardless of provider or validity window.
func (r *CommissionConfigRepositoryImpl) ListActiveByServiceType(ctx context.Context, serviceType string) ([]*models.CommissionConfig, error) {
	db := r.getDB(ctx)
	var configs []*models.CommissionConfig
	err := db.Where("service_type = ? AND is_active = ?", serviceType, true).
		Order("id ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// Deactivate turns a config off; it reports whether a row was changed
func (r *CommissionConfigRepositoryImpl) Deactivate(ctx context.Context, id uint) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&models.CommissionConfig{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "updated_at": utils.UTCNow()})
	err = result.Error
	if err = finish(db, shouldCommit, err); err != nil {
		return false, err
	}
	return result.RowsAffected > 0, nil
}

// ByFilter retrieves commission configs based on filter criteria
func (r *CommissionConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.CommissionConfigFilter, orderBy string, limit, offset int) ([]*models.CommissionConfig, error) {
	db := r.getDB(ctx)
	var configs []*models.CommissionConfig

	query := r.applyFilter(db.Model(&models.CommissionConfig{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("updated_at DESC")
	}

	err := paginate(query, limit, offset).Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// Count returns the number of commission configs matching the filter
func (r *CommissionConfigRepositoryImpl) Count(ctx context.Context, filter models.CommissionConfigFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := r.applyFilter(db.Model(&models.CommissionConfig{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any commission config matching the filter exists
func (r *CommissionConfigRepositoryImpl) Exists(ctx context.Context, filter models.CommissionConfigFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CommissionConfigRepositoryImpl) applyFilter(query *gorm.DB, filter models.CommissionConfigFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.Provider != nil {
		query = query.Where("provider = ?", *filter.Provider)
	}
	if filter.IsPeakRate != nil {
		query = query.Where("is_peak_rate = ?", *filter.IsPeakRate)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
