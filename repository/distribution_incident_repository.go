package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DistributionIncidentRepositoryImpl implements DistributionIncidentRepository interface
type DistributionIncidentRepositoryImpl struct {
	*BaseRepository[models.DistributionIncident, models.DistributionIncidentFilter]
}

// NewDistributionIncidentRepository creates a new distribution incident repository
func NewDistributionIncidentRepository(db *gorm.DB) DistributionIncidentRepository {
	return &DistributionIncidentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DistributionIncident, models.DistributionIncidentFilter](db),
	}
}

// ByReference finds the incident of one distribution
func (r *DistributionIncidentRepositoryImpl) ByReference(ctx context.Context, serviceType string, transactionRef int64) (*models.DistributionIncident, error) {
	db := r.getDB(ctx)
	var incident models.DistributionIncident
	err := db.Where("service_type = ? AND transaction_ref = ?", serviceType, transactionRef).Last(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &incident, nil
}

// Upsert inserts the incident, or refreshes an existing one with the arguments
// and failure of the latest call so that a retry replays what the caller last sent
func (r *DistributionIncidentRepositoryImpl) Upsert(ctx context.Context, incident *models.DistributionIncident) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_type"}, {Name: "transaction_ref"}},
		DoUpdates: clause.Assignments(map[string]any{
			"customer_id": incident.CustomerID,
			"base_amount": incident.BaseAmount,
			"provider":    incident.Provider,
			"reason":      incident.Reason,
			"error_code":  incident.ErrorCode,
			"updated_at":  utils.UTCNow(),
		}),
	}).Create(incident).Error
	return finish(db, shouldCommit, err)
}

// ListRetryable returns open incidents that have not exhausted their attempts
func (r *DistributionIncidentRepositoryImpl) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*models.DistributionIncident, error) {
	status := models.IncidentStatusOpen
	return r.ByFilter(ctx, models.DistributionIncidentFilter{Status: &status, MaxAttempts: &maxAttempts}, "id ASC", limit, 0)
}

// RecordAttempt bumps the attempt counter and stores the outcome of a retry
func (r *DistributionIncidentRepositoryImpl) RecordAttempt(ctx context.Context, id uint, status models.IncidentStatus, reason string, at time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"status":          status,
		"last_attempt_at": at,
		"updated_at":      at,
	}
	if reason != "" {
		updates["reason"] = reason
	}
	if status == models.IncidentStatusResolved {
		updates["resolved_at"] = at
	}

	err = db.Model(&models.DistributionIncident{}).Where("id = ?", id).Updates(updates).Error
	return finish(db, shouldCommit, err)
}

// ByFilter retrieves incidents based on filter criteria
func (r *DistributionIncidentRepositoryImpl) ByFilter(ctx context.Context, filter models.DistributionIncidentFilter, orderBy string, limit, offset int) ([]*models.DistributionIncident, error) {
	db := r.getDB(ctx)
	var incidents []*models.DistributionIncident

	query := r.applyFilter(db.Model(&models.DistributionIncident{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}

	err := paginate(query, limit, offset).Find(&incidents).Error
	if err != nil {
		return nil, err
	}
	return incidents, nil
}

// Count returns the number of incidents matching the filter
func (r *DistributionIncidentRepositoryImpl) Count(ctx context.Context, filter models.DistributionIncidentFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := r.applyFilter(db.Model(&models.DistributionIncident{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any incident matching the filter exists
func (r *DistributionIncidentRepositoryImpl) Exists(ctx context.Context, filter models.DistributionIncidentFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *DistributionIncidentRepositoryImpl) applyFilter(query *gorm.DB, filter models.DistributionIncidentFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.TransactionRef != nil {
		query = query.Where("transaction_ref = ?", *filter.TransactionRef)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.MaxAttempts != nil {
		query = query.Where("attempts < ?", *filter.MaxAttempts)
	}
	return query
}
