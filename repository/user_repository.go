package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db),
	}
}

// ByMobile finds a user by mobile number
func (r *UserRepositoryImpl) ByMobile(ctx context.Context, mobile string) (*models.User, error) {
	db := r.getDB(ctx)
	var user models.User
	err := db.Where("mobile = ?", mobile).Last(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FirstActive finds the lowest-id active user matching the filter
func (r *UserRepositoryImpl) FirstActive(ctx context.Context, filter models.UserFilter) (*models.User, error) {
	filter.IsActive = utils.ToPtr(true)

	db := r.getDB(ctx)
	var user models.User
	err := r.applyFilter(db.Model(&models.User{}), filter).Order("id ASC").First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// AddToWalletBalance increments the wallet balance in a single UPDATE so that
// concurrent credits to the same user never lose an update. The row stays
// locked until the surrounding transaction ends.
func (r *UserRepositoryImpl) AddToWalletBalance(ctx context.Context, userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	var user models.User
	result := db.Model(&user).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "wallet_balance"}}}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"wallet_balance": gorm.Expr("wallet_balance + ?", delta),
			"updated_at":     utils.UTCNow(),
		})
	if result.Error != nil {
		err = fmt.Errorf("failed to update wallet balance of user %d: %w", userID, result.Error)
	} else if result.RowsAffected == 0 {
		err = fmt.Errorf("user %d: %w", userID, gorm.ErrRecordNotFound)
	}

	if err = finish(db, shouldCommit, err); err != nil {
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

// ByFilter retrieves users based on filter criteria
func (r *UserRepositoryImpl) ByFilter(ctx context.Context, filter models.UserFilter, orderBy string, limit, offset int) ([]*models.User, error) {
	db := r.getDB(ctx)
	var users []*models.User

	query := r.applyFilter(db.Model(&models.User{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("id ASC")
	}

	err := paginate(query, limit, offset).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of users matching the filter
func (r *UserRepositoryImpl) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := r.applyFilter(db.Model(&models.User{}), filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any user matching the filter exists
func (r *UserRepositoryImpl) Exists(ctx context.Context, filter models.UserFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *UserRepositoryImpl) applyFilter(query *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Mobile != nil {
		query = query.Where("mobile = ?", *filter.Mobile)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.District != nil {
		query = query.Where("district = ?", *filter.District)
	}
	if filter.Taluk != nil {
		query = query.Where("taluk = ?", *filter.Taluk)
	}
	if filter.Pincode != nil {
		query = query.Where("pincode = ?", *filter.Pincode)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}
