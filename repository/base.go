// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// batchSize caps rows per INSERT; a distribution never writes more than a handful
const batchSize = 100

// BaseRepository carries the generic CRUD shared by every table. Writes join the
// transaction stored in ctx under TxContextKey, or open and close their own.
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{DB: db}
}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TxContextKey).(*gorm.DB)
	return tx, ok && tx != nil
}

// getDB returns the ambient transaction if there is one
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return r.DB.WithContext(ctx)
}

// getDBForWrite reports owned=true when it began the transaction itself; only the
// owner commits, through finish.
func (r *BaseRepository[T, F]) getDBForWrite(ctx context.Context) (db *gorm.DB, owned bool, err error) {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx), false, nil
	}
	db = r.DB.WithContext(ctx).Begin()
	if db.Error != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", db.Error)
	}
	return db, true, nil
}

func finish(db *gorm.DB, owned bool, err error) error {
	switch {
	case !owned:
		return err
	case err != nil:
		db.Rollback()
		return err
	}
	if cerr := db.Commit().Error; cerr != nil {
		return fmt.Errorf("failed to commit transaction: %w", cerr)
	}
	return nil
}

// ByID returns (nil, nil) when no row matches
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	entity := new(T)
	err := r.getDB(ctx).Take(entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %T #%d: %w", *entity, id, err)
	}
	return entity, nil
}

func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	db, owned, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if err = db.Create(entity).Error; err != nil {
		err = fmt.Errorf("failed to insert %T: %w", *entity, err)
	}
	return finish(db, owned, err)
}

// SaveBatch inserts all rows or none. Unique violations surface as gorm.ErrDuplicatedKey.
func (r *BaseRepository[T, F]) SaveBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	db, owned, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if err = db.CreateInBatches(entities, batchSize).Error; err != nil {
		err = fmt.Errorf("failed to insert %d rows: %w", len(entities), err)
	}
	return finish(db, owned, err)
}

func paginate(query *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// WithTransaction runs fn with a transaction stored in its context. Repository calls
// made with that context share it; fn returning an error (or panicking) rolls back.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		}
	}()

	if err = fn(context.WithValue(ctx, TxContextKey, tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
