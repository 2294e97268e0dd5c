package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kudos/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) FindAll(ctx context.Context, predicate Predicate, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, predicate, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, predicate Predicate, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, predicate, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, err
}

func (r *store[T]) Count(ctx context.Context, predicate Predicate) (int64, error) {
	var count int64
	err := r.buildQuery(ctx, predicate).Count(&count).Error
	return count, err
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

// Save updates every column of resource, inserting it when the row does not exist yet.
func (r *store[T]) Save(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

func (r *store[T]) Delete(ctx context.Context, id snowflake.ID) (bool, error) {
	var dummy T
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&dummy)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *store[T]) buildQuery(ctx context.Context, predicate Predicate, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))
	if !predicate.IsEmpty() {
		db = db.Where(predicate.expression())
	}

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
