package utils

import (
	"context"
	"errors"

	"github.com/mmdatafocus/admission_billing/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model from db
// (hospitalId is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, hospitalId string, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("hospital_id = ?", hospitalId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, errors.Join(ErrorStoreIO, err)
	}
	return &result, nil
}

// count records, using WHERE hospital_id = ? AND $condition
func ResourceCountWhere[T any](ctx context.Context, hospitalId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if hospitalId != "" {
		dbCtx = dbCtx.Where("hospital_id = ?", hospitalId)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// check if id exists for the hospital, return RecordNotFound Error
func ValidateResourceId[T any](ctx context.Context, hospitalId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, hospitalId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}
