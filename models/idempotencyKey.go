package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// IdempotencyKey makes client retries of a write safe. The row is inserted in
// the same DB transaction as the write, so it exists only if the write committed.
// Unique constraint: (hospital_id, scope, request_key).
type IdempotencyKey struct {
	ID         int       `gorm:"primary_key" json:"id"`
	HospitalId string    `gorm:"size:64;not null;index:uniq_idem,unique" json:"hospital_id"`
	Scope      string    `gorm:"size:100;not null;index:uniq_idem,unique" json:"scope"`
	RequestKey string    `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_key"`
	ResultRef  string    `gorm:"size:64" json:"result_ref"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// claimIdempotencyKey records requestKey; duplicate is true when the same key
// already committed.
func claimIdempotencyKey(ctx context.Context, tx *gorm.DB, hospitalId, scope, requestKey, resultRef string) (duplicate bool, err error) {
	key := IdempotencyKey{
		HospitalId: hospitalId,
		Scope:      scope,
		RequestKey: requestKey,
		ResultRef:  resultRef,
	}
	if err := tx.WithContext(ctx).Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}
	return true, nil
}

// lookupIdempotencyKey is read outside the failed transaction.
func lookupIdempotencyKey(ctx context.Context, db *gorm.DB, hospitalId, scope, requestKey string) (string, error) {
	var key IdempotencyKey
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND scope = ? AND request_key = ?", hospitalId, scope, requestKey).
		First(&key).Error
	if err != nil {
		return "", err
	}
	return key.ResultRef, nil
}
