package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"gorm.io/gorm"
)

// PubSubMessageRecord is the transactional outbox row. It is written in the
// same DB transaction as the change it announces and published after commit
// by workflow.OutboxDispatcher.
type PubSubMessageRecord struct {
	ID               int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	HospitalId       string              `gorm:"size:64;not null;index" json:"hospital_id"`
	OccurredAt       time.Time           `gorm:"index;not null" json:"occurred_at"`
	ReferenceId      int                 `gorm:"index:idx_outbox_reference,priority:2" json:"reference_id"`
	ReferenceType    OutboxReferenceType `gorm:"size:30;index:idx_outbox_reference,priority:1" json:"reference_type"`
	Action           OutboxAction        `gorm:"size:40" json:"action"`
	Payload          []byte              `gorm:"type:blob" json:"payload"`
	PublishStatus    string              `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToBillingEvent(record PubSubMessageRecord) config.BillingEvent {
	return config.BillingEvent{
		ID:            record.ID,
		HospitalId:    record.HospitalId,
		OccurredAt:    record.OccurredAt,
		ReferenceId:   record.ReferenceId,
		ReferenceType: string(record.ReferenceType),
		Action:        string(record.Action),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// EnqueueBillingEvent writes the outbox row inside the caller's transaction.
// Nothing is published here.
func EnqueueBillingEvent(ctx context.Context, tx *gorm.DB, hospitalId string, refType OutboxReferenceType, refId int, action OutboxAction, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := PubSubMessageRecord{
		HospitalId:    hospitalId,
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ReplayOutbox puts FAILED/DEAD rows of one reference back to PENDING and
// returns how many rows were reset.
func ReplayOutbox(ctx context.Context, refType OutboxReferenceType, refId int) (int64, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return 0, utils.ErrorHospitalRequired
	}

	db := config.GetDB()
	res := db.WithContext(ctx).
		Model(&PubSubMessageRecord{}).
		Where("hospital_id = ? AND reference_type = ? AND reference_id = ?", hospitalId, refType, refId).
		Where("publish_status IN ?", []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return 0, storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, utils.ErrorRecordNotFound
	}
	return res.RowsAffected, nil
}
