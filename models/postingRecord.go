package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
)

// Outbox publish statuses for DayClosePostingRecord.PublishStatus.
// Stored as strings in the DB.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// DayClosePostingRecord is the transactional outbox row for an approved
// reconciliation. It is inserted in the approval transaction; the dispatcher
// publishes it to Pub/Sub after commit, so the ledger never hears about an
// approval that rolled back.
type DayClosePostingRecord struct {
	ID                 int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	ReconciliationId   int        `gorm:"index;not null" json:"reconciliation_id"`
	ReconciliationDate time.Time  `gorm:"type:date;not null" json:"reconciliation_date"`
	ApprovedAt         time.Time  `gorm:"not null" json:"approved_at"`
	Payload            []byte     `gorm:"type:blob" json:"payload"`
	PublishStatus      string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt        *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId    *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts    int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt      *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt           *time.Time `gorm:"index" json:"locked_at"`
	LockedBy           *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError   *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId      string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPostingMessage(record DayClosePostingRecord) config.PostingMessage {
	return config.PostingMessage{
		ID:                 record.ID,
		ReconciliationId:   record.ReconciliationId,
		ReconciliationDate: record.ReconciliationDate.Format("2006-01-02"),
		ApprovedAt:         record.ApprovedAt,
		Payload:            record.Payload,
		CorrelationId:      record.CorrelationId,
	}
}

// GetPostingRecordsForReconciliation lists outbox rows for one reconciliation,
// newest first. Useful for operational inspection of stuck publishes.
func GetPostingRecordsForReconciliation(ctx context.Context, reconciliationId int) ([]*DayClosePostingRecord, error) {
	db := config.GetDB()
	var records []*DayClosePostingRecord
	err := db.WithContext(ctx).
		Where("reconciliation_id = ?", reconciliationId).
		Order("id DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
