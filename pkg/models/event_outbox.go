package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EventOutbox stores workflow events written in the same transaction as the
// state change that produced them. A relay publishes pending entries to the
// event broker.
type EventOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	EventName string `gorm:"type:varchar(50);not null;index:idx_event_outbox_name" json:"eventName"`
	// Sender is the model tag of the instance that emitted the event.
	Sender string `gorm:"type:varchar(50);not null" json:"sender"`

	DocumentID    *uint `gorm:"index:idx_event_outbox_document" json:"documentId,omitempty"`
	RevisionID    *uint `json:"revisionId,omitempty"`
	TransmittalID *uint `json:"transmittalId,omitempty"`

	// Idempotency key: {event_name}:{content_hash}
	IdempotentKey string `gorm:"type:varchar(128);not null;uniqueIndex" json:"idempotentKey"`
	ContentHash   string `gorm:"type:varchar(64);not null" json:"contentHash"`

	Payload map[string]any `gorm:"serializer:json;type:jsonb;not null" json:"payload"`

	Status          string     `gorm:"type:varchar(20);not null;index:idx_event_outbox_status" json:"status"` // 'pending', 'published', 'failed'
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `json:"publishAttempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (EventOutbox) TableName() string {
	return "event_outbox"
}

// OutboxStatus constants
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// ComputeContentHash computes the SHA-256 hash of an event payload.
func ComputeContentHash(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// GenerateIdempotentKey creates the unique key of an outbox entry.
func GenerateIdempotentKey(eventName, contentHash string) string {
	return fmt.Sprintf("%s:%s", eventName, contentHash)
}

// BeforeCreate hook to ensure required fields.
func (o *EventOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.EventName == "" {
		return fmt.Errorf("event_name is required")
	}
	if o.Sender == "" {
		return fmt.Errorf("sender is required")
	}
	if o.Payload == nil {
		return fmt.Errorf("payload is required")
	}

	if o.ContentHash == "" {
		hash, err := ComputeContentHash(o.Payload)
		if err != nil {
			return err
		}
		o.ContentHash = hash
	}
	if o.IdempotentKey == "" {
		o.IdempotentKey = GenerateIdempotentKey(o.EventName, o.ContentHash)
	}
	if o.Status == "" {
		o.Status = OutboxStatusPending
	}

	return nil
}

// FindPendingOutboxEntries retrieves pending entries oldest first.
func FindPendingOutboxEntries(db *gorm.DB, limit int) ([]EventOutbox, error) {
	var entries []EventOutbox
	err := db.
		Where("status = ?", OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkAsPublished marks the outbox entry as successfully published.
func (o *EventOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now()
	o.Status = OutboxStatusPublished
	o.PublishedAt = &now
	return db.Model(o).Updates(map[string]any{
		"status":       OutboxStatusPublished,
		"published_at": now,
		"updated_at":   now,
	}).Error
}

// MarkAsFailed records a failed publish attempt. The entry stays pending until
// maxAttempts is reached.
func (o *EventOutbox) MarkAsFailed(db *gorm.DB, err error, maxAttempts int) error {
	o.PublishAttempts++
	o.LastError = err.Error()
	if maxAttempts > 0 && o.PublishAttempts >= maxAttempts {
		o.Status = OutboxStatusFailed
	}

	return db.Model(o).Updates(map[string]any{
		"status":           o.Status,
		"publish_attempts": o.PublishAttempts,
		"last_error":       o.LastError,
		"updated_at":       time.Now(),
	}).Error
}

// Retry resets the outbox entry status to pending.
func (o *EventOutbox) Retry(db *gorm.DB) error {
	o.Status = OutboxStatusPending
	o.LastError = ""
	return db.Model(o).Updates(map[string]any{
		"status":     OutboxStatusPending,
		"last_error": "",
		"updated_at": time.Now(),
	}).Error
}

// DeleteOldPublishedEntries removes published entries older than the given
// duration.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&EventOutbox{})

	return result.RowsAffected, result.Error
}

// CountOutboxByStatus returns the count of entries for a given status.
func CountOutboxByStatus(db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.Model(&EventOutbox{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
