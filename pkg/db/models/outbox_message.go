package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brunamourao/usermail-backend/pkg/enums"
)

// OutboxMessage is an append-only notification intent written in the same
// transaction as the business row it refers to. The relay owns the
// status/attempts/last_error columns; nothing else mutates a row after insert.
type OutboxMessage struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	EventType    enums.OutboxEventType `gorm:"column:event_type;not null"`
	AggregateID  uuid.UUID             `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload      json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	Status       enums.OutboxStatus    `gorm:"column:status;not null;default:pending"`
	AttemptCount int                   `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string               `gorm:"column:last_error"`
	ClaimedUntil *time.Time            `gorm:"column:claimed_until"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time            `gorm:"column:published_at"`
}
