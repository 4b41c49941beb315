package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brunamourao/usermail-backend/pkg/enums"
)

// OutboxDLQ captures terminal outbox failures for auditing and remediation.
type OutboxDLQ struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	MessageID    uuid.UUID                  `gorm:"column:message_id;type:uuid;not null"`
	EventType    enums.OutboxEventType      `gorm:"column:event_type;not null"`
	AggregateID  uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload      json.RawMessage            `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason  enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage *string                    `gorm:"column:error_message"`
	AttemptCount int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time                  `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
