package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the canonical identity entity. Rows are immutable after
// creation apart from bookkeeping timestamps.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
