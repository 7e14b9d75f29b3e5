package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserActivityLog is one append-only audit entry attributed to a user,
// recorded for every mutating account or file operation regardless of
// which file (if any) was affected.
type UserActivityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Acting user ID.

	Action string         `gorm:"type:text;not null"` // Human-readable action description.
	Detail datatypes.JSON `gorm:"type:text"`          // Optional structured context.

	Timestamp time.Time `gorm:"not null;index"` // When the action happened.
}
