package models

import (
	"time"

	"gorm.io/datatypes"
)

// FileHistory is one append-only audit entry scoped to a file. Rows are
// never updated and are removed only when the file or the acting user is
// deleted.
type FileHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FileID uint64 `gorm:"not null;index"` // Target file ID.
	UserID uint64 `gorm:"not null;index"` // Acting user ID.

	Action string         `gorm:"type:text;not null"` // Human-readable action description.
	Detail datatypes.JSON `gorm:"type:text"`          // Optional structured context.

	Timestamp time.Time `gorm:"not null;index"` // When the action happened.
}
