package models

import "time"

// File is the metadata row for one stored object. Size, content type, and
// modified time are derived from the byte store at read time and never
// cached here.
type File struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Filename string `gorm:"type:text;not null;index"` // Logical name inside the owner's namespace. Not unique per owner.
	OwnerID  uint64 `gorm:"not null;index"`           // Owning user ID.

	Owner *User `gorm:"foreignKey:OwnerID"` // Owning user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
