package models

import "time"

// User represents an account that owns a storage namespace.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name, also the storage namespace.
	Email    string `gorm:"type:text;uniqueIndex"`          // Email address.
	FullName string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	Files []File `gorm:"foreignKey:OwnerID"` // Files owned by this user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
