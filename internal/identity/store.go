// Package identity manages user accounts: registration, credential checks,
// profile updates, and account removal with its dependent rows.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/PremBamrung/tempy/internal/db"
	"github.com/PremBamrung/tempy/internal/models"
	"github.com/PremBamrung/tempy/internal/security"
)

var (
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("identity: user not found")
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("identity: username already registered")
	// ErrAuthFailure indicates the supplied credentials do not match.
	ErrAuthFailure = errors.New("identity: invalid credentials")
)

// defaultListLimit caps user listings when the caller passes no limit.
const defaultListLimit = 10

// Store provides user account persistence on top of gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a user account store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// NewUser carries the fields accepted at registration time.
type NewUser struct {
	Username string
	Email    string
	FullName string
	Password string
}

// ProfileUpdate carries optional profile fields; nil means leave unchanged.
type ProfileUpdate struct {
	Email    *string
	FullName *string
}

// CreateUser registers a new account with a hashed password. The username is
// checked for duplicates before the insert; a concurrent insert racing past
// the check is still caught by the unique index.
func (s *Store) CreateUser(ctx context.Context, input NewUser) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("identity: empty username")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("identity: check username: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateUsername
	}

	digest, errHash := security.HashPassword(input.Password)
	if errHash != nil {
		return nil, errHash
	}

	user := &models.User{
		Username: username,
		Email:    strings.TrimSpace(input.Email),
		FullName: strings.TrimSpace(input.FullName),
		Password: digest,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("identity: create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a username/password pair and returns the matching
// user. Lookup misses and digest mismatches both report ErrAuthFailure so
// callers cannot distinguish them.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthFailure
		}
		return nil, fmt.Errorf("identity: load user: %w", err)
	}
	if !security.VerifyPassword(password, user.Password) {
		return nil, ErrAuthFailure
	}
	return &user, nil
}

// GetByUsername loads a user by its unique username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: load user: %w", err)
	}
	return &user, nil
}

// GetByID loads a user by primary key.
func (s *Store) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: load user: %w", err)
	}
	return &user, nil
}

// ListUsers returns accounts ordered by ID, honoring skip/limit pagination.
// A non-positive limit falls back to the default page size.
func (s *Store) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if skip < 0 {
		skip = 0
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Offset(skip).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of update to the user and returns
// the refreshed row.
func (s *Store) UpdateProfile(ctx context.Context, id uint64, update ProfileUpdate) (*models.User, error) {
	user, errLoad := s.GetByID(ctx, id)
	if errLoad != nil {
		return nil, errLoad
	}

	changes := map[string]any{}
	if update.Email != nil {
		changes["email"] = strings.TrimSpace(*update.Email)
	}
	if update.FullName != nil {
		changes["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("identity: update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ChangePassword replaces the stored digest after verifying the old password
// against it.
func (s *Store) ChangePassword(ctx context.Context, id uint64, oldPassword, newPassword string) error {
	user, errLoad := s.GetByID(ctx, id)
	if errLoad != nil {
		return errLoad
	}
	if !security.VerifyPassword(oldPassword, user.Password) {
		return ErrAuthFailure
	}

	digest, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return errHash
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", digest).Error; err != nil {
		return fmt.Errorf("identity: change password: %w", err)
	}
	return nil
}

// DeleteUser removes the account and every dependent row in one
// transaction: file history for the user's files, the file rows themselves,
// and the activity log. Byte removal is the caller's concern.
func (s *Store) DeleteUser(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("identity: load user: %w", err)
		}

		fileIDs := tx.Model(&models.File{}).Select("id").Where("owner_id = ?", id)
		if err := tx.Where("file_id IN (?)", fileIDs).
			Delete(&models.FileHistory{}).Error; err != nil {
			return fmt.Errorf("identity: delete file history: %w", err)
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.File{}).Error; err != nil {
			return fmt.Errorf("identity: delete files: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserActivityLog{}).Error; err != nil {
			return fmt.Errorf("identity: delete activity log: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("identity: delete user: %w", err)
		}
		return nil
	})
}
