// Package metadata manages file metadata rows. Rows carry only identity and
// ownership; size, content type, and modification time belong to the byte
// store and are derived at read time.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/PremBamrung/tempy/internal/db"
	"github.com/PremBamrung/tempy/internal/models"
)

// ErrNotFound indicates no file matches the given ID for the given owner.
// Rows owned by someone else are indistinguishable from absent rows.
var ErrNotFound = errors.New("metadata: file not found")

// Store provides file metadata persistence on top of gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a file metadata store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// CreateFile records a new file row for the owner. Duplicate filenames per
// owner are allowed; the newest row wins at the byte-store level.
func (s *Store) CreateFile(ctx context.Context, ownerID uint64, filename string) (*models.File, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("metadata: empty filename")
	}
	file := &models.File{Filename: filename, OwnerID: ownerID}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return nil, fmt.Errorf("metadata: create file: %w", err)
	}
	return file, nil
}

// GetOwned loads a file by ID scoped to the owner.
func (s *Store) GetOwned(ctx context.Context, id, ownerID uint64) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("metadata: load file: %w", err)
	}
	return &file, nil
}

// ListFiles returns the owner's file rows ordered by ID.
func (s *Store) ListFiles(ctx context.Context, ownerID uint64) ([]models.File, error) {
	var files []models.File
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("metadata: list files: %w", err)
	}
	return files, nil
}

// RenameFile updates a file's logical name and returns the refreshed row
// along with the previous name.
func (s *Store) RenameFile(ctx context.Context, id, ownerID uint64, newFilename string) (*models.File, string, error) {
	newFilename = strings.TrimSpace(newFilename)
	if newFilename == "" {
		return nil, "", fmt.Errorf("metadata: empty filename")
	}

	file, errLoad := s.GetOwned(ctx, id, ownerID)
	if errLoad != nil {
		return nil, "", errLoad
	}
	oldName := file.Filename

	if err := s.db.WithContext(ctx).Model(file).Update("filename", newFilename).Error; err != nil {
		return nil, "", fmt.Errorf("metadata: rename file: %w", err)
	}
	file.Filename = newFilename
	return file, oldName, nil
}

// DeleteFile removes a file row and its history in one transaction and
// returns the deleted row's filename.
func (s *Store) DeleteFile(ctx context.Context, id, ownerID uint64) (string, error) {
	var filename string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.File
		if errLoad := tx.Where("id = ? AND owner_id = ?", id, ownerID).
			First(&file).Error; errLoad != nil {
			if errors.Is(errLoad, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("metadata: load file: %w", errLoad)
		}
		filename = file.Filename

		if errHist := tx.Where("file_id = ?", id).
			Delete(&models.FileHistory{}).Error; errHist != nil {
			return fmt.Errorf("metadata: delete file history: %w", errHist)
		}
		if errDel := tx.Delete(&file).Error; errDel != nil {
			return fmt.Errorf("metadata: delete file: %w", errDel)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return filename, nil
}

// SearchFiles returns the owner's files whose names contain the query,
// case-insensitively on either dialect.
func (s *Store) SearchFiles(ctx context.Context, ownerID uint64, query string) ([]models.File, error) {
	conn := s.db.WithContext(ctx)
	pattern := db.NormalizeLikePattern(conn, "%"+strings.TrimSpace(query)+"%")

	var files []models.File
	err := conn.
		Where("owner_id = ?", ownerID).
		Where(db.CaseInsensitiveLikeExpr(conn, "filename"), pattern).
		Order("id ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("metadata: search files: %w", err)
	}
	return files, nil
}

// FilterOptions narrows a file listing. Nil fields match everything. Size
// predicates are applied against the byte store by the caller, not here.
type FilterOptions struct {
	Extension     *string    // Filename suffix, with or without leading dot.
	CreatedAfter  *time.Time // Inclusive lower bound on creation time.
	CreatedBefore *time.Time // Inclusive upper bound on creation time.
}

// FilterFiles returns the owner's files matching the metadata-resident
// predicates of opts.
func (s *Store) FilterFiles(ctx context.Context, ownerID uint64, opts FilterOptions) ([]models.File, error) {
	conn := s.db.WithContext(ctx)
	query := conn.Where("owner_id = ?", ownerID)

	if opts.Extension != nil {
		ext := strings.TrimPrefix(strings.TrimSpace(*opts.Extension), ".")
		if ext != "" {
			pattern := db.NormalizeLikePattern(conn, "%."+ext)
			query = query.Where(db.CaseInsensitiveLikeExpr(conn, "filename"), pattern)
		}
	}
	if opts.CreatedAfter != nil {
		query = query.Where("created_at >= ?", opts.CreatedAfter.UTC())
	}
	if opts.CreatedBefore != nil {
		query = query.Where("created_at <= ?", opts.CreatedBefore.UTC())
	}

	var files []models.File
	if err := query.Order("id ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("metadata: filter files: %w", err)
	}
	return files, nil
}

// CountFiles returns how many file rows the owner has.
func (s *Store) CountFiles(ctx context.Context, ownerID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.File{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("metadata: count files: %w", err)
	}
	return count, nil
}
