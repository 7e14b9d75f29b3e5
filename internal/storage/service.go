// Package storage orchestrates file operations across the metadata store,
// the byte store, and the audit trail. Callers hand it an authenticated
// owner; it never loads users itself.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PremBamrung/tempy/internal/audit"
	"github.com/PremBamrung/tempy/internal/blob"
	"github.com/PremBamrung/tempy/internal/metadata"
	"github.com/PremBamrung/tempy/internal/models"
)

// ErrNotFound indicates the requested file does not exist for this owner,
// in metadata or in the byte store depending on the operation.
var ErrNotFound = errors.New("storage: file not found")

// statConcurrency bounds parallel byte-store stats when sizing listings.
const statConcurrency = 8

// FileView is a file row joined with the byte store's current view of the
// object. Size, content type, and modification time are derived per request.
type FileView struct {
	ID          uint64    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"file_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Missing     bool      `json:"missing,omitempty"` // Row has no backing object.
}

// FilespaceReport lists an owner's files with live sizes.
type FilespaceReport struct {
	Files     []FileView `json:"files"`
	TotalSize int64      `json:"total_size"`
}

// UsageStatistics summarizes an owner's stored data.
type UsageStatistics struct {
	TotalUploads     int64 `json:"total_uploads"`
	TotalStorageUsed int64 `json:"total_storage_used"`
}

// FilterQuery narrows a file listing. Extension and date bounds apply to
// metadata; size bounds apply to live object sizes.
type FilterQuery struct {
	Extension     *string
	MinSize       *int64
	MaxSize       *int64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Service coordinates metadata rows, object bytes, and audit entries.
type Service struct {
	files *metadata.Store
	blobs blob.Store
	trail *audit.Recorder
}

// NewService creates a storage service.
func NewService(files *metadata.Store, blobs blob.Store, trail *audit.Recorder) *Service {
	return &Service{files: files, blobs: blobs, trail: trail}
}

// contentTypeFor derives a content type from the filename extension.
func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Upload stores the object's bytes in the owner's namespace, records the
// metadata row, and appends the audit entry. Bytes land first; if the row
// insert then fails the orphaned object is logged and left for the next
// upload of the same name to overwrite.
func (s *Service) Upload(ctx context.Context, owner *models.User, filename string, r io.Reader) (*FileView, error) {
	size, errWrite := s.blobs.Write(ctx, owner.Username, filename, r)
	if errWrite != nil {
		return nil, fmt.Errorf("storage: store upload: %w", errWrite)
	}

	file, errCreate := s.files.CreateFile(ctx, owner.ID, filename)
	if errCreate != nil {
		log.WithFields(log.Fields{
			"user":     owner.Username,
			"filename": filename,
		}).Warn("upload left orphaned object after metadata failure")
		return nil, errCreate
	}

	if errAudit := s.trail.Record(ctx, owner.ID, fmt.Sprintf("Uploaded file '%s'", filename), &file.ID, nil); errAudit != nil {
		return nil, errAudit
	}

	return &FileView{
		ID:          file.ID,
		Filename:    file.Filename,
		Size:        size,
		ContentType: contentTypeFor(file.Filename),
		CreatedAt:   file.CreatedAt,
		UpdatedAt:   file.UpdatedAt,
	}, nil
}

// Download opens the named object from the owner's namespace. The lookup is
// purely structural: bytes are served even if no metadata row points at
// them anymore.
func (s *Service) Download(ctx context.Context, owner *models.User, filename string) (io.ReadCloser, blob.Info, error) {
	info, errStat := s.blobs.Stat(ctx, owner.Username, filename)
	if errStat != nil {
		if errors.Is(errStat, blob.ErrNotFound) {
			return nil, blob.Info{}, ErrNotFound
		}
		return nil, blob.Info{}, fmt.Errorf("storage: stat object: %w", errStat)
	}
	rc, errOpen := s.blobs.Open(ctx, owner.Username, filename)
	if errOpen != nil {
		if errors.Is(errOpen, blob.ErrNotFound) {
			return nil, blob.Info{}, ErrNotFound
		}
		return nil, blob.Info{}, fmt.Errorf("storage: open object: %w", errOpen)
	}

	if errAudit := s.trail.Record(ctx, owner.ID, fmt.Sprintf("Downloaded file '%s'", filename), nil, nil); errAudit != nil {
		rc.Close()
		return nil, blob.Info{}, errAudit
	}
	return rc, info, nil
}

// viewsFor joins file rows with live byte-store stats, statting objects
// concurrently. Rows with no backing object come back with Missing set.
func (s *Service) viewsFor(ctx context.Context, namespace string, files []models.File) ([]FileView, error) {
	views := make([]FileView, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(statConcurrency)
	var mu sync.Mutex

	for i, file := range files {
		group.Go(func() error {
			view := FileView{
				ID:          file.ID,
				Filename:    file.Filename,
				ContentType: contentTypeFor(file.Filename),
				CreatedAt:   file.CreatedAt,
				UpdatedAt:   file.UpdatedAt,
			}
			info, errStat := s.blobs.Stat(groupCtx, namespace, file.Filename)
			switch {
			case errStat == nil:
				view.Size = info.Size
			case errors.Is(errStat, blob.ErrNotFound):
				view.Missing = true
				log.WithFields(log.Fields{
					"user":     namespace,
					"filename": file.Filename,
					"file_id":  file.ID,
				}).Warn("metadata row has no backing object")
			default:
				return fmt.Errorf("storage: stat object: %w", errStat)
			}
			mu.Lock()
			views[i] = view
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// Filespace lists the owner's files with live sizes and their total.
func (s *Service) Filespace(ctx context.Context, owner *models.User) (*FilespaceReport, error) {
	files, errList := s.files.ListFiles(ctx, owner.ID)
	if errList != nil {
		return nil, errList
	}
	views, errViews := s.viewsFor(ctx, owner.Username, files)
	if errViews != nil {
		return nil, errViews
	}

	report := &FilespaceReport{Files: views}
	for _, view := range views {
		report.TotalSize += view.Size
	}
	return report, nil
}

// Rename changes a file's logical name and relocates its object so later
// downloads of the new name find the same bytes. A row whose object already
// vanished still renames; the gap is logged.
func (s *Service) Rename(ctx context.Context, owner *models.User, fileID uint64, newFilename string) (*FileView, error) {
	file, oldName, errRename := s.files.RenameFile(ctx, fileID, owner.ID, newFilename)
	if errRename != nil {
		if errors.Is(errRename, metadata.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errRename
	}

	var size int64
	errMove := s.blobs.Rename(ctx, owner.Username, oldName, file.Filename)
	switch {
	case errMove == nil:
		if info, errStat := s.blobs.Stat(ctx, owner.Username, file.Filename); errStat == nil {
			size = info.Size
		}
	case errors.Is(errMove, blob.ErrNotFound):
		log.WithFields(log.Fields{
			"user":     owner.Username,
			"old_name": oldName,
			"new_name": file.Filename,
		}).Warn("renamed metadata row had no backing object")
	default:
		return nil, fmt.Errorf("storage: relocate object: %w", errMove)
	}

	if errAudit := s.trail.Record(ctx, owner.ID, fmt.Sprintf("Renamed file '%s'", file.Filename), &file.ID, map[string]any{
		"old_filename": oldName,
	}); errAudit != nil {
		return nil, errAudit
	}

	return &FileView{
		ID:          file.ID,
		Filename:    file.Filename,
		Size:        size,
		ContentType: contentTypeFor(file.Filename),
		CreatedAt:   file.CreatedAt,
		UpdatedAt:   file.UpdatedAt,
	}, nil
}

// Delete removes a file's metadata row and history, then removes its bytes
// best-effort. A byte-store failure after the row is gone is logged, not
// returned: the file no longer exists as far as the API is concerned.
func (s *Service) Delete(ctx context.Context, owner *models.User, fileID uint64) error {
	filename, errDelete := s.files.DeleteFile(ctx, fileID, owner.ID)
	if errDelete != nil {
		if errors.Is(errDelete, metadata.ErrNotFound) {
			return ErrNotFound
		}
		return errDelete
	}

	if errBytes := s.blobs.Delete(ctx, owner.Username, filename); errBytes != nil && !errors.Is(errBytes, blob.ErrNotFound) {
		log.WithFields(log.Fields{
			"user":     owner.Username,
			"filename": filename,
			"file_id":  fileID,
		}).WithError(errBytes).Warn("failed to remove object for deleted file")
	}

	return s.trail.Record(ctx, owner.ID, "Deleted file", nil, map[string]any{
		"filename": filename,
	})
}

// Search returns the owner's files whose names contain the query, joined
// with live object stats.
func (s *Service) Search(ctx context.Context, owner *models.User, query string) ([]FileView, error) {
	files, errSearch := s.files.SearchFiles(ctx, owner.ID, query)
	if errSearch != nil {
		return nil, errSearch
	}
	return s.viewsFor(ctx, owner.Username, files)
}

// Filter returns the owner's files matching the query. Extension and date
// bounds are pushed to SQL; size bounds are checked against live object
// sizes. Rows with no backing object are dropped only when a size bound is
// present, since their size cannot be compared.
func (s *Service) Filter(ctx context.Context, owner *models.User, query FilterQuery) ([]FileView, error) {
	files, errFilter := s.files.FilterFiles(ctx, owner.ID, metadata.FilterOptions{
		Extension:     query.Extension,
		CreatedAfter:  query.CreatedAfter,
		CreatedBefore: query.CreatedBefore,
	})
	if errFilter != nil {
		return nil, errFilter
	}
	views, errViews := s.viewsFor(ctx, owner.Username, files)
	if errViews != nil {
		return nil, errViews
	}

	sizeBound := query.MinSize != nil || query.MaxSize != nil
	result := make([]FileView, 0, len(views))
	for _, view := range views {
		if sizeBound && view.Missing {
			continue
		}
		if query.MinSize != nil && view.Size < *query.MinSize {
			continue
		}
		if query.MaxSize != nil && view.Size > *query.MaxSize {
			continue
		}
		result = append(result, view)
	}
	return result, nil
}

// Statistics reports the owner's upload count and live total storage used.
func (s *Service) Statistics(ctx context.Context, owner *models.User) (*UsageStatistics, error) {
	count, errCount := s.files.CountFiles(ctx, owner.ID)
	if errCount != nil {
		return nil, errCount
	}
	report, errSpace := s.Filespace(ctx, owner)
	if errSpace != nil {
		return nil, errSpace
	}
	return &UsageStatistics{
		TotalUploads:     count,
		TotalStorageUsed: report.TotalSize,
	}, nil
}

// History returns a file's audit trail after confirming the owner holds the
// file.
func (s *Service) History(ctx context.Context, owner *models.User, fileID uint64) ([]models.FileHistory, error) {
	if _, errLoad := s.files.GetOwned(ctx, fileID, owner.ID); errLoad != nil {
		if errors.Is(errLoad, metadata.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errLoad
	}
	return s.trail.History(ctx, fileID)
}

// RemoveNamespace deletes every object in the user's namespace. Failures
// are logged, not returned: the account rows are already gone by the time
// this runs.
func (s *Service) RemoveNamespace(ctx context.Context, username string) {
	if err := s.blobs.DeleteNamespace(ctx, username); err != nil {
		log.WithField("user", username).WithError(err).
			Warn("failed to remove namespace for deleted account")
	}
}
