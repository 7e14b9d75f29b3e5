// Package audit records and serves the append-only trail of user and file
// actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/PremBamrung/tempy/internal/models"
)

// Recorder writes and reads audit entries.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates an audit recorder.
func NewRecorder(conn *gorm.DB) *Recorder {
	return &Recorder{db: conn}
}

// Record appends one audit entry for the acting user. Every call writes an
// activity-log row; when fileID is non-nil a file-history row is written in
// the same transaction with the same timestamp.
func (r *Recorder) Record(ctx context.Context, userID uint64, action string, fileID *uint64, detail map[string]any) error {
	var payload datatypes.JSON
	if len(detail) > 0 {
		raw, errMarshal := json.Marshal(detail)
		if errMarshal != nil {
			return fmt.Errorf("audit: encode detail: %w", errMarshal)
		}
		payload = datatypes.JSON(raw)
	}

	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &models.UserActivityLog{
			UserID:    userID,
			Action:    action,
			Detail:    payload,
			Timestamp: now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("audit: record activity: %w", err)
		}
		if fileID == nil {
			return nil
		}
		history := &models.FileHistory{
			FileID:    *fileID,
			UserID:    userID,
			Action:    action,
			Detail:    payload,
			Timestamp: now,
		}
		if err := tx.Create(history).Error; err != nil {
			return fmt.Errorf("audit: record file history: %w", err)
		}
		return nil
	})
}

// History returns a file's audit entries in chronological order.
func (r *Recorder) History(ctx context.Context, fileID uint64) ([]models.FileHistory, error) {
	var entries []models.FileHistory
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("timestamp ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit: load file history: %w", err)
	}
	return entries, nil
}

// ActivityLog returns a user's audit entries in chronological order.
func (r *Recorder) ActivityLog(ctx context.Context, userID uint64) ([]models.UserActivityLog, error) {
	var entries []models.UserActivityLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit: load activity log: %w", err)
	}
	return entries, nil
}
