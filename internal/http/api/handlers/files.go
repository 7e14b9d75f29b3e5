package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PremBamrung/tempy/internal/storage"
)

// FileHandler serves authenticated file endpoints.
type FileHandler struct {
	store *storage.Service
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(store *storage.Service) *FileHandler {
	return &FileHandler{store: store}
}

// sanitizeFilename strips any path from a submitted filename and reports
// whether a usable name remains. Base can still yield "." or "..", which
// would escape the namespace.
func sanitizeFilename(raw string) (string, bool) {
	filename := filepath.Base(strings.TrimSpace(raw))
	if filename == "" || filename == "." || filename == ".." || filename == "/" {
		return "", false
	}
	return filename, true
}

// Upload stores a multipart file in the caller's namespace.
func (h *FileHandler) Upload(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	header, errForm := c.FormFile("file")
	if errForm != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	filename, ok := sanitizeFilename(header.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}

	src, errOpen := header.Open()
	if errOpen != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read upload failed"})
		return
	}
	defer src.Close()

	view, errUpload := h.store.Upload(c.Request.Context(), owner, filename, src)
	if errUpload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Download streams a named object from the caller's namespace.
func (h *FileHandler) Download(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	filename, ok := sanitizeFilename(c.Param("filename"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}

	rc, info, errOpen := h.store.Download(c.Request.Context(), owner, filename)
	if errOpen != nil {
		if errors.Is(errOpen, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

// Filespace lists the caller's files with live sizes and their total.
func (h *FileHandler) Filespace(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	report, errReport := h.store.Filespace(c.Request.Context(), owner)
	if errReport != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "filespace failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Rename changes a file's name. The new name comes from the new_filename
// query parameter.
func (h *FileHandler) Rename(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	newFilename, ok := sanitizeFilename(c.Query("new_filename"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing new_filename"})
		return
	}

	view, errRename := h.store.Rename(c.Request.Context(), owner, id, newFilename)
	if errRename != nil {
		if errors.Is(errRename, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rename failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a file's metadata, history, and bytes.
func (h *FileHandler) Delete(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if errDelete := h.store.Delete(c.Request.Context(), owner, id); errDelete != nil {
		if errors.Is(errDelete, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted successfully"})
}

// Search returns the caller's files whose names contain the query string.
func (h *FileHandler) Search(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	views, errSearch := h.store.Search(c.Request.Context(), owner, query)
	if errSearch != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, views)
}

// Filter returns the caller's files narrowed by extension, size bounds, and
// creation date bounds. Dates are RFC 3339.
func (h *FileHandler) Filter(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var query storage.FilterQuery
	if ext := strings.TrimSpace(c.Query("extension")); ext != "" {
		query.Extension = &ext
	} else if ext := strings.TrimSpace(c.Query("file_type")); ext != "" {
		query.Extension = &ext
	}
	if raw := strings.TrimSpace(c.Query("min_size")); raw != "" {
		size, errParse := strconv.ParseInt(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_size"})
			return
		}
		query.MinSize = &size
	}
	if raw := strings.TrimSpace(c.Query("max_size")); raw != "" {
		size, errParse := strconv.ParseInt(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_size"})
			return
		}
		query.MaxSize = &size
	}
	if raw := strings.TrimSpace(c.Query("start_date")); raw != "" {
		date, errParse := parseFilterDate(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
			return
		}
		query.CreatedAfter = &date
	}
	if raw := strings.TrimSpace(c.Query("end_date")); raw != "" {
		date, errParse := parseFilterDate(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
			return
		}
		query.CreatedBefore = &date
	}

	views, errFilter := h.store.Filter(c.Request.Context(), owner, query)
	if errFilter != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "filter failed"})
		return
	}
	c.JSON(http.StatusOK, views)
}

// parseFilterDate accepts RFC 3339 timestamps or bare dates.
func parseFilterDate(raw string) (time.Time, error) {
	if date, err := time.Parse(time.RFC3339, raw); err == nil {
		return date, nil
	}
	return time.Parse("2006-01-02", raw)
}

// History returns a file's audit trail.
func (h *FileHandler) History(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	entries, errLoad := h.store.History(c.Request.Context(), owner, id)
	if errLoad != nil {
		if errors.Is(errLoad, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load history failed"})
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"id":        entry.ID,
			"file_id":   entry.FileID,
			"user_id":   entry.UserID,
			"action":    entry.Action,
			"detail":    entry.Detail,
			"timestamp": entry.Timestamp,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Statistics reports the caller's upload count and total storage used.
func (h *FileHandler) Statistics(c *gin.Context) {
	owner, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	stats, errStats := h.store.Statistics(c.Request.Context(), owner)
	if errStats != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "statistics failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
