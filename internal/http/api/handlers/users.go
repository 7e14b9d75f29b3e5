package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PremBamrung/tempy/internal/audit"
	"github.com/PremBamrung/tempy/internal/identity"
	"github.com/PremBamrung/tempy/internal/models"
	"github.com/PremBamrung/tempy/internal/storage"
)

// UserHandler serves authenticated account management endpoints.
type UserHandler struct {
	users *identity.Store
	store *storage.Service
	trail *audit.Recorder
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *identity.Store, store *storage.Service, trail *audit.Recorder) *UserHandler {
	return &UserHandler{users: users, store: store, trail: trail}
}

// currentUser returns the user loaded by the auth middleware.
func currentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// updateUserRequest defines the request body for profile updates. Absent
// fields are left unchanged.
type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

// Update modifies a user's profile fields.
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errUpdate := h.users.UpdateProfile(c.Request.Context(), id, identity.ProfileUpdate{
		Email:    body.Email,
		FullName: body.FullName,
	})
	if errUpdate != nil {
		switch {
		case errors.Is(errUpdate, identity.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(errUpdate, identity.ErrDuplicateUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		}
		return
	}

	if errAudit := h.trail.Record(c.Request.Context(), actor.ID, "Updated user information", nil, nil); errAudit != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record activity failed"})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces a user's password after verifying the old one.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.NewPassword) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing new password"})
		return
	}

	errChange := h.users.ChangePassword(c.Request.Context(), id, body.OldPassword, body.NewPassword)
	if errChange != nil {
		switch {
		case errors.Is(errChange, identity.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(errChange, identity.ErrAuthFailure):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		}
		return
	}

	if errAudit := h.trail.Record(c.Request.Context(), actor.ID, "Changed password", nil, nil); errAudit != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record activity failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

// Delete removes an account, its rows, and its stored objects. The audit
// entry is written only when someone else's account is deleted; a user
// deleting their own account takes their trail with them.
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	target, errLoad := h.users.GetByID(c.Request.Context(), id)
	if errLoad != nil {
		if errors.Is(errLoad, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}

	if errDelete := h.users.DeleteUser(c.Request.Context(), id); errDelete != nil {
		if errors.Is(errDelete, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	h.store.RemoveNamespace(c.Request.Context(), target.Username)

	if actor.ID != id {
		if errAudit := h.trail.Record(c.Request.Context(), actor.ID, "Deleted account", nil, map[string]any{
			"username": target.Username,
		}); errAudit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "record activity failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted successfully"})
}

// ActivityLog returns the authenticated user's audit trail.
func (h *UserHandler) ActivityLog(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	entries, errLoad := h.trail.ActivityLog(c.Request.Context(), actor.ID)
	if errLoad != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load activity log failed"})
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"id":        entry.ID,
			"user_id":   entry.UserID,
			"action":    entry.Action,
			"detail":    entry.Detail,
			"timestamp": entry.Timestamp,
		})
	}
	c.JSON(http.StatusOK, out)
}
