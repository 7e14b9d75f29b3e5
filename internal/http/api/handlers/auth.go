package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PremBamrung/tempy/internal/config"
	"github.com/PremBamrung/tempy/internal/identity"
	"github.com/PremBamrung/tempy/internal/models"
	"github.com/PremBamrung/tempy/internal/security"
)

// AuthHandler serves login and account registration endpoints.
type AuthHandler struct {
	users  *identity.Store
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *identity.Store, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{users: users, jwtCfg: jwtCfg}
}

// userJSON renders the public view of a user. The password digest never
// leaves the server.
func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"full_name":  user.FullName,
		"disabled":   user.Disabled,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
}

// tokenRequest defines the JSON request body for login.
type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token exchanges credentials for a bearer token. Credentials arrive either
// as an OAuth2-style password form or as JSON.
func (h *AuthHandler) Token(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" {
		var body tokenRequest
		if errBind := c.ShouldBindJSON(&body); errBind == nil {
			username = strings.TrimSpace(body.Username)
			password = body.Password
		}
	}
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	user, errAuth := h.users.Authenticate(c.Request.Context(), username, password)
	if errAuth != nil {
		if errors.Is(errAuth, identity.ErrAuthFailure) {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.Username, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// registerRequest defines the request body for account registration.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Register creates a new account. Registration is open; no token required.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if strings.TrimSpace(body.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}

	user, errCreate := h.users.CreateUser(c.Request.Context(), identity.NewUser{
		Username: body.Username,
		Email:    body.Email,
		FullName: body.FullName,
		Password: body.Password,
	})
	if errCreate != nil {
		if errors.Is(errCreate, identity.ErrDuplicateUsername) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// List returns accounts with skip/limit pagination.
func (h *AuthHandler) List(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	users, errList := h.users.ListUsers(c.Request.Context(), skip, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userJSON(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}
