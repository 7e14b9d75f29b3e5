// Package api wires the HTTP surface: routes, authentication middleware,
// and request logging.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PremBamrung/tempy/internal/audit"
	"github.com/PremBamrung/tempy/internal/config"
	"github.com/PremBamrung/tempy/internal/http/api/handlers"
	"github.com/PremBamrung/tempy/internal/identity"
	"github.com/PremBamrung/tempy/internal/security"
	"github.com/PremBamrung/tempy/internal/storage"
)

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, conn *gorm.DB, users *identity.Store, store *storage.Service, trail *audit.Recorder, jwtCfg config.JWTConfig) {
	if r == nil || conn == nil {
		return
	}

	r.Use(requestIDMiddleware())

	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(users, jwtCfg)
	r.POST("/token", authHandler.Token)
	r.POST("/users", authHandler.Register)

	authed := r.Group("")
	authed.Use(userAuthMiddleware(users, jwtCfg))

	authed.GET("/users", authHandler.List)

	userHandler := handlers.NewUserHandler(users, store, trail)
	authed.PUT("/users/:id", userHandler.Update)
	authed.PUT("/users/:id/change-password", userHandler.ChangePassword)
	authed.DELETE("/users/:id", userHandler.Delete)
	authed.GET("/users/me/activity-log", userHandler.ActivityLog)

	fileHandler := handlers.NewFileHandler(store)
	authed.POST("/upload", fileHandler.Upload)
	authed.GET("/download/:filename", fileHandler.Download)
	authed.GET("/filespace", fileHandler.Filespace)
	authed.PUT("/files/:id", fileHandler.Rename)
	authed.DELETE("/files/:id", fileHandler.Delete)
	authed.GET("/files/search", fileHandler.Search)
	authed.GET("/files/filter", fileHandler.Filter)
	authed.GET("/files/:id/history", fileHandler.History)
	authed.GET("/statistics", fileHandler.Statistics)
}

// requestIDMiddleware tags every request with an ID and logs its outcome.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
		}).Debug("request completed")
	}
}

// userAuthMiddleware validates bearer tokens and loads the user they name.
func userAuthMiddleware(users *identity.Store, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		username, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, errLoad := users.GetByUsername(c.Request.Context(), username)
		if errLoad != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}
