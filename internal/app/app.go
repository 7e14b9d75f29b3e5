// Package app assembles the service: configuration, database, storage
// backend, routes, and the HTTP server lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/PremBamrung/tempy/internal/audit"
	"github.com/PremBamrung/tempy/internal/blob"
	"github.com/PremBamrung/tempy/internal/config"
	"github.com/PremBamrung/tempy/internal/db"
	"github.com/PremBamrung/tempy/internal/http/api"
	"github.com/PremBamrung/tempy/internal/identity"
	"github.com/PremBamrung/tempy/internal/metadata"
	"github.com/PremBamrung/tempy/internal/storage"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 5 * time.Second

// newBlobStore builds the byte-store backend the config names.
func newBlobStore(ctx context.Context, cfg config.StorageConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "local":
		return blob.NewLocalStore(cfg.Root)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			KeyPrefix: cfg.S3.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("app: unsupported storage backend %q", cfg.Backend)
	}
}

// Run starts the service and blocks until ctx is cancelled or the server
// fails. A positive port overrides the config file's listen port.
func Run(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	if jwtCfg.Secret == "" {
		return fmt.Errorf("app: missing jwt secret (set `jwt.secret` in config file or %s)", config.EnvJWTSecret)
	}
	storageCfg, errStorage := config.LoadStorageConfig(configPath)
	if errStorage != nil {
		return errStorage
	}
	serverCfg := config.LoadServerConfig(configPath)
	if port > 0 {
		serverCfg.Port = port
	}

	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	users := identity.NewStore(conn)
	if errSeed := SeedDefaultUser(ctx, users, config.LoadSeedConfig(configPath)); errSeed != nil {
		return errSeed
	}

	blobs, errBlob := newBlobStore(ctx, storageCfg)
	if errBlob != nil {
		return errBlob
	}
	trail := audit.NewRecorder(conn)
	store := storage.NewService(metadata.NewStore(conn), blobs, trail)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, conn, users, store, trail, jwtCfg)

	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.WithFields(log.Fields{
		"addr":    addr,
		"dialect": db.DialectName(conn),
		"backend": storageCfg.Backend,
	}).Info("starting server")

	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}
