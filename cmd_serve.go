package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stackhead/task-management-app/account"
	"github.com/stackhead/task-management-app/api"
	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/board"
	"github.com/stackhead/task-management-app/config"
	"github.com/stackhead/task-management-app/profile"
	"github.com/stackhead/task-management-app/recovery"
	"github.com/stackhead/task-management-app/storage"
	"github.com/stackhead/task-management-app/telemetry"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	tp := telemetry.Install(logger)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rc, err := newRedis(cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	docs, cleanup, closeDocs, err := openDocuments(ctx, cfg, rc)
	if err != nil {
		return err
	}
	defer closeDocs()

	auth, stopAuth, err := newAuth(cfg, logger)
	if err != nil {
		return err
	}
	defer stopAuth()

	identity := account.New(cfg.AccountEndpoint, cfg.AccountProject, account.WithAPIKey(cfg.AccountAPIKey))
	client := baas.NewClient(identity, docs, cleanup)
	sessions := api.NewRegistry(client, cfg.SessionTTL, logger, board.WithLogger(logger))
	go sessions.Run(ctx, sweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.PublicOrigin},
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderContentEncoding, api.HeaderIdempotencyKey,
		},
	}))
	api.Register(e, api.Deps{
		Client:       client,
		Auth:         auth,
		Sessions:     sessions,
		Recovery:     recovery.NewService(identity, recovery.WithLogger(logger)),
		Profiles:     profile.NewService(client, logger),
		Deduper:      api.NewRedisDeduper(rc, cfg.IdempotencyTTL),
		Revoker:      api.NewRedisRevoker(rc),
		PublicOrigin: cfg.PublicOrigin,
		SessionTTL:   cfg.SessionTTL,
		EnablePprof:  cfg.EnablePprof,
		Logger:       logger,
	})

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("http shutdown")
		}
	}()

	logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.DocumentBackend}).Info("api listening")
	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newRedis(cfg *config.Config) (*redis.Client, error) {
	opts, err := config.RedisOptions(cfg.RedisConnectionString)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opts), nil
}

// openDocuments builds the document store for the configured backend. The
// SQLite backend deletes cascades atomically, so it needs no cleanup queue.
func openDocuments(ctx context.Context, cfg *config.Config, rc *redis.Client) (baas.Documents, baas.CleanupQueue, func(), error) {
	var (
		docs    baas.Documents
		cleanup baas.CleanupQueue
		closeFn = func() {}
	)
	switch cfg.DocumentBackend {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		docs = db
		closeFn = func() { _ = db.Close() }
	default:
		tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.Tables())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: %w", err)
		}
		docs = tables
		if cfg.CleanupQueue != "" {
			q, err := storage.NewQueue(cfg.StorageConnectionString, cfg.CleanupQueue, 0)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("cleanup queue: %w", err)
			}
			cleanup = q
		}
	}
	if rc != nil && cfg.DocumentCacheTTL > 0 {
		docs = storage.NewCache(docs, rc, cfg.DocumentCacheTTL)
	}
	return docs, cleanup, closeFn, nil
}

func newAuth(cfg *config.Config, logger *log.Logger) (*api.Auth, func(), error) {
	if cfg.LocalAuthMode {
		logger.Warn("local auth mode: accepting HS256 session tokens")
		return api.NewAuth(api.AuthConfig{
			Audience: cfg.AuthAudience,
			Issuer:   cfg.AuthIssuer,
			Secret:   []byte(cfg.LocalAuthSharedSecret),
		}), func() {}, nil
	}
	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(api.AuthConfig{
		JWKS:     jwks,
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
	}), jwks.EndBackground, nil
}
