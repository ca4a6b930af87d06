package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard/api/internal/app"
	"dashboard/api/internal/config"
	"dashboard/api/internal/logging"
	"dashboard/api/internal/session"
	"dashboard/api/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stderr)
	ctx := context.Background()

	configStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("store setup failed")
	}
	defer closeStore()

	service := app.New(configStore, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("dashboard API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (app.ConfigStore, func(), error) {
	switch cfg.Store {
	case "redis":
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisStore, func() { _ = redisStore.Close() }, nil

	case "s3":
		objectStore, err := store.NewObjectStore(store.ObjectConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := objectStore.EnsureBucket(setupCtx); err != nil {
			return nil, nil, err
		}
		return objectStore, func() {}, nil

	case "postgres", "":
		db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db, cfg.MigrationsDir, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, errors.New("unknown DASH_STORE " + cfg.Store + " (want postgres, redis or s3)")
}

func migrate(ctx context.Context, db *sql.DB, dir string, logger zerolog.Logger) error {
	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(dir))
	for _, version := range applied {
		logger.Info().Str("version", version).Msg("applied migration")
	}
	return err
}
