// Package bootstrap provides dependency initialization for the video
// compression service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/videocompress/internal/auth"
	"github.com/maauso/videocompress/internal/channel"
	"github.com/maauso/videocompress/internal/config"
	"github.com/maauso/videocompress/internal/events"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
	"github.com/maauso/videocompress/internal/storage"
	"github.com/maauso/videocompress/internal/video"
)

// Dependencies holds all initialized dependencies shared by the HTTP
// server and the CLI.
type Dependencies struct {
	VideoService *video.Service
	Dispatcher   *channel.Dispatcher
	// Verifier is nil when bearer token auth is disabled.
	Verifier *auth.Verifier

	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AuthEnabled() {
		verifier, err := auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("create token verifier: %w", err)
		}
		deps.Verifier = verifier
		logger.Info("bearer token auth enabled", slog.String("issuer", cfg.AuthJWTIssuer))
	}

	engine := media.NewFFmpegEngine(cfg.FFmpegPath, cfg.FFprobePath)

	svc := video.NewService(engine, store, repo, events.NewHub(0), logger, video.Options{
		ProgressInterval:  cfg.ProgressInterval,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	})
	// The service goes first so running jobs settle before the repository closes.
	deps.closers = append([]func() error{func() error { svc.Close(); return nil }}, deps.closers...)

	deps.VideoService = svc
	deps.Dispatcher = channel.NewDispatcher(svc, cfg.LevelVar(), logger)
	return deps, nil
}

// Close stops the video service and releases the job repository.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.CacheDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("cache_dir", s3Store.CacheDir()),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("cache_dir", localStore.CacheDir()),
	)
	return localStore, nil
}

// initRepository opens the Pebble job history when JOB_DB_PATH is set and
// falls back to memory otherwise. Jobs left unfinished by a previous
// process are marked failed.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if cfg.JobDBPath == "" {
		logger.Info("in-memory job repository configured")
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.OpenPebbleRepository(cfg.JobDBPath)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	d.closers = append(d.closers, repo.Close)

	recovered, err := job.RecoverInterrupted(ctx, repo)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	logger.Info("pebble job repository configured",
		slog.String("path", cfg.JobDBPath),
		slog.Int("recovered", recovered),
	)
	return repo, nil
}
