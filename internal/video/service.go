// Package video implements the thumbnail, metadata and compression use
// cases on top of an injected media.Engine.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/videocompress/internal/events"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
	"github.com/maauso/videocompress/internal/storage"
)

var (
	// ErrPathRequired is returned when a request has no source path.
	ErrPathRequired = errors.New("path is required")
	// ErrThumbnailWrite is returned when a thumbnail cannot be written to the cache.
	ErrThumbnailWrite = errors.New("getFileThumbnail error")
	// ErrCompressionFailed wraps the error message of a failed job.
	ErrCompressionFailed = errors.New("compression failed")
	// ErrJobActive is returned when deleting a job that has not finished.
	ErrJobActive = errors.New("job is still active")
	// ErrServiceClosed is returned when starting work after Close.
	ErrServiceClosed = errors.New("video service is closed")
)

// Default values used when Options fields are zero.
const (
	DefaultProgressInterval  = 100 * time.Millisecond
	DefaultMaxConcurrentJobs = 2
)

// Options configures a Service.
type Options struct {
	// ProgressInterval is the minimum time between two progress events of a job.
	ProgressInterval time.Duration
	// MaxConcurrentJobs bounds the number of exports running at once.
	MaxConcurrentJobs int
}

// Service runs thumbnail, metadata and compression requests.
type Service struct {
	engine media.Engine
	store  storage.Storage
	repo   job.Repository
	hub    *events.Hub
	logger *slog.Logger

	progressInterval time.Duration
	slots            chan struct{}

	// ctx bounds every background export; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeJob
	closed bool
}

// NewService creates a Service. hub may be nil when no one listens for
// progress events.
func NewService(engine media.Engine, store storage.Storage, repo job.Repository, hub *events.Hub, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:           engine,
		store:            store,
		repo:             repo,
		hub:              hub,
		logger:           logger,
		progressInterval: opts.ProgressInterval,
		slots:            make(chan struct{}, opts.MaxConcurrentJobs),
		ctx:              ctx,
		cancel:           cancel,
		active:           make(map[string]*activeJob),
	}
}

// Events returns the hub that receives progress events.
func (s *Service) Events() *events.Hub {
	return s.hub
}

// MediaInfo reads the metadata of the video at path.
func (s *Service) MediaInfo(ctx context.Context, path string) (*media.Info, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	md, err := s.engine.ReadMetadata(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return media.NewInfo(md), nil
}

// DeleteAllCache empties the cache directory. Outputs of finished jobs
// live there too, so their output paths are cleared.
func (s *Service) DeleteAllCache(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	jobs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if !j.IsTerminal() || j.OutputPath == "" {
			continue
		}
		j.ClearOutput()
		if err := s.repo.Save(ctx, j); err != nil {
			return fmt.Errorf("save job %s: %w", j.ID, err)
		}
	}

	s.logger.Info("cache cleared", slog.String("cache_dir", s.store.CacheDir()))
	return nil
}

// Close cancels running exports and waits for their jobs to settle.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
