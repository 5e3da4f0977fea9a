// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrCacheDirRequired is returned when CACHE_DIR resolves to an empty path.
	ErrCacheDirRequired = errors.New("config: CACHE_DIR is required")
	// ErrInvalidMaxConcurrentJobs is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrInvalidMaxConcurrentJobs = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
	// ErrInvalidProgressInterval is returned when PROGRESS_INTERVAL is not positive.
	ErrInvalidProgressInterval = errors.New("config: PROGRESS_INTERVAL must be positive")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Media tool settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Cache directory for thumbnails and compressed outputs
	CacheDir string `env:"CACHE_DIR, default=/tmp/video_compress" json:"cache_dir"`

	// Compression settings
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	ProgressInterval  time.Duration `env:"PROGRESS_INTERVAL, default=100ms" json:"progress_interval"`

	// Optional persistent job history
	JobDBPath string `env:"JOB_DB_PATH" json:"job_db_path,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional bearer token auth
	AuthJWTSecret string `env:"AUTH_JWT_SECRET" json:"-"` // Masked in JSON
	AuthJWTIssuer string `env:"AUTH_JWT_ISSUER" json:"auth_jwt_issuer,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"

	// level backs the logger returned by NewLogger so it can change at runtime.
	level *slog.LevelVar
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// AuthEnabled returns true if bearer token auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return ErrCacheDirRequired
	}
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidMaxConcurrentJobs
	}
	if c.ProgressInterval <= 0 {
		return ErrInvalidProgressInterval
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// LevelVar returns the level variable shared by every logger built from this config.
func (c *Config) LevelVar() *slog.LevelVar {
	if c.level == nil {
		c.level = new(slog.LevelVar)
		c.level.Set(ParseLogLevel(c.LogLevel))
	}
	return c.level
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LevelVar()}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, CacheDir: %s, FFmpegPath: %s, FFprobePath: %s, MaxConcurrentJobs: %d, ProgressInterval: %s, JobDBPath: %s, S3Bucket: %s, S3Region: %s, Auth: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.CacheDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.MaxConcurrentJobs,
		c.ProgressInterval,
		c.JobDBPath,
		c.S3Bucket,
		c.S3Region,
		c.AuthEnabled(),
		c.LogFormat,
		c.LogLevel,
	)
}

// ParseLogLevel converts a string log level to slog.Level.
// Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
