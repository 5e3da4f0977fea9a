// Package storage owns the cache directory that holds thumbnails and
// compressed outputs, and optionally publishes outputs to S3.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrS3NotConfigured is returned by Upload when no bucket is configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Storage is the port used by the video service for its files.
type Storage interface {
	// CacheDir returns the directory that holds every generated file.
	CacheDir() string

	// ThumbnailPath returns the cache path of the thumbnail of source.
	ThumbnailPath(source string) string

	// OutputPath returns a new, unique cache path for an export of source.
	OutputPath(source string) string

	// WriteFile atomically writes data to path.
	WriteFile(ctx context.Context, path string, data io.Reader) error

	// Remove deletes the given files. Missing files are not an error.
	Remove(ctx context.Context, paths ...string) error

	// Clear removes every entry of the cache directory, leaving it empty.
	Clear(ctx context.Context) error

	// Upload publishes the file at path and returns its URL.
	// Returns ErrS3NotConfigured if uploads are not configured.
	Upload(ctx context.Context, path string) (url string, err error)

	// Unpublish deletes the object that Upload created for path.
	// Returns ErrS3NotConfigured if uploads are not configured.
	Unpublish(ctx context.Context, path string) error
}
