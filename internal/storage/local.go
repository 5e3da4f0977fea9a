package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements Storage on local disk. It does not support
// uploads unless wrapped with S3Storage.
type LocalStorage struct {
	cacheDir string
}

// NewLocalStorage creates the cache directory if needed.
// If cacheDir is empty, a video_compress directory under os.TempDir() is used.
func NewLocalStorage(cacheDir string) (*LocalStorage, error) {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "video_compress")
	}

	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &LocalStorage{cacheDir: cacheDir}, nil
}

// CacheDir returns the cache directory path.
func (s *LocalStorage) CacheDir() string {
	return s.cacheDir
}

// ThumbnailPath returns <cacheDir>/<source name without extension>.jpg.
func (s *LocalStorage) ThumbnailPath(source string) string {
	return filepath.Join(s.cacheDir, baseName(source)+".jpg")
}

// OutputPath returns <cacheDir>/<source name without extension><uuid>.mp4.
func (s *LocalStorage) OutputPath(source string) string {
	return filepath.Join(s.cacheDir, baseName(source)+uuid.NewString()+".mp4")
}

// baseName strips the directory and extension of path.
func baseName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "video"
	}
	return name
}

// WriteFile writes data to a temporary file next to path and renames it
// into place, so readers never see a partial file.
func (s *LocalStorage) WriteFile(ctx context.Context, path string, data io.Reader) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename file: %w", err)
	}

	return nil
}

// Remove deletes the given files. It continues even if some files fail
// to delete, returning the first error encountered.
func (s *LocalStorage) Remove(ctx context.Context, paths ...string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Clear removes every entry of the cache directory and recreates the
// directory if it went missing.
func (s *LocalStorage) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read cache directory: %w", err)
	}

	var firstErr error
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		p := filepath.Join(s.cacheDir, e.Name())
		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", p, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if err := os.MkdirAll(s.cacheDir, 0750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	return nil
}

// Upload is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Upload(_ context.Context, _ string) (string, error) {
	return "", ErrS3NotConfigured
}

// Unpublish is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Unpublish(_ context.Context, _ string) error {
	return ErrS3NotConfigured
}
