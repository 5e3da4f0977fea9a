package video

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"
)

// ThumbnailRequest selects a frame and its JPEG quality.
type ThumbnailRequest struct {
	Path string `json:"path" validate:"required"`
	// Quality is the JPEG quality. It must be set; values outside 1-100 are clamped.
	Quality int `json:"quality" validate:"required"`
	// Position is the frame time in seconds. Negative values mean 0.
	Position float64 `json:"position"`
}

// clampQuality maps any quality onto the JPEG range 1-100.
func clampQuality(q int) int {
	return min(max(q, 1), 100)
}

// position converts the request position to a duration.
func (r ThumbnailRequest) position() time.Duration {
	if r.Position <= 0 || math.IsNaN(r.Position) || math.IsInf(r.Position, 0) {
		return 0
	}
	if r.Position >= math.MaxInt64/float64(time.Second) {
		return math.MaxInt64
	}
	return time.Duration(r.Position * float64(time.Second))
}

// ByteThumbnail returns the JPEG-encoded frame at the requested position.
func (s *Service) ByteThumbnail(ctx context.Context, req ThumbnailRequest) ([]byte, error) {
	if req.Path == "" {
		return nil, ErrPathRequired
	}

	img, err := s.engine.ExtractFrame(ctx, req.Path, req.position())
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(req.Quality))); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// FileThumbnail writes the thumbnail to <cacheDir>/<name>.jpg and returns
// its path. A stale thumbnail at that path is removed first.
func (s *Service) FileThumbnail(ctx context.Context, req ThumbnailRequest) (string, error) {
	if req.Path == "" {
		return "", ErrPathRequired
	}

	dst := s.store.ThumbnailPath(req.Path)
	if err := s.store.Remove(ctx, dst); err != nil {
		s.logger.Warn("failed to remove stale thumbnail",
			slog.String("path", dst),
			slog.String("error", err.Error()),
		)
	}

	data, err := s.ByteThumbnail(ctx, req)
	if err != nil {
		return "", err
	}

	if err := s.store.WriteFile(ctx, dst, bytes.NewReader(data)); err != nil {
		s.logger.Error("failed to write thumbnail",
			slog.String("path", dst),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrThumbnailWrite, err)
	}

	s.logger.Debug("thumbnail written",
		slog.String("source", req.Path),
		slog.String("path", dst),
		slog.Int("bytes", len(data)),
	)
	return dst, nil
}
