// Package media provides the platform media capability used by the service:
// frame extraction, metadata reading and asynchronous exports.
package media

import (
	"context"
	"errors"
	"image"
	"time"
)

// Static errors for media operations.
var (
	// ErrAssetNotFound is returned when the source path does not exist.
	ErrAssetNotFound = errors.New("media: asset not found")
	// ErrNoVideoTrack is returned when the asset has no video stream.
	ErrNoVideoTrack = errors.New("media: asset has no video track")
	// ErrFrameNotFound is returned when no frame could be decoded at the requested position.
	ErrFrameNotFound = errors.New("media: no frame at position")
	// ErrExportCancelled is returned by ExportHandle.Wait when the export was cancelled.
	ErrExportCancelled = errors.New("media: export cancelled")
	// ErrEmptyTimeRange is returned by StartExport when the time range selects nothing.
	ErrEmptyTimeRange = errors.New("media: empty time range")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// Metadata describes a media asset as seen by the player: dimensions are
// display dimensions, after the track's rotation has been applied.
type Metadata struct {
	Path   string
	Title  string
	Author string
	// Width and Height are the display dimensions in pixels.
	Width  int
	Height int
	// Rotation is the clockwise display rotation in degrees (0, 90, 180 or 270).
	Rotation int
	Duration time.Duration
	// FileSize is the byte length of the video track's samples when known,
	// otherwise the container size.
	FileSize   int64
	FrameRate  float64
	VideoCodec string
	HasAudio   bool
}

// ExportRequest describes a single export (transcode) of a source asset.
type ExportRequest struct {
	Source       string
	Output       string
	Preset       Preset
	Range        TimeRange
	IncludeAudio bool
	// FrameRate forces the output frame rate when positive.
	FrameRate int
}

// ExportHandle is an in-flight export.
type ExportHandle interface {
	// Progress returns the last known completion percentage (0-100).
	Progress() float64
	// Updates delivers progress changes. Only the most recent value is kept
	// for a slow reader. The channel is closed when the export ends.
	Updates() <-chan float64
	// Cancel stops the export. It is safe to call more than once.
	Cancel()
	// Done is closed when the export has ended.
	Done() <-chan struct{}
	// Wait blocks until the export ends. It returns ErrExportCancelled
	// after Cancel, or the export's failure.
	Wait() error
}

// Engine defines the media operations the service depends on.
// Implementations delegate decoding, encoding and muxing to an external tool.
type Engine interface {
	// ExtractFrame decodes the frame at position with the track's rotation applied.
	ExtractFrame(ctx context.Context, path string, position time.Duration) (image.Image, error)

	// ReadMetadata returns the metadata of the asset at path.
	// Returns ErrAssetNotFound or ErrNoVideoTrack for unusable assets.
	ReadMetadata(ctx context.Context, path string) (*Metadata, error)

	// StartExport starts an asynchronous export and returns its handle.
	// The export runs until it completes, fails, ctx is done or Cancel is called.
	StartExport(ctx context.Context, req ExportRequest) (ExportHandle, error)
}
