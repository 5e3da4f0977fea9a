package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
)

// Compile-time check that FFmpegEngine implements Engine.
var _ Engine = (*FFmpegEngine)(nil)

// FFmpegEngine implements Engine using the ffmpeg and ffprobe CLIs.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegEngine creates a new FFmpegEngine.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegEngine(ffmpegPath, ffprobePath string) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegEngine{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ExtractFrame decodes a single frame at position. ffmpeg applies the
// stream's display rotation by default, so the image is upright.
func (e *FFmpegEngine) ExtractFrame(ctx context.Context, path string, position time.Duration) (image.Image, error) {
	if err := statAsset(path); err != nil {
		return nil, err
	}
	if position < 0 {
		position = 0
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(position), // Seek before input for fast keyframe seeking
		"-i", path,
		"-frames:v", "1", // Single frame
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	}

	out, err := e.runFFmpeg(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", ErrFrameNotFound, path, position)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// StartExport starts ffmpeg in the background and returns a handle that
// reports progress parsed from ffmpeg's -progress output.
func (e *FFmpegEngine) StartExport(ctx context.Context, req ExportRequest) (ExportHandle, error) {
	if err := statAsset(req.Source); err != nil {
		return nil, err
	}
	if req.Range.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTimeRange, req.Range)
	}

	x, err := startFFmpegExport(ctx, e.ffmpegPath, exportArgs(req), req.Range.Duration())
	if err != nil {
		return nil, err
	}
	return x, nil
}

// exportArgs builds the ffmpeg arguments for an export request.
func exportArgs(req ExportRequest) []string {
	args := []string{
		"-hide_banner",
		"-nostats",
		"-loglevel", "error",
		"-y", // Overwrite output file without asking
	}
	if req.Range.Start > 0 {
		args = append(args, "-ss", formatSeconds(req.Range.Start))
	}
	args = append(args, "-i", req.Source)
	if !req.Range.ToEnd {
		args = append(args, "-t", formatSeconds(req.Range.Duration()))
	}

	args = append(args, "-map", "0:v:0")
	if req.IncludeAudio {
		args = append(args, "-map", "0:a:0?") // Optional: sources without audio still export
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", fmt.Sprint(req.Preset.CRF),
		"-pix_fmt", "yuv420p", // Pixel format for compatibility
	)
	if filter := req.Preset.scaleFilter(); filter != "" {
		args = append(args, "-vf", filter)
	}
	if req.FrameRate > 0 {
		args = append(args, "-r", fmt.Sprint(req.FrameRate))
	}

	if req.IncludeAudio {
		bitrate := req.Preset.AudioBitrate
		if bitrate == "" {
			bitrate = "128k"
		}
		args = append(args, "-c:a", "aac", "-b:a", bitrate)
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-movflags", "+faststart", // Playable while downloading
		"-f", "mp4",
		"-progress", "pipe:1", // key=value progress on stdout
		req.Output,
	)
	return args
}

// runFFmpeg executes ffmpeg with the given arguments and returns its stdout.
// The returned error contains stderr output if the command fails.
func (e *FFmpegEngine) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// statAsset maps a missing or unreadable source to ErrAssetNotFound.
func statAsset(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, path)
		}
		return fmt.Errorf("stat asset: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAssetNotFound, path)
	}
	return nil
}
