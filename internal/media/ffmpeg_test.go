package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestVideo creates a small H.264 test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, width, height int, withAudio bool) {
	t.Helper()

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=s=%dx%d:r=25:d=%.1f", width, height, duration),
	}
	if withAudio {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
			"-c:a", "aac",
			"-shortest",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-metadata", "title=Test Clip",
		"-metadata", "artist=Test Author",
		path,
	)

	cmd := exec.Command("ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegEngine(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		e := NewFFmpegEngine("", "")
		if e.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", e.ffmpegPath)
		}
		if e.ffprobePath != "ffprobe" {
			t.Errorf("expected default path 'ffprobe', got %q", e.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		e := NewFFmpegEngine("/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe")
		if e.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", e.ffmpegPath)
		}
		if e.ffprobePath != "/usr/local/bin/ffprobe" {
			t.Errorf("expected custom path, got %q", e.ffprobePath)
		}
	})
}

func TestMissingAsset(t *testing.T) {
	e := NewFFmpegEngine("", "")
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing.mp4")

	if _, err := e.ReadMetadata(ctx, missing); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("ReadMetadata: expected ErrAssetNotFound, got %v", err)
	}
	if _, err := e.ExtractFrame(ctx, missing, 0); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("ExtractFrame: expected ErrAssetNotFound, got %v", err)
	}
	if _, err := e.StartExport(ctx, ExportRequest{Source: missing}); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("StartExport: expected ErrAssetNotFound, got %v", err)
	}
	if _, err := e.ReadMetadata(ctx, t.TempDir()); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("ReadMetadata on directory: expected ErrAssetNotFound, got %v", err)
	}
}

func TestExportArgs(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		args := exportArgs(ExportRequest{
			Source:       "in.mov",
			Output:       "out.mp4",
			Preset:       Preset640x480,
			Range:        TimeRange{Start: 2 * time.Second, End: 5500 * time.Millisecond},
			IncludeAudio: true,
			FrameRate:    24,
		})
		joined := strings.Join(args, " ")

		for _, want := range []string{
			"-ss 2.000 -i in.mov -t 3.500",
			"-map 0:v:0 -map 0:a:0?",
			"-crf 23",
			"-r 24",
			"-c:a aac -b:a 128k",
			"-progress pipe:1 out.mp4",
		} {
			if !strings.Contains(joined, want) {
				t.Errorf("expected args to contain %q, got %q", want, joined)
			}
		}
		if !slices.Contains(args, "-vf") {
			t.Error("expected a scale filter for a bounded preset")
		}
		if args[len(args)-1] != "out.mp4" {
			t.Errorf("expected output last, got %q", args[len(args)-1])
		}
	})

	t.Run("whole asset of known duration", func(t *testing.T) {
		args := exportArgs(ExportRequest{
			Source: "in.mov",
			Output: "out.mp4",
			Preset: PresetHighestQuality,
			Range:  NewTimeRange(nil, nil, 8*time.Second),
		})
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-i in.mov -t 8.000") {
			t.Errorf("expected -t bounded by the source duration, got %q", joined)
		}
		if slices.Contains(args, "-ss") {
			t.Errorf("unexpected -ss in %v", args)
		}
	})

	t.Run("no audio and untrimmed", func(t *testing.T) {
		args := exportArgs(ExportRequest{
			Source: "in.mov",
			Output: "out.mp4",
			Preset: PresetHighestQuality,
			Range:  TimeRange{ToEnd: true},
		})
		for _, absent := range []string{"-ss", "-t", "-vf", "-r", "-c:a"} {
			if slices.Contains(args, absent) {
				t.Errorf("unexpected %s in %v", absent, args)
			}
		}
		if !slices.Contains(args, "-an") {
			t.Error("expected -an when audio is excluded")
		}
	})
}

func TestStartExport_EmptyRange(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.mp4")
	if err := os.WriteFile(src, []byte("not a video"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	// ffmpeg is never started, so the binary path does not matter.
	e := NewFFmpegEngine("/nonexistent/ffmpeg", "/nonexistent/ffprobe")

	tests := []struct {
		name string
		rng  TimeRange
	}{
		{"zero duration", NewTimeRange(ptr(2), ptr(0), 10*time.Second)},
		{"start at the end", NewTimeRange(ptr(10), nil, 10*time.Second)},
		{"start past the end", NewTimeRange(ptr(30), ptr(5), 10*time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := e.StartExport(context.Background(), ExportRequest{
				Source: src,
				Output: filepath.Join(t.TempDir(), "out.mp4"),
				Range:  tt.rng,
			})
			if !errors.Is(err, ErrEmptyTimeRange) {
				t.Errorf("expected ErrEmptyTimeRange, got %v", err)
			}
			if h != nil {
				t.Error("expected no handle for an empty range")
			}
		})
	}
}

func TestReadMetadata(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	ctx := context.Background()

	t.Run("reads video with audio", func(t *testing.T) {
		path := filepath.Join(tmpDir, "clip.mp4")
		createTestVideo(t, path, 2.0, 320, 240, true)

		md, err := e.ReadMetadata(ctx, path)
		if err != nil {
			t.Fatalf("ReadMetadata failed: %v", err)
		}
		if md.Width != 320 || md.Height != 240 {
			t.Errorf("expected 320x240, got %dx%d", md.Width, md.Height)
		}
		if md.Duration < 1900*time.Millisecond || md.Duration > 2100*time.Millisecond {
			t.Errorf("expected ~2s duration, got %s", md.Duration)
		}
		if !md.HasAudio {
			t.Error("expected HasAudio")
		}
		if md.Title != "Test Clip" {
			t.Errorf("expected title 'Test Clip', got %q", md.Title)
		}
		if md.Author != "Test Author" {
			t.Errorf("expected author 'Test Author', got %q", md.Author)
		}
		if md.FileSize <= 0 {
			t.Errorf("expected positive file size, got %d", md.FileSize)
		}
		if md.Path != path {
			t.Errorf("expected path %q, got %q", path, md.Path)
		}
	})

	t.Run("mp4 inspection matches the video track", func(t *testing.T) {
		path := filepath.Join(tmpDir, "silent.mp4")
		createTestVideo(t, path, 1.0, 160, 120, false)

		info, err := InspectMP4(path)
		if err != nil {
			t.Fatalf("InspectMP4 failed: %v", err)
		}
		if info.SampleCount != 25 {
			t.Errorf("expected 25 samples, got %d", info.SampleCount)
		}
		st, _ := os.Stat(path)
		if info.VideoSampleBytes <= 0 || info.VideoSampleBytes >= st.Size() {
			t.Errorf("expected sample bytes in (0, %d), got %d", st.Size(), info.VideoSampleBytes)
		}
	})

	t.Run("rejects a file that is not media", func(t *testing.T) {
		path := filepath.Join(tmpDir, "notes.txt")
		if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := e.ReadMetadata(ctx, path); err == nil {
			t.Error("expected error for non-media file")
		}
	})
}

func TestExtractFrame(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	ctx := context.Background()

	path := filepath.Join(tmpDir, "frame.mp4")
	createTestVideo(t, path, 2.0, 160, 120, false)

	t.Run("decodes a frame", func(t *testing.T) {
		img, err := e.ExtractFrame(ctx, path, 500*time.Millisecond)
		if err != nil {
			t.Fatalf("ExtractFrame failed: %v", err)
		}
		b := img.Bounds()
		if b.Dx() != 160 || b.Dy() != 120 {
			t.Errorf("expected 160x120, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("position past the end", func(t *testing.T) {
		_, err := e.ExtractFrame(ctx, path, time.Minute)
		if !errors.Is(err, ErrFrameNotFound) {
			t.Errorf("expected ErrFrameNotFound, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := e.ExtractFrame(ctx, path, 0); err == nil {
			t.Error("expected error when context is cancelled")
		}
	})
}

func TestStartExport(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	ctx := context.Background()

	src := filepath.Join(tmpDir, "src.mp4")
	createTestVideo(t, src, 3.0, 640, 360, true)

	t.Run("exports a trimmed, scaled copy", func(t *testing.T) {
		out := filepath.Join(tmpDir, "out.mp4")
		h, err := e.StartExport(ctx, ExportRequest{
			Source:       src,
			Output:       out,
			Preset:       PresetLowQuality,
			Range:        TimeRange{Start: time.Second, End: 2 * time.Second},
			IncludeAudio: true,
		})
		if err != nil {
			t.Fatalf("StartExport failed: %v", err)
		}

		var last float64
		for p := range h.Updates() {
			if p < last {
				t.Errorf("progress went backwards: %v after %v", p, last)
			}
			last = p
		}
		if err := h.Wait(); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if h.Progress() != 100 {
			t.Errorf("expected final progress 100, got %v", h.Progress())
		}

		md, err := e.ReadMetadata(ctx, out)
		if err != nil {
			t.Fatalf("ReadMetadata on output failed: %v", err)
		}
		if md.Width != 192 || md.Height != 108 {
			t.Errorf("expected 192x108, got %dx%d", md.Width, md.Height)
		}
		if md.Duration < 900*time.Millisecond || md.Duration > 1200*time.Millisecond {
			t.Errorf("expected ~1s output, got %s", md.Duration)
		}
	})

	t.Run("cancel stops the export", func(t *testing.T) {
		out := filepath.Join(tmpDir, "cancelled.mp4")
		h, err := e.StartExport(ctx, ExportRequest{
			Source: src,
			Output: out,
			Preset: PresetHighestQuality,
			Range:  TimeRange{End: 3 * time.Second},
		})
		if err != nil {
			t.Fatalf("StartExport failed: %v", err)
		}
		h.Cancel()
		h.Cancel()

		if err := h.Wait(); !errors.Is(err, ErrExportCancelled) {
			t.Errorf("expected ErrExportCancelled, got %v", err)
		}
		select {
		case <-h.Done():
		default:
			t.Error("expected Done to be closed after Wait")
		}
	})
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-c", "copy", "output.mp4"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Error opening input file") {
		t.Error("Error() should contain stderr")
	}

	unwrapped := err.Unwrap()
	if unwrapped == nil || unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}
