package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ffmpegExport is the ExportHandle of a running ffmpeg process.
type ffmpegExport struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	progress  atomic.Uint64 // math.Float64bits of the percentage

	updates chan float64
	done    chan struct{}
	err     error

	cancelOnce sync.Once
}

// startFFmpegExport starts ffmpeg and follows its -progress output.
// total is the expected output duration used to compute percentages.
func startFFmpegExport(ctx context.Context, ffmpegPath string, args []string, total time.Duration) (*ffmpegExport, error) {
	exportCtx, cancel := context.WithCancel(ctx)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(exportCtx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	x := &ffmpegExport{
		cancel:  cancel,
		updates: make(chan float64, 1),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(x.done)
		defer close(x.updates)
		defer cancel()

		// Drain progress before Wait, which closes the pipe.
		_ = parseProgress(stdout, total, x.report)

		waitErr := cmd.Wait()
		switch {
		case x.cancelled.Load():
			x.err = ErrExportCancelled
		case waitErr != nil && ctx.Err() != nil:
			x.err = fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		case waitErr != nil:
			x.err = &FFmpegError{Args: args, Stderr: stderr.String(), Err: waitErr}
		default:
			x.report(100)
		}
	}()

	return x, nil
}

// report stores p and offers it to the updates channel, replacing an
// unread value so a slow reader only sees the latest progress.
func (x *ffmpegExport) report(p float64) {
	x.progress.Store(math.Float64bits(p))
	for {
		select {
		case x.updates <- p:
			return
		default:
		}
		select {
		case <-x.updates:
		default:
		}
	}
}

func (x *ffmpegExport) Progress() float64 {
	return math.Float64frombits(x.progress.Load())
}

func (x *ffmpegExport) Updates() <-chan float64 {
	return x.updates
}

func (x *ffmpegExport) Cancel() {
	x.cancelOnce.Do(func() {
		x.cancelled.Store(true)
		x.cancel()
	})
}

func (x *ffmpegExport) Done() <-chan struct{} {
	return x.done
}

func (x *ffmpegExport) Wait() error {
	<-x.done
	return x.err
}

// parseProgress reads ffmpeg "-progress" key=value output and reports the
// completed share of total as a percentage in [0, 100). Reports are
// monotonic; 100 is left to the caller once the process has succeeded.
func parseProgress(r io.Reader, total time.Duration, report func(float64)) error {
	var last float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || total <= 0 {
			continue
		}

		// out_time_ms carries microseconds as well; older builds only print it.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue // "N/A" before the first packet
		}

		pct := float64(us) / float64(total.Microseconds()) * 100
		pct = min(pct, 99.9)
		if pct > last {
			last = pct
			report(pct)
		}
	}
	return scanner.Err()
}
