package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressReporter displays compression progress.
type progressReporter interface {
	Update(percent float64)
	Finish()
}

// newProgressReporter draws a bar on terminals and prints a line every
// ten percent otherwise.
func newProgressReporter(w io.Writer, tty bool) progressReporter {
	if !tty {
		return &lineReporter{w: w, last: -1}
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Compressing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	return &barReporter{bar: bar}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type barReporter struct {
	bar *progressbar.ProgressBar
}

func (r *barReporter) Update(percent float64) {
	_ = r.bar.Set(int(percent))
}

func (r *barReporter) Finish() {
	_ = r.bar.Finish()
}

type lineReporter struct {
	w    io.Writer
	last int
}

func (r *lineReporter) Update(percent float64) {
	step := int(min(max(percent, 0), 100)) / 10 * 10
	if step <= r.last {
		return
	}
	r.last = step
	fmt.Fprintf(r.w, "progress: %d%%\n", step)
}

func (r *lineReporter) Finish() {}
