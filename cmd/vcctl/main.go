// Package main provides vcctl, a command-line client that runs the video
// compression service in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := &cliApp{stdout: os.Stdout, stderr: os.Stderr}

	return &cli.App{
		Name:  "vcctl",
		Usage: "inspect, thumbnail and compress videos with ffmpeg",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "directory for thumbnails and compressed outputs",
				EnvVars: []string{"CACHE_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "warn",
				EnvVars: []string{"VCCTL_LOG_LEVEL"},
			},
		},
		Before: a.setup,
		After:  a.teardown,
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print the MediaInfo of a video as JSON",
				ArgsUsage: "<path>",
				Action:    a.info,
			},
			{
				Name:      "thumbnail",
				Usage:     "extract a JPEG thumbnail",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Value: 100, Usage: "JPEG quality (1-100)"},
					&cli.Float64Flag{Name: "position", Aliases: []string{"p"}, Usage: "frame time in seconds"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the JPEG here instead of the cache directory"},
				},
				Action: a.thumbnail,
			},
			{
				Name:      "compress",
				Usage:     "compress a video and print the resulting MediaInfo as JSON",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Value: 2, Usage: "preset tier (1-7)"},
					&cli.BoolFlag{Name: "delete-origin", Usage: "delete the source after a successful export"},
					&cli.Float64Flag{Name: "start", Usage: "start time in seconds"},
					&cli.Float64Flag{Name: "duration", Usage: "duration in seconds"},
					&cli.BoolFlag{Name: "no-audio", Usage: "drop the audio track"},
					&cli.IntFlag{Name: "frame-rate", Usage: "force the output frame rate"},
					&cli.BoolFlag{Name: "upload", Usage: "upload the output to S3"},
				},
				Action: a.compress,
			},
			{
				Name:   "clear-cache",
				Usage:  "delete every file in the cache directory",
				Action: a.clearCache,
			},
		},
	}
}
