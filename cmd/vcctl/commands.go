package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/maauso/videocompress/internal/bootstrap"
	"github.com/maauso/videocompress/internal/config"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/video"
)

// errMissingPath is returned when a command needs a <path> argument.
var errMissingPath = errors.New("missing <path> argument")

// cliApp holds the dependencies shared by the subcommands.
type cliApp struct {
	stdout io.Writer
	stderr io.Writer
	deps   *bootstrap.Dependencies
}

// setup loads configuration and builds the service before any command runs.
func (a *cliApp) setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dir := c.String("cache-dir"); dir != "" {
		cfg.CacheDir = dir
	}
	cfg.LogLevel = logLevel(c, cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.LevelVar()}))

	deps, err := bootstrap.NewDependencies(c.Context, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	a.deps = deps
	return nil
}

// logLevel picks the flag when it was given and LOG_LEVEL when only that
// is set. With neither, the flag default keeps the CLI quiet.
func logLevel(c *cli.Context, configured string) string {
	if c.IsSet("log-level") {
		return c.String("log-level")
	}
	if _, ok := os.LookupEnv("LOG_LEVEL"); ok {
		return configured
	}
	return c.String("log-level")
}

func (a *cliApp) teardown(_ *cli.Context) error {
	if a.deps == nil {
		return nil
	}
	return a.deps.Close()
}

func (a *cliApp) info(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errMissingPath
	}

	info, err := a.deps.VideoService.MediaInfo(c.Context, path)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func (a *cliApp) thumbnail(c *cli.Context) error {
	req := video.ThumbnailRequest{
		Path:     c.Args().First(),
		Quality:  c.Int("quality"),
		Position: c.Float64("position"),
	}
	if req.Path == "" {
		return errMissingPath
	}

	out := c.String("out")
	if out == "" {
		path, err := a.deps.VideoService.FileThumbnail(c.Context, req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, path)
		return err
	}

	data, err := a.deps.VideoService.ByteThumbnail(c.Context, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil { // #nosec G306 -- thumbnails are meant to be shared
		return fmt.Errorf("write thumbnail: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, out)
	return err
}

// compressRequest maps the compress flags onto a job request.
func compressRequest(c *cli.Context) job.Request {
	req := job.Request{
		Path:         c.Args().First(),
		Quality:      c.Int("quality"),
		DeleteOrigin: c.Bool("delete-origin"),
		FrameRate:    c.Int("frame-rate"),
		Upload:       c.Bool("upload"),
	}
	if c.IsSet("start") {
		v := c.Float64("start")
		req.StartTime = &v
	}
	if c.IsSet("duration") {
		v := c.Float64("duration")
		req.Duration = &v
	}
	if c.Bool("no-audio") {
		v := false
		req.IncludeAudio = &v
	}
	return req
}

// compress runs one compression, showing its progress on stderr. An
// interrupt cancels the job, which then reports isCancel.
func (a *cliApp) compress(c *cli.Context) error {
	req := compressRequest(c)
	if req.Path == "" {
		return errMissingPath
	}
	svc := a.deps.VideoService

	sub := svc.Events().Subscribe()
	defer sub.Close()

	started, err := svc.StartCompression(c.Context, req)
	if err != nil {
		return err
	}

	type outcome struct {
		job *job.Job
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		j, err := svc.Wait(context.Background(), started.ID)
		done <- outcome{j, err}
	}()

	progress := newProgressReporter(a.stderr, isTerminal(a.stderr))
	interrupted := c.Context.Done()
	var res outcome

loop:
	for {
		select {
		case e := <-sub.Events():
			if e.JobID == started.ID {
				progress.Update(e.Progress)
			}
		case <-interrupted:
			interrupted = nil
			if err := svc.Cancel(context.Background(), started.ID); err != nil {
				return err
			}
		case res = <-done:
			break loop
		}
	}

drain:
	for {
		select {
		case e := <-sub.Events():
			if e.JobID == started.ID {
				progress.Update(e.Progress)
			}
		default:
			break drain
		}
	}
	progress.Finish()

	if res.err != nil {
		return res.err
	}
	info, err := video.Result(res.job)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func (a *cliApp) clearCache(c *cli.Context) error {
	if err := a.deps.VideoService.DeleteAllCache(c.Context); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.stdout, "cache cleared")
	return err
}

func (a *cliApp) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
