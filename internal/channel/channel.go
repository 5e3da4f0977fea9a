// Package channel maps named method calls with loosely typed arguments onto
// the video service. It is the wire contract shared by the HTTP transport
// and any other caller that speaks in method names.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
	"github.com/maauso/videocompress/internal/video"
)

// Incoming method names.
const (
	MethodGetByteThumbnail  = "getByteThumbnail"
	MethodGetFileThumbnail  = "getFileThumbnail"
	MethodGetMediaInfo      = "getMediaInfo"
	MethodCompressVideo     = "compressVideo"
	MethodCancelCompression = "cancelCompression"
	MethodDeleteAllCache    = "deleteAllCache"
	MethodSetLogLevel       = "setLogLevel"
)

var (
	// ErrNotImplemented is returned for method names the dispatcher does not know.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidArguments is returned when arguments cannot be decoded or fail validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// emptyMediaInfo is the getMediaInfo result for assets that cannot be read.
const emptyMediaInfo = "{}"

// Service is the part of video.Service the dispatcher calls.
type Service interface {
	ByteThumbnail(ctx context.Context, req video.ThumbnailRequest) ([]byte, error)
	FileThumbnail(ctx context.Context, req video.ThumbnailRequest) (string, error)
	MediaInfo(ctx context.Context, path string) (*media.Info, error)
	Compress(ctx context.Context, req job.Request) (*media.Info, error)
	Cancel(ctx context.Context, jobID string) error
	CancelAll(ctx context.Context) int
	DeleteAllCache(ctx context.Context) error
}

type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher routes method calls to the video service.
type Dispatcher struct {
	service   Service
	validator *validator.Validate
	level     *slog.LevelVar
	logger    *slog.Logger
	methods   map[string]handlerFunc
}

// NewDispatcher creates a Dispatcher. level is the variable setLogLevel
// adjusts; it may be nil, in which case setLogLevel only acknowledges.
func NewDispatcher(service Service, level *slog.LevelVar, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		service:   service,
		validator: validator.New(),
		level:     level,
		logger:    logger,
	}
	d.methods = map[string]handlerFunc{
		MethodGetByteThumbnail:  d.getByteThumbnail,
		MethodGetFileThumbnail:  d.getFileThumbnail,
		MethodGetMediaInfo:      d.getMediaInfo,
		MethodCompressVideo:     d.compressVideo,
		MethodCancelCompression: d.cancelCompression,
		MethodDeleteAllCache:    d.deleteAllCache,
		MethodSetLogLevel:       d.setLogLevel,
	}
	return d
}

// Methods returns the supported method names, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke calls method with args. Unknown methods return ErrNotImplemented.
func (d *Dispatcher) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	h, ok := d.methods[method]
	if !ok {
		d.logger.Debug("method not implemented", slog.String("method", method))
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, method)
	}
	return h(ctx, args)
}

// decode copies args into dst through their JSON form and validates dst.
func (d *Dispatcher) decode(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := d.validator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return nil
}

func (d *Dispatcher) getByteThumbnail(ctx context.Context, args map[string]any) (any, error) {
	var req video.ThumbnailRequest
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}
	return d.service.ByteThumbnail(ctx, req)
}

func (d *Dispatcher) getFileThumbnail(ctx context.Context, args map[string]any) (any, error) {
	var req video.ThumbnailRequest
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}
	return d.service.FileThumbnail(ctx, req)
}

type mediaInfoArgs struct {
	Path string `json:"path" validate:"required"`
}

// getMediaInfo never fails for a readable argument set: assets that are
// missing or unreadable yield "{}".
func (d *Dispatcher) getMediaInfo(ctx context.Context, args map[string]any) (any, error) {
	var req mediaInfoArgs
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}

	info, err := d.service.MediaInfo(ctx, req.Path)
	if err != nil {
		d.logger.Warn("media info unavailable",
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return emptyMediaInfo, nil
	}
	return encode(info)
}

func (d *Dispatcher) compressVideo(ctx context.Context, args map[string]any) (any, error) {
	var req job.Request
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}

	info, err := d.service.Compress(ctx, req)
	if err != nil {
		return nil, err
	}
	return encode(info)
}

type cancelArgs struct {
	JobID string `json:"jobId"`
}

// cancelCompression cancels one job when jobId is given and every job in
// flight otherwise. It succeeds when nothing is running.
func (d *Dispatcher) cancelCompression(ctx context.Context, args map[string]any) (any, error) {
	var req cancelArgs
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}

	if req.JobID == "" {
		d.service.CancelAll(ctx)
		return "", nil
	}
	if err := d.service.Cancel(ctx, req.JobID); err != nil && !errors.Is(err, job.ErrJobNotFound) {
		return nil, err
	}
	return "", nil
}

func (d *Dispatcher) deleteAllCache(ctx context.Context, _ map[string]any) (any, error) {
	if err := d.service.DeleteAllCache(ctx); err != nil {
		return nil, err
	}
	return true, nil
}

type logLevelArgs struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// setLogLevel adjusts the runtime log level when a level is given.
func (d *Dispatcher) setLogLevel(_ context.Context, args map[string]any) (any, error) {
	var req logLevelArgs
	if err := d.decode(args, &req); err != nil {
		return nil, err
	}
	if req.Level == "" || d.level == nil {
		return true, nil
	}

	name := strings.ToLower(req.Level)
	if name == "warning" {
		name = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	d.level.Set(lvl)
	d.logger.Info("log level changed", slog.String("level", lvl.String()))
	return true, nil
}

// encode renders v as a JSON string result.
func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
