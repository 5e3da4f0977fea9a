package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/videocompress/internal/channel"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
	"github.com/maauso/videocompress/internal/video"
)

// defaultKeepAlive is the interval between SSE comment lines on an idle stream.
const defaultKeepAlive = 15 * time.Second

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service    *video.Service
	dispatcher *channel.Dispatcher
	validator  *validator.Validate
	logger     *slog.Logger
	keepAlive  time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithKeepAlive sets the interval of keep-alive comments on event streams.
func WithKeepAlive(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *video.Service, dispatcher *channel.Dispatcher, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:    service,
		dispatcher: dispatcher,
		validator:  validator.New(),
		logger:     logger,
		keepAlive:  defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// InvokeChannel handles POST /channel/{method} requests. The JSON body is
// the argument map; an empty body means no arguments. A getByteThumbnail
// request that accepts image/jpeg receives the raw JPEG.
func (h *Handlers) InvokeChannel(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode channel arguments",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	result, err := h.dispatcher.Invoke(r.Context(), method, args)
	if err != nil {
		status, code := channelErrorStatus(err)
		if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
			h.logger.Error("channel method failed",
				slog.String("method", method),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, err.Error(), code)
		return
	}

	if data, ok := result.([]byte); ok && strings.Contains(r.Header.Get("Accept"), "image/jpeg") {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			h.logger.Warn("failed to write thumbnail", slog.String("error", err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, ChannelResponse{Result: result})
}

// channelErrorStatus maps a dispatcher error onto an HTTP status and code.
func channelErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, channel.ErrNotImplemented):
		return http.StatusNotImplemented, "NOT_IMPLEMENTED"
	case errors.Is(err, channel.ErrInvalidArguments), errors.Is(err, video.ErrPathRequired):
		return http.StatusBadRequest, "INVALID_ARGUMENTS"
	case errors.Is(err, media.ErrAssetNotFound):
		return http.StatusNotFound, "ASSET_NOT_FOUND"
	case errors.Is(err, media.ErrNoVideoTrack), errors.Is(err, media.ErrFrameNotFound):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_ASSET"
	case errors.Is(err, video.ErrThumbnailWrite):
		return http.StatusInternalServerError, "THUMBNAIL_WRITE_FAILED"
	case errors.Is(err, video.ErrCompressionFailed):
		return http.StatusInternalServerError, "COMPRESSION_FAILED"
	default:
		return http.StatusInternalServerError, "CHANNEL_ERROR"
	}
}

// Events handles GET /channel/events requests with a Server-Sent Events
// stream of outgoing method calls. ?jobId= limits the stream to one job.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	jobID := r.URL.Query().Get("jobId")

	sub := h.service.Events().Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream not flushable", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if jobID != "" && e.JobID != jobID {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Method, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// CreateJob handles POST /jobs requests. The compression runs in the
// background; poll GET /jobs/{id} or follow /channel/events.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.service.StartCompression(r.Context(), req.toJobRequest())
	if err != nil {
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		if errors.Is(err, video.ErrServiceClosed) {
			writeError(w, http.StatusServiceUnavailable, "service is shutting down", "SERVICE_CLOSED")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// DeleteJob handles DELETE /jobs/{id} requests. A job in flight is
// cancelled (202); a settled job is forgotten and its output removed (204).
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	err := h.service.DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		h.logger.Info("job deleted", slog.String("job_id", jobID))
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	case !errors.Is(err, video.ErrJobActive):
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}

	if err := h.service.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	current, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: jobID, Status: string(job.StatusCancelled)})
		return
	}
	writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: current.ID, Status: string(current.Status)})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
