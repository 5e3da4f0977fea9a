// Package server provides the HTTP transport for the video compression
// service. It includes handlers, middleware, routes, and DTOs separated
// from domain types.
package server

import (
	"time"

	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
)

// ChannelResponse wraps the result of a channel method call.
type ChannelResponse struct {
	// Result is the method's return value. Byte results are base64 encoded.
	Result any `json:"result"`
}

// CreateJobRequest is the HTTP request body for starting a compression.
type CreateJobRequest struct {
	// Path is the source video on the server's filesystem.
	Path string `json:"path" validate:"required"`
	// Quality is the preset tier (1-7). Other values use the default preset.
	Quality int `json:"quality"`
	// DeleteOrigin removes the source after a successful export.
	DeleteOrigin bool `json:"deleteOrigin"`
	// StartTime and Duration trim the export, in seconds.
	StartTime *float64 `json:"startTime,omitempty" validate:"omitempty,gte=0"`
	Duration  *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	// IncludeAudio defaults to true.
	IncludeAudio *bool `json:"includeAudio,omitempty"`
	// FrameRate forces the output frame rate.
	FrameRate int `json:"frameRate,omitempty" validate:"gte=0,lte=240"`
	// Upload publishes the output to S3.
	Upload bool `json:"upload,omitempty"`
}

// toJobRequest maps the DTO onto the domain request.
func (r CreateJobRequest) toJobRequest() job.Request {
	return job.Request{
		Path:         r.Path,
		Quality:      r.Quality,
		DeleteOrigin: r.DeleteOrigin,
		StartTime:    r.StartTime,
		Duration:     r.Duration,
		IncludeAudio: r.IncludeAudio,
		FrameRate:    r.FrameRate,
		Upload:       r.Upload,
	}
}

// CreateJobResponse is the HTTP response after queuing a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the job status at the time of the response.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Path     string  `json:"path"`
	Progress float64 `json:"progress"`
	// Error contains the failure message of a FAILED job.
	Error string `json:"error,omitempty"`
	// Result is the output MediaInfo, or the source MediaInfo with isCancel set.
	Result *media.Info `json:"result,omitempty"`
	// URL is the S3 location of the output when the job was uploaded.
	URL         string     `json:"url,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// newJobResponse maps a job snapshot onto its DTO.
func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Path:      j.Request.Path,
		Progress:  j.Progress,
		Error:     j.Error,
		Result:    j.Result,
		URL:       j.URL,
		CreatedAt: j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
