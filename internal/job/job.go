// Package job provides the Job aggregate for tracking video compression jobs.
// Each job owns its own status, progress and cancellation flag, and a
// Repository maps job IDs to jobs.
package job

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/videocompress/internal/job/id"
	"github.com/maauso/videocompress/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for an export slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the export is in progress.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the export finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the export could not be started or failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by the caller.
	StatusCancelled Status = "CANCELLED"
)

var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrCancelRequested is returned by Complete once cancellation was requested.
	ErrCancelRequested = errors.New("cancellation requested")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Request holds the parameters of a compression.
type Request struct {
	// Path is the source video.
	Path string `json:"path" validate:"required"`
	// Quality is the preset tier (1-7). Other values use the default preset.
	Quality int `json:"quality"`
	// DeleteOrigin removes the source after a successful export.
	DeleteOrigin bool `json:"deleteOrigin"`
	// StartTime and Duration trim the export, in seconds.
	StartTime *float64 `json:"startTime,omitempty" validate:"omitempty,gte=0"`
	Duration  *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	// IncludeAudio defaults to true when nil.
	IncludeAudio *bool `json:"includeAudio,omitempty"`
	// FrameRate forces the output frame rate when > 0.
	FrameRate int `json:"frameRate,omitempty" validate:"gte=0,lte=240"`
	// Upload publishes the output to object storage.
	Upload bool `json:"upload,omitempty"`
}

// AudioIncluded reports whether the export keeps the audio track.
func (r Request) AudioIncluded() bool {
	return r.IncludeAudio == nil || *r.IncludeAudio
}

// Job represents a single compression and its outcome.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Request is the compression this job performs.
	Request Request
	// Progress is the percentage of completion (0-100).
	Progress float64
	// CancelRequested is set once by RequestCancel.
	CancelRequested bool
	// Result is the output MediaInfo, or the source MediaInfo with
	// isCancel set when the job was cancelled.
	Result *media.Info
	// Error contains any error message if the job failed.
	Error string
	// OutputPath is the exported file in the cache directory.
	OutputPath string
	// URL is the published location when Request.Upload was set.
	URL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the export started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial QUEUED status.
func New(req Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID and initial QUEUED status.
func NewWithID(jobID string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the output and transitions the job to COMPLETED.
// A job whose cancellation was requested cannot complete; the caller
// reports it as cancelled instead.
func (j *Job) Complete(outputPath string, result *media.Info) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.CancelRequested {
		return ErrCancelRequested
	}
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.Result = result
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel records the cancelled result and transitions the job to CANCELLED.
// result may be nil when the source could not be read.
func (j *Job) Cancel(result *media.Info) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	j.CancelRequested = true
	j.Result = result
	return nil
}

// RequestCancel sets the cancellation flag. It returns true only for the
// call that set it, and false once the job is terminal.
func (j *Job) RequestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.CancelRequested || j.isTerminalLocked() {
		return false
	}
	j.CancelRequested = true
	j.UpdatedAt = time.Now()
	return true
}

// IsCancelRequested reports whether cancellation was requested (thread-safe).
func (j *Job) IsCancelRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.CancelRequested
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = min(max(progress, 0), 100)
	j.UpdatedAt = time.Now()
}

// SetURL records where the output was published.
func (j *Job) SetURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.URL = url
	j.UpdatedAt = time.Now()
}

// ClearOutput clears the output path after the file was removed.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isTerminalLocked()
}

func (j *Job) isTerminalLocked() bool {
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	c := &Job{}
	j.snapshot().restore(c)
	return c
}

// record is the serialized form of a Job.
type record struct {
	ID              string      `json:"id"`
	Status          Status      `json:"status"`
	Request         Request     `json:"request"`
	Progress        float64     `json:"progress"`
	CancelRequested bool        `json:"cancelRequested"`
	Result          *media.Info `json:"result,omitempty"`
	Error           string      `json:"error,omitempty"`
	OutputPath      string      `json:"outputPath,omitempty"`
	URL             string      `json:"url,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	StartedAt       time.Time   `json:"startedAt"`
	CompletedAt     time.Time   `json:"completedAt"`
}

// snapshot copies the job's fields. The caller holds j.mu.
func (j *Job) snapshot() record {
	r := record{
		ID:              j.ID,
		Status:          j.Status,
		Request:         cloneRequest(j.Request),
		Progress:        j.Progress,
		CancelRequested: j.CancelRequested,
		Error:           j.Error,
		OutputPath:      j.OutputPath,
		URL:             j.URL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
	if j.Result != nil {
		res := *j.Result
		if res.IsCancel != nil {
			v := *res.IsCancel
			res.IsCancel = &v
		}
		r.Result = &res
	}
	return r
}

func (r record) restore(j *Job) {
	j.ID = r.ID
	j.Status = r.Status
	j.Request = r.Request
	j.Progress = r.Progress
	j.CancelRequested = r.CancelRequested
	j.Result = r.Result
	j.Error = r.Error
	j.OutputPath = r.OutputPath
	j.URL = r.URL
	j.CreatedAt = r.CreatedAt
	j.UpdatedAt = r.UpdatedAt
	j.StartedAt = r.StartedAt
	j.CompletedAt = r.CompletedAt
}

func cloneRequest(req Request) Request {
	c := req
	if req.StartTime != nil {
		v := *req.StartTime
		c.StartTime = &v
	}
	if req.Duration != nil {
		v := *req.Duration
		c.Duration = &v
	}
	if req.IncludeAudio != nil {
		v := *req.IncludeAudio
		c.IncludeAudio = &v
	}
	return c
}

// MarshalJSON implements json.Marshaler.
func (j *Job) MarshalJSON() ([]byte, error) {
	j.mu.RLock()
	r := j.snapshot()
	j.mu.RUnlock()
	return json.Marshal(r)
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *Job) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	r.restore(j)
	return nil
}
