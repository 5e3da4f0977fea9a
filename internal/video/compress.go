package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/videocompress/internal/events"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
)

// activeJob is the in-process state of a job that has not settled yet.
type activeJob struct {
	job *job.Job

	cancelOnce sync.Once
	cancelled  chan struct{}

	mu     sync.Mutex
	handle media.ExportHandle

	done chan struct{}
}

func newActiveJob(j *job.Job) *activeJob {
	return &activeJob{
		job:       j,
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// requestCancel flags the job and stops its export if one is running.
// It returns false if the job was already flagged or has settled.
func (a *activeJob) requestCancel() bool {
	if !a.job.RequestCancel() {
		return false
	}
	a.cancelOnce.Do(func() { close(a.cancelled) })

	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
	return true
}

// setHandle records the running export, cancelling it right away if
// cancellation was requested while it was starting.
func (a *activeJob) setHandle(h media.ExportHandle) {
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()
	if a.job.IsCancelRequested() {
		h.Cancel()
	}
}

// StartCompression queues a compression and returns the new job.
// The export runs in the background; use Wait or GetJob to follow it.
func (s *Service) StartCompression(ctx context.Context, req job.Request) (*job.Job, error) {
	if req.Path == "" {
		return nil, ErrPathRequired
	}

	j := job.New(req)
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	a := newActiveJob(j)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = j.Fail(ErrServiceClosed.Error())
		_ = s.repo.Save(context.WithoutCancel(ctx), j)
		return nil, ErrServiceClosed
	}
	s.active[j.ID] = a
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("compression queued",
		slog.String("job_id", j.ID),
		slog.String("path", req.Path),
		slog.Int("quality", req.Quality),
		slog.Bool("delete_origin", req.DeleteOrigin),
		slog.Bool("include_audio", req.AudioIncluded()),
		slog.Int("frame_rate", req.FrameRate),
	)

	snapshot := j.Clone()
	go s.run(a)
	return snapshot, nil
}

// Compress runs a compression to completion. A cancelled compression
// returns the source MediaInfo with isCancel set. If ctx ends first the
// job is cancelled.
func (s *Service) Compress(ctx context.Context, req job.Request) (*media.Info, error) {
	started, err := s.StartCompression(ctx, req)
	if err != nil {
		return nil, err
	}

	finished, err := s.Wait(ctx, started.ID)
	if err != nil {
		if ctx.Err() != nil {
			_ = s.Cancel(context.WithoutCancel(ctx), started.ID)
		}
		return nil, err
	}
	return Result(finished)
}

// Result returns the outcome of a settled job.
func Result(j *job.Job) (*media.Info, error) {
	switch j.GetStatus() {
	case job.StatusCompleted:
		return j.Result, nil
	case job.StatusCancelled:
		if j.Result != nil {
			return j.Result, nil
		}
		return (&media.Info{Path: j.Request.Path}).WithCancel(true), nil
	case job.StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrCompressionFailed, j.Error)
	default:
		return nil, fmt.Errorf("job %s has not finished: %s", j.ID, j.GetStatus())
	}
}

// Wait blocks until the job settles or ctx ends, then returns the job.
func (s *Service) Wait(ctx context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()

	if ok {
		select {
		case <-a.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.repo.FindByID(ctx, jobID)
}

// Cancel requests cancellation of a job. Cancelling a settled job is a
// no-op; an unknown job returns job.ErrJobNotFound.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()

	if !ok {
		_, err := s.repo.FindByID(ctx, jobID)
		return err
	}

	if a.requestCancel() {
		s.logger.Info("compression cancel requested", slog.String("job_id", jobID))
	}
	return nil
}

// CancelAll requests cancellation of every job in flight and returns how
// many were flagged. It never fails when nothing is running.
func (s *Service) CancelAll(_ context.Context) int {
	s.mu.Lock()
	active := make([]*activeJob, 0, len(s.active))
	for _, a := range s.active {
		active = append(active, a)
	}
	s.mu.Unlock()

	n := 0
	for _, a := range active {
		if a.requestCancel() {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("compressions cancel requested", slog.Int("count", n))
	}
	return n
}

// GetJob returns a job by ID. Jobs in flight are read live so their
// progress is current.
func (s *Service) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	a, ok := s.active[jobID]
	s.mu.Unlock()
	if ok {
		return a.job.Clone(), nil
	}
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns all known jobs, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range jobs {
		if a, ok := s.active[j.ID]; ok {
			jobs[i] = a.job.Clone()
		}
	}
	return jobs, nil
}

// DeleteJob forgets a settled job and removes its output file.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	_, active := s.active[jobID]
	s.mu.Unlock()
	if active {
		return ErrJobActive
	}

	j, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, jobID); err != nil {
		return err
	}
	if j.OutputPath != "" {
		if err := s.store.Remove(ctx, j.OutputPath); err != nil {
			s.logger.Warn("failed to remove job output",
				slog.String("job_id", jobID),
				slog.String("path", j.OutputPath),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// run drives one job from QUEUED to a terminal state.
func (s *Service) run(a *activeJob) {
	defer s.wg.Done()
	defer s.finish(a)

	ctx := s.ctx
	j := a.job
	src := j.Request.Path

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-a.cancelled:
		s.settleCancelled(a, s.sourceInfo(ctx, src))
		return
	case <-ctx.Done():
		s.settleFailed(a, ctx.Err())
		return
	}

	if j.IsCancelRequested() {
		s.settleCancelled(a, s.sourceInfo(ctx, src))
		return
	}

	md, err := s.engine.ReadMetadata(ctx, src)
	if err != nil {
		s.settleFailed(a, fmt.Errorf("read source metadata: %w", err))
		return
	}
	source := media.NewInfo(md)

	rng := media.NewTimeRange(j.Request.StartTime, j.Request.Duration, md.Duration)
	if rng.Empty() {
		s.settleFailed(a, fmt.Errorf("%w: %s of a %s asset", media.ErrEmptyTimeRange, rng, md.Duration))
		return
	}

	if err := j.Start(); err != nil {
		s.settleFailed(a, err)
		return
	}
	s.save(j)

	out := s.store.OutputPath(src)
	exportReq := media.ExportRequest{
		Source:       src,
		Output:       out,
		Preset:       media.PresetForTier(j.Request.Quality),
		Range:        rng,
		IncludeAudio: j.Request.AudioIncluded(),
		FrameRate:    j.Request.FrameRate,
	}

	s.logger.Info("compression started",
		slog.String("job_id", j.ID),
		slog.String("preset", exportReq.Preset.Name),
		slog.String("range", exportReq.Range.String()),
		slog.String("output", out),
	)

	handle, err := s.engine.StartExport(ctx, exportReq)
	if err != nil {
		s.settleFailed(a, fmt.Errorf("start export: %w", err))
		return
	}
	a.setHandle(handle)

	s.followProgress(a, handle)
	err = handle.Wait()

	switch {
	case j.IsCancelRequested() || errors.Is(err, media.ErrExportCancelled):
		s.removeOutput(j.ID, out)
		s.settleCancelled(a, source)
	case err != nil:
		s.removeOutput(j.ID, out)
		s.settleFailed(a, err)
	default:
		s.settleExported(a, source, out)
	}
}

// followProgress forwards export progress until the export ends. Events
// are throttled per job and suppressed once cancellation was requested.
// The final 100 is published when the job completes.
func (s *Service) followProgress(a *activeJob, h media.ExportHandle) {
	var last time.Time
	for p := range h.Updates() {
		if p >= 100 || a.job.IsCancelRequested() {
			continue
		}
		a.job.UpdateProgress(p)

		now := time.Now()
		if now.Sub(last) < s.progressInterval {
			continue
		}
		last = now
		s.hub.Publish(events.Progress(a.job.ID, p))
	}
}

// settleExported validates the output, applies upload and deleteOrigin,
// and completes the job. A cancellation that raced the export wins.
func (s *Service) settleExported(a *activeJob, source *media.Info, out string) {
	ctx := s.ctx
	j := a.job

	md, err := s.engine.ReadMetadata(ctx, out)
	if err != nil {
		s.removeOutput(j.ID, out)
		s.settleFailed(a, fmt.Errorf("read output metadata: %w", err))
		return
	}

	if j.Request.Upload {
		if j.IsCancelRequested() {
			s.removeOutput(j.ID, out)
			s.settleCancelled(a, source)
			return
		}
		url, err := s.store.Upload(ctx, out)
		if err != nil {
			s.removeOutput(j.ID, out)
			s.settleFailed(a, fmt.Errorf("upload output: %w", err))
			return
		}
		j.SetURL(url)
	}

	if err := j.Complete(out, media.NewInfo(md).WithCancel(false)); err != nil {
		if errors.Is(err, job.ErrCancelRequested) {
			s.removeOutput(j.ID, out)
			if j.Request.Upload {
				s.unpublish(j, out)
			}
			s.settleCancelled(a, source)
			return
		}
		s.settleFailed(a, err)
		return
	}
	s.save(j)
	s.hub.Publish(events.Progress(j.ID, 100))

	if j.Request.DeleteOrigin {
		if err := s.store.Remove(ctx, j.Request.Path); err != nil {
			s.logger.Warn("failed to delete origin",
				slog.String("job_id", j.ID),
				slog.String("path", j.Request.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("compression completed",
		slog.String("job_id", j.ID),
		slog.String("output", out),
		slog.Int64("filesize", md.FileSize),
		slog.String("url", j.URL),
	)
}

// settleCancelled reports the source MediaInfo with isCancel set.
func (s *Service) settleCancelled(a *activeJob, source *media.Info) {
	j := a.job
	if err := j.Cancel(source.WithCancel(true)); err != nil {
		s.logger.Error("failed to cancel job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(j)
	s.logger.Info("compression cancelled", slog.String("job_id", j.ID))
}

// settleFailed records cause. A job whose cancellation was requested is
// reported as cancelled instead, with whatever source info is readable.
func (s *Service) settleFailed(a *activeJob, cause error) {
	j := a.job
	if j.IsCancelRequested() {
		s.settleCancelled(a, s.sourceInfo(s.ctx, j.Request.Path))
		return
	}
	if err := j.Fail(cause.Error()); err != nil {
		s.logger.Error("failed to fail job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(j)
	s.logger.Error("compression failed",
		slog.String("job_id", j.ID),
		slog.String("error", cause.Error()),
	)
}

// finish unregisters a settled job and releases its waiters.
func (s *Service) finish(a *activeJob) {
	s.mu.Lock()
	delete(s.active, a.job.ID)
	s.mu.Unlock()
	close(a.done)
}

// sourceInfo reads the source MediaInfo, falling back to its path alone.
func (s *Service) sourceInfo(ctx context.Context, path string) *media.Info {
	md, err := s.engine.ReadMetadata(ctx, path)
	if err != nil {
		return &media.Info{Path: path}
	}
	return media.NewInfo(md)
}

func (s *Service) removeOutput(jobID, out string) {
	if err := s.store.Remove(context.WithoutCancel(s.ctx), out); err != nil {
		s.logger.Warn("failed to remove partial output",
			slog.String("job_id", jobID),
			slog.String("path", out),
			slog.String("error", err.Error()),
		)
	}
}

// unpublish deletes the uploaded copy of a job that was cancelled after
// its upload.
func (s *Service) unpublish(j *job.Job, out string) {
	if err := s.store.Unpublish(context.WithoutCancel(s.ctx), out); err != nil {
		s.logger.Warn("failed to delete uploaded output",
			slog.String("job_id", j.ID),
			slog.String("url", j.URL),
			slog.String("error", err.Error()),
		)
	}
	j.SetURL("")
}

// save persists j. Background saves must not be cut short by Close.
func (s *Service) save(j *job.Job) {
	if err := s.repo.Save(context.WithoutCancel(s.ctx), j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}
