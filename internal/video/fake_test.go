package video

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maauso/videocompress/internal/events"
	"github.com/maauso/videocompress/internal/job"
	"github.com/maauso/videocompress/internal/media"
	"github.com/maauso/videocompress/internal/storage"
)

// fakeEngine is an in-memory media.Engine. Exports stay running until the
// test finishes or cancels them, unless autoComplete is set.
type fakeEngine struct {
	mu           sync.Mutex
	metadata     map[string]*media.Metadata
	frame        image.Image
	lastPosition time.Duration
	exportErr    error
	autoComplete bool
	ignoreCancel bool
	exports      []*fakeExport
	started      chan *fakeExport
}

func newFakeEngine() *fakeEngine {
	frame := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			frame.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return &fakeEngine{
		metadata: make(map[string]*media.Metadata),
		frame:    frame,
		started:  make(chan *fakeExport, 16),
	}
}

func (e *fakeEngine) addAsset(path string, md media.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	md.Path = path
	e.metadata[path] = &md
}

func (e *fakeEngine) ExtractFrame(_ context.Context, path string, position time.Duration) (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.metadata[path]; !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrAssetNotFound, path)
	}
	e.lastPosition = position
	return e.frame, nil
}

func (e *fakeEngine) ReadMetadata(_ context.Context, path string) (*media.Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	md, ok := e.metadata[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrAssetNotFound, path)
	}
	c := *md
	return &c, nil
}

func (e *fakeEngine) StartExport(ctx context.Context, req media.ExportRequest) (media.ExportHandle, error) {
	e.mu.Lock()
	if e.exportErr != nil {
		err := e.exportErr
		e.mu.Unlock()
		return nil, err
	}
	if _, ok := e.metadata[req.Source]; !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", media.ErrAssetNotFound, req.Source)
	}
	x := &fakeExport{
		engine:       e,
		req:          req,
		updates:      make(chan float64, 16),
		done:         make(chan struct{}),
		ignoreCancel: e.ignoreCancel,
	}
	e.exports = append(e.exports, x)
	auto := e.autoComplete
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			x.finish(fmt.Errorf("ffmpeg cancelled: %w", ctx.Err()))
		case <-x.done:
		}
	}()

	e.started <- x
	if auto {
		go x.finish(nil)
	}
	return x, nil
}

func (e *fakeEngine) exportCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.exports)
}

// waitStarted returns the next export started by the service.
func (e *fakeEngine) waitStarted(t *testing.T) *fakeExport {
	t.Helper()
	select {
	case x := <-e.started:
		return x
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for export to start")
		return nil
	}
}

type fakeExport struct {
	engine       *fakeEngine
	req          media.ExportRequest
	ignoreCancel bool

	mu        sync.Mutex
	progress  float64
	closed    bool
	cancelled bool
	err       error
	updates   chan float64
	done      chan struct{}
}

func (x *fakeExport) Progress() float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.progress
}

func (x *fakeExport) Updates() <-chan float64 { return x.updates }

func (x *fakeExport) Done() <-chan struct{} { return x.done }

func (x *fakeExport) Cancel() {
	x.mu.Lock()
	x.cancelled = true
	ignore := x.ignoreCancel
	x.mu.Unlock()
	if !ignore {
		x.finish(media.ErrExportCancelled)
	}
}

func (x *fakeExport) Wait() error {
	<-x.done
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

func (x *fakeExport) wasCancelled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancelled
}

// send reports progress; it is a no-op once the export has ended.
func (x *fakeExport) send(p float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.progress = p
	x.updates <- p
}

// finish ends the export. A nil err writes the output and registers its
// metadata, the way a real export leaves a readable file behind.
func (x *fakeExport) finish(err error) {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.closed = true
	if err == nil {
		if werr := os.WriteFile(x.req.Output, []byte("mp4"), 0o600); werr != nil {
			err = werr
		} else {
			x.progress = 100
			x.updates <- 100
		}
	}
	x.err = err
	close(x.updates)
	close(x.done)
	x.mu.Unlock()

	if err == nil {
		x.engine.addAsset(x.req.Output, media.Metadata{
			Width:    480,
			Height:   270,
			Duration: x.req.Range.Duration(),
			FileSize: 3,
		})
	}
}

// uploadStorage is a LocalStorage whose uploads succeed.
type uploadStorage struct {
	*storage.LocalStorage
	// onUpload, when set, runs inside Upload before it returns.
	onUpload func()

	mu          sync.Mutex
	uploaded    []string
	unpublished []string
}

func (s *uploadStorage) Upload(_ context.Context, path string) (string, error) {
	if s.onUpload != nil {
		s.onUpload()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = append(s.uploaded, path)
	return "https://bucket.example.com/videos/" + path[len(s.CacheDir())+1:], nil
}

func (s *uploadStorage) Unpublish(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpublished = append(s.unpublished, path)
	return nil
}

type testEnv struct {
	svc    *Service
	engine *fakeEngine
	store  *storage.LocalStorage
	repo   *job.MemoryRepository
	hub    *events.Hub
	dir    string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir + "/cache")
	require.NoError(t, err)
	return newTestEnvWithStorage(t, opts, store, store)
}

func newTestEnvWithStorage(t *testing.T, opts Options, local *storage.LocalStorage, store storage.Storage) *testEnv {
	t.Helper()
	env := &testEnv{
		engine: newFakeEngine(),
		store:  local,
		repo:   job.NewMemoryRepository(),
		hub:    events.NewHub(256),
		dir:    t.TempDir(),
	}
	env.svc = NewService(env.engine, store, env.repo, env.hub, nil, opts)
	t.Cleanup(env.svc.Close)
	return env
}

// addSource writes a source file and registers its metadata.
func (env *testEnv) addSource(t *testing.T, name string, duration time.Duration) string {
	t.Helper()
	path := env.dir + "/" + name
	require.NoError(t, os.WriteFile(path, []byte("source"), 0o600))
	env.engine.addAsset(path, media.Metadata{
		Title:    "Holiday",
		Author:   "Sam",
		Width:    1920,
		Height:   1080,
		Rotation: 0,
		Duration: duration,
		FileSize: 6,
		HasAudio: true,
	})
	return path
}

func (env *testEnv) waitJob(t *testing.T, jobID string) *job.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := env.svc.Wait(ctx, jobID)
	require.NoError(t, err)
	return j
}

// nextEvent returns the next event or fails after a timeout.
func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}
