package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"fetchd/internal/adapter/repo"
	"fetchd/internal/domain"
	"fetchd/internal/retrieval"
	"fetchd/internal/storage"
)

type env struct {
	store     *repo.JobFileRepository
	workspace *storage.Workspace
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	store, err := repo.NewJobFileRepository(filepath.Join(root, "tasks"), filepath.Join(root, "locks"), zerolog.Nop())
	require.NoError(t, err)
	ws, err := storage.NewWorkspace(filepath.Join(root, "downloads"))
	require.NoError(t, err)
	return &env{store: store, workspace: ws}
}

// seed stores a job in the given status with a work dir.
func (e *env) seed(t *testing.T, status domain.JobStatus, mutate func(*domain.Job)) *domain.Job {
	t.Helper()
	id := uuid.Must(uuid.NewV7()).String()
	dir, err := e.workspace.NewDir(context.Background(), id)
	require.NoError(t, err)
	job := &domain.Job{
		ID:        id,
		URL:       "https://example/video1",
		Status:    status,
		CreatedAt: time.Now().UTC(),
		WorkDir:   dir,
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, e.store.Create(context.Background(), job))
	return job
}

func (e *env) get(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, ok := e.store.Get(context.Background(), id)
	require.True(t, ok, "job %s missing", id)
	return job
}

func (e *env) waitStatus(t *testing.T, id string, want domain.JobStatus) *domain.Job {
	t.Helper()
	var last *domain.Job
	require.Eventually(t, func() bool {
		job, ok := e.store.Get(context.Background(), id)
		if !ok {
			return false
		}
		last = job
		return job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
	return last
}

// fakeRetriever writes a small media file (and optionally a caption) into
// the output dir and reports a few progress samples.
type fakeRetriever struct {
	title    string
	caption  bool
	samples  []retrieval.Progress
	err      error
	block    chan struct{}
	panicMsg string

	mu    sync.Mutex
	calls int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// panics on the first call only
	if f.panicMsg != "" && call == 1 {
		panic(f.panicMsg)
	}
	for _, p := range f.samples {
		if req.Progress != nil {
			req.Progress <- p
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	primary := filepath.Join(req.OutputDir, "vid123.mp4")
	if err := os.WriteFile(primary, []byte("fake video payload"), 0o644); err != nil {
		return nil, err
	}
	res := &retrieval.Result{PrimaryFile: primary, Title: f.title, Extension: "mp4", Size: 18}
	if f.caption && req.SubtitleLang != "" {
		res.CaptionFile = filepath.Join(req.OutputDir, "vid123."+req.SubtitleLang+".vtt")
		if err := os.WriteFile(res.CaptionFile, []byte("WEBVTT\n"), 0o644); err != nil {
			return nil, err
		}
	}
	if req.Progress != nil {
		req.Progress <- retrieval.Progress{DownloadedBytes: 18, TotalBytes: 18, Finished: true}
	}
	return res, nil
}

func (f *fakeRetriever) Metadata(ctx context.Context, url string) (*retrieval.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Metadata{Title: f.title}, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
