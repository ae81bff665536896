package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchd/internal/domain"
)

func (e *env) seedCompleted(t *testing.T) *domain.Job {
	t.Helper()
	return e.seed(t, domain.JobStatusCompleted, func(j *domain.Job) {
		path := filepath.Join(j.WorkDir, "clip.mp4")
		require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
		now := time.Now().UTC()
		j.Progress = 100
		j.CompletedAt = &now
		j.Artifact = &domain.Artifact{Path: path, Filename: "Clip.mp4", Size: 7, MimeType: "video/mp4"}
	})
}

func TestConsumeExactlyOnceUnderContention(t *testing.T) {
	e := newEnv(t)
	delivery := NewDelivery(e.store)
	job := e.seedCompleted(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		gone      atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			art, err := delivery.Consume(context.Background(), job.ID)
			switch {
			case err == nil:
				assert.Equal(t, "Clip.mp4", art.Filename)
				successes.Add(1)
			case errors.Is(err, domain.ErrGone):
				gone.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), gone.Load())
	assert.Equal(t, 1, e.get(t, job.ID).ConsumptionCount)
}

func TestConsumeErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	delivery := NewDelivery(e.store)

	_, err := delivery.Consume(ctx, "8a0c6e0a-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, status := range []domain.JobStatus{domain.JobStatusPending, domain.JobStatusDownloading, domain.JobStatusProcessing, domain.JobStatusFailed} {
		job := e.seed(t, status, nil)
		_, err := delivery.Consume(ctx, job.ID)
		assert.ErrorIs(t, err, domain.ErrNotReady, "status %s", status)
	}

	vanished := e.seedCompleted(t)
	require.NoError(t, os.Remove(vanished.Artifact.Path))
	_, err = delivery.Consume(ctx, vanished.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, e.get(t, vanished.ID).ConsumptionCount, "missing file must not consume")
}
