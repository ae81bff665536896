package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchd/internal/domain"
)

func newFileRepo(t *testing.T) *JobFileRepository {
	t.Helper()
	root := t.TempDir()
	r, err := NewJobFileRepository(filepath.Join(root, "tasks"), filepath.Join(root, "locks"), zerolog.Nop())
	require.NoError(t, err)
	return r
}

func newJob(t *testing.T) *domain.Job {
	t.Helper()
	return &domain.Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		URL:       "https://example/video1",
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestFileRepoCreateGet(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)

	require.NoError(t, r.Create(ctx, job))
	got, ok := r.Get(ctx, job.ID)
	require.True(t, ok)
	assert.Equal(t, job.URL, got.URL)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

	assert.Error(t, r.Create(ctx, job), "duplicate create must fail")
}

func TestFileRepoAbsentAndInvalidIDs(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)

	for _, id := range []string{"", "../etc/passwd", "not-a-uuid", uuid.NewString()} {
		_, ok := r.Get(ctx, id)
		assert.False(t, ok, "id %q", id)
		_, ok = r.Update(ctx, id, domain.JobPatch{Progress: domain.Ptr(10.0)})
		assert.False(t, ok, "id %q", id)
		_, err := r.Mutate(ctx, id, func(*domain.Job) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	entries, err := os.ReadDir(r.locksDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "lookups of unknown ids must not leave lock files")
	assert.Empty(t, r.ListIDs(ctx))
}

func TestFileRepoUpdateMergesOnlyGivenFields(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)
	job.WorkDir = "/scratch/a"
	require.NoError(t, r.Create(ctx, job))

	_, ok := r.Update(ctx, job.ID, domain.JobPatch{Status: domain.Ptr(domain.JobStatusDownloading)})
	require.True(t, ok)
	got, ok := r.Update(ctx, job.ID, domain.JobPatch{Progress: domain.Ptr(42.5), TotalBytes: domain.Ptr(int64(1000))})
	require.True(t, ok)

	assert.Equal(t, domain.JobStatusDownloading, got.Status)
	assert.Equal(t, 42.5, got.Progress)
	assert.Equal(t, int64(1000), got.TotalBytes)
	assert.Equal(t, "/scratch/a", got.WorkDir)
}

func TestFileRepoUpdateDoesNotResurrectDeleted(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)
	require.NoError(t, r.Create(ctx, job))
	require.NoError(t, r.Delete(ctx, job.ID))

	_, ok := r.Update(ctx, job.ID, domain.JobPatch{Progress: domain.Ptr(50.0)})
	assert.False(t, ok)
	_, ok = r.Get(ctx, job.ID)
	assert.False(t, ok)

	_, err := os.Stat(r.lockPath(job.ID))
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock file should be gone after delete")
}

func TestFileRepoGetRacingDeleteLeavesNoLockFile(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)

	for i := 0; i < 50; i++ {
		job := newJob(t)
		require.NoError(t, r.Create(ctx, job))

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 5; n++ {
					r.Get(ctx, job.ID)
				}
			}()
		}
		require.NoError(t, r.Delete(ctx, job.ID))
		wg.Wait()

		_, err := os.Stat(r.lockPath(job.ID))
		require.True(t, errors.Is(err, os.ErrNotExist), "iteration %d left a lock file", i)
	}
}

func TestFileRepoDropStaleLock(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)

	orphan := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, os.WriteFile(r.lockPath(orphan), nil, 0o644))
	r.dropStaleLock(ctx, orphan)
	_, err := os.Stat(r.lockPath(orphan))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	job := newJob(t)
	require.NoError(t, r.Create(ctx, job))
	r.dropStaleLock(ctx, job.ID)
	assert.FileExists(t, r.lockPath(job.ID), "live record keeps its lock file")
}

func TestFileRepoMutateErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)
	require.NoError(t, r.Create(ctx, job))

	sentinel := errors.New("refuse")
	_, err := r.Mutate(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusFailed
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, ok := r.Get(ctx, job.ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestFileRepoConcurrentMutateIsSerialized(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)
	require.NoError(t, r.Create(ctx, job))

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Mutate(ctx, job.ID, func(j *domain.Job) error {
				j.DownloadedBytes++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, ok := r.Get(ctx, job.ID)
	require.True(t, ok)
	assert.Equal(t, int64(n), got.DownloadedBytes)
}

func TestFileRepoCorruptRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	job := newJob(t)
	require.NoError(t, r.Create(ctx, job))
	require.NoError(t, os.WriteFile(r.recordPath(job.ID), []byte("{not json"), 0o644))

	_, ok := r.Get(ctx, job.ID)
	assert.False(t, ok)
	_, ok = r.Update(ctx, job.ID, domain.JobPatch{Progress: domain.Ptr(1.0)})
	assert.False(t, ok)
	assert.Contains(t, r.ListIDs(ctx), job.ID, "corrupt records stay listable so the sweeper can see them")
}

func TestFileRepoListIDsIgnoresStrayFiles(t *testing.T) {
	ctx := context.Background()
	r := newFileRepo(t)
	a, b := newJob(t), newJob(t)
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, b))
	require.NoError(t, os.WriteFile(filepath.Join(r.recordsDir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.recordsDir, "bogus.json"), []byte("{}"), 0o644))

	assert.ElementsMatch(t, []string{a.ID, b.ID}, r.ListIDs(ctx))
}

func TestFileRepoLockHonorsContext(t *testing.T) {
	r := newFileRepo(t)
	job := newJob(t)
	require.NoError(t, r.Create(context.Background(), job))

	held, err := acquireLock(context.Background(), r.lockPath(job.ID), lockExclusive)
	require.NoError(t, err)
	defer held.release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Mutate(ctx, job.ID, func(*domain.Job) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
