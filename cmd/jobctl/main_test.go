package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchd/internal/adapter/repo"
	"fetchd/internal/domain"
	"fetchd/internal/jobs"
)

// setupCache points the config at a fresh cache dir and returns a store on it.
func setupCache(t *testing.T) (string, *repo.JobFileRepository) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CACHE_DIR", dir)
	t.Setenv("JOB_STORE", "file")
	t.Setenv("JOB_EXPIRY_SECONDS", "300")
	store, err := repo.NewJobFileRepository(filepath.Join(dir, "tasks"), filepath.Join(dir, "locks"), zerolog.Nop())
	require.NoError(t, err)
	return dir, store
}

func seedJob(t *testing.T, store *repo.JobFileRepository, status domain.JobStatus, created time.Time) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		URL:       "https://example/video1",
		Status:    status,
		CreatedAt: created,
	}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.Run(context.Background(), append([]string{"jobctl"}, args...))
	return buf.String(), err
}

func TestListAndShow(t *testing.T) {
	_, store := setupCache(t)
	pending := seedJob(t, store, domain.JobStatusPending, time.Now().UTC())
	failed := seedJob(t, store, domain.JobStatusFailed, time.Now().UTC())

	out, err := run(t, "list", "--env", "")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, pending.ID)
	assert.Contains(t, out, failed.ID)
	assert.Contains(t, out, "failed")

	out, err = run(t, "show", "--env", "", "--id", pending.ID)
	require.NoError(t, err)
	var got domain.Job
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, pending.ID, got.ID)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	_, err = run(t, "show", "--env", "", "--id", uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepCommand(t *testing.T) {
	_, store := setupCache(t)
	old := seedJob(t, store, domain.JobStatusFailed, time.Now().UTC().Add(-time.Hour))
	live := seedJob(t, store, domain.JobStatusDownloading, time.Now().UTC().Add(-time.Hour))

	out, err := run(t, "sweep", "--env", "")
	require.NoError(t, err)
	var report jobs.SweepReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, jobs.SweepReport{Scanned: 2, Removed: 1, Kept: 1}, report)

	_, ok := store.Get(context.Background(), old.ID)
	assert.False(t, ok)
	_, ok = store.Get(context.Background(), live.ID)
	assert.True(t, ok)
}

func TestEnvFileIsLoaded(t *testing.T) {
	dir, _ := setupCache(t)
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("JOB_STORE=file\n"), 0o600))

	out, err := run(t, "list", "--env", envFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID"))
}

func TestMigrateRequiresPostgres(t *testing.T) {
	setupCache(t)
	_, err := run(t, "migrate", "--env", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOB_STORE=postgres")
}
