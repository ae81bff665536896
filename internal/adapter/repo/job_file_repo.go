package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
)

const recordExt = ".json"

// JobFileRepository implements domain.JobStore on the local filesystem: one
// JSON record per id under recordsDir and one flock file per id under
// locksDir. Every process pointed at the same directories shares state.
type JobFileRepository struct {
	recordsDir string
	locksDir   string
	logger     zerolog.Logger
}

// NewJobFileRepository creates both roots if absent.
func NewJobFileRepository(recordsDir, locksDir string, logger zerolog.Logger) (*JobFileRepository, error) {
	if strings.TrimSpace(recordsDir) == "" || strings.TrimSpace(locksDir) == "" {
		return nil, errors.New("repo: records and locks directories are required")
	}
	for _, dir := range []string{recordsDir, locksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repo: ensure %s: %w", dir, err)
		}
	}
	return &JobFileRepository{
		recordsDir: recordsDir,
		locksDir:   locksDir,
		logger:     logger.With().Str("component", "job_file_repo").Logger(),
	}, nil
}

func (r *JobFileRepository) recordPath(id string) string {
	return filepath.Join(r.recordsDir, id+recordExt)
}

func (r *JobFileRepository) lockPath(id string) string {
	return filepath.Join(r.locksDir, id+".lock")
}

// Create persists a new record.
func (r *JobFileRepository) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || !validID(job.ID) {
		return fmt.Errorf("repo: create: %w", domain.ErrValidation)
	}
	lock, err := acquireLock(ctx, r.lockPath(job.ID), lockExclusive)
	if err != nil {
		return fmt.Errorf("repo: create %s: %w", job.ID, err)
	}
	defer lock.release()

	if _, err := os.Stat(r.recordPath(job.ID)); err == nil {
		return fmt.Errorf("repo: create %s: record exists", job.ID)
	}
	return r.write(job)
}

// Get loads the record under a shared lock.
func (r *JobFileRepository) Get(ctx context.Context, id string) (*domain.Job, bool) {
	if !validID(id) {
		return nil, false
	}
	// no lock file is created for ids that were never stored
	if _, err := os.Stat(r.recordPath(id)); err != nil {
		return nil, false
	}
	lock, err := acquireLock(ctx, r.lockPath(id), lockShared)
	if err != nil {
		r.logger.Warn().Err(err).Str("job_id", id).Msg("get: lock failed")
		return nil, false
	}
	job, err := r.read(id)
	lock.release()
	if err != nil {
		r.logReadFault(id, err)
		if errors.Is(err, os.ErrNotExist) {
			// deleted between the stat and the lock; the lock file was re-created
			r.dropStaleLock(ctx, id)
		}
		return nil, false
	}
	return job, true
}

// dropStaleLock unlinks the lock file of an id whose record is gone.
func (r *JobFileRepository) dropStaleLock(ctx context.Context, id string) {
	lock, err := acquireLock(ctx, r.lockPath(id), lockExclusive)
	if err != nil {
		r.logger.Warn().Err(err).Str("job_id", id).Msg("stale lock: lock failed")
		return
	}
	defer lock.release()
	if _, err := os.Stat(r.recordPath(id)); errors.Is(err, os.ErrNotExist) {
		_ = lock.unlink()
	}
}

// Update merges patch into the stored record. Absent records stay absent.
func (r *JobFileRepository) Update(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, bool) {
	job, err := r.Mutate(ctx, id, func(j *domain.Job) error {
		patch.Apply(j)
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Error().Err(err).Str("job_id", id).Msg("update failed")
		}
		return nil, false
	}
	return job, true
}

// Mutate runs fn on the record under the exclusive lock.
func (r *JobFileRepository) Mutate(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	if _, err := os.Stat(r.recordPath(id)); err != nil {
		return nil, domain.ErrNotFound
	}
	lock, err := acquireLock(ctx, r.lockPath(id), lockExclusive)
	if err != nil {
		return nil, fmt.Errorf("repo: lock %s: %w", id, err)
	}
	defer lock.release()

	job, err := r.read(id)
	if err != nil {
		r.logReadFault(id, err)
		if errors.Is(err, os.ErrNotExist) {
			// deleted between the stat and the lock
			_ = lock.unlink()
		}
		return nil, domain.ErrNotFound
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.ID = id
	if err := r.write(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Delete removes the record and its lock file.
func (r *JobFileRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	lock, err := acquireLock(ctx, r.lockPath(id), lockExclusive)
	if err != nil {
		return fmt.Errorf("repo: lock %s: %w", id, err)
	}
	defer lock.release()

	if err := os.Remove(r.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("repo: delete %s: %w", id, err)
	}
	return lock.unlink()
}

// ListIDs enumerates the stored records in id order.
func (r *JobFileRepository) ListIDs(ctx context.Context) []string {
	entries, err := os.ReadDir(r.recordsDir)
	if err != nil {
		r.logger.Error().Err(err).Msg("list records failed")
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		if validID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *JobFileRepository) read(id string) (*domain.Job, error) {
	data, err := os.ReadFile(r.recordPath(id))
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if job.ID != id {
		return nil, fmt.Errorf("decode record: id mismatch %q", job.ID)
	}
	return &job, nil
}

// write replaces the record atomically so readers never see a partial file.
func (r *JobFileRepository) write(job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("repo: encode %s: %w", job.ID, err)
	}
	tmp, err := os.CreateTemp(r.recordsDir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("repo: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("repo: write %s: %w", job.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("repo: sync %s: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("repo: close %s: %w", job.ID, err)
	}
	if err := os.Rename(tmpName, r.recordPath(job.ID)); err != nil {
		cleanup()
		return fmt.Errorf("repo: rename %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobFileRepository) logReadFault(id string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	r.logger.Error().Err(err).Str("job_id", id).Msg("record unreadable, treating as absent")
}

var _ domain.JobStore = (*JobFileRepository)(nil)
