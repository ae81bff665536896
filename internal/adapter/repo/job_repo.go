package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/infra"
	"fetchd/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL. Each job is one
// row holding the record as JSONB; exclusive sections are row locks taken
// with SELECT ... FOR UPDATE.
type JobRepositoryPG struct {
	sql    *infra.SQLRunner
	logger zerolog.Logger
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(runner *infra.SQLRunner, logger zerolog.Logger) *JobRepositoryPG {
	return &JobRepositoryPG{
		sql:    runner,
		logger: logger.With().Str("component", "job_repo_pg").Logger(),
	}
}

// EnsureSchema creates the jobs table and its index if they do not exist.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateJobsTable, sqlinline.QCreateJobsStatusIndex} {
		if _, err := r.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("repo: ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || !validID(job.ID) {
		return fmt.Errorf("repo: create: %w", domain.ErrValidation)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("repo: encode %s: %w", job.ID, err)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertJob, job.ID, string(job.Status), data, job.CreatedAt); err != nil {
		return fmt.Errorf("repo: create %s: %w", job.ID, err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.Job, bool) {
	if !validID(id) {
		return nil, false
	}
	job, err := scanRecord(r.sql.QueryRow(ctx, sqlinline.QSelectJob, id))
	if err != nil {
		if !infra.IsNoRows(err) {
			r.logger.Error().Err(err).Str("job_id", id).Msg("record unreadable, treating as absent")
		}
		return nil, false
	}
	return job, true
}

// Update merges patch into the stored record. Absent records stay absent.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, bool) {
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

// Mutate runs fn against the row-locked record inside one transaction.
func (r *JobRepositoryPG) Mutate(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var out *domain.Job
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanRecord(tx.QueryRow(ctx, sqlinline.QSelectJobForUpdate, id))
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			r.logger.Error().Err(err).Str("job_id", id).Msg("record unreadable, treating as absent")
			return domain.ErrNotFound
		}
		if err := fn(job); err != nil {
			return err
		}
		job.ID = id
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("repo: encode %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, sqlinline.QUpdateJob, id, string(job.Status), data); err != nil {
			return fmt.Errorf("repo: update %s: %w", id, err)
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the row.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteJob, id); err != nil {
		return fmt.Errorf("repo: delete %s: %w", id, err)
	}
	return nil
}

// ListIDs enumerates stored ids oldest first.
func (r *JobRepositoryPG) ListIDs(ctx context.Context) []string {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobIDs)
	if err != nil {
		r.logger.Error().Err(err).Msg("list ids failed")
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.Error().Err(err).Msg("scan id failed")
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("list ids failed")
	}
	return ids
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Job, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
