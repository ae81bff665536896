package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/storage"
)

var errKeep = errors.New("job no longer reclaimable")

// SweeperConfig holds the reclamation policy.
type SweeperConfig struct {
	Expiry   time.Duration
	Interval time.Duration
	Now      func() time.Time
}

// SweepReport summarizes one pass.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
	Failed  int `json:"failed"`
}

// Sweeper removes terminal jobs once they are consumed or expired.
type Sweeper struct {
	store     domain.JobStore
	workspace *storage.Workspace
	cfg       SweeperConfig
	logger    zerolog.Logger
}

func NewSweeper(store domain.JobStore, workspace *storage.Workspace, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:     store,
		workspace: workspace,
		cfg:       cfg,
		logger:    logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("expiry", s.cfg.Expiry).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			report := s.SweepOnce(ctx)
			if report.Removed > 0 || report.Failed > 0 {
				s.logger.Info().
					Int("scanned", report.Scanned).
					Int("removed", report.Removed).
					Int("failed", report.Failed).
					Msg("sweeper: pass complete")
			}
		}
	}
}

// SweepOnce runs a single pass over every stored job.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepReport {
	var report SweepReport
	for _, id := range s.store.ListIDs(ctx) {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		removed, err := s.reclaim(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error().Err(err).Str("job_id", id).Msg("sweeper: reclaim failed")
		case removed:
			report.Removed++
			s.logger.Debug().Str("job_id", id).Msg("sweeper: job removed")
		default:
			report.Kept++
		}
	}
	return report
}

func (s *Sweeper) reclaim(ctx context.Context, id string) (bool, error) {
	job, ok := s.store.Get(ctx, id)
	if !ok {
		return false, nil
	}
	now := s.cfg.Now()
	if !Reclaimable(job, now, s.cfg.Expiry) {
		return false, nil
	}

	// Re-check under the lock. An expired, unconsumed artifact is marked
	// consumed here so a racing download gets Gone instead of a file that is
	// about to disappear.
	victim, err := s.store.Mutate(ctx, id, func(j *domain.Job) error {
		if !Reclaimable(j, now, s.cfg.Expiry) {
			return errKeep
		}
		if j.Status == domain.JobStatusCompleted {
			j.ConsumptionCount = 1
		}
		return nil
	})
	if errors.Is(err, errKeep) || errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if victim.Artifact != nil && victim.Artifact.Path != "" {
		if err := os.Remove(victim.Artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove artifact: %w", err)
		}
	}
	if victim.WorkDir != "" {
		if err := s.workspace.Remove(victim.WorkDir); err != nil {
			return false, err
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// Reclaimable applies the removal policy: consumed artifacts go at once,
// unconsumed ones after expiry from completion, failures after expiry from
// creation. Live jobs are never reclaimable.
func Reclaimable(j *domain.Job, now time.Time, expiry time.Duration) bool {
	switch j.Status {
	case domain.JobStatusCompleted:
		if j.Consumed() {
			return true
		}
		ref := j.CreatedAt
		if j.CompletedAt != nil {
			ref = *j.CompletedAt
		}
		return now.Sub(ref) > expiry
	case domain.JobStatusFailed:
		return now.Sub(j.CreatedAt) > expiry
	default:
		return false
	}
}
