// Package jobs runs retrieval jobs through their lifecycle: dispatch,
// progress relay, packaging, one-time delivery and reclamation. All state
// lives in a domain.JobStore so several processes can share it.
package jobs

import (
	"context"
	"fmt"
	"time"

	"fetchd/internal/domain"
)

// Lifecycle applies status changes through the store's exclusive section so
// every write is checked against the transition table.
type Lifecycle struct {
	store domain.JobStore
	now   func() time.Time
}

func NewLifecycle(store domain.JobStore, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{store: store, now: now}
}

// Transition moves job id to status to, merging patch in the same write.
// Re-entering processing is accepted as a no-op status change because both
// the relay and the dispatcher announce it.
func (l *Lifecycle) Transition(ctx context.Context, id string, to domain.JobStatus, patch domain.JobPatch) (*domain.Job, error) {
	return l.store.Mutate(ctx, id, func(j *domain.Job) error {
		if !(j.Status == to && to == domain.JobStatusProcessing) && !j.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, to)
		}
		patch.Status = nil
		patch.CompletedAt = nil
		patch.Apply(j)
		j.Status = to

		if to != domain.JobStatusDownloading {
			j.DownloadedBytes, j.TotalBytes, j.Speed, j.ETA = 0, 0, 0, 0
		}
		switch to {
		case domain.JobStatusProcessing:
			j.Progress = 100
		case domain.JobStatusCompleted:
			j.Progress = 100
			if j.CompletedAt == nil {
				t := l.now().UTC()
				j.CompletedAt = &t
			}
		}
		return nil
	})
}
