package jobs

import (
	"context"
	"os"

	"fetchd/internal/domain"
)

// Delivery hands out a completed artifact at most once.
type Delivery struct {
	store domain.JobStore
}

func NewDelivery(store domain.JobStore) *Delivery {
	return &Delivery{store: store}
}

// Consume checks and increments consumption_count in one exclusive section,
// so exactly one of any number of concurrent callers gets the artifact.
func (d *Delivery) Consume(ctx context.Context, id string) (*domain.Artifact, error) {
	var out domain.Artifact
	_, err := d.store.Mutate(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobStatusCompleted {
			return domain.ErrNotReady
		}
		if j.Consumed() {
			return domain.ErrGone
		}
		if j.Artifact == nil {
			return domain.ErrNotFound
		}
		if info, err := os.Stat(j.Artifact.Path); err != nil || !info.Mode().IsRegular() {
			return domain.ErrNotFound
		}
		j.ConsumptionCount = 1
		out = *j.Artifact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
