package jobs

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/retrieval"
)

var errNotDownloading = errors.New("job is not downloading")

// Relay turns progress samples into store writes for one job.
type Relay struct {
	store     domain.JobStore
	lifecycle *Lifecycle
	logger    zerolog.Logger
}

func NewRelay(store domain.JobStore, lifecycle *Lifecycle, logger zerolog.Logger) *Relay {
	return &Relay{store: store, lifecycle: lifecycle, logger: logger.With().Str("component", "relay").Logger()}
}

// Drain consumes ch until it is closed. Written progress never goes down,
// and telemetry is only written while the job is downloading.
func (r *Relay) Drain(ctx context.Context, id string, ch <-chan retrieval.Progress) {
	var last float64
	for p := range ch {
		if p.Finished {
			if _, err := r.lifecycle.Transition(ctx, id, domain.JobStatusProcessing, domain.JobPatch{}); err != nil {
				r.logger.Warn().Err(err).Str("job_id", id).Msg("relay: finish not recorded")
				continue
			}
			last = 100
			continue
		}

		progress := math.Max(percent(p.DownloadedBytes, p.TotalBytes), last)
		_, err := r.store.Mutate(ctx, id, func(j *domain.Job) error {
			if j.Status != domain.JobStatusDownloading {
				return errNotDownloading
			}
			progress = math.Max(progress, j.Progress)
			domain.JobPatch{
				Progress:        &progress,
				DownloadedBytes: &p.DownloadedBytes,
				TotalBytes:      &p.TotalBytes,
				Speed:           &p.Speed,
				ETA:             &p.ETA,
			}.Apply(j)
			return nil
		})
		switch {
		case err == nil:
			last = progress
		case errors.Is(err, errNotDownloading):
		default:
			r.logger.Debug().Err(err).Str("job_id", id).Msg("relay: sample dropped")
		}
	}
}

// percent is 100*done/total rounded to one decimal, 0 when total is unknown.
func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := 100 * float64(done) / float64(total)
	p = math.Min(math.Max(p, 0), 100)
	return math.Round(p*10) / 10
}
