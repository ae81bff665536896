package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/retrieval"
	"fetchd/internal/storage"
)

const (
	progressBuffer = 16
	busyMessage     = "server busy"
	shutdownMessage = "server shutting down"
)

// SubmitRequest is one job submission.
type SubmitRequest struct {
	URL          string
	FormatID     string
	SubtitleLang string
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds each retrieval; zero means none.
	Timeout time.Duration
	Now     func() time.Time
}

type task struct {
	id      string
	workDir string
	req     SubmitRequest
}

// Dispatcher runs submitted jobs on a fixed pool of workers fed by a
// bounded admission queue.
type Dispatcher struct {
	store     domain.JobStore
	lifecycle *Lifecycle
	relay     *Relay
	retriever retrieval.Retriever
	workspace *storage.Workspace
	logger    zerolog.Logger
	timeout   time.Duration
	now       func() time.Time

	queue       chan task
	mu          sync.RWMutex
	closed      bool
	wg          sync.WaitGroup
	abandon     chan struct{}
	abandonOnce sync.Once
}

// NewDispatcher starts cfg.Workers workers.
func NewDispatcher(store domain.JobStore, retriever retrieval.Retriever, workspace *storage.Workspace, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger = logger.With().Str("component", "dispatcher").Logger()
	lifecycle := NewLifecycle(store, cfg.Now)
	d := &Dispatcher{
		store:     store,
		lifecycle: lifecycle,
		relay:     NewRelay(store, lifecycle, logger),
		retriever: retriever,
		workspace: workspace,
		logger:    logger,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		queue:     make(chan task, cfg.QueueSize),
		abandon:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Submit validates the request, records a pending job and queues it.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := ValidateURL(req.URL); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("allocate id: %w", err)
	}
	jobID := id.String()

	workDir, err := d.workspace.NewDir(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	job := &domain.Job{
		ID:           jobID,
		URL:          req.URL,
		FormatID:     req.FormatID,
		SubtitleLang: req.SubtitleLang,
		Status:       domain.JobStatusPending,
		CreatedAt:    d.now().UTC(),
		WorkDir:      workDir,
	}
	if err := d.store.Create(ctx, job); err != nil {
		_ = d.workspace.Remove(workDir)
		return "", fmt.Errorf("create job: %w", err)
	}

	if !d.enqueue(task{id: jobID, workDir: workDir, req: req}) {
		d.logger.Warn().Str("job_id", jobID).Msg("dispatcher: queue full, rejecting")
		d.fail(context.WithoutCancel(ctx), jobID, workDir, busyMessage)
		return "", domain.ErrBusy
	}
	d.logger.Info().Str("job_id", jobID).Str("url", req.URL).Msg("dispatcher: job queued")
	return jobID, nil
}

func (d *Dispatcher) enqueue(t task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- t:
		return true
	default:
		return false
	}
}

// Shutdown stops admission and waits for queued and running jobs. If ctx
// ends first, jobs still waiting in the queue are failed so the sweeper can
// reclaim them, and ctx's error is returned. Running jobs are left to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.abandonOnce.Do(func() { close(d.abandon) })
		for t := range d.queue {
			d.failQueued(t)
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) failQueued(t task) {
	d.logger.Warn().Str("job_id", t.id).Msg("dispatcher: dropping queued job at shutdown")
	d.fail(context.Background(), t.id, t.workDir, shutdownMessage)
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for t := range d.queue {
		select {
		case <-d.abandon:
			d.failQueued(t)
			continue
		default:
		}
		d.run(t)
	}
	d.logger.Debug().Int("worker", n).Msg("dispatcher: worker stopped")
}

// run executes one job. Nothing that happens here may escape to the worker.
func (d *Dispatcher) run(t task) {
	ctx := context.Background()
	log := d.logger.With().Str("job_id", t.id).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("dispatcher: job panicked")
			d.fail(ctx, t.id, t.workDir, "internal error")
		}
	}()

	if _, err := d.lifecycle.Transition(ctx, t.id, domain.JobStatusDownloading, domain.JobPatch{}); err != nil {
		log.Error().Err(err).Msg("dispatcher: cannot start job")
		if !errors.Is(err, domain.ErrNotFound) {
			d.fail(ctx, t.id, t.workDir, "internal error")
		} else {
			_ = d.workspace.Remove(t.workDir)
		}
		return
	}
	log.Info().Msg("dispatcher: retrieval started")

	res, err := d.retrieve(ctx, t)
	if err != nil {
		log.Warn().Err(err).Msg("dispatcher: retrieval failed")
		d.fail(ctx, t.id, t.workDir, failureMessage(err))
		return
	}

	if _, err := d.lifecycle.Transition(ctx, t.id, domain.JobStatusProcessing, domain.JobPatch{}); err != nil {
		log.Error().Err(err).Msg("dispatcher: cannot enter processing")
		d.fail(ctx, t.id, t.workDir, "internal error")
		return
	}
	artifact, err := PackageArtifact(res, t.req.SubtitleLang)
	if err != nil {
		log.Warn().Err(err).Msg("dispatcher: packaging failed")
		d.fail(ctx, t.id, t.workDir, "failed to package artifact")
		return
	}
	if _, err := d.lifecycle.Transition(ctx, t.id, domain.JobStatusCompleted, domain.JobPatch{Artifact: artifact}); err != nil {
		log.Error().Err(err).Msg("dispatcher: cannot complete job")
		d.fail(ctx, t.id, t.workDir, "internal error")
		return
	}
	log.Info().Str("filename", artifact.Filename).Int64("size", artifact.Size).Msg("dispatcher: job completed")
}

// retrieve runs the fetch with the relay attached. The progress channel is
// closed and the relay drained before it returns, so no relay write can
// land after the dispatcher's own transitions.
func (d *Dispatcher) retrieve(ctx context.Context, t task) (*retrieval.Result, error) {
	ch := make(chan retrieval.Progress, progressBuffer)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		d.relay.Drain(ctx, t.id, ch)
	}()
	defer func() {
		close(ch)
		<-relayDone
	}()

	rctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	res, err := d.retriever.Retrieve(rctx, retrieval.Request{
		URL:          t.req.URL,
		FormatID:     t.req.FormatID,
		SubtitleLang: t.req.SubtitleLang,
		OutputDir:    t.workDir,
		Progress:     ch,
	})
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", retrieval.ErrRetrieval, d.timeout)
		}
		return nil, err
	}
	return res, nil
}

// fail records msg and removes the job's scratch directory.
func (d *Dispatcher) fail(ctx context.Context, id, workDir, msg string) {
	if _, err := d.lifecycle.Transition(ctx, id, domain.JobStatusFailed, domain.JobPatch{Error: &msg}); err != nil {
		d.logger.Error().Err(err).Str("job_id", id).Msg("dispatcher: cannot record failure")
	}
	if err := d.workspace.Remove(workDir); err != nil {
		d.logger.Error().Err(err).Str("job_id", id).Msg("dispatcher: cannot remove work dir")
	}
}

// RetrieveNow runs a fetch outside the job store into a temporary directory.
// The caller must call cleanup once it has finished with the artifact.
func (d *Dispatcher) RetrieveNow(ctx context.Context, req SubmitRequest) (*domain.Artifact, func(), error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := ValidateURL(req.URL); err != nil {
		return nil, nil, err
	}
	dir, err := d.workspace.TempDir("direct")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() {
		if err := d.workspace.Remove(dir); err != nil {
			d.logger.Error().Err(err).Msg("dispatcher: cannot remove temp dir")
		}
	}

	rctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	res, err := d.retriever.Retrieve(rctx, retrieval.Request{
		URL:          req.URL,
		FormatID:     req.FormatID,
		SubtitleLang: req.SubtitleLang,
		OutputDir:    dir,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	artifact, err := PackageArtifact(res, req.SubtitleLang)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return artifact, cleanup, nil
}

// Metadata describes url without touching the store.
func (d *Dispatcher) Metadata(ctx context.Context, rawURL string) (*retrieval.Metadata, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return d.retriever.Metadata(ctx, rawURL)
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", domain.ErrValidation)
	}
	return nil
}

// failureMessage is the client-facing text stored on a failed job.
func failureMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, retrieval.ErrRetrieval) {
		msg = strings.TrimPrefix(msg, retrieval.ErrRetrieval.Error()+": ")
	}
	if msg == "" {
		return "retrieval failed"
	}
	return msg
}
