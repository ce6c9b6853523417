// Package queue runs durable, prioritized, retrying jobs stored in the database.
// Delivery is at-least-once: handlers must be idempotent by the natural key in their payload.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var (
	ErrQueueNotRegistered = errors.New("dispatcher: queue not registered")
	ErrQueueRegistered    = errors.New("dispatcher: queue already registered")
	ErrAlreadyStarted     = errors.New("dispatcher: already started")
)

// Handler processes one job. Returning an error schedules a retry unless the error is
// marked with shared.Permanent or the retry limit is reached.
type Handler func(ctx context.Context, job *shared.Job) error

// WorkerOptions tunes the worker of one queue. Zero values use the dispatcher defaults.
type WorkerOptions struct {
	BatchSize    int
	PollInterval time.Duration
}

type worker struct {
	queue   string
	handler Handler
	opts    WorkerOptions
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.Named("dispatcher") }
}

// WithClock injects the clock used for scheduling decisions
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher claims jobs per queue and runs their handlers
type Dispatcher struct {
	repo     shared.JobRepository
	cfg      config.DispatcherConfig
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	failures *failureRing

	mu      sync.RWMutex
	workers map[string]*worker
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher over repo
func New(repo shared.JobRepository, cfg config.DispatcherConfig, opts ...Option) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = time.Minute
	}
	d := &Dispatcher{
		repo:     repo,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		failures: newFailureRing(cfg.FailureBufferSize),
		workers:  make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics()
	}
	return d
}

// Metrics returns the dispatcher's collectors
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Register binds a handler to a queue. Queues must be registered before Start.
func (d *Dispatcher) Register(queue string, handler Handler, opts WorkerOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	if _, ok := d.workers[queue]; ok {
		return fmt.Errorf("%w: %s", ErrQueueRegistered, queue)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = d.cfg.BatchSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = d.cfg.PollInterval
	}
	d.workers[queue] = &worker{queue: queue, handler: handler, opts: opts}
	return nil
}

// Enqueue persists a job outside any business transaction
func (d *Dispatcher) Enqueue(ctx context.Context, queue string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	return d.EnqueueWithTx(ctx, d.repo, queue, payload, opts)
}

// EnqueueWithTx persists a job through jobs, a repository bound to the caller's
// transaction, so the job commits or rolls back with the business write.
func (d *Dispatcher) EnqueueWithTx(ctx context.Context, jobs shared.JobRepository, queue string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = shared.DefaultJobRetryDelay
	}
	job, err := shared.NewJob(queue, payload, opts, d.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", queue, err)
	}
	return job, nil
}

// Start launches one poller per registered queue plus the maintenance loop
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for _, w := range d.workers {
		d.wg.Add(1)
		go d.pollLoop(ctx, w)
	}
	d.wg.Add(1)
	go d.maintenanceLoop(ctx)

	d.logger.Info("Dispatcher started",
		zap.Int("queues", len(d.workers)),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)
	return nil
}

// Stop cancels the pollers and waits for in-flight handlers or ctx
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("Dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context, w *worker) {
	defer d.wg.Done()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain while full batches keep coming
			for {
				n, err := d.processBatch(ctx, w)
				if err != nil && ctx.Err() == nil {
					d.logger.Error("Failed to claim jobs", zap.String("queue", w.queue), zap.Error(err))
				}
				if err != nil || n < w.opts.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessQueueOnce claims and handles one batch of a queue synchronously.
// It returns the number of jobs handled.
func (d *Dispatcher) ProcessQueueOnce(ctx context.Context, queue string) (int, error) {
	d.mu.RLock()
	w, ok := d.workers[queue]
	d.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrQueueNotRegistered, queue)
	}
	return d.processBatch(ctx, w)
}

func (d *Dispatcher) processBatch(ctx context.Context, w *worker) (int, error) {
	jobs, err := d.repo.Claim(ctx, w.queue, d.now().UTC(), w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		d.handle(ctx, w, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) handle(ctx context.Context, w *worker, job *shared.Job) {
	jobCtx := logger.WithJobID(ctx, job.ID.String())
	log := d.logger.With(zap.String("queue", w.queue), zap.String("job_id", job.ID.String()))
	jobCtx = logger.WithContext(jobCtx, log)
	jobCtx, span := telemetry.StartSpan(jobCtx, "dispatcher.job",
		telemetry.AttrQueue.String(w.queue),
	)

	var claimedAt time.Time
	if job.StartedAt != nil {
		claimedAt = *job.StartedAt
	}

	start := time.Now()
	var err error
	telemetry.WithProfilingLabels(jobCtx, map[string]string{telemetry.ProfilingLabelQueue: w.queue}, func(ctx context.Context) {
		err = d.runHandler(ctx, w.handler, job)
	})
	d.metrics.duration.WithLabelValues(w.queue).Observe(time.Since(start).Seconds())
	telemetry.EndSpan(span, err)

	now := d.now().UTC()
	outcome := "completed"
	if err == nil {
		job.MarkCompleted(now)
	} else if job.MarkFailed(err, now) {
		outcome = "failed"
		d.failures.add(FailureRecord{
			JobID:      job.ID,
			QueueName:  job.QueueName,
			Payload:    string(job.Payload),
			Error:      job.LastError,
			RetryCount: job.RetryCount,
			FailedAt:   now,
		})
		log.Error("Job failed permanently",
			zap.Int("retry_count", job.RetryCount),
			zap.Bool("permanent_error", shared.IsPermanent(err)),
			zap.Error(err),
		)
	} else {
		outcome = "retry"
		log.Warn("Job failed, retry scheduled",
			zap.Int("retry_count", job.RetryCount),
			zap.Time("start_after", job.StartAfter),
			zap.Error(err),
		)
	}
	d.metrics.processed.WithLabelValues(w.queue, outcome).Inc()

	// persist the outcome even when shutdown cancelled the handler
	if updErr := d.repo.Update(context.WithoutCancel(ctx), job, claimedAt); updErr != nil {
		if errors.Is(updErr, shared.ErrJobClaimLost) {
			log.Warn("Job claim lost before outcome was persisted", zap.String("outcome", outcome))
			return
		}
		log.Error("Failed to persist job outcome", zap.String("outcome", outcome), zap.Error(updErr))
	}
}

func (d *Dispatcher) runHandler(ctx context.Context, h Handler, job *shared.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = shared.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, job)
}

// RecentFailures returns up to limit terminal failures, newest first
func (d *Dispatcher) RecentFailures(limit int) []FailureRecord {
	return d.failures.recent(limit)
}

func (d *Dispatcher) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RequeueStale(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("Failed to requeue stale jobs", zap.Error(err))
			}
			if _, err := d.PurgeCompleted(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("Failed to purge completed jobs", zap.Error(err))
			}
		}
	}
}

// RequeueStale releases jobs active for longer than StaleAfter. It runs at startup
// and periodically, recovering work from crashed processes. It returns the number
// of released jobs, requeued or failed.
func (d *Dispatcher) RequeueStale(ctx context.Context) (int64, error) {
	if d.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	now := d.now().UTC()
	requeued, failed, err := d.repo.RequeueStale(ctx, now.Add(-d.cfg.StaleAfter), now)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		d.metrics.requeued.Add(float64(requeued))
		d.logger.Warn("Requeued stale jobs", zap.Int64("count", requeued))
	}
	if failed > 0 {
		d.logger.Error("Stale jobs out of attempts, parked as failed", zap.Int64("count", failed))
	}
	return requeued + failed, nil
}

// PurgeCompleted deletes completed jobs older than the retention period
func (d *Dispatcher) PurgeCompleted(ctx context.Context) (int64, error) {
	if d.cfg.CompletedRetention <= 0 {
		return 0, nil
	}
	cutoff := d.now().UTC().Add(-d.cfg.CompletedRetention)
	n, err := d.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.metrics.purged.Add(float64(n))
		d.logger.Info("Purged completed jobs", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Stats returns job counts per state for a queue, or all queues when queue is empty
func (d *Dispatcher) Stats(ctx context.Context, queue string) (map[shared.JobState]int64, error) {
	return d.repo.CountByState(ctx, queue)
}
