package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// StepExecutor runs one onboarding step for a channel
type StepExecutor interface {
	Run(ctx context.Context, p *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error)
}

// StepFunc adapts a function to StepExecutor
type StepFunc func(ctx context.Context, p *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error)

// Run implements StepExecutor
func (f StepFunc) Run(ctx context.Context, p *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	return f(ctx, p, channel)
}

// StartPipelineInput starts or resumes the onboarding of a channel
type StartPipelineInput struct {
	ChannelID    uuid.UUID
	ClientID     uuid.UUID
	SyncType     integration.SyncType
	SyncFromDate *time.Time
}

// DefaultPipelineLeaseTTL is how long an execution lease lives without a heartbeat
const DefaultPipelineLeaseTTL = time.Minute

// PipelineService orchestrates the resumable onboarding pipeline. Progress is persisted
// after every step, so an execution interrupted by a crash or a pause continues at the
// first step that did not complete.
//
// An execution holds the lease pipeline:<id> on the shared Locker for its whole run and
// renews it in the background. At most one executor drives a pipeline, in this process
// or any other.
type PipelineService struct {
	pipelines  integration.PipelineRepository
	channels   integration.ChannelRepository
	locker     shared.Locker
	leaseTTL   time.Duration
	steps      map[string]StepExecutor
	maxRetries int
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger
	now        func() time.Time

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewPipelineService creates a PipelineService. steps must hold an executor for every
// onboarding step.
func NewPipelineService(
	pipelines integration.PipelineRepository,
	channels integration.ChannelRepository,
	locker shared.Locker,
	steps map[string]StepExecutor,
	maxRetries int,
	metrics *telemetry.SyncMetrics,
	log *zap.Logger,
) (*PipelineService, error) {
	if locker == nil {
		return nil, errors.New("pipeline service requires a locker")
	}
	for _, name := range integration.OnboardingSteps {
		if steps[name] == nil {
			return nil, fmt.Errorf("no executor for pipeline step %s", name)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PipelineService{
		pipelines:  pipelines,
		channels:   channels,
		locker:     locker,
		leaseTTL:   DefaultPipelineLeaseTTL,
		steps:      steps,
		maxRetries: maxRetries,
		metrics:    metrics,
		logger:     log.Named("pipeline"),
		now:        time.Now,
		baseCtx:    context.Background(),
	}, nil
}

// WithClock overrides the service clock
func (s *PipelineService) WithClock(now func() time.Time) *PipelineService {
	s.now = now
	return s
}

// WithLeaseTTL overrides the execution lease lifetime
func (s *PipelineService) WithLeaseTTL(ttl time.Duration) *PipelineService {
	// the heartbeat ticks at ttl/3
	if ttl >= 3*time.Millisecond {
		s.leaseTTL = ttl
	}
	return s
}

// WithBaseContext sets the context background executions derive from. Cancelling it
// stops executions at their next step boundary.
func (s *PipelineService) WithBaseContext(ctx context.Context) *PipelineService {
	s.baseCtx = ctx
	return s
}

// Start creates the pipeline of a channel or resumes it, launches the execution in the
// background and returns immediately
func (s *PipelineService) Start(ctx context.Context, in StartPipelineInput) (uuid.UUID, error) {
	if in.SyncType == "" {
		in.SyncType = integration.SyncTypeInitialOnboarding
	}
	if !in.SyncType.IsValid() {
		return uuid.Nil, fmt.Errorf("unknown sync type %q", in.SyncType)
	}
	channel, err := s.channels.FindByID(ctx, in.ChannelID)
	if err != nil {
		return uuid.Nil, err
	}
	if in.ClientID != uuid.Nil && in.ClientID != channel.ClientID {
		return uuid.Nil, integration.ErrChannelNotFound
	}

	p, err := s.findOrCreate(ctx, channel, in)
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.CanStart(); err != nil {
		return uuid.Nil, err
	}
	if p.Status == integration.PipelineStatusFailed {
		if _, err := s.pipelines.ResetFailedSteps(ctx, p.ID); err != nil {
			return uuid.Nil, err
		}
	}

	if err := s.markInProgress(ctx, p, integration.StartFrom); err != nil {
		return uuid.Nil, err
	}
	s.launch(p.ID)
	return p.ID, nil
}

func (s *PipelineService) findOrCreate(ctx context.Context, channel *integration.Channel, in StartPipelineInput) (*integration.Pipeline, error) {
	p, err := s.pipelines.FindByChannel(ctx, channel.ID, in.SyncType)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, integration.ErrPipelineNotFound) {
		return nil, err
	}

	p = integration.NewPipeline(channel.ID, channel.ClientID, in.SyncType, in.SyncFromDate, s.maxRetries, s.now().UTC())
	if err := s.pipelines.Create(ctx, p); err != nil {
		if errors.Is(err, integration.ErrPipelineExists) {
			// lost a creation race; the winner's pipeline decides
			return s.pipelines.FindByChannel(ctx, channel.ID, in.SyncType)
		}
		return nil, err
	}
	return p, nil
}

func (s *PipelineService) markInProgress(ctx context.Context, p *integration.Pipeline, from []integration.PipelineStatus) error {
	update := integration.PipelineStatusUpdate{Status: integration.PipelineStatusInProgress}
	if p.StartedAt == nil {
		now := s.now().UTC()
		update.StartedAt = &now
	}
	empty := ""
	update.LastError = &empty
	if err := s.pipelines.TransitionStatus(ctx, p.ID, from, update); err != nil {
		if errors.Is(err, integration.ErrPipelineStatusChanged) {
			return integration.ErrPipelineAlreadyRunning
		}
		return err
	}
	return nil
}

func (s *PipelineService) launch(id uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := logger.WithContext(s.baseCtx, s.logger.With(zap.String("pipeline_id", id.String())))
		if err := s.Execute(ctx, id); err != nil {
			logger.L(ctx).Warn("Pipeline execution halted", zap.Error(err))
		}
	}()
}

func leaseKey(id uuid.UUID) string {
	return "pipeline:" + id.String()
}

// Execute runs the pipeline from its first incomplete step while holding its lease. It
// returns nil without running anything when another executor holds the lease; that
// executor re-reads the status at its next step boundary and after releasing, so a
// resume it raced with is not lost.
func (s *PipelineService) Execute(ctx context.Context, id uuid.UUID) error {
	for {
		lease, err := s.locker.Acquire(ctx, leaseKey(id), s.leaseTTL, 0)
		if errors.Is(err, shared.ErrLockNotAcquired) {
			logger.L(ctx).Debug("Pipeline is driven by another executor")
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire pipeline lease: %w", err)
		}

		runErr := s.executeLeased(ctx, id, lease)
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.L(ctx).Warn("Failed to release pipeline lease", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}

		// A Resume or Retry that failed to take the lease while we held it relies on
		// this check to get its execution.
		p, err := s.pipelines.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != integration.PipelineStatusInProgress {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// executeLeased renews the lease every third of its lifetime. Losing it cancels the run
// without touching the pipeline row, which then belongs to whoever took the lease.
func (s *PipelineService) executeLeased(ctx context.Context, id uuid.UUID, lease shared.Lock) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := lease.Refresh(runCtx, s.leaseTTL); err != nil {
					cancel(fmt.Errorf("pipeline lease: %w", err))
					return
				}
			}
		}
	}()

	err := s.run(runCtx, id)
	if cause := context.Cause(runCtx); cause != nil && errors.Is(cause, shared.ErrLockLost) {
		return cause
	}
	return err
}

// run drives the steps. The persisted status is re-read at every step boundary and
// execution halts unless it is IN_PROGRESS.
func (s *PipelineService) run(ctx context.Context, id uuid.UUID) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := s.pipelines.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != integration.PipelineStatusInProgress {
			logger.L(ctx).Info("Pipeline halted at step boundary", zap.String("status", string(p.Status)))
			return nil
		}

		step := p.NextStep()
		if step == nil {
			now := s.now().UTC()
			last := p.TotalSteps
			err := s.pipelines.TransitionStatus(ctx, id, []integration.PipelineStatus{integration.PipelineStatusInProgress},
				integration.PipelineStatusUpdate{Status: integration.PipelineStatusCompleted, CurrentStep: &last, CompletedAt: &now})
			if errors.Is(err, integration.ErrPipelineStatusChanged) {
				return nil
			}
			if err == nil {
				logger.L(ctx).Info("Pipeline completed")
			}
			return err
		}

		if err := s.runStep(ctx, p, step); err != nil {
			return err
		}
	}
}

func (s *PipelineService) runStep(ctx context.Context, p *integration.Pipeline, step *integration.PipelineStep) error {
	number := step.StepNumber
	if err := s.pipelines.TransitionStatus(ctx, p.ID, []integration.PipelineStatus{integration.PipelineStatusInProgress},
		integration.PipelineStatusUpdate{Status: integration.PipelineStatusInProgress, CurrentStep: &number}); err != nil {
		if errors.Is(err, integration.ErrPipelineStatusChanged) {
			return nil
		}
		return err
	}

	channel, err := s.channels.FindByID(ctx, p.ChannelID)
	if err != nil {
		return err
	}

	log := logger.L(ctx).With(zap.String("step", step.Name), zap.Int("step_number", number))
	ctx, span := telemetry.StartSpan(ctx, "pipeline.step",
		telemetry.AttrPipelineID.String(p.ID.String()),
		telemetry.AttrStep.String(step.Name),
		telemetry.AttrChannelID.String(p.ChannelID.String()),
	)
	started := time.Now()
	step.Start(s.now().UTC())
	if err := s.pipelines.SaveStep(ctx, step); err != nil {
		telemetry.EndSpan(span, err)
		return err
	}

	var (
		result integration.StepResult
		runErr error
	)
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfilingLabelPipelineStep: step.Name,
		telemetry.ProfilingLabelPlatform:     string(channel.Platform),
	}, func(ctx context.Context) {
		result, runErr = s.steps[step.Name].Run(ctx, p, channel)
	})
	telemetry.EndSpan(span, runErr)
	now := s.now().UTC()

	if ctx.Err() != nil {
		// shutdown or lost lease: leave the step IN_PROGRESS for the next executor
		return errors.Join(runErr, ctx.Err())
	}
	if runErr != nil {
		s.metrics.RecordPipelineStep(ctx, step.Name, string(integration.StepStatusFailed), time.Since(started))
		msg := runErr.Error()
		step.Fail(msg, result, now)
		if err := s.pipelines.SaveStep(ctx, step); err != nil {
			return errors.Join(runErr, err)
		}
		err := s.pipelines.TransitionStatus(ctx, p.ID, []integration.PipelineStatus{integration.PipelineStatusInProgress},
			integration.PipelineStatusUpdate{Status: integration.PipelineStatusFailed, LastError: &msg, IncrementRetry: true})
		if err != nil && !errors.Is(err, integration.ErrPipelineStatusChanged) {
			return errors.Join(runErr, err)
		}
		log.Error("Pipeline step failed",
			zap.Int("items_processed", result.Processed),
			zap.Int("items_failed", result.Failed),
			zap.Error(runErr),
		)
		return fmt.Errorf("step %s: %w", step.Name, runErr)
	}

	step.Complete(result, now)
	if err := s.pipelines.SaveStep(ctx, step); err != nil {
		return err
	}
	s.metrics.RecordPipelineStep(ctx, step.Name, string(integration.StepStatusCompleted), time.Since(started))
	log.Info("Pipeline step completed",
		zap.Int("items_processed", result.Processed),
		zap.Int("items_skipped", result.Skipped),
	)

	if step.Name == integration.StepPullStorefront && !channel.IsActive() {
		channel.Activate(now)
		if err := s.channels.Save(ctx, channel); err != nil {
			return err
		}
		log.Info("Channel activated")
	}
	return nil
}

// Pause stops an in-progress pipeline at its next step boundary
func (s *PipelineService) Pause(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, integration.PauseFrom, integration.PipelineStatusUpdate{Status: integration.PipelineStatusPaused})
}

// Resume continues a paused pipeline
func (s *PipelineService) Resume(ctx context.Context, id uuid.UUID) error {
	p, err := s.load(ctx, id, integration.ResumeFrom)
	if err != nil {
		return err
	}
	if err := s.markInProgress(ctx, p, integration.ResumeFrom); err != nil {
		return err
	}
	s.launch(id)
	return nil
}

// Retry restarts a failed pipeline from the failed step
func (s *PipelineService) Retry(ctx context.Context, id uuid.UUID) error {
	p, err := s.load(ctx, id, integration.RetryFrom)
	if err != nil {
		return err
	}
	if !p.HasRetriesLeft() {
		return integration.ErrPipelineRetriesExhausted
	}
	if _, err := s.pipelines.ResetFailedSteps(ctx, id); err != nil {
		return err
	}
	if err := s.markInProgress(ctx, p, integration.RetryFrom); err != nil {
		return err
	}
	s.launch(id)
	return nil
}

// Cancel fails a pipeline on behalf of an operator without consuming a retry
func (s *PipelineService) Cancel(ctx context.Context, id uuid.UUID) error {
	msg := integration.CancelledByOperator
	return s.transition(ctx, id, integration.CancelFrom, integration.PipelineStatusUpdate{
		Status:    integration.PipelineStatusFailed,
		LastError: &msg,
	})
}

func (s *PipelineService) transition(ctx context.Context, id uuid.UUID, from []integration.PipelineStatus, update integration.PipelineStatusUpdate) error {
	if _, err := s.load(ctx, id, from); err != nil {
		return err
	}
	return s.pipelines.TransitionStatus(ctx, id, from, update)
}

func (s *PipelineService) load(ctx context.Context, id uuid.UUID, from []integration.PipelineStatus) (*integration.Pipeline, error) {
	p, err := s.pipelines.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.StatusIn(from) {
		return nil, fmt.Errorf("%w: pipeline is %s", integration.ErrPipelineInvalidTransition, p.Status)
	}
	return p, nil
}

// GetStatus returns the pipeline of a channel with its steps
func (s *PipelineService) GetStatus(ctx context.Context, channelID uuid.UUID, syncType integration.SyncType) (*integration.Pipeline, error) {
	if syncType == "" {
		syncType = integration.SyncTypeInitialOnboarding
	}
	return s.pipelines.FindByChannel(ctx, channelID, syncType)
}

// Get returns a pipeline by id
func (s *PipelineService) Get(ctx context.Context, id uuid.UUID) (*integration.Pipeline, error) {
	return s.pipelines.FindByID(ctx, id)
}

// RecoverInterrupted relaunches pipelines left IN_PROGRESS by a process that stopped
// mid-execution. Pipelines whose lease is still held by a live executor are skipped;
// the count is of pipelines actually relaunched.
func (s *PipelineService) RecoverInterrupted(ctx context.Context) (int, error) {
	pipelines, err := s.pipelines.FindByStatus(ctx, integration.PipelineStatusInProgress)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, p := range pipelines {
		held, err := s.locker.Acquire(ctx, leaseKey(p.ID), s.leaseTTL, 0)
		if errors.Is(err, shared.ErrLockNotAcquired) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		// Execute takes the lease itself; another instance may win it in between,
		// which is fine.
		if err := held.Release(ctx); err != nil {
			return recovered, err
		}
		s.logger.Info("Resuming interrupted pipeline",
			zap.String("pipeline_id", p.ID.String()),
			zap.Int("current_step", p.CurrentStep),
		)
		s.launch(p.ID)
		recovered++
	}
	return recovered, nil
}

// StartRecovery sweeps for unclaimed IN_PROGRESS pipelines every interval until the
// base context is done. It picks up pipelines whose executor stopped after startup
// recovery ran, such as those of an instance shut down during a rolling deploy.
func (s *PipelineService) StartRecovery(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.baseCtx.Done():
				return
			case <-ticker.C:
				n, err := s.RecoverInterrupted(s.baseCtx)
				if err != nil && s.baseCtx.Err() == nil {
					s.logger.Warn("Pipeline recovery sweep failed", zap.Error(err))
				} else if n > 0 {
					s.logger.Info("Pipeline recovery sweep relaunched pipelines", zap.Int("count", n))
				}
			}
		}
	}()
}

// Shutdown waits for in-flight executions or until ctx is done
func (s *PipelineService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all launched executions have returned
func (s *PipelineService) Wait() {
	s.wg.Wait()
}
