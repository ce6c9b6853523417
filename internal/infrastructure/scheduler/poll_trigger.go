package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ChannelProvider lists the channels that take part in warehouse polling
type ChannelProvider interface {
	ListActive(ctx context.Context) ([]*integration.Channel, error)
}

// PollScheduler enqueues the warehouse poll of one channel
type PollScheduler interface {
	SchedulePoll(ctx context.Context, channelID uuid.UUID) error
}

// PollSchedulerFunc adapts a function to PollScheduler
type PollSchedulerFunc func(ctx context.Context, channelID uuid.UUID) error

// SchedulePoll calls f
func (f PollSchedulerFunc) SchedulePoll(ctx context.Context, channelID uuid.UUID) error {
	return f(ctx, channelID)
}

// PollTriggerConfig holds configuration for the warehouse poll trigger
type PollTriggerConfig struct {
	// Interval is how often every active channel is polled
	Interval time.Duration
	// RunOnStart triggers one round immediately after Start
	RunOnStart bool
}

// DefaultPollTriggerConfig returns default poll trigger configuration
func DefaultPollTriggerConfig() PollTriggerConfig {
	return PollTriggerConfig{
		Interval:   5 * time.Minute,
		RunOnStart: true,
	}
}

// Validate validates the configuration
func (c PollTriggerConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// PollTrigger periodically enqueues a poll_warehouse job for every ACTIVE channel. The
// jobs run on the dispatcher, so polling shares its retry and failure handling.
type PollTrigger struct {
	config    PollTriggerConfig
	channels  ChannelProvider
	scheduler PollScheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRunAt time.Time
}

// NewPollTrigger creates a new poll trigger
func NewPollTrigger(config PollTriggerConfig, channels ChannelProvider, scheduler PollScheduler, logger *zap.Logger) (*PollTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if channels == nil || scheduler == nil {
		return nil, ErrMissingDependency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollTrigger{
		config:    config,
		channels:  channels,
		scheduler: scheduler,
		logger:    logger.Named("poll_trigger"),
	}, nil
}

// Start starts the trigger loop
func (p *PollTrigger) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.runLoop(ctx)

	p.logger.Info("Warehouse poll trigger started", zap.Duration("interval", p.config.Interval))
	return nil
}

// Stop stops the trigger loop
func (p *PollTrigger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Warehouse poll trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PollTrigger) runLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.config.RunOnStart {
		p.trigger(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

func (p *PollTrigger) trigger(ctx context.Context) {
	if _, err := p.Trigger(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("Warehouse poll round failed", zap.Error(err))
	}
}

// Trigger enqueues one poll per active channel and returns how many were enqueued. A
// failure for one channel does not stop the others.
func (p *PollTrigger) Trigger(ctx context.Context) (int, error) {
	channels, err := p.channels.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	var errs []error
	for _, channel := range channels {
		if !channel.IsActive() {
			continue
		}
		if err := p.scheduler.SchedulePoll(ctx, channel.ID); err != nil {
			p.logger.Warn("Failed to schedule warehouse poll",
				zap.String("channel_id", channel.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		scheduled++
	}

	p.mu.Lock()
	p.lastRunAt = time.Now()
	p.mu.Unlock()

	p.logger.Debug("Warehouse polls scheduled",
		zap.Int("channel_count", len(channels)),
		zap.Int("scheduled", scheduled),
	)
	return scheduled, errors.Join(errs...)
}

// LastRunAt returns when the last round finished, zero before the first
func (p *PollTrigger) LastRunAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRunAt
}
