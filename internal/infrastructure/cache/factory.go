package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Coordination bundles the cross-instance primitives. With Redis disabled or
// unreachable both fall back to process-local implementations.
type Coordination struct {
	Locker     shared.Locker
	Deliveries shared.IdempotencyStore
	client     *redis.Client
}

// FactoryOption configures NewCoordination
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger        *zap.Logger
	allowFallback bool
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = l }
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to in-memory.
// Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(o *factoryOptions) { o.allowFallback = allow }
}

// NewCoordination builds the locker and delivery store from configuration
func NewCoordination(ctx context.Context, cfg config.RedisConfig, opts ...FactoryOption) (*Coordination, error) {
	o := factoryOptions{logger: zap.NewNop(), allowFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Enabled {
		client, err := NewRedisClient(ctx, cfg)
		if err == nil {
			o.logger.Info("using Redis for locks and webhook deduplication", zap.String("addr", cfg.Addr()))
			return &Coordination{
				Locker:     NewRedisLocker(client, ""),
				Deliveries: NewRedisIdempotencyStore(client, ""),
				client:     client,
			}, nil
		}
		if !o.allowFallback {
			return nil, fmt.Errorf("redis required but unavailable: %w", err)
		}
		o.logger.Warn("Redis unavailable, falling back to in-process locks. "+
			"Token refreshes are no longer coordinated across instances.", zap.Error(err))
	}

	return &Coordination{
		Locker:     NewInMemoryLocker(),
		Deliveries: NewInMemoryIdempotencyStore(),
	}, nil
}

// Distributed reports whether the primitives are backed by Redis
func (c *Coordination) Distributed() bool {
	return c.client != nil
}

// Ping checks Redis when in use
func (c *Coordination) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the primitives and the Redis client
func (c *Coordination) Close() error {
	_ = c.Locker.Close()
	_ = c.Deliveries.Close()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
