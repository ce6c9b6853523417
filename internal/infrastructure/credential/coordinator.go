package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const lockKeyPrefix = "credential:"

// Options tunes a Coordinator
type Options struct {
	// RefreshMargin treats tokens expiring within the margin as expired
	RefreshMargin time.Duration
	// LockTTL bounds how long a crashed holder blocks other processes
	LockTTL time.Duration
	// LockWait is how long a process waits for another one's refresh
	LockWait time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *telemetry.SyncMetrics
}

func (o Options) withDefaults() Options {
	if o.RefreshMargin <= 0 {
		o.RefreshMargin = time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.LockWait < o.LockTTL {
		o.LockWait = o.LockTTL + 5*time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Coordinator refreshes the token of one account. At most one exchange runs per
// account at a time across all processes sharing the locker.
type Coordinator struct {
	accountID string
	repo      integration.CredentialRepository
	locker    shared.Locker
	exchanger Exchanger
	opts      Options
	group     singleflight.Group
}

// NewCoordinator creates a coordinator for accountID
func NewCoordinator(accountID string, repo integration.CredentialRepository, locker shared.Locker, exchanger Exchanger, opts Options) *Coordinator {
	return &Coordinator{
		accountID: accountID,
		repo:      repo,
		locker:    locker,
		exchanger: exchanger,
		opts:      opts.withDefaults(),
	}
}

// AccountID returns the account this coordinator serves
func (c *Coordinator) AccountID() string {
	return c.accountID
}

// GetLatestTokens returns the persisted token, or nil when the account has none
func (c *Coordinator) GetLatestTokens(ctx context.Context) (*integration.TokenData, error) {
	stored, err := c.repo.Get(ctx, c.accountID)
	if errors.Is(err, integration.ErrCredentialNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stored.TokenData, nil
}

// Token returns a usable token, refreshing first when the stored one is about to expire
func (c *Coordinator) Token(ctx context.Context) (integration.TokenData, error) {
	current, err := c.GetLatestTokens(ctx)
	if err != nil {
		return integration.TokenData{}, err
	}
	if current == nil {
		return integration.TokenData{}, shared.Permanent(integration.ErrReauthorizationRequired)
	}
	if current.ValidAt(c.opts.Now(), c.opts.RefreshMargin) {
		return *current, nil
	}
	return c.Refresh(ctx, *current)
}

// Refresh obtains a new token after stale was rejected or found expired. Concurrent
// callers in this process share one flight; a waiter whose ctx ends returns early
// while the flight continues for the others.
func (c *Coordinator) Refresh(ctx context.Context, stale integration.TokenData) (integration.TokenData, error) {
	ch := c.group.DoChan(c.accountID, func() (any, error) {
		// the flight outlives any single caller
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LockWait+c.opts.LockTTL)
		defer cancel()
		return c.refreshLocked(fctx, stale)
	})

	select {
	case <-ctx.Done():
		return integration.TokenData{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.opts.Metrics.RecordTokenRefresh(ctx, telemetry.RefreshDeduplicated)
		}
		if res.Err != nil {
			return integration.TokenData{}, res.Err
		}
		return res.Val.(integration.TokenData), nil
	}
}

func (c *Coordinator) refreshLocked(ctx context.Context, stale integration.TokenData) (integration.TokenData, error) {
	log := c.opts.Logger.With(zap.String("account_id", c.accountID))

	lock, err := c.locker.Acquire(ctx, lockKeyPrefix+c.accountID, c.opts.LockTTL, c.opts.LockWait)
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			// the holder may have finished just as our wait expired
			if fresh, ok := c.rotatedSince(ctx, stale); ok {
				c.opts.Metrics.RecordTokenRefresh(ctx, telemetry.RefreshReused)
				return fresh, nil
			}
			return integration.TokenData{}, fmt.Errorf("%w: refresh lock of %s busy", integration.ErrPlatformUnavailable, c.accountID)
		}
		return integration.TokenData{}, fmt.Errorf("acquire refresh lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release refresh lock", zap.Error(err))
		}
	}()

	if fresh, ok := c.rotatedSince(ctx, stale); ok {
		log.Debug("Token already refreshed by another holder")
		c.opts.Metrics.RecordTokenRefresh(ctx, telemetry.RefreshReused)
		return fresh, nil
	}

	refreshToken := stale.RefreshToken
	if stored, err := c.repo.Get(ctx, c.accountID); err == nil {
		refreshToken = stored.RefreshToken
	} else if !errors.Is(err, integration.ErrCredentialNotFound) {
		return integration.TokenData{}, err
	}

	fresh, err := c.exchanger.Exchange(ctx, refreshToken)
	if err != nil {
		c.opts.Metrics.RecordTokenRefresh(ctx, telemetry.RefreshFailed)
		if errors.Is(err, integration.ErrReauthorizationRequired) {
			log.Error("Account requires re-authorization", zap.Error(err))
		} else {
			log.Warn("Token exchange failed", zap.Error(err))
		}
		return integration.TokenData{}, err
	}

	record := &integration.CredentialToken{AccountID: c.accountID, TokenData: fresh, UpdatedAt: c.opts.Now().UTC()}
	if err := c.repo.Save(ctx, record); err != nil {
		// the old refresh token is already spent; surface loudly
		log.Error("Failed to persist refreshed token", zap.Error(err))
		return integration.TokenData{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	c.opts.Metrics.RecordTokenRefresh(ctx, telemetry.RefreshExchanged)
	log.Info("Token refreshed", zap.Time("expires_at", fresh.ExpiresAt))
	return fresh, nil
}

// rotatedSince reports whether the stored token differs from the caller's stale view
// and is still usable
func (c *Coordinator) rotatedSince(ctx context.Context, stale integration.TokenData) (integration.TokenData, bool) {
	stored, err := c.repo.Get(ctx, c.accountID)
	if err != nil {
		return integration.TokenData{}, false
	}
	if stored.AccessToken == stale.AccessToken {
		return integration.TokenData{}, false
	}
	if !stored.ValidAt(c.opts.Now(), c.opts.RefreshMargin) {
		return integration.TokenData{}, false
	}
	return stored.TokenData, true
}
