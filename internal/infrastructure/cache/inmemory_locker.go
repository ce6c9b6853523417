package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// InMemoryLocker implements Locker inside one process.
// It does not coordinate across instances.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]heldLock
}

type heldLock struct {
	token     string
	expiresAt time.Time
}

// NewInMemoryLocker creates a process-local locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]heldLock)}
}

// Acquire blocks until the lock is taken, wait elapses or ctx is done
func (l *InMemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (shared.Lock, error) {
	token := uuid.NewString()
	err := acquireWithRetry(ctx, wait, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := time.Now()
		if h, ok := l.locks[key]; ok && now.Before(h.expiresAt) {
			return false, nil
		}
		l.locks[key] = heldLock{token: token, expiresAt: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryLock{locker: l, key: key, token: token}, nil
}

// Close is a no-op
func (l *InMemoryLocker) Close() error {
	return nil
}

type memoryLock struct {
	locker *InMemoryLocker
	key    string
	token  string
}

func (k *memoryLock) Release(context.Context) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	if h, ok := k.locker.locks[k.key]; ok && h.token == k.token {
		delete(k.locker.locks, k.key)
	}
	return nil
}

func (k *memoryLock) Refresh(_ context.Context, ttl time.Duration) error {
	k.locker.mu.Lock()
	defer k.locker.mu.Unlock()
	now := time.Now()
	h, ok := k.locker.locks[k.key]
	if !ok || h.token != k.token || !now.Before(h.expiresAt) {
		return shared.ErrLockLost
	}
	k.locker.locks[k.key] = heldLock{token: k.token, expiresAt: now.Add(ttl)}
	return nil
}

// acquireWithRetry polls try with capped exponential backoff until it succeeds,
// wait elapses or ctx is done. A zero wait makes a single attempt.
func acquireWithRetry(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	backoff := 20 * time.Millisecond
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return shared.ErrLockNotAcquired
		}
		sleep := min(backoff, remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff = min(backoff*2, 500*time.Millisecond)
	}
}

var _ shared.Locker = (*InMemoryLocker)(nil)
