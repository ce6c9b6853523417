package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when a lock is held by someone else until the wait expires
var ErrLockNotAcquired = errors.New("lock not acquired")

// ErrLockLost is returned by Refresh when the lock expired and may be held by someone else
var ErrLockLost = errors.New("lock lost")

// Lock is a held distributed lock
type Lock interface {
	// Release frees the lock if it is still owned by this holder
	Release(ctx context.Context) error

	// Refresh extends the expiry to ttl from now. It fails with ErrLockLost once the
	// lock has expired, even if nobody else took it in between.
	Refresh(ctx context.Context, ttl time.Duration) error
}

// Locker provides mutual exclusion across process instances
type Locker interface {
	// Acquire blocks until the named lock is obtained, the wait elapses, or ctx is done.
	// The lock expires on its own after ttl so a crashed holder cannot block others forever.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)

	// Close releases resources held by the locker
	Close() error
}

// IdempotencyStore remembers processed message ids for a while.
// Webhook receivers use it to drop redelivered notifications.
type IdempotencyStore interface {
	// MarkProcessed records id and returns true if it was not seen within ttl
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Close releases resources held by the store
	Close() error
}
