package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/syncbridge/backend/internal/domain/shared"
)

const defaultLockPrefix = "sync:lock:"

// releaseScript deletes the key only if it still carries the holder's token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the expiry only while the key carries the holder's token
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a shared Redis
type RedisLocker struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
}

// NewRedisLocker creates a locker on an existing client. The caller keeps ownership of the client.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire blocks until the lock is taken, wait elapses or ctx is done
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (shared.Lock, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	err := acquireWithRetry(ctx, wait, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &redisLock{client: l.client, key: fullKey, token: token}, nil
}

// Close closes the client if the locker owns it
func (l *RedisLocker) Close() error {
	if l.ownsClient {
		return l.client.Close()
	}
	return nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// Release deletes the key if this holder still owns it. An expired lock is not an error.
func (k *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Refresh extends the lock while this holder still owns it
func (k *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, k.client, []string{k.key}, k.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	if n == 0 {
		return shared.ErrLockLost
	}
	return nil
}

var _ shared.Locker = (*RedisLocker)(nil)
