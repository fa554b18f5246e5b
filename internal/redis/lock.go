package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("user lock not acquired")
)

// Locker serializes slot-mutating work per user: reconciliation, booking,
// cancellation and availability edits for one user never interleave, while
// different users proceed in parallel.
type Locker interface {
	WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisUserLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUserLocker creates a locker that uses a per-user Redis key.
func NewRedisUserLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisUserLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisUserLocker) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:user:%s", userID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire user lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisUserLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release user lock: %w", err)
	}
	return nil
}
