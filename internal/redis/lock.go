package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

var (
	ErrLockNotAcquired = errors.New("date lock not acquired")
)

// Locker is used by the appointment service to guard the read-check-write
// sequence of every booking. Holding the lock for a date excludes any other
// booking, reschedule or status change touching that date.
type Locker interface {
	WithDateLock(ctx context.Context, dates []interval.Date, fn func(ctx context.Context) error) error
}

type redisDateLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDateLocker creates a locker that uses one Redis key per date
func NewRedisDateLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDateLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(d interval.Date) string {
	return fmt.Sprintf("lock:date:%s", d)
}

// WithDateLock takes the keys in date order and gives up at the first one
// held by someone else, releasing whatever it already holds.
func (l *redisDateLocker) WithDateLock(ctx context.Context, dates []interval.Date, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	var held []string

	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.release(context.WithoutCancel(ctx), held[i], token)
		}
	}()

	for _, d := range interval.UniqueDates(dates) {
		key := lockKey(d)
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire date lock: %w", err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

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

func (l *redisDateLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release date lock: %w", err)
	}
	return nil
}
