package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis holds keys with SET NX PX. The stored token makes release
// owner-checked so an expired holder cannot drop a newer lock.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis builds a Redis guard. ttl bounds how long a crashed holder keeps
// the key; wait bounds how long Acquire polls a held key.
func NewRedis(client redis.Cmdable, prefix string, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, wait: wait}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	lockKey := r.prefix + key
	token := uuid.NewString()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("guard: redis set %s: %w", lockKey, err))
		}
		if !ok {
			return struct{}{}, ErrBusy
		}
		return struct{}{}, nil
	}, pollOptions(r.wait)...)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Run(ctx, r.client, []string{lockKey}, token).Err()
			if errors.Is(err, redis.Nil) {
				err = nil
			}
		})
		return err
	}, nil
}

func pollOptions(wait time.Duration) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(wait),
	}
}
