package locking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// RedisLocker is a lease-based lock shared by every replica. A holder that
// dies loses the key when the lease expires.
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	wait   time.Duration
	lease  time.Duration
	poll   time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOptions struct {
	Prefix string
	Wait   time.Duration
	Lease  time.Duration
	Poll   time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "booking:lock"
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, prefix: opts.Prefix, wait: opts.Wait, lease: opts.Lease, poll: opts.Poll}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.prefix + ":" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.lease).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			return func() { l.release(ctx, full, token) }, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, model.ErrBusy
		}
		timer := time.NewTimer(min(l.poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) {
	// Release even when the caller's context is already cancelled. On
	// failure the lease expires on its own.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
}
