package locking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

func newRedisLocker(t *testing.T, wait, lease time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, RedisOptions{Prefix: "test", Wait: wait, Lease: lease, Poll: 5 * time.Millisecond}), mr
}

func TestRedisLockerBusyThenRelease(t *testing.T) {
	l, mr := newRedisLocker(t, 40*time.Millisecond, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "p1:2026-03-02")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists("test:p1:2026-03-02") {
		t.Fatalf("expected lock key in redis")
	}
	if _, err := l.Acquire(ctx, "p1:2026-03-02"); !errors.Is(err, model.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	release()
	if mr.Exists("test:p1:2026-03-02") {
		t.Fatalf("release should delete the key")
	}
	again, err := l.Acquire(ctx, "p1:2026-03-02")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, 20*time.Millisecond, time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Lease expired and another replica took the key.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("test:k", "other-holder"); err != nil {
		t.Fatalf("set: %v", err)
	}

	release()
	if got, _ := mr.Get("test:k"); got != "other-holder" {
		t.Fatalf("release must not delete another holder's lock, got %q", got)
	}
}

func TestRedisLockerHonoursContext(t *testing.T) {
	l, _ := newRedisLocker(t, time.Second, time.Minute)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
