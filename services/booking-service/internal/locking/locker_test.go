package locking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

func TestLocalLockerTimesOutWithBusy(t *testing.T) {
	l := NewLocalLocker(30 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "p1:2026-03-02")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if _, err := l.Acquire(context.Background(), "p1:2026-03-02"); !errors.Is(err, model.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned before the wait bound")
	}

	release()
	release() // idempotent
	again, err := l.Acquire(context.Background(), "p1:2026-03-02")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
	if l.held() != 0 {
		t.Fatalf("expected no tracked keys, got %d", l.held())
	}
}

func TestLocalLockerKeysAreIndependent(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	r1, err := l.Acquire(context.Background(), "p1:2026-03-02")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer r1()
	r2, err := l.Acquire(context.Background(), "p1:2026-03-03")
	if err != nil {
		t.Fatalf("different date must not block: %v", err)
	}
	r2()
	r3, err := l.Acquire(context.Background(), "p2:2026-03-02")
	if err != nil {
		t.Fatalf("different provider must not block: %v", err)
	}
	r3()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker(time.Second)
	release, _ := l.Acquire(context.Background(), "k")
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	l := NewLocalLocker(time.Second)
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "k")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if maxSeen.Load() != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen.Load())
	}
}
