package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/gormstore"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrateHasSubcommands(t *testing.T) {
	cmd := migrateCmd()
	want := map[string]bool{"up": false, "status": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("migrate is missing %q", name)
		}
	}
}

func TestOpenStoreMemory(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	store, err := openStore(context.Background(), discardLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "booking.db"))
	store, err := openStore(context.Background(), discardLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*gormstore.Store); !ok {
		t.Fatalf("expected gorm store, got %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	if _, err := openStore(context.Background(), discardLogger()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestEngineConfig(t *testing.T) {
	t.Setenv("SLOT_GRANULARITY_MINUTES", "30")
	t.Setenv("BOOKING_MAX_ATTEMPTS", "5")
	t.Setenv("SALON_TIMEZONE", "UTC")
	cfg, err := engineConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Granularity != 30 || cfg.MaxAttempts != 5 || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("SALON_TIMEZONE", "Mars/Olympus")
	if _, err := engineConfig(); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestRateLimitBackends(t *testing.T) {
	noRedis := func() (*redis.Client, error) {
		t.Fatalf("redis should not be opened")
		return nil, nil
	}

	t.Setenv("RATE_LIMIT_BACKEND", "off")
	mw, err := rateLimitMiddleware(discardLogger(), noRedis)
	if err != nil || mw != nil {
		t.Fatalf("off: mw=%v err=%v", mw != nil, err)
	}

	t.Setenv("RATE_LIMIT_BACKEND", "local")
	mw, err = rateLimitMiddleware(discardLogger(), noRedis)
	if err != nil || mw == nil {
		t.Fatalf("local: mw=%v err=%v", mw != nil, err)
	}

	t.Setenv("RATE_LIMIT_BACKEND", "memcached")
	if _, err := rateLimitMiddleware(discardLogger(), noRedis); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
