package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenAcceptsURLAndHostPort(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	for _, raw := range []string{"redis://" + mr.Addr() + "/0", mr.Addr()} {
		rdb, err := Open(ctx, raw)
		if err != nil {
			t.Fatalf("open %q: %v", raw, err)
		}
		if err := ReadyCheck(rdb)(ctx); err != nil {
			t.Fatalf("ready %q: %v", raw, err)
		}
		_ = rdb.Close()
	}
}

func TestOpenRejectsEmpty(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
