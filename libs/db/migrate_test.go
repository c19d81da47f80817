package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsOrdersAndSkips(t *testing.T) {
	src := fstest.MapFS{
		"002_outbox.sql":   {Data: []byte("CREATE TABLE outbox_events ();")},
		"001_init.sql":     {Data: []byte("CREATE TABLE appointments ();")},
		"README.md":        {Data: []byte("notes")},
		"draft.sql":        {Data: []byte("SELECT 1;")},
		"x_not_number.sql": {Data: []byte("SELECT 1;")},
	}

	got, err := LoadMigrations(src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[0].SQL != "CREATE TABLE appointments ();" {
		t.Fatalf("unexpected body %q", got[0].SQL)
	}
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	src := fstest.MapFS{
		"001_init.sql":  {Data: []byte("SELECT 1;")},
		"001_again.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := LoadMigrations(src); err == nil {
		t.Fatalf("expected duplicate version error")
	}
}
