package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

func TestTranslateMapsDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, model.ErrNotFound},
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_provider_id_date_int4range_excl"}, model.ErrConflict},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "idx_appointments_client_idem"}, model.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, model.ErrNotFound},
		{"wrapped", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "23P01"}), model.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := translate(tc.err, "op"); !errors.Is(got, tc.want) {
				t.Fatalf("translate(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	got := translate(other, "op")
	if errors.Is(got, model.ErrConflict) || errors.Is(got, model.ErrNotFound) {
		t.Fatalf("unexpected mapping for %v", got)
	}
	var pgErr *pgconn.PgError
	if !errors.As(got, &pgErr) {
		t.Fatalf("expected driver error to stay wrapped")
	}
	if translate(nil, "op") != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	migrations, err := db.LoadMigrations(Migrations())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("expected 001 migration first, got %+v", migrations)
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatalf("empty key must be NULL")
	}
	if p := nullable("k"); p == nil || *p != "k" {
		t.Fatalf("unexpected %v", p)
	}
}
