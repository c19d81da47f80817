// Package postgres implements storage.Store on pgx. Overlap protection is
// enforced by an exclusion constraint on (provider_id, date, minute range).
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/salonbook/salonbook/libs/db"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema files for db.Migrator.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type Store struct {
	pool *db.Pool
}

var _ storage.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
	codeForeignKey         = "23503"
)

func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation, codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, model.ErrConflict)
		case codeForeignKey:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, model.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

const appointmentColumns = `id, client_id, provider_id, service_id, date, start_minute, end_minute,
	price_minor_snapshot, status, COALESCE(idempotency_key, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		date   time.Time
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.ProviderID,
		&a.ServiceID,
		&date,
		&a.StartMinute,
		&a.EndMinute,
		&a.PriceMinorSnapshot,
		&status,
		&a.IdempotencyKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = model.DateOf(date)
	a.Status = model.Status(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func pgDate(d model.Date) time.Time {
	return d.Time(time.UTC)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) GetWorkingHours(ctx context.Context, providerID string) (model.Week, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, break_start, break_end, active
		FROM working_hours
		WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return model.Week{}, translate(err, "working hours")
	}
	defer rows.Close()

	week := model.ClosedWeek()
	for rows.Next() {
		var (
			weekday int16
			wh      model.WorkingHours
		)
		if err := rows.Scan(&weekday, &wh.StartMinute, &wh.EndMinute, &wh.BreakStart, &wh.BreakEnd, &wh.Active); err != nil {
			return model.Week{}, translate(err, "working hours")
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		wh.Weekday = time.Weekday(weekday)
		week[weekday] = wh
	}
	if rows.Err() != nil {
		return model.Week{}, translate(rows.Err(), "working hours")
	}
	return week, nil
}

func (s *Store) SetWorkingHours(ctx context.Context, providerID string, days []model.WorkingHours) error {
	if len(days) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(`
			INSERT INTO working_hours (provider_id, weekday, start_minute, end_minute, break_start, break_end, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (provider_id, weekday) DO UPDATE
			SET start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute,
				break_start = EXCLUDED.break_start,
				break_end = EXCLUDED.break_end,
				active = EXCLUDED.active
		`, providerID, int16(d.Weekday), d.StartMinute, d.EndMinute, d.BreakStart, d.BreakEnd, d.Active)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return translate(err, "set working hours")
}

func (s *Store) GetAppointments(ctx context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND date = $2
			AND ($3 OR status <> 'cancelled')
		ORDER BY start_minute ASC, id ASC
	`, providerID, pgDate(date), includeCancelled)
	if err != nil {
		return nil, translate(err, "appointments")
	}
	appts, err := collectAppointments(rows)
	return appts, translate(err, "appointments")
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	return a, translate(err, "appointment "+id)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, clientID, key string) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key))
	return a, translate(err, "idempotency key")
}

func (s *Store) InsertAppointment(ctx context.Context, appt model.Appointment, evt outbox.Event) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, client_id, provider_id, service_id, date, start_minute, end_minute,
				 price_minor_snapshot, status, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, appt.ID, appt.ClientID, appt.ProviderID, appt.ServiceID, pgDate(appt.Date), appt.StartMinute, appt.EndMinute,
			appt.PriceMinorSnapshot, string(appt.Status), nullable(appt.IdempotencyKey), appt.CreatedAt.UTC(), appt.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, evt)
	})
	return translate(err, "insert appointment")
}

func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus, expected model.Status, at time.Time, evt outbox.Event) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2, updated_at = $4
			WHERE id = $1 AND status = $3
		`, id, string(newStatus), string(expected), at.UTC())
		if err != nil {
			return translate(err, "update status")
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return translate(err, "update status")
			}
			if !exists {
				return fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
			}
			return fmt.Errorf("appointment %s no longer %s: %w", id, expected, model.ErrStaleState)
		}
		return translate(insertEvent(ctx, tx, evt), "update status")
	})
}

func (s *Store) ListAppointments(ctx context.Context, q storage.AppointmentQuery) ([]model.Appointment, error) {
	var from, to *time.Time
	if !q.From.IsZero() {
		t := pgDate(q.From)
		from = &t
	}
	if !q.To.IsZero() {
		t := pgDate(q.To)
		to = &t
	}
	var statuses []string
	if len(q.Statuses) > 0 {
		statuses = storage.StatusStrings(q.Statuses)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR client_id = $1)
			AND ($2 = '' OR provider_id = $2)
			AND ($3::text[] IS NULL OR status = ANY($3))
			AND ($4::date IS NULL OR date >= $4)
			AND ($5::date IS NULL OR date <= $5)
		ORDER BY date ASC, start_minute ASC, id ASC
	`, q.ClientID, q.ProviderID, statuses, from, to)
	if err != nil {
		return nil, translate(err, "list appointments")
	}
	appts, err := collectAppointments(rows)
	return appts, translate(err, "list appointments")
}

func insertEvent(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	if evt.EventType == "" {
		return nil
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

func (s *Store) Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	published := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`, limit)
		if err != nil {
			return err
		}
		var records []outbox.Record
		for rows.Next() {
			var rec outbox.Record
			if err := rows.Scan(
				&rec.ID,
				&rec.EventID,
				&rec.Event.AggregateType,
				&rec.Event.AggregateID,
				&rec.Event.EventType,
				&rec.Event.Payload,
				&rec.Traceparent,
				&rec.Tracestate,
				&rec.CreatedAt,
			); err != nil {
				rows.Close()
				return err
			}
			records = append(records, rec)
		}
		rows.Close()
		if rows.Err() != nil {
			return rows.Err()
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(ctx, records); err != nil {
			return err
		}

		ids := make([]int64, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (s *Store) UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	createdAt := p.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var out model.Provider
	err := s.pool.QueryRow(ctx, `
		INSERT INTO providers (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, created_at
	`, p.ID, p.DisplayName, createdAt).Scan(&out.ID, &out.DisplayName, &out.CreatedAt)
	out.CreatedAt = out.CreatedAt.UTC()
	return out, translate(err, "upsert provider")
}

func (s *Store) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, created_at FROM providers WHERE id = $1
	`, id).Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, translate(err, "provider "+id)
}

func (s *Store) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, created_at FROM providers ORDER BY display_name ASC, id ASC
	`)
	if err != nil {
		return nil, translate(err, "list providers")
	}
	defer rows.Close()
	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, translate(err, "list providers")
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	return out, translate(rows.Err(), "list providers")
}

const serviceColumns = `id, provider_id, name, price_minor, duration_minutes, active, created_at, updated_at`

func scanService(row pgx.Row) (model.Service, error) {
	var svc model.Service
	err := row.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.PriceMinor, &svc.DurationMinutes, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	svc.CreatedAt = svc.CreatedAt.UTC()
	svc.UpdatedAt = svc.UpdatedAt.UTC()
	return svc, err
}

func (s *Store) GetService(ctx context.Context, id string) (model.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	return svc, translate(err, "service "+id)
}

func (s *Store) ListServices(ctx context.Context, providerID string, includeInactive bool) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE provider_id = $1 AND ($2 OR active)
		ORDER BY name ASC, id ASC
	`, providerID, includeInactive)
	if err != nil {
		return nil, translate(err, "list services")
	}
	defer rows.Close()
	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, translate(err, "list services")
		}
		out = append(out, svc)
	}
	return out, translate(rows.Err(), "list services")
}

func (s *Store) CreateService(ctx context.Context, svc model.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, svc.ID, svc.ProviderID, svc.Name, svc.PriceMinor, svc.DurationMinutes, svc.Active, svc.CreatedAt.UTC(), svc.UpdatedAt.UTC())
	return translate(err, "create service")
}

func (s *Store) UpdateService(ctx context.Context, svc model.Service) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE services
		SET name = $2, price_minor = $3, duration_minutes = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, svc.ID, svc.Name, svc.PriceMinor, svc.DurationMinutes, svc.Active, svc.UpdatedAt.UTC())
	if err != nil {
		return translate(err, "update service")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service %s: %w", svc.ID, model.ErrNotFound)
	}
	return nil
}
