// Package storetest holds the behaviour every storage.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
)

// Run executes the suite; newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("WorkingHoursDefaultClosed", func(t *testing.T) { testWorkingHours(t, newStore(t)) })
	t.Run("AppointmentsOrderedAndFiltered", func(t *testing.T) { testAppointments(t, newStore(t)) })
	t.Run("InsertRejectsOverlap", func(t *testing.T) { testOverlap(t, newStore(t)) })
	t.Run("UpdateStatusCompareAndSwap", func(t *testing.T) { testCAS(t, newStore(t)) })
	t.Run("IdempotencyKey", func(t *testing.T) { testIdempotency(t, newStore(t)) })
	t.Run("ListAppointments", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, newStore(t)) })
	t.Run("OutboxRelay", func(t *testing.T) { testRelay(t, newStore(t)) })
}

var (
	monday  = model.Date{Year: 2026, Month: time.March, Day: 2}
	tuesday = model.Date{Year: 2026, Month: time.March, Day: 3}
	created = time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
)

func appt(id, client string, date model.Date, start, end int, st model.Status) model.Appointment {
	return model.Appointment{
		ID:                 id,
		ClientID:           client,
		ProviderID:         "prov-1",
		ServiceID:          "svc-1",
		Date:               date,
		StartMinute:        start,
		EndMinute:          end,
		PriceMinorSnapshot: 8000,
		Status:             st,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func evt(id, typ string) outbox.Event {
	return outbox.Event{AggregateType: "appointment", AggregateID: id, EventType: typ, Payload: []byte(`{"appointment_id":"` + id + `"}`)}
}

func mustInsert(t *testing.T, s storage.Store, a model.Appointment) {
	t.Helper()
	if err := s.InsertAppointment(context.Background(), a, evt(a.ID, "booking.appointment.created.v1")); err != nil {
		t.Fatalf("insert %s: %v", a.ID, err)
	}
}

func testWorkingHours(t *testing.T, s storage.Store) {
	ctx := context.Background()
	week, err := s.GetWorkingHours(ctx, "prov-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, d := range week {
		if d.Active || d.Weekday != time.Weekday(i) {
			t.Fatalf("expected closed day %d, got %+v", i, d)
		}
	}

	mon := model.WorkingHours{Weekday: time.Monday, StartMinute: 540, EndMinute: 1020, BreakStart: 720, BreakEnd: 780, Active: true}
	if err := s.SetWorkingHours(ctx, "prov-1", []model.WorkingHours{mon}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mon.EndMinute = 960
	if err := s.SetWorkingHours(ctx, "prov-1", []model.WorkingHours{mon}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	week, err = s.GetWorkingHours(ctx, "prov-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if week[time.Monday] != mon {
		t.Fatalf("unexpected monday %+v", week[time.Monday])
	}
	if week[time.Tuesday].Active {
		t.Fatalf("tuesday should stay closed")
	}
	other, _ := s.GetWorkingHours(ctx, "prov-2")
	if other[time.Monday].Active {
		t.Fatalf("hours must be scoped per provider")
	}
}

func testAppointments(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, appt("a3", "c1", monday, 720, 780, model.StatusPending))
	mustInsert(t, s, appt("a1", "c1", monday, 540, 600, model.StatusPending))
	mustInsert(t, s, appt("a2", "c2", monday, 600, 660, model.StatusPending))
	mustInsert(t, s, appt("a4", "c2", tuesday, 540, 600, model.StatusPending))

	if err := s.UpdateStatus(ctx, "a2", model.StatusCancelled, model.StatusPending, created.Add(time.Hour), evt("a2", "booking.appointment.cancelled.v1")); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := s.GetAppointments(ctx, "prov-1", monday, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ids(got) != "a1,a3" {
		t.Fatalf("expected a1,a3 got %s", ids(got))
	}
	got, _ = s.GetAppointments(ctx, "prov-1", monday, true)
	if ids(got) != "a1,a2,a3" {
		t.Fatalf("expected a1,a2,a3 with cancelled, got %s", ids(got))
	}

	a, err := s.GetAppointment(ctx, "a1")
	if err != nil {
		t.Fatalf("get one: %v", err)
	}
	if a.Date != monday || a.StartMinute != 540 || a.EndMinute != 600 || a.PriceMinorSnapshot != 8000 || a.ClientID != "c1" {
		t.Fatalf("round trip mismatch %+v", a)
	}
	if !a.CreatedAt.Equal(created) {
		t.Fatalf("created_at mismatch %v", a.CreatedAt)
	}
	if _, err := s.GetAppointment(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testOverlap(t *testing.T, s storage.Store) {
	mustInsert(t, s, appt("a1", "c1", monday, 600, 660, model.StatusPending))

	err := s.InsertAppointment(context.Background(), appt("a2", "c2", monday, 630, 690, model.StatusPending), evt("a2", "booking.appointment.created.v1"))
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// Adjacent, other day, cancelled blockers are all fine.
	mustInsert(t, s, appt("a3", "c2", monday, 660, 720, model.StatusPending))
	mustInsert(t, s, appt("a4", "c2", tuesday, 600, 660, model.StatusPending))

	ctx := context.Background()
	if err := s.UpdateStatus(ctx, "a1", model.StatusCancelled, model.StatusPending, created, evt("a1", "booking.appointment.cancelled.v1")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	mustInsert(t, s, appt("a5", "c3", monday, 600, 660, model.StatusPending))
}

func testCAS(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, appt("a1", "c1", monday, 600, 660, model.StatusPending))

	at := created.Add(time.Minute)
	if err := s.UpdateStatus(ctx, "a1", model.StatusConfirmed, model.StatusPending, at, evt("a1", "booking.appointment.confirmed.v1")); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	err := s.UpdateStatus(ctx, "a1", model.StatusCancelled, model.StatusPending, at, evt("a1", "booking.appointment.cancelled.v1"))
	if !errors.Is(err, model.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}
	a, _ := s.GetAppointment(ctx, "a1")
	if a.Status != model.StatusConfirmed || !a.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected stored state %+v", a)
	}
	if err := s.UpdateStatus(ctx, "nope", model.StatusConfirmed, model.StatusPending, at, outbox.Event{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Racing writers: exactly one wins the swap.
	mustInsert(t, s, appt("a2", "c2", tuesday, 600, 660, model.StatusPending))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, to := range []model.Status{model.StatusConfirmed, model.StatusCancelled, model.StatusCancelled, model.StatusConfirmed} {
		wg.Add(1)
		go func(to model.Status) {
			defer wg.Done()
			err := s.UpdateStatus(ctx, "a2", to, model.StatusPending, at, evt("a2", "booking.appointment."+string(to)+".v1"))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, model.ErrStaleState) {
				t.Errorf("unexpected error %v", err)
			}
		}(to)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func testIdempotency(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := appt("a1", "c1", monday, 600, 660, model.StatusPending)
	a.IdempotencyKey = "key-1"
	mustInsert(t, s, a)

	got, err := s.FindByIdempotencyKey(ctx, "c1", "key-1")
	if err != nil || got.ID != "a1" {
		t.Fatalf("find: %+v %v", got, err)
	}
	if _, err := s.FindByIdempotencyKey(ctx, "c2", "key-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("keys are scoped per client, got %v", err)
	}

	dup := appt("a2", "c1", tuesday, 600, 660, model.StatusPending)
	dup.IdempotencyKey = "key-1"
	if err := s.InsertAppointment(ctx, dup, evt("a2", "booking.appointment.created.v1")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on reused key, got %v", err)
	}
}

func testList(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, appt("a2", "c1", tuesday, 540, 600, model.StatusPending))
	mustInsert(t, s, appt("a1", "c1", monday, 600, 660, model.StatusPending))
	mustInsert(t, s, appt("a3", "c2", monday, 540, 600, model.StatusPending))
	if err := s.UpdateStatus(ctx, "a3", model.StatusConfirmed, model.StatusPending, created, evt("a3", "booking.appointment.confirmed.v1")); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got, err := s.ListAppointments(ctx, storage.AppointmentQuery{ClientID: "c1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids(got) != "a1,a2" {
		t.Fatalf("client list: %s", ids(got))
	}
	got, _ = s.ListAppointments(ctx, storage.AppointmentQuery{ProviderID: "prov-1", Statuses: []model.Status{model.StatusPending}})
	if ids(got) != "a1,a2" {
		t.Fatalf("pending list: %s", ids(got))
	}
	got, _ = s.ListAppointments(ctx, storage.AppointmentQuery{ProviderID: "prov-1", From: monday, To: monday})
	if ids(got) != "a3,a1" {
		t.Fatalf("date range list: %s", ids(got))
	}
}

func testCatalog(t *testing.T, s storage.Store) {
	ctx := context.Background()
	p, err := s.UpsertProvider(ctx, model.Provider{ID: "prov-1", DisplayName: "Ama Braids", CreatedAt: created})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertProvider(ctx, model.Provider{ID: "prov-1", DisplayName: "Ama's Braids", CreatedAt: created.Add(time.Hour)}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := s.GetProvider(ctx, "prov-1")
	if err != nil || got.DisplayName != "Ama's Braids" || !got.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("provider round trip %+v %v", got, err)
	}
	if _, err := s.UpsertProvider(ctx, model.Provider{ID: "prov-0", DisplayName: "Bola Cuts", CreatedAt: created}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, _ := s.ListProviders(ctx)
	if len(list) != 2 || list[0].ID != "prov-1" {
		t.Fatalf("providers sorted by name: %+v", list)
	}
	if _, err := s.GetProvider(ctx, "nobody"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	svc := model.Service{ID: "svc-1", ProviderID: "prov-1", Name: "Knotless braids", PriceMinor: 8000, DurationMinutes: 60, Active: true, CreatedAt: created, UpdatedAt: created}
	if err := s.CreateService(ctx, svc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateService(ctx, model.Service{ID: "svc-2", ProviderID: "prov-1", Name: "Cornrows", PriceMinor: 5000, DurationMinutes: 45, Active: false, CreatedAt: created, UpdatedAt: created}); err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.PriceMinor = 9000
	svc.UpdatedAt = created.Add(time.Hour)
	if err := s.UpdateService(ctx, svc); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := s.GetService(ctx, "svc-1")
	if err != nil || stored.PriceMinor != 9000 || stored.DurationMinutes != 60 || !stored.Active {
		t.Fatalf("service round trip %+v %v", stored, err)
	}
	if err := s.UpdateService(ctx, model.Service{ID: "missing", ProviderID: "prov-1", Name: "x", DurationMinutes: 5}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	active, _ := s.ListServices(ctx, "prov-1", false)
	all, _ := s.ListServices(ctx, "prov-1", true)
	if len(active) != 1 || len(all) != 2 || all[0].Name != "Cornrows" {
		t.Fatalf("unexpected service lists %+v / %+v", active, all)
	}
}

func testRelay(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustInsert(t, s, appt("a1", "c1", monday, 540, 600, model.StatusPending))
	mustInsert(t, s, appt("a2", "c1", monday, 600, 660, model.StatusPending))
	if err := s.UpdateStatus(ctx, "a1", model.StatusConfirmed, model.StatusPending, created, evt("a1", "booking.appointment.confirmed.v1")); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	failed := errors.New("broker down")
	if _, err := s.Relay(ctx, 10, func(context.Context, []outbox.Record) error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("expected relay error, got %v", err)
	}

	var seen []outbox.Record
	n, err := s.Relay(ctx, 2, func(_ context.Context, recs []outbox.Record) error {
		seen = append(seen, recs...)
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("first relay n=%d err=%v", n, err)
	}
	n, err = s.Relay(ctx, 2, func(_ context.Context, recs []outbox.Record) error {
		seen = append(seen, recs...)
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("second relay n=%d err=%v", n, err)
	}
	n, _ = s.Relay(ctx, 2, func(context.Context, []outbox.Record) error { return nil })
	if n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 events, got %d", len(seen))
	}
	if seen[0].Event.EventType != "booking.appointment.created.v1" || seen[2].Event.EventType != "booking.appointment.confirmed.v1" {
		t.Fatalf("events out of order: %+v", seen)
	}
	if seen[0].EventID == "" || seen[0].EventID == seen[1].EventID {
		t.Fatalf("event ids must be unique")
	}
	if string(seen[2].Event.Payload) != `{"appointment_id":"a1"}` {
		t.Fatalf("payload mismatch %q", seen[2].Event.Payload)
	}
}

func ids(appts []model.Appointment) string {
	out := ""
	for i, a := range appts {
		if i > 0 {
			out += ","
		}
		out += a.ID
	}
	return out
}
