package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

func TestServiceOwnership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.UpdateService(ctx, stranger, f.svc.ID, ServiceInput{Name: "x", PriceMinor: 1, DurationMinutes: 15}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.engine.SetServiceActive(ctx, alice, f.svc.ID, false); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("client must not edit services, got %v", err)
	}
	if _, err := f.engine.CreateService(ctx, alice, ServiceInput{Name: "x", PriceMinor: 1, DurationMinutes: 15}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("client must not create services, got %v", err)
	}
	if _, err := f.engine.CreateService(ctx, stranger, ServiceInput{Name: "x", PriceMinor: 1, DurationMinutes: 15}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unregistered provider, got %v", err)
	}
	if _, err := f.engine.CreateService(ctx, owner, ServiceInput{Name: " ", PriceMinor: 1, DurationMinutes: 15}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := f.engine.UpdateService(ctx, owner, "missing", ServiceInput{Name: "x", PriceMinor: 1, DurationMinutes: 15}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSoftDisableHidesServiceFromBooking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.book(ctx, alice, 600)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.engine.SetServiceActive(ctx, owner, f.svc.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.engine.GetAvailability(ctx, owner.ID, f.svc.ID, monday); !errors.Is(err, model.ErrInvalidService) {
		t.Fatalf("expected invalid service, got %v", err)
	}
	if _, err := f.book(ctx, bob, 660); !errors.Is(err, model.ErrInvalidService) {
		t.Fatalf("expected invalid service, got %v", err)
	}
	if _, err := f.store.GetAppointment(ctx, appt.ID); err != nil {
		t.Fatalf("past appointment must survive: %v", err)
	}

	public, _ := f.engine.ListServices(ctx, model.Actor{}, owner.ID, false)
	if len(public) != 0 {
		t.Fatalf("inactive service listed publicly: %+v", public)
	}
	if _, err := f.engine.ListServices(ctx, stranger, owner.ID, true); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	all, err := f.engine.ListServices(ctx, owner, owner.ID, true)
	if err != nil || len(all) != 1 || all[0].Active {
		t.Fatalf("owner view %+v %v", all, err)
	}

	if _, err := f.engine.SetServiceActive(ctx, owner, f.svc.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := f.book(ctx, bob, 660); err != nil {
		t.Fatalf("book after re-enable: %v", err)
	}
}

func TestProviderProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.engine.UpsertProvider(ctx, alice, "Alice"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("client cannot register as provider, got %v", err)
	}
	if _, err := f.engine.UpsertProvider(ctx, owner, ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	profile, err := f.engine.GetProviderProfile(ctx, owner.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Provider.DisplayName != "Ama Braids" || len(profile.Services) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if mon := profile.Hours[time.Monday]; !mon.Active || mon.StartMinute != 540 || mon.EndMinute != 720 {
		t.Fatalf("unexpected hours %+v", mon)
	}
	if _, err := f.engine.GetProviderProfile(ctx, "nobody"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	providers, _ := f.engine.ListProviders(ctx)
	if len(providers) != 1 || providers[0].ID != owner.ID {
		t.Fatalf("providers %+v", providers)
	}
}

func TestSetWorkingHoursValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := [][]model.WorkingHours{
		nil,
		{{Weekday: 7, StartMinute: 540, EndMinute: 600, Active: true}},
		{{Weekday: time.Friday, StartMinute: 600, EndMinute: 540, Active: true}},
		{{Weekday: time.Friday, StartMinute: 540, EndMinute: 1500, Active: true}},
		{{Weekday: time.Friday, StartMinute: 540, EndMinute: 720, BreakStart: 500, BreakEnd: 560, Active: true}},
		{{Weekday: time.Friday, StartMinute: 540, EndMinute: 720, Active: true}, {Weekday: time.Friday, Active: false}},
	}
	for i, days := range bad {
		if _, err := f.engine.SetWorkingHours(ctx, owner, days); !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("case %d: expected invalid argument, got %v", i, err)
		}
	}
	if _, err := f.engine.SetWorkingHours(ctx, alice, []model.WorkingHours{{Weekday: time.Friday}}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	week, err := f.engine.SetWorkingHours(ctx, owner, []model.WorkingHours{
		{Weekday: time.Friday, StartMinute: 540, EndMinute: 1020, BreakStart: 720, BreakEnd: 780, Active: true},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !week[time.Monday].Active || !week[time.Friday].HasBreak() {
		t.Fatalf("unexpected week %+v", week)
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a1, _ := f.book(ctx, alice, 540)
	a2, _ := f.book(ctx, bob, 600)
	a3, _ := f.book(ctx, alice, 660)
	for _, step := range []struct {
		id    string
		to    model.Status
		actor model.Actor
	}{
		{a1.ID, model.StatusConfirmed, owner},
		{a1.ID, model.StatusCompleted, owner},
		{a2.ID, model.StatusConfirmed, owner},
		{a3.ID, model.StatusCancelled, alice},
	} {
		if _, err := f.engine.TransitionStatus(ctx, step.id, step.to, step.actor); err != nil {
			t.Fatalf("transition %s -> %s: %v", step.id, step.to, err)
		}
	}
	// Raising the price afterwards must not change earnings.
	if _, err := f.engine.UpdateService(ctx, owner, f.svc.ID, ServiceInput{Name: "Cut", PriceMinor: 9000, DurationMinutes: 60}); err != nil {
		t.Fatalf("update: %v", err)
	}

	schedule, err := f.engine.DaySchedule(ctx, owner, monday, false)
	if err != nil || len(schedule) != 2 {
		t.Fatalf("schedule %+v %v", schedule, err)
	}
	withCancelled, _ := f.engine.DaySchedule(ctx, owner, monday, true)
	if len(withCancelled) != 3 {
		t.Fatalf("schedule with cancelled: %d", len(withCancelled))
	}
	if _, err := f.engine.DaySchedule(ctx, alice, monday, false); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	earn, err := f.engine.Earnings(ctx, owner, monday, monday.AddDays(6))
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if earn.CompletedCount != 1 || earn.TotalMinor != 8000 {
		t.Fatalf("unexpected earnings %+v", earn)
	}
	if earn.CountsByStatus[model.StatusConfirmed] != 1 || earn.CountsByStatus[model.StatusCancelled] != 1 || earn.CountsByStatus[model.StatusPending] != 0 {
		t.Fatalf("unexpected counts %+v", earn.CountsByStatus)
	}
	empty, _ := f.engine.Earnings(ctx, owner, monday.AddDays(1), monday.AddDays(2))
	if empty.CompletedCount != 0 || empty.TotalMinor != 0 {
		t.Fatalf("expected empty range, got %+v", empty)
	}
	if _, err := f.engine.Earnings(ctx, owner, monday, sunday); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}
