package model

import (
	"errors"
	"testing"
	"time"
)

func TestDateParseAndWeekday(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", d.Weekday())
	}
	if d.AddDays(1).String() != "2026-03-03" {
		t.Fatalf("unexpected AddDays result %s", d.AddDays(1))
	}
	if _, err := ParseDate("02/03/2026"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestWorkingHoursWindowsAndContains(t *testing.T) {
	wh := WorkingHours{Weekday: time.Monday, StartMinute: 540, EndMinute: 1020, BreakStart: 720, BreakEnd: 780, Active: true}
	wins := wh.Windows()
	if len(wins) != 2 || wins[0] != (Window{540, 720}) || wins[1] != (Window{780, 1020}) {
		t.Fatalf("unexpected windows %v", wins)
	}
	if !wh.Contains(660, 720) {
		t.Fatalf("interval ending at the break should fit")
	}
	if wh.Contains(690, 750) {
		t.Fatalf("interval crossing the break must not fit")
	}
	wh.Active = false
	if wh.Windows() != nil || wh.Contains(600, 660) {
		t.Fatalf("inactive day has no windows")
	}
}

func TestWorkingHoursValidate(t *testing.T) {
	cases := []struct {
		name string
		wh   WorkingHours
		ok   bool
	}{
		{"valid", WorkingHours{Weekday: 1, StartMinute: 540, EndMinute: 720, Active: true}, true},
		{"inactive ignores bounds", WorkingHours{Weekday: 0}, true},
		{"start after end", WorkingHours{Weekday: 1, StartMinute: 720, EndMinute: 540, Active: true}, false},
		{"past midnight", WorkingHours{Weekday: 1, StartMinute: 540, EndMinute: 1500, Active: true}, false},
		{"break outside", WorkingHours{Weekday: 1, StartMinute: 540, EndMinute: 720, BreakStart: 700, BreakEnd: 760, Active: true}, false},
		{"bad weekday", WorkingHours{Weekday: 7, StartMinute: 540, EndMinute: 720, Active: true}, false},
	}
	for _, tc := range cases {
		err := tc.wh.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
	}
}

func TestAppointmentInvolvesAndBlocks(t *testing.T) {
	a := Appointment{ClientID: "c1", ProviderID: "p1", Status: StatusConfirmed}
	if !a.Involves(Actor{Role: RoleClient, ID: "c1"}) || !a.Involves(Actor{Role: RoleProvider, ID: "p1"}) {
		t.Fatalf("participants should be involved")
	}
	if a.Involves(Actor{Role: RoleClient, ID: "p1"}) {
		t.Fatalf("role must match the referenced id")
	}
	if !a.Blocks() {
		t.Fatalf("confirmed appointments block their slot")
	}
	a.Status = StatusCancelled
	if a.Blocks() {
		t.Fatalf("cancelled appointments free their slot")
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	if Overlaps(540, 600, 600, 660) {
		t.Fatalf("adjacent intervals do not overlap")
	}
	if !Overlaps(540, 601, 600, 660) {
		t.Fatalf("one shared minute overlaps")
	}
}
