package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

func TestAppointmentEvent(t *testing.T) {
	appt := model.Appointment{
		ID:                 "a1",
		ClientID:           "c1",
		ProviderID:         "p1",
		ServiceID:          "s1",
		Date:               model.Date{Year: 2026, Month: time.March, Day: 2},
		StartMinute:        600,
		EndMinute:          660,
		PriceMinorSnapshot: 8000,
		Status:             model.StatusConfirmed,
	}
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	evt, err := Appointment(appt, model.StatusPending, at)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if evt.EventType != AppointmentConfirmed || evt.AggregateID != "a1" || evt.AggregateType != AggregateAppointment {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var body map[string]any
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if body["date"] != "2026-03-02" || body["previous_status"] != "pending" || body["price_minor_snapshot"] != float64(8000) {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["occurred_at"] != "2026-03-01T09:30:00Z" {
		t.Fatalf("unexpected occurred_at %v", body["occurred_at"])
	}
}

func TestCreatedEventOmitsPreviousStatus(t *testing.T) {
	evt, err := Appointment(model.Appointment{ID: "a1", Status: model.StatusPending}, "", time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if evt.EventType != AppointmentCreated {
		t.Fatalf("unexpected type %s", evt.EventType)
	}
	var body map[string]any
	_ = json.Unmarshal(evt.Payload, &body)
	if _, ok := body["previous_status"]; ok {
		t.Fatalf("created event must not carry previous_status")
	}
}

func TestUnknownStatusHasNoEvent(t *testing.T) {
	if _, err := Appointment(model.Appointment{Status: "archived"}, "", time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}
