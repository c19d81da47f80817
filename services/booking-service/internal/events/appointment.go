// Package events builds the outbox envelopes for appointment changes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
)

const (
	AggregateAppointment = "appointment"

	AppointmentCreated   = "booking.appointment.created.v1"
	AppointmentConfirmed = "booking.appointment.confirmed.v1"
	AppointmentCancelled = "booking.appointment.cancelled.v1"
	AppointmentCompleted = "booking.appointment.completed.v1"
)

// TypeForStatus returns the event emitted when an appointment enters s.
func TypeForStatus(s model.Status) string {
	switch s {
	case model.StatusPending:
		return AppointmentCreated
	case model.StatusConfirmed:
		return AppointmentConfirmed
	case model.StatusCancelled:
		return AppointmentCancelled
	case model.StatusCompleted:
		return AppointmentCompleted
	default:
		return ""
	}
}

// Appointment renders the event for appt having just entered its current status.
func Appointment(appt model.Appointment, previous model.Status, at time.Time) (outbox.Event, error) {
	eventType := TypeForStatus(appt.Status)
	if eventType == "" {
		return outbox.Event{}, fmt.Errorf("no event for status %q", appt.Status)
	}
	body := map[string]any{
		"appointment_id":       appt.ID,
		"client_id":            appt.ClientID,
		"provider_id":          appt.ProviderID,
		"service_id":           appt.ServiceID,
		"date":                 appt.Date.String(),
		"start_minute":         appt.StartMinute,
		"end_minute":           appt.EndMinute,
		"price_minor_snapshot": appt.PriceMinorSnapshot,
		"status":               string(appt.Status),
		"occurred_at":          at.UTC().Format(time.RFC3339),
	}
	if previous != "" {
		body["previous_status"] = string(previous)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
