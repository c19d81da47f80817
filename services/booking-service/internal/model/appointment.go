package model

import "time"

// Appointment is immutable after creation except for Status and UpdatedAt,
// which only change through a status transition.
type Appointment struct {
	ID                 string
	ClientID           string
	ProviderID         string
	ServiceID          string
	Date               Date
	StartMinute        int
	EndMinute          int
	PriceMinorSnapshot int64
	Status             Status
	IdempotencyKey     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Overlaps reports whether the half-open intervals [start,end) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Blocks reports whether the appointment occupies its interval, i.e. it is
// pending or confirmed.
func (a Appointment) Blocks() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// Involves reports whether the actor is the client or the provider of a.
func (a Appointment) Involves(actor Actor) bool {
	switch actor.Role {
	case RoleClient:
		return actor.ID != "" && actor.ID == a.ClientID
	case RoleProvider:
		return actor.ID != "" && actor.ID == a.ProviderID
	default:
		return false
	}
}

// Before orders appointments by date then start minute.
func (a Appointment) Before(b Appointment) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if a.StartMinute != b.StartMinute {
		return a.StartMinute < b.StartMinute
	}
	return a.ID < b.ID
}
