package storage

import (
	"slices"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// Matches applies q to a single appointment. Backends that cannot push the
// filter down use it directly.
func (q AppointmentQuery) Matches(a model.Appointment) bool {
	if q.ClientID != "" && a.ClientID != q.ClientID {
		return false
	}
	if q.ProviderID != "" && a.ProviderID != q.ProviderID {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, a.Status) {
		return false
	}
	if !q.From.IsZero() && a.Date.Compare(q.From) < 0 {
		return false
	}
	if !q.To.IsZero() && a.Date.Compare(q.To) > 0 {
		return false
	}
	return true
}

// StatusStrings renders statuses for SQL drivers.
func StatusStrings(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
