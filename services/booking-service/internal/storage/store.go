package storage

import (
	"context"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
)

// CalendarStore persists working hours and appointments. It validates no
// scheduling rules beyond its own constraints: an overlapping blocking
// appointment on insert fails with model.ErrConflict, and a compare-and-swap
// miss on UpdateStatus fails with model.ErrStaleState.
type CalendarStore interface {
	GetWorkingHours(ctx context.Context, providerID string) (model.Week, error)
	// GetAppointments returns the provider's appointments on date ordered by
	// start minute; cancelled ones only when includeCancelled is set.
	GetAppointments(ctx context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (model.Appointment, error)
	// InsertAppointment writes the row and its event atomically.
	InsertAppointment(ctx context.Context, appt model.Appointment, evt outbox.Event) error
	// UpdateStatus sets newStatus only while the stored status is expected,
	// writing evt in the same transaction.
	UpdateStatus(ctx context.Context, id string, newStatus, expected model.Status, at time.Time, evt outbox.Event) error
	// ListAppointments returns matches ordered by (date, start) ascending.
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]model.Appointment, error)
}

// AppointmentQuery filters by participant, status and an inclusive date range.
// Zero values do not filter.
type AppointmentQuery struct {
	ClientID   string
	ProviderID string
	Statuses   []model.Status
	From       model.Date
	To         model.Date
}

// Catalog persists providers, their services and weekly hours.
type Catalog interface {
	UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error)
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context, providerID string, includeInactive bool) ([]model.Service, error)
	CreateService(ctx context.Context, svc model.Service) error
	UpdateService(ctx context.Context, svc model.Service) error
	SetWorkingHours(ctx context.Context, providerID string, days []model.WorkingHours) error
}

// Store is what a backend provides to the service.
type Store interface {
	CalendarStore
	Catalog
	outbox.Source
	Ping(ctx context.Context) error
	Close() error
}
