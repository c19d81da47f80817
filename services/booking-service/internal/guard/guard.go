// Package guard is the only writer of new appointments. It serializes
// bookings per provider-day and re-checks overlap under that lock, so
// committed pending/confirmed intervals of one provider-day never intersect.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salonbook/salonbook/services/booking-service/internal/events"
	"github.com/salonbook/salonbook/services/booking-service/internal/locking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
)

// Store is the slice of the calendar store the guard reads and writes.
type Store interface {
	GetService(ctx context.Context, serviceID string) (model.Service, error)
	GetWorkingHours(ctx context.Context, providerID string) (model.Week, error)
	GetAppointments(ctx context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment, evt outbox.Event) error
}

type Request struct {
	ClientID       string
	ProviderID     string
	ServiceID      string
	Date           model.Date
	StartMinute    int
	IdempotencyKey string
}

func (r Request) Validate() error {
	switch {
	case r.ClientID == "":
		return fmt.Errorf("%w: client id is required", model.ErrInvalidArgument)
	case r.ProviderID == "":
		return fmt.Errorf("%w: provider id is required", model.ErrInvalidArgument)
	case r.ServiceID == "":
		return fmt.Errorf("%w: service id is required", model.ErrInvalidArgument)
	case r.Date.IsZero():
		return fmt.Errorf("%w: date is required", model.ErrInvalidArgument)
	case r.StartMinute < 0 || r.StartMinute >= model.MinutesPerDay:
		return fmt.Errorf("%w: start minute must be within the day", model.ErrInvalidArgument)
	}
	return nil
}

type Guard struct {
	store  Store
	locker locking.Locker
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLocation sets the zone calendar dates and minutes are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) { g.loc = loc }
}

func New(store Store, locker locking.Locker, opts ...Option) *Guard {
	g := &Guard{store: store, locker: locker, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LockKey is the serialization scope of a booking.
func LockKey(providerID string, date model.Date) string {
	return "booking:" + providerID + ":" + date.String()
}

// Create validates and commits a pending appointment. A repeated request
// carrying the same client and idempotency key returns the first booking.
func (g *Guard) Create(ctx context.Context, req Request) (model.Appointment, error) {
	if err := req.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if req.IdempotencyKey != "" {
		if prior, ok, err := g.replay(ctx, req); err != nil || ok {
			return prior, err
		}
	}

	svc, err := g.store.GetService(ctx, req.ServiceID)
	if err != nil {
		if model.IsNotFound(err) {
			return model.Appointment{}, fmt.Errorf("%w: service %s not found", model.ErrInvalidService, req.ServiceID)
		}
		return model.Appointment{}, err
	}
	if svc.ProviderID != req.ProviderID || !svc.Active {
		return model.Appointment{}, fmt.Errorf("%w: service %s is not offered by provider %s", model.ErrInvalidService, req.ServiceID, req.ProviderID)
	}

	end := req.StartMinute + svc.DurationMinutes
	now := g.now().In(g.loc)
	if req.StartMinute < model.EarliestStart(req.Date, now) {
		return model.Appointment{}, fmt.Errorf("%w: start %s %s has already passed", model.ErrInvalidArgument, req.Date, clock(req.StartMinute))
	}

	week, err := g.store.GetWorkingHours(ctx, req.ProviderID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !week.Day(req.Date).Contains(req.StartMinute, end) {
		return model.Appointment{}, fmt.Errorf("%w: %d-%d on %s", model.ErrOutsideWorkingHours, req.StartMinute, end, req.Date)
	}

	release, err := g.locker.Acquire(ctx, LockKey(req.ProviderID, req.Date))
	if err != nil {
		return model.Appointment{}, err
	}
	defer release()

	existing, err := g.store.GetAppointments(ctx, req.ProviderID, req.Date, false)
	if err != nil {
		return model.Appointment{}, err
	}
	for _, other := range existing {
		if other.Blocks() && model.Overlaps(req.StartMinute, end, other.StartMinute, other.EndMinute) {
			return model.Appointment{}, fmt.Errorf("%w: %d-%d overlaps %d-%d", model.ErrSlotConflict, req.StartMinute, end, other.StartMinute, other.EndMinute)
		}
	}

	createdAt := now.UTC()
	appt := model.Appointment{
		ID:                 uuid.NewString(),
		ClientID:           req.ClientID,
		ProviderID:         req.ProviderID,
		ServiceID:          req.ServiceID,
		Date:               req.Date,
		StartMinute:        req.StartMinute,
		EndMinute:          end,
		PriceMinorSnapshot: svc.PriceMinor,
		Status:             model.StatusPending,
		IdempotencyKey:     req.IdempotencyKey,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	evt, err := events.Appointment(appt, "", createdAt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := g.store.InsertAppointment(ctx, appt, evt); err != nil {
		if !model.IsConflict(err) {
			return model.Appointment{}, err
		}
		// A concurrent request with the same key may have won the unique index.
		if req.IdempotencyKey != "" {
			prior, ok, lookupErr := g.replay(ctx, req)
			switch {
			case lookupErr == nil && ok:
				return prior, nil
			case errors.Is(lookupErr, model.ErrInvalidArgument):
				return model.Appointment{}, lookupErr
			}
		}
		return model.Appointment{}, fmt.Errorf("%w: %v", model.ErrSlotConflict, err)
	}
	return appt, nil
}

func (g *Guard) replay(ctx context.Context, req Request) (model.Appointment, bool, error) {
	prior, err := g.store.FindByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		return model.Appointment{}, false, nil
	default:
		return model.Appointment{}, false, err
	}
	if prior.ProviderID != req.ProviderID || prior.ServiceID != req.ServiceID ||
		prior.Date != req.Date || prior.StartMinute != req.StartMinute {
		return model.Appointment{}, false, fmt.Errorf("%w: idempotency key reused with a different request", model.ErrInvalidArgument)
	}
	return prior, true, nil
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
