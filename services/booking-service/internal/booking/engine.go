// Package booking is the public surface of the scheduling engine. It wires
// the availability calculator, the conflict guard and the status machine
// over one storage.Store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/guard"
	"github.com/salonbook/salonbook/services/booking-service/internal/lifecycle"
	"github.com/salonbook/salonbook/services/booking-service/internal/locking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	// Granularity is the slot grid step in minutes.
	Granularity int
	// MaxAttempts bounds Busy retries on create and StaleState retries on
	// transitions.
	MaxAttempts int
	// Location is the salon's zone; dates and minutes of day are local to it.
	Location *time.Location
	Now      func() time.Time
}

type Engine struct {
	store   storage.Store
	calc    *availability.Calculator
	guard   *guard.Guard
	machine *lifecycle.Machine
	logger  *slog.Logger
	tracer  trace.Tracer

	maxAttempts int
	loc         *time.Location
	now         func() time.Time
}

func New(store storage.Store, locker locking.Locker, logger *slog.Logger, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = lifecycle.DefaultMaxAttempts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       store,
		calc:        availability.NewCalculator(store, cfg.Granularity),
		guard:       guard.New(store, locker, guard.WithClock(cfg.Now), guard.WithLocation(cfg.Location)),
		machine:     lifecycle.New(store, lifecycle.WithMaxAttempts(cfg.MaxAttempts), lifecycle.WithClock(cfg.Now)),
		logger:      logger,
		tracer:      otel.Tracer("booking-service/booking"),
		maxAttempts: cfg.MaxAttempts,
		loc:         cfg.Location,
		now:         cfg.Now,
	}
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Today is the current date in the salon's zone.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.now().In(e.loc))
}

// notBefore hides slots that already started: everything on past dates and
// the elapsed part of today.
func (e *Engine) notBefore(date model.Date) int {
	return model.EarliestStart(date, e.now().In(e.loc))
}

// GetAvailability lists the free slots for serviceID on date in ascending
// order. Two calls with no write in between return the same slots.
func (e *Engine) GetAvailability(ctx context.Context, providerID, serviceID string, date model.Date) (_ []availability.Slot, err error) {
	ctx, span := e.start(ctx, "booking.GetAvailability",
		attribute.String("provider_id", providerID),
		attribute.String("service_id", serviceID),
		attribute.String("date", date.String()),
	)
	defer func() { finish(span, err) }()

	if providerID == "" || serviceID == "" || date.IsZero() {
		return nil, fmt.Errorf("%w: provider_id, service_id and date are required", model.ErrInvalidArgument)
	}
	seq, err := e.calc.Available(ctx, providerID, serviceID, date, e.notBefore(date))
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []availability.Slot{}
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// CreateAppointment books a pending appointment for the client. Lock
// timeouts are retried up to the configured bound before ErrBusy surfaces.
func (e *Engine) CreateAppointment(ctx context.Context, req guard.Request) (appt model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.CreateAppointment",
		attribute.String("provider_id", req.ProviderID),
		attribute.String("service_id", req.ServiceID),
		attribute.String("date", req.Date.String()),
		attribute.Int("start_minute", req.StartMinute),
	)
	defer func() { finish(span, err) }()

	for attempt := 1; ; attempt++ {
		appt, err = e.guard.Create(ctx, req)
		if err == nil {
			e.logger.Info("appointment booked",
				"appointment_id", appt.ID,
				"provider_id", appt.ProviderID,
				"date", appt.Date.String(),
				"start_minute", appt.StartMinute,
				"attempt", attempt,
			)
			return appt, nil
		}
		if !errors.Is(err, model.ErrBusy) || attempt >= e.maxAttempts || ctx.Err() != nil {
			break
		}
		e.logger.Debug("booking scope busy; retrying", "provider_id", req.ProviderID, "date", req.Date.String(), "attempt", attempt)
	}
	if errors.Is(err, model.ErrBusy) {
		e.logger.Warn("booking scope busy after retries", "provider_id", req.ProviderID, "date", req.Date.String(), "attempts", e.maxAttempts)
	}
	return model.Appointment{}, err
}

// TransitionStatus moves an appointment along the lifecycle for actor.
func (e *Engine) TransitionStatus(ctx context.Context, appointmentID string, to model.Status, actor model.Actor) (appt model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.TransitionStatus",
		attribute.String("appointment_id", appointmentID),
		attribute.String("to", string(to)),
		attribute.String("actor_role", string(actor.Role)),
	)
	defer func() { finish(span, err) }()

	appt, err = e.machine.Transition(ctx, appointmentID, to, actor)
	if err != nil {
		if errors.Is(err, model.ErrTransitionConflict) {
			e.logger.Warn("status transition lost every retry", "appointment_id", appointmentID, "to", string(to))
		}
		return model.Appointment{}, err
	}
	e.logger.Info("appointment status changed", "appointment_id", appt.ID, "status", string(appt.Status), "actor_role", string(actor.Role))
	return appt, nil
}

// ListAppointments returns the actor's own appointments: upcoming is pending
// ascending by date and time, history is everything else descending.
func (e *Engine) ListAppointments(ctx context.Context, actor model.Actor, filter model.ListFilter) (_ []model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.ListAppointments",
		attribute.String("actor_role", string(actor.Role)),
		attribute.String("filter", string(filter)),
	)
	defer func() { finish(span, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if filter == "" {
		filter = model.FilterUpcoming
	}
	if _, err := model.ParseListFilter(string(filter)); err != nil {
		return nil, err
	}

	q := storage.AppointmentQuery{Statuses: filter.Statuses()}
	if actor.Role == model.RoleClient {
		q.ClientID = actor.ID
	} else {
		q.ProviderID = actor.ID
	}
	appts, err := e.store.ListAppointments(ctx, q)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(appts, func(a, b model.Appointment) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	if filter == model.FilterHistory {
		slices.Reverse(appts)
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	return appts, nil
}

func requireProvider(actor model.Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if actor.Role != model.RoleProvider {
		return fmt.Errorf("%w: provider role required", model.ErrForbidden)
	}
	return nil
}
