// Package lifecycle owns appointment status transitions: which edges exist,
// who may take them, and the compare-and-swap retry loop that applies them.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/events"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
)

type edge struct {
	from model.Status
	to   model.Status
}

var transitions = map[edge][]model.Role{
	{model.StatusPending, model.StatusConfirmed}:   {model.RoleProvider},
	{model.StatusPending, model.StatusCancelled}:   {model.RoleClient, model.RoleProvider},
	{model.StatusConfirmed, model.StatusCancelled}: {model.RoleClient, model.RoleProvider},
	{model.StatusConfirmed, model.StatusCompleted}: {model.RoleProvider},
}

// Allowed reports whether from->to is an edge of the lifecycle.
func Allowed(from, to model.Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// CanInvoke reports whether role may take the edge from->to.
func CanInvoke(from, to model.Status, role model.Role) bool {
	return slices.Contains(transitions[edge{from, to}], role)
}

// Store is the slice of the calendar store transitions need.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, newStatus, expected model.Status, at time.Time, evt outbox.Event) error
}

const DefaultMaxAttempts = 3

type Machine struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

type Option func(*Machine)

func WithMaxAttempts(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(store Store, opts ...Option) *Machine {
	m := &Machine{store: store, maxAttempts: DefaultMaxAttempts, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition moves the appointment to `to` on behalf of actor. A lost
// compare-and-swap re-reads and re-validates; after maxAttempts losses the
// call fails with model.ErrTransitionConflict.
func (m *Machine) Transition(ctx context.Context, id string, to model.Status, actor model.Actor) (model.Appointment, error) {
	if err := actor.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if _, err := model.ParseStatus(string(to)); err != nil {
		return model.Appointment{}, err
	}

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		appt, err := m.store.GetAppointment(ctx, id)
		if err != nil {
			return model.Appointment{}, err
		}
		if err := check(appt, to, actor); err != nil {
			return model.Appointment{}, err
		}

		at := m.now().UTC()
		from := appt.Status
		next := appt
		next.Status = to
		next.UpdatedAt = at
		evt, err := events.Appointment(next, from, at)
		if err != nil {
			return model.Appointment{}, err
		}

		err = m.store.UpdateStatus(ctx, id, to, from, at, evt)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, model.ErrStaleState) {
			return model.Appointment{}, err
		}
		if ctx.Err() != nil {
			return model.Appointment{}, ctx.Err()
		}
	}
	return model.Appointment{}, fmt.Errorf("%w: appointment %s changed concurrently %d times", model.ErrTransitionConflict, id, m.maxAttempts)
}

func check(appt model.Appointment, to model.Status, actor model.Actor) error {
	if !appt.Involves(actor) {
		return fmt.Errorf("%w: %s %s is not a party to appointment %s", model.ErrForbidden, actor.Role, actor.ID, appt.ID)
	}
	if !Allowed(appt.Status, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, appt.Status, to)
	}
	if !CanInvoke(appt.Status, to, actor.Role) {
		return fmt.Errorf("%w: %s may not move %s -> %s", model.ErrForbidden, actor.Role, appt.Status, to)
	}
	return nil
}
