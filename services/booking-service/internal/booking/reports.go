package booking

import (
	"context"
	"fmt"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
)

// DaySchedule returns the calling provider's appointments on date by start.
func (e *Engine) DaySchedule(ctx context.Context, actor model.Actor, date model.Date, includeCancelled bool) ([]model.Appointment, error) {
	if err := requireProvider(actor); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = e.Today()
	}
	appts, err := e.store.GetAppointments(ctx, actor.ID, date, includeCancelled)
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	return appts, nil
}

type Earnings struct {
	From           model.Date
	To             model.Date
	CompletedCount int
	// TotalMinor sums the snapshot price of completed appointments.
	TotalMinor     int64
	CountsByStatus map[model.Status]int
}

// Earnings summarizes the calling provider's appointments dated within
// [from, to].
func (e *Engine) Earnings(ctx context.Context, actor model.Actor, from, to model.Date) (Earnings, error) {
	if err := requireProvider(actor); err != nil {
		return Earnings{}, err
	}
	if from.IsZero() || to.IsZero() {
		return Earnings{}, fmt.Errorf("%w: from and to are required", model.ErrInvalidArgument)
	}
	if from.Compare(to) > 0 {
		return Earnings{}, fmt.Errorf("%w: from %s is after to %s", model.ErrInvalidArgument, from, to)
	}
	appts, err := e.store.ListAppointments(ctx, storage.AppointmentQuery{ProviderID: actor.ID, From: from, To: to})
	if err != nil {
		return Earnings{}, err
	}
	out := Earnings{
		From: from,
		To:   to,
		CountsByStatus: map[model.Status]int{
			model.StatusPending:   0,
			model.StatusConfirmed: 0,
			model.StatusCompleted: 0,
			model.StatusCancelled: 0,
		},
	}
	for _, a := range appts {
		out.CountsByStatus[a.Status]++
		if a.Status == model.StatusCompleted {
			out.CompletedCount++
			out.TotalMinor += a.PriceMinorSnapshot
		}
	}
	return out, nil
}
