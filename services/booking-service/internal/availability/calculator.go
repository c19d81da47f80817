package availability

import (
	"context"
	"fmt"
	"iter"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// Source is the read side of the calendar store the calculator needs.
type Source interface {
	GetService(ctx context.Context, serviceID string) (model.Service, error)
	GetWorkingHours(ctx context.Context, providerID string) (model.Week, error)
	GetAppointments(ctx context.Context, providerID string, date model.Date, includeCancelled bool) ([]model.Appointment, error)
}

type Calculator struct {
	src         Source
	granularity int
}

func NewCalculator(src Source, granularity int) *Calculator {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Calculator{src: src, granularity: granularity}
}

func (c *Calculator) Granularity() int { return c.granularity }

// Available reads working hours and the day's bookings once and returns the
// free slots for the service. notBefore hides slots starting earlier than
// that minute of the day; pass 0 for no cutoff.
func (c *Calculator) Available(ctx context.Context, providerID, serviceID string, date model.Date, notBefore int) (iter.Seq[Slot], error) {
	svc, err := c.src.GetService(ctx, serviceID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, fmt.Errorf("%w: service %s not found", model.ErrInvalidService, serviceID)
		}
		return nil, err
	}
	if svc.ProviderID != providerID || !svc.Active {
		return nil, fmt.Errorf("%w: service %s is not offered by provider %s", model.ErrInvalidService, serviceID, providerID)
	}

	week, err := c.src.GetWorkingHours(ctx, providerID)
	if err != nil {
		return nil, err
	}
	day := week.Day(date)
	if len(day.Windows()) == 0 {
		return func(func(Slot) bool) {}, nil
	}

	appts, err := c.src.GetAppointments(ctx, providerID, date, false)
	if err != nil {
		return nil, err
	}
	return Slots(day, Busy(appts), svc.DurationMinutes, c.granularity, notBefore), nil
}
