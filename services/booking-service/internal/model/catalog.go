package model

import (
	"fmt"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

type Provider struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// Service is soft-disabled via Active=false and never deleted, so past
// appointments keep a valid reference.
type Service struct {
	ID              string
	ProviderID      string
	Name            string
	PriceMinor      int64
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Service) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: service name is required", ErrInvalidArgument)
	case s.PriceMinor < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	case s.DurationMinutes <= 0 || s.DurationMinutes > MinutesPerDay:
		return fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidArgument, MinutesPerDay)
	}
	return nil
}

// WorkingHours is the rule for one weekday. A break, when set, splits the
// day into two working windows.
type WorkingHours struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	BreakStart  int
	BreakEnd    int
	Active      bool
}

// Window is a half-open range of minutes within a day.
type Window struct {
	Start int
	End   int
}

func (w WorkingHours) HasBreak() bool {
	return w.BreakEnd > w.BreakStart
}

// Windows returns the working windows for the day in ascending order.
func (w WorkingHours) Windows() []Window {
	if !w.Active || w.StartMinute >= w.EndMinute {
		return nil
	}
	if !w.HasBreak() {
		return []Window{{Start: w.StartMinute, End: w.EndMinute}}
	}
	return []Window{
		{Start: w.StartMinute, End: w.BreakStart},
		{Start: w.BreakEnd, End: w.EndMinute},
	}
}

// Contains reports whether [start,end) lies inside one working window.
func (w WorkingHours) Contains(start, end int) bool {
	for _, win := range w.Windows() {
		if win.Start <= start && end <= win.End {
			return true
		}
	}
	return false
}

func (w WorkingHours) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday must be in [0,6]", ErrInvalidArgument)
	}
	if w.BreakStart != 0 || w.BreakEnd != 0 {
		if w.BreakStart >= w.BreakEnd {
			return fmt.Errorf("%w: break start must be before break end", ErrInvalidArgument)
		}
	}
	if !w.Active {
		return nil
	}
	if w.StartMinute < 0 || w.EndMinute > MinutesPerDay || w.StartMinute >= w.EndMinute {
		return fmt.Errorf("%w: working window must satisfy 0 <= start < end <= %d", ErrInvalidArgument, MinutesPerDay)
	}
	if w.HasBreak() && (w.BreakStart <= w.StartMinute || w.BreakEnd >= w.EndMinute) {
		return fmt.Errorf("%w: break must lie strictly inside the working window", ErrInvalidArgument)
	}
	return nil
}

// Week holds one WorkingHours entry per weekday, indexed by time.Weekday.
type Week [7]WorkingHours

// ClosedWeek returns a week with every day inactive.
func ClosedWeek() Week {
	var w Week
	for i := range w {
		w[i].Weekday = time.Weekday(i)
	}
	return w
}

func (w Week) Day(d Date) WorkingHours {
	return w[d.Weekday()]
}
