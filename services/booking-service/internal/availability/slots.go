package availability

import (
	"iter"
	"slices"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const DefaultGranularity = 15

// Slot is a bookable half-open interval in minutes of the day.
type Slot struct {
	Start int
	End   int
}

// Subtract removes busy intervals from a single window with a sweep over
// busy sorted by start. The result is ascending and non-overlapping.
func Subtract(win model.Window, busy []model.Window) []model.Window {
	if win.Start >= win.End {
		return nil
	}
	sorted := slices.Clone(busy)
	slices.SortFunc(sorted, func(a, b model.Window) int { return a.Start - b.Start })

	var free []model.Window
	cursor := win.Start
	for _, b := range sorted {
		if b.End <= cursor || b.Start >= b.End {
			continue
		}
		if b.Start >= win.End {
			break
		}
		if b.Start > cursor {
			free = append(free, model.Window{Start: cursor, End: b.Start})
		}
		cursor = max(cursor, b.End)
		if cursor >= win.End {
			return free
		}
	}
	return append(free, model.Window{Start: cursor, End: win.End})
}

// Slots yields every grid position t with t+duration inside a free region.
// The grid is anchored at each working window start and steps by granularity.
// Positions before notBefore are skipped. The sequence can be ranged over
// any number of times.
func Slots(wh model.WorkingHours, busy []model.Window, duration, granularity, notBefore int) iter.Seq[Slot] {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	windows := wh.Windows()
	return func(yield func(Slot) bool) {
		if duration <= 0 {
			return
		}
		for _, win := range windows {
			if win.End-win.Start < duration {
				continue
			}
			for _, region := range Subtract(win, busy) {
				t := alignUp(max(region.Start, notBefore), win.Start, granularity)
				for ; t+duration <= region.End; t += granularity {
					if !yield(Slot{Start: t, End: t + duration}) {
						return
					}
				}
			}
		}
	}
}

// alignUp returns the smallest anchor + k*step that is >= v.
func alignUp(v, anchor, step int) int {
	if v <= anchor {
		return anchor
	}
	k := (v - anchor + step - 1) / step
	return anchor + k*step
}

// Busy extracts the occupied intervals of blocking appointments.
func Busy(appts []model.Appointment) []model.Window {
	out := make([]model.Window, 0, len(appts))
	for _, a := range appts {
		if a.Blocks() {
			out = append(out, model.Window{Start: a.StartMinute, End: a.EndMinute})
		}
	}
	return out
}
