package availability

import (
	"time"

	"github.com/citaflow/booking-backend/internal/timerange"
)

// DefaultStepMinutes is the grid increment between candidate slot starts.
const DefaultStepMinutes = 30

// BusinessHours bounds each calendar day to the professional's open window,
// expressed as local wall-clock components in Location.
type BusinessHours struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Location    *time.Location
}

// ComputeSlots derives the bookable slots inside search. It is a pure
// function: identical inputs always yield the identical ordered output, which
// is what lets hold and booking checks re-derive availability after a
// conflict.
//
// For every calendar day intersecting search, the day is bounded to the open
// window and a duration-sized candidate slides forward in step increments. A
// candidate is emitted iff it lies within search, starts after now, and does
// not intersect the merged busy set (calendar busy periods, other sessions'
// live holds, and active bookings, pre-merged by the caller).
func ComputeSlots(busy []timerange.TimeRange, hours BusinessHours, search timerange.TimeRange, durationMinutes, stepMinutes int, now time.Time) []timerange.TimeRange {
	if durationMinutes <= 0 || search.Validate() != nil {
		return nil
	}
	if stepMinutes <= 0 {
		stepMinutes = DefaultStepMinutes
	}
	loc := hours.Location
	if loc == nil {
		loc = time.UTC
	}

	merged := timerange.Merge(busy)
	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(stepMinutes) * time.Minute

	var slots []timerange.TimeRange

	day := search.Start.In(loc)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	for day.Before(search.End) {
		open := time.Date(day.Year(), day.Month(), day.Day(), hours.OpenHour, hours.OpenMinute, 0, 0, loc)
		close := time.Date(day.Year(), day.Month(), day.Day(), hours.CloseHour, hours.CloseMinute, 0, 0, loc)

		for start := open; !start.Add(duration).After(close); start = start.Add(step) {
			candidate := timerange.TimeRange{Start: start, End: start.Add(duration)}

			if candidate.Start.Before(search.Start) || candidate.End.After(search.End) {
				continue
			}
			if !candidate.Start.After(now) {
				continue
			}
			if timerange.OverlapsAny(candidate, merged) {
				continue
			}
			slots = append(slots, candidate)
		}

		day = day.AddDate(0, 0, 1)
	}

	return slots
}
