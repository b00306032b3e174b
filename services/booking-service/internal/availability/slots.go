package availability

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned when an interval's end is not after its start.
var ErrInvalidInterval = errors.New("interval end must be after start")

type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotStarts returns the start times of back-to-back slots of length duration
// inside [windowStart, windowEnd). A slot is emitted only when the whole slot
// fits inside the window. Returns nil for a non-positive duration or an empty
// window.
//
// All times are expected to be in the same location (timezone).
func SlotStarts(windowStart, windowEnd time.Time, duration time.Duration) []time.Time {
	if duration <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		starts = append(starts, t)
	}
	return starts
}

// Overlaps reports whether [start, end) intersects any of the busy intervals.
// Intervals are half-open: [start,end) overlaps [b.Start,b.End) iff
// start < b.End && b.Start < end, so back-to-back bookings never collide.
func Overlaps(start, end time.Time, busy []Interval) (bool, error) {
	if !end.After(start) {
		return false, ErrInvalidInterval
	}
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true, nil
		}
	}
	return false, nil
}
