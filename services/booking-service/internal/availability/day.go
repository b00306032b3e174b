package availability

import (
	"fmt"
	"time"
)

// Reasons reported for unavailable slots. Break time wins over time off,
// which wins over a booked appointment, which wins over the slot simply
// being in the past, so a slot that is both on a break and already booked
// reports the break.
const (
	ReasonBreak   = "Break time"
	ReasonTimeOff = "Time off"
	ReasonBooked  = "Already booked"
	ReasonPast    = "Past time"
)

const DefaultSlotDuration = 30 * time.Minute

// Break is a named recurring pause resolved onto the requested day.
type Break struct {
	Name  string
	Start time.Time
	End   time.Time
}

// DaySchedule is a provider's schedule configuration for a single weekday,
// resolved to absolute times in the provider's timezone.
type DaySchedule struct {
	Location     *time.Location
	IsClosed     bool
	OpenMinute   int // minutes after local midnight
	CloseMinute  int
	SlotDuration time.Duration // zero means DefaultSlotDuration
	Breaks       []Break
	TimeOff      []Interval // absolute blackout ranges
}

// Window resolves the absolute operating window for the given calendar day.
// ok is false when the provider is not operating that day.
func (s DaySchedule) Window(date string) (start, end time.Time, ok bool, err error) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if s.IsClosed || s.CloseMinute <= s.OpenMinute {
		return day, day, false, nil
	}
	start = day.Add(time.Duration(s.OpenMinute) * time.Minute)
	end = day.Add(time.Duration(s.CloseMinute) * time.Minute)
	return start, end, true, nil
}

type Slot struct {
	Time      string `json:"time"` // "HH:MM" in the provider's timezone
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type OperatingWindow struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`
}

type BreakWindow struct {
	Name  string `json:"name"`
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`
}

type DayAvailability struct {
	Date           string           `json:"date"`
	DayOfWeek      string           `json:"dayOfWeek"`
	IsOperating    bool             `json:"isOperating"`
	TimeSlots      []Slot           `json:"timeSlots"`
	OperatingHours *OperatingWindow `json:"operatingHours,omitempty"`
	BreakTimes     []BreakWindow    `json:"breakTimes"`
}

// BuildDay computes the slot grid for one provider-local calendar day. The
// date is a bare "YYYY-MM-DD" string interpreted in sched.Location. Booked
// intervals should only contain appointments that still occupy time (pending
// or confirmed). A slot is available only when its start is strictly after
// now. A closed day reports IsOperating false with an empty grid.
func BuildDay(sched DaySchedule, date string, booked []Interval, now time.Time) (DayAvailability, error) {
	windowStart, windowEnd, operating, err := sched.Window(date)
	if err != nil {
		return DayAvailability{}, err
	}

	out := DayAvailability{
		Date:       date,
		DayOfWeek:  windowStart.Weekday().String(),
		TimeSlots:  []Slot{},
		BreakTimes: []BreakWindow{},
	}
	if !operating {
		return out, nil
	}
	out.IsOperating = true
	out.OperatingHours = &OperatingWindow{
		Start: windowStart.Format("15:04"),
		End:   windowEnd.Format("15:04"),
	}
	for _, b := range sched.Breaks {
		out.BreakTimes = append(out.BreakTimes, BreakWindow{
			Name:  b.Name,
			Start: b.Start.Format("15:04"),
			End:   b.End.Format("15:04"),
		})
	}

	duration := sched.SlotDuration
	if duration <= 0 {
		duration = DefaultSlotDuration
	}

	for _, start := range SlotStarts(windowStart, windowEnd, duration) {
		end := start.Add(duration)
		slot := Slot{Time: start.Format("15:04")}
		switch {
		case overlapsBreak(start, end, sched.Breaks):
			slot.Reason = ReasonBreak
		case overlapsAny(start, end, sched.TimeOff):
			slot.Reason = ReasonTimeOff
		case overlapsAny(start, end, booked):
			slot.Reason = ReasonBooked
		case !start.After(now):
			slot.Reason = ReasonPast
		default:
			slot.Available = true
		}
		out.TimeSlots = append(out.TimeSlots, slot)
	}
	return out, nil
}

func overlapsBreak(start, end time.Time, breaks []Break) bool {
	for _, b := range breaks {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	ok, err := Overlaps(start, end, busy)
	if err != nil {
		return false
	}
	return ok
}
