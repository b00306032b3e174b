package availability

import (
	"encoding/json"
	"testing"
	"time"
)

func manilaSchedule(t *testing.T) (DaySchedule, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return DaySchedule{
		Location:     loc,
		OpenMinute:   9 * 60,
		CloseMinute:  17 * 60,
		SlotDuration: 30 * time.Minute,
	}, loc
}

func slotByTime(t *testing.T, day DayAvailability, hhmm string) Slot {
	t.Helper()
	for _, s := range day.TimeSlots {
		if s.Time == hhmm {
			return s
		}
	}
	t.Fatalf("no slot at %s", hhmm)
	return Slot{}
}

func TestBuildDay_OpenDay(t *testing.T) {
	sched, loc := manilaSchedule(t)
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, loc) // the day before

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	if len(day.TimeSlots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(day.TimeSlots))
	}
	if day.TimeSlots[0].Time != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", day.TimeSlots[0].Time)
	}
	if day.TimeSlots[15].Time != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", day.TimeSlots[15].Time)
	}
	for _, s := range day.TimeSlots {
		if !s.Available {
			t.Fatalf("slot %s should be available, reason %q", s.Time, s.Reason)
		}
	}
}

func TestBuildDay_ClosedDay(t *testing.T) {
	sched, loc := manilaSchedule(t)
	sched.IsClosed = true
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, loc)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	if len(day.TimeSlots) != 0 {
		t.Fatalf("closed day: expected 0 slots, got %d", len(day.TimeSlots))
	}
	if day.IsOperating {
		t.Fatal("closed day: expected IsOperating false")
	}
	if day.OperatingHours != nil {
		t.Fatalf("closed day: expected no operating hours, got %+v", day.OperatingHours)
	}
}

func TestBuildDay_BreakMasksSlots(t *testing.T) {
	sched, loc := manilaSchedule(t)
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	sched.Breaks = []Break{
		{Name: "Lunch", Start: dayStart.Add(12 * time.Hour), End: dayStart.Add(13 * time.Hour)},
	}
	now := dayStart.Add(-12 * time.Hour)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}

	masked := 0
	for _, s := range day.TimeSlots {
		if s.Reason == ReasonBreak {
			masked++
		}
	}
	if masked != 2 {
		t.Fatalf("expected 2 slots masked by break, got %d", masked)
	}
	for _, hhmm := range []string{"12:00", "12:30"} {
		s := slotByTime(t, day, hhmm)
		if s.Available || s.Reason != ReasonBreak {
			t.Fatalf("slot %s: expected break, got available=%v reason=%q", hhmm, s.Available, s.Reason)
		}
	}
	if s := slotByTime(t, day, "13:00"); !s.Available {
		t.Fatalf("slot 13:00 should be available after the break, reason %q", s.Reason)
	}
}

func TestBuildDay_AppointmentMasksExactSlot(t *testing.T) {
	sched, loc := manilaSchedule(t)
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	booked := []Interval{
		{Start: dayStart.Add(10 * time.Hour), End: dayStart.Add(10*time.Hour + 30*time.Minute)},
	}
	now := dayStart.Add(-12 * time.Hour)

	day, err := BuildDay(sched, "2026-01-28", booked, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}

	s := slotByTime(t, day, "10:00")
	if s.Available || s.Reason != ReasonBooked {
		t.Fatalf("slot 10:00: expected booked, got available=%v reason=%q", s.Available, s.Reason)
	}
	// The booking occupies exactly one slot.
	for _, hhmm := range []string{"09:30", "10:30"} {
		if s := slotByTime(t, day, hhmm); !s.Available {
			t.Fatalf("slot %s should be available, reason %q", hhmm, s.Reason)
		}
	}
}

func TestBuildDay_PastSlotsMasked(t *testing.T) {
	sched, loc := manilaSchedule(t)
	// Midway through the day: 11:00 local.
	now := time.Date(2026, 1, 28, 11, 0, 0, 0, loc)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}

	// Slots at 09:00..11:00 have start <= now. Strictly-after rule makes the
	// 11:00 slot itself unavailable.
	for _, hhmm := range []string{"09:00", "10:30", "11:00"} {
		s := slotByTime(t, day, hhmm)
		if s.Available || s.Reason != ReasonPast {
			t.Fatalf("slot %s: expected past, got available=%v reason=%q", hhmm, s.Available, s.Reason)
		}
	}
	if s := slotByTime(t, day, "11:30"); !s.Available {
		t.Fatalf("slot 11:30 should be available, reason %q", s.Reason)
	}
}

func TestBuildDay_ReasonPriority(t *testing.T) {
	sched, loc := manilaSchedule(t)
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	sched.Breaks = []Break{
		{Name: "Lunch", Start: dayStart.Add(12 * time.Hour), End: dayStart.Add(13 * time.Hour)},
	}
	booked := []Interval{
		{Start: dayStart.Add(12 * time.Hour), End: dayStart.Add(12*time.Hour + 30*time.Minute)},
		{Start: dayStart.Add(9 * time.Hour), End: dayStart.Add(9*time.Hour + 30*time.Minute)},
	}
	// Late in the day: everything before 16:00 is also in the past.
	now := dayStart.Add(16 * time.Hour)

	day, err := BuildDay(sched, "2026-01-28", booked, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}

	// Break beats booked beats past.
	if s := slotByTime(t, day, "12:00"); s.Reason != ReasonBreak {
		t.Fatalf("slot 12:00: expected %q, got %q", ReasonBreak, s.Reason)
	}
	if s := slotByTime(t, day, "09:00"); s.Reason != ReasonBooked {
		t.Fatalf("slot 09:00: expected %q, got %q", ReasonBooked, s.Reason)
	}
	if s := slotByTime(t, day, "10:00"); s.Reason != ReasonPast {
		t.Fatalf("slot 10:00: expected %q, got %q", ReasonPast, s.Reason)
	}
}

func TestBuildDay_TimeOffMasksSlots(t *testing.T) {
	sched, loc := manilaSchedule(t)
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	sched.TimeOff = []Interval{
		{Start: dayStart.Add(14 * time.Hour), End: dayStart.Add(15 * time.Hour)},
	}
	now := dayStart.Add(-12 * time.Hour)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	for _, hhmm := range []string{"14:00", "14:30"} {
		s := slotByTime(t, day, hhmm)
		if s.Available || s.Reason != ReasonTimeOff {
			t.Fatalf("slot %s: expected time off, got available=%v reason=%q", hhmm, s.Available, s.Reason)
		}
	}
}

func TestBuildDay_DefaultDuration(t *testing.T) {
	sched, loc := manilaSchedule(t)
	sched.SlotDuration = 0
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, loc)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	if len(day.TimeSlots) != 16 {
		t.Fatalf("expected 16 slots with default 30m duration, got %d", len(day.TimeSlots))
	}
}

func TestBuildDay_InvalidDate(t *testing.T) {
	sched, _ := manilaSchedule(t)
	if _, err := BuildDay(sched, "28-01-2026", nil, time.Now()); err == nil {
		t.Fatal("expected error for malformed date")
	}
	if _, err := BuildDay(sched, "2026-13-40", nil, time.Now()); err == nil {
		t.Fatal("expected error for out-of-range date")
	}
}

func TestBuildDay_TimezoneLocalMidnight(t *testing.T) {
	sched, loc := manilaSchedule(t)
	// 2026-01-28 00:30 in Manila is still 2026-01-27 in UTC. The Manila day
	// must be built on Manila midnight, so a viewer at that instant sees the
	// whole day as future.
	now := time.Date(2026, 1, 28, 0, 30, 0, 0, loc)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	for _, s := range day.TimeSlots {
		if !s.Available {
			t.Fatalf("slot %s should be available, reason %q", s.Time, s.Reason)
		}
	}
}

func TestBuildDay_ResponseShape(t *testing.T) {
	sched, loc := manilaSchedule(t)
	sched.IsClosed = true
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, loc)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	body, err := json.Marshal(day)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"date", "dayOfWeek", "isOperating", "timeSlots", "breakTimes"} {
		if _, found := m[key]; !found {
			t.Fatalf("closed-day response missing %q key: %s", key, body)
		}
	}
	if m["isOperating"] != false {
		t.Fatalf("closed day: expected isOperating false, got %v", m["isOperating"])
	}
	if slots, ok := m["timeSlots"].([]any); !ok || len(slots) != 0 {
		t.Fatalf("closed day: expected empty timeSlots array, got %v", m["timeSlots"])
	}
}

func TestBuildDay_OperatingMetadata(t *testing.T) {
	sched, loc := manilaSchedule(t)
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	sched.Breaks = []Break{
		{Name: "Lunch", Start: dayStart.Add(12 * time.Hour), End: dayStart.Add(13 * time.Hour)},
	}
	now := dayStart.Add(-12 * time.Hour)

	day, err := BuildDay(sched, "2026-01-28", nil, now)
	if err != nil {
		t.Fatalf("build day: %v", err)
	}
	if day.DayOfWeek != "Wednesday" {
		t.Fatalf("expected DayOfWeek Wednesday, got %q", day.DayOfWeek)
	}
	if !day.IsOperating {
		t.Fatal("expected IsOperating true")
	}
	if day.OperatingHours == nil || day.OperatingHours.Start != "09:00" || day.OperatingHours.End != "17:00" {
		t.Fatalf("unexpected operating hours: %+v", day.OperatingHours)
	}
	if len(day.BreakTimes) != 1 || day.BreakTimes[0].Name != "Lunch" ||
		day.BreakTimes[0].Start != "12:00" || day.BreakTimes[0].End != "13:00" {
		t.Fatalf("unexpected break times: %+v", day.BreakTimes)
	}
}
