package availability

import (
	"errors"
	"testing"
	"time"
)

func TestSlotStarts_FullDay(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(17 * time.Hour)

	starts := SlotStarts(windowStart, windowEnd, 30*time.Minute)
	if len(starts) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(starts))
	}
	if !starts[0].Equal(windowStart) {
		t.Fatalf("expected first slot 09:00, got %s", starts[0].Format(time.RFC3339))
	}
	if !starts[15].Equal(day.Add(16*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 16:30, got %s", starts[15].Format(time.RFC3339))
	}
	// Contiguity: each slot starts exactly where the previous one ends.
	for i := 1; i < len(starts); i++ {
		if !starts[i].Equal(starts[i-1].Add(30 * time.Minute)) {
			t.Fatalf("slot %d not contiguous: %s", i, starts[i].Format(time.RFC3339))
		}
	}
}

func TestSlotStarts_PartialSlotNotEmitted(t *testing.T) {
	loc := time.UTC
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := windowStart.Add(70 * time.Minute)

	starts := SlotStarts(windowStart, windowEnd, 30*time.Minute)
	// 09:00 and 09:30 fit; a slot at 10:00 would run past 10:10.
	if len(starts) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(starts))
	}
}

func TestSlotStarts_DegenerateInputs(t *testing.T) {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	if got := SlotStarts(now, now, 30*time.Minute); len(got) != 0 {
		t.Fatalf("empty window: expected 0 slots, got %d", len(got))
	}
	if got := SlotStarts(now, now.Add(-time.Hour), 30*time.Minute); len(got) != 0 {
		t.Fatalf("inverted window: expected 0 slots, got %d", len(got))
	}
	if got := SlotStarts(now, now.Add(time.Hour), 0); len(got) != 0 {
		t.Fatalf("zero duration: expected 0 slots, got %d", len(got))
	}
	if got := SlotStarts(now, now.Add(time.Hour), -time.Minute); len(got) != 0 {
		t.Fatalf("negative duration: expected 0 slots, got %d", len(got))
	}
}

func TestSlotStarts_Deterministic(t *testing.T) {
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(8 * time.Hour)

	a := SlotStarts(windowStart, windowEnd, 30*time.Minute)
	b := SlotStarts(windowStart, windowEnd, 30*time.Minute)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("slot %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestOverlaps(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
	}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical", day.Add(10 * time.Hour), day.Add(10*time.Hour + 30*time.Minute), true},
		{"contained", day.Add(10*time.Hour + 10*time.Minute), day.Add(10*time.Hour + 20*time.Minute), true},
		{"straddles start", day.Add(9*time.Hour + 45*time.Minute), day.Add(10*time.Hour + 15*time.Minute), true},
		{"straddles end", day.Add(10*time.Hour + 15*time.Minute), day.Add(10*time.Hour + 45*time.Minute), true},
		{"back-to-back before", day.Add(9*time.Hour + 30*time.Minute), day.Add(10 * time.Hour), false},
		{"back-to-back after", day.Add(10*time.Hour + 30*time.Minute), day.Add(11 * time.Hour), false},
		{"disjoint", day.Add(14 * time.Hour), day.Add(15 * time.Hour), false},
	}
	for _, tc := range cases {
		got, err := Overlaps(tc.start, tc.end, busy)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestOverlaps_InvalidInterval(t *testing.T) {
	at := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	if _, err := Overlaps(at, at, nil); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("zero-length interval: expected ErrInvalidInterval, got %v", err)
	}
	if _, err := Overlaps(at, at.Add(-time.Minute), nil); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("inverted interval: expected ErrInvalidInterval, got %v", err)
	}
}

func TestOverlaps_EmptyBusyList(t *testing.T) {
	at := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	got, err := Overlaps(at, at.Add(30*time.Minute), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("expected no overlap against empty busy list")
	}
}
