package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/digos-health/himsog/services/booking-service/internal/availability"
)

type stubSource struct {
	sched availability.DaySchedule
	err   error
}

func (s *stubSource) DaySchedule(_ context.Context, _, _ string) (availability.DaySchedule, error) {
	return s.sched, s.err
}

func (s *stubSource) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, src *stubSource, now time.Time) *BookingHandler {
	t.Helper()
	h := NewBookingHandler(nil, nil, slog.Default(), src, nil)
	h.now = func() time.Time { return now }
	return h
}

func TestValidateBookable(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, loc) // a Monday
	sched := availability.DaySchedule{
		Location:     loc,
		OpenMinute:   9 * 60,
		CloseMinute:  17 * 60,
		SlotDuration: 30 * time.Minute,
		Breaks: []availability.Break{
			{Name: "Lunch", Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)},
		},
		TimeOff: []availability.Interval{
			{Start: day.Add(15 * time.Hour), End: day.Add(16 * time.Hour)},
		},
	}
	now := day.Add(-24 * time.Hour)
	h := newTestHandler(t, &stubSource{sched: sched}, now)

	cases := []struct {
		name   string
		start  time.Time
		end    time.Time
		wantOK bool
	}{
		{"inside hours", day.Add(10 * time.Hour), day.Add(10*time.Hour + 30*time.Minute), true},
		{"first slot", day.Add(9 * time.Hour), day.Add(9*time.Hour + 30*time.Minute), true},
		{"last slot", day.Add(16*time.Hour + 30*time.Minute), day.Add(17 * time.Hour), true},
		{"before opening", day.Add(8 * time.Hour), day.Add(8*time.Hour + 30*time.Minute), false},
		{"past closing", day.Add(16*time.Hour + 45*time.Minute), day.Add(17*time.Hour + 15*time.Minute), false},
		{"on break", day.Add(12*time.Hour + 30*time.Minute), day.Add(13 * time.Hour), false},
		{"on time off", day.Add(15 * time.Hour), day.Add(15*time.Hour + 30*time.Minute), false},
		{"in the past", now.Add(-time.Hour), now.Add(-30 * time.Minute), false},
	}
	for _, tc := range cases {
		reason, err := h.validateBookable(context.Background(), "prov-1", tc.start, tc.end)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantOK && reason != "" {
			t.Fatalf("%s: expected bookable, got reason %q", tc.name, reason)
		}
		if !tc.wantOK && reason == "" {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestValidateBookable_ClosedDay(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, loc)
	h := newTestHandler(t, &stubSource{sched: availability.DaySchedule{Location: loc, IsClosed: true}}, day.Add(-24*time.Hour))

	reason, err := h.validateBookable(context.Background(), "prov-1", day.Add(10*time.Hour), day.Add(10*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason == "" {
		t.Fatal("expected rejection on closed day")
	}
}

func TestValidateBookable_SourceError(t *testing.T) {
	h := newTestHandler(t, &stubSource{err: context.DeadlineExceeded}, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	if _, err := h.validateBookable(context.Background(), "prov-1", start, start.Add(30*time.Minute)); err == nil {
		t.Fatal("expected dependency error to propagate")
	}
}

func TestSlots_MalformedDate(t *testing.T) {
	h := newTestHandler(t, &stubSource{}, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=01-02-2026", nil)
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestSlots_ScheduleLookupFailure(t *testing.T) {
	h := newTestHandler(t, &stubSource{err: context.DeadlineExceeded}, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=2026-02-02", nil)
	h.Slots(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for schedule lookup failure, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "failed to get available time slots") {
		t.Fatalf("unexpected error body: %q", rec.Body.String())
	}
}

func TestSlots_ClosedDayResponse(t *testing.T) {
	loc := time.UTC
	h := newTestHandler(t, &stubSource{sched: availability.DaySchedule{Location: loc, IsClosed: true}}, time.Date(2026, 2, 1, 0, 0, 0, 0, loc))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=2026-02-02", nil)
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for closed day, got %d: %s", rec.Code, rec.Body.String())
	}
	var day availability.DayAvailability
	if err := json.Unmarshal(rec.Body.Bytes(), &day); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if day.IsOperating {
		t.Fatal("closed day: expected isOperating false")
	}
	if day.TimeSlots == nil || len(day.TimeSlots) != 0 {
		t.Fatalf("closed day: expected empty timeSlots, got %v", day.TimeSlots)
	}
	if day.DayOfWeek != "Monday" {
		t.Fatalf("expected DayOfWeek Monday, got %q", day.DayOfWeek)
	}
}
