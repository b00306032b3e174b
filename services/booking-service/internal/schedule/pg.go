package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/digos-health/himsog/services/booking-service/internal/availability"
	"github.com/jackc/pgx/v5"
)

// PGSource reads provider schedule tables from the shared Postgres. It is
// the default source; a gRPC source against provider-service can replace it
// when generated stubs are built in.
type PGSource struct {
	pool            *db.Pool
	defaultTimezone string
	defaultOffsets  []time.Duration
}

func NewPGSource(pool *db.Pool, defaultTimezone string, defaultOffsets []time.Duration) *PGSource {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &PGSource{pool: pool, defaultTimezone: defaultTimezone, defaultOffsets: defaultOffsets}
}

func (s *PGSource) DaySchedule(ctx context.Context, providerID, date string) (availability.DaySchedule, error) {
	tz := s.defaultTimezone
	slotMins := 0
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(timezone, ''), $2), COALESCE(slot_duration_minutes, 0)
		FROM provider_profiles
		WHERE provider_id = $1
	`, providerID, s.defaultTimezone).Scan(&tz, &slotMins)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return availability.DaySchedule{}, fmt.Errorf("load provider profile: %w", err)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, err = time.LoadLocation(s.defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return availability.DaySchedule{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	weekday := int(day.Weekday())

	sched := availability.DaySchedule{
		Location:     loc,
		SlotDuration: time.Duration(slotMins) * time.Minute,
	}

	var openMin, closeMin int
	err = s.pool.QueryRow(ctx, `
		SELECT is_closed, open_minute, close_minute
		FROM provider_operating_hours
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, weekday).Scan(&sched.IsClosed, &openMin, &closeMin)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return availability.DaySchedule{}, fmt.Errorf("load operating hours: %w", err)
		}
		// No configured hours for this weekday means the provider is not
		// operating that day.
		sched.IsClosed = true
	}
	sched.OpenMinute = openMin
	sched.CloseMinute = closeMin
	if sched.IsClosed {
		return sched, nil
	}

	breaks, err := s.loadBreaks(ctx, providerID, weekday, day)
	if err != nil {
		return availability.DaySchedule{}, err
	}
	sched.Breaks = breaks

	dayEnd := day.AddDate(0, 0, 1)
	timeOff, err := s.loadTimeOff(ctx, providerID, day, dayEnd)
	if err != nil {
		return availability.DaySchedule{}, err
	}
	sched.TimeOff = timeOff

	return sched, nil
}

func (s *PGSource) loadBreaks(ctx context.Context, providerID string, weekday int, day time.Time) ([]availability.Break, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, start_minute, end_minute
		FROM provider_break_times
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_minute
	`, providerID, weekday)
	if err != nil {
		return nil, fmt.Errorf("load break times: %w", err)
	}
	defer rows.Close()

	var out []availability.Break
	for rows.Next() {
		var name string
		var startMin, endMin int
		if err := rows.Scan(&name, &startMin, &endMin); err != nil {
			return nil, err
		}
		if endMin <= startMin {
			continue
		}
		out = append(out, availability.Break{
			Name:  name,
			Start: day.Add(time.Duration(startMin) * time.Minute),
			End:   day.Add(time.Duration(endMin) * time.Minute),
		})
	}
	return out, rows.Err()
}

func (s *PGSource) loadTimeOff(ctx context.Context, providerID string, dayStart, dayEnd time.Time) ([]availability.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM provider_time_off
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		out = append(out, availability.Interval{Start: start, End: end})
	}
	return out, rows.Err()
}

func (s *PGSource) ReminderOffsets(ctx context.Context, providerID string) ([]time.Duration, error) {
	var mins []int32
	err := s.pool.QueryRow(ctx, `
		SELECT reminder_offsets_minutes
		FROM provider_profiles
		WHERE provider_id = $1
	`, providerID).Scan(&mins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaultOffsets, nil
		}
		return nil, err
	}
	if len(mins) == 0 {
		return s.defaultOffsets, nil
	}
	out := make([]time.Duration, 0, len(mins))
	for _, m := range mins {
		if m > 0 {
			out = append(out, time.Duration(m)*time.Minute)
		}
	}
	if len(out) == 0 {
		return s.defaultOffsets, nil
	}
	return out, nil
}
