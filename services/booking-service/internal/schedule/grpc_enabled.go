//go:build protogen

package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/digos-health/himsog/libs/grpcx"
	providerv1 "github.com/digos-health/himsog/protos/gen/provider/v1"
	"github.com/digos-health/himsog/services/booking-service/internal/availability"
)

type grpcSource struct {
	client providerv1.ProviderServiceClient
}

// NewGRPCSource dials provider-service and resolves schedules over gRPC.
func NewGRPCSource(addr string) (Source, error) {
	if addr == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcSource{client: providerv1.NewProviderServiceClient(conn)}, nil
}

func (s *grpcSource) DaySchedule(ctx context.Context, providerID, date string) (availability.DaySchedule, error) {
	resp, err := s.client.GetDayScheduleConfig(ctx, &providerv1.DayScheduleRequest{
		ProviderId: providerID,
		Date:       date,
	})
	if err != nil {
		return availability.DaySchedule{}, err
	}

	loc, err := time.LoadLocation(resp.GetTimezone())
	if err != nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return availability.DaySchedule{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	sched := availability.DaySchedule{
		Location:     loc,
		IsClosed:     resp.GetIsClosed(),
		OpenMinute:   int(resp.GetOpenMinute()),
		CloseMinute:  int(resp.GetCloseMinute()),
		SlotDuration: time.Duration(resp.GetSlotDurationMinutes()) * time.Minute,
	}
	for _, b := range resp.GetBreaks() {
		if b.GetEndMinute() <= b.GetStartMinute() {
			continue
		}
		sched.Breaks = append(sched.Breaks, availability.Break{
			Name:  b.GetName(),
			Start: day.Add(time.Duration(b.GetStartMinute()) * time.Minute),
			End:   day.Add(time.Duration(b.GetEndMinute()) * time.Minute),
		})
	}
	for _, r := range resp.GetTimeOff() {
		start := r.GetStartTime().AsTime()
		end := r.GetEndTime().AsTime()
		if !end.After(start) {
			continue
		}
		sched.TimeOff = append(sched.TimeOff, availability.Interval{Start: start, End: end})
	}
	return sched, nil
}

func (s *grpcSource) ReminderOffsets(ctx context.Context, providerID string) ([]time.Duration, error) {
	resp, err := s.client.GetProviderProfile(ctx, &providerv1.ProviderProfileRequest{ProviderId: providerID})
	if err != nil {
		return nil, err
	}
	var out []time.Duration
	for _, m := range resp.GetReminderOffsetsMinutes() {
		if m > 0 {
			out = append(out, time.Duration(m)*time.Minute)
		}
	}
	return out, nil
}
