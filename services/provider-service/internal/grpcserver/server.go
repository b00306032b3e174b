//go:build protogen

package grpcserver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/config"
	"github.com/digos-health/himsog/libs/db"
	providerv1 "github.com/digos-health/himsog/protos/gen/provider/v1"
	"github.com/digos-health/himsog/services/provider-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type server struct {
	providerv1.UnimplementedProviderServiceServer
	pool *db.Pool
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, pool *db.Pool, repo *storage.Repository) {
	providerv1.RegisterProviderServiceServer(grpcServer, &server{pool: pool, repo: repo})
}

func (s *server) GetProviderProfile(ctx context.Context, req *providerv1.ProviderProfileRequest) (*providerv1.ProviderProfileResponse, error) {
	offsets := parseOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"))
	timezone := config.String("TIMEZONE", "Asia/Manila")
	clinicName := ""

	if s.repo != nil && req.GetProviderId() != "" {
		p, err := s.repo.GetOrCreateProfile(ctx, req.GetProviderId())
		if err == nil {
			if strings.TrimSpace(p.Timezone) != "" {
				timezone = strings.TrimSpace(p.Timezone)
			}
			clinicName = strings.TrimSpace(p.ClinicName)
			if len(p.OffsetsMins) > 0 {
				offsets = nil
				for _, v := range p.OffsetsMins {
					if v <= 0 {
						continue
					}
					offsets = append(offsets, v)
				}
				if len(offsets) == 0 {
					offsets = parseOffsets("1440,60")
				}
			}
		}
	}

	return &providerv1.ProviderProfileResponse{
		ProviderId:             req.GetProviderId(),
		ClinicName:             clinicName,
		Timezone:               timezone,
		ReminderOffsetsMinutes: offsets,
	}, nil
}

func (s *server) GetDayScheduleConfig(ctx context.Context, req *providerv1.DayScheduleRequest) (*providerv1.DayScheduleResponse, error) {
	resp := &providerv1.DayScheduleResponse{
		ProviderId:          req.GetProviderId(),
		Timezone:            config.String("TIMEZONE", "Asia/Manila"),
		IsClosed:            true,
		SlotDurationMinutes: 30,
	}
	if s.repo == nil || req.GetProviderId() == "" || req.GetDate() == "" {
		return resp, nil
	}

	profile, err := s.repo.GetOrCreateProfile(ctx, req.GetProviderId())
	if err == nil {
		if strings.TrimSpace(profile.Timezone) != "" {
			resp.Timezone = strings.TrimSpace(profile.Timezone)
		}
		if profile.SlotMins > 0 {
			resp.SlotDurationMinutes = int32(profile.SlotMins)
		}
	}

	loc, err := time.LoadLocation(resp.Timezone)
	if err != nil {
		loc = time.UTC
		resp.Timezone = "UTC"
	}
	dayLocal, err := time.ParseInLocation("2006-01-02", req.GetDate(), loc)
	if err != nil {
		return resp, nil
	}

	weekday := int(dayLocal.Weekday())
	oh, err := s.repo.GetOperatingHour(ctx, req.GetProviderId(), weekday)
	if err != nil {
		return resp, nil
	}
	resp.IsClosed = oh.IsClosed
	if oh.IsClosed || oh.CloseMinute <= oh.OpenMinute {
		resp.IsClosed = true
		return resp, nil
	}
	resp.OpenMinute = int32(oh.OpenMinute)
	resp.CloseMinute = int32(oh.CloseMinute)

	breaks, err := s.repo.ListBreaksForWeekday(ctx, req.GetProviderId(), weekday)
	if err == nil {
		for _, b := range breaks {
			if b.EndMinute <= b.StartMinute {
				continue
			}
			resp.Breaks = append(resp.Breaks, &providerv1.BreakWindow{
				Name:        b.Name,
				StartMinute: int32(b.StartMinute),
				EndMinute:   int32(b.EndMinute),
			})
		}
	}

	dayStart := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)
	blocks, err := s.repo.ListTimeOff(ctx, req.GetProviderId(), dayStart.UTC(), dayEnd.UTC(), 200)
	if err == nil {
		for _, t := range blocks {
			if !t.EndTime.After(t.StartTime) {
				continue
			}
			resp.TimeOff = append(resp.TimeOff, &providerv1.TimeOffWindow{
				StartTime: timestamppb.New(t.StartTime.UTC()),
				EndTime:   timestamppb.New(t.EndTime.UTC()),
			})
		}
	}

	return resp, nil
}

func parseOffsets(raw string) []int32 {
	var out []int32
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			continue
		}
		out = append(out, int32(mins))
	}
	if len(out) == 0 {
		out = []int32{1440}
	}
	return out
}
