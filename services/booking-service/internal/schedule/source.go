package schedule

import (
	"context"
	"time"

	"github.com/digos-health/himsog/services/booking-service/internal/availability"
)

// Source resolves a provider's schedule configuration for a single
// provider-local calendar day (date is "YYYY-MM-DD"). A weekday with no
// configured hours resolves to a closed schedule.
type Source interface {
	DaySchedule(ctx context.Context, providerID, date string) (availability.DaySchedule, error)
	ReminderOffsets(ctx context.Context, providerID string) ([]time.Duration, error)
}
