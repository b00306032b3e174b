package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// ProviderEntitlements is the booking-side copy of a provider's plan.
// Rows are written by the entitlements consumer and read inside the
// booking transaction, so limit checks always see committed plan changes.
type ProviderEntitlements struct {
	ProviderID             string
	Tier                   string
	MaxMonthlyAppointments int
	UpdatedAt              time.Time
}

// AppointmentLimit returns the effective monthly cap. A missing or
// non-positive stored cap falls back to the given default.
func (e ProviderEntitlements) AppointmentLimit(fallback int) int {
	if e.MaxMonthlyAppointments > 0 {
		return e.MaxMonthlyAppointments
	}
	return fallback
}

func (r *BookingRepository) UpsertProviderEntitlements(ctx context.Context, tx pgx.Tx, ent ProviderEntitlements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_entitlements (provider_id, tier, max_monthly_appointments)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_monthly_appointments = EXCLUDED.max_monthly_appointments,
		              updated_at = now()
	`, ent.ProviderID, ent.Tier, ent.MaxMonthlyAppointments)
	return err
}

func (r *BookingRepository) GetProviderEntitlements(ctx context.Context, tx pgx.Tx, providerID string) (ProviderEntitlements, bool, error) {
	var ent ProviderEntitlements
	err := tx.QueryRow(ctx, `
		SELECT provider_id::text, tier, max_monthly_appointments, updated_at
		FROM provider_entitlements
		WHERE provider_id = $1
	`, providerID).Scan(&ent.ProviderID, &ent.Tier, &ent.MaxMonthlyAppointments, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return ProviderEntitlements{}, false, nil
		}
		return ProviderEntitlements{}, false, err
	}
	return ent, true, nil
}

// MonthlyUsage counts the appointments that consume quota (pending or
// confirmed) in the UTC calendar month containing at.
func (r *BookingRepository) MonthlyUsage(ctx context.Context, tx pgx.Tx, providerID string, at time.Time) (int, error) {
	atUTC := at.UTC()
	monthStart := time.Date(atUTC.Year(), atUTC.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var cnt int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time >= $2
		  AND start_time < $3
	`, providerID, monthStart, monthEnd).Scan(&cnt)
	return cnt, err
}
