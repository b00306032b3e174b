package storage

import (
	"context"
	"time"

	"github.com/digos-health/himsog/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Verification statuses for provider profiles. Only verified providers are
// listed publicly.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

type ProviderProfile struct {
	ProviderID   string
	ClinicName   string
	Specialty    string
	Timezone     string
	SlotMins     int
	OffsetsMins  []int32
	Verification string
}

func (r *Repository) GetOrCreateProfile(ctx context.Context, providerID string) (ProviderProfile, error) {
	// Create a default profile if missing (keeps dev UX smooth while other services mature).
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_profiles (provider_id)
		VALUES ($1)
		ON CONFLICT (provider_id) DO NOTHING
	`, providerID)
	if err != nil {
		return ProviderProfile{}, err
	}
	return r.GetProfile(ctx, providerID)
}

func (r *Repository) GetProfile(ctx context.Context, providerID string) (ProviderProfile, error) {
	var p ProviderProfile
	err := r.pool.QueryRow(ctx, `
		SELECT provider_id::text, clinic_name, COALESCE(specialty, ''), timezone,
			slot_duration_minutes, reminder_offsets_minutes, verification_status
		FROM provider_profiles
		WHERE provider_id = $1
	`, providerID).Scan(&p.ProviderID, &p.ClinicName, &p.Specialty, &p.Timezone, &p.SlotMins, &p.OffsetsMins, &p.Verification)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, p ProviderProfile) error {
	if len(p.OffsetsMins) == 0 {
		p.OffsetsMins = []int32{1440, 60}
	}
	if p.SlotMins <= 0 {
		p.SlotMins = 30
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_profiles (provider_id, clinic_name, specialty, timezone, slot_duration_minutes, reminder_offsets_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id) DO UPDATE
		SET clinic_name = EXCLUDED.clinic_name,
			specialty = EXCLUDED.specialty,
			timezone = EXCLUDED.timezone,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			reminder_offsets_minutes = EXCLUDED.reminder_offsets_minutes,
			updated_at = now()
	`, p.ProviderID, p.ClinicName, p.Specialty, p.Timezone, p.SlotMins, p.OffsetsMins)
	return err
}

func (r *Repository) SetVerification(ctx context.Context, tx pgx.Tx, providerID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE provider_profiles
		SET verification_status = $2, updated_at = now()
		WHERE provider_id = $1
	`, providerID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListProviders returns publicly listable providers. verifiedOnly is the
// public-directory path; admins pass false to see everything.
func (r *Repository) ListProviders(ctx context.Context, verifiedOnly bool, limit int) ([]ProviderProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id::text, clinic_name, COALESCE(specialty, ''), timezone,
			slot_duration_minutes, reminder_offsets_minutes, verification_status
		FROM provider_profiles
		WHERE ($1 = false OR verification_status = 'verified')
		ORDER BY clinic_name ASC
		LIMIT $2
	`, verifiedOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderProfile
	for rows.Next() {
		var p ProviderProfile
		if err := rows.Scan(&p.ProviderID, &p.ClinicName, &p.Specialty, &p.Timezone, &p.SlotMins, &p.OffsetsMins, &p.Verification); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type ProviderService struct {
	ID           string
	ProviderID   string
	Name         string
	DurationMins int
	Price        string
	Description  string
	CreatedAt    time.Time
}

func (r *Repository) CreateService(ctx context.Context, providerID, name string, durationMinutes int, price string, description string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_services (id, provider_id, name, duration_minutes, price, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, providerID, name, durationMinutes, price, description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, providerID string, limit int) ([]ProviderService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, name, duration_minutes, price::text, description, created_at
		FROM provider_services
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderService
	for rows.Next() {
		var s ProviderService
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMins, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetServiceDuration(ctx context.Context, providerID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM provider_services
		WHERE provider_id = $1 AND id = $2
	`, providerID, serviceID).Scan(&mins)
	return mins, err
}

type OperatingHour struct {
	ProviderID  string
	Weekday     int
	IsClosed    bool
	OpenMinute  int
	CloseMinute int
}

func (r *Repository) GetOperatingHour(ctx context.Context, providerID string, weekday int) (OperatingHour, error) {
	var oh OperatingHour
	err := r.pool.QueryRow(ctx, `
		SELECT provider_id::text, weekday, is_closed, open_minute, close_minute
		FROM provider_operating_hours
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, weekday).Scan(&oh.ProviderID, &oh.Weekday, &oh.IsClosed, &oh.OpenMinute, &oh.CloseMinute)
	if err == nil {
		return oh, nil
	}
	if err == pgx.ErrNoRows {
		// Default schedule if never configured: Mon-Fri 09:00-17:00, weekends closed.
		closed := weekday == 0 || weekday == 6
		oh = OperatingHour{ProviderID: providerID, Weekday: weekday, IsClosed: closed}
		if !closed {
			oh.OpenMinute = 540
			oh.CloseMinute = 1020
		}
		return oh, nil
	}
	return OperatingHour{}, err
}

func (r *Repository) ListOperatingHours(ctx context.Context, providerID string) ([]OperatingHour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id::text, weekday, is_closed, open_minute, close_minute
		FROM provider_operating_hours
		WHERE provider_id = $1
		ORDER BY weekday ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperatingHour
	for rows.Next() {
		var oh OperatingHour
		if err := rows.Scan(&oh.ProviderID, &oh.Weekday, &oh.IsClosed, &oh.OpenMinute, &oh.CloseMinute); err != nil {
			return nil, err
		}
		out = append(out, oh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpsertOperatingHour(ctx context.Context, oh OperatingHour) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_operating_hours (provider_id, weekday, is_closed, open_minute, close_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET is_closed = EXCLUDED.is_closed,
			open_minute = EXCLUDED.open_minute,
			close_minute = EXCLUDED.close_minute
	`, oh.ProviderID, oh.Weekday, oh.IsClosed, oh.OpenMinute, oh.CloseMinute)
	return err
}

type BreakTime struct {
	ID          string
	ProviderID  string
	Weekday     int
	Name        string
	StartMinute int
	EndMinute   int
}

func (r *Repository) CreateBreak(ctx context.Context, b BreakTime) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_break_times (id, provider_id, weekday, name, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, b.ProviderID, b.Weekday, b.Name, b.StartMinute, b.EndMinute)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListBreaks(ctx context.Context, providerID string) ([]BreakTime, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, weekday, name, start_minute, end_minute
		FROM provider_break_times
		WHERE provider_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BreakTime
	for rows.Next() {
		var b BreakTime
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Weekday, &b.Name, &b.StartMinute, &b.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ListBreaksForWeekday(ctx context.Context, providerID string, weekday int) ([]BreakTime, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, weekday, name, start_minute, end_minute
		FROM provider_break_times
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_minute ASC
	`, providerID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BreakTime
	for rows.Next() {
		var b BreakTime
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Weekday, &b.Name, &b.StartMinute, &b.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteBreak(ctx context.Context, providerID, breakID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM provider_break_times
		WHERE provider_id = $1 AND id = $2
	`, providerID, breakID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type TimeOff struct {
	ID         string
	ProviderID string
	StartTime  time.Time
	EndTime    time.Time
	Reason     string
	CreatedAt  time.Time
}

func (r *Repository) CreateTimeOff(ctx context.Context, providerID string, startTime, endTime time.Time, reason string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_time_off (id, provider_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, providerID, startTime, endTime, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, providerID string, from, to time.Time, limit int) ([]TimeOff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, start_time, end_time, reason, created_at
		FROM provider_time_off
		WHERE provider_id = $1
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
		LIMIT $4
	`, providerID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.ProviderID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, providerID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM provider_time_off
		WHERE provider_id = $1 AND id = $2
	`, providerID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
