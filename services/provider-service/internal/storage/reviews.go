package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type Review struct {
	ID            string
	ProviderID    string
	PatientID     string
	AppointmentID string
	PatientName   string
	Rating        int
	Comment       string
	CreatedAt     time.Time
}

// ErrDuplicateReview is returned when an appointment already has a review.
var ErrDuplicateReview = errors.New("review already exists for appointment")

func (r *Repository) CreateReview(ctx context.Context, rev Review) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_reviews (id, provider_id, patient_id, appointment_id, patient_name, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, rev.ProviderID, rev.PatientID, rev.AppointmentID, rev.PatientName, rev.Rating, rev.Comment)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicateReview
		}
		return "", err
	}
	return id, nil
}

func (r *Repository) ListReviews(ctx context.Context, providerID string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, COALESCE(patient_id::text, ''), patient_name, rating, COALESCE(comment, ''), created_at
		FROM provider_reviews
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rev Review
		if err := rows.Scan(&rev.ID, &rev.ProviderID, &rev.PatientID, &rev.PatientName, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) AverageRating(ctx context.Context, providerID string) (float64, int, error) {
	var avg float64
	var cnt int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*)
		FROM provider_reviews
		WHERE provider_id = $1
	`, providerID).Scan(&avg, &cnt)
	return avg, cnt, err
}
