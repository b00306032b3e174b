package model

import "time"

// Appointment statuses. New bookings start pending and a provider confirms
// them. Cancelled, completed and no_show are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

type Appointment struct {
	ID           string
	ProviderID   string
	ServiceID    string
	PatientID    string
	PatientName  string
	PatientEmail string
	PatientPhone string
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	Notes        string
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}

// Occupies reports whether an appointment in this status still blocks its
// time slot.
func Occupies(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	default:
		return false
	}
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}
