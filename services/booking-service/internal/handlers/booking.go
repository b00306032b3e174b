package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/digos-health/himsog/libs/events"
	"github.com/digos-health/himsog/services/booking-service/internal/availability"
	"github.com/digos-health/himsog/services/booking-service/internal/model"
	"github.com/digos-health/himsog/services/booking-service/internal/schedule"
	"github.com/digos-health/himsog/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	outboxRepo *events.Outbox
	logger     *slog.Logger
	schedules  schedule.Source
	defaults   []time.Duration
	now        func() time.Time
}

func NewBookingHandler(repo *storage.BookingRepository, outboxRepo *events.Outbox, logger *slog.Logger, schedules schedule.Source, defaultOffsets []time.Duration) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		schedules:  schedules,
		defaults:   defaultOffsets,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type createBookingRequest struct {
	ProviderID   string `json:"provider_id"`
	ServiceID    string `json:"service_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Notes        string `json:"notes"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type cancelBookingRequest struct {
	ProviderID    string `json:"provider_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type statusRequest struct {
	ProviderID    string `json:"provider_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type bulkStatusRequest struct {
	ProviderID string `json:"provider_id"`
	Updates    []struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	} `json:"updates"`
}

type rescheduleRequest struct {
	ProviderID    string `json:"provider_id"`
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type listAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id,omitempty"`
	PatientName   string `json:"patient_name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.PatientName = strings.TrimSpace(req.PatientName)

	if req.ProviderID == "" || req.PatientName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	appt := &model.Appointment{
		ProviderID:   req.ProviderID,
		ServiceID:    req.ServiceID,
		PatientID:    strings.TrimSpace(r.Header.Get("X-User-Id")),
		PatientName:  req.PatientName,
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		StartTime:    startTime,
		EndTime:      endTime,
		Status:       model.StatusPending,
		Notes:        strings.TrimSpace(req.Notes),
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, appt.ProviderID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{AppointmentID: rec.AppointmentID, Status: model.StatusPending})
			return
		}
	}

	// Bookings must land on the provider's schedule: inside operating hours,
	// outside breaks and time off, and in the future. The DB exclusion
	// constraint is the last line of defense against concurrent double books.
	reason, err := h.validateBookable(ctx, appt.ProviderID, startTime, endTime)
	if err != nil {
		// Do not finalize idempotency on dependency errors; allow the client to retry later with the same key.
		http.Error(w, "schedule lookup failed", http.StatusServiceUnavailable)
		return
	}
	if reason != "" {
		if idempotencyKey != "" {
			if h.finalizeIdempotencyError(ctx, tx, appt.ProviderID, idempotencyKey, http.StatusUnprocessableEntity, reason) {
				_ = tx.Commit(ctx)
				return
			}
		}
		http.Error(w, reason, http.StatusUnprocessableEntity)
		return
	}

	// Enforce billing entitlements: cap monthly appointments per provider.
	// If entitlements aren't present yet, default to free tier limits.
	if err := h.enforceMonthlyAppointmentLimit(ctx, tx, appt.ProviderID, appt.StartTime); err != nil {
		if errors.Is(err, errPaymentRequired) {
			if idempotencyKey != "" {
				if h.finalizeIdempotencyError(ctx, tx, appt.ProviderID, idempotencyKey, http.StatusPaymentRequired, err.Error()) {
					_ = tx.Commit(ctx)
					return
				}
			}
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		http.Error(w, "entitlements check failed", http.StatusInternalServerError)
		return
	}

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"provider_id":    appt.ProviderID,
		"service_id":     appt.ServiceID,
		"patient_email":  appt.PatientEmail,
		"patient_phone":  appt.PatientPhone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"status":         appt.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}

	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     "booking.appointment.booked.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	h.enqueueReminders(ctx, tx, id, appt)

	respBody, err := json.Marshal(createBookingResponse{AppointmentID: id, Status: appt.Status})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, appt.ProviderID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

var errPaymentRequired = errors.New("monthly appointment limit reached (upgrade required)")

func (h *BookingHandler) enforceMonthlyAppointmentLimit(ctx context.Context, tx pgx.Tx, providerID string, start time.Time) error {
	const defaultFreeMax = 200

	ent, ok, err := h.repo.GetProviderEntitlements(ctx, tx, providerID)
	if err != nil {
		return err
	}
	max := defaultFreeMax
	if ok {
		max = ent.AppointmentLimit(defaultFreeMax)
	}
	if max <= 0 {
		return nil
	}

	cnt, err := h.repo.MonthlyUsage(ctx, tx, providerID, start)
	if err != nil {
		return err
	}
	if cnt >= max {
		return errPaymentRequired
	}
	return nil
}

// validateBookable checks a requested interval against the provider's
// schedule. It returns a client-facing rejection reason, or "" when the
// interval is bookable. Errors are dependency failures worth retrying.
func (h *BookingHandler) validateBookable(ctx context.Context, providerID string, start, end time.Time) (string, error) {
	if !start.After(h.now()) {
		return "start_time must be in the future", nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// Resolve the provider-local date first so the schedule is built on the
	// right calendar day regardless of the client's timezone offset.
	sched, err := h.schedules.DaySchedule(reqCtx, providerID, start.UTC().Format("2006-01-02"))
	if err != nil {
		return "", err
	}
	loc := sched.Location
	if loc == nil {
		loc = time.UTC
	}
	localDate := start.In(loc).Format("2006-01-02")
	if localDate != start.UTC().Format("2006-01-02") {
		sched, err = h.schedules.DaySchedule(reqCtx, providerID, localDate)
		if err != nil {
			return "", err
		}
	}

	windowStart, windowEnd, operating, err := sched.Window(localDate)
	if err != nil {
		return "invalid start_time", nil
	}
	if !operating {
		return "provider is closed on the requested day", nil
	}
	if start.Before(windowStart) || end.After(windowEnd) {
		return "requested time is outside provider operating hours", nil
	}

	if !end.After(start) {
		return "invalid time range", nil
	}
	for _, b := range sched.Breaks {
		if start.Before(b.End) && b.Start.Before(end) {
			return "requested time falls on a break", nil
		}
	}
	if hit, _ := availability.Overlaps(start, end, sched.TimeOff); hit {
		return "provider is unavailable at the requested time", nil
	}
	return "", nil
}

func (h *BookingHandler) enqueueReminders(ctx context.Context, tx pgx.Tx, appointmentID string, appt *model.Appointment) {
	now := h.now()
	offsets := h.defaults
	if h.schedules != nil {
		if provOffsets, err := h.schedules.ReminderOffsets(ctx, appt.ProviderID); err == nil && len(provOffsets) > 0 {
			offsets = provOffsets
		} else if err != nil {
			h.logger.Warn("reminder offsets fetch failed; using defaults", "err", err)
		}
	}
	for _, offset := range offsets {
		remindAt := appt.StartTime.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		h.enqueueReminder(ctx, tx, appointmentID, appt, remindAt, "email", appt.PatientEmail)
		h.enqueueReminder(ctx, tx, appointmentID, appt, remindAt, "sms", appt.PatientPhone)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProviderID == "" || req.AppointmentID == "" {
		http.Error(w, "provider_id and appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.ProviderID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		h.writeCancelResponse(w, appt.ID, appt.CancelledAt.UTC())
		return
	}
	if !model.CanTransition(appt.Status, model.StatusCancelled) {
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, req.ProviderID, appt.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	cancelPayload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.cancelled.v1",
		Payload:       cancelPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.writeCancelResponse(w, appt.ID, cancelledAt.UTC())
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.ProviderID == "" || req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "provider_id, appointment_id and status required", http.StatusBadRequest)
		return
	}
	if !model.ValidStatus(req.Status) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.applyStatus(ctx, tx, req.ProviderID, req.AppointmentID, req.Status)
	if err != nil {
		h.writeStatusError(w, err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"appointment_id": appt.ID,
		"status":         req.Status,
	})
}

func (h *BookingHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" || len(req.Updates) == 0 {
		http.Error(w, "provider_id and updates required", http.StatusBadRequest)
		return
	}
	if len(req.Updates) > 100 {
		http.Error(w, "too many updates (max 100)", http.StatusBadRequest)
		return
	}
	for _, u := range req.Updates {
		if strings.TrimSpace(u.AppointmentID) == "" || !model.ValidStatus(strings.ToLower(strings.TrimSpace(u.Status))) {
			http.Error(w, "each update needs appointment_id and a known status", http.StatusBadRequest)
			return
		}
	}

	// All-or-nothing: one failed transition rolls back the whole batch.
	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := make([]map[string]string, 0, len(req.Updates))
	for _, u := range req.Updates {
		status := strings.ToLower(strings.TrimSpace(u.Status))
		appt, err := h.applyStatus(ctx, tx, req.ProviderID, strings.TrimSpace(u.AppointmentID), status)
		if err != nil {
			h.writeStatusError(w, err)
			return
		}
		results = append(results, map[string]string{
			"appointment_id": appt.ID,
			"status":         status,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"updated": results})
}

var (
	errStatusNotFound   = errors.New("appointment not found")
	errStatusTransition = errors.New("status transition not allowed")
)

func (h *BookingHandler) applyStatus(ctx context.Context, tx pgx.Tx, providerID, appointmentID, status string) (model.Appointment, error) {
	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, providerID, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, errStatusNotFound
		}
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, status) {
		return model.Appointment{}, errStatusTransition
	}

	if status == model.StatusCancelled {
		if _, err := h.repo.CancelAppointment(ctx, tx, providerID, appt.ID, ""); err != nil {
			return model.Appointment{}, err
		}
	} else if err := h.repo.UpdateStatus(ctx, tx, providerID, appt.ID, status); err != nil {
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"from_status":    appt.Status,
		"to_status":      status,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.status_changed.v1",
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (h *BookingHandler) writeStatusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errStatusNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errStatusTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "failed to update status", http.StatusInternalServerError)
	}
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ProviderID == "" || req.AppointmentID == "" {
		http.Error(w, "provider_id and appointment_id required", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.ProviderID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if !model.Occupies(appt.Status) {
		http.Error(w, "only pending or confirmed appointments can be rescheduled", http.StatusConflict)
		return
	}

	reason, err := h.validateBookable(ctx, req.ProviderID, startTime, endTime)
	if err != nil {
		http.Error(w, "schedule lookup failed", http.StatusServiceUnavailable)
		return
	}
	if reason != "" {
		http.Error(w, reason, http.StatusUnprocessableEntity)
		return
	}

	if err := h.repo.Reschedule(ctx, tx, req.ProviderID, appt.ID, startTime, endTime); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to reschedule appointment", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"old_start_time": appt.StartTime.UTC().Format(time.RFC3339),
		"old_end_time":   appt.EndTime.UTC().Format(time.RFC3339),
		"start_time":     startTime.UTC().Format(time.RFC3339),
		"end_time":       endTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.rescheduled.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	// Reminders are keyed on remind_at in the scheduler, so re-enqueue against
	// the new start time. Jobs for the old time become no-ops downstream.
	moved := appt
	moved.StartTime = startTime
	moved.EndTime = endTime
	h.enqueueReminders(ctx, tx, appt.ID, &moved)

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"appointment_id": appt.ID,
		"start_time":     startTime.UTC().Format(time.RFC3339),
		"end_time":       endTime.UTC().Format(time.RFC3339),
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var appts []model.Appointment
	var err error
	providerID := strings.TrimSpace(r.Header.Get("X-Provider-Id"))
	if providerID != "" {
		status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
		if status != "" && !model.ValidStatus(status) {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		appts, err = h.repo.ListByProvider(r.Context(), providerID, status, limit)
	} else {
		patientID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if patientID == "" {
			http.Error(w, "missing identity headers", http.StatusBadRequest)
			return
		}
		appts, err = h.repo.ListByPatient(r.Context(), patientID, limit)
	}
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID: appt.ID,
			ProviderID:    appt.ProviderID,
			ServiceID:     appt.ServiceID,
			PatientName:   appt.PatientName,
			StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
			EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
			Status:        appt.Status,
			Notes:         appt.Notes,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	reqCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sched, err := h.schedules.DaySchedule(reqCtx, providerID, dateStr)
	if err != nil {
		http.Error(w, "failed to get available time slots", http.StatusInternalServerError)
		return
	}

	windowStart, windowEnd, operating, err := sched.Window(dateStr)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	var booked []availability.Interval
	if operating {
		appts, err := h.repo.ListBookedIntervals(reqCtx, providerID, windowStart, windowEnd)
		if err != nil {
			http.Error(w, "failed to get available time slots", http.StatusInternalServerError)
			return
		}
		for _, a := range appts {
			booked = append(booked, availability.Interval{Start: a.StartTime, End: a.EndTime})
		}
	}

	day, err := availability.BuildDay(sched, dateStr, booked, h.now())
	if err != nil {
		http.Error(w, "failed to get available time slots", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(day)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) enqueueReminder(ctx context.Context, tx pgx.Tx, appointmentID string, appt *model.Appointment, remindAt time.Time, channel string, recipient string) {
	if strings.TrimSpace(recipient) == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"provider_id":    appt.ProviderID,
		"channel":        channel,
		"recipient":      recipient,
		"remind_at":      remindAt.UTC().Format(time.RFC3339),
		"template_data": map[string]any{
			"patient_name": appt.PatientName,
			"service_id":   appt.ServiceID,
			"start_time":   appt.StartTime.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		h.logger.Error("failed to build reminder payload", "err", err)
		return
	}
	if err := h.outboxRepo.Stage(ctx, tx, events.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     "booking.reminder.requested.v1",
		Payload:       payload,
	}); err != nil {
		h.logger.Error("failed to enqueue reminder", "err", err)
	}
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, appointmentID string, cancelledAt time.Time) {
	resp := cancelBookingResponse{
		AppointmentID: appointmentID,
		Status:        model.StatusCancelled,
		CancelledAt:   cancelledAt.Format(time.RFC3339),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, providerID, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, providerID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}
