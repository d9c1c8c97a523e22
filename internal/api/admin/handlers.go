// internal/api/admin/handlers.go
package admin

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/api/apiutil"
	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/booking/policy"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/schedule"
	sessionsvc "github.com/belayhq/belay/internal/sessions"
)

var (
	manager  *sessionsvc.Manager
	bookings *booking.Service
	queries  *store.Queries
	policies *policy.Provider
	initOnce sync.Once
)

const queryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(m *sessionsvc.Manager, svc *booking.Service, q *store.Queries, p *policy.Provider) {
	if m == nil || svc == nil || q == nil || p == nil {
		return
	}
	initOnce.Do(func() {
		manager = m
		bookings = svc
		queries = q
		policies = p
	})
}

type sessionRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	StartsAt          string  `json:"startsAt"`
	DurationMinutes   int64   `json:"durationMinutes"`
	Capacity          int64   `json:"capacity"`
	CoachIDs          []int64 `json:"coachIds"`
	PayoutAmountCents int64   `json:"payoutAmountCents"`
}

// POST /api/v1/admin/sessions
func HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	startsAt, err := apiutil.ParseDateField(req.StartsAt, "startsAt")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	created, err := manager.Create(ctx, sessionsvc.CreateParams{
		Title:             req.Title,
		Description:       req.Description,
		StartsAt:          startsAt,
		DurationMinutes:   req.DurationMinutes,
		Capacity:          req.Capacity,
		CoachIDs:          req.CoachIDs,
		PayoutAmountCents: req.PayoutAmountCents,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{"session": created})
}

type bulkRequest struct {
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	DaysOfWeek        []schedule.Weekday  `json:"daysOfWeek"`
	StartDate         string              `json:"startDate"`
	EndDate           string              `json:"endDate"`
	Time              *schedule.TimeOfDay `json:"time"`
	DurationMinutes   int64               `json:"durationMinutes"`
	Capacity          int64               `json:"capacity"`
	CoachIDs          []int64             `json:"coachIds"`
	PayoutAmountCents int64               `json:"payoutAmountCents"`
}

// POST /api/v1/admin/sessions/bulk
func HandleBulkSessions(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Time == nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", "time is required")
		return
	}
	startDate, err := apiutil.ParseDateField(req.StartDate, "startDate")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}
	endDate, err := apiutil.ParseDateField(req.EndDate, "endDate")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	// Bulk generation can insert dozens of rows; give it more room than a
	// point query.
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := manager.BulkGenerate(ctx, sessionsvc.BulkParams{
		Title:             req.Title,
		Description:       req.Description,
		Days:              req.DaysOfWeek,
		StartDate:         startDate,
		EndDate:           endDate,
		TimeOfDay:         *req.Time,
		DurationMinutes:   req.DurationMinutes,
		Capacity:          req.Capacity,
		CoachIDs:          req.CoachIDs,
		PayoutAmountCents: req.PayoutAmountCents,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, result)
}

type updateSessionRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	StartsAt        *string  `json:"startsAt,omitempty"`
	DurationMinutes *int64   `json:"durationMinutes,omitempty"`
	Capacity        *int64   `json:"capacity,omitempty"`
	Status          *string  `json:"status,omitempty"`
	CoachIDs        *[]int64 `json:"coachIds,omitempty"`
}

// PUT /api/v1/admin/sessions/{id}
func HandleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	var req updateSessionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	params := sessionsvc.UpdateParams{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Capacity:        req.Capacity,
		Status:          req.Status,
	}
	if req.StartsAt != nil {
		startsAt, err := apiutil.ParseDateField(*req.StartsAt, "startsAt")
		if err != nil {
			apiutil.WriteDomainError(w, r, err)
			return
		}
		params.StartsAt = &startsAt
	}
	if req.CoachIDs != nil {
		params.CoachIDs = *req.CoachIDs
		params.CoachIDsSet = true
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	updated, err := manager.Update(ctx, sessionID, params)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"session": updated})
}

// DELETE /api/v1/admin/sessions/{id}
func HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := manager.Delete(ctx, sessionID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, result)
}

type payoutStatusRequest struct {
	PayoutStatus string `json:"payoutStatus"`
}

// PATCH /api/v1/admin/sessions/{id}/payout-status
func HandlePayoutStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	var req payoutStatusRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	session, err := manager.SetPayoutStatus(ctx, sessionID, req.PayoutStatus)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"session": session})
}

// GET /api/v1/admin/sessions/{id}/roster
func HandleRoster(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	roster, err := manager.Roster(ctx, sessionID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"roster": roster})
}

type manualBookingRequest struct {
	ClimberID int64 `json:"climberId"`
}

// POST /api/v1/admin/sessions/{id}/bookings
//
// Front-desk manual booking. Runs the same admission path as
// self-service; the staff capability satisfies the ownership check but
// capacity and duplicate rules still apply.
func HandleManualBooking(w http.ResponseWriter, r *http.Request) {
	requester := authz.UserFromContext(r.Context())

	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	var req manualBookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.ClimberID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", "climberId must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	created, err := bookings.Admit(ctx, sessionID, req.ClimberID, requester)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{"booking": created})
}

type settingsRequest struct {
	BookingHorizonDays      int64 `json:"bookingHorizonDays"`
	CancellationWindowHours int64 `json:"cancellationWindowHours"`
}

// PUT /api/v1/admin/settings/booking
func HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	var details []string
	if req.BookingHorizonDays <= 0 {
		details = append(details, "bookingHorizonDays must be a positive integer")
	}
	if req.CancellationWindowHours < 0 {
		details = append(details, "cancellationWindowHours must be 0 or greater")
	}
	if len(details) > 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", details...)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	settings, err := queries.UpdateSettings(ctx, store.UpdateSettingsParams{
		BookingHorizonDays:      req.BookingHorizonDays,
		CancellationWindowHours: req.CancellationWindowHours,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, fmt.Errorf("update settings: %w", err))
		return
	}

	// New values take effect for admissions immediately, not at the next
	// periodic reload.
	if err := policies.Refresh(ctx); err != nil {
		apiutil.WriteDomainError(w, r, fmt.Errorf("refresh booking policy: %w", err))
		return
	}

	log.Ctx(r.Context()).Info().
		Int64("booking_horizon_days", settings.BookingHorizonDays).
		Int64("cancellation_window_hours", settings.CancellationWindowHours).
		Msg("Booking settings updated")

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"settings": settings})
}
