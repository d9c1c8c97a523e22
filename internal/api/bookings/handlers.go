// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/api/apiutil"
	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/ratelimit"
	"github.com/belayhq/belay/internal/schedule"
)

var (
	service  *booking.Service
	queries  *store.Queries
	limiter  *ratelimit.Limiter
	initOnce sync.Once
)

const queryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service, q *store.Queries, l *ratelimit.Limiter) {
	if svc == nil || q == nil {
		return
	}
	initOnce.Do(func() {
		service = svc
		queries = q
		limiter = l
	})
}

type createRequest struct {
	SessionID  int64   `json:"sessionId"`
	ClimberID  *int64  `json:"climberId,omitempty"`
	ClimberIDs []int64 `json:"climberIds,omitempty"`
}

type summaryEntry struct {
	ClimberID   int64  `json:"climberId"`
	ClimberName string `json:"climberName,omitempty"`
	BookingID   int64  `json:"bookingId,omitempty"`
	SessionID   int64  `json:"sessionId"`
	SessionTime string `json:"sessionTime,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type summary struct {
	Successful []summaryEntry `json:"successful"`
	Failed     []summaryEntry `json:"failed"`
}

// POST /api/v1/bookings
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	requester := authz.UserFromContext(r.Context())

	if !allowWrite(w, r, requester) {
		return
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.SessionID <= 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", "sessionId must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	switch {
	case req.ClimberID != nil && len(req.ClimberIDs) == 0:
		created, err := service.Admit(ctx, req.SessionID, *req.ClimberID, requester)
		if err != nil {
			apiutil.WriteDomainError(w, r, err)
			return
		}
		apiutil.WriteJSON(w, http.StatusCreated, map[string]any{"booking": created})

	case len(req.ClimberIDs) > 0 && req.ClimberID == nil:
		result, err := service.AdmitMany(ctx, req.SessionID, req.ClimberIDs, requester)
		if err != nil {
			apiutil.WriteDomainError(w, r, err)
			return
		}
		logger.Debug().
			Int("successful", len(result.Successful)).
			Int("failed", len(result.Failed)).
			Msg("Multi-member booking response")
		apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
			"bookings": successfulIDs(result),
			"summary":  buildSummary(ctx, result),
		})

	default:
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed",
			"provide exactly one of climberId or climberIds")
	}
}

type recurringRequest struct {
	ClimberID       *int64              `json:"climberId,omitempty"`
	ClimberIDs      []int64             `json:"climberIds,omitempty"`
	DaysOfWeek      []schedule.Weekday  `json:"daysOfWeek"`
	StartDate       string              `json:"startDate"`
	EndDate         string              `json:"endDate"`
	Time            *schedule.TimeOfDay `json:"time"`
	DurationMinutes int64               `json:"durationMinutes"`
}

// POST /api/v1/bookings/recurring
func HandleRecurring(w http.ResponseWriter, r *http.Request) {
	requester := authz.UserFromContext(r.Context())

	if !allowWrite(w, r, requester) {
		return
	}

	var req recurringRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	memberIDs := req.ClimberIDs
	if req.ClimberID != nil {
		memberIDs = append(memberIDs, *req.ClimberID)
	}
	var details []string
	if len(memberIDs) == 0 {
		details = append(details, "climberId or climberIds is required")
	}
	if len(req.DaysOfWeek) == 0 {
		details = append(details, "daysOfWeek must include at least one day")
	}
	if req.Time == nil {
		details = append(details, "time is required")
	}
	if req.DurationMinutes <= 0 {
		details = append(details, "durationMinutes must be a positive integer")
	}
	startDate, err := apiutil.ParseDateField(req.StartDate, "startDate")
	if err != nil {
		details = append(details, err.Error())
	}
	endDate, err := apiutil.ParseDateField(req.EndDate, "endDate")
	if err != nil {
		details = append(details, err.Error())
	} else if len(details) == 0 && endDate.Before(startDate) {
		details = append(details, "endDate must not precede startDate")
	}
	if len(details) > 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", details...)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	result, err := service.AdmitRecurring(ctx, memberIDs, booking.RecurringPattern{
		Days:            req.DaysOfWeek,
		StartDate:       startDate,
		EndDate:         endDate,
		TimeOfDay:       *req.Time,
		DurationMinutes: req.DurationMinutes,
	}, requester)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"summary": buildSummary(ctx, result),
		"created": len(result.Successful),
	})
}

// GET /api/v1/bookings
func HandleList(w http.ResponseWriter, r *http.Request) {
	requester := authz.UserFromContext(r.Context())
	if requester == nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && status != store.BookingStatusBooked && status != store.BookingStatusCancelled {
		apiutil.WriteError(w, http.StatusBadRequest, "Validation failed", "status must be booked or cancelled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	bookings, err := queries.ListBookingsForRequester(ctx, store.ListBookingsForRequesterParams{
		BookedByID: requester.ID,
		Status:     status,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, fmt.Errorf("list bookings: %w", err))
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// DELETE /api/v1/bookings/{id}
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	requester := authz.UserFromContext(r.Context())

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	cancelled, err := service.Cancel(ctx, bookingID, requester)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"booking": cancelled})
}

// allowWrite applies authentication and the booking burst limiter. The
// attempt is recorded before the admission runs so rejected requests
// still burn budget.
func allowWrite(w http.ResponseWriter, r *http.Request, requester *authz.AuthUser) bool {
	if requester == nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return false
	}
	if limiter == nil {
		return true
	}

	ip := ratelimit.GetClientIP(r, true)
	if result := limiter.Check(requester.ID, ip); !result.Allowed {
		ratelimit.LogRateLimitExceeded(requester.ID, ip, result.Reason)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
		apiutil.WriteError(w, http.StatusTooManyRequests, "Too many booking requests")
		return false
	}
	limiter.Record(requester.ID, ip)
	return true
}

func successfulIDs(result booking.BatchResult) []int64 {
	ids := make([]int64, 0, len(result.Successful))
	for _, s := range result.Successful {
		ids = append(ids, s.BookingID)
	}
	return ids
}

// buildSummary enriches batch outcomes with member names for the
// response. A failed name lookup degrades to an id-only entry.
func buildSummary(ctx context.Context, result booking.BatchResult) summary {
	names := map[int64]string{}
	lookup := func(memberID int64) string {
		if name, ok := names[memberID]; ok {
			return name
		}
		member, err := queries.GetMember(ctx, memberID)
		if err != nil {
			names[memberID] = ""
			return ""
		}
		names[memberID] = member.FullName()
		return names[memberID]
	}

	out := summary{Successful: []summaryEntry{}, Failed: []summaryEntry{}}
	for _, s := range result.Successful {
		out.Successful = append(out.Successful, summaryEntry{
			ClimberID:   s.MemberID,
			ClimberName: lookup(s.MemberID),
			BookingID:   s.BookingID,
			SessionID:   s.SessionID,
			SessionTime: s.SessionStart.UTC().Format(time.RFC3339),
		})
	}
	for _, f := range result.Failed {
		out.Failed = append(out.Failed, summaryEntry{
			ClimberID:   f.MemberID,
			ClimberName: lookup(f.MemberID),
			SessionID:   f.SessionID,
			Reason:      f.Reason,
		})
	}
	return out
}
