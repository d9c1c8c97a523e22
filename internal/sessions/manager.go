// Package sessions is the session lifecycle manager: creation, updates
// guarded against breaking existing bookings, bulk generation from a
// weekly pattern, payout bookkeeping, and read models annotated with
// remaining capacity.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/booking/policy"
	appdb "github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/schedule"
)

// ErrNoOccurrences is returned when a bulk-generation pattern yields
// nothing to create inside the date range.
var ErrNoOccurrences = errors.New("no valid sessions to create in the specified date range")

// ValidationError reports a rejected field on a session write. The HTTP
// layer renders it as a 400 with the field named in the details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func fieldError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type Manager struct {
	db     *appdb.DB
	policy *policy.Provider
	now    func() time.Time
}

func NewManager(database *appdb.DB, pol *policy.Provider) *Manager {
	return &Manager{db: database, policy: pol, now: time.Now}
}

// View is a session annotated with its derived occupancy. The counts are
// always computed from the authoritative booking set, never stored.
type View struct {
	store.Session
	Coaches        []store.Member `json:"coaches"`
	BookedCount    int64          `json:"bookedCount"`
	AvailableSpots int64          `json:"availableSpots"`
}

type CreateParams struct {
	Title             string
	Description       string
	StartsAt          time.Time
	DurationMinutes   int64
	Capacity          int64
	Status            string
	CoachIDs          []int64
	PayoutAmountCents int64
}

// Create validates and inserts a single session. A past start time is
// allowed — staff backfill sessions for record-keeping — because admission
// against past sessions is separately blocked by the horizon gate.
func (m *Manager) Create(ctx context.Context, p CreateParams) (store.Session, error) {
	if p.Status == "" {
		p.Status = store.SessionStatusActive
	}
	if err := validateSpec(p.Title, p.DurationMinutes, p.Capacity, p.Status); err != nil {
		return store.Session{}, err
	}

	var created store.Session
	err := m.db.RunInTx(ctx, func(tx *appdb.DB) error {
		var err error
		created, err = tx.Queries.CreateSession(ctx, store.CreateSessionParams{
			Title:             p.Title,
			Description:       p.Description,
			StartsAt:          p.StartsAt,
			DurationMinutes:   p.DurationMinutes,
			Capacity:          p.Capacity,
			Status:            p.Status,
			PayoutAmountCents: p.PayoutAmountCents,
			PayoutStatus:      store.PayoutStatusUnpaid,
		})
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		for _, coachID := range p.CoachIDs {
			if err := tx.Queries.AddSessionCoach(ctx, created.ID, coachID); err != nil {
				return fmt.Errorf("assign coach %d: %w", coachID, err)
			}
		}
		return nil
	})
	if err != nil {
		return store.Session{}, err
	}

	log.Ctx(ctx).Info().
		Int64("session_id", created.ID).
		Str("title", created.Title).
		Time("starts_at", created.StartsAt).
		Msg("Session created")

	return created, nil
}

// UpdateParams is a partial patch; nil fields keep their current value.
type UpdateParams struct {
	Title           *string
	Description     *string
	StartsAt        *time.Time
	DurationMinutes *int64
	Capacity        *int64
	Status          *string
	CoachIDs        []int64
	CoachIDsSet     bool
}

// Update applies a partial patch. Reducing capacity below the current
// count of active bookings is rejected, keeping the capacity invariant;
// the stored value is untouched on rejection.
func (m *Manager) Update(ctx context.Context, sessionID int64, p UpdateParams) (store.Session, error) {
	var updated store.Session
	err := m.db.RunInTx(ctx, func(tx *appdb.DB) error {
		current, err := tx.Queries.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &booking.Rejection{Kind: booking.KindNotFound, Message: "session not found"}
			}
			return fmt.Errorf("load session: %w", err)
		}

		if p.Capacity != nil {
			active, err := tx.Queries.CountActiveBookings(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("count bookings: %w", err)
			}
			if *p.Capacity < active {
				return &booking.Rejection{
					Kind:    booking.KindInvalidCapacityReduction,
					Message: fmt.Sprintf("cannot reduce capacity below %d (current bookings)", active),
				}
			}
		}

		next := store.UpdateSessionParams{
			ID:              sessionID,
			Title:           current.Title,
			Description:     current.Description,
			StartsAt:        current.StartsAt,
			DurationMinutes: current.DurationMinutes,
			Capacity:        current.Capacity,
			Status:          current.Status,
		}
		if p.Title != nil {
			next.Title = *p.Title
		}
		if p.Description != nil {
			next.Description = *p.Description
		}
		if p.StartsAt != nil {
			next.StartsAt = *p.StartsAt
		}
		if p.DurationMinutes != nil {
			next.DurationMinutes = *p.DurationMinutes
		}
		if p.Capacity != nil {
			next.Capacity = *p.Capacity
		}
		if p.Status != nil {
			next.Status = *p.Status
		}
		if err := validateSpec(next.Title, next.DurationMinutes, next.Capacity, next.Status); err != nil {
			return err
		}

		updated, err = tx.Queries.UpdateSession(ctx, next)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		if p.CoachIDsSet {
			if err := tx.Queries.DeleteSessionCoaches(ctx, sessionID); err != nil {
				return fmt.Errorf("clear coaches: %w", err)
			}
			for _, coachID := range p.CoachIDs {
				if err := tx.Queries.AddSessionCoach(ctx, sessionID, coachID); err != nil {
					return fmt.Errorf("assign coach %d: %w", coachID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return store.Session{}, err
	}

	log.Ctx(ctx).Info().Int64("session_id", sessionID).Msg("Session updated")
	return updated, nil
}

type BulkParams struct {
	Title             string
	Description       string
	Days              []schedule.Weekday
	StartDate         time.Time
	EndDate           time.Time
	TimeOfDay         schedule.TimeOfDay
	DurationMinutes   int64
	Capacity          int64
	CoachIDs          []int64
	PayoutAmountCents int64
}

type BulkResult struct {
	Created  int             `json:"created"`
	Sessions []store.Session `json:"sessions"`
	Failed   []string        `json:"failed,omitempty"`
}

// BulkGenerate expands the weekly pattern over the date range, skips
// occurrences that are not strictly in the future, and inserts the rest as
// one unordered batch. A malformed occurrence is recorded and skipped, not
// allowed to block its siblings.
func (m *Manager) BulkGenerate(ctx context.Context, p BulkParams) (BulkResult, error) {
	if len(p.Days) == 0 {
		return BulkResult{}, fieldError("daysOfWeek", "must include at least one day")
	}
	if err := validateSpec(p.Title, p.DurationMinutes, p.Capacity, store.SessionStatusActive); err != nil {
		return BulkResult{}, err
	}

	now := m.now()
	var result BulkResult
	for _, start := range schedule.Expand(p.Days, p.StartDate, p.EndDate, p.TimeOfDay) {
		if !start.After(now) {
			continue
		}
		created, err := m.Create(ctx, CreateParams{
			Title:             p.Title,
			Description:       p.Description,
			StartsAt:          start,
			DurationMinutes:   p.DurationMinutes,
			Capacity:          p.Capacity,
			CoachIDs:          p.CoachIDs,
			PayoutAmountCents: p.PayoutAmountCents,
		})
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Time("starts_at", start).Msg("Skipping occurrence in bulk generation")
			result.Failed = append(result.Failed, start.Format(time.RFC3339))
			continue
		}
		result.Sessions = append(result.Sessions, created)
	}
	result.Created = len(result.Sessions)

	if result.Created == 0 {
		return BulkResult{}, ErrNoOccurrences
	}

	log.Ctx(ctx).Info().
		Int("created", result.Created).
		Str("title", p.Title).
		Msg("Bulk sessions created")

	return result, nil
}

// SetPayoutStatus flips the payout bookkeeping flag on a session.
func (m *Manager) SetPayoutStatus(ctx context.Context, sessionID int64, payoutStatus string) (store.Session, error) {
	if payoutStatus != store.PayoutStatusUnpaid && payoutStatus != store.PayoutStatusPaid {
		return store.Session{}, fieldError("payoutStatus", "must be either \"unpaid\" or \"paid\"")
	}

	session, err := m.db.Queries.UpdateSessionPayoutStatus(ctx, sessionID, payoutStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Session{}, &booking.Rejection{Kind: booking.KindNotFound, Message: "session not found"}
		}
		return store.Session{}, fmt.Errorf("update payout status: %w", err)
	}

	log.Ctx(ctx).Info().
		Int64("session_id", sessionID).
		Str("payout_status", payoutStatus).
		Msg("Coach payout status updated")

	return session, nil
}

// ListFilters narrows the public session listing. Without an explicit
// range the booking horizon applies.
type ListFilters struct {
	StartDate *time.Time
	EndDate   *time.Time
	CoachID   *int64
}

// Available lists non-cancelled sessions, defaulting to the bookable
// window, each annotated with bookedCount and availableSpots.
func (m *Manager) Available(ctx context.Context, f ListFilters) ([]View, error) {
	now := m.now()
	after := now
	until := now.Add(m.policy.Horizon())
	if f.StartDate != nil {
		after = *f.StartDate
	}
	if f.EndDate != nil {
		until = *f.EndDate
	}

	sessions, err := m.db.Queries.ListSessionsByRange(ctx, store.ListSessionsByRangeParams{
		After: after,
		Until: until,
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	views := make([]View, 0, len(sessions))
	for _, session := range sessions {
		if f.CoachID != nil {
			coached, err := m.sessionHasCoach(ctx, session.ID, *f.CoachID)
			if err != nil {
				return nil, err
			}
			if !coached {
				continue
			}
		}
		view, err := m.annotate(ctx, session)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Get returns one session with occupancy, regardless of status.
func (m *Manager) Get(ctx context.Context, sessionID int64) (View, error) {
	session, err := m.db.Queries.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return View{}, &booking.Rejection{Kind: booking.KindNotFound, Message: "session not found"}
		}
		return View{}, fmt.Errorf("load session: %w", err)
	}
	return m.annotate(ctx, session)
}

// Roster lists the booked attendees for a session with member and booker
// identity attached.
func (m *Manager) Roster(ctx context.Context, sessionID int64) ([]store.RosterRow, error) {
	if _, err := m.db.Queries.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &booking.Rejection{Kind: booking.KindNotFound, Message: "session not found"}
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return m.db.Queries.ListSessionRoster(ctx, sessionID)
}

// TodayForCoach lists a coach's active sessions for the current day.
func (m *Manager) TodayForCoach(ctx context.Context, coachID int64) ([]View, error) {
	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sessions, err := m.db.Queries.ListCoachSessionsByRange(ctx, store.ListCoachSessionsByRangeParams{
		From:    dayStart,
		To:      dayStart.AddDate(0, 0, 1),
		CoachID: coachID,
	})
	if err != nil {
		return nil, fmt.Errorf("list coach sessions: %w", err)
	}

	views := make([]View, 0, len(sessions))
	for _, session := range sessions {
		view, err := m.annotate(ctx, session)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

type DeleteResult struct {
	BookingsDeleted int64 `json:"bookingsDeleted"`
}

// Delete hard-removes a session and its bookings. Admin-only; the public
// lifecycle is soft (status cancelled), this exists for cleaning up
// mistakes before anyone attends.
func (m *Manager) Delete(ctx context.Context, sessionID int64) (DeleteResult, error) {
	var result DeleteResult
	err := m.db.RunInTx(ctx, func(tx *appdb.DB) error {
		if _, err := tx.Queries.GetSession(ctx, sessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &booking.Rejection{Kind: booking.KindNotFound, Message: "session not found"}
			}
			return fmt.Errorf("load session: %w", err)
		}

		deleted, err := tx.Queries.DeleteBookingsForSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("delete bookings: %w", err)
		}
		result.BookingsDeleted = deleted

		if err := tx.Queries.DeleteSessionCoaches(ctx, sessionID); err != nil {
			return fmt.Errorf("delete coach assignments: %w", err)
		}
		if _, err := tx.Queries.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	log.Ctx(ctx).Info().
		Int64("session_id", sessionID).
		Int64("bookings_deleted", result.BookingsDeleted).
		Msg("Session deleted with related data cleanup")

	return result, nil
}

func (m *Manager) annotate(ctx context.Context, session store.Session) (View, error) {
	count, err := m.db.Queries.CountActiveBookings(ctx, session.ID)
	if err != nil {
		return View{}, fmt.Errorf("count bookings for session %d: %w", session.ID, err)
	}
	coaches, err := m.db.Queries.ListSessionCoaches(ctx, session.ID)
	if err != nil {
		return View{}, fmt.Errorf("list coaches for session %d: %w", session.ID, err)
	}
	return View{
		Session:        session,
		Coaches:        coaches,
		BookedCount:    count,
		AvailableSpots: session.Capacity - count,
	}, nil
}

func (m *Manager) sessionHasCoach(ctx context.Context, sessionID, coachID int64) (bool, error) {
	coaches, err := m.db.Queries.ListSessionCoaches(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, coach := range coaches {
		if coach.ID == coachID {
			return true, nil
		}
	}
	return false, nil
}

func validateSpec(title string, durationMinutes, capacity int64, status string) error {
	switch {
	case title == "":
		return fieldError("title", "is required")
	case durationMinutes <= 0:
		return fieldError("durationMinutes", "must be a positive integer")
	case capacity <= 0:
		return fieldError("capacity", "must be a positive integer")
	case status != store.SessionStatusActive && status != store.SessionStatusCancelled:
		return fieldError("status", "must be active or cancelled")
	}
	return nil
}
