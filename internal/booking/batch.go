package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/schedule"
)

// BatchSuccess is one admitted target.
type BatchSuccess struct {
	MemberID     int64     `json:"climberId"`
	BookingID    int64     `json:"bookingId"`
	SessionID    int64     `json:"sessionId"`
	SessionStart time.Time `json:"sessionStart"`
}

// BatchFailure is one rejected target with its typed reason.
type BatchFailure struct {
	MemberID  int64  `json:"climberId"`
	SessionID int64  `json:"sessionId,omitempty"`
	Kind      Kind   `json:"kind"`
	Reason    string `json:"reason"`
}

// BatchResult aggregates isolated per-target outcomes. Committed
// admissions stay committed even when sibling targets fail; there is no
// rollback across targets.
type BatchResult struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
}

// AdmitMany admits each member against one session independently and
// concurrently. A rejection on one target never aborts the others; only an
// infrastructure fault fails the whole batch.
func (s *Service) AdmitMany(ctx context.Context, sessionID int64, memberIDs []int64, requester *authz.AuthUser) (BatchResult, error) {
	var result BatchResult

	// Resolve the session once so a missing session fails every target
	// with the same reason instead of hammering the store N times.
	session, err := s.db.Queries.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			for _, memberID := range memberIDs {
				result.Failed = append(result.Failed, BatchFailure{
					MemberID:  memberID,
					SessionID: sessionID,
					Kind:      KindNotFound,
					Reason:    "session not found",
				})
			}
			return result, nil
		}
		return BatchResult{}, fmt.Errorf("load session: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, memberID := range memberIDs {
		g.Go(func() error {
			booking, err := s.Admit(gctx, sessionID, memberID, requester)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejection, ok := AsRejection(err)
				if !ok {
					return err
				}
				result.Failed = append(result.Failed, BatchFailure{
					MemberID:  memberID,
					SessionID: sessionID,
					Kind:      rejection.Kind,
					Reason:    rejection.Message,
				})
				return nil
			}
			result.Successful = append(result.Successful, BatchSuccess{
				MemberID:     memberID,
				BookingID:    booking.ID,
				SessionID:    sessionID,
				SessionStart: session.StartsAt,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	sortBatchResult(&result)
	log.Ctx(ctx).Info().
		Int64("session_id", sessionID).
		Int("requested", len(memberIDs)).
		Int("successful", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Msg("Multi-member booking processed")

	return result, nil
}

// RecurringPattern is a weekly booking pattern over a date range.
type RecurringPattern struct {
	Days            []schedule.Weekday
	StartDate       time.Time
	EndDate         time.Time
	TimeOfDay       schedule.TimeOfDay
	DurationMinutes int64
}

// AdmitRecurring expands the pattern into concrete occurrences, resolves
// each to an existing active session matching start time and duration, and
// admits every (occurrence, member) pair independently. Past occurrences
// and occurrences outside the booking horizon are skipped without a
// failure entry; an occurrence with no matching session fails those
// targets with a not-found reason.
func (s *Service) AdmitRecurring(ctx context.Context, memberIDs []int64, pattern RecurringPattern, requester *authz.AuthUser) (BatchResult, error) {
	var result BatchResult
	now := s.now()

	occurrences := schedule.Expand(pattern.Days, pattern.StartDate, pattern.EndDate, pattern.TimeOfDay)

	type target struct {
		sessionID int64
		start     time.Time
		memberID  int64
	}
	var targets []target
	for _, start := range occurrences {
		if !start.After(now) || !s.policy.WithinHorizon(start, now) {
			continue
		}

		session, err := s.db.Queries.FindSessionByStart(ctx, store.FindSessionByStartParams{
			StartsAt:        start,
			DurationMinutes: pattern.DurationMinutes,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				for _, memberID := range memberIDs {
					result.Failed = append(result.Failed, BatchFailure{
						MemberID: memberID,
						Kind:     KindNotFound,
						Reason:   fmt.Sprintf("no session on %s", start.Format("2006-01-02 15:04")),
					})
				}
				continue
			}
			return BatchResult{}, fmt.Errorf("resolve session for %s: %w", start.Format(time.RFC3339), err)
		}

		for _, memberID := range memberIDs {
			targets = append(targets, target{sessionID: session.ID, start: session.StartsAt, memberID: memberID})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			booking, err := s.Admit(gctx, t.sessionID, t.memberID, requester)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejection, ok := AsRejection(err)
				if !ok {
					return err
				}
				result.Failed = append(result.Failed, BatchFailure{
					MemberID:  t.memberID,
					SessionID: t.sessionID,
					Kind:      rejection.Kind,
					Reason:    rejection.Message,
				})
				return nil
			}
			result.Successful = append(result.Successful, BatchSuccess{
				MemberID:     t.memberID,
				BookingID:    booking.ID,
				SessionID:    t.sessionID,
				SessionStart: t.start,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	sortBatchResult(&result)
	log.Ctx(ctx).Info().
		Int("members", len(memberIDs)).
		Int("occurrences", len(occurrences)).
		Int("successful", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Msg("Recurring bookings processed")

	return result, nil
}

// sortBatchResult gives batch responses a stable order; goroutine
// completion order is not meaningful to callers.
func sortBatchResult(result *BatchResult) {
	sort.Slice(result.Successful, func(i, j int) bool {
		a, b := result.Successful[i], result.Successful[j]
		if !a.SessionStart.Equal(b.SessionStart) {
			return a.SessionStart.Before(b.SessionStart)
		}
		return a.MemberID < b.MemberID
	})
	sort.Slice(result.Failed, func(i, j int) bool {
		a, b := result.Failed[i], result.Failed[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.MemberID < b.MemberID
	})
}
