// Package booking is the admission engine: the capacity-safe single
// booking transition, the batch orchestrator that fans one request into
// independent per-target admissions, and the cancellation authorizer.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/booking/policy"
	appdb "github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
)

// GuardianDirectory answers whether a requester holds a verified
// guardian-to-member linkage. The linkage itself is owned by the family
// module; admission only reads it.
type GuardianDirectory interface {
	Linked(ctx context.Context, guardianID, memberID int64) (bool, error)
}

// StoreGuardians backs GuardianDirectory with the guardian_links table.
type StoreGuardians struct {
	Queries *store.Queries
}

func (g StoreGuardians) Linked(ctx context.Context, guardianID, memberID int64) (bool, error) {
	return g.Queries.GuardianLinkVerified(ctx, guardianID, memberID)
}

// Service performs admissions and cancellations against the booking store.
type Service struct {
	db        *appdb.DB
	policy    *policy.Provider
	guardians GuardianDirectory
	now       func() time.Time
}

func NewService(database *appdb.DB, pol *policy.Provider, guardians GuardianDirectory) *Service {
	return &Service{
		db:        database,
		policy:    pol,
		guardians: guardians,
		now:       time.Now,
	}
}

// Admit runs the admission checks in order, each short-circuiting, and
// commits a new active booking when they all pass. The duplicate and
// capacity checks run together with the insert in one immediate
// transaction, so concurrent admissions against the same session
// serialize and the capacity invariant holds under contention.
func (s *Service) Admit(ctx context.Context, sessionID, memberID int64, requester *authz.AuthUser) (store.Booking, error) {
	if requester == nil {
		return store.Booking{}, reject(KindUnauthorized, "authentication required")
	}

	session, err := s.db.Queries.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Booking{}, reject(KindNotFound, "session not found")
		}
		return store.Booking{}, fmt.Errorf("load session: %w", err)
	}
	if session.Status != store.SessionStatusActive {
		return store.Booking{}, reject(KindNotFound, "session not found")
	}

	now := s.now()
	if !s.policy.WithinHorizon(session.StartsAt, now) {
		return store.Booking{}, reject(KindOutsideBookingWindow, "session is outside the booking window")
	}

	if err := s.authorizeTarget(ctx, memberID, requester); err != nil {
		return store.Booking{}, err
	}

	member, err := s.db.Queries.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Booking{}, reject(KindNotFound, "climber not found")
		}
		return store.Booking{}, fmt.Errorf("load member: %w", err)
	}
	if !hasRole(member, string(authz.CapabilityClimber)) {
		return store.Booking{}, reject(KindNotFound, "climber not found")
	}

	var created store.Booking
	err = s.db.RunInTx(ctx, func(tx *appdb.DB) error {
		_, err := tx.Queries.GetActiveBooking(ctx, store.GetActiveBookingParams{
			SessionID: sessionID,
			MemberID:  memberID,
		})
		if err == nil {
			return reject(KindDuplicateBooking, "already registered for this session")
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check duplicate booking: %w", err)
		}

		// Capacity is re-read inside the transaction; an admin may have
		// shrunk it since the pre-checks ran.
		current, err := tx.Queries.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("reload session: %w", err)
		}
		count, err := tx.Queries.CountActiveBookings(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if count >= current.Capacity {
			return reject(KindCapacityExceeded, "session is full")
		}

		created, err = tx.Queries.CreateBooking(ctx, store.CreateBookingParams{
			SessionID:  sessionID,
			MemberID:   memberID,
			BookedByID: requester.ID,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return reject(KindDuplicateBooking, "already registered for this session")
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Booking{}, err
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", created.ID).
		Int64("session_id", sessionID).
		Int64("member_id", memberID).
		Int64("booked_by_id", requester.ID).
		Msg("Booking created")

	return created, nil
}

// authorizeTarget checks that the requester may book for the target
// member: self, staff capability, or a verified guardian link.
func (s *Service) authorizeTarget(ctx context.Context, memberID int64, requester *authz.AuthUser) error {
	if requester.IsStaff() {
		return nil
	}
	if !requester.Has(authz.CapabilityClimber) {
		return reject(KindUnauthorized, "requester does not hold the climber role")
	}
	if requester.ID == memberID {
		return nil
	}

	linked, err := s.guardians.Linked(ctx, requester.ID, memberID)
	if err != nil {
		return fmt.Errorf("check guardian link: %w", err)
	}
	if !linked {
		return reject(KindUnauthorized, "not authorized to book for this member")
	}
	return nil
}

func hasRole(m store.Member, role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// isUniqueViolation reports whether err is the partial unique index on
// active (session, member) pairs firing — the store-level backstop for the
// duplicate check.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
