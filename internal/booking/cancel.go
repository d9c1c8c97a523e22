package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/api/authz"
	appdb "github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
)

// Cancel transitions a booking from booked to cancelled. The transition is
// one-way: cancelling an already-cancelled booking is rejected with
// AlreadyCancelled so batch callers can tell "nothing to do" apart from
// "just cancelled". Requesters holding the admin capability may cancel
// past the cancellation-window cutoff; everyone else may not.
func (s *Service) Cancel(ctx context.Context, bookingID int64, requester *authz.AuthUser) (store.Booking, error) {
	if requester == nil {
		return store.Booking{}, reject(KindUnauthorized, "authentication required")
	}

	booking, err := s.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Booking{}, reject(KindNotFound, "booking not found")
		}
		return store.Booking{}, fmt.Errorf("load booking: %w", err)
	}

	if booking.Status == store.BookingStatusCancelled {
		return store.Booking{}, reject(KindAlreadyCancelled, "booking already cancelled")
	}

	// Non-owners get the same answer as a missing booking; existence of
	// other members' bookings is not disclosed.
	if !requester.IsStaff() && requester.ID != booking.BookedByID && requester.ID != booking.MemberID {
		return store.Booking{}, reject(KindNotFound, "booking not found")
	}

	session, err := s.db.Queries.GetSession(ctx, booking.SessionID)
	if err != nil {
		return store.Booking{}, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if !requester.Has(authz.CapabilityAdmin) && !s.policy.CancellationOpen(session.StartsAt, now) {
		return store.Booking{}, reject(KindCancellationWindowClosed, "cancellation period has expired")
	}

	var cancelled store.Booking
	err = s.db.RunInTx(ctx, func(tx *appdb.DB) error {
		var err error
		cancelled, err = tx.Queries.CancelBooking(ctx, bookingID, now)
		if err != nil {
			// A concurrent cancel already flipped the row; the guarded
			// UPDATE matches nothing.
			if errors.Is(err, sql.ErrNoRows) {
				return reject(KindAlreadyCancelled, "booking already cancelled")
			}
			return fmt.Errorf("cancel booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Booking{}, err
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", bookingID).
		Int64("session_id", booking.SessionID).
		Int64("member_id", booking.MemberID).
		Int64("requester_id", requester.ID).
		Msg("Booking cancelled")

	return cancelled, nil
}
