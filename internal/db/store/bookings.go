package store

import (
	"context"
	"time"
)

const bookingColumns = `id, session_id, member_id, booked_by_id, status, created_at, cancelled_at`

const createBooking = `
INSERT INTO bookings (session_id, member_id, booked_by_id, status)
VALUES (?, ?, ?, 'booked')
RETURNING ` + bookingColumns

type CreateBookingParams struct {
	SessionID  int64
	MemberID   int64
	BookedByID int64
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, createBooking, arg.SessionID, arg.MemberID, arg.BookedByID)
	return scanBooking(row)
}

const getBooking = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE id = ?
`

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	row := q.db.QueryRowContext(ctx, getBooking, id)
	return scanBooking(row)
}

const getActiveBooking = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE session_id = ? AND member_id = ? AND status = 'booked'
`

type GetActiveBookingParams struct {
	SessionID int64
	MemberID  int64
}

func (q *Queries) GetActiveBooking(ctx context.Context, arg GetActiveBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, getActiveBooking, arg.SessionID, arg.MemberID)
	return scanBooking(row)
}

const countActiveBookings = `
SELECT COUNT(*)
FROM bookings
WHERE session_id = ? AND status = 'booked'
`

func (q *Queries) CountActiveBookings(ctx context.Context, sessionID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveBookings, sessionID).Scan(&count)
	return count, err
}

const cancelBooking = `
UPDATE bookings
SET status = 'cancelled', cancelled_at = ?
WHERE id = ? AND status = 'booked'
RETURNING ` + bookingColumns

func (q *Queries) CancelBooking(ctx context.Context, id int64, cancelledAt time.Time) (Booking, error) {
	row := q.db.QueryRowContext(ctx, cancelBooking, cancelledAt.UTC(), id)
	return scanBooking(row)
}

const listSessionRoster = `
SELECT b.id, b.member_id, m.first_name, m.last_name,
       b.booked_by_id, bb.first_name || ' ' || bb.last_name, bb.email, b.created_at
FROM bookings b
JOIN members m ON m.id = b.member_id
JOIN members bb ON bb.id = b.booked_by_id
WHERE b.session_id = ? AND b.status = 'booked'
ORDER BY m.last_name, m.first_name
`

func (q *Queries) ListSessionRoster(ctx context.Context, sessionID int64) ([]RosterRow, error) {
	rows, err := q.db.QueryContext(ctx, listSessionRoster, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []RosterRow
	for rows.Next() {
		var r RosterRow
		if err := rows.Scan(
			&r.BookingID,
			&r.MemberID,
			&r.MemberFirstName,
			&r.MemberLastName,
			&r.BookedByID,
			&r.BookedByName,
			&r.BookedByEmail,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		roster = append(roster, r)
	}
	return roster, rows.Err()
}

const listBookingsForRequester = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE booked_by_id = ? AND (? = '' OR status = ?)
ORDER BY created_at DESC
`

type ListBookingsForRequesterParams struct {
	BookedByID int64
	Status     string
}

func (q *Queries) ListBookingsForRequester(ctx context.Context, arg ListBookingsForRequesterParams) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, listBookingsForRequester, arg.BookedByID, arg.Status, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

const deleteBookingsForSession = `
DELETE FROM bookings WHERE session_id = ?
`

func (q *Queries) DeleteBookingsForSession(ctx context.Context, sessionID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteBookingsForSession, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanBooking(row rowScanner) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.SessionID,
		&b.MemberID,
		&b.BookedByID,
		&b.Status,
		&b.CreatedAt,
		&b.CancelledAt,
	)
	return b, err
}
