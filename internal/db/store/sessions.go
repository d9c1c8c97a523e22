package store

import (
	"context"
	"time"
)

const sessionColumns = `id, title, description, starts_at, duration_minutes, capacity, status, payout_amount_cents, payout_status, created_at`

const createSession = `
INSERT INTO sessions (title, description, starts_at, duration_minutes, capacity, status, payout_amount_cents, payout_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + sessionColumns

type CreateSessionParams struct {
	Title             string
	Description       string
	StartsAt          time.Time
	DurationMinutes   int64
	Capacity          int64
	Status            string
	PayoutAmountCents int64
	PayoutStatus      string
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.Title,
		arg.Description,
		arg.StartsAt.UTC(),
		arg.DurationMinutes,
		arg.Capacity,
		arg.Status,
		arg.PayoutAmountCents,
		arg.PayoutStatus,
	)
	return scanSession(row)
}

const getSession = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE id = ?
`

func (q *Queries) GetSession(ctx context.Context, id int64) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	return scanSession(row)
}

const updateSession = `
UPDATE sessions
SET title = ?, description = ?, starts_at = ?, duration_minutes = ?, capacity = ?, status = ?
WHERE id = ?
RETURNING ` + sessionColumns

type UpdateSessionParams struct {
	ID              int64
	Title           string
	Description     string
	StartsAt        time.Time
	DurationMinutes int64
	Capacity        int64
	Status          string
}

func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, updateSession,
		arg.Title,
		arg.Description,
		arg.StartsAt.UTC(),
		arg.DurationMinutes,
		arg.Capacity,
		arg.Status,
		arg.ID,
	)
	return scanSession(row)
}

const updateSessionPayoutStatus = `
UPDATE sessions
SET payout_status = ?
WHERE id = ?
RETURNING ` + sessionColumns

func (q *Queries) UpdateSessionPayoutStatus(ctx context.Context, id int64, payoutStatus string) (Session, error) {
	row := q.db.QueryRowContext(ctx, updateSessionPayoutStatus, payoutStatus, id)
	return scanSession(row)
}

const listSessionsByRange = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE status != 'cancelled' AND starts_at > ? AND starts_at <= ?
ORDER BY starts_at
`

type ListSessionsByRangeParams struct {
	After  time.Time
	Until  time.Time
}

func (q *Queries) ListSessionsByRange(ctx context.Context, arg ListSessionsByRangeParams) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessionsByRange, arg.After.UTC(), arg.Until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

const listCoachSessionsByRange = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE status = 'active'
  AND starts_at >= ? AND starts_at < ?
  AND id IN (SELECT session_id FROM session_coaches WHERE coach_id = ?)
ORDER BY starts_at
`

type ListCoachSessionsByRangeParams struct {
	From    time.Time
	To      time.Time
	CoachID int64
}

func (q *Queries) ListCoachSessionsByRange(ctx context.Context, arg ListCoachSessionsByRangeParams) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, listCoachSessionsByRange, arg.From.UTC(), arg.To.UTC(), arg.CoachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

const findSessionByStart = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE status = 'active' AND starts_at = ? AND duration_minutes = ?
LIMIT 1
`

type FindSessionByStartParams struct {
	StartsAt        time.Time
	DurationMinutes int64
}

func (q *Queries) FindSessionByStart(ctx context.Context, arg FindSessionByStartParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, findSessionByStart, arg.StartsAt.UTC(), arg.DurationMinutes)
	return scanSession(row)
}

const addSessionCoach = `
INSERT INTO session_coaches (session_id, coach_id)
VALUES (?, ?)
ON CONFLICT (session_id, coach_id) DO NOTHING
`

func (q *Queries) AddSessionCoach(ctx context.Context, sessionID, coachID int64) error {
	_, err := q.db.ExecContext(ctx, addSessionCoach, sessionID, coachID)
	return err
}

const deleteSessionCoaches = `
DELETE FROM session_coaches WHERE session_id = ?
`

func (q *Queries) DeleteSessionCoaches(ctx context.Context, sessionID int64) error {
	_, err := q.db.ExecContext(ctx, deleteSessionCoaches, sessionID)
	return err
}

const listSessionCoaches = `
SELECT m.id, m.first_name, m.last_name, m.email, m.roles, m.created_at
FROM session_coaches sc
JOIN members m ON m.id = sc.coach_id
WHERE sc.session_id = ?
ORDER BY m.last_name, m.first_name
`

func (q *Queries) ListSessionCoaches(ctx context.Context, sessionID int64) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, listSessionCoaches, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coaches []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		coaches = append(coaches, m)
	}
	return coaches, rows.Err()
}

const deleteSession = `
DELETE FROM sessions WHERE id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSession, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Description,
		&s.StartsAt,
		&s.DurationMinutes,
		&s.Capacity,
		&s.Status,
		&s.PayoutAmountCents,
		&s.PayoutStatus,
		&s.CreatedAt,
	)
	return s, err
}

func collectSessions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Session, error) {
	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
