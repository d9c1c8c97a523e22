package store

import (
	"context"
)

const createMember = `
INSERT INTO members (first_name, last_name, email, roles)
VALUES (?, ?, ?, ?)
RETURNING id, first_name, last_name, email, roles, created_at
`

type CreateMemberParams struct {
	FirstName string
	LastName  string
	Email     string
	Roles     []string
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (Member, error) {
	row := q.db.QueryRowContext(ctx, createMember, arg.FirstName, arg.LastName, arg.Email, joinRoles(arg.Roles))
	return scanMember(row)
}

const getMember = `
SELECT id, first_name, last_name, email, roles, created_at
FROM members
WHERE id = ?
`

func (q *Queries) GetMember(ctx context.Context, id int64) (Member, error) {
	row := q.db.QueryRowContext(ctx, getMember, id)
	return scanMember(row)
}

const listClimbers = `
SELECT id, first_name, last_name, email, roles, created_at
FROM members
WHERE ',' || roles || ',' LIKE '%,climber,%'
ORDER BY last_name, first_name
`

func (q *Queries) ListClimbers(ctx context.Context) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, listClimbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

const upsertGuardianLink = `
INSERT INTO guardian_links (guardian_id, member_id, verified)
VALUES (?, ?, ?)
ON CONFLICT (guardian_id, member_id) DO UPDATE SET verified = excluded.verified
`

type UpsertGuardianLinkParams struct {
	GuardianID int64
	MemberID   int64
	Verified   bool
}

func (q *Queries) UpsertGuardianLink(ctx context.Context, arg UpsertGuardianLinkParams) error {
	_, err := q.db.ExecContext(ctx, upsertGuardianLink, arg.GuardianID, arg.MemberID, arg.Verified)
	return err
}

const guardianLinkVerified = `
SELECT COUNT(*)
FROM guardian_links
WHERE guardian_id = ? AND member_id = ? AND verified = 1
`

func (q *Queries) GuardianLinkVerified(ctx context.Context, guardianID, memberID int64) (bool, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, guardianLinkVerified, guardianID, memberID).Scan(&count)
	return count > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (Member, error) {
	var m Member
	var roles string
	if err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &roles, &m.CreatedAt); err != nil {
		return Member{}, err
	}
	m.Roles = splitRoles(roles)
	return m, nil
}
