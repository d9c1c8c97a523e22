package store

import (
	"strings"
	"time"
)

const (
	SessionStatusActive    = "active"
	SessionStatusCancelled = "cancelled"

	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"

	PayoutStatusUnpaid = "unpaid"
	PayoutStatusPaid   = "paid"
)

type Member struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// FullName joins first and last name for summary rows.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

type Session struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	StartsAt          time.Time `json:"startsAt"`
	DurationMinutes   int64     `json:"durationMinutes"`
	Capacity          int64     `json:"capacity"`
	Status            string    `json:"status"`
	PayoutAmountCents int64     `json:"payoutAmountCents"`
	PayoutStatus      string    `json:"payoutStatus"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Booking struct {
	ID          int64      `json:"id"`
	SessionID   int64      `json:"sessionId"`
	MemberID    int64      `json:"memberId"`
	BookedByID  int64      `json:"bookedById"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

type Settings struct {
	BookingHorizonDays      int64     `json:"bookingHorizonDays"`
	CancellationWindowHours int64     `json:"cancellationWindowHours"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// RosterRow is one booked attendee with the member and booker attached.
type RosterRow struct {
	BookingID       int64     `json:"bookingId"`
	MemberID        int64     `json:"memberId"`
	MemberFirstName string    `json:"memberFirstName"`
	MemberLastName  string    `json:"memberLastName"`
	BookedByID      int64     `json:"bookedById"`
	BookedByName    string    `json:"bookedByName"`
	BookedByEmail   string    `json:"bookedByEmail"`
	CreatedAt       time.Time `json:"createdAt"`
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
