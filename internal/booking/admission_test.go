package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/booking/policy"
	appdb "github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/schedule"
	"github.com/belayhq/belay/internal/testutil"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *appdb.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)
	pol := policy.New(database.Queries, 14, 24)
	svc := NewService(database, pol, StoreGuardians{Queries: database.Queries})
	svc.now = func() time.Time { return testNow }
	return svc, database
}

func createMember(t *testing.T, database *appdb.DB, email string, roles ...string) store.Member {
	t.Helper()
	member, err := database.Queries.CreateMember(context.Background(), store.CreateMemberParams{
		FirstName: "Test",
		LastName:  "Member",
		Email:     email,
		Roles:     roles,
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return member
}

func createSession(t *testing.T, database *appdb.DB, startsAt time.Time, capacity int64) store.Session {
	t.Helper()
	session, err := database.Queries.CreateSession(context.Background(), store.CreateSessionParams{
		Title:           "Evening Bouldering",
		StartsAt:        startsAt,
		DurationMinutes: 90,
		Capacity:        capacity,
		Status:          store.SessionStatusActive,
		PayoutStatus:    store.PayoutStatusUnpaid,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func asUser(m store.Member) *authz.AuthUser {
	return &authz.AuthUser{ID: m.ID, Capabilities: authz.ParseCapabilities(m.Roles)}
}

func TestAdmitSuccess(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	booked, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if booked.SessionID != session.ID || booked.MemberID != climber.ID {
		t.Errorf("booking references wrong rows: %+v", booked)
	}
	if booked.Status != store.BookingStatusBooked {
		t.Errorf("status = %q, want booked", booked.Status)
	}
	if booked.BookedByID != climber.ID {
		t.Errorf("booked_by = %d, want %d", booked.BookedByID, climber.ID)
	}
}

func TestAdmitDuplicateBooking(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	if _, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber)); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	_, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	assertRejection(t, err, KindDuplicateBooking)
}

func TestAdmitCapacityExceeded(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 1)

	first := createMember(t, database, "a@example.com", "climber")
	second := createMember(t, database, "b@example.com", "climber")

	if _, err := svc.Admit(context.Background(), session.ID, first.ID, asUser(first)); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	_, err := svc.Admit(context.Background(), session.ID, second.ID, asUser(second))
	assertRejection(t, err, KindCapacityExceeded)
}

func TestAdmitConcurrentContention(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 1)

	const attempts = 10
	climbers := make([]store.Member, attempts)
	for i := range climbers {
		climbers[i] = createMember(t, database, fmt.Sprintf("m%d@example.com", i), "climber")
	}

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := range climbers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Admit(context.Background(), session.ID, climbers[i].ID, asUser(climbers[i]))
		}(i)
	}
	wg.Wait()

	var succeeded, capacityRejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			rejection, ok := AsRejection(err)
			if !ok {
				t.Fatalf("unexpected infrastructure error: %v", err)
			}
			if rejection.Kind != KindCapacityExceeded {
				t.Fatalf("unexpected rejection kind %s", rejection.Kind)
			}
			capacityRejected++
		}
	}
	if succeeded != 1 || capacityRejected != attempts-1 {
		t.Errorf("got %d successes and %d capacity rejections, want 1 and %d", succeeded, capacityRejected, attempts-1)
	}

	count, err := database.Queries.CountActiveBookings(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("count bookings: %v", err)
	}
	if count != 1 {
		t.Errorf("active bookings = %d, want 1", count)
	}
}

func TestAdmitOutsideHorizon(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")

	farOut := createSession(t, database, testNow.Add(30*24*time.Hour), 8)
	_, err := svc.Admit(context.Background(), farOut.ID, climber.ID, asUser(climber))
	assertRejection(t, err, KindOutsideBookingWindow)

	past := createSession(t, database, testNow.Add(-2*time.Hour), 8)
	_, err = svc.Admit(context.Background(), past.ID, climber.ID, asUser(climber))
	assertRejection(t, err, KindOutsideBookingWindow)
}

func TestAdmitCancelledSessionHidden(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	if _, err := database.Queries.UpdateSession(context.Background(), store.UpdateSessionParams{
		ID:              session.ID,
		Title:           session.Title,
		StartsAt:        session.StartsAt,
		DurationMinutes: session.DurationMinutes,
		Capacity:        session.Capacity,
		Status:          store.SessionStatusCancelled,
	}); err != nil {
		t.Fatalf("cancel session: %v", err)
	}

	_, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	assertRejection(t, err, KindNotFound)
}

func TestAdmitOwnershipRules(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	guardian := createMember(t, database, "parent@example.com", "climber")
	child := createMember(t, database, "kid@example.com", "climber")
	stranger := createMember(t, database, "stranger@example.com", "climber")
	admin := createMember(t, database, "admin@example.com", "admin")

	// No link yet: booking for another member is refused.
	_, err := svc.Admit(context.Background(), child.ID, 0, nil)
	assertRejection(t, err, KindUnauthorized)
	_, err = svc.Admit(context.Background(), session.ID, child.ID, asUser(stranger))
	assertRejection(t, err, KindUnauthorized)

	// An unverified link is as good as none.
	if err := database.Queries.UpsertGuardianLink(context.Background(), store.UpsertGuardianLinkParams{
		GuardianID: guardian.ID, MemberID: child.ID, Verified: false,
	}); err != nil {
		t.Fatalf("link: %v", err)
	}
	_, err = svc.Admit(context.Background(), session.ID, child.ID, asUser(guardian))
	assertRejection(t, err, KindUnauthorized)

	// Verified link admits.
	if err := database.Queries.UpsertGuardianLink(context.Background(), store.UpsertGuardianLinkParams{
		GuardianID: guardian.ID, MemberID: child.ID, Verified: true,
	}); err != nil {
		t.Fatalf("verify link: %v", err)
	}
	if _, err := svc.Admit(context.Background(), session.ID, child.ID, asUser(guardian)); err != nil {
		t.Fatalf("guardian admit: %v", err)
	}

	// Staff can book anyone.
	if _, err := svc.Admit(context.Background(), session.ID, stranger.ID, asUser(admin)); err != nil {
		t.Fatalf("admin admit: %v", err)
	}
}

func TestAdmitTargetMustBeClimber(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)
	admin := createMember(t, database, "admin@example.com", "admin")
	coach := createMember(t, database, "coach@example.com", "coach")

	_, err := svc.Admit(context.Background(), session.ID, coach.ID, asUser(admin))
	assertRejection(t, err, KindNotFound)

	_, err = svc.Admit(context.Background(), session.ID, 99999, asUser(admin))
	assertRejection(t, err, KindNotFound)
}

func TestAdmitManyIsolation(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)
	admin := createMember(t, database, "admin@example.com", "admin")

	alreadyBooked := createMember(t, database, "a@example.com", "climber")
	fresh := createMember(t, database, "b@example.com", "climber")

	if _, err := svc.Admit(context.Background(), session.ID, alreadyBooked.ID, asUser(admin)); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	result, err := svc.AdmitMany(context.Background(), session.ID, []int64{alreadyBooked.ID, fresh.ID}, asUser(admin))
	if err != nil {
		t.Fatalf("admit many: %v", err)
	}

	if len(result.Successful) != 1 || result.Successful[0].MemberID != fresh.ID {
		t.Errorf("successful = %+v, want only member %d", result.Successful, fresh.ID)
	}
	if len(result.Failed) != 1 || result.Failed[0].MemberID != alreadyBooked.ID {
		t.Fatalf("failed = %+v, want only member %d", result.Failed, alreadyBooked.ID)
	}
	if result.Failed[0].Kind != KindDuplicateBooking {
		t.Errorf("failure kind = %s, want DuplicateBooking", result.Failed[0].Kind)
	}
}

func TestAdmitManyMissingSessionFailsAllTargets(t *testing.T) {
	svc, database := newTestService(t)
	admin := createMember(t, database, "admin@example.com", "admin")
	a := createMember(t, database, "a@example.com", "climber")
	b := createMember(t, database, "b@example.com", "climber")

	result, err := svc.AdmitMany(context.Background(), 424242, []int64{a.ID, b.ID}, asUser(admin))
	if err != nil {
		t.Fatalf("admit many: %v", err)
	}
	if len(result.Successful) != 0 || len(result.Failed) != 2 {
		t.Fatalf("result = %+v, want 0 successful and 2 failed", result)
	}
	for _, f := range result.Failed {
		if f.Kind != KindNotFound {
			t.Errorf("failure kind = %s, want NotFound", f.Kind)
		}
	}
}

func TestAdmitRecurring(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")

	// testNow is Monday 2026-06-01 09:00 UTC. Sessions exist for the next
	// two Thursdays at 18:00 but not the second Monday.
	thursday1 := createSession(t, database, time.Date(2026, 6, 4, 18, 0, 0, 0, time.UTC), 8)
	thursday2 := createSession(t, database, time.Date(2026, 6, 11, 18, 0, 0, 0, time.UTC), 8)
	monday1 := createSession(t, database, time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC), 8)

	result, err := svc.AdmitRecurring(context.Background(), []int64{climber.ID}, RecurringPattern{
		Days:            []schedule.Weekday{schedule.Monday, schedule.Thursday},
		StartDate:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		TimeOfDay:       schedule.TimeOfDay{Hour: 18, Minute: 0},
		DurationMinutes: 90,
	}, asUser(climber))
	if err != nil {
		t.Fatalf("admit recurring: %v", err)
	}

	// Monday June 1 at 18:00 is in the future and has a session; Thursday
	// June 4 and 11 have sessions; Monday June 8 has none.
	if len(result.Successful) != 3 {
		t.Fatalf("successful = %+v, want 3 entries", result.Successful)
	}
	gotSessions := map[int64]bool{}
	for _, s := range result.Successful {
		gotSessions[s.SessionID] = true
	}
	for _, want := range []store.Session{monday1, thursday1, thursday2} {
		if !gotSessions[want.ID] {
			t.Errorf("expected booking against session %d (%v)", want.ID, want.StartsAt)
		}
	}

	if len(result.Failed) != 1 {
		t.Fatalf("failed = %+v, want 1 entry for the sessionless Monday", result.Failed)
	}
	if result.Failed[0].Kind != KindNotFound {
		t.Errorf("failure kind = %s, want NotFound", result.Failed[0].Kind)
	}
}

func TestCancelIdempotence(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	booked, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), booked.ID, asUser(climber))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != store.BookingStatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled booking = %+v, want cancelled status with timestamp", cancelled)
	}

	_, err = svc.Cancel(context.Background(), booked.ID, asUser(climber))
	assertRejection(t, err, KindAlreadyCancelled)

	// The cancellation timestamp is set exactly once.
	reloaded, err := database.Queries.GetBooking(context.Background(), booked.ID)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.CancelledAt == nil || !reloaded.CancelledAt.Equal(*cancelled.CancelledAt) {
		t.Errorf("cancelled_at changed: %v vs %v", reloaded.CancelledAt, cancelled.CancelledAt)
	}
}

func TestCancelFreesCapacity(t *testing.T) {
	svc, database := newTestService(t)
	session := createSession(t, database, testNow.Add(48*time.Hour), 1)
	first := createMember(t, database, "a@example.com", "climber")
	second := createMember(t, database, "b@example.com", "climber")

	booked, err := svc.Admit(context.Background(), session.ID, first.ID, asUser(first))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), booked.ID, asUser(first)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Admit(context.Background(), session.ID, second.ID, asUser(second)); err != nil {
		t.Fatalf("admit after cancel: %v", err)
	}
}

func TestCancelWindowClosed(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	admin := createMember(t, database, "admin@example.com", "admin")

	// Starts in 2 hours; the 24 hour window is already shut.
	session := createSession(t, database, testNow.Add(2*time.Hour), 8)
	booked, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	_, err = svc.Cancel(context.Background(), booked.ID, asUser(climber))
	assertRejection(t, err, KindCancellationWindowClosed)

	// Admin overrides the cutoff.
	if _, err := svc.Cancel(context.Background(), booked.ID, asUser(admin)); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestCancelNotOwned(t *testing.T) {
	svc, database := newTestService(t)
	climber := createMember(t, database, "c@example.com", "climber")
	other := createMember(t, database, "o@example.com", "climber")
	session := createSession(t, database, testNow.Add(48*time.Hour), 8)

	booked, err := svc.Admit(context.Background(), session.ID, climber.ID, asUser(climber))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	_, err = svc.Cancel(context.Background(), booked.ID, asUser(other))
	assertRejection(t, err, KindNotFound)

	_, err = svc.Cancel(context.Background(), 99999, asUser(climber))
	assertRejection(t, err, KindNotFound)
}

func assertRejection(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s rejection, got nil", want)
	}
	rejection, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected %s rejection, got %v", want, err)
	}
	if rejection.Kind != want {
		t.Fatalf("rejection kind = %s, want %s", rejection.Kind, want)
	}
}

// Guards against accidentally wrapping rejections in a way errors.As can't
// unwrap.
func TestAsRejectionThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", reject(KindCapacityExceeded, "session is full"))
	rejection, ok := AsRejection(err)
	if !ok || rejection.Kind != KindCapacityExceeded {
		t.Fatalf("AsRejection failed through wrapping: %v", err)
	}
	if !errors.As(err, &rejection) {
		t.Fatal("errors.As failed")
	}
}
