package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/booking/policy"
	appdb "github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/sessions"
	"github.com/belayhq/belay/internal/testutil"
)

func setupHandlers(t *testing.T) (*appdb.DB, *policy.Provider) {
	t.Helper()
	database := testutil.NewTestDB(t)
	pol := policy.New(database.Queries, 14, 24)

	manager = sessions.NewManager(database, pol)
	bookings = booking.NewService(database, pol, booking.StoreGuardians{Queries: database.Queries})
	queries = database.Queries
	policies = pol
	return database, pol
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/admin/sessions", HandleCreateSession)
	mux.HandleFunc("POST /api/v1/admin/sessions/bulk", HandleBulkSessions)
	mux.HandleFunc("PUT /api/v1/admin/sessions/{id}", HandleUpdateSession)
	mux.HandleFunc("DELETE /api/v1/admin/sessions/{id}", HandleDeleteSession)
	mux.HandleFunc("PATCH /api/v1/admin/sessions/{id}/payout-status", HandlePayoutStatus)
	mux.HandleFunc("GET /api/v1/admin/sessions/{id}/roster", HandleRoster)
	mux.HandleFunc("POST /api/v1/admin/sessions/{id}/bookings", HandleManualBooking)
	mux.HandleFunc("PUT /api/v1/admin/settings/booking", HandleUpdateSettings)
	return mux
}

func doRequest(mux *http.ServeMux, user *authz.AuthUser, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != nil {
		req = req.WithContext(authz.ContextWithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func adminUser() *authz.AuthUser {
	return &authz.AuthUser{ID: 1, Capabilities: []authz.Capability{authz.CapabilityAdmin}}
}

func TestHandleCreateAndUpdateSession(t *testing.T) {
	database, _ := setupHandlers(t)
	mux := newMux()

	startsAt := time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339)
	rec := doRequest(mux, adminUser(), http.MethodPost, "/api/v1/admin/sessions",
		fmt.Sprintf(`{"title":"Top Rope Basics","startsAt":%q,"durationMinutes":90,"capacity":6}`, startsAt))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Session store.Session `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Seed two bookings, then try to shrink below them.
	for i := 0; i < 2; i++ {
		member, err := database.Queries.CreateMember(context.Background(), store.CreateMemberParams{
			FirstName: "Test", LastName: "Climber",
			Email: fmt.Sprintf("m%d@example.com", i),
			Roles: []string{"climber"},
		})
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if _, err := database.Queries.CreateBooking(context.Background(), store.CreateBookingParams{
			SessionID: created.Session.ID, MemberID: member.ID, BookedByID: member.ID,
		}); err != nil {
			t.Fatalf("create booking: %v", err)
		}
	}

	rec = doRequest(mux, adminUser(), http.MethodPut,
		fmt.Sprintf("/api/v1/admin/sessions/%d", created.Session.ID), `{"capacity":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("capacity reduction status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(mux, adminUser(), http.MethodPut,
		fmt.Sprintf("/api/v1/admin/sessions/%d", created.Session.ID), `{"capacity":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("capacity increase status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePayoutStatusValidation(t *testing.T) {
	_, _ = setupHandlers(t)
	mux := newMux()

	startsAt := time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339)
	rec := doRequest(mux, adminUser(), http.MethodPost, "/api/v1/admin/sessions",
		fmt.Sprintf(`{"title":"Coached","startsAt":%q,"durationMinutes":60,"capacity":6}`, startsAt))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created struct {
		Session store.Session `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(mux, adminUser(), http.MethodPatch,
		fmt.Sprintf("/api/v1/admin/sessions/%d/payout-status", created.Session.ID), `{"payoutStatus":"paid"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("payout status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(mux, adminUser(), http.MethodPatch,
		fmt.Sprintf("/api/v1/admin/sessions/%d/payout-status", created.Session.ID), `{"payoutStatus":"pending"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid payout status = %d, want 400", rec.Code)
	}

	rec = doRequest(mux, adminUser(), http.MethodPatch,
		"/api/v1/admin/sessions/424242/payout-status", `{"payoutStatus":"paid"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}
}

func TestHandleUpdateSettingsRefreshesPolicy(t *testing.T) {
	_, pol := setupHandlers(t)
	mux := newMux()

	rec := doRequest(mux, adminUser(), http.MethodPut, "/api/v1/admin/settings/booking",
		`{"bookingHorizonDays":7,"cancellationWindowHours":48}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if got := pol.Horizon(); got != 7*24*time.Hour {
		t.Errorf("horizon = %v, want 168h", got)
	}
	if got := pol.CancellationWindow(); got != 48*time.Hour {
		t.Errorf("cancellation window = %v, want 48h", got)
	}

	rec = doRequest(mux, adminUser(), http.MethodPut, "/api/v1/admin/settings/booking",
		`{"bookingHorizonDays":0,"cancellationWindowHours":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid settings status = %d, want 400", rec.Code)
	}
}

func TestHandleManualBooking(t *testing.T) {
	database, _ := setupHandlers(t)
	mux := newMux()

	climber, err := database.Queries.CreateMember(context.Background(), store.CreateMemberParams{
		FirstName: "Front", LastName: "Desk", Email: "walkin@example.com", Roles: []string{"climber"},
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	session, err := database.Queries.CreateSession(context.Background(), store.CreateSessionParams{
		Title:           "Walk-in Session",
		StartsAt:        time.Now().UTC().Add(48 * time.Hour),
		DurationMinutes: 60,
		Capacity:        4,
		Status:          store.SessionStatusActive,
		PayoutStatus:    store.PayoutStatusUnpaid,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := doRequest(mux, adminUser(), http.MethodPost,
		fmt.Sprintf("/api/v1/admin/sessions/%d/bookings", session.ID),
		fmt.Sprintf(`{"climberId":%d}`, climber.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Same climber again: duplicate conflict.
	rec = doRequest(mux, adminUser(), http.MethodPost,
		fmt.Sprintf("/api/v1/admin/sessions/%d/bookings", session.ID),
		fmt.Sprintf(`{"climberId":%d}`, climber.ID))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}
}

func TestHandleDeleteSessionCleansBookings(t *testing.T) {
	database, _ := setupHandlers(t)
	mux := newMux()

	session, err := database.Queries.CreateSession(context.Background(), store.CreateSessionParams{
		Title:           "Doomed",
		StartsAt:        time.Now().UTC().Add(48 * time.Hour),
		DurationMinutes: 60,
		Capacity:        4,
		Status:          store.SessionStatusActive,
		PayoutStatus:    store.PayoutStatusUnpaid,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	member, err := database.Queries.CreateMember(context.Background(), store.CreateMemberParams{
		FirstName: "Test", LastName: "Climber", Email: "c@example.com", Roles: []string{"climber"},
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := database.Queries.CreateBooking(context.Background(), store.CreateBookingParams{
		SessionID: session.ID, MemberID: member.ID, BookedByID: member.ID,
	}); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	rec := doRequest(mux, adminUser(), http.MethodDelete, fmt.Sprintf("/api/v1/admin/sessions/%d", session.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		BookingsDeleted int64 `json:"bookingsDeleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BookingsDeleted != 1 {
		t.Errorf("bookingsDeleted = %d, want 1", resp.BookingsDeleted)
	}

	rec = doRequest(mux, adminUser(), http.MethodDelete, fmt.Sprintf("/api/v1/admin/sessions/%d", session.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}
}
