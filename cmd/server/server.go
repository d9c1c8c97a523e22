// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/belayhq/belay/internal/api"
	"github.com/belayhq/belay/internal/api/admin"
	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/api/bookings"
	apisessions "github.com/belayhq/belay/internal/api/sessions"
	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/booking/policy"
	"github.com/belayhq/belay/internal/config"
	"github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/ratelimit"
	"github.com/belayhq/belay/internal/sessions"
)

func newServer(
	cfg *config.Config,
	database *db.DB,
	bookingService *booking.Service,
	sessionManager *sessions.Manager,
	policyProvider *policy.Provider,
) *http.Server {
	limiter := ratelimit.New(nil)

	bookings.InitHandlers(bookingService, database.Queries, limiter)
	apisessions.InitHandlers(sessionManager)
	admin.InitHandlers(sessionManager, bookingService, database.Queries, policyProvider)

	router := http.NewServeMux()
	registerRoutes(router, database)

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithIdentity(database.Queries),
		api.WithRequestID,
	)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, database *db.DB) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Public session reads
	mux.HandleFunc("GET /api/v1/sessions", apisessions.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", apisessions.HandleGet)

	// Booking routes (authentication enforced in handlers)
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleCreate)
	mux.HandleFunc("POST /api/v1/bookings/recurring", bookings.HandleRecurring)
	mux.HandleFunc("GET /api/v1/bookings", bookings.HandleList)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", bookings.HandleCancel)

	// Coach routes
	coachOnly := api.WithCapability(authz.CapabilityCoach, authz.CapabilityAdmin)
	mux.Handle("GET /api/v1/coaches/me/sessions", coachOnly(http.HandlerFunc(apisessions.HandleCoachSessions)))
	mux.Handle("GET /api/v1/coaches/me/sessions/{id}/roster", coachOnly(http.HandlerFunc(apisessions.HandleCoachRoster)))

	// Admin routes
	adminOnly := api.WithCapability(authz.CapabilityAdmin)
	mux.Handle("POST /api/v1/admin/sessions", adminOnly(http.HandlerFunc(admin.HandleCreateSession)))
	mux.Handle("POST /api/v1/admin/sessions/bulk", adminOnly(http.HandlerFunc(admin.HandleBulkSessions)))
	mux.Handle("PUT /api/v1/admin/sessions/{id}", adminOnly(http.HandlerFunc(admin.HandleUpdateSession)))
	mux.Handle("DELETE /api/v1/admin/sessions/{id}", adminOnly(http.HandlerFunc(admin.HandleDeleteSession)))
	mux.Handle("PATCH /api/v1/admin/sessions/{id}/payout-status", adminOnly(http.HandlerFunc(admin.HandlePayoutStatus)))
	mux.Handle("GET /api/v1/admin/sessions/{id}/roster", adminOnly(http.HandlerFunc(admin.HandleRoster)))
	mux.Handle("POST /api/v1/admin/sessions/{id}/bookings", adminOnly(http.HandlerFunc(admin.HandleManualBooking)))
	mux.Handle("PUT /api/v1/admin/settings/booking", adminOnly(http.HandlerFunc(admin.HandleUpdateSettings)))
}
