// internal/api/sessions/handlers.go
package sessions

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/belayhq/belay/internal/api/apiutil"
	"github.com/belayhq/belay/internal/api/authz"
	sessionsvc "github.com/belayhq/belay/internal/sessions"
)

var (
	manager  *sessionsvc.Manager
	initOnce sync.Once
)

const queryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(m *sessionsvc.Manager) {
	if m == nil {
		return
	}
	initOnce.Do(func() {
		manager = m
	})
}

// GET /api/v1/sessions
func HandleList(w http.ResponseWriter, r *http.Request) {
	startDate, err := apiutil.ParseOptionalDateQuery(r, "startDate")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}
	endDate, err := apiutil.ParseOptionalDateQuery(r, "endDate")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	views, err := manager.Available(ctx, sessionsvc.ListFilters{
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// GET /api/v1/sessions/{id}
func HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	view, err := manager.Get(ctx, sessionID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"session": view})
}

// GET /api/v1/coaches/me/sessions
func HandleCoachSessions(w http.ResponseWriter, r *http.Request) {
	requester := authz.UserFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	views, err := manager.TodayForCoach(ctx, requester.ID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// GET /api/v1/coaches/me/sessions/{id}/roster
func HandleCoachRoster(w http.ResponseWriter, r *http.Request) {
	sessionID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	roster, err := manager.Roster(ctx, sessionID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"roster": roster})
}
