// internal/api/middleware.go
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/api/apiutil"
	"github.com/belayhq/belay/internal/api/authz"
	"github.com/belayhq/belay/internal/db/store"
)

type Middleware func(http.Handler) http.Handler

func ChainMiddleware(h http.Handler, middleware ...Middleware) http.Handler {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response wrapper to capture status code
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Str("request_id", r.Context().Value("request_id").(string)).
			Msg("Request completed")
	})
}

func WithRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger := log.Ctx(r.Context())
				// Log the full stack trace
				stack := debug.Stack()
				logger.Error().
					Interface("error", err).
					Str("stack", string(stack)).
					Msg("Panic recovered")

				apiutil.WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		// Create a logger with the request ID
		logger := log.With().Str("request_id", requestID).Logger()

		// Add both the request ID and logger to context
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		ctx = logger.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity resolves the caller from the X-Member-ID header the edge
// gateway sets after verifying the session token. A missing or unknown
// header leaves the request anonymous; capability guards reject it later.
func WithIdentity(queries *store.Queries) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("X-Member-ID"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			memberID, err := apiutil.ParsePositiveInt64Field(raw, "X-Member-ID")
			if err != nil {
				log.Ctx(r.Context()).Warn().Str("header", raw).Msg("Malformed identity header")
				next.ServeHTTP(w, r)
				return
			}

			queryCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			member, err := queries.GetMember(queryCtx, memberID)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					log.Ctx(r.Context()).Error().Err(err).Int64("member_id", memberID).Msg("Failed to resolve identity")
				}
				next.ServeHTTP(w, r)
				return
			}

			user := &authz.AuthUser{
				ID:           member.ID,
				Capabilities: authz.ParseCapabilities(member.Roles),
			}
			next.ServeHTTP(w, r.WithContext(authz.ContextWithUser(r.Context(), user)))
		})
	}
}

// WithCapability guards a route group behind one of the given
// capabilities. Anonymous callers get 401, authenticated callers without
// the capability get 403, both in the standard envelope.
func WithCapability(capabilities ...authz.Capability) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.Ctx(r.Context())
			user := authz.UserFromContext(r.Context())
			if err := authz.RequireCapability(r.Context(), capabilities...); err != nil {
				switch {
				case errors.Is(err, authz.ErrUnauthenticated):
					logger.Warn().Str("path", r.URL.Path).Msg("Access denied: unauthenticated")
					apiutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
				case errors.Is(err, authz.ErrForbidden):
					logEvent := logger.Warn().Str("path", r.URL.Path)
					if user != nil {
						logEvent = logEvent.Int64("member_id", user.ID)
					}
					logEvent.Msg("Access denied: forbidden")
					apiutil.WriteError(w, http.StatusForbidden, "Insufficient permissions")
				default:
					logger.Error().Err(err).Msg("Access denied: error")
					apiutil.WriteError(w, http.StatusInternalServerError, "Failed to authorize request")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wrapper to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
