package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/booking/policy"
	"github.com/belayhq/belay/internal/db"
	"github.com/belayhq/belay/internal/db/store"
)

// RegisterPolicyRefreshJob reloads the booking-horizon settings
// periodically, so a settings write applied directly to the database (or
// by another replica) converges without a restart. Administrative writes
// through the API refresh immediately; this is the slow path.
func RegisterPolicyRefreshJob(provider *policy.Provider) error {
	if provider == nil {
		return fmt.Errorf("policy refresh job requires provider")
	}

	jobName := "booking_policy_refresh"
	cronExpr := "*/5 * * * *"
	jobLogger := log.With().
		Str("component", "policy_refresh_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if err := provider.Refresh(ctx); err != nil {
			jobLogger.Error().Err(err).Msg("Failed to refresh booking policy")
		}
	})
	if err != nil {
		return fmt.Errorf("add policy refresh job: %w", err)
	}

	jobLogger.Info().Msg("Policy refresh job registered")
	return nil
}

// RegisterScheduleDigestJob logs a morning digest of the day's sessions
// and their occupancy. Operational visibility for the front desk; nothing
// downstream consumes it.
func RegisterScheduleDigestJob(database *db.DB) error {
	if database == nil {
		return fmt.Errorf("schedule digest job requires database")
	}

	jobName := "daily_schedule_digest"
	cronExpr := "0 6 * * *"
	jobLogger := log.With().
		Str("component", "schedule_digest_job").
		Str("job_name", jobName).
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob(jobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		now := time.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		sessions, err := database.Queries.ListSessionsByRange(ctx, store.ListSessionsByRangeParams{
			After: dayStart,
			Until: dayStart.AddDate(0, 0, 1),
		})
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to load sessions for digest")
			return
		}

		var totalBooked int64
		for _, session := range sessions {
			booked, err := database.Queries.CountActiveBookings(ctx, session.ID)
			if err != nil {
				jobLogger.Error().Err(err).Int64("session_id", session.ID).Msg("Failed to count bookings for digest")
				continue
			}
			totalBooked += booked
			jobLogger.Info().
				Int64("session_id", session.ID).
				Str("title", session.Title).
				Time("starts_at", session.StartsAt).
				Int64("booked", booked).
				Int64("capacity", session.Capacity).
				Msg("Session digest")
		}

		jobLogger.Info().
			Int("sessions", len(sessions)).
			Int64("total_booked", totalBooked).
			Msg("Daily schedule digest complete")
	})
	if err != nil {
		return fmt.Errorf("add schedule digest job: %w", err)
	}

	jobLogger.Info().Msg("Schedule digest job registered")
	return nil
}
