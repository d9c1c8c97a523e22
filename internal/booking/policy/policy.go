// Package policy provides the booking horizon gate: how far ahead a
// session is bookable and how close to its start a booking may still be
// cancelled. Values live in the settings table, are cached here, and
// change only through Refresh — there is no ambient global to mutate.
package policy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/db/store"
)

// Provider caches the two policy durations. It is safe for concurrent use;
// reads are lock-cheap and Refresh swaps both values atomically.
type Provider struct {
	queries *store.Queries

	mu      sync.RWMutex
	horizon time.Duration
	window  time.Duration
}

// New seeds the provider with fallback durations used until the first
// Refresh succeeds.
func New(queries *store.Queries, horizonDays, cancellationWindowHours int64) *Provider {
	return &Provider{
		queries: queries,
		horizon: time.Duration(horizonDays) * 24 * time.Hour,
		window:  time.Duration(cancellationWindowHours) * time.Hour,
	}
}

// Refresh reloads the cached durations from the settings table. It is
// called at startup, after an administrative settings write, and
// periodically by the scheduler so long-running processes converge.
func (p *Provider) Refresh(ctx context.Context) error {
	settings, err := p.queries.GetSettings(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.horizon = time.Duration(settings.BookingHorizonDays) * 24 * time.Hour
	p.window = time.Duration(settings.CancellationWindowHours) * time.Hour
	p.mu.Unlock()

	log.Debug().
		Int64("horizon_days", settings.BookingHorizonDays).
		Int64("cancellation_window_hours", settings.CancellationWindowHours).
		Msg("Booking policy refreshed")
	return nil
}

// Horizon returns how far ahead of now a session is bookable.
func (p *Provider) Horizon() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.horizon
}

// CancellationWindow returns the cutoff before session start after which
// cancellation is disallowed.
func (p *Provider) CancellationWindow() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.window
}

// WithinHorizon reports whether a session starting at start is bookable at
// now: strictly in the future and no further out than the horizon.
func (p *Provider) WithinHorizon(start, now time.Time) bool {
	return start.After(now) && !start.After(now.Add(p.Horizon()))
}

// CancellationOpen reports whether a booking against a session starting at
// start may still be cancelled at now.
func (p *Provider) CancellationOpen(start, now time.Time) bool {
	return now.Before(start.Add(-p.CancellationWindow()))
}
