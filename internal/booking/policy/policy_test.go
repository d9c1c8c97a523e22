package policy

import (
	"context"
	"testing"
	"time"

	"github.com/belayhq/belay/internal/db/store"
	"github.com/belayhq/belay/internal/testutil"
)

func TestWithinHorizon(t *testing.T) {
	p := New(nil, 14, 24)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"tomorrow", now.Add(24 * time.Hour), true},
		{"edge of horizon", now.Add(14 * 24 * time.Hour), true},
		{"past horizon", now.Add(14*24*time.Hour + time.Minute), false},
		{"in the past", now.Add(-time.Hour), false},
		{"exactly now", now, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.WithinHorizon(tc.start, now); got != tc.want {
				t.Errorf("WithinHorizon(%v) = %v, want %v", tc.start, got, tc.want)
			}
		})
	}
}

func TestCancellationOpen(t *testing.T) {
	p := New(nil, 14, 24)
	start := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	if !p.CancellationOpen(start, start.Add(-25*time.Hour)) {
		t.Error("expected cancellation open 25h before start")
	}
	if p.CancellationOpen(start, start.Add(-24*time.Hour)) {
		t.Error("expected cancellation closed exactly at the cutoff")
	}
	if p.CancellationOpen(start, start.Add(-time.Hour)) {
		t.Error("expected cancellation closed 1h before start")
	}
}

func TestRefreshPicksUpSettingsWrite(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	p := New(database.Queries, 14, 24)

	if _, err := database.Queries.UpdateSettings(ctx, store.UpdateSettingsParams{
		BookingHorizonDays:      7,
		CancellationWindowHours: 48,
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	// Cache still holds the seeded values until Refresh runs.
	if got := p.Horizon(); got != 14*24*time.Hour {
		t.Fatalf("pre-refresh horizon = %v, want 336h", got)
	}

	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := p.Horizon(); got != 7*24*time.Hour {
		t.Errorf("horizon = %v, want 168h", got)
	}
	if got := p.CancellationWindow(); got != 48*time.Hour {
		t.Errorf("cancellation window = %v, want 48h", got)
	}
}
