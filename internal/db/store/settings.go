package store

import (
	"context"
)

const getSettings = `
SELECT booking_horizon_days, cancellation_window_hours, updated_at
FROM settings
WHERE id = 1
`

func (q *Queries) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := q.db.QueryRowContext(ctx, getSettings).Scan(
		&s.BookingHorizonDays,
		&s.CancellationWindowHours,
		&s.UpdatedAt,
	)
	return s, err
}

const updateSettings = `
UPDATE settings
SET booking_horizon_days = ?, cancellation_window_hours = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = 1
RETURNING booking_horizon_days, cancellation_window_hours, updated_at
`

type UpdateSettingsParams struct {
	BookingHorizonDays      int64
	CancellationWindowHours int64
}

func (q *Queries) UpdateSettings(ctx context.Context, arg UpdateSettingsParams) (Settings, error) {
	var s Settings
	err := q.db.QueryRowContext(ctx, updateSettings, arg.BookingHorizonDays, arg.CancellationWindowHours).Scan(
		&s.BookingHorizonDays,
		&s.CancellationWindowHours,
		&s.UpdatedAt,
	)
	return s, err
}
