package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock "HH:MM" value.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(value, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: out of range", value)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be an HH:MM string")
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// On anchors the wall-clock time to the given date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// Expand walks every calendar day from startDate through endDate inclusive
// and returns the start timestamps whose weekday is in days, each at the
// given wall-clock time. Callers filter past occurrences themselves; both
// the recurring booking path and bulk generation do, but with different
// cutoff semantics.
func Expand(days []Weekday, startDate, endDate time.Time, at TimeOfDay) []time.Time {
	if len(days) == 0 || endDate.Before(startDate) {
		return nil
	}

	wanted := make(map[Weekday]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}

	day := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, startDate.Location())
	end := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 0, 0, 0, 0, endDate.Location())

	var occurrences []time.Time
	for !day.After(end) {
		if wanted[Weekday(day.Weekday())] {
			occurrences = append(occurrences, at.On(day))
		}
		day = day.AddDate(0, 0, 1)
	}
	return occurrences
}
