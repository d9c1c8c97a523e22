// Package schedule holds the calendar vocabulary shared by recurring
// bookings and bulk session generation: a closed weekday type, a
// time-of-day value, and the expansion of a weekly pattern over a date
// range.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is a day of week with Sunday = 0, matching both time.Weekday and
// the wire format. Clients send either integers (0-6) or lowercase day
// names; both normalize here, at the boundary, and nothing past this point
// sees the raw value.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = map[string]Weekday{
	"sunday":    Sunday,
	"monday":    Monday,
	"tuesday":   Tuesday,
	"wednesday": Wednesday,
	"thursday":  Thursday,
	"friday":    Friday,
	"saturday":  Saturday,
}

func (w Weekday) String() string {
	for name, day := range weekdayNames {
		if day == w {
			return name
		}
	}
	return fmt.Sprintf("weekday(%d)", int(w))
}

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

// ParseWeekday accepts a day name ("monday") or a digit ("1").
func ParseWeekday(value string) (Weekday, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if day, ok := weekdayNames[value]; ok {
		return day, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		day := Weekday(n)
		if day.Valid() {
			return day, nil
		}
	}
	return 0, fmt.Errorf("invalid day of week: %q", value)
}

// UnmarshalJSON accepts both wire forms: a JSON number 0-6 or a quoted day
// name.
func (w *Weekday) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		day := Weekday(n)
		if !day.Valid() {
			return fmt.Errorf("day of week out of range: %d", n)
		}
		*w = day
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("day of week must be a number or a name")
	}
	day, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*w = day
	return nil
}

func (w Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(w))
}

// Matches reports whether t falls on this weekday.
func (w Weekday) Matches(t time.Time) bool {
	return time.Weekday(w) == t.Weekday()
}
