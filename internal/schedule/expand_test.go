package schedule

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseWeekdayForms(t *testing.T) {
	cases := []struct {
		in   string
		want Weekday
	}{
		{"0", Sunday},
		{"6", Saturday},
		{"monday", Monday},
		{"Thursday", Thursday},
		{" friday ", Friday},
	}
	for _, tc := range cases {
		got, err := ParseWeekday(tc.in)
		if err != nil {
			t.Fatalf("ParseWeekday(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "7", "-1", "funday"} {
		if _, err := ParseWeekday(bad); err == nil {
			t.Errorf("ParseWeekday(%q) succeeded, want error", bad)
		}
	}
}

func TestWeekdayUnmarshalBothForms(t *testing.T) {
	var fromNumbers []Weekday
	if err := json.Unmarshal([]byte(`[1,4]`), &fromNumbers); err != nil {
		t.Fatalf("unmarshal numbers: %v", err)
	}
	var fromNames []Weekday
	if err := json.Unmarshal([]byte(`["Monday","Thursday"]`), &fromNames); err != nil {
		t.Fatalf("unmarshal names: %v", err)
	}

	if len(fromNumbers) != 2 || len(fromNames) != 2 {
		t.Fatalf("expected 2 weekdays from each form, got %d and %d", len(fromNumbers), len(fromNames))
	}
	for i := range fromNumbers {
		if fromNumbers[i] != fromNames[i] {
			t.Errorf("form mismatch at %d: %v vs %v", i, fromNumbers[i], fromNames[i])
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("17:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	if tod.Hour != 17 || tod.Minute != 30 {
		t.Errorf("got %02d:%02d, want 17:30", tod.Hour, tod.Minute)
	}

	for _, bad := range []string{"", "24:00", "12:60", "noon", "9"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q) succeeded, want error", bad)
		}
	}
}

func TestExpandTwoWeekPattern(t *testing.T) {
	// Monday 2026-03-02 through Sunday 2026-03-15: two full weeks.
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	at := TimeOfDay{Hour: 18, Minute: 0}

	got := Expand([]Weekday{Monday, Thursday}, start, end, at)

	if len(got) != 4 {
		t.Fatalf("expected 4 occurrences, got %d: %v", len(got), got)
	}
	for _, occurrence := range got {
		wd := Weekday(occurrence.Weekday())
		if wd != Monday && wd != Thursday {
			t.Errorf("occurrence %v falls on %v", occurrence, occurrence.Weekday())
		}
		if occurrence.Hour() != 18 || occurrence.Minute() != 0 {
			t.Errorf("occurrence %v not at 18:00", occurrence)
		}
	}
}

func TestExpandInclusiveBounds(t *testing.T) {
	// Range is a single day that matches the pattern.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	got := Expand([]Weekday{Monday}, day, day, TimeOfDay{Hour: 9})
	if len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
}

func TestExpandEmptyDays(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := Expand(nil, start, start.AddDate(0, 0, 14), TimeOfDay{}); len(got) != 0 {
		t.Fatalf("expected no occurrences, got %d", len(got))
	}
}
