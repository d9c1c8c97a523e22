package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be a positive integer"}
	}
	return value, nil
}

// PathID parses the named path value as a positive integer id.
func PathID(r *http.Request, name string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue(name), name)
}

// ParseDateField accepts a bare date or an RFC 3339 timestamp. Bare dates
// are anchored at midnight UTC.
func ParseDateField(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, FieldError{Field: field, Reason: "must be a valid date"}
}

// ParseOptionalDateQuery reads an optional date-valued query parameter.
func ParseOptionalDateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := ParseDateField(raw, name)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func FormatPriceCents(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
