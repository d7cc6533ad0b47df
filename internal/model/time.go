package model

import (
	"strings"
	"time"
)

const (
	minuteLayout = "2006-01-02T15:04"
	dateLayout   = "2006-01-02"
)

// Accepted layouts for timestamps coming from legacy snapshots and form input.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	minuteLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateLayout,
}

// ParseDateTime parses common ISO-like strings. The second return value is
// false when the input is empty or unparseable.
func ParseDateTime(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate parses just the calendar date portion of the input.
func ParseDate(raw string) (time.Time, bool) {
	t, ok := ParseDateTime(raw)
	if !ok {
		return time.Time{}, false
	}
	return DateOf(t), true
}

// DateOf truncates a timestamp to its calendar date, normalized to UTC so
// dates from different sources compare with Equal.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatMinutes renders a timestamp with minute precision, the format used
// for created_at/completed_at fields in persisted records.
func FormatMinutes(t time.Time) string {
	return t.Format(minuteLayout)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
