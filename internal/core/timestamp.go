package core

import (
	"fmt"
	"strings"
	"time"
)

// InputLayout is the value format of an HTML datetime-local input.
const InputLayout = "2006-01-02T15:04"

// WireLayout is the naive timestamp format sent to the backend.
const WireLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	WireLayout,
	InputLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes the backend and browsers produce.
// Timestamps without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// InputTimestamp converts a backend timestamp to datetime-local form, keeping the
// wall clock it was sent with. Unparseable values pass through truncated.
func InputTimestamp(s string) string {
	if t, err := ParseTimestamp(s); err == nil {
		return t.Format(InputLayout)
	}
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// WireTimestamp converts a datetime-local value to the format the backend stores.
func WireTimestamp(input string) (string, time.Time, error) {
	t, err := ParseTimestamp(input)
	if err != nil {
		return "", time.Time{}, err
	}
	return t.Format(WireLayout), t, nil
}

// DisplayDate formats a timestamp for tables ("Jan 02, 2006"). Unparseable
// values are returned unchanged.
func DisplayDate(s string) string {
	if t, err := ParseTimestamp(s); err == nil {
		return t.Format("Jan 02, 2006")
	}
	return s
}

// DisplayDateTime formats a timestamp with minutes ("Jan 02, 2006 15:04 MST").
func DisplayDateTime(s string) string {
	if t, err := ParseTimestamp(s); err == nil {
		return t.Format("Jan 02, 2006 15:04 MST")
	}
	return s
}
