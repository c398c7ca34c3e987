package core

import (
	"fmt"
	"strings"
	"time"
)

// MonthLayout is the wire and URL format of a month: "2025-01".
const MonthLayout = "2006-01"

// Month identifies a calendar month. The zero value is not a valid month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// CurrentMonth returns the month containing now in UTC.
func CurrentMonth(now time.Time) Month {
	return MonthOf(now.UTC())
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// ParseMonthOr parses s and falls back to the month containing now when s is
// empty or malformed.
func ParseMonthOr(s string, now time.Time) Month {
	if m, err := ParseMonth(s); err == nil {
		return m
	}
	return CurrentMonth(now)
}

// AddMonths moves n months forward (or backward for negative n).
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.first().AddDate(0, n, 0))
}

func (m Month) Prev() Month { return m.AddMonths(-1) }

func (m Month) Next() Month { return m.AddMonths(1) }

// String returns the "YYYY-MM" form used in backend paths.
func (m Month) String() string {
	return m.first().Format(MonthLayout)
}

// Label returns the heading form, e.g. "January 2025".
func (m Month) Label() string {
	return m.first().Format("January 2006")
}

// IsZero reports whether m is unset.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Contains reports whether t falls in m.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

func (m Month) first() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}
