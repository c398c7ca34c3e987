// Package core holds the dashboard's view-side domain: the shapes the expense
// backend returns, month navigation, money parsing and form validation.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount caps a single expense entered through the dashboard.
var MaxAmount = decimal.NewFromInt(1_000_000)

// ParseAmount converts user input into a positive amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Signs, zero and values above MaxAmount
// are rejected with ErrInvalidAmount.
//
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() || d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseThreshold is like ParseAmount but allows zero. An empty string reports ok=false.
func ParseThreshold(s string) (d decimal.Decimal, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false, nil
	}
	if z, zerr := decimal.NewFromString(strings.ReplaceAll(s, ",", ".")); zerr == nil &&
		z.Round(2).IsZero() && !strings.ContainsAny(s, "+-eE") {
		return decimal.Zero, true, nil
	}
	d, err = ParseAmount(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// FormatEuros renders an amount the way every dashboard card does: "€12.50".
func FormatEuros(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-€" + d.Neg().StringFixed(2)
	}
	return "€" + d.StringFixed(2)
}
