package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"1000000", "1000000", true},
		{"1000000.01", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseThreshold(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
		err bool
	}{
		{in: "", out: "0"},
		{in: "   ", out: "0"},
		{in: "0", out: "0", ok: true},
		{in: "00", out: "0", ok: true},
		{in: "0.0", out: "0", ok: true},
		{in: "0.00", out: "0", ok: true},
		{in: "0.000", out: "0", ok: true},
		{in: "0,0", out: "0", ok: true},
		{in: "0,00", out: "0", ok: true},
		{in: "250,5", out: "250.5", ok: true},
		{in: "99.999", out: "100", ok: true},
		{in: "-3", err: true},
		{in: "-0", err: true},
		{in: "0e1", err: true},
		{in: "abc", err: true},
		{in: "2000000", err: true},
	}
	for _, tc := range cases {
		d, ok, err := ParseThreshold(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %s ok=%v err=%v", tc.in, d, ok, err)
			}
			continue
		}
		if err != nil || ok != tc.ok || !d.Equal(decimal.RequireFromString(tc.out)) {
			t.Fatalf("%q expected %s ok=%v, got %s ok=%v err=%v", tc.in, tc.out, tc.ok, d, ok, err)
		}
	}
}

func TestFormatEuros(t *testing.T) {
	cases := map[string]string{
		"0":       "€0.00",
		"12.5":    "€12.50",
		"1234.56": "€1234.56",
		"0.005":   "€0.01",
		"-3.2":    "-€3.20",
	}
	for in, want := range cases {
		if got := FormatEuros(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatEuros(%s) = %q, want %q", in, got, want)
		}
	}
}
