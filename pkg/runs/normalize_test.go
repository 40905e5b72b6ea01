package runs

import (
	"math"
	"testing"
)

func TestParseLargeNumber(t *testing.T) {
	cases := map[string]float64{
		"12.5M":  12_500_000,
		"$1.25K": 1250,
		"340":    340,
		" 2 B ":  2e9,
		"1.5q":   1.5e15,
		"1.5Q":   1.5e18,
	}
	for in, want := range cases {
		if !ValidateLargeNumber(in) {
			t.Fatalf("ValidateLargeNumber(%q) = false", in)
		}
		if got := ParseLargeNumber(in); got != want {
			t.Fatalf("ParseLargeNumber(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseLargeNumber("1,234"); got != 1234 {
		t.Fatalf("thousands separator: %v", got)
	}
	for _, in := range []string{"", "abc", "12.5X", "1.2.3M"} {
		if ValidateLargeNumber(in) {
			t.Fatalf("ValidateLargeNumber(%q) = true", in)
		}
		if !math.IsNaN(ParseLargeNumber(in)) {
			t.Fatalf("ParseLargeNumber(%q) should be NaN", in)
		}
	}
}

func TestParseIntegerPlus(t *testing.T) {
	if v := ParseIntegerPlus("14+"); v != 14.5 {
		t.Fatalf("14+ => %v", v)
	}
	if v := ParseIntegerPlus("14"); v != 14 {
		t.Fatalf("14 => %v", v)
	}
	if ValidateIntegerPlus("14++") || ValidateIntegerPlus("+14") {
		t.Fatalf("malformed tier accepted")
	}
}

func TestParseTimespan(t *testing.T) {
	if !ValidateTimespan("2d 13h 30m") {
		t.Fatalf("timespan rejected")
	}
	if v := ParseTimespan("2d 13h 30m"); v != 221400 {
		t.Fatalf("2d 13h 30m => %v", v)
	}
	if v := ParseTimespan("45"); v != 45 {
		t.Fatalf("bare digits should count as seconds, got %v", v)
	}
	if ValidateTimespan("2 days") {
		t.Fatalf("'2 days' accepted")
	}
}

func TestParseMultiplier(t *testing.T) {
	if !ValidateMultiplier("x1.25") || ParseMultiplier("x1.25") != 1.25 {
		t.Fatalf("x1.25 not parsed")
	}
	if ValidateMultiplier("1.25") {
		t.Fatalf("multiplier without x accepted")
	}
}

func TestAbbreviateRoundTrip(t *testing.T) {
	for _, n := range []float64{1_500, 12_500_000, 2.25e12, 7e36} {
		s := Abbreviate(n, 2)
		if got := ParseLargeNumber(s); math.Abs(got-n)/n > 1e-9 {
			t.Fatalf("Abbreviate(%v)=%q parses back to %v", n, s, got)
		}
	}
	if s := Abbreviate(999, 2); s != "999" {
		t.Fatalf("below 1K: %q", s)
	}
	if s := Abbreviate(12_500_000, 2); s != "12.50M" {
		t.Fatalf("12.5M: %q", s)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:      "0s",
		59:     "59s",
		3600:   "1h 0m 0s",
		221400: "2d 13h 30m 0s",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
