package automation

import (
	"testing"
	"time"
)

func TestParseTimePeriod(t *testing.T) {
	cases := []struct {
		in       string
		expected time.Duration
	}{
		{"", 30 * 24 * time.Hour},
		{"30days", 30 * 24 * time.Hour},
		{"24hours", 24 * time.Hour},
		{"3days", 3 * 24 * time.Hour},
		{"7days", 7 * 24 * time.Hour},
		{"6months", 183 * 24 * time.Hour},
		{"12months", 365 * 24 * time.Hour},
		{"all", 0},
	}
	for _, tc := range cases {
		got, err := ParseTimePeriod(tc.in)
		if err != nil {
			t.Fatalf("ParseTimePeriod(%q) error: %v", tc.in, err)
		}
		if got != tc.expected {
			t.Fatalf("ParseTimePeriod(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}

	if _, err := ParseTimePeriod("fortnight"); err == nil {
		t.Fatal("unknown periods must be rejected")
	}
}
