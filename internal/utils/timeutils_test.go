package utils

import (
	"testing"
	"time"
)

func TestParseISO8601Layouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-01T10:20:30Z":             time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		"2024-03-01T10:20:30.5Z":           time.Date(2024, 3, 1, 10, 20, 30, 500_000_000, time.UTC),
		"2024-03-01T10:20:30":              time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		"2024-03-01":                       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"2024-03-01T12:20:30+02:00":        time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		"2024-03-01T10:20:30.123456789Z":   time.Date(2024, 3, 1, 10, 20, 30, 123456789, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseISO8601(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", in, want, got)
		}
	}
}

func TestParseISO8601Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday"} {
		if _, err := ParseISO8601(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
