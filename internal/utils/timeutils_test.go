package utils

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTimestampFormats(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	cases := []struct {
		name  string
		value any
		loc   *time.Location
		want  time.Time
	}{
		{"rfc3339", "2024-03-05T10:15:00Z", nil, time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)},
		{"iso with clock", "2024-03-05 10:15", nil, time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)},
		{"iso date", "2024-03-05", nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"day first", "05/03/2024 10:15:30", nil, time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"day first dashes", "5-3-2024 7:05", nil, time.Date(2024, 3, 5, 7, 5, 0, 0, time.UTC)},
		{"two digit year recent", "05/03/24", nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"two digit year old", "05/03/98", nil, time.Date(1998, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"serial number", 45356.5, nil, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)},
		{"serial string", "45356", nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"serial json number", json.Number("45356.25"), nil, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)},
		{"wall clock in zone", "05/03/2024 10:00", jakarta, time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)},
		{"native time", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.value, tc.loc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseTimestampRejects(t *testing.T) {
	for _, value := range []any{"31/02/2024", "not a date", 12.0, "13/13/2024", true, "1e300", 2958466, json.Number("1e300")} {
		if _, err := ParseTimestamp(value, nil); err == nil || errors.Is(err, ErrEmptyValue) {
			t.Fatalf("expected parse error for %v, got %v", value, err)
		}
	}
	last, err := ParseTimestamp(float64(2958465), nil)
	if err != nil || last.Year() != 9999 || last.Month() != time.December || last.Day() != 31 {
		t.Fatalf("expected 9999-12-31 for the last serial, got %v (%v)", last, err)
	}
	for _, value := range []any{nil, "", "  ", "-", time.Time{}} {
		if _, err := ParseTimestamp(value, nil); !errors.Is(err, ErrEmptyValue) {
			t.Fatalf("expected ErrEmptyValue for %#v, got %v", value, err)
		}
	}
}

func TestParseMinutes(t *testing.T) {
	cases := []struct {
		value any
		want  float64
	}{
		{45.0, 45},
		{"90", 90},
		{"01:30:30", 90.5},
		{"2:15", 135},
		{"1h 30m", 90},
		{"2h", 120},
		{"45m", 45},
		{"45 mins", 45},
		{json.Number("12.5"), 12.5},
	}
	for _, tc := range cases {
		got, err := ParseMinutes(tc.value)
		if err != nil {
			t.Fatalf("ParseMinutes(%v): unexpected error %v", tc.value, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("ParseMinutes(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}

	if _, err := ParseMinutes("soon"); err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
	if _, err := ParseMinutes(nil); !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected ErrEmptyValue for nil, got %v", err)
	}
}

func TestDurationMinutesSigned(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := DurationMinutes(start, start.Add(90*time.Minute)); got != 90 {
		t.Fatalf("expected 90, got %v", got)
	}
	if got := DurationMinutes(start, start.Add(-30*time.Minute)); got != -30 {
		t.Fatalf("expected -30, got %v", got)
	}
}
