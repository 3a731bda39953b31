package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyValue reports a field that was absent rather than malformed.
var ErrEmptyValue = errors.New("empty value")

// Spreadsheet exports count days from 1899-12-30; serial 25569 is 1970-01-01
// and 2958465 is 9999-12-31, the last day spreadsheets can represent.
const (
	serialUnixEpoch = 25569
	minSerial       = 1000
	maxSerial       = 2958465
)

var (
	dayFirstPattern = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})(?:[ T]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	hoursPattern    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*h(?:ours?|rs?)?(?:\s*(\d+(?:\.\d+)?)\s*m(?:in(?:utes?|s)?)?)?$`)
	minutesPattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*m(?:in(?:utes?|s)?)?$`)

	isoLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// ParseTimestamp converts a loosely typed timestamp into a time.Time. It accepts
// RFC3339, ISO dates with optional wall clock, day-first dates (dd/mm/yyyy and
// dd-mm-yyyy, two-digit years pivot at 50) and spreadsheet serial day numbers.
// Wall-clock values are interpreted in loc. Absent values return ErrEmptyValue.
func ParseTimestamp(value any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch v := value.(type) {
	case nil:
		return time.Time{}, ErrEmptyValue
	case time.Time:
		if v.IsZero() {
			return time.Time{}, ErrEmptyValue
		}
		return v, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, ErrEmptyValue
		}
		return *v, nil
	case string:
		return parseTimestampString(v, loc)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("parse serial %q: %w", v.String(), err)
		}
		return fromSerial(f, loc)
	case float64:
		return fromSerial(v, loc)
	case float32:
		return fromSerial(float64(v), loc)
	case int:
		return fromSerial(float64(v), loc)
	case int64:
		return fromSerial(float64(v), loc)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func parseTimestampString(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if isBlank(s) {
		return time.Time{}, ErrEmptyValue
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		return fromDayFirst(m, loc)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f, loc)
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func fromDayFirst(m []string, loc *time.Location) (time.Time, error) {
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	var hour, minute, second int
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}
	if month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", m[0])
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalises overflow (31/02 becomes 03/03); reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", m[0])
	}
	return t, nil
}

func fromSerial(serial float64, loc *time.Location) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= minSerial {
		return time.Time{}, fmt.Errorf("numeric timestamp %v is not a serial date", serial)
	}
	if serial >= maxSerial+1 {
		return time.Time{}, fmt.Errorf("serial date %v is past 9999-12-31", serial)
	}
	seconds := math.Round((serial - serialUnixEpoch) * 86400)
	utc := time.Unix(int64(seconds), 0).UTC()
	// Serial numbers carry wall-clock fields, not an instant.
	return time.Date(utc.Year(), utc.Month(), utc.Day(), utc.Hour(), utc.Minute(), utc.Second(), 0, loc), nil
}

// ParseMinutes converts a loosely typed duration into minutes. It accepts plain
// numbers (already minutes), HH:MM:SS, HH:MM, "Xh Ym", "Xh" and "Xm".
func ParseMinutes(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, ErrEmptyValue
	case float64:
		return checkFinite(v)
	case float32:
		return checkFinite(float64(v))
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("parse minutes %q: %w", v.String(), err)
		}
		return checkFinite(f)
	case string:
		return parseMinutesString(v)
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func parseMinutesString(raw string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if isBlank(s) {
		return 0, ErrEmptyValue
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return checkFinite(f)
	}
	if strings.Contains(s, ":") {
		return parseClock(s)
	}
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.ParseFloat(m[1], 64)
		minutes := 0.0
		if m[2] != "" {
			minutes, _ = strconv.ParseFloat(m[2], 64)
		}
		return hours*60 + minutes, nil
	}
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		minutes, _ := strconv.ParseFloat(m[1], 64)
		return minutes, nil
	}
	return 0, fmt.Errorf("unrecognised duration %q", raw)
}

func parseClock(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("unrecognised duration %q", s)
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("unrecognised duration %q", s)
		}
		nums[i] = n
	}
	minutes := nums[0]*60 + nums[1]
	if len(nums) == 3 {
		minutes += nums[2] / 60
	}
	return minutes, nil
}

func checkFinite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite duration %v", f)
	}
	return f, nil
}

func isBlank(s string) bool {
	switch strings.ToLower(s) {
	case "", "-", "null", "nil", "n/a", "none":
		return true
	}
	return false
}

// DurationMinutes returns the signed number of minutes from start to end.
func DurationMinutes(start, end time.Time) float64 {
	return end.Sub(start).Minutes()
}
