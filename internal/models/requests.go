package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// YearAll selects every record regardless of start time.
const YearAll = "ALL"

// FilterParams selects the time window metrics are computed over. The month
// range is inclusive and ignored when Year is YearAll.
type FilterParams struct {
	Year       string `json:"year"`
	StartMonth int    `json:"startMonth"`
	EndMonth   int    `json:"endMonth"`
}

// AllTime reports whether the filter bypasses the month window.
func (f FilterParams) AllTime() bool {
	return f.Year == "" || strings.EqualFold(strings.TrimSpace(f.Year), YearAll)
}

// Validate rejects filters that cannot describe a window. It is applied at the
// transport boundary; the engine itself tolerates and normalises bad filters.
func (f FilterParams) Validate() error {
	if f.AllTime() {
		return nil
	}
	year, err := strconv.Atoi(strings.TrimSpace(f.Year))
	if err != nil || year < 1900 || year > 9999 {
		return fmt.Errorf("year must be a four digit year or %q, got %q", YearAll, f.Year)
	}
	if f.StartMonth < 1 || f.StartMonth > 12 {
		return fmt.Errorf("startMonth must be within 1-12, got %d", f.StartMonth)
	}
	if f.EndMonth < 1 || f.EndMonth > 12 {
		return fmt.Errorf("endMonth must be within 1-12, got %d", f.EndMonth)
	}
	if f.StartMonth > f.EndMonth {
		return fmt.Errorf("startMonth %d is after endMonth %d", f.StartMonth, f.EndMonth)
	}
	return nil
}

// Key is a stable textual form used in memo keys.
func (f FilterParams) Key() string {
	if f.AllTime() {
		return YearAll
	}
	return fmt.Sprintf("%s:%02d-%02d", strings.TrimSpace(f.Year), f.StartMonth, f.EndMonth)
}

// ComputeRequest asks for metrics over the current snapshot.
type ComputeRequest struct {
	Filter FilterParams `json:"filter"`
	// AsOf is the reference time for aging; zero means now.
	AsOf time.Time `json:"asOf,omitempty"`
	// RequireLatest rejects results computed over a snapshot that was replaced mid-flight.
	RequireLatest bool `json:"requireLatest,omitempty"`
}
