package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/incident-metrics/internal/models"
)

const periodLayout = "2006-01"

// Window is the half-open start-time interval [Start, End) selected by a filter.
type Window struct {
	All        bool
	Start, End time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.All {
		return true
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// ResolveWindow turns filter params into a window in loc. Out-of-range values
// are repaired rather than rejected: months clamp to 1-12, a reversed range is
// swapped and an unparseable year selects everything. Each repair is reported.
func ResolveWindow(f models.FilterParams, loc *time.Location) (Window, models.FilterParams, []models.Diagnostic) {
	if loc == nil {
		loc = time.UTC
	}
	if f.AllTime() {
		return Window{All: true}, models.FilterParams{Year: models.YearAll}, nil
	}

	var diags []models.Diagnostic
	adjust := func(format string, args ...any) {
		diags = append(diags, models.Diagnostic{Field: "filter", Kind: models.DiagFilterAdjusted, Message: fmt.Sprintf(format, args...)})
	}

	year, err := strconv.Atoi(strings.TrimSpace(f.Year))
	if err != nil || year < 1 {
		adjust("year %q is not a year; using %s", f.Year, models.YearAll)
		return Window{All: true}, models.FilterParams{Year: models.YearAll}, diags
	}

	start, end := f.StartMonth, f.EndMonth
	if start < 1 || start > 12 {
		clamped := clampInt(start, 1, 12)
		adjust("startMonth %d clamped to %d", start, clamped)
		start = clamped
	}
	if end < 1 || end > 12 {
		clamped := clampInt(end, 1, 12)
		adjust("endMonth %d clamped to %d", end, clamped)
		end = clamped
	}
	if start > end {
		adjust("startMonth %d after endMonth %d; range swapped", start, end)
		start, end = end, start
	}

	w := Window{
		Start: time.Date(year, time.Month(start), 1, 0, 0, 0, 0, loc),
		End:   time.Date(year, time.Month(end)+1, 1, 0, 0, 0, 0, loc),
	}
	return w, models.FilterParams{Year: strconv.Itoa(year), StartMonth: start, EndMonth: end}, diags
}

// Periods lists the month keys covered by the window. For an all-time window
// it spans the first to the last observed period; observed must be sorted.
func (w Window) Periods(observed []string) []string {
	if w.All {
		if len(observed) == 0 {
			return []string{}
		}
		return monthRange(observed[0], observed[len(observed)-1])
	}
	last := w.End.AddDate(0, -1, 0)
	return monthRange(w.Start.Format(periodLayout), last.Format(periodLayout))
}

// PeriodKey returns the YYYY-MM bucket of t in loc.
func PeriodKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(periodLayout)
}

func monthRange(first, last string) []string {
	from, err := time.Parse(periodLayout, first)
	if err != nil {
		return []string{}
	}
	to, err := time.Parse(periodLayout, last)
	if err != nil || to.Before(from) {
		return []string{first}
	}
	periods := make([]string, 0, 12)
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		periods = append(periods, m.Format(periodLayout))
	}
	return periods
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
