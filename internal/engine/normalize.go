package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

// recordNamespace seeds deterministic IDs for records delivered without one.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("incident-metrics/records"))

// earliestTimestamp bounds plausible incident times; older values are typos.
var earliestTimestamp = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var builtinPriorities = map[string]models.Priority{
	"high":     models.PriorityHigh,
	"critical": models.PriorityHigh,
	"p1":       models.PriorityHigh,
	"medium":   models.PriorityMedium,
	"normal":   models.PriorityMedium,
	"p2":       models.PriorityMedium,
	"low":      models.PriorityLow,
	"p3":       models.PriorityLow,
}

// Normalizer canonicalises raw records. It never fails: unparseable values
// become absent and are reported as diagnostics.
type Normalizer struct {
	aliases map[string]models.Severity
	closed  map[string]struct{}
	open    map[string]struct{}
	loc     *time.Location
}

// NewNormalizer builds a normalizer. Canonical tier names (S1..S5, sev1..sev5)
// are always recognised; aliases add further labels.
func NewNormalizer(aliases map[string]models.Severity, closedMarkers, openMarkers []string, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	n := &Normalizer{
		aliases: make(map[string]models.Severity, len(aliases)+10),
		closed:  markerSet(closedMarkers),
		open:    markerSet(openMarkers),
		loc:     loc,
	}
	for i, tier := range models.SeverityTiers {
		n.aliases[strings.ToLower(string(tier))] = tier
		n.aliases[fmt.Sprintf("sev%d", i+1)] = tier
		n.aliases[fmt.Sprintf("sev %d", i+1)] = tier
	}
	for alias, sev := range aliases {
		n.aliases[normalizeKey(alias)] = sev
	}
	return n
}

// Normalize converts every raw record, preserving input order.
func (n *Normalizer) Normalize(raws []models.RawRecord) ([]models.IncidentRecord, [][]models.Diagnostic) {
	records := make([]models.IncidentRecord, len(raws))
	diags := make([][]models.Diagnostic, len(raws))
	for i, raw := range raws {
		records[i], diags[i] = n.NormalizeRecord(i, raw)
	}
	return records, diags
}

// NormalizeRecord converts a single raw record found at position index.
func (n *Normalizer) NormalizeRecord(index int, raw models.RawRecord) (models.IncidentRecord, []models.Diagnostic) {
	rec := models.IncidentRecord{
		Index:      index,
		ID:         strings.TrimSpace(raw.ID),
		CaseNumber: strings.TrimSpace(raw.CaseNumber),
		Site:       categoryOrUnknown(raw.Site),
		Cause:      categoryOrUnknown(raw.Cause),
		Action:     categoryOrUnknown(raw.Action),
		Problem:    categoryOrUnknown(raw.Problem),
	}
	if rec.ID == "" {
		seed := fmt.Sprintf("%s|%v|%d", rec.CaseNumber, raw.StartTime, index)
		rec.ID = uuid.NewSHA1(recordNamespace, []byte(seed)).String()
	}

	var diags []models.Diagnostic
	report := func(field string, kind models.DiagnosticKind, format string, args ...any) {
		diags = append(diags, models.Diagnostic{
			RecordID: rec.ID,
			Field:    field,
			Kind:     kind,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	rec.Severity = n.Severity(raw.Severity)
	if rec.Severity == models.SeverityUnknown {
		report("severity", models.DiagUnknownSeverity, "severity %q is not a known class; excluded from SLA evaluation", raw.Severity)
	}
	rec.Priority = n.Priority(raw.Priority)
	if rec.Priority == models.PriorityUnknown && strings.TrimSpace(raw.Priority) != "" {
		report("priority", models.DiagUnknownPriority, "priority %q is not recognised", raw.Priority)
	}
	rec.Status = n.Status(raw.Status)
	if rec.Status == models.StatusUnknown && strings.TrimSpace(raw.Status) != "" {
		report("status", models.DiagUnknownStatus, "status %q is neither a closed nor an open marker", raw.Status)
	}

	parseTime := func(field string, value any) *time.Time {
		t, err := utils.ParseTimestamp(value, n.loc)
		if err != nil {
			if !errors.Is(err, utils.ErrEmptyValue) {
				report(field, models.DiagInvalidTimestamp, "%v", err)
			}
			return nil
		}
		if t.Before(earliestTimestamp) {
			report(field, models.DiagInvalidTimestamp, "timestamp %s is before %s", t.Format(time.RFC3339), earliestTimestamp.Format("2006-01-02"))
			return nil
		}
		return &t
	}

	rec.StartTime = parseTime("startTime", raw.StartTime)
	if rec.StartTime == nil {
		report("startTime", models.DiagMissingStart, "no usable start time; excluded from time-based metrics")
	}
	rec.EndTime = parseTime("endTime", raw.EndTime)
	rec.EscalationStartTime = parseTime("escalationStartTime", raw.EscalationStartTime)

	pause, err := utils.ParseMinutes(raw.TotalPauseMinutes)
	switch {
	case err == nil:
		rec.TotalPauseMinutes = pause
	case errors.Is(err, utils.ErrEmptyValue):
		rec.TotalPauseMinutes = n.pauseFromWindows(raw, parseTime, report)
	default:
		report("totalPauseMinutes", models.DiagInvalidPause, "%v; pause treated as zero", err)
	}

	return rec, diags
}

// pauseFromWindows sums the well-formed pause windows.
func (n *Normalizer) pauseFromWindows(
	raw models.RawRecord,
	parseTime func(string, any) *time.Time,
	report func(string, models.DiagnosticKind, string, ...any),
) float64 {
	windows := []struct {
		name       string
		start, end any
	}{
		{"pause1", raw.Pause1Start, raw.Pause1End},
		{"pause2", raw.Pause2Start, raw.Pause2End},
	}

	total := 0.0
	for _, w := range windows {
		if isAbsent(w.start) && isAbsent(w.end) {
			continue
		}
		start := parseTime(w.name+"Start", w.start)
		end := parseTime(w.name+"End", w.end)
		if start == nil || end == nil {
			report(w.name, models.DiagInvalidPauseWindow, "pause window is incomplete; ignored")
			continue
		}
		minutes := utils.DurationMinutes(*start, *end)
		if minutes < 0 {
			report(w.name, models.DiagInvalidPauseWindow, "pause window ends before it starts; ignored")
			continue
		}
		total += minutes
	}
	return total
}

// Severity maps a label to its canonical class, or SeverityUnknown.
func (n *Normalizer) Severity(label string) models.Severity {
	if sev, ok := n.aliases[normalizeKey(label)]; ok {
		return sev
	}
	return models.SeverityUnknown
}

// Priority maps a label to its canonical priority, or PriorityUnknown.
func (n *Normalizer) Priority(label string) models.Priority {
	if p, ok := builtinPriorities[normalizeKey(label)]; ok {
		return p
	}
	return models.PriorityUnknown
}

// Status classifies a status label. Only an exact closed marker counts as Closed.
func (n *Normalizer) Status(label string) models.Status {
	key := normalizeKey(label)
	if _, ok := n.closed[key]; ok {
		return models.StatusClosed
	}
	if _, ok := n.open[key]; ok {
		return models.StatusOpen
	}
	return models.StatusUnknown
}

func markerSet(markers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		if key := normalizeKey(m); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

// normalizeKey lower-cases and collapses internal whitespace.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func categoryOrUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.UnknownCategory
	}
	return s
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
