package engine

import (
	"math"
	"testing"
	"time"

	"github.com/miradorstack/incident-metrics/internal/models"
)

var baseTime = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func at(minutes float64) time.Time {
	return baseTime.Add(time.Duration(minutes * float64(time.Minute)))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil, DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// resolved builds a closed record lasting the given minutes from start.
func resolved(id, severity, site string, start time.Time, minutes float64) models.RawRecord {
	return models.RawRecord{
		ID:        id,
		Severity:  severity,
		Status:    "Closed",
		Site:      site,
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(time.Duration(minutes * float64(time.Minute))).Format(time.RFC3339),
	}
}

func openRecord(id, severity, site string, start time.Time) models.RawRecord {
	return models.RawRecord{
		ID:        id,
		Severity:  severity,
		Status:    "Open",
		Site:      site,
		StartTime: start.Format(time.RFC3339),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ptr(t time.Time) *time.Time { return &t }

func hasDiagnostic(diags []models.Diagnostic, kind models.DiagnosticKind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
