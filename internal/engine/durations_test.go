package engine

import (
	"testing"

	"github.com/miradorstack/incident-metrics/internal/models"
)

func TestComputeDurationsNetSubtractsPause(t *testing.T) {
	rec := models.IncidentRecord{StartTime: ptr(at(0)), EndTime: ptr(at(500)), TotalPauseMinutes: 100}
	d, diags := ComputeDurations(rec)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	if !d.HasDuration || d.GrossMinutes != 500 || d.NetMinutes != 400 {
		t.Fatalf("expected gross 500 net 400, got %+v", d)
	}
}

func TestComputeDurationsOutOfOrderClampsToZero(t *testing.T) {
	rec := models.IncidentRecord{ID: "r1", StartTime: ptr(at(60)), EndTime: ptr(at(0)), TotalPauseMinutes: 10}
	d, diags := ComputeDurations(rec)
	if d.GrossMinutes != 0 || d.NetMinutes != 0 {
		t.Fatalf("expected clamped durations, got %+v", d)
	}
	if !hasDiagnostic(diags, models.DiagNegativeDuration) {
		t.Fatalf("expected negative duration diagnostic, got %+v", diags)
	}
}

func TestComputeDurationsPauseClamped(t *testing.T) {
	over, diags := ComputeDurations(models.IncidentRecord{StartTime: ptr(at(0)), EndTime: ptr(at(30)), TotalPauseMinutes: 45})
	if over.PauseMinutes != 30 || over.NetMinutes != 0 || !hasDiagnostic(diags, models.DiagPauseClamped) {
		t.Fatalf("expected pause clamped to gross, got %+v %+v", over, diags)
	}

	negative, diags := ComputeDurations(models.IncidentRecord{StartTime: ptr(at(0)), EndTime: ptr(at(30)), TotalPauseMinutes: -5})
	if negative.PauseMinutes != 0 || negative.NetMinutes != 30 || !hasDiagnostic(diags, models.DiagPauseClamped) {
		t.Fatalf("expected negative pause clamped to zero, got %+v %+v", negative, diags)
	}
}

func TestComputeDurationsOpenRecordUndefined(t *testing.T) {
	d, _ := ComputeDurations(models.IncidentRecord{StartTime: ptr(at(0))})
	if d.HasDuration || d.HasVendor {
		t.Fatalf("open record must not have durations, got %+v", d)
	}
}

func TestComputeDurationsVendor(t *testing.T) {
	d, _ := ComputeDurations(models.IncidentRecord{StartTime: ptr(at(0)), EscalationStartTime: ptr(at(45)), EndTime: ptr(at(120))})
	if !d.HasVendor || d.VendorMinutes != 75 {
		t.Fatalf("expected vendor 75, got %+v", d)
	}

	late, diags := ComputeDurations(models.IncidentRecord{EscalationStartTime: ptr(at(200)), EndTime: ptr(at(120))})
	if !late.HasVendor || late.VendorMinutes != 0 || !hasDiagnostic(diags, models.DiagNegativeDuration) {
		t.Fatalf("expected clamped vendor duration, got %+v %+v", late, diags)
	}
}

func TestComputeDurationsInvariant(t *testing.T) {
	pauses := []float64{-10, 0, 15, 60, 1000}
	spans := []float64{-30, 0, 1, 59, 60, 600}
	for _, pause := range pauses {
		for _, span := range spans {
			d, _ := ComputeDurations(models.IncidentRecord{StartTime: ptr(at(0)), EndTime: ptr(at(span)), TotalPauseMinutes: pause})
			if d.NetMinutes > d.GrossMinutes || d.NetMinutes < 0 || d.GrossMinutes < 0 {
				t.Fatalf("invariant violated for span %v pause %v: %+v", span, pause, d)
			}
		}
	}
}
