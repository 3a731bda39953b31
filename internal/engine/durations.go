package engine

import (
	"fmt"

	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

// ComputeDurations derives gross, net and vendor minutes for a record.
// Gross and net are defined only when both start and end are present; negative
// spans clamp to zero and the pause total is clamped into [0, gross].
func ComputeDurations(r models.IncidentRecord) (models.DurationMetrics, []models.Diagnostic) {
	var (
		d     models.DurationMetrics
		diags []models.Diagnostic
	)
	report := func(field string, kind models.DiagnosticKind, msg string) {
		diags = append(diags, models.Diagnostic{RecordID: r.ID, Field: field, Kind: kind, Message: msg})
	}

	if r.StartTime != nil && r.EndTime != nil {
		gross := utils.DurationMinutes(*r.StartTime, *r.EndTime)
		if gross < 0 {
			report("endTime", models.DiagNegativeDuration, fmt.Sprintf("end is %.1f minutes before start; duration clamped to 0", -gross))
			gross = 0
		}

		pause := r.TotalPauseMinutes
		switch {
		case pause < 0:
			report("totalPauseMinutes", models.DiagPauseClamped, fmt.Sprintf("negative pause %.1f clamped to 0", pause))
			pause = 0
		case pause > gross:
			report("totalPauseMinutes", models.DiagPauseClamped, fmt.Sprintf("pause %.1f exceeds gross duration %.1f; clamped", pause, gross))
			pause = gross
		}

		d.GrossMinutes = gross
		d.PauseMinutes = pause
		d.NetMinutes = max(0, gross-pause)
		d.HasDuration = true
	}

	if r.EscalationStartTime != nil && r.EndTime != nil {
		vendor := utils.DurationMinutes(*r.EscalationStartTime, *r.EndTime)
		if vendor < 0 {
			report("escalationStartTime", models.DiagNegativeDuration, fmt.Sprintf("end is %.1f minutes before vendor escalation; vendor duration clamped to 0", -vendor))
			vendor = 0
		}
		d.VendorMinutes = vendor
		d.HasVendor = true
	}

	return d, diags
}
