package models

// DiagnosticKind classifies a data-quality problem found while computing metrics.
type DiagnosticKind string

const (
	DiagInvalidTimestamp   DiagnosticKind = "invalid_timestamp"
	DiagMissingStart       DiagnosticKind = "missing_start"
	DiagNegativeDuration   DiagnosticKind = "negative_duration"
	DiagPauseClamped       DiagnosticKind = "pause_clamped"
	DiagInvalidPause       DiagnosticKind = "invalid_pause"
	DiagInvalidPauseWindow DiagnosticKind = "invalid_pause_window"
	DiagUnknownSeverity    DiagnosticKind = "unknown_severity"
	DiagUnknownPriority    DiagnosticKind = "unknown_priority"
	DiagUnknownStatus      DiagnosticKind = "unknown_status"
	DiagFilterAdjusted     DiagnosticKind = "filter_adjusted"
)

// Diagnostic is a non-fatal warning returned alongside computed metrics.
type Diagnostic struct {
	RecordID string         `json:"recordId,omitempty"`
	Field    string         `json:"field,omitempty"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
}
