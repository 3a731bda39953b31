package models

import "time"

// Severity is the canonical five-tier criticality class of an incident.
// S1 is the least critical tier and S5 the most critical.
type Severity string

const (
	SeverityS1      Severity = "S1"
	SeverityS2      Severity = "S2"
	SeverityS3      Severity = "S3"
	SeverityS4      Severity = "S4"
	SeverityS5      Severity = "S5"
	SeverityUnknown Severity = "Unknown"
)

// SeverityTiers lists the resolvable tiers from least to most critical.
var SeverityTiers = []Severity{SeverityS1, SeverityS2, SeverityS3, SeverityS4, SeverityS5}

// Priority is the ticket priority reported by the source system.
type Priority string

const (
	PriorityHigh    Priority = "High"
	PriorityMedium  Priority = "Medium"
	PriorityLow     Priority = "Low"
	PriorityUnknown Priority = "Unknown"
)

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusOpen    Status = "Open"
	StatusClosed  Status = "Closed"
	StatusUnknown Status = "Unknown"
)

// UnknownCategory is the value used for absent free-text categorical fields.
const UnknownCategory = "Unknown"

// RawRecord is an incident as delivered by a record source. Timestamp and pause
// fields stay loosely typed: strings, spreadsheet serial numbers or native times.
type RawRecord struct {
	ID                  string `json:"id,omitempty"`
	CaseNumber          string `json:"caseNumber,omitempty"`
	Severity            string `json:"severity,omitempty"`
	Priority            string `json:"priority,omitempty"`
	Status              string `json:"status,omitempty"`
	Site                string `json:"site,omitempty"`
	Cause               string `json:"cause,omitempty"`
	Action              string `json:"action,omitempty"`
	Problem             string `json:"problem,omitempty"`
	StartTime           any    `json:"startTime,omitempty"`
	EndTime             any    `json:"endTime,omitempty"`
	EscalationStartTime any    `json:"escalationStartTime,omitempty"`
	TotalPauseMinutes   any    `json:"totalPauseMinutes,omitempty"`
	Pause1Start         any    `json:"pause1Start,omitempty"`
	Pause1End           any    `json:"pause1End,omitempty"`
	Pause2Start         any    `json:"pause2Start,omitempty"`
	Pause2End           any    `json:"pause2End,omitempty"`
}

// IncidentRecord is the canonical, immutable form of a record after normalisation.
// Nil timestamps mean the value was absent or could not be parsed.
type IncidentRecord struct {
	Index               int        `json:"-"`
	ID                  string     `json:"id"`
	CaseNumber          string     `json:"caseNumber,omitempty"`
	Severity            Severity   `json:"severity"`
	Priority            Priority   `json:"priority"`
	Status              Status     `json:"status"`
	Site                string     `json:"site"`
	Cause               string     `json:"cause"`
	Action              string     `json:"action"`
	Problem             string     `json:"problem"`
	StartTime           *time.Time `json:"startTime,omitempty"`
	EndTime             *time.Time `json:"endTime,omitempty"`
	EscalationStartTime *time.Time `json:"escalationStartTime,omitempty"`
	TotalPauseMinutes   float64    `json:"totalPauseMinutes"`
}

// HasStart reports whether the record can take part in time-based metrics.
func (r IncidentRecord) HasStart() bool { return r.StartTime != nil }

// Resolved reports whether the record carries an end time.
func (r IncidentRecord) Resolved() bool { return r.EndTime != nil }

// Escalated reports whether the record was escalated to a vendor.
func (r IncidentRecord) Escalated() bool { return r.EscalationStartTime != nil }

// DurationMetrics holds derived minute figures. Gross and Net are only meaningful
// when HasDuration is true; Vendor only when HasVendor is true.
type DurationMetrics struct {
	GrossMinutes  float64 `json:"grossMinutes"`
	NetMinutes    float64 `json:"netMinutes"`
	PauseMinutes  float64 `json:"pauseMinutes"`
	VendorMinutes float64 `json:"vendorMinutes"`
	HasDuration   bool    `json:"hasDuration"`
	HasVendor     bool    `json:"hasVendor"`
}
