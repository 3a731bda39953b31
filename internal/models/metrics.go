package models

import "time"

// Metrics is the full derived view over one filtered snapshot.
type Metrics struct {
	ComputationID            string                                  `json:"computationId"`
	AsOf                     time.Time                               `json:"asOf"`
	Filter                   FilterParams                            `json:"filter"`
	SnapshotVersion          uint64                                  `json:"snapshotVersion"`
	Stats                    Stats                                   `json:"stats"`
	ByPeriodSeverity         map[string]map[Severity]int             `json:"byPeriodSeverity"`
	ByPeriodSeverityDuration map[string]map[Severity]AggregateBucket `json:"byPeriodSeverityDuration"`
	BreachAnalytics          BreachAnalytics                         `json:"breachAnalytics"`
	SeverityCompliance       []SeverityCompliance                    `json:"severityCompliance"`
	RiskRanked               []RiskScore                             `json:"riskRanked"`
	Aging                    AgingReport                             `json:"aging"`
	Outliers                 []RecordSummary                         `json:"outliers"`
	SiteProblems             []SiteProblems                          `json:"siteProblems"`
	Insights                 []string                                `json:"insights"`
	MoMTrends                map[string]Trend                        `json:"momTrends"`
	Diagnostics              []Diagnostic                            `json:"diagnostics"`
}

// Stats holds headline counts for the filtered set.
type Stats struct {
	Total                    int     `json:"total"`
	Open                     int     `json:"open"`
	Closed                   int     `json:"closed"`
	Resolved                 int     `json:"resolved"`
	Escalated                int     `json:"escalated"`
	AvgNetDurationMinutes    float64 `json:"avgNetDurationMinutes"`
	AvgVendorDurationMinutes float64 `json:"avgVendorDurationMinutes"`
}

// AggregateBucket accumulates one (period, category) cell. Count covers every
// record in the cell; the duration figures only cover records with a duration.
type AggregateBucket struct {
	Count         int     `json:"count"`
	DurationCount int     `json:"durationCount"`
	DurationSum   float64 `json:"total"`
	DurationAvg   float64 `json:"avg"`
}

// CategoryCount is one entry of a top-N ranking.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BreachAnalytics summarises SLA evaluation over the evaluable subset.
type BreachAnalytics struct {
	Evaluable        int             `json:"evaluable"`
	TotalBreach      int             `json:"totalBreach"`
	TotalCompliant   int             `json:"totalCompliant"`
	BreachRatePct    float64         `json:"breachRatePct"`
	CompliantRatePct float64         `json:"compliantRatePct"`
	TopSites         []CategoryCount `json:"topSites"`
	TopCauses        []CategoryCount `json:"topCauses"`
}

// SeverityCompliance is the per-tier SLA breakdown.
type SeverityCompliance struct {
	Severity          Severity `json:"severity"`
	TargetMinutes     float64  `json:"targetMinutes"`
	Evaluable         int      `json:"evaluable"`
	Compliant         int      `json:"compliant"`
	Breach            int      `json:"breach"`
	ComplianceRatePct float64  `json:"complianceRatePct"`
	AvgNetMinutes     float64  `json:"avgNetMinutes"`
}

// RiskScore is the weighted composite risk for one group.
type RiskScore struct {
	Group                string  `json:"group"`
	Count                int     `json:"count"`
	ResolvedCount        int     `json:"resolvedCount"`
	EvaluableCount       int     `json:"evaluableCount"`
	BreachCount          int     `json:"breachCount"`
	AvgDuration          float64 `json:"avgDuration"`
	ReliabilityPct       float64 `json:"reliabilityPct"`
	SLACompliancePct     float64 `json:"slaCompliancePct"`
	TopCause             string  `json:"topCause"`
	VolumeComponent      float64 `json:"volumeComponent"`
	DurationComponent    float64 `json:"durationComponent"`
	ReliabilityComponent float64 `json:"reliabilityComponent"`
	SLAComponent         float64 `json:"slaComponent"`
	RiskScore            float64 `json:"riskScore"`
	HighRisk             bool    `json:"highRisk"`
}

// AgingReport buckets open records by age.
type AgingReport struct {
	Buckets []AgingBucketCount `json:"buckets"`
	Oldest  []RecordSummary    `json:"oldest"`
}

// AgingBucketCount is one labelled age bucket, kept in configured order.
type AgingBucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// RecordSummary is the compact record view used by rankings.
type RecordSummary struct {
	ID            string     `json:"id"`
	CaseNumber    string     `json:"caseNumber,omitempty"`
	Site          string     `json:"site"`
	Severity      Severity   `json:"severity"`
	Status        Status     `json:"status"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	NetMinutes    float64    `json:"netMinutes"`
	GrossMinutes  float64    `json:"grossMinutes"`
	TargetMinutes float64    `json:"targetMinutes,omitempty"`
	AgeDays       int        `json:"ageDays,omitempty"`
}

// SiteProblems ranks the most frequent problems reported for a site.
type SiteProblems struct {
	Site     string          `json:"site"`
	Problems []CategoryCount `json:"problems"`
}

// Direction classifies a month-over-month change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend is a month-over-month delta for one metric.
type Trend struct {
	Current   float64   `json:"current"`
	Previous  float64   `json:"previous"`
	DeltaPct  float64   `json:"deltaPct"`
	Direction Direction `json:"direction"`
	Inverse   bool      `json:"inverse"`
}
