package engine

import (
	"fmt"
	"strconv"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// InsightSummary carries the figures textual findings are derived from.
type InsightSummary struct {
	Total             int
	Evaluable         int
	Breach            int
	Compliant         int
	Escalated         int
	TopBreachSite     *models.CategoryCount
	TopBreachCause    *models.CategoryCount
	AvgPauseBreach    float64
	AvgPauseCompliant float64
	Percentile        float64
	PercentileNet     float64
	HasDurations      bool
	Backlog           int
	Oldest            *models.RecordSummary
	HighRiskGroups    int
}

// BreachRatePct is the breach share of the evaluable subset.
func (s InsightSummary) BreachRatePct() float64 { return BreachRate(s.Breach, s.Evaluable) }

// EscalationRatePct is the share of records escalated to a vendor.
func (s InsightSummary) EscalationRatePct() float64 { return ratioPct(s.Escalated, s.Total) }

// Fields exposes the summary under the names insight rules refer to.
func (s InsightSummary) Fields() map[string]float64 {
	return map[string]float64{
		"total":               float64(s.Total),
		"evaluable":           float64(s.Evaluable),
		"breaches":            float64(s.Breach),
		"breach_rate_pct":     s.BreachRatePct(),
		"escalation_rate_pct": s.EscalationRatePct(),
		"backlog":             float64(s.Backlog),
		"p95_net_minutes":     s.PercentileNet,
		"high_risk_groups":    float64(s.HighRiskGroups),
	}
}

// BuildInsights returns the fixed findings in a stable order. A finding is
// omitted when its inputs are absent, so an empty set yields no findings.
func BuildInsights(s InsightSummary) []string {
	insights := make([]string, 0, 7)

	if s.Evaluable > 0 {
		insights = append(insights, fmt.Sprintf("SLA breach rate is %.1f%% (%d of %d evaluable incidents).",
			s.BreachRatePct(), s.Breach, s.Evaluable))
	}
	if s.Total > 0 {
		insights = append(insights, fmt.Sprintf("Escalation rate is %.1f%% (%d of %d incidents escalated to a vendor).",
			s.EscalationRatePct(), s.Escalated, s.Total))
	}
	if s.TopBreachSite != nil {
		insights = append(insights, fmt.Sprintf("Site %s has the most SLA breaches (%d).", s.TopBreachSite.Name, s.TopBreachSite.Count))
	}
	if s.TopBreachCause != nil {
		insights = append(insights, fmt.Sprintf("Most frequent breach cause is %s (%d).", s.TopBreachCause.Name, s.TopBreachCause.Count))
	}
	if s.Breach > 0 && s.Compliant > 0 {
		insights = append(insights, fmt.Sprintf("Breached incidents averaged %.1f paused minutes versus %.1f for compliant ones.",
			s.AvgPauseBreach, s.AvgPauseCompliant))
	}
	if s.HasDurations {
		insights = append(insights, fmt.Sprintf("P%s net duration is %.1f minutes.",
			strconv.FormatFloat(s.Percentile*100, 'f', -1, 64), s.PercentileNet))
	}
	if s.Backlog > 0 {
		finding := fmt.Sprintf("Backlog holds %d open incidents", s.Backlog)
		if s.Oldest != nil {
			finding += fmt.Sprintf("; oldest is %s at %d days", displayID(*s.Oldest), s.Oldest.AgeDays)
		}
		insights = append(insights, finding+".")
	}
	return insights
}

func displayID(r models.RecordSummary) string {
	if r.CaseNumber != "" {
		return r.CaseNumber
	}
	return r.ID
}
