package engine

import (
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// RiskWeights holds the per-component weights and caps of the composite score.
type RiskWeights struct {
	VolumeWeight      float64
	VolumeCap         float64
	DurationWeight    float64
	DurationCap       float64
	ReliabilityWeight float64
	ReliabilityCap    float64
	SLAWeight         float64
	SLACap            float64
	// BaselineMinutes is the reference average duration; 0 means use the
	// overall average of the filtered set.
	BaselineMinutes   float64
	HighRiskThreshold float64
}

// GroupStats is the input of the risk formula for one group.
type GroupStats struct {
	Group          string
	Count          int
	ResolvedCount  int
	EvaluableCount int
	BreachCount    int
	AvgDuration    float64
	TopCause       string
}

// Score computes the capped components and total for g against baseline.
func (w RiskWeights) Score(g GroupStats, baseline float64) models.RiskScore {
	reliability := ratioPct(g.ResolvedCount, g.Count)
	compliance := 100.0
	if g.EvaluableCount > 0 {
		compliance = ratioPct(g.EvaluableCount-g.BreachCount, g.EvaluableCount)
	}

	volume := min(float64(g.Count)*w.VolumeWeight, w.VolumeCap)
	duration := 0.0
	if baseline > 0 {
		duration = min(g.AvgDuration/baseline*w.DurationWeight, w.DurationCap)
	}
	reliabilityRisk := min((100-reliability)*w.ReliabilityWeight, w.ReliabilityCap)
	slaRisk := min((100-compliance)*w.SLAWeight, w.SLACap)
	total := volume + duration + reliabilityRisk + slaRisk

	return models.RiskScore{
		Group:                g.Group,
		Count:                g.Count,
		ResolvedCount:        g.ResolvedCount,
		EvaluableCount:       g.EvaluableCount,
		BreachCount:          g.BreachCount,
		AvgDuration:          g.AvgDuration,
		ReliabilityPct:       reliability,
		SLACompliancePct:     compliance,
		TopCause:             g.TopCause,
		VolumeComponent:      volume,
		DurationComponent:    duration,
		ReliabilityComponent: reliabilityRisk,
		SLAComponent:         slaRisk,
		RiskScore:            total,
		HighRisk:             total >= w.HighRiskThreshold,
	}
}

// RankRisk scores every group concurrently and sorts by total descending, then
// group name. Each group is computed independently and written to its own slot.
func RankRisk(items []Evaluated, groupOf func(Evaluated) string, weights RiskWeights, parallelism int) []models.RiskScore {
	groups := make(map[string][]Evaluated)
	order := make([]string, 0)
	netSum, netCount := 0.0, 0
	for _, item := range items {
		key := groupOf(item)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
		if item.Durations.HasDuration {
			netSum += item.Durations.NetMinutes
			netCount++
		}
	}

	baseline := weights.BaselineMinutes
	if baseline <= 0 {
		baseline = safeAvg(netSum, netCount)
	}

	scores := make([]models.RiskScore, len(order))
	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, key := range order {
		g.Go(func() error {
			scores[i] = weights.Score(groupStatsFor(key, groups[key]), baseline)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].RiskScore != scores[j].RiskScore {
			return scores[i].RiskScore > scores[j].RiskScore
		}
		return scores[i].Group < scores[j].Group
	})
	return scores
}

func groupStatsFor(group string, items []Evaluated) GroupStats {
	stats := GroupStats{Group: group, Count: len(items)}
	causes := make(map[string]int)
	sum, n := 0.0, 0
	for _, item := range items {
		if item.Record.Resolved() {
			stats.ResolvedCount++
		}
		if item.SLA.Evaluable {
			stats.EvaluableCount++
			if item.SLA.Breach {
				stats.BreachCount++
			}
		}
		if item.Durations.HasDuration {
			sum += item.Durations.NetMinutes
			n++
		}
		causes[item.Record.Cause]++
	}
	stats.AvgDuration = safeAvg(sum, n)
	if top := TopN(causes, 1); len(top) > 0 {
		stats.TopCause = top[0].Name
	}
	return stats
}

// groupSelector returns the categorical field risk is grouped by.
func groupSelector(field string) func(Evaluated) string {
	switch strings.ToLower(field) {
	case "cause":
		return func(e Evaluated) string { return e.Record.Cause }
	case "problem":
		return func(e Evaluated) string { return e.Record.Problem }
	case "priority":
		return func(e Evaluated) string { return string(e.Record.Priority) }
	case "severity":
		return func(e Evaluated) string { return string(e.Record.Severity) }
	default:
		return func(e Evaluated) string { return e.Record.Site }
	}
}
