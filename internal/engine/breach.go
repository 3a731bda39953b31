package engine

import "github.com/miradorstack/incident-metrics/internal/models"

// Classification is the SLA verdict for one record.
type Classification struct {
	Evaluable     bool
	Breach        bool
	TargetMinutes float64
}

// Classify evaluates a record against its target. Records without a positive
// net duration or without a target are not evaluable and never count as compliant.
func Classify(d models.DurationMetrics, target float64, hasTarget bool) Classification {
	if !d.HasDuration || d.NetMinutes <= 0 || !hasTarget {
		return Classification{TargetMinutes: target}
	}
	return Classification{
		Evaluable:     true,
		Breach:        d.NetMinutes > target,
		TargetMinutes: target,
	}
}

// BreachRate returns breach/evaluable as a percentage, 0 when nothing is evaluable.
func BreachRate(breach, evaluable int) float64 {
	return ratioPct(breach, evaluable)
}

func ratioPct(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func safeAvg(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return sum / float64(n)
}
