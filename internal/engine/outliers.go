package engine

import (
	"sort"

	"github.com/miradorstack/incident-metrics/internal/utils"
)

// Percentile returns the nearest-rank p-quantile (0-1) of values:
// sorted[min(n-1, floor(p*n))]. An empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[utils.NearestRankIndex(len(sorted), p)]
}

// TopOutliers selects items whose net duration is at or above the p-quantile of
// all net durations, longest first, keeping at most k. It also returns the threshold.
func TopOutliers(items []Evaluated, p float64, k int) ([]Evaluated, float64) {
	values := make([]float64, 0, len(items))
	candidates := make([]Evaluated, 0, len(items))
	for _, item := range items {
		if !item.Durations.HasDuration {
			continue
		}
		values = append(values, item.Durations.NetMinutes)
		candidates = append(candidates, item)
	}
	if len(values) == 0 {
		return []Evaluated{}, 0
	}

	threshold := Percentile(values, p)
	selected := make([]Evaluated, 0, k)
	for _, item := range candidates {
		if item.Durations.NetMinutes >= threshold {
			selected = append(selected, item)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Durations.NetMinutes > selected[j].Durations.NetMinutes
	})
	if k >= 0 && len(selected) > k {
		selected = selected[:k]
	}
	return selected, threshold
}
