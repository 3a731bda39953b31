package engine

import (
	"sort"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// BucketKey addresses one (period, category) cell.
type BucketKey struct {
	Period   string
	Category string
}

// Aggregate groups items by period and category. Items for which period reports
// false are skipped. value reports the duration an item contributes, if any.
func Aggregate[T any](
	items []T,
	period func(T) (string, bool),
	category func(T) string,
	value func(T) (float64, bool),
) map[BucketKey]models.AggregateBucket {
	buckets := make(map[BucketKey]models.AggregateBucket)
	for _, item := range items {
		p, ok := period(item)
		if !ok {
			continue
		}
		key := BucketKey{Period: p, Category: category(item)}
		b := buckets[key]
		b.Count++
		if value != nil {
			if v, ok := value(item); ok {
				b.DurationCount++
				b.DurationSum += v
			}
		}
		buckets[key] = b
	}
	for key, b := range buckets {
		b.DurationAvg = safeAvg(b.DurationSum, b.DurationCount)
		buckets[key] = b
	}
	return buckets
}

// CountBy tallies items per key, skipping items for which key reports false.
func CountBy[T any](items []T, key func(T) (string, bool)) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		if k, ok := key(item); ok {
			counts[k]++
		}
	}
	return counts
}

// TopN ranks counts descending with ties broken by name. n <= 0 keeps everything.
func TopN(counts map[string]int, n int) []models.CategoryCount {
	ranked := make([]models.CategoryCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, models.CategoryCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// severityMatrix expands aggregated buckets into a full period x severity grid.
// Every period gets all five tiers; Unknown is added only when it was observed.
func severityMatrix(buckets map[BucketKey]models.AggregateBucket, periods []string) (map[string]map[models.Severity]int, map[string]map[models.Severity]models.AggregateBucket) {
	tiers := append([]models.Severity(nil), models.SeverityTiers...)
	for key := range buckets {
		if key.Category == string(models.SeverityUnknown) {
			tiers = append(tiers, models.SeverityUnknown)
			break
		}
	}

	counts := make(map[string]map[models.Severity]int, len(periods))
	durations := make(map[string]map[models.Severity]models.AggregateBucket, len(periods))
	for _, p := range periods {
		counts[p] = make(map[models.Severity]int, len(tiers))
		durations[p] = make(map[models.Severity]models.AggregateBucket, len(tiers))
		for _, sev := range tiers {
			b := buckets[BucketKey{Period: p, Category: string(sev)}]
			counts[p][sev] = b.Count
			durations[p][sev] = b
		}
	}
	return counts, durations
}

// sortedPeriods returns the distinct periods present in buckets, ascending.
func sortedPeriods(buckets map[BucketKey]models.AggregateBucket) []string {
	seen := make(map[string]struct{})
	for key := range buckets {
		seen[key.Period] = struct{}{}
	}
	periods := make([]string, 0, len(seen))
	for p := range seen {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods
}
