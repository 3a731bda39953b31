package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/incident-metrics/internal/models"
)

const millisPerDay = 86_400_000

// AgingBucket covers ages below MaxDays and at or above the previous bucket's
// bound. MaxDays 0 marks the final, unbounded bucket.
type AgingBucket struct {
	Label   string
	MaxDays int
}

// AgingAnalyzer buckets records that are not closed by their age.
type AgingAnalyzer struct {
	buckets []AgingBucket
	oldest  int
}

// NewAgingAnalyzer validates bucket ordering and returns an analyzer.
func NewAgingAnalyzer(buckets []AgingBucket, oldestLimit int) (*AgingAnalyzer, error) {
	if len(buckets) == 0 {
		return nil, errors.New("at least one aging bucket is required")
	}
	prev := 0
	for i, b := range buckets {
		if i == len(buckets)-1 {
			if b.MaxDays != 0 {
				return nil, fmt.Errorf("last aging bucket %q must be unbounded", b.Label)
			}
			break
		}
		if b.MaxDays <= prev {
			return nil, fmt.Errorf("aging bucket %q bound %d does not increase", b.Label, b.MaxDays)
		}
		prev = b.MaxDays
	}
	if oldestLimit < 0 {
		oldestLimit = 0
	}
	return &AgingAnalyzer{buckets: append([]AgingBucket(nil), buckets...), oldest: oldestLimit}, nil
}

// AgeDays returns whole elapsed days between start and now, never negative.
func AgeDays(start, now time.Time) int {
	ms := now.Sub(start).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(ms / millisPerDay)
}

// Analyze counts open records with a start time into buckets and lists the oldest.
// Equal start times keep input order.
func (a *AgingAnalyzer) Analyze(items []Evaluated, now time.Time) models.AgingReport {
	counts := make([]int, len(a.buckets))
	open := make([]Evaluated, 0)
	for _, item := range items {
		rec := item.Record
		if rec.Status == models.StatusClosed || rec.StartTime == nil {
			continue
		}
		counts[a.bucketFor(AgeDays(*rec.StartTime, now))]++
		open = append(open, item)
	}

	report := models.AgingReport{
		Buckets: make([]models.AgingBucketCount, len(a.buckets)),
		Oldest:  []models.RecordSummary{},
	}
	for i, b := range a.buckets {
		report.Buckets[i] = models.AgingBucketCount{Label: b.Label, Count: counts[i]}
	}

	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Record.StartTime.Before(*open[j].Record.StartTime)
	})
	if len(open) > a.oldest {
		open = open[:a.oldest]
	}
	for _, item := range open {
		summary := summarize(item)
		summary.AgeDays = AgeDays(*item.Record.StartTime, now)
		report.Oldest = append(report.Oldest, summary)
	}
	return report
}

func (a *AgingAnalyzer) bucketFor(days int) int {
	for i, b := range a.buckets {
		if b.MaxDays == 0 || days < b.MaxDays {
			return i
		}
	}
	return len(a.buckets) - 1
}
