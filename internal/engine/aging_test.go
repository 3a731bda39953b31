package engine

import (
	"testing"
	"time"

	"github.com/miradorstack/incident-metrics/internal/models"
)

func agingItem(id string, status models.Status, start *time.Time) Evaluated {
	return Evaluated{Record: models.IncidentRecord{ID: id, Status: status, StartTime: start}}
}

func defaultAgingAnalyzer(t *testing.T) *AgingAnalyzer {
	t.Helper()
	s := DefaultSettings()
	a, err := NewAgingAnalyzer(s.AgingBuckets, 2)
	if err != nil {
		t.Fatalf("new aging analyzer: %v", err)
	}
	return a
}

func TestAgeDaysFloorsAndClamps(t *testing.T) {
	now := baseTime
	if got := AgeDays(now.Add(-47*time.Hour), now); got != 1 {
		t.Fatalf("expected 1 day, got %d", got)
	}
	if got := AgeDays(now.Add(-72*time.Hour), now); got != 3 {
		t.Fatalf("expected 3 days, got %d", got)
	}
	if got := AgeDays(now.Add(time.Hour), now); got != 0 {
		t.Fatalf("future start must clamp to 0, got %d", got)
	}
}

func TestAgingAnalyzeBuckets(t *testing.T) {
	now := baseTime
	items := []Evaluated{
		agingItem("fresh", models.StatusOpen, ptr(now.Add(-2*time.Hour))),
		agingItem("two-days", models.StatusUnknown, ptr(now.Add(-49*time.Hour))),
		agingItem("three-days", models.StatusOpen, ptr(now.Add(-72*time.Hour))),
		agingItem("old-a", models.StatusOpen, ptr(now.Add(-10*24*time.Hour))),
		agingItem("old-b", models.StatusOpen, ptr(now.Add(-10*24*time.Hour))),
		agingItem("closed", models.StatusClosed, ptr(now.Add(-30*24*time.Hour))),
		agingItem("no-start", models.StatusOpen, nil),
	}

	report := defaultAgingAnalyzer(t).Analyze(items, now)

	want := []models.AgingBucketCount{
		{Label: "<1d", Count: 1},
		{Label: "1–3d", Count: 1},
		{Label: "3–7d", Count: 1},
		{Label: ">7d", Count: 2},
	}
	if len(report.Buckets) != len(want) {
		t.Fatalf("unexpected buckets: %+v", report.Buckets)
	}
	for i := range want {
		if report.Buckets[i] != want[i] {
			t.Fatalf("bucket %d: expected %+v, got %+v", i, want[i], report.Buckets[i])
		}
	}

	if len(report.Oldest) != 2 || report.Oldest[0].ID != "old-a" || report.Oldest[1].ID != "old-b" {
		t.Fatalf("expected ties kept in input order, got %+v", report.Oldest)
	}
	if report.Oldest[0].AgeDays != 10 {
		t.Fatalf("expected age 10, got %d", report.Oldest[0].AgeDays)
	}
}

func TestNewAgingAnalyzerValidation(t *testing.T) {
	if _, err := NewAgingAnalyzer(nil, 5); err == nil {
		t.Fatalf("expected error for no buckets")
	}
	if _, err := NewAgingAnalyzer([]AgingBucket{{Label: "a", MaxDays: 2}, {Label: "b", MaxDays: 2}, {Label: "c"}}, 5); err == nil {
		t.Fatalf("expected error for non-increasing bounds")
	}
	if _, err := NewAgingAnalyzer([]AgingBucket{{Label: "a", MaxDays: 2}}, 5); err == nil {
		t.Fatalf("expected error for a bounded last bucket")
	}
}
