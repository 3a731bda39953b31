package engine

import (
	"testing"

	"github.com/miradorstack/incident-metrics/internal/models"
)

func TestMonthOverMonth(t *testing.T) {
	cases := []struct {
		name              string
		current, previous float64
		inverse           bool
		delta             float64
		direction         models.Direction
	}{
		{"doubling", 10, 5, false, 100, models.DirectionUp},
		{"halving", 5, 10, false, -50, models.DirectionDown},
		{"inverse rise", 10, 5, true, 100, models.DirectionDown},
		{"inverse drop", 5, 10, true, -50, models.DirectionUp},
		{"below flat band", 1004, 1000, false, 0.4, models.DirectionFlat},
		{"just above flat band", 1010, 1000, false, 1, models.DirectionUp},
		{"no previous", 7, 0, false, 0, models.DirectionFlat},
		{"inverse flat", 3, 3, true, 0, models.DirectionFlat},
	}
	for _, tc := range cases {
		got := MonthOverMonth(tc.current, tc.previous, tc.inverse)
		if !almostEqual(got.DeltaPct, tc.delta) || got.Direction != tc.direction {
			t.Errorf("%s: got %+v, want delta %v direction %s", tc.name, got, tc.delta, tc.direction)
		}
	}
}

func TestMonthOverMonthTrendsNeedsTwoPeriods(t *testing.T) {
	periodOf := func(Evaluated) (string, bool) { return "2024-01", true }
	if got := monthOverMonthTrends(nil, []string{"2024-01"}, periodOf); len(got) != 0 {
		t.Fatalf("expected no trends for a single period, got %+v", got)
	}
}

func TestMonthOverMonthTrendsLastTwoPeriods(t *testing.T) {
	items := make([]Evaluated, 0, 15)
	for i := 0; i < 5; i++ {
		items = append(items, Evaluated{Record: models.IncidentRecord{Site: "2024-01"}})
	}
	for i := 0; i < 10; i++ {
		items = append(items, Evaluated{Record: models.IncidentRecord{Site: "2024-02"}})
	}
	periodOf := func(e Evaluated) (string, bool) { return e.Record.Site, true }

	trends := monthOverMonthTrends(items, []string{"2023-12", "2024-01", "2024-02"}, periodOf)
	incidents := trends[TrendIncidents]
	if incidents.Current != 10 || incidents.Previous != 5 || incidents.DeltaPct != 100 {
		t.Fatalf("unexpected incident trend %+v", incidents)
	}
	// Incident volume is inverse: growth reads as down.
	if incidents.Direction != models.DirectionDown || !incidents.Inverse {
		t.Fatalf("expected inverse classification, got %+v", incidents)
	}
	if len(trends) != 4 {
		t.Fatalf("expected four trend metrics, got %+v", trends)
	}
}
