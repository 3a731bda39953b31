package engine

import (
	"math"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// flatThresholdPct is the absolute change below which a trend reads as flat.
const flatThresholdPct = 0.5

// Trend metric names.
const (
	TrendIncidents   = "incidents"
	TrendResolved    = "resolved"
	TrendAvgDuration = "avgNetDurationMinutes"
	TrendBreachRate  = "breachRatePct"
)

// MonthOverMonth classifies the change from previous to current. The delta is
// 0 when previous is 0. inverse swaps up and down for metrics where a decrease
// is the desired direction.
func MonthOverMonth(current, previous float64, inverse bool) models.Trend {
	delta := 0.0
	if previous != 0 {
		delta = (current - previous) / previous * 100
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}

	direction := models.DirectionFlat
	switch {
	case math.Abs(delta) < flatThresholdPct:
	case delta > 0:
		direction = models.DirectionUp
	default:
		direction = models.DirectionDown
	}
	if inverse {
		switch direction {
		case models.DirectionUp:
			direction = models.DirectionDown
		case models.DirectionDown:
			direction = models.DirectionUp
		}
	}

	return models.Trend{
		Current:   current,
		Previous:  previous,
		DeltaPct:  delta,
		Direction: direction,
		Inverse:   inverse,
	}
}

type periodTotals struct {
	count     int
	resolved  int
	netSum    float64
	netCount  int
	evaluable int
	breach    int
}

// monthOverMonthTrends compares the last two periods of the window.
func monthOverMonthTrends(items []Evaluated, periods []string, periodOf func(Evaluated) (string, bool)) map[string]models.Trend {
	trends := make(map[string]models.Trend)
	if len(periods) < 2 {
		return trends
	}
	current, previous := periods[len(periods)-1], periods[len(periods)-2]

	totals := map[string]*periodTotals{current: {}, previous: {}}
	for _, item := range items {
		p, ok := periodOf(item)
		if !ok {
			continue
		}
		t, tracked := totals[p]
		if !tracked {
			continue
		}
		t.count++
		if item.Record.Resolved() {
			t.resolved++
		}
		if item.Durations.HasDuration {
			t.netSum += item.Durations.NetMinutes
			t.netCount++
		}
		if item.SLA.Evaluable {
			t.evaluable++
			if item.SLA.Breach {
				t.breach++
			}
		}
	}

	cur, prev := totals[current], totals[previous]
	trends[TrendIncidents] = MonthOverMonth(float64(cur.count), float64(prev.count), true)
	trends[TrendResolved] = MonthOverMonth(float64(cur.resolved), float64(prev.resolved), false)
	trends[TrendAvgDuration] = MonthOverMonth(safeAvg(cur.netSum, cur.netCount), safeAvg(prev.netSum, prev.netCount), true)
	trends[TrendBreachRate] = MonthOverMonth(BreachRate(cur.breach, cur.evaluable), BreachRate(prev.breach, prev.evaluable), true)
	return trends
}
