package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful computations and refreshes.
	OutcomeSuccess = "success"
	// OutcomeError labels failed computations and refreshes.
	OutcomeError = "error"

	// MemoHit labels lookups served by the in-process memo.
	MemoHit = "hit"
	// MemoShared labels lookups served by the shared cache.
	MemoShared = "shared"
	// MemoMiss labels lookups that ran the engine.
	MemoMiss = "miss"
	// MemoCoalesced labels lookups that waited on another caller's computation.
	MemoCoalesced = "coalesced"
)

const namespace = "incident_metrics"

var (
	computationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Total number of metric computations requested, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	computationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computation_seconds",
			Help:      "Metric computation latency in seconds, memo hits included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	recordsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records selected into computations that ran the engine.",
		},
	)

	diagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Data-quality diagnostics emitted by computations, partitioned by kind.",
		},
		[]string{"kind"},
	)

	memoLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_lookups_total",
			Help:      "Memo lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	snapshotRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Records in the current snapshot.",
		},
	)

	snapshotRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refreshes_total",
			Help:      "Snapshot refresh attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches incident-metrics collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		computationsTotal,
		computationDurationSeconds,
		recordsProcessedTotal,
		diagnosticsTotal,
		memoLookupsTotal,
		snapshotRecords,
		snapshotRefreshesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveComputation records a computation duration and outcome label.
func ObserveComputation(duration time.Duration, outcome string) {
	computationsTotal.WithLabelValues(normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	computationDurationSeconds.Observe(duration.Seconds())
}

// ObserveEngineRun records the record count and diagnostic kinds of one engine run.
func ObserveEngineRun(records int, diagnosticKinds map[string]int) {
	recordsProcessedTotal.Add(float64(records))
	for kind, n := range diagnosticKinds {
		diagnosticsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveMemoLookup counts a memo lookup result.
func ObserveMemoLookup(result string) {
	switch result {
	case MemoHit, MemoShared, MemoCoalesced:
	default:
		result = MemoMiss
	}
	memoLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRefresh records a snapshot refresh; records is ignored on error.
func ObserveRefresh(records int, outcome string) {
	outcome = normaliseOutcome(outcome)
	snapshotRefreshesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		snapshotRecords.Set(float64(records))
	}
}

func normaliseOutcome(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}
