package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/incident-metrics/internal/cache"
	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/metrics"
	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

var refTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type sourceStub struct {
	mu      sync.Mutex
	records []models.RawRecord
	err     error
	calls   int
}

func (s *sourceStub) Fetch(context.Context) ([]models.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.records, s.err
}

// hookProvider runs onGet before reporting a miss.
type hookProvider struct {
	cache.NoopProvider
	onGet func()
}

func (h hookProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if h.onGet != nil {
		h.onGet()
	}
	return nil, cache.ErrCacheMiss
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Insights.RulesPath = ""
	return &cfg
}

func sampleRecords() []models.RawRecord {
	return []models.RawRecord{
		{ID: "a", Severity: "S1", Status: "Closed", Site: "north", StartTime: "2024-03-04T08:00:00Z", EndTime: "2024-03-04T15:01:00Z"},
		{ID: "b", Severity: "S3", Status: "Closed", Site: "south", StartTime: "2024-03-05T08:00:00Z", EndTime: "2024-03-05T09:00:00Z"},
		{ID: "c", Severity: "S2", Status: "Open", Site: "south", StartTime: "2024-03-06T08:00:00Z"},
	}
}

func newTestService(t *testing.T, src RecordFetcher, opts Options) *MetricsService {
	t.Helper()
	svc, err := NewMetricsService(nil, testConfig(), src, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return refTime }
	return svc
}

func TestComputeRequiresSnapshot(t *testing.T) {
	svc := newTestService(t, &sourceStub{}, Options{})
	if _, err := svc.Compute(context.Background(), models.ComputeRequest{}); !errors.Is(err, models.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if svc.Status().Ready {
		t.Fatalf("service must not be ready before a refresh")
	}
}

func TestComputeRejectsInvalidFilter(t *testing.T) {
	svc := newTestService(t, &sourceStub{}, Options{})
	svc.Load(sampleRecords())
	_, err := svc.Compute(context.Background(), models.ComputeRequest{Filter: models.FilterParams{Year: "2024", StartMonth: 0, EndMonth: 3}})
	if !errors.Is(err, models.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestComputeMemoisesPerSnapshot(t *testing.T) {
	src := &sourceStub{records: sampleRecords()}
	svc := newTestService(t, src, Options{})
	ctx := context.Background()

	if n, err := svc.Refresh(ctx); err != nil || n != 3 {
		t.Fatalf("refresh: n=%d err=%v", n, err)
	}
	req := models.ComputeRequest{AsOf: refTime.Add(30 * time.Second)}
	first, err := svc.Compute(ctx, req)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if first.ComputationID == "" || first.SnapshotVersion != 1 {
		t.Fatalf("unexpected identity %q version %d", first.ComputationID, first.SnapshotVersion)
	}
	if first.Stats.Total != 3 || first.BreachAnalytics.TotalBreach != 1 {
		t.Fatalf("unexpected metrics %+v", first.Stats)
	}
	if !first.AsOf.Equal(refTime) {
		t.Fatalf("asOf must be truncated to the minute, got %v", first.AsOf)
	}

	// Same minute, same filter: memo hit.
	second, err := svc.Compute(ctx, models.ComputeRequest{AsOf: refTime})
	if err != nil || second.ComputationID != first.ComputationID {
		t.Fatalf("expected memoised result, got %q err=%v", second.ComputationID, err)
	}

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	third, err := svc.Compute(ctx, req)
	if err != nil {
		t.Fatalf("compute after refresh: %v", err)
	}
	if third.ComputationID == first.ComputationID || third.SnapshotVersion != 2 {
		t.Fatalf("refresh must invalidate the memo: %q v%d", third.ComputationID, third.SnapshotVersion)
	}
	if src.calls != 2 {
		t.Fatalf("expected two fetches, got %d", src.calls)
	}
}

func TestUpdateConfigRebuildsEngine(t *testing.T) {
	svc := newTestService(t, &sourceStub{}, Options{})
	svc.Load(sampleRecords())
	ctx := context.Background()

	before, err := svc.Compute(ctx, models.ComputeRequest{AsOf: refTime})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	cfg := testConfig()
	cfg.SLA.Targets["S1"] = 600
	if err := svc.UpdateConfig(cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}
	after, err := svc.Compute(ctx, models.ComputeRequest{AsOf: refTime})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if before.BreachAnalytics.TotalBreach != 1 || after.BreachAnalytics.TotalBreach != 0 {
		t.Fatalf("expected new target to clear the breach: before=%d after=%d",
			before.BreachAnalytics.TotalBreach, after.BreachAnalytics.TotalBreach)
	}
	if before.ComputationID == after.ComputationID {
		t.Fatalf("configuration must be part of the memo key")
	}

	bad := testConfig()
	bad.SLA.Targets["S2"] = -1
	if err := svc.UpdateConfig(bad); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
}

func TestComputeUsesSharedCache(t *testing.T) {
	shared := cache.NewMemoryProvider()
	svc := newTestService(t, &sourceStub{}, Options{Shared: shared, SharedTTL: time.Minute})
	svc.Load(sampleRecords())

	st := svc.state.Load()
	key := memoKey(st.snapshotVersion, st.configVersion, models.FilterParams{}, refTime)
	payload, _ := json.Marshal(models.Metrics{ComputationID: "from-peer", Insights: []string{}})
	if err := shared.Set(context.Background(), cache.MetricsKey(key), payload, time.Minute); err != nil {
		t.Fatalf("seed shared cache: %v", err)
	}

	m, err := svc.Compute(context.Background(), models.ComputeRequest{AsOf: refTime})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.ComputationID != "from-peer" {
		t.Fatalf("expected shared result, got %q", m.ComputationID)
	}
}

func TestComputePublishesToSharedCache(t *testing.T) {
	shared := cache.NewMemoryProvider()
	svc := newTestService(t, &sourceStub{}, Options{Shared: shared})
	svc.Load(sampleRecords())

	m, err := svc.Compute(context.Background(), models.ComputeRequest{AsOf: refTime})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	st := svc.state.Load()
	data, err := shared.Get(context.Background(), cache.MetricsKey(memoKey(st.snapshotVersion, st.configVersion, models.FilterParams{}, refTime)))
	if err != nil {
		t.Fatalf("expected published metrics: %v", err)
	}
	var published models.Metrics
	if err := json.Unmarshal(data, &published); err != nil || published.ComputationID != m.ComputationID {
		t.Fatalf("unexpected published payload %q err=%v", published.ComputationID, err)
	}
}

// memoLookups reads the memo lookup counter for result from reg.
func memoLookups(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "incident_metrics_memo_lookups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestComputeCountsWaitersAsCoalesced(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	hook := hookProvider{onGet: func() {
		once.Do(func() { close(started) })
		<-release
	}}
	svc := newTestService(t, &sourceStub{}, Options{Shared: hook})
	svc.Load(sampleRecords())

	beforeCoalesced := memoLookups(t, reg, metrics.MemoCoalesced)
	beforeMiss := memoLookups(t, reg, metrics.MemoMiss)

	const waiters = 3
	ids := make([]string, waiters+1)
	var wg sync.WaitGroup
	compute := func(i int) {
		defer wg.Done()
		m, err := svc.Compute(context.Background(), models.ComputeRequest{AsOf: refTime})
		if err != nil {
			t.Errorf("compute %d: %v", i, err)
			return
		}
		ids[i] = m.ComputationID
	}
	wg.Add(1)
	go compute(0)
	<-started
	for i := 1; i <= waiters; i++ {
		wg.Add(1)
		go compute(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := memoLookups(t, reg, metrics.MemoMiss) - beforeMiss; got != 1 {
		t.Fatalf("expected a single miss, got %v", got)
	}
	if got := memoLookups(t, reg, metrics.MemoCoalesced) - beforeCoalesced; got != waiters {
		t.Fatalf("expected %d coalesced lookups, got %v", waiters, got)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("waiters must share the computed result, got %v", ids)
		}
	}
}

func TestComputeStaleSnapshot(t *testing.T) {
	var svc *MetricsService
	swapped := false
	hook := hookProvider{onGet: func() {
		if !swapped {
			swapped = true
			svc.Load(sampleRecords())
		}
	}}
	svc = newTestService(t, &sourceStub{}, Options{Shared: hook})
	svc.Load(sampleRecords())

	_, err := svc.Compute(context.Background(), models.ComputeRequest{AsOf: refTime, RequireLatest: true})
	if !errors.Is(err, models.ErrStaleSnapshot) {
		t.Fatalf("expected ErrStaleSnapshot, got %v", err)
	}

	swapped = false
	m, err := svc.Compute(context.Background(), models.ComputeRequest{AsOf: refTime})
	if err != nil {
		t.Fatalf("without RequireLatest the result is returned: %v", err)
	}
	// Computed on version 2; the hook swapped in version 3 meanwhile.
	if m.SnapshotVersion != 2 {
		t.Fatalf("expected result for the snapshot it was computed on, got v%d", m.SnapshotVersion)
	}
}

func TestRefreshFailure(t *testing.T) {
	svc := newTestService(t, &sourceStub{err: errors.New("feed down")}, Options{})
	_, err := svc.Refresh(context.Background())
	if err == nil || utils.OpOf(err) != "services.Refresh" {
		t.Fatalf("expected services.Refresh error, got %v", err)
	}
}
