package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/incident-metrics/internal/cache"
	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/engine"
	"github.com/miradorstack/incident-metrics/internal/metrics"
	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
	pkgcache "github.com/miradorstack/incident-metrics/pkg/cache"
)

var computationNamespace = uuid.MustParse("6f1c2a5e-4b7d-5c0e-9a3f-2d8e1b6c7a90")

// RecordFetcher loads the raw incident snapshot.
type RecordFetcher interface {
	Fetch(ctx context.Context) ([]models.RawRecord, error)
}

// state is an immutable view swapped atomically on refresh or reload.
type state struct {
	engine          *engine.Engine
	configVersion   string
	snapshotVersion uint64
	raws            []models.RawRecord
	dataset         *engine.Dataset
	loadedAt        time.Time
}

// Options tune memoisation.
type Options struct {
	MemoSize int
	MemoTTL  time.Duration
	// Shared receives computed metrics for other replicas; nil disables it.
	Shared    cache.Provider
	SharedTTL time.Duration
}

// MetricsService owns the incident snapshot and serves memoised computations.
type MetricsService struct {
	logger    *slog.Logger
	source    RecordFetcher
	state     atomic.Pointer[state]
	writeMu   sync.Mutex
	memo      *pkgcache.Memo[models.Metrics]
	shared    cache.Provider
	sharedTTL time.Duration
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewMetricsService builds the service around an engine built from cfg.
func NewMetricsService(logger *slog.Logger, cfg *config.Config, source RecordFetcher, opts Options) (*MetricsService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	eng, err := buildEngine(logger, cfg)
	if err != nil {
		return nil, err
	}
	shared := opts.Shared
	if shared == nil {
		shared = cache.NoopProvider{}
	}
	size := opts.MemoSize
	if size <= 0 {
		size = 256
	}

	s := &MetricsService{
		logger:    logger,
		source:    source,
		memo:      pkgcache.NewMemo[models.Metrics](size, opts.MemoTTL),
		shared:    shared,
		sharedTTL: opts.SharedTTL,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
	s.state.Store(&state{engine: eng, configVersion: cfg.Fingerprint()})
	return s, nil
}

func buildEngine(logger *slog.Logger, cfg *config.Config) (*engine.Engine, error) {
	if cfg == nil {
		return nil, utils.NewAppError("services.buildEngine", "config is required", nil)
	}
	settings, err := engine.SettingsFromConfig(cfg)
	if err != nil {
		return nil, utils.NewAppError("services.buildEngine", "invalid engine settings", err)
	}
	rules, err := engine.LoadRules(cfg.Insights.RulesPath, logger)
	if err != nil {
		return nil, utils.NewAppError("services.buildEngine", "load insight rules", err)
	}
	eng, err := engine.New(logger, settings, rules)
	if err != nil {
		return nil, utils.NewAppError("services.buildEngine", "build engine", err)
	}
	return eng, nil
}

// Refresh fetches a new snapshot from the source and makes it current.
func (s *MetricsService) Refresh(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, utils.NewAppError("services.Refresh", "record source not configured", nil)
	}
	raws, err := s.source.Fetch(ctx)
	if err != nil {
		metrics.ObserveRefresh(0, metrics.OutcomeError)
		return 0, utils.NewAppError("services.Refresh", "fetch incident snapshot", err)
	}
	return s.Load(raws), nil
}

// Load replaces the snapshot with raws and returns the record count.
func (s *MetricsService) Load(raws []models.RawRecord) int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	next := &state{
		engine:          cur.engine,
		configVersion:   cur.configVersion,
		snapshotVersion: cur.snapshotVersion + 1,
		raws:            raws,
		dataset:         cur.engine.Prepare(raws),
		loadedAt:        s.now().UTC(),
	}
	s.state.Store(next)
	s.memo.Purge()
	metrics.ObserveRefresh(len(raws), metrics.OutcomeSuccess)
	s.logger.Info("incident snapshot loaded",
		slog.Uint64("snapshot_version", next.snapshotVersion),
		slog.Int("records", len(raws)),
	)
	return len(raws)
}

// UpdateConfig rebuilds the engine and re-prepares the current snapshot.
// The configuration fingerprint is part of the memo key, so earlier results
// are never served for the new configuration.
func (s *MetricsService) UpdateConfig(cfg *config.Config) error {
	eng, err := buildEngine(s.logger, cfg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	next := &state{
		engine:          eng,
		configVersion:   cfg.Fingerprint(),
		snapshotVersion: cur.snapshotVersion,
		raws:            cur.raws,
		loadedAt:        cur.loadedAt,
	}
	if cur.dataset != nil {
		next.dataset = eng.Prepare(cur.raws)
	}
	s.state.Store(next)
	s.memo.Purge()
	s.logger.Info("engine configuration updated", slog.String("config_version", next.configVersion))
	return nil
}

// Compute returns metrics for req over the current snapshot. Results are
// memoised per snapshot version, configuration, filter and minute of AsOf.
// The returned value is shared with other callers and must not be modified.
func (s *MetricsService) Compute(ctx context.Context, req models.ComputeRequest) (models.Metrics, error) {
	if err := req.Filter.Validate(); err != nil {
		return models.Metrics{}, fmt.Errorf("%w: %v", models.ErrInvalidFilter, err)
	}
	st := s.state.Load()
	if st.dataset == nil {
		return models.Metrics{}, models.ErrNoSnapshot
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	req.AsOf = asOf.UTC().Truncate(time.Minute)
	key := memoKey(st.snapshotVersion, st.configVersion, req.Filter, req.AsOf)

	start := time.Now()
	source := metrics.MemoMiss
	result, outcome, err := s.memo.GetOrLoad(ctx, key, func(ctx context.Context) (models.Metrics, error) {
		if cached, ok := s.loadShared(ctx, key); ok {
			source = metrics.MemoShared
			return cached, nil
		}
		m := st.engine.Compute(st.dataset, req)
		m.ComputationID = uuid.NewSHA1(computationNamespace, []byte(key)).String()
		m.SnapshotVersion = st.snapshotVersion
		observeEngineRun(m)
		s.storeShared(ctx, key, m)
		return m, nil
	})
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveComputation(duration, metrics.OutcomeError)
		return models.Metrics{}, err
	}
	switch outcome {
	case pkgcache.Hit:
		source = metrics.MemoHit
	case pkgcache.Coalesced:
		source = metrics.MemoCoalesced
	}
	metrics.ObserveMemoLookup(source)

	if req.RequireLatest && s.state.Load().snapshotVersion != st.snapshotVersion {
		metrics.ObserveComputation(duration, metrics.OutcomeError)
		return models.Metrics{}, models.ErrStaleSnapshot
	}

	metrics.ObserveComputation(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("computation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return result, nil
}

// Status reports the current snapshot and configuration.
func (s *MetricsService) Status() models.ServiceStatus {
	st := s.state.Load()
	return models.ServiceStatus{
		Ready:           st.dataset != nil,
		SnapshotVersion: st.snapshotVersion,
		Records:         st.dataset.Len(),
		LoadedAt:        st.loadedAt,
		ConfigVersion:   st.configVersion,
		LatencyP95:      s.LatencyP95().String(),
	}
}

// LatencyP95 returns the current p95 computation latency.
func (s *MetricsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *MetricsService) loadShared(ctx context.Context, key string) (models.Metrics, bool) {
	data, err := s.shared.Get(ctx, cache.MetricsKey(key))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("shared metrics cache read failed", slog.Any("error", err))
		}
		return models.Metrics{}, false
	}
	var m models.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("discarding undecodable shared metrics", slog.Any("error", err))
		return models.Metrics{}, false
	}
	return m, true
}

func (s *MetricsService) storeShared(ctx context.Context, key string, m models.Metrics) {
	payload, err := json.Marshal(m)
	if err != nil {
		s.logger.Warn("encode metrics for shared cache", slog.Any("error", err))
		return
	}
	if err := s.shared.Set(ctx, cache.MetricsKey(key), payload, s.sharedTTL); err != nil {
		s.logger.Warn("shared metrics cache write failed", slog.Any("error", err))
	}
}

func observeEngineRun(m models.Metrics) {
	kinds := make(map[string]int)
	for _, d := range m.Diagnostics {
		kinds[string(d.Kind)]++
	}
	metrics.ObserveEngineRun(m.Stats.Total, kinds)
}

// memoKey hashes everything a computation depends on.
func memoKey(snapshotVersion uint64, configVersion string, filter models.FilterParams, asOf time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s", snapshotVersion, configVersion, filter.Key(), asOf.UTC().Format(time.RFC3339))))
	return hex.EncodeToString(sum[:])
}
