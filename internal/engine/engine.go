package engine

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// Evaluated pairs a normalised record with its filter-independent derived figures.
type Evaluated struct {
	Record    models.IncidentRecord
	Durations models.DurationMetrics
	SLA       Classification
}

// Dataset is a normalised snapshot, ready to be computed over many filters.
type Dataset struct {
	items []Evaluated
	diags [][]models.Diagnostic
}

// Len returns the number of records in the dataset.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

// Items returns the evaluated records in input order.
func (d *Dataset) Items() []Evaluated {
	if d == nil {
		return nil
	}
	return d.items
}

// Engine computes incident metrics. It is safe for concurrent use: every
// computation works on its own copies and shares only immutable settings.
type Engine struct {
	logger     *slog.Logger
	settings   Settings
	normalizer *Normalizer
	targets    *TargetTable
	aging      *AgingAnalyzer
	groupOf    func(Evaluated) string
	rules      *RuleSet
	now        func() time.Time
}

// New validates settings and builds an engine. Invalid SLA targets or aging
// buckets fail here rather than per record.
func New(logger *slog.Logger, settings Settings, rules *RuleSet) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	targets, err := NewTargetTable(settings.Targets)
	if err != nil {
		return nil, err
	}
	aging, err := NewAgingAnalyzer(settings.AgingBuckets, settings.OldestLimit)
	if err != nil {
		return nil, fmt.Errorf("aging buckets: %w", err)
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.OutlierPercentile <= 0 || settings.OutlierPercentile > 1 {
		settings.OutlierPercentile = 0.95
	}
	if settings.TopN <= 0 {
		settings.TopN = 5
	}
	if settings.Parallelism <= 0 {
		settings.Parallelism = 1
	}

	return &Engine{
		logger:     logger,
		settings:   settings,
		normalizer: NewNormalizer(settings.SeverityAliases, settings.ClosedMarkers, settings.OpenMarkers, settings.Location),
		targets:    targets,
		aging:      aging,
		groupOf:    groupSelector(settings.RiskGroupBy),
		rules:      rules,
		now:        time.Now,
	}, nil
}

// Settings returns the settings the engine was built with.
func (e *Engine) Settings() Settings { return e.settings }

// Prepare normalises raw records and derives durations and SLA verdicts.
func (e *Engine) Prepare(raws []models.RawRecord) *Dataset {
	records, diags := e.normalizer.Normalize(raws)
	ds := &Dataset{items: make([]Evaluated, len(records)), diags: diags}
	for i, rec := range records {
		durations, durDiags := ComputeDurations(rec)
		target, ok := e.targets.Target(rec.Severity)
		ds.items[i] = Evaluated{
			Record:    rec,
			Durations: durations,
			SLA:       Classify(durations, target, ok),
		}
		ds.diags[i] = append(ds.diags[i], durDiags...)
	}
	return ds
}

// ComputeRecords prepares raws and computes metrics in one step.
func (e *Engine) ComputeRecords(raws []models.RawRecord, req models.ComputeRequest) models.Metrics {
	return e.Compute(e.Prepare(raws), req)
}

// Compute derives the full metrics view of ds for one filter. Identical inputs
// (including AsOf) yield identical output. Data problems never fail the
// computation; they are returned as diagnostics.
func (e *Engine) Compute(ds *Dataset, req models.ComputeRequest) models.Metrics {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}
	asOf = asOf.UTC()
	loc := e.settings.Location

	window, filter, diags := ResolveWindow(req.Filter, loc)
	if diags == nil {
		diags = []models.Diagnostic{}
	}

	// Starts beyond the horizon are typos; they count like records without a
	// start so they cannot stretch the all-time period range.
	horizon := asOf.Add(e.settings.FutureTolerance)
	selected := make([]Evaluated, 0, ds.Len())
	for i, item := range ds.Items() {
		start := item.Record.StartTime
		future := start != nil && start.After(horizon)
		if start != nil && !future && !window.Contains(*start) {
			continue
		}
		diags = append(diags, ds.diags[i]...)
		if future {
			diags = append(diags, models.Diagnostic{
				RecordID: item.Record.ID,
				Field:    "startTime",
				Kind:     models.DiagInvalidTimestamp,
				Message:  fmt.Sprintf("start %s is after %s; excluded from time-based metrics", start.Format(time.RFC3339), asOf.Format(time.RFC3339)),
			})
			item = withoutStart(item)
		}
		selected = append(selected, item)
	}

	periodOf := func(ev Evaluated) (string, bool) {
		if ev.Record.StartTime == nil {
			return "", false
		}
		return PeriodKey(*ev.Record.StartTime, loc), true
	}
	severityBuckets := Aggregate(selected, periodOf,
		func(ev Evaluated) string { return string(ev.Record.Severity) },
		netMinutes,
	)
	periods := window.Periods(sortedPeriods(severityBuckets))

	var (
		stats        models.Stats
		byCount      map[string]map[models.Severity]int
		byDuration   map[string]map[models.Severity]models.AggregateBucket
		breach       breachSummary
		compliance   []models.SeverityCompliance
		risk         []models.RiskScore
		aging        models.AgingReport
		outliers     []Evaluated
		threshold    float64
		siteProblems []models.SiteProblems
		trends       map[string]models.Trend
	)

	var g errgroup.Group
	g.SetLimit(e.settings.Parallelism)
	g.Go(func() error {
		stats = computeStats(selected)
		return nil
	})
	g.Go(func() error {
		byCount, byDuration = severityMatrix(severityBuckets, periods)
		return nil
	})
	g.Go(func() error {
		breach = e.breachAnalytics(selected)
		return nil
	})
	g.Go(func() error {
		compliance = e.severityCompliance(selected)
		return nil
	})
	g.Go(func() error {
		risk = RankRisk(selected, e.groupOf, e.settings.Risk, e.settings.Parallelism)
		return nil
	})
	g.Go(func() error {
		aging = e.aging.Analyze(selected, asOf)
		return nil
	})
	g.Go(func() error {
		outliers, threshold = TopOutliers(selected, e.settings.OutlierPercentile, e.settings.OutlierLimit)
		return nil
	})
	g.Go(func() error {
		siteProblems = e.siteProblems(selected)
		return nil
	})
	g.Go(func() error {
		trends = monthOverMonthTrends(selected, periods, periodOf)
		return nil
	})
	_ = g.Wait()

	summary := InsightSummary{
		Total:             stats.Total,
		Evaluable:         breach.analytics.Evaluable,
		Breach:            breach.analytics.TotalBreach,
		Compliant:         breach.analytics.TotalCompliant,
		Escalated:         stats.Escalated,
		TopBreachSite:     firstCategory(breach.analytics.TopSites),
		TopBreachCause:    firstCategory(breach.analytics.TopCauses),
		AvgPauseBreach:    breach.avgPauseBreach,
		AvgPauseCompliant: breach.avgPauseCompliant,
		Percentile:        e.settings.OutlierPercentile,
		PercentileNet:     threshold,
		HasDurations:      hasAnyDuration(selected),
		Backlog:           countBacklog(aging),
		HighRiskGroups:    countHighRisk(risk),
	}
	if len(aging.Oldest) > 0 {
		oldest := aging.Oldest[0]
		summary.Oldest = &oldest
	}
	insights := BuildInsights(summary)
	insights = appendUnique(insights, e.rules.Evaluate(summary.Fields())...)

	outlierSummaries := make([]models.RecordSummary, 0, len(outliers))
	for _, item := range outliers {
		outlierSummaries = append(outlierSummaries, summarize(item))
	}

	e.logger.Debug("metrics computed",
		slog.String("filter", filter.Key()),
		slog.Int("records", stats.Total),
		slog.Int("diagnostics", len(diags)),
	)

	return models.Metrics{
		AsOf:                     asOf,
		Filter:                   filter,
		Stats:                    stats,
		ByPeriodSeverity:         byCount,
		ByPeriodSeverityDuration: byDuration,
		BreachAnalytics:          breach.analytics,
		SeverityCompliance:       compliance,
		RiskRanked:               risk,
		Aging:                    aging,
		Outliers:                 outlierSummaries,
		SiteProblems:             siteProblems,
		Insights:                 insights,
		MoMTrends:                trends,
		Diagnostics:              diags,
	}
}

// withoutStart drops the start time and every figure derived from it.
func withoutStart(item Evaluated) Evaluated {
	item.Record.StartTime = nil
	item.Durations = models.DurationMetrics{
		VendorMinutes: item.Durations.VendorMinutes,
		HasVendor:     item.Durations.HasVendor,
	}
	item.SLA = Classification{TargetMinutes: item.SLA.TargetMinutes}
	return item
}

func computeStats(items []Evaluated) models.Stats {
	stats := models.Stats{Total: len(items)}
	netSum, netCount := 0.0, 0
	vendorSum, vendorCount := 0.0, 0
	for _, item := range items {
		if item.Record.Status == models.StatusClosed {
			stats.Closed++
		} else {
			stats.Open++
		}
		if item.Record.Resolved() {
			stats.Resolved++
		}
		if item.Record.Escalated() {
			stats.Escalated++
		}
		if item.Durations.HasDuration {
			netSum += item.Durations.NetMinutes
			netCount++
		}
		if item.Durations.HasVendor {
			vendorSum += item.Durations.VendorMinutes
			vendorCount++
		}
	}
	stats.AvgNetDurationMinutes = safeAvg(netSum, netCount)
	stats.AvgVendorDurationMinutes = safeAvg(vendorSum, vendorCount)
	return stats
}

type breachSummary struct {
	analytics         models.BreachAnalytics
	avgPauseBreach    float64
	avgPauseCompliant float64
}

func (e *Engine) breachAnalytics(items []Evaluated) breachSummary {
	var (
		out                    breachSummary
		pauseBreach, pauseComp float64
	)
	breachedSites := make(map[string]int)
	breachedCauses := make(map[string]int)
	for _, item := range items {
		if !item.SLA.Evaluable {
			continue
		}
		out.analytics.Evaluable++
		if item.SLA.Breach {
			out.analytics.TotalBreach++
			pauseBreach += item.Durations.PauseMinutes
			breachedSites[item.Record.Site]++
			breachedCauses[item.Record.Cause]++
		} else {
			out.analytics.TotalCompliant++
			pauseComp += item.Durations.PauseMinutes
		}
	}
	out.analytics.BreachRatePct = BreachRate(out.analytics.TotalBreach, out.analytics.Evaluable)
	out.analytics.CompliantRatePct = ratioPct(out.analytics.TotalCompliant, out.analytics.Evaluable)
	out.analytics.TopSites = TopN(breachedSites, e.settings.TopN)
	out.analytics.TopCauses = TopN(breachedCauses, e.settings.TopN)
	out.avgPauseBreach = safeAvg(pauseBreach, out.analytics.TotalBreach)
	out.avgPauseCompliant = safeAvg(pauseComp, out.analytics.TotalCompliant)
	return out
}

func (e *Engine) severityCompliance(items []Evaluated) []models.SeverityCompliance {
	index := make(map[models.Severity]int, len(models.SeverityTiers))
	rows := make([]models.SeverityCompliance, len(models.SeverityTiers))
	sums := make([]float64, len(models.SeverityTiers))
	counts := make([]int, len(models.SeverityTiers))
	for i, tier := range models.SeverityTiers {
		target, _ := e.targets.Target(tier)
		rows[i] = models.SeverityCompliance{Severity: tier, TargetMinutes: target}
		index[tier] = i
	}
	for _, item := range items {
		i, ok := index[item.Record.Severity]
		if !ok {
			continue
		}
		if item.Durations.HasDuration {
			sums[i] += item.Durations.NetMinutes
			counts[i]++
		}
		if !item.SLA.Evaluable {
			continue
		}
		rows[i].Evaluable++
		if item.SLA.Breach {
			rows[i].Breach++
		} else {
			rows[i].Compliant++
		}
	}
	for i := range rows {
		rows[i].ComplianceRatePct = 100
		if rows[i].Evaluable > 0 {
			rows[i].ComplianceRatePct = ratioPct(rows[i].Compliant, rows[i].Evaluable)
		}
		rows[i].AvgNetMinutes = safeAvg(sums[i], counts[i])
	}
	return rows
}

func (e *Engine) siteProblems(items []Evaluated) []models.SiteProblems {
	bySite := make(map[string]map[string]int)
	siteCounts := make(map[string]int)
	for _, item := range items {
		site := item.Record.Site
		if bySite[site] == nil {
			bySite[site] = make(map[string]int)
		}
		bySite[site][item.Record.Problem]++
		siteCounts[site]++
	}
	out := make([]models.SiteProblems, 0, e.settings.TopN)
	for _, site := range TopN(siteCounts, e.settings.TopN) {
		out = append(out, models.SiteProblems{Site: site.Name, Problems: TopN(bySite[site.Name], e.settings.TopN)})
	}
	return out
}

func summarize(item Evaluated) models.RecordSummary {
	rec := item.Record
	return models.RecordSummary{
		ID:            rec.ID,
		CaseNumber:    rec.CaseNumber,
		Site:          rec.Site,
		Severity:      rec.Severity,
		Status:        rec.Status,
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		NetMinutes:    item.Durations.NetMinutes,
		GrossMinutes:  item.Durations.GrossMinutes,
		TargetMinutes: item.SLA.TargetMinutes,
	}
}

func netMinutes(ev Evaluated) (float64, bool) {
	return ev.Durations.NetMinutes, ev.Durations.HasDuration
}

func hasAnyDuration(items []Evaluated) bool {
	for _, item := range items {
		if item.Durations.HasDuration {
			return true
		}
	}
	return false
}

func firstCategory(ranked []models.CategoryCount) *models.CategoryCount {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	return &top
}

func countBacklog(report models.AgingReport) int {
	n := 0
	for _, b := range report.Buckets {
		n += b.Count
	}
	return n
}

func countHighRisk(scores []models.RiskScore) int {
	n := 0
	for _, s := range scores {
		if s.HighRisk {
			n++
		}
	}
	return n
}
