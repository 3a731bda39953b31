package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/models"
)

// Settings is the resolved configuration the engine computes with.
type Settings struct {
	Targets           map[models.Severity]float64
	SeverityAliases   map[string]models.Severity
	ClosedMarkers     []string
	OpenMarkers       []string
	Risk              RiskWeights
	RiskGroupBy       string
	AgingBuckets      []AgingBucket
	OldestLimit       int
	OutlierPercentile float64
	OutlierLimit      int
	TopN              int
	Location          *time.Location
	Parallelism       int
	// FutureTolerance is how far past asOf a start may lie and still count.
	FutureTolerance   time.Duration
}

// DefaultSettings returns the settings implied by the default configuration.
func DefaultSettings() Settings {
	cfg := config.Default()
	settings, err := SettingsFromConfig(&cfg)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return settings
}

// SettingsFromConfig resolves textual configuration into engine settings.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, fmt.Errorf("nil config")
	}
	loc, err := time.LoadLocation(cfg.Analysis.Timezone)
	if err != nil {
		return Settings{}, fmt.Errorf("load timezone %q: %w", cfg.Analysis.Timezone, err)
	}

	targets := make(map[models.Severity]float64, len(cfg.SLA.Targets))
	for label, minutes := range cfg.SLA.Targets {
		sev, ok := canonicalSeverity(label)
		if !ok {
			return Settings{}, fmt.Errorf("sla.targets: unknown severity %q", label)
		}
		targets[sev] = minutes
	}

	aliases := make(map[string]models.Severity, len(cfg.SLA.Aliases))
	for alias, label := range cfg.SLA.Aliases {
		sev, ok := canonicalSeverity(label)
		if !ok {
			return Settings{}, fmt.Errorf("sla.aliases: %q maps to unknown severity %q", alias, label)
		}
		aliases[normalizeKey(alias)] = sev
	}

	buckets := make([]AgingBucket, 0, len(cfg.Aging.Buckets))
	for _, b := range cfg.Aging.Buckets {
		buckets = append(buckets, AgingBucket{Label: b.Label, MaxDays: b.MaxDays})
	}

	return Settings{
		Targets:         targets,
		SeverityAliases: aliases,
		ClosedMarkers:   append([]string(nil), cfg.Status.ClosedMarkers...),
		OpenMarkers:     append([]string(nil), cfg.Status.OpenMarkers...),
		Risk: RiskWeights{
			VolumeWeight:      cfg.Risk.VolumeWeight,
			VolumeCap:         cfg.Risk.VolumeCap,
			DurationWeight:    cfg.Risk.DurationWeight,
			DurationCap:       cfg.Risk.DurationCap,
			ReliabilityWeight: cfg.Risk.ReliabilityWeight,
			ReliabilityCap:    cfg.Risk.ReliabilityCap,
			SLAWeight:         cfg.Risk.SLAWeight,
			SLACap:            cfg.Risk.SLACap,
			BaselineMinutes:   cfg.Risk.DurationBaselineMinutes,
			HighRiskThreshold: cfg.Risk.HighRiskThreshold,
		},
		RiskGroupBy:       strings.ToLower(strings.TrimSpace(cfg.Risk.GroupBy)),
		AgingBuckets:      buckets,
		OldestLimit:       cfg.Aging.OldestLimit,
		OutlierPercentile: cfg.Outliers.Percentile,
		OutlierLimit:      cfg.Outliers.Limit,
		TopN:              cfg.Analysis.TopN,
		Location:          loc,
		Parallelism:       cfg.Analysis.Parallelism,
		FutureTolerance:   cfg.Analysis.FutureTolerance,
	}, nil
}

// canonicalSeverity accepts the canonical tier names in any case.
func canonicalSeverity(label string) (models.Severity, bool) {
	key := strings.ToUpper(strings.TrimSpace(label))
	for _, tier := range models.SeverityTiers {
		if key == string(tier) {
			return tier, true
		}
	}
	return models.SeverityUnknown, false
}
