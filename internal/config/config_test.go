package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.SLA.Targets["S1"] != 360 || cfg.SLA.Targets["S5"] != 60 {
		t.Fatalf("unexpected default targets: %+v", cfg.SLA.Targets)
	}
	if len(cfg.Aging.Buckets) != 4 || cfg.Aging.Buckets[3].MaxDays != 0 {
		t.Fatalf("unexpected default aging buckets: %+v", cfg.Aging.Buckets)
	}
	if cfg.Server.Address != ":50051" {
		t.Fatalf("unexpected default address %q", cfg.Server.Address)
	}
}

func TestLoadFileMergesTargets(t *testing.T) {
	path := writeConfig(t, `
sla:
  targets:
    S5: 30
risk:
  highRiskThreshold: 70
analysis:
  timezone: Asia/Jakarta
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SLA.Targets["S5"] != 30 {
		t.Fatalf("expected S5 override, got %v", cfg.SLA.Targets["S5"])
	}
	if cfg.SLA.Targets["S1"] != 360 {
		t.Fatalf("expected S1 default to survive merge, got %v", cfg.SLA.Targets["S1"])
	}
	if cfg.Risk.HighRiskThreshold != 70 {
		t.Fatalf("expected threshold override, got %v", cfg.Risk.HighRiskThreshold)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INCIDENT_METRICS_SERVER_ADDRESS", ":6000")
	t.Setenv("INCIDENT_METRICS_SOURCE_TYPE", "file")
	t.Setenv("INCIDENT_METRICS_SOURCE_FILE", "/tmp/incidents.json")
	t.Setenv("INCIDENT_METRICS_MEMO_TTL", "30s")
	t.Setenv("INCIDENT_METRICS_CACHE_ENABLED", "1")
	t.Setenv("INCIDENT_METRICS_FUTURE_TOLERANCE", "72h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":6000" {
		t.Fatalf("expected address override, got %q", cfg.Server.Address)
	}
	if cfg.Source.Type != SourceFile || cfg.Source.File.Path != "/tmp/incidents.json" {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Cache.MemoTTL != 30*time.Second || !cfg.Cache.Enabled {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Analysis.FutureTolerance != 72*time.Hour {
		t.Fatalf("expected future tolerance override, got %s", cfg.Analysis.FutureTolerance)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadTargets(t *testing.T) {
	cfg := defaultConfig()
	delete(cfg.SLA.Targets, "S3")
	cfg.SLA.Targets["S4"] = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "S3") || !strings.Contains(err.Error(), "S4") {
		t.Fatalf("expected both tiers reported, got %v", err)
	}
}

func TestValidateTargetsCaseInsensitive(t *testing.T) {
	cfg := defaultConfig()
	cfg.SLA.Targets = map[string]float64{"s1": 1, "s2": 2, "s3": 3, "s4": 4, "s5": 5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected lower-case tiers to validate, got %v", err)
	}
}

func TestValidateAgingBuckets(t *testing.T) {
	cases := map[string][]AgingBucket{
		"empty":          nil,
		"bounded last":   {{Label: "<1d", MaxDays: 1}, {Label: "rest", MaxDays: 5}},
		"not increasing": {{Label: "a", MaxDays: 3}, {Label: "b", MaxDays: 2}, {Label: "c"}},
		"missing label":  {{MaxDays: 1}, {Label: "rest"}},
	}
	for name, buckets := range cases {
		cfg := defaultConfig()
		cfg.Aging.Buckets = buckets
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateTimezoneAndSource(t *testing.T) {
	cfg := defaultConfig()
	cfg.Analysis.Timezone = "Mars/Olympus"
	cfg.Source.Type = "ftp"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "timezone") || !strings.Contains(err.Error(), "ftp") {
		t.Fatalf("expected timezone and source errors, got %v", err)
	}
}

func TestValidateFutureTolerance(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Analysis.FutureTolerance != 24*time.Hour {
		t.Fatalf("unexpected default future tolerance %s", cfg.Analysis.FutureTolerance)
	}
	cfg.Analysis.FutureTolerance = -time.Hour
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "futureTolerance") {
		t.Fatalf("expected futureTolerance error, got %v", err)
	}
}

func TestFingerprintTracksChanges(t *testing.T) {
	a := defaultConfig()
	b := defaultConfig()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical configs must share a fingerprint")
	}
	b.SLA.Targets["S1"] = 400
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("fingerprint should change with SLA targets")
	}
}
