package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/incident-metrics/internal/utils"
)

// Config captures the settings required to boot the metrics engine service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Source   SourceConfig   `yaml:"source"`
	SLA      SLAConfig      `yaml:"sla"`
	Status   StatusConfig   `yaml:"status"`
	Risk     RiskConfig     `yaml:"risk"`
	Aging    AgingConfig    `yaml:"aging"`
	Outliers OutlierConfig  `yaml:"outliers"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Insights InsightsConfig `yaml:"insights"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls the gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SourceConfig selects where incident records are loaded from.
type SourceConfig struct {
	Type            string         `yaml:"type"`
	HTTP            HTTPSource     `yaml:"http"`
	File            FileSource     `yaml:"file"`
	Postgres        PostgresSource `yaml:"postgres"`
	RefreshSchedule string         `yaml:"refreshSchedule"`
}

// Source types understood by the service.
const (
	SourceHTTP     = "http"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// HTTPSource configures a JSON incident feed.
type HTTPSource struct {
	BaseURL       string        `yaml:"baseURL"`
	IncidentsPath string        `yaml:"incidentsPath"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"maxRetries"`
}

// FileSource configures a local JSON export.
type FileSource struct {
	Path string `yaml:"path"`
}

// PostgresSource configures a relational incident table.
type PostgresSource struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"maxConns"`
}

// SLAConfig holds the per-severity target table in minutes and extra severity aliases.
type SLAConfig struct {
	Targets map[string]float64 `yaml:"targets"`
	Aliases map[string]string  `yaml:"aliases"`
}

// StatusConfig lists the exact markers that classify a status.
type StatusConfig struct {
	ClosedMarkers []string `yaml:"closedMarkers"`
	OpenMarkers   []string `yaml:"openMarkers"`
}

// RiskConfig holds the composite risk weights and caps.
type RiskConfig struct {
	GroupBy                 string  `yaml:"groupBy"`
	VolumeWeight            float64 `yaml:"volumeWeight"`
	VolumeCap               float64 `yaml:"volumeCap"`
	DurationWeight          float64 `yaml:"durationWeight"`
	DurationCap             float64 `yaml:"durationCap"`
	ReliabilityWeight       float64 `yaml:"reliabilityWeight"`
	ReliabilityCap          float64 `yaml:"reliabilityCap"`
	SLAWeight               float64 `yaml:"slaWeight"`
	SLACap                  float64 `yaml:"slaCap"`
	DurationBaselineMinutes float64 `yaml:"durationBaselineMinutes"`
	HighRiskThreshold       float64 `yaml:"highRiskThreshold"`
}

// AgingConfig defines ordered age buckets. Each bucket covers ages below MaxDays
// and at or above the previous bucket's MaxDays; the last bucket has MaxDays 0
// and is unbounded.
type AgingConfig struct {
	Buckets     []AgingBucket `yaml:"buckets"`
	OldestLimit int           `yaml:"oldestLimit"`
}

// AgingBucket is one labelled age range.
type AgingBucket struct {
	Label   string `yaml:"label"`
	MaxDays int    `yaml:"maxDays"`
}

// OutlierConfig controls percentile outlier selection.
type OutlierConfig struct {
	Percentile float64 `yaml:"percentile"`
	Limit      int     `yaml:"limit"`
}

// AnalysisConfig holds cross-cutting computation settings.
type AnalysisConfig struct {
	TopN            int           `yaml:"topN"`
	Timezone        string        `yaml:"timezone"`
	Parallelism     int           `yaml:"parallelism"`
	// FutureTolerance is how far past asOf a start time may lie before it is
	// treated as invalid.
	FutureTolerance time.Duration `yaml:"futureTolerance"`
}

// InsightsConfig points at the optional insight rule pack.
type InsightsConfig struct {
	RulesPath string `yaml:"rulesPath"`
}

// CacheConfig controls memoisation of computed metrics.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	MetricsTTL   time.Duration `yaml:"metricsTTL"`
	MemoTTL      time.Duration `yaml:"memoTTL"`
	MemoSize     int           `yaml:"memoSize"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("INCIDENT_METRICS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, utils.NewAppError("config.Load", "invalid configuration", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the environment.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Source: SourceConfig{
			Type: SourceHTTP,
			HTTP: HTTPSource{
				IncidentsPath: "/api/v1/incidents",
				Timeout:       10 * time.Second,
				MaxRetries:    2,
			},
			Postgres:        PostgresSource{Table: "incidents", MaxConns: 4},
			RefreshSchedule: "@every 5m",
		},
		SLA: SLAConfig{
			Targets: map[string]float64{
				"S1": 360,
				"S2": 300,
				"S3": 240,
				"S4": 180,
				"S5": 60,
			},
			Aliases: map[string]string{
				"blue":   "S1",
				"yellow": "S2",
				"orange": "S3",
				"red":    "S4",
				"black":  "S5",
			},
		},
		Status: StatusConfig{
			ClosedMarkers: []string{"closed", "done"},
			OpenMarkers:   []string{"open", "in progress", "pending", "on hold", "escalated"},
		},
		Risk: RiskConfig{
			GroupBy:           "site",
			VolumeWeight:      2,
			VolumeCap:         30,
			DurationWeight:    10,
			DurationCap:       30,
			ReliabilityWeight: 0.2,
			ReliabilityCap:    20,
			SLAWeight:         0.2,
			SLACap:            20,
			HighRiskThreshold: 50,
		},
		Aging: AgingConfig{
			Buckets: []AgingBucket{
				{Label: "<1d", MaxDays: 1},
				{Label: "1–3d", MaxDays: 3},
				{Label: "3–7d", MaxDays: 7},
				{Label: ">7d"},
			},
			OldestLimit: 5,
		},
		Outliers: OutlierConfig{Percentile: 0.95, Limit: 5},
		Analysis: AnalysisConfig{TopN: 5, Timezone: "UTC", Parallelism: 4, FutureTolerance: 24 * time.Hour},
		Insights: InsightsConfig{RulesPath: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			MetricsTTL:   10 * time.Minute,
			MemoTTL:      5 * time.Minute,
			MemoSize:     256,
		},
	}
}

// Validate checks the settings that would make every computation meaningless.
func (c *Config) Validate() error {
	var errs []error

	for _, tier := range []string{"S1", "S2", "S3", "S4", "S5"} {
		target, ok := lookupFold(c.SLA.Targets, tier)
		if !ok {
			errs = append(errs, fmt.Errorf("sla.targets: missing target for %s", tier))
			continue
		}
		if target <= 0 {
			errs = append(errs, fmt.Errorf("sla.targets: target for %s must be positive, got %v", tier, target))
		}
	}
	if len(c.Status.ClosedMarkers) == 0 {
		errs = append(errs, errors.New("status.closedMarkers: at least one marker is required"))
	}
	if !utils.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("analysis.timezone: %w", err))
	}
	if p := c.Outliers.Percentile; p <= 0 || p > 1 {
		errs = append(errs, fmt.Errorf("outliers.percentile must be within (0, 1], got %v", p))
	}
	if err := validateBuckets(c.Aging.Buckets); err != nil {
		errs = append(errs, err)
	}
	if c.Analysis.FutureTolerance < 0 {
		errs = append(errs, fmt.Errorf("analysis.futureTolerance must not be negative, got %s", c.Analysis.FutureTolerance))
	}
	if c.Risk.HighRiskThreshold < 0 || c.Risk.DurationBaselineMinutes < 0 {
		errs = append(errs, errors.New("risk: threshold and baseline must not be negative"))
	}
	switch strings.ToLower(c.Source.Type) {
	case SourceHTTP, SourceFile, SourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("source.type: unsupported source %q", c.Source.Type))
	}

	return errors.Join(errs...)
}

func validateBuckets(buckets []AgingBucket) error {
	if len(buckets) == 0 {
		return errors.New("aging.buckets: at least one bucket is required")
	}
	prev := 0
	for i, b := range buckets {
		if strings.TrimSpace(b.Label) == "" {
			return fmt.Errorf("aging.buckets[%d]: label is required", i)
		}
		last := i == len(buckets)-1
		if last {
			if b.MaxDays != 0 {
				return fmt.Errorf("aging.buckets[%d]: last bucket must be unbounded (maxDays 0)", i)
			}
			continue
		}
		if b.MaxDays <= prev {
			return fmt.Errorf("aging.buckets[%d]: maxDays must increase, got %d after %d", i, b.MaxDays, prev)
		}
		prev = b.MaxDays
	}
	return nil
}

func lookupFold(m map[string]float64, key string) (float64, bool) {
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	return 0, false
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INCIDENT_METRICS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("INCIDENT_METRICS_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("INCIDENT_METRICS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("INCIDENT_METRICS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INCIDENT_METRICS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("INCIDENT_METRICS_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("INCIDENT_METRICS_SOURCE_URL"); v != "" {
		cfg.Source.HTTP.BaseURL = v
	}
	if v := os.Getenv("INCIDENT_METRICS_SOURCE_PATH"); v != "" {
		cfg.Source.HTTP.IncidentsPath = v
	}
	if v := os.Getenv("INCIDENT_METRICS_SOURCE_FILE"); v != "" {
		cfg.Source.File.Path = v
	}
	if v := os.Getenv("INCIDENT_METRICS_POSTGRES_DSN"); v != "" {
		cfg.Source.Postgres.DSN = v
	}
	if v := os.Getenv("INCIDENT_METRICS_POSTGRES_TABLE"); v != "" {
		cfg.Source.Postgres.Table = v
	}
	if v := os.Getenv("INCIDENT_METRICS_REFRESH_SCHEDULE"); v != "" {
		cfg.Source.RefreshSchedule = v
	}
	if v := os.Getenv("INCIDENT_METRICS_TIMEZONE"); v != "" {
		cfg.Analysis.Timezone = v
	}
	if v := os.Getenv("INCIDENT_METRICS_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Parallelism = n
		}
	}
	if v := os.Getenv("INCIDENT_METRICS_FUTURE_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.FutureTolerance = d
		}
	}
	if v := os.Getenv("INCIDENT_METRICS_RULES_PATH"); v != "" {
		cfg.Insights.RulesPath = v
	}
	if v := os.Getenv("INCIDENT_METRICS_HIGH_RISK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.HighRiskThreshold = f
		}
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("INCIDENT_METRICS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.MetricsTTL = d
		}
	}
	if v := os.Getenv("INCIDENT_METRICS_MEMO_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.MemoTTL = d
		}
	}
}

// Fingerprint returns a stable digest of the effective configuration. Two configs
// with the same fingerprint produce identical metrics for the same snapshot.
func (c *Config) Fingerprint() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
