package repo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

// PostgresSource reads incidents from a relational table.
type PostgresSource struct {
	pool   *pgxpool.Pool
	query  string
	logger *slog.Logger
}

// NewPostgresSource connects and pings the database.
func NewPostgresSource(ctx context.Context, cfg config.PostgresSource, logger *slog.Logger) (*PostgresSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, utils.NewAppError("repo.NewPostgresSource", "parse dsn", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, utils.NewAppError("repo.NewPostgresSource", "create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, utils.NewAppError("repo.NewPostgresSource", "ping", err)
	}
	return &PostgresSource{pool: pool, query: incidentsQuery(cfg.Table), logger: logger}, nil
}

// incidentsQuery selects the record columns from table. The table name may be
// schema-qualified ("ops.incidents") and is quoted as an identifier.
func incidentsQuery(table string) string {
	if table == "" {
		table = "incidents"
	}
	return fmt.Sprintf(`
		SELECT COALESCE(id::text, ''), COALESCE(case_number, ''), COALESCE(severity, ''),
		       COALESCE(priority, ''), COALESCE(status, ''), COALESCE(site, ''),
		       COALESCE(cause, ''), COALESCE(action, ''), COALESCE(problem, ''),
		       start_time, end_time, escalation_start_time, total_pause_minutes::float8,
		       pause1_start, pause1_end, pause2_start, pause2_end
		FROM %s
		ORDER BY start_time NULLS LAST, id`, pgx.Identifier(splitQualified(table)).Sanitize())
}

func splitQualified(table string) []string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return []string{schema, name}
	}
	return []string{table}
}

// Fetch loads every row of the incident table.
func (s *PostgresSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		return nil, utils.NewAppError("repo.PostgresSource.Fetch", "query incidents", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RawRecord, error) {
		var r incidentRow
		if err := row.Scan(
			&r.ID, &r.CaseNumber, &r.Severity, &r.Priority, &r.Status, &r.Site,
			&r.Cause, &r.Action, &r.Problem,
			&r.StartTime, &r.EndTime, &r.EscalationStartTime, &r.TotalPauseMinutes,
			&r.Pause1Start, &r.Pause1End, &r.Pause2Start, &r.Pause2End,
		); err != nil {
			return models.RawRecord{}, err
		}
		return r.raw(), nil
	})
	if err != nil {
		return nil, utils.NewAppError("repo.PostgresSource.Fetch", "scan incidents", err)
	}
	s.logger.Debug("incidents loaded from postgres", slog.Int("records", len(records)))
	return nonNil(records), nil
}

// Close releases the pool.
func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}

type incidentRow struct {
	ID, CaseNumber, Severity, Priority, Status string
	Site, Cause, Action, Problem               string
	StartTime, EndTime, EscalationStartTime    *time.Time
	TotalPauseMinutes                          *float64
	Pause1Start, Pause1End                     *time.Time
	Pause2Start, Pause2End                     *time.Time
}

// raw converts nullable columns to RawRecord fields, leaving NULLs as nil.
func (r incidentRow) raw() models.RawRecord {
	rec := models.RawRecord{
		ID:         r.ID,
		CaseNumber: r.CaseNumber,
		Severity:   r.Severity,
		Priority:   r.Priority,
		Status:     r.Status,
		Site:       r.Site,
		Cause:      r.Cause,
		Action:     r.Action,
		Problem:    r.Problem,
	}
	rec.StartTime = timeOrNil(r.StartTime)
	rec.EndTime = timeOrNil(r.EndTime)
	rec.EscalationStartTime = timeOrNil(r.EscalationStartTime)
	rec.Pause1Start = timeOrNil(r.Pause1Start)
	rec.Pause1End = timeOrNil(r.Pause1End)
	rec.Pause2Start = timeOrNil(r.Pause2Start)
	rec.Pause2End = timeOrNil(r.Pause2End)
	if r.TotalPauseMinutes != nil {
		rec.TotalPauseMinutes = *r.TotalPauseMinutes
	}
	return rec
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
