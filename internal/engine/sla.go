package engine

import (
	"errors"
	"fmt"

	"github.com/miradorstack/incident-metrics/internal/models"
)

// ErrInvalidTargets is returned when the SLA table cannot serve every tier.
var ErrInvalidTargets = errors.New("invalid SLA target table")

// TargetTable resolves a severity class to its target in minutes. The most
// critical tier carries the shortest target.
type TargetTable struct {
	targets map[models.Severity]float64
}

// NewTargetTable requires a strictly positive target for each of the five tiers.
func NewTargetTable(targets map[models.Severity]float64) (*TargetTable, error) {
	table := &TargetTable{targets: make(map[models.Severity]float64, len(models.SeverityTiers))}
	var errs []error
	for _, tier := range models.SeverityTiers {
		minutes, ok := targets[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("missing target for %s", tier))
			continue
		}
		if minutes <= 0 {
			errs = append(errs, fmt.Errorf("target for %s must be positive, got %v", tier, minutes))
			continue
		}
		table.targets[tier] = minutes
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargets, errors.Join(errs...))
	}
	return table, nil
}

// Target returns the target for sev. Unknown severity has no target.
func (t *TargetTable) Target(sev models.Severity) (float64, bool) {
	minutes, ok := t.targets[sev]
	return minutes, ok
}
