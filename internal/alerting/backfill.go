package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// LegacyStore exposes alert rows written before severity was recorded.
type LegacyStore interface {
	MissingSeverity(ctx context.Context) ([]domain.Alert, error)
	SetSeverity(ctx context.Context, id string, severity domain.Severity) error
}

// Backfill assigns a severity to legacy alerts by reclassifying their stored
// value. Alerts whose parameter is no longer monitored, or whose value clears
// no tier, are left untouched. It returns the number of rows updated.
func Backfill(ctx context.Context, store LegacyStore, catalog *domain.Catalog, logger *slog.Logger) (int, error) {
	legacy, err := store.MissingSeverity(ctx)
	if err != nil {
		return 0, fmt.Errorf("list legacy alerts: %w", err)
	}

	updated := 0
	for _, a := range legacy {
		spec, ok := catalog.Lookup(a.Parameter)
		if !ok {
			logger.Warn("skipping legacy alert for unmonitored parameter", "alert_id", a.ID, "parameter", a.Parameter)
			continue
		}
		c := domain.Classify(spec, a.Value)
		if !c.Flagged() {
			continue
		}
		if err := store.SetSeverity(ctx, a.ID, c.Severity); err != nil {
			return updated, fmt.Errorf("backfill alert %s: %w", a.ID, err)
		}
		updated++
	}

	if updated > 0 {
		logger.Info("backfilled alert severities", "updated", updated, "legacy", len(legacy))
	}
	return updated, nil
}
