package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

// DefaultWindow is the suppression window applied when none is configured.
const DefaultWindow = 60 * time.Second

// ErrHistory wraps alert store failures surfaced by Evaluate.
var ErrHistory = errors.New("alert history unavailable")

// History is the alert store as seen by the deduplicator.
type History interface {
	// RecentAlert reports whether an alert with the same location, parameter and
	// severity was detected after since.
	RecentAlert(ctx context.Context, loc domain.LocationID, parameter string, severity domain.Severity, since time.Time) (bool, error)
	InsertAlert(ctx context.Context, alert domain.Alert) error
}

// Deduplicator turns readings into alerts, suppressing repeats of an unchanged
// value and of the same severity within the suppression window. It is meant to
// be driven by a single evaluator at a time.
type Deduplicator struct {
	catalog  *domain.Catalog
	history  History
	notifier Notifier
	lastSeen *LastSeen
	window   time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option customizes a Deduplicator.
type Option func(*Deduplicator)

// WithWindow overrides the suppression window.
func WithWindow(d time.Duration) Option {
	return func(dd *Deduplicator) {
		if d > 0 {
			dd.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(c clockwork.Clock) Option {
	return func(dd *Deduplicator) {
		if c != nil {
			dd.clock = c
		}
	}
}

// WithLastSeen injects the last-value state instead of a fresh one.
func WithLastSeen(s *LastSeen) Option {
	return func(dd *Deduplicator) {
		if s != nil {
			dd.lastSeen = s
		}
	}
}

// NewDeduplicator creates a Deduplicator. A nil notifier disables notifications.
func NewDeduplicator(catalog *domain.Catalog, history History, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Deduplicator {
	if notifier == nil {
		notifier = Fanout{}
	}
	d := &Deduplicator{
		catalog:  catalog,
		history:  history,
		notifier: notifier,
		lastSeen: NewLastSeen(),
		window:   DefaultWindow,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LastSeen exposes the deduplicator's last-value state.
func (d *Deduplicator) LastSeen() *LastSeen { return d.lastSeen }

// Evaluate classifies a reading and records a new alert when warranted. It
// returns (nil, nil) when no alert is due, including for parameters that are
// not monitored. Store failures are returned wrapped in ErrHistory and leave
// the last-value state untouched so the next evaluation retries.
func (d *Deduplicator) Evaluate(ctx context.Context, r domain.Reading) (*domain.Alert, error) {
	spec, ok := d.catalog.Lookup(r.Parameter)
	if !ok {
		return nil, nil
	}
	param := spec.Name

	if d.lastSeen.Unchanged(r.Location, param, r.Value) {
		d.metrics.AlertsSuppressed.WithLabelValues("unchanged").Inc()
		return nil, nil
	}
	d.metrics.Evaluations.WithLabelValues(param).Inc()

	c := domain.Classify(spec, r.Value)
	if !c.Flagged() {
		d.lastSeen.Store(r.Location, param, r.Value)
		return nil, nil
	}

	now := d.clock.Now().UTC()
	recent, err := d.history.RecentAlert(ctx, r.Location, param, c.Severity, now.Add(-d.window))
	if err != nil {
		d.metrics.EvaluationErrors.Inc()
		return nil, fmt.Errorf("%w: lookup recent alerts: %w", ErrHistory, err)
	}
	if recent {
		d.lastSeen.Store(r.Location, param, r.Value)
		d.metrics.AlertsSuppressed.WithLabelValues("window").Inc()
		d.logger.Debug("alert suppressed within window",
			"location", r.Location, "parameter", param, "severity", c.Severity, "value", r.Value)
		return nil, nil
	}

	alert := domain.Alert{
		ID:         uuid.NewString(),
		Location:   r.Location,
		Parameter:  param,
		Value:      r.Value,
		Status:     c.Status,
		Severity:   c.Severity,
		SafeMin:    spec.SafeRange.Min,
		SafeMax:    spec.SafeRange.Max,
		DetectedAt: now,
	}
	if err := d.history.InsertAlert(ctx, alert); err != nil {
		d.metrics.EvaluationErrors.Inc()
		return nil, fmt.Errorf("%w: insert alert: %w", ErrHistory, err)
	}
	d.lastSeen.Store(r.Location, param, r.Value)
	d.metrics.AlertsRaised.WithLabelValues(param, string(c.Severity)).Inc()

	d.notifier.Notify(ctx, Notification{Alert: alert, Unit: spec.Unit})
	return &alert, nil
}
