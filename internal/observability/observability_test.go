package observability

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/water-quality-service/internal/config"
)

type checkFunc func(context.Context) error

func (f checkFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

func TestReadiness(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	failing := checkFunc(func(context.Context) error { return errors.New("no tick yet") })

	assert.NoError(t, Readiness{}.CheckReadiness(context.Background()))
	assert.NoError(t, Readiness{{"poller", ok}, {"nats", ok}}.CheckReadiness(context.Background()))

	err := Readiness{{"nats", ok}, {"poller", failing}}.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Equal(t, "poller: no tick yet", err.Error())
}

func TestNewLogger_Levels(t *testing.T) {
	for _, tt := range []struct {
		level, format string
	}{
		{"debug", "json"},
		{"warn", "text"},
		{"bogus", "json"},
	} {
		logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: tt.format})
		require.NotNil(t, logger, tt.level)
	}
	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug), "debug disabled at warn")
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, func() error {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return err
			}
		}
		return nil
	}())

	m.AlertsRaised.WithLabelValues("orp", "major").Inc()
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "water_quality_alerts_raised_total" {
			found = true
		}
	}
	assert.True(t, found)
}
