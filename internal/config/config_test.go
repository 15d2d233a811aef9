package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []domain.LocationID{1, 2, 3}, cfg.Locations)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.TickTimeout)
	assert.Equal(t, 60*time.Second, cfg.SuppressionWindow)
	assert.Empty(t, cfg.ParametersFile)
	assert.Equal(t, "readings.db", cfg.ReadingsDBPath)
	assert.Equal(t, "alerts.db", cfg.AlertsDBPath)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "water-readings", cfg.KafkaSourceTopic)
	assert.Equal(t, "water-quality-alerts", cfg.KafkaAlertTopic)
	assert.Equal(t, "water-quality-monitor", cfg.KafkaGroupID)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "alerts", cfg.NATSSubjectPrefix)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("LOCATIONS", "4, 7,4")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("TICK_TIMEOUT", "1s")
	t.Setenv("SUPPRESSION_WINDOW", "5m")
	t.Setenv("PARAMETERS_FILE", "/etc/wq/parameters.yaml")
	t.Setenv("READINGS_DB_PATH", "/var/lib/wq/readings.db")
	t.Setenv("ALERTS_DB_PATH", "/var/lib/wq/alerts.db")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_ALERT_TOPIC", "custom-alerts")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", "wq.alerts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []domain.LocationID{4, 7}, cfg.Locations)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.TickTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SuppressionWindow)
	assert.Equal(t, "/etc/wq/parameters.yaml", cfg.ParametersFile)
	assert.Equal(t, "/var/lib/wq/readings.db", cfg.ReadingsDBPath)
	assert.Equal(t, "/var/lib/wq/alerts.db", cfg.AlertsDBPath)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-alerts", cfg.KafkaAlertTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "wq.alerts", cfg.NATSSubjectPrefix)
	assert.True(t, cfg.HasLocation(7))
	assert.False(t, cfg.HasLocation(1))
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"SHUTDOWN_TIMEOUT", "POLL_INTERVAL", "TICK_TIMEOUT", "SUPPRESSION_WINDOW", "BATCH_FLUSH_INTERVAL"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "not-a-duration")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_BatchSizeTooLarge(t *testing.T) {
	t.Setenv("BATCH_SIZE", "9999")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidLocations(t *testing.T) {
	t.Setenv("LOCATIONS", "1,two")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCATIONS")
}

func TestLoad_TickTimeoutExceedsWindow(t *testing.T) {
	t.Setenv("TICK_TIMEOUT", "2m")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICK_TIMEOUT")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoadCatalog_Default(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCatalog().Names(), c.Names())
}

func TestLoadCatalog_YAML(t *testing.T) {
	path := writeFile(t, "parameters.yaml", `
parameters:
  - name: ORP
    unit: mV
    valid_range: {min: -2000, max: 2000}
    safe_range: {min: 200, max: 800}
    thresholds:
      minor: {low: 100, high: 100}
      average: {low: 200, high: 200}
      major: {low: 300, high: 300}
  - name: turbidity
    unit: NTU
    valid_range: {min: 0, max: 100}
    safe_range: {min: 0, max: 5}
    thresholds:
      minor: {low: 0, high: 5}
      average: {low: 0, high: 10}
      major: {low: 0, high: 20}
`)

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"orp", "turbidity"}, c.Names())

	orp, ok := c.Lookup("orp")
	require.True(t, ok)
	assert.Equal(t, "orp", orp.Name)
	assert.Equal(t, domain.Range{Min: 200, Max: 800}, orp.SafeRange)
	assert.Equal(t, domain.Deviation{Low: 300, High: 300}, orp.Thresholds.Major)
	assert.Equal(t, domain.SeverityMajor, domain.Classify(orp, 1150).Severity)
}

func TestLoadCatalog_RejectsDecreasingThresholds(t *testing.T) {
	path := writeFile(t, "parameters.json", `{"parameters":[{"name":"ph","unit":"pH",
"valid_range":{"min":0,"max":14},"safe_range":{"min":6.5,"max":8.5},
"thresholds":{"minor":{"low":1,"high":1},"average":{"low":0.5,"high":1},"major":{"low":1.5,"high":1.5}}}]}`)

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not decrease")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read parameters file")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
