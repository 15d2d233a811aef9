package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Monitored sites.
	Locations []domain.LocationID

	// Poller and alerting.
	PollInterval      time.Duration
	TickTimeout       time.Duration
	SuppressionWindow time.Duration
	ParametersFile    string

	// Storage.
	ReadingsDBPath string
	AlertsDBPath   string

	// Kafka ingest and alert fan-out.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaAlertTopic    string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// NATS alert fan-out; disabled when NATSURL is empty.
	NATSURL           string
	NATSSubjectPrefix string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	tickTimeout, err := parsePositiveDuration("TICK_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	window, err := parsePositiveDuration("SUPPRESSION_WINDOW", "60s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parsePositiveDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}
	locations, err := parseLocations(envOrDefault("LOCATIONS", "1,2,3"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Locations: locations,

		PollInterval:      pollInterval,
		TickTimeout:       tickTimeout,
		SuppressionWindow: window,
		ParametersFile:    os.Getenv("PARAMETERS_FILE"),

		ReadingsDBPath: envOrDefault("READINGS_DB_PATH", "readings.db"),
		AlertsDBPath:   envOrDefault("ALERTS_DB_PATH", "alerts.db"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "water-readings"),
		KafkaAlertTopic:    envOrDefault("KAFKA_ALERT_TOPIC", "water-quality-alerts"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "water-quality-monitor"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: envOrDefault("NATS_SUBJECT_PREFIX", "alerts"),
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaAlertTopic == "" {
			return nil, errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.TickTimeout > cfg.SuppressionWindow {
		return nil, errors.New("TICK_TIMEOUT must not exceed SUPPRESSION_WINDOW")
	}

	return cfg, nil
}

// HasLocation reports whether id is one of the configured sites.
func (c *Config) HasLocation(id domain.LocationID) bool {
	for _, l := range c.Locations {
		if l == id {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBatchSize() (int, error) {
	n, err := strconv.Atoi(envOrDefault("BATCH_SIZE", "50"))
	if err != nil || n < 1 || n > 1000 {
		return 0, errors.New("invalid BATCH_SIZE: must be between 1 and 1000")
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseLocations(s string) ([]domain.LocationID, error) {
	seen := make(map[domain.LocationID]bool)
	var out []domain.LocationID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: must be a non-negative integer", part)
		}
		id := domain.LocationID(n)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("LOCATIONS must name at least one site")
	}
	return out, nil
}
