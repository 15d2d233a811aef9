package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/water-quality-service/internal/alerting"
	"github.com/couchcryptid/water-quality-service/internal/config"
	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

const channel = "kafka"

// AlertWriter publishes alert notifications to the alert topic.
// It implements alerting.Notifier.
type AlertWriter struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAlertWriter creates a Kafka producer for the configured alert topic.
func NewAlertWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *AlertWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 5 * time.Second,
	}
	return &AlertWriter{writer: w, logger: logger, metrics: metrics}
}

// Notify publishes the alert. Failures are logged and counted, not returned.
func (w *AlertWriter) Notify(ctx context.Context, n alerting.Notification) {
	msg, err := serializeToMessage(n.Alert)
	if err == nil {
		err = w.writer.WriteMessages(ctx, msg)
	}
	if err != nil {
		w.metrics.Notifications.WithLabelValues(channel, "error").Inc()
		w.logger.Warn("publish alert to kafka failed", "error", err, "alert_id", n.Alert.ID)
		return
	}
	w.metrics.Notifications.WithLabelValues(channel, "success").Inc()
}

func (w *AlertWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an alert into a Kafka message keyed by
// location and parameter, so one sensor's alerts stay ordered on a partition.
func serializeToMessage(a domain.Alert) (kafkago.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(a.Location.String() + "/" + a.Parameter),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "detected_at", Value: []byte(a.DetectedAt.Format(time.RFC3339Nano))},
		},
	}, nil
}
