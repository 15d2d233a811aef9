// Package nats publishes alert notifications on NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/couchcryptid/water-quality-service/internal/alerting"
	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

const channel = "nats"

// Publisher implements alerting.Notifier on a NATS connection. Alerts go to
// "<prefix>.<location>.<parameter>".
type Publisher struct {
	conn    *natsgo.Conn
	prefix  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Connect dials the server and returns a Publisher that owns the connection.
func Connect(url, prefix string, logger *slog.Logger, metrics *observability.Metrics) (*Publisher, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("water-quality-monitor"),
		natsgo.Timeout(5*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger, metrics: metrics}, nil
}

// Subject returns the subject an alert is published on.
func (p *Publisher) Subject(a domain.Alert) string {
	return fmt.Sprintf("%s.%d.%s", p.prefix, a.Location, a.Parameter)
}

// Notify publishes the alert as JSON. Failures are logged and counted.
func (p *Publisher) Notify(_ context.Context, n alerting.Notification) {
	data, err := json.Marshal(n.Alert)
	if err == nil {
		err = p.conn.Publish(p.Subject(n.Alert), data)
	}
	if err != nil {
		p.metrics.Notifications.WithLabelValues(channel, "error").Inc()
		p.logger.Warn("publish alert to nats failed", "error", err, "alert_id", n.Alert.ID)
		return
	}
	p.metrics.Notifications.WithLabelValues(channel, "success").Inc()
}

// CheckReadiness reports whether the connection is up.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", p.conn.Status())
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
