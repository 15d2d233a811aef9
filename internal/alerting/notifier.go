package alerting

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// Notification is the side-channel signal emitted for each new alert.
type Notification struct {
	Alert domain.Alert
	Unit  string
}

// Message renders the notification for humans.
func (n Notification) Message() string {
	return n.Alert.Message(n.Unit)
}

// Notifier delivers notifications. Delivery is fire-and-forget: implementations
// log and count their own failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Fanout delivers each notification to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, notifier := range f {
		notifier.Notify(ctx, n)
	}
}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelWarn
	if n.Alert.Severity == domain.SeverityMajor {
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, n.Message(),
		"alert_id", n.Alert.ID,
		"location", n.Alert.Location,
		"parameter", n.Alert.Parameter,
		"value", n.Alert.Value,
		"status", n.Alert.Status,
		"severity", n.Alert.Severity,
	)
}
