package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "water_quality"

// Metrics holds the Prometheus counters, histograms, and gauges for the monitor.
type Metrics struct {
	// Ingest metrics (HTTP and Kafka).
	SnapshotsIngested *prometheus.CounterVec // labels: source={http,kafka}
	SnapshotsRejected *prometheus.CounterVec // labels: source={http,kafka}
	PipelineRunning   prometheus.Gauge

	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Poller metrics.
	PollTicks        prometheus.Counter
	PollTickDuration prometheus.Histogram
	PollTickFailures prometheus.Counter

	// Alert evaluation metrics.
	Evaluations      *prometheus.CounterVec // labels: parameter
	EvaluationErrors prometheus.Counter
	AlertsRaised     *prometheus.CounterVec // labels: parameter, severity
	AlertsSuppressed *prometheus.CounterVec // labels: reason={unchanged,window}

	Notifications *prometheus.CounterVec // labels: channel, outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_ingested_total",
			Help:      "Device snapshots persisted, by ingest source.",
		}, []string{"source"}),
		SnapshotsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_rejected_total",
			Help:      "Device snapshots rejected as invalid, by ingest source.",
		}, []string{"source"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the Kafka ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-parse-store cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		PollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Completed poller ticks.",
		}),
		PollTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_tick_duration_seconds",
			Help:      "Duration of a poller tick.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		PollTickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_tick_failures_total",
			Help:      "Poller ticks that could not fetch the latest snapshots.",
		}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Readings evaluated against their parameter thresholds.",
		}, []string{"parameter"}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Evaluations abandoned because the alert store failed.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts recorded, by parameter and severity.",
		}, []string{"parameter", "severity"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Out-of-range readings that did not raise an alert, by reason.",
		}, []string{"reason"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications sent, by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SnapshotsIngested,
		m.SnapshotsRejected,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.PollTicks,
		m.PollTickDuration,
		m.PollTickFailures,
		m.Evaluations,
		m.EvaluationErrors,
		m.AlertsRaised,
		m.AlertsSuppressed,
		m.Notifications,
	}
}
