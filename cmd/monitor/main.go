package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/water-quality-service/internal/adapter/bolt"
	httpadapter "github.com/couchcryptid/water-quality-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/water-quality-service/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/water-quality-service/internal/adapter/nats"
	"github.com/couchcryptid/water-quality-service/internal/adapter/sqlite"
	"github.com/couchcryptid/water-quality-service/internal/adapter/websocket"
	"github.com/couchcryptid/water-quality-service/internal/alerting"
	"github.com/couchcryptid/water-quality-service/internal/config"
	"github.com/couchcryptid/water-quality-service/internal/observability"
	"github.com/couchcryptid/water-quality-service/internal/pipeline"
	"github.com/couchcryptid/water-quality-service/internal/poller"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("monitor exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	catalog, err := config.LoadCatalog(cfg.ParametersFile)
	if err != nil {
		return err
	}
	logger.Info("parameter catalog loaded", "parameters", catalog.Names())

	readings, err := bolt.Open(cfg.ReadingsDBPath)
	if err != nil {
		return err
	}
	defer closeWithLog(logger, "readings store", readings.Close)

	alerts, err := sqlite.Open(cfg.AlertsDBPath)
	if err != nil {
		return err
	}
	defer closeWithLog(logger, "alert store", alerts.Close)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := alerting.Backfill(ctx, alerts, catalog, logger); err != nil {
		logger.Warn("severity backfill failed", "error", err)
	}

	hub := websocket.NewHub(logger, metrics)
	notifiers := alerting.Fanout{alerting.NewLogNotifier(logger), hub}
	readiness := observability.Readiness{{Name: "alert store", Check: alerts}}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewAlertWriter(cfg, logger, metrics)
		defer closeWithLog(logger, "kafka alert writer", writer.Close)
		notifiers = append(notifiers, writer)
	}

	if cfg.NATSURL != "" {
		pub, err := natsadapter.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger, metrics)
		if err != nil {
			return err
		}
		defer closeWithLog(logger, "nats publisher", pub.Close)
		notifiers = append(notifiers, pub)
		readiness = append(readiness, observability.NamedCheck{Name: "nats", Check: pub})
	}

	dedup := alerting.NewDeduplicator(catalog, alerts, notifiers, logger, metrics,
		alerting.WithWindow(cfg.SuppressionWindow))
	p := poller.New(readings, dedup, cfg.PollInterval, cfg.TickTimeout, logger, metrics)
	readiness = append(readiness, observability.NamedCheck{Name: "poller", Check: p})

	var ingest *pipeline.Pipeline
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		defer closeWithLog(logger, "kafka reader", reader.Close)
		ingest = pipeline.New(reader, pipeline.NewTransformer(cfg.Locations), readings, logger, metrics, cfg.BatchSize)
		readiness = append(readiness, observability.NamedCheck{Name: "pipeline", Check: ingest})
		logger.Info("kafka ingest enabled", "topic", cfg.KafkaSourceTopic, "brokers", cfg.KafkaBrokers)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Readings:    readings,
		Alerts:      alerts,
		Catalog:     catalog,
		Locations:   cfg.Locations,
		Ready:       readiness,
		AlertStream: hub,
		Metrics:     metrics,
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	if ingest != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingest.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("background workers did not stop before shutdown timeout")
	}

	logger.Info("shutdown complete")
	return nil
}

func closeWithLog(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
