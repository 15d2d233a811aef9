// Package poller drives the dashboard's periodic evaluation of the latest
// readings per location.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

// LatestSource returns the most recent snapshot of every location.
type LatestSource interface {
	Latest(ctx context.Context) ([]domain.Snapshot, error)
}

// Evaluator classifies one reading, returning the alert it raised, if any.
type Evaluator interface {
	Evaluate(ctx context.Context, r domain.Reading) (*domain.Alert, error)
}

// TickResult summarizes one poll.
type TickResult struct {
	Snapshots int
	Evaluated int
	Alerts    []domain.Alert
	Failures  int
}

// Poller evaluates the latest snapshots on a fixed schedule.
type Poller struct {
	source      LatestSource
	evaluator   Evaluator
	interval    time.Duration
	tickTimeout time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
}

// New creates a Poller. tickTimeout bounds each tick; zero means no bound.
func New(source LatestSource, evaluator Evaluator, interval, tickTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		source:      source,
		evaluator:   evaluator,
		interval:    interval,
		tickTimeout: tickTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once at least one tick has completed.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("poller has not completed a tick yet")
	}
	return nil
}

// Tick evaluates every reading of every latest snapshot in turn. A failing
// reading is logged and counted; the rest of the tick still runs. An error is
// returned only when the snapshots could not be fetched at all.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	var res TickResult

	snapshots, err := p.source.Latest(ctx)
	if err != nil {
		p.metrics.PollTickFailures.Inc()
		return res, fmt.Errorf("fetch latest snapshots: %w", err)
	}
	res.Snapshots = len(snapshots)

	for _, snap := range snapshots {
		for _, r := range snap.Readings() {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			alert, err := p.evaluator.Evaluate(ctx, r)
			if err != nil {
				res.Failures++
				p.logger.Error("evaluate reading failed", "error", err,
					"location", r.Location, "parameter", r.Parameter, "value", r.Value)
				continue
			}
			res.Evaluated++
			if alert != nil {
				res.Alerts = append(res.Alerts, *alert)
			}
		}
	}

	p.metrics.PollTicks.Inc()
	p.metrics.PollTickDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return res, nil
}

// Run schedules Tick every interval until ctx is cancelled, then waits for the
// in-flight tick. A tick still running when the next is due is skipped, so
// ticks never overlap.
func (p *Poller) Run(ctx context.Context) error {
	cl := cronLogger{logger: p.logger.With("component", "cron")}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(cron.Every(p.interval), cron.FuncJob(func() { p.runTick(ctx) }))

	p.logger.Info("poller started", "interval", p.interval, "tick_timeout", p.tickTimeout)
	c.Start()

	<-ctx.Done()
	p.logger.Info("poller stopping", "reason", ctx.Err())
	<-c.Stop().Done()
	return nil
}

// runTick detaches the tick from shutdown so an in-flight evaluation finishes
// its store write; the tick timeout still bounds it.
func (p *Poller) runTick(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx := context.WithoutCancel(parent)
	if p.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.tickTimeout)
		defer cancel()
	}

	res, err := p.Tick(ctx)
	if err != nil {
		p.logger.Error("poll tick failed", "error", err)
		return
	}
	if len(res.Alerts) > 0 || res.Failures > 0 {
		p.logger.Info("poll tick completed",
			"snapshots", res.Snapshots,
			"evaluated", res.Evaluated,
			"alerts", len(res.Alerts),
			"failures", res.Failures,
		)
	}
}
