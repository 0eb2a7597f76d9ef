package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ExporterPlan is the endpoint set the exporter serves. A plan with neither
// endpoint stops the server.
type ExporterPlan struct {
	Addr    string
	Metrics bool
	Healthz bool
}

func (p ExporterPlan) Empty() bool {
	return !p.Metrics && !p.Healthz
}

// Exporter runs at most one HTTP server and restarts it only when the plan
// changes. A server that exited on its own is started again on the next Apply.
type Exporter struct {
	mu       sync.Mutex
	gatherer prometheus.Gatherer
	health   HealthSource
	logger   *zap.Logger
	run      *exporterRun
	stopped  bool
}

type exporterRun struct {
	plan   ExporterPlan
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (r *exporterRun) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func NewExporter(gatherer prometheus.Gatherer, health HealthSource, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{gatherer: gatherer, health: health, logger: logger}
}

// Apply moves the exporter to plan. The previous server is shut down before a
// new one binds, so the same address can be reused across restarts.
func (e *Exporter) Apply(plan ExporterPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	if e.run != nil && !e.run.exited() && e.run.plan == plan {
		return
	}
	e.stopLocked()
	if plan.Empty() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &exporterRun{plan: plan, cancel: cancel, done: make(chan struct{})}
	e.run = run
	e.logger.Info("starting observability exporter",
		zap.String("addr", plan.Addr),
		zap.Bool("metrics", plan.Metrics),
		zap.Bool("healthz", plan.Healthz),
	)
	go func() {
		defer close(run.done)
		run.err = StartHTTPServer(ctx, HTTPServerOptions{
			Addr:          plan.Addr,
			EnableMetrics: plan.Metrics,
			EnableHealthz: plan.Healthz,
			Health:        e.health,
			Registry:      e.gatherer,
		}, e.logger)
		if run.err != nil {
			e.logger.Error("observability exporter failed", zap.Error(run.err))
		}
	}()
}

// Plan returns the plan of the running server, or the zero plan when none is
// running.
func (e *Exporter) Plan() ExporterPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil || e.run.exited() {
		return ExporterPlan{}
	}
	return e.run.plan
}

// Err returns the error the last server exited with, if it has exited.
func (e *Exporter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil || !e.run.exited() {
		return nil
	}
	return e.run.err
}

// Stop shuts the server down and waits for it. Later Apply calls do nothing.
func (e *Exporter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.stopLocked()
}

func (e *Exporter) stopLocked() {
	if e.run == nil {
		return
	}
	e.run.cancel()
	<-e.run.done
	e.run = nil
}
