// Package dispatcher executes the effects the state machine produces on
// a worker pool, then reports each outcome back to the store by
// enqueuing the onSuccess/onFailure state the effect already carries
// (§4.8). It never computes business logic itself: a worker fails
// closed, reporting onFailure, whenever a gateway call returns an error
// or the worker panics.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/effect"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/store"
)

// Metrics is the narrow interface dispatcher needs from pkg/metrics, kept
// separate so tests don't need a live Prometheus registry.
type Metrics interface {
	RecordEffectOutcome(kind string, success bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordEffectOutcome(string, bool) {}

// Dispatcher runs effects on a fixed-size worker pool.
type Dispatcher struct {
	executor *executorclient.Gateway
	ci       *ciserver.Gateway
	st       *store.Store
	logger   *slog.Logger
	metrics  Metrics

	effects chan effect.Effect
}

// Config configures a Dispatcher's worker pool size.
type Config struct {
	Workers int
}

// DefaultConfig matches the teacher's modest default pool size
// (scheduler.DefaultConfig).
var DefaultConfig = Config{Workers: 8}

// New constructs a Dispatcher. metrics may be nil, in which case outcomes
// are simply not recorded.
func New(cfg Config, executor *executorclient.Gateway, ci *ciserver.Gateway, st *store.Store, logger *slog.Logger, metrics Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		executor: executor,
		ci:       ci,
		st:       st,
		logger:   logger.With("component", "dispatcher"),
		metrics:  metrics,
		effects:  make(chan effect.Effect, 256),
	}
}

// Run starts workers worker goroutines (DefaultConfig.Workers when
// workers <= 0) that drain the effect queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = DefaultConfig.Workers
	}
	for i := 0; i < workers; i++ {
		go d.worker(ctx)
	}
}

// Submit enqueues eff for execution. It blocks only on queue
// backpressure.
func (d *Dispatcher) Submit(ctx context.Context, eff effect.Effect) {
	select {
	case d.effects <- eff:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case eff := <-d.effects:
			d.run(ctx, eff)
		}
	}
}

// run executes one effect, containing any panic from a gateway call so
// one bad effect can never take down a worker, and reports the outcome
// to the store.
func (d *Dispatcher) run(ctx context.Context, eff effect.Effect) {
	outcome := eff.OnFailure
	success := false
	note := "effect outcome"

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("effect panicked", "kind", eff.Kind, "agent_id", eff.AgentID, "panic", r)
			}
		}()

		var err error
		switch eff.Kind {
		case effect.CreateExecutorJob:
			err = d.executor.CreateJob(ctx, eff.ExecutorURL, eff.JobSpec)
		case effect.KillExecutorJob:
			err = d.executor.KillTasks(ctx, eff.ExecutorURL, []string{eff.AgentID})
		case effect.DisableCIAgent:
			err = d.ci.DisableAgents(ctx, []string{eff.AgentID})
		case effect.DeleteCIAgent:
			err = d.ci.DeleteAgents(ctx, []string{eff.AgentID})
		default:
			d.logger.Error("unknown effect kind", "kind", eff.Kind)
			return
		}

		if err != nil {
			d.logger.Warn("effect failed", "kind", eff.Kind, "agent_id", eff.AgentID, "error", err)
			if eff.Kind == effect.CreateExecutorJob {
				note = fmt.Sprintf("create failed: %T %v", err, err)
			}
			return
		}
		success = true
		outcome = eff.OnSuccess
		if eff.Kind == effect.CreateExecutorJob {
			note = "job created"
		}
	}()

	d.metrics.RecordEffectOutcome(string(eff.Kind), success)
	d.st.ClearInFlight(eff.AgentID)

	if eff.AgentID == "" {
		return
	}
	d.st.UpdateAgent(eff.AgentID, func(current record.Record, exists bool) (record.Record, bool) {
		if !exists {
			return current, false
		}
		return current.Update(outcome, time.Now(), note), true
	})
}
