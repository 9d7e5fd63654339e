package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics holds all metrics for the scheduler daemon: the
// reconciliation loop, the state machine's transitions, the effect
// dispatcher, and the gateways to the executor and CI server.
type SchedulerMetrics struct {
	// Agent population
	AgentsByState *prometheus.GaugeVec

	// State machine
	StateTransitionsTotal *prometheus.CounterVec

	// Reconciliation loop
	ReconcileDuration       prometheus.Histogram
	ReconcileAgentsObserved prometheus.Gauge

	// Effect dispatcher
	EffectsTotal    *prometheus.CounterVec
	EffectDuration  *prometheus.HistogramVec
	DispatcherQueue prometheus.Gauge

	// Admission
	AdmissionDecisionsTotal *prometheus.CounterVec

	// Executor/CI server gateways
	ExecutorConnectionsActive prometheus.Gauge
	ExecutorErrorsTotal       *prometheus.CounterVec
	CIServerErrorsTotal       *prometheus.CounterVec
}

// newSchedulerMetrics creates and registers all scheduler metrics.
func newSchedulerMetrics(registry *prometheus.Registry) *SchedulerMetrics {
	m := &SchedulerMetrics{
		AgentsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "elasticagent",
				Subsystem: "scheduler",
				Name:      "agents_by_state",
				Help:      "Number of managed agent records by state.",
			},
			[]string{"state"},
		),

		StateTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "elasticagent",
				Subsystem: "scheduler",
				Name:      "state_transitions_total",
				Help:      "Total number of state machine transitions.",
			},
			[]string{"from", "to"},
		),

		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "elasticagent",
				Subsystem: "reconcile",
				Name:      "pass_duration_seconds",
				Help:      "Duration of a single reconciliation pass in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		ReconcileAgentsObserved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "elasticagent",
				Subsystem: "reconcile",
				Name:      "agents_observed",
				Help:      "Number of distinct agent ids observed in the last reconciliation pass.",
			},
		),

		EffectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "elasticagent",
				Subsystem: "dispatcher",
				Name:      "effects_total",
				Help:      "Total number of dispatched effects by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),

		EffectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "elasticagent",
				Subsystem: "dispatcher",
				Name:      "effect_duration_seconds",
				Help:      "Duration of effect execution in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		DispatcherQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "elasticagent",
				Subsystem: "dispatcher",
				Name:      "queue_depth",
				Help:      "Number of effects submitted but not yet picked up by a worker.",
			},
		),

		AdmissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "elasticagent",
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Total number of create-agent admission decisions by outcome.",
			},
			[]string{"decision"},
		),

		ExecutorConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "elasticagent",
				Subsystem: "executorclient",
				Name:      "connections_active",
				Help:      "Number of cached executor connections held by the gateway.",
			},
		),

		ExecutorErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "elasticagent",
				Subsystem: "executorclient",
				Name:      "errors_total",
				Help:      "Total number of executor gateway errors by code.",
			},
			[]string{"code"},
		),

		CIServerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "elasticagent",
				Subsystem: "ciserver",
				Name:      "errors_total",
				Help:      "Total number of CI server gateway errors by code.",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.AgentsByState,
		m.StateTransitionsTotal,
		m.ReconcileDuration,
		m.ReconcileAgentsObserved,
		m.EffectsTotal,
		m.EffectDuration,
		m.DispatcherQueue,
		m.AdmissionDecisionsTotal,
		m.ExecutorConnectionsActive,
		m.ExecutorErrorsTotal,
		m.CIServerErrorsTotal,
	)

	return m
}

// RecordEffectOutcome records a dispatched effect's terminal outcome.
// Satisfies internal/dispatcher's Metrics interface.
func (m *SchedulerMetrics) RecordEffectOutcome(kind string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.EffectsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordEffectDuration records how long an effect took to execute.
func (m *SchedulerMetrics) RecordEffectDuration(kind string, durationSeconds float64) {
	m.EffectDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordReconcilePass records one reconciliation pass. Satisfies
// internal/reconcile's Metrics interface.
func (m *SchedulerMetrics) RecordReconcilePass(d time.Duration, agents int) {
	m.ReconcileDuration.Observe(d.Seconds())
	m.ReconcileAgentsObserved.Set(float64(agents))
}

// SetAgentsByState replaces the agents-by-state gauge with fresh counts;
// stale states are reset rather than left at their last observed value.
func (m *SchedulerMetrics) SetAgentsByState(counts map[string]int) {
	m.AgentsByState.Reset()
	for state, count := range counts {
		m.AgentsByState.WithLabelValues(state).Set(float64(count))
	}
}

// RecordStateTransition records one state machine transition.
func (m *SchedulerMetrics) RecordStateTransition(from, to string) {
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordAdmissionDecision records one create-agent admission outcome
// ("created", "deduped", "quota_rejected").
func (m *SchedulerMetrics) RecordAdmissionDecision(decision string) {
	m.AdmissionDecisionsTotal.WithLabelValues(decision).Inc()
}

// SetDispatcherQueueDepth sets the number of effects awaiting a worker.
func (m *SchedulerMetrics) SetDispatcherQueueDepth(depth int) {
	m.DispatcherQueue.Set(float64(depth))
}

// SetExecutorConnections sets the number of cached executor connections.
func (m *SchedulerMetrics) SetExecutorConnections(n int) {
	m.ExecutorConnectionsActive.Set(float64(n))
}

// RecordExecutorError records one executor gateway error by code.
func (m *SchedulerMetrics) RecordExecutorError(code string) {
	m.ExecutorErrorsTotal.WithLabelValues(code).Inc()
}

// RecordCIServerError records one CI server gateway error by code.
func (m *SchedulerMetrics) RecordCIServerError(code string) {
	m.CIServerErrorsTotal.WithLabelValues(code).Inc()
}
