// Package reconcile implements the periodic reconciliation loop (§4.9):
// on every ping, fetch each cluster's executor jobs and quotas in
// parallel, fetch the CI server's agent list once on the calling
// goroutine, join the three views by agent id, and drive one state
// machine step per id in the union.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riverci/elasticagent/internal/agentid"
	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/dispatcher"
	"github.com/riverci/elasticagent/internal/eventstream"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/riverci/elasticagent/internal/statemachine"
	"github.com/riverci/elasticagent/internal/store"
)

// Metrics is the narrow interface reconcile needs from pkg/metrics.
type Metrics interface {
	RecordReconcilePass(d time.Duration, agents int)
}

type noopMetrics struct{}

func (noopMetrics) RecordReconcilePass(time.Duration, int) {}

// Publisher is the narrow interface reconcile needs from
// internal/eventstream to notify operators of state transitions.
type Publisher interface {
	Publish(eventstream.TransitionEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(eventstream.TransitionEvent) {}

// Interval is the default ping period (§4.9).
const Interval = 15 * time.Second

// Loop drives the reconciliation ping.
type Loop struct {
	store      *store.Store
	executor   *executorclient.Gateway
	ci         *ciserver.Gateway
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	metrics    Metrics
	publisher  Publisher
	interval   time.Duration
}

// Config configures a Loop's ping interval; zero uses Interval.
type Config struct {
	Interval time.Duration
}

// New constructs a Loop.
func New(cfg Config, st *store.Store, executor *executorclient.Gateway, ci *ciserver.Gateway, disp *dispatcher.Dispatcher, logger *slog.Logger, metrics Metrics, publisher Publisher) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Loop{
		store:      st,
		executor:   executor,
		ci:         ci,
		dispatcher: disp,
		logger:     logger.With("component", "reconcile"),
		metrics:    metrics,
		publisher:  publisher,
		interval:   cfg.Interval,
	}
}

// Run pings on l.interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Ping(ctx)
		}
	}
}

// Ping runs one reconciliation pass.
func (l *Loop) Ping(ctx context.Context) {
	start := time.Now()
	snap := l.store.Snapshot()

	jobsByCluster, quotasByCluster := l.fetchExecutorState(ctx, snap)
	ciAgents, err := l.ci.ListAgents(ctx)
	if err != nil {
		l.logger.Warn("failed to list ci agents", "error", err)
		ciAgents = nil
	}
	ciByID := make(map[string]ciserver.AgentInfo, len(ciAgents))
	for _, a := range ciAgents {
		ciByID[a.ID] = a
	}

	for cluster, byRole := range quotasByCluster {
		for role, q := range byRole {
			l.store.SetQuota(cluster, role, q)
		}
	}

	ids := unionIDs(snap.Agents, jobsByCluster, ciAgents)
	for _, id := range ids {
		l.step(ctx, snap, id, jobsByCluster, ciByID)
	}

	l.metrics.RecordReconcilePass(time.Since(start), len(ids))
}

// fetchExecutorState fetches each cluster's job list and per-role quota
// concurrently (§4.9 "parallel fetch of quotas + executor jobs per
// cluster").
func (l *Loop) fetchExecutorState(ctx context.Context, snap *store.Snapshot) (map[string]map[string]executorclient.JobSummary, map[string]map[string]resources.Quota) {
	jobs := make(map[string]map[string]executorclient.JobSummary, len(snap.Clusters))
	quotas := make(map[string]map[string]resources.Quota, len(snap.Clusters))

	rolesByCluster := make(map[string]map[string]struct{})
	for _, r := range snap.Agents {
		if rolesByCluster[r.Cluster] == nil {
			rolesByCluster[r.Cluster] = make(map[string]struct{})
		}
		rolesByCluster[r.Cluster][r.Role] = struct{}{}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for cluster, cs := range snap.Clusters {
		cluster, cs := cluster, cs
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := l.executor.ListJobs(ctx, cs.ExecutorURL)
			if err != nil {
				l.logger.Warn("failed to list executor jobs", "cluster", cluster, "error", err)
				return
			}
			byName := make(map[string]executorclient.JobSummary, len(list))
			for _, j := range list {
				byName[j.Name] = j
			}
			mu.Lock()
			jobs[cluster] = byName
			mu.Unlock()
		}()

		for role := range rolesByCluster[cluster] {
			cluster, cs, role := cluster, cs, role
			wg.Add(1)
			go func() {
				defer wg.Done()
				q, err := l.executor.GetQuota(ctx, cs.ExecutorURL, role)
				if err != nil {
					l.logger.Warn("failed to fetch quota", "cluster", cluster, "role", role, "error", err)
					return
				}
				mu.Lock()
				if quotas[cluster] == nil {
					quotas[cluster] = make(map[string]resources.Quota)
				}
				quotas[cluster][role] = q
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
	return jobs, quotas
}

// unionIDs collects every agent id the store, the executor, or the CI
// server currently know about (§4.9 "join by agent id ... union of ids").
// Ids reported by the executor or CI server that don't parse as
// "cluster/role/env/name" are not ours to manage (internal/agentid's
// package doc) and are filtered out here rather than adopted.
func unionIDs(agents map[string]record.Record, jobsByCluster map[string]map[string]executorclient.JobSummary, ciAgents []ciserver.AgentInfo) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range agents {
		add(id)
	}
	for _, byName := range jobsByCluster {
		for name := range byName {
			if _, ok := agentid.Parse(name); ok {
				add(name)
			}
		}
	}
	for _, a := range ciAgents {
		if _, ok := agentid.Parse(a.ID); ok {
			add(a.ID)
		}
	}
	return ids
}

// step drives one state machine transition for id and applies its
// result: installs the next record and, if an effect was issued, marks
// id in flight and submits the effect to the dispatcher. The cluster
// used to resolve the executor/CI server URLs and to look up id's
// executor job is taken from the existing record when there is one,
// and otherwise parsed straight out of id — an adopted legacy/orphan
// record (no existing store entry) still needs a real executor URL to
// kill its job against, not an unresolved empty string.
func (l *Loop) step(ctx context.Context, snap *store.Snapshot, id string, jobsByCluster map[string]map[string]executorclient.JobSummary, ciByID map[string]ciserver.AgentInfo) {
	current, exists := snap.Agents[id]

	cluster := current.Cluster
	if !exists {
		if parsed, ok := agentid.Parse(id); ok {
			cluster = parsed.Cluster
		}
	}
	cs := snap.Clusters[cluster]
	executorURL, ciServerURL := cs.ExecutorURL, cs.CIServerURL

	var execJob *executorclient.JobSummary
	if byName, ok := jobsByCluster[cluster]; ok {
		if j, ok := byName[id]; ok {
			j := j
			execJob = &j
		}
	}
	var ciAgent *ciserver.AgentInfo
	if a, ok := ciByID[id]; ok {
		a := a
		ciAgent = &a
	}

	var recPtr *record.Record
	if exists {
		recPtr = &current
	}

	result := statemachine.Manage(recPtr, statemachine.Input{
		Now:         time.Now(),
		AgentID:     id,
		ExecutorURL: executorURL,
		CIServerURL: ciServerURL,
		ExecJob:     execJob,
		CIAgent:     ciAgent,
		NewEffectID: func() string { return uuid.NewString() },
	})

	l.store.UpdateAgent(id, func(record.Record, bool) (record.Record, bool) {
		if result.Next == nil {
			return record.Record{}, false
		}
		return *result.Next, true
	})

	if result.Next != nil && (!exists || result.Next.State != current.State) {
		from := record.State("")
		if exists {
			from = current.State
		}
		l.publisher.Publish(eventstream.TransitionEvent{
			AgentID:   id,
			Cluster:   result.Next.Cluster,
			Role:      result.Next.Role,
			From:      from,
			To:        result.Next.State,
			Timestamp: time.Now(),
		})
	}

	if result.Effect != nil {
		l.store.MarkInFlight(id)
		eff := *result.Effect
		eff.AgentID = id
		if eff.ExecutorURL == "" {
			eff.ExecutorURL = executorURL
		}
		if eff.CIServerURL == "" {
			eff.CIServerURL = ciServerURL
		}
		l.dispatcher.Submit(ctx, eff)
	}
}
