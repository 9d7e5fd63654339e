// Package store implements the scheduler's single-writer state store
// (§4.6). All mutation is serialized through one writer goroutine that
// drains a queue of closures, exactly as the original plugin kept one
// mutable root (a single atom seeded {clients, clusters, agents}) rather
// than three independently-locked maps (§9, §3 "Ownership"). Readers that
// can tolerate eventual consistency — admission's shouldAssignWork check
// chief among them — read a lock-free atomic snapshot instead of going
// through the writer.
package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
)

// ClusterState is the scheduler's bookkeeping for one cluster: where to
// reach its executor and CI server, and the most recently observed
// per-role quota (§3 ClusterProfile-derived runtime state).
type ClusterState struct {
	ExecutorURL string
	CIServerURL string
	Quota       map[string]resources.Quota
}

// state is the store's single mutable root: three maps under one writer,
// matching original_source's {:clients {}, :clusters {}, :agents {}}.
type state struct {
	agents   map[string]record.Record
	clusters map[string]ClusterState
	// clients tracks which agent ids currently have an outstanding effect
	// in flight (§4.8). It is not published in Snapshot and nothing reads
	// it.
	clients map[string]struct{}
}

func newState() *state {
	return &state{
		agents:   make(map[string]record.Record),
		clusters: make(map[string]ClusterState),
		clients:  make(map[string]struct{}),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.agents {
		out.agents[k] = v
	}
	for k, v := range s.clusters {
		out.clusters[k] = v
	}
	for k, v := range s.clients {
		out.clients[k] = v
	}
	return out
}

// Snapshot is a read-only, point-in-time view published after every
// mutation for lock-free reads (§4.6, §4.10 shouldAssignWork).
type Snapshot struct {
	Agents   map[string]record.Record
	Clusters map[string]ClusterState
}

// Store is the scheduler's state store: a single writer goroutine
// serializing all mutation, and an atomically-published snapshot for
// readers that don't need to go through the writer.
type Store struct {
	logger *slog.Logger
	cmds   chan func(*state)
	snap   atomic.Pointer[Snapshot]
	done   chan struct{}
}

// New constructs a Store without starting its writer goroutine. Callers
// must call Run exactly once; queued mutations are applied only while it
// runs.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger: logger.With("component", "store"),
		cmds:   make(chan func(*state), 256),
		done:   make(chan struct{}),
	}
	s.snap.Store(&Snapshot{Agents: map[string]record.Record{}, Clusters: map[string]ClusterState{}})
	return s
}

// Run drains the command queue until ctx is cancelled. It is the single
// writer: every closure passed to enqueue runs on this goroutine, never
// concurrently with another.
func (s *Store) Run(ctx context.Context) {
	st := newState()
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			cmd(st)
			s.publish(st)
		}
	}
}

func (s *Store) publish(st *state) {
	snap := &Snapshot{
		Agents:   make(map[string]record.Record, len(st.agents)),
		Clusters: make(map[string]ClusterState, len(st.clusters)),
	}
	for k, v := range st.agents {
		snap.Agents[k] = v
	}
	for k, v := range st.clusters {
		snap.Clusters[k] = v
	}
	s.snap.Store(snap)
}

// enqueue schedules fn to run on the writer goroutine. It blocks only on
// queue backpressure, never on fn's execution.
func (s *Store) enqueue(fn func(*state)) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// Snapshot returns the most recently published read-only view (§4.6
// lock-free snapshot reads).
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// UpdateAgent applies fn to the current record for id (the zero Record
// and exists=false if absent) and installs fn's result, unless fn
// returns exists=false, which deletes the record. This is the store's
// one mutation primitive for agents (§4.6 "updateAgent(id, fn, ...)").
func (s *Store) UpdateAgent(id string, fn func(current record.Record, exists bool) (record.Record, bool)) {
	s.enqueue(func(st *state) {
		current, exists := st.agents[id]
		next, keep := fn(current, exists)
		if keep {
			st.agents[id] = next
		} else {
			delete(st.agents, id)
		}
	})
}

// SetCluster installs or replaces cluster's state.
func (s *Store) SetCluster(cluster string, cs ClusterState) {
	s.enqueue(func(st *state) {
		st.clusters[cluster] = cs
	})
}

// SetQuota updates a single role's quota within a cluster's state,
// leaving the cluster's other fields untouched.
func (s *Store) SetQuota(cluster, role string, q resources.Quota) {
	s.enqueue(func(st *state) {
		cs, ok := st.clusters[cluster]
		if !ok {
			cs = ClusterState{Quota: map[string]resources.Quota{}}
		}
		if cs.Quota == nil {
			cs.Quota = map[string]resources.Quota{}
		}
		cs.Quota[role] = q
		st.clusters[cluster] = cs
	})
}

// MarkInFlight records that id has an effect outstanding (§4.8). The
// in-flight set is not part of Snapshot, and the reconciliation loop does
// not consult it before issuing another effect.
func (s *Store) MarkInFlight(id string) {
	s.enqueue(func(st *state) {
		st.clients[id] = struct{}{}
	})
}

// ClearInFlight undoes MarkInFlight once an effect's outcome has been
// applied.
func (s *Store) ClearInFlight(id string) {
	s.enqueue(func(st *state) {
		delete(st.clients, id)
	})
}

// DeleteCluster removes a cluster's state entirely, used once a cluster
// drops out of the CI server's configuration.
func (s *Store) DeleteCluster(cluster string) {
	s.enqueue(func(st *state) {
		delete(st.clusters, cluster)
	})
}
