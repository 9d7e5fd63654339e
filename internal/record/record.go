// Package record implements the AgentRecord entity (§3, §4.2): the single
// piece of state the scheduler keeps per managed agent, independent of
// whatever the executor or the CI server currently report about it.
package record

import (
	"time"

	"github.com/riverci/elasticagent/internal/resources"
)

// State is one of the thirteen states of the agent lifecycle (§4.7).
type State string

const (
	Launching State = "launching"
	Pending   State = "pending"
	Starting  State = "starting"
	Running   State = "running"
	Retiring  State = "retiring"
	Draining  State = "draining"
	Killing   State = "killing"
	Killed    State = "killed"
	Removing  State = "removing"
	Terminated State = "terminated"
	Failed    State = "failed"
	Legacy    State = "legacy"
	Orphan    State = "orphan"
)

// Event is an entry in a record's append-only transition log, used for
// diagnostics and for the read-only event stream (§9 design note on
// observability).
type Event struct {
	At   time.Time
	From State
	To   State
	Note string
}

// Record is the scheduler's view of one managed agent (§3 AgentRecord).
type Record struct {
	Cluster string
	Role    string
	Env     string
	Name    string

	State State

	// LaunchedFor is the CI job id this agent was launched to serve, set at
	// creation and never changed; it is the de-dup key admission uses to
	// avoid double-launching for the same job (§4.10).
	LaunchedFor string

	Requested resources.Vector

	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastActive time.Time

	// Idle is true once the CI server has reported this agent as idle at
	// least once since it last went active (§3 CIAgentInfo-derived
	// "idle"), gating the running→retiring idle timeout (§4.7).
	Idle bool

	Retries int

	Events []Event
}

// Init constructs a freshly-launching record for job jobID on the given
// identifier segments (§4.2 "init").
func Init(cluster, role, env, name, jobID string, requested resources.Vector, now time.Time) Record {
	r := Record{
		Cluster:     cluster,
		Role:        role,
		Env:         env,
		Name:        name,
		State:       Launching,
		LaunchedFor: jobID,
		Requested:   requested,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastActive:  now,
	}
	r.Events = append(r.Events, Event{At: now, To: Launching, Note: "init"})
	return r
}

// Update returns a copy of r transitioned to next, stamping UpdatedAt and
// appending a transition event. It never mutates r (§5 — records are
// immutable snapshots owned by the single writer).
func (r Record) Update(next State, now time.Time, note string) Record {
	out := r
	out.State = next
	out.UpdatedAt = now
	out.Events = append(append([]Event{}, r.Events...), Event{At: now, From: r.State, To: next, Note: note})
	return out
}

// MarkActive records that the CI server reported this agent as running
// work, resetting idleness (§4.2 "markActive").
func (r Record) MarkActive(now time.Time) Record {
	out := r
	out.Idle = false
	out.LastActive = now
	out.UpdatedAt = now
	return out
}

// MarkIdle records that the CI server reported this agent as idle; unlike
// MarkActive it does not advance LastActive, so IdleFor keeps growing
// (§4.2 "markIdle").
func (r Record) MarkIdle(now time.Time) Record {
	out := r
	out.Idle = true
	out.UpdatedAt = now
	return out
}

// IdleFor reports whether r has been continuously idle for at least
// timeout (§4.7 running→retiring). It is false whenever r is not
// currently idle, or LastActive has never been set (B2): an agent that
// has never gone active is not "idle for" anything.
func (r Record) IdleFor(now time.Time, timeout time.Duration) bool {
	if !r.Idle || r.LastActive.IsZero() {
		return false
	}
	return now.Sub(r.LastActive) >= timeout
}

// Stale reports whether r has not been touched (via Update) for at least
// timeout: the clock is the last event's time, so MarkActive and MarkIdle,
// which append no event, do not reset it (UpdatedAt is used only when r
// has no events). The state machine's per-state timeouts and admission's
// de-dup check use it.
func (r Record) Stale(now time.Time, timeout time.Duration) bool {
	last := r.UpdatedAt
	if n := len(r.Events); n > 0 {
		last = r.Events[n-1].At
	}
	return now.Sub(last) >= timeout
}

// IncRetry returns a copy of r with Retries incremented. The state machine
// does not call it; its retry transitions re-emit their effect without
// counting.
func (r Record) IncRetry() Record {
	out := r
	out.Retries++
	return out
}

// ResetRetry returns a copy of r with Retries cleared.
func (r Record) ResetRetry() Record {
	out := r
	out.Retries = 0
	return out
}

// Terminal reports whether no further effect will ever be dispatched for
// a record in State s — its only remaining transition is deletion after
// a TTL (§4.7 I5). Legacy and Orphan keep retrying their drain/kill
// effect indefinitely and so are not terminal.
func (s State) Terminal() bool {
	switch s {
	case Terminated, Failed:
		return true
	default:
		return false
	}
}
