// Package statemachine implements the per-agent lifecycle (§4.7): a pure
// function from a record and the latest observations to a next record
// and, optionally, a side-effecting action for the dispatcher to carry
// out. It never touches the store, the executor, or the CI server
// directly — every external effect is returned as data (§4.8).
package statemachine

import (
	"fmt"
	"time"

	"github.com/riverci/elasticagent/internal/agentid"
	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/effect"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
)

// Timeouts bound how long a record may sit waiting for an observation
// before the machine treats it as stuck and retries, kills, or fails
// (§4.7). Unlike launching's one-shot stale(600s)→failed, the retiring,
// killing, removing, legacy and orphan timeouts re-emit their effect
// indefinitely — they have no retry cap.
type Timeouts struct {
	Launching  time.Duration
	Pending    time.Duration
	Starting   time.Duration
	IdleRetire time.Duration
	Retiring   time.Duration
	Killing    time.Duration
	Removing   time.Duration
	Legacy     time.Duration
	Orphan     time.Duration
	Failed     time.Duration
	Terminated time.Duration
}

// DefaultTimeouts matches §4.7's staleness table. cmd/elasticagentd
// overrides this at startup from config.ReconcileConfig.
var DefaultTimeouts = Timeouts{
	Launching:  10 * time.Minute,
	Pending:    10 * time.Minute,
	Starting:   10 * time.Minute,
	IdleRetire: 5 * time.Minute,
	Retiring:   2 * time.Minute,
	Killing:    2 * time.Minute,
	Removing:   2 * time.Minute,
	Legacy:     time.Minute,
	Orphan:     time.Minute,
	Failed:     10 * time.Minute,
	Terminated: 5 * time.Minute,
}

// Input bundles the latest observations about one agent (§4.9 — the
// reconciliation loop's join by id feeds this in). A nil field means
// that source currently reports nothing for this agent.
type Input struct {
	Now time.Time

	// AgentID is the wire-form "cluster/role/env/name" id the caller is
	// driving this step for. manageNoRecord parses it to recover the
	// identity of an adopted legacy/orphan record (I1); other states
	// already have identity on the record itself and ignore this field.
	AgentID string

	ExecutorURL string
	CIServerURL string
	ExecJob     *executorclient.JobSummary
	CIAgent     *ciserver.AgentInfo
	NewEffectID func() string
}

// Result is what Manage decides for one agent: the record to install
// next (nil means "delete the record") and, optionally, an effect to
// dispatch.
type Result struct {
	Next   *record.Record
	Effect *effect.Effect
}

func stay(r record.Record) Result {
	return Result{Next: &r}
}

func moveTo(r record.Record, next record.State, in Input, note string) Result {
	updated := r.Update(next, in.Now, note)
	return Result{Next: &updated}
}

func dropRecord() Result {
	return Result{Next: nil}
}

// drain advances r to into and emits disableCIAgent, escalating to
// draining on success (§4.7 "drain(state, msg)").
func drain(r record.Record, in Input, into record.State, note string) Result {
	updated := r.Update(into, in.Now, note)
	return Result{Next: &updated, Effect: &effect.Effect{
		ID:          in.NewEffectID(),
		Kind:        effect.DisableCIAgent,
		AgentID:     r.Name,
		CIServerURL: in.CIServerURL,
		OnSuccess:   record.Draining,
		OnFailure:   into,
	}}
}

// kill advances r to into and emits killExecutorJob, escalating to
// killed on success (§4.7 "kill(state, msg)").
func kill(r record.Record, in Input, into record.State, note string) Result {
	updated := r.Update(into, in.Now, note)
	return Result{Next: &updated, Effect: &effect.Effect{
		ID:          in.NewEffectID(),
		Kind:        effect.KillExecutorJob,
		AgentID:     r.Name,
		ExecutorURL: in.ExecutorURL,
		OnSuccess:   record.Killed,
		OnFailure:   into,
	}}
}

// terminate advances r to into and emits deleteCIAgent, escalating to
// terminated on success (§4.7 "terminate(state, msg)").
func terminate(r record.Record, in Input, into record.State, note string) Result {
	updated := r.Update(into, in.Now, note)
	return Result{Next: &updated, Effect: &effect.Effect{
		ID:          in.NewEffectID(),
		Kind:        effect.DeleteCIAgent,
		AgentID:     r.Name,
		CIServerURL: in.CIServerURL,
		OnSuccess:   record.Terminated,
		OnFailure:   into,
	}}
}

// alive reports whether the executor still has a pending or active task
// for the agent (§3 ExecutorJobSummary "alive" derived field).
func alive(j *executorclient.JobSummary) bool {
	return j != nil && (j.Pending || j.Active)
}

// registered reports whether the CI server still has a live registration
// for the agent (§3 CIAgentInfo "registered" derived field).
func registered(c *ciserver.AgentInfo) bool {
	return c != nil && c.Registered()
}

// Manage advances r given the latest observations in in. If r is nil,
// the id exists only because the executor or CI server reported it with
// no matching store record (§4.7 "no-record case").
func Manage(r *record.Record, in Input) Result {
	if r == nil {
		return manageNoRecord(in)
	}

	switch r.State {
	case record.Launching:
		return manageLaunching(*r, in)
	case record.Pending:
		return managePending(*r, in)
	case record.Starting:
		return manageStarting(*r, in)
	case record.Running:
		return manageRunning(*r, in)
	case record.Retiring:
		return manageRetiring(*r, in)
	case record.Draining:
		return manageDraining(*r, in)
	case record.Killing:
		return manageKilling(*r, in)
	case record.Killed:
		return manageKilled(*r, in)
	case record.Removing:
		return manageRemoving(*r, in)
	case record.Legacy:
		return manageLegacyState(*r, in)
	case record.Orphan:
		return manageOrphan(*r, in)
	case record.Terminated, record.Failed:
		return manageTerminal(*r, in)
	default:
		// Unknown state catch-all (§4.7): never panic on an unrecognized
		// state, fail the record so it surfaces for cleanup instead.
		return moveTo(*r, record.Failed, in, fmt.Sprintf("unknown state %q", r.State))
	}
}

// manageNoRecord handles ids neither source has a store record for. A CI
// server registration with no record takes priority — it adopts the id
// as Legacy and starts draining it; otherwise a still-alive executor job
// adopts it as Orphan and kills it (§4.7 "no-record case"). in.AgentID is
// parsed to recover the adopted record's identity (I1); an id that
// doesn't parse is not one of ours to manage (agentid package doc) and
// is dropped rather than adopted.
func manageNoRecord(in Input) Result {
	parsed, ok := agentid.Parse(in.AgentID)
	if !ok {
		return dropRecord()
	}

	if in.CIAgent != nil {
		legacy := record.Record{
			Cluster:   parsed.Cluster,
			Role:      parsed.Role,
			Env:       parsed.Env,
			Name:      parsed.Name,
			State:     record.Legacy,
			CreatedAt: in.Now,
			UpdatedAt: in.Now,
		}
		legacy.Events = append(legacy.Events, record.Event{At: in.Now, To: record.Legacy, Note: "adopted: ci agent registered with no record"})
		return Result{Next: &legacy, Effect: &effect.Effect{
			ID:          in.NewEffectID(),
			Kind:        effect.DisableCIAgent,
			AgentID:     in.AgentID,
			CIServerURL: in.CIServerURL,
			OnSuccess:   record.Draining,
			OnFailure:   record.Legacy,
		}}
	}
	if alive(in.ExecJob) {
		orphan := record.Record{
			Cluster:   parsed.Cluster,
			Role:      parsed.Role,
			Env:       parsed.Env,
			Name:      parsed.Name,
			State:     record.Orphan,
			CreatedAt: in.Now,
			UpdatedAt: in.Now,
		}
		orphan.Events = append(orphan.Events, record.Event{At: in.Now, To: record.Orphan, Note: "adopted: executor job alive with no record"})
		return Result{Next: &orphan, Effect: &effect.Effect{
			ID:          in.NewEffectID(),
			Kind:        effect.KillExecutorJob,
			AgentID:     in.AgentID,
			ExecutorURL: in.ExecutorURL,
			OnSuccess:   record.Killed,
			OnFailure:   record.Orphan,
		}}
	}
	return dropRecord()
}

// manageLaunching waits for the executor job to appear. createExecutorJob
// is issued directly by requestNewAgent, not here (§4.8); this only
// advances on the resulting job's phase, or gives up after staleness.
func manageLaunching(r record.Record, in Input) Result {
	if in.ExecJob != nil {
		if in.ExecJob.Active {
			return moveTo(r.ResetRetry(), record.Starting, in, "executor job active")
		}
		if in.ExecJob.Pending {
			return moveTo(r.ResetRetry(), record.Pending, in, "executor job pending")
		}
	}
	if r.Stale(in.Now, DefaultTimeouts.Launching) {
		return moveTo(r, record.Failed, in, "no activity for 10 min")
	}
	return stay(r)
}

func managePending(r record.Record, in Input) Result {
	if in.ExecJob != nil && in.ExecJob.Active {
		return moveTo(r.ResetRetry(), record.Starting, in, "executor job active")
	}
	if registered(in.CIAgent) {
		return moveTo(r.ResetRetry(), record.Running, in, "ci agent registered")
	}
	if r.Stale(in.Now, DefaultTimeouts.Pending) {
		return kill(r, in, record.Killing, "stale while pending")
	}
	return stay(r)
}

func manageStarting(r record.Record, in Input) Result {
	if registered(in.CIAgent) {
		return moveTo(r.ResetRetry().MarkActive(in.Now), record.Running, in, "ci agent registered")
	}
	if r.Stale(in.Now, DefaultTimeouts.Starting) {
		return kill(r, in, record.Killing, "stale while starting")
	}
	return stay(r)
}

func manageRunning(r record.Record, in Input) Result {
	if in.CIAgent == nil {
		return kill(r, in, record.Killing, "ci agent missing while running")
	}
	switch in.CIAgent.AgentState {
	case ciserver.AgentDisabled:
		return moveTo(r, record.Draining, in, "externally disabled")
	case ciserver.AgentMissing, ciserver.AgentLostContact:
		return kill(r, in, record.Killing, "ci agent lost contact")
	case ciserver.AgentIdle:
		if r.IdleFor(in.Now, DefaultTimeouts.IdleRetire) {
			return drain(r.ResetRetry(), in, record.Retiring, "idle for 5 min")
		}
		return stay(r.MarkIdle(in.Now))
	default:
		return stay(r.MarkActive(in.Now))
	}
}

// manageRetiring re-issues disableCIAgent until the CI server
// acknowledges the agent is disabled.
func manageRetiring(r record.Record, in Input) Result {
	if in.CIAgent != nil && in.CIAgent.ConfigState == ciserver.ConfigDisabled {
		return moveTo(r, record.Draining, in, "already disabled")
	}
	if r.Stale(in.Now, DefaultTimeouts.Retiring) {
		return drain(r, in, record.Retiring, "retry disable")
	}
	return stay(r)
}

// manageDraining waits for the CI server to actually stop assigning the
// agent work before killing its executor job.
func manageDraining(r record.Record, in Input) Result {
	if in.CIAgent != nil {
		switch in.CIAgent.AgentState {
		case ciserver.AgentIdle, ciserver.AgentMissing, ciserver.AgentLostContact:
			return kill(r, in, record.Killing, "drained")
		}
	}
	return stay(r)
}

func manageKilling(r record.Record, in Input) Result {
	if !alive(in.ExecJob) {
		return moveTo(r.ResetRetry(), record.Killed, in, "executor job gone")
	}
	if r.Stale(in.Now, DefaultTimeouts.Killing) {
		return kill(r, in, record.Killing, "retry kill")
	}
	return stay(r)
}

func manageKilled(r record.Record, in Input) Result {
	if !alive(in.ExecJob) {
		return terminate(r.ResetRetry(), in, record.Removing, "proceeding to remove ci agent")
	}
	return stay(r)
}

func manageRemoving(r record.Record, in Input) Result {
	if !registered(in.CIAgent) {
		return moveTo(r.ResetRetry(), record.Terminated, in, "ci agent gone")
	}
	if r.Stale(in.Now, DefaultTimeouts.Removing) {
		return terminate(r, in, record.Removing, "retry delete")
	}
	return stay(r)
}

// manageLegacyState keeps re-issuing disableCIAgent for an adopted
// record already sitting in Legacy, same cadence as any other drain
// retry.
func manageLegacyState(r record.Record, in Input) Result {
	if r.Stale(in.Now, DefaultTimeouts.Legacy) {
		return drain(r, in, record.Legacy, "retry disable")
	}
	return stay(r)
}

// manageOrphan keeps re-issuing killExecutorJob for an adopted orphan
// record. If both sources agree the id is legitimately back under
// management before the kill lands, treat it as recovered rather than
// stuck.
func manageOrphan(r record.Record, in Input) Result {
	if in.ExecJob != nil && in.CIAgent != nil {
		return moveTo(r.ResetRetry(), record.Starting, in, "recovered from orphan")
	}
	if r.Stale(in.Now, DefaultTimeouts.Orphan) {
		return kill(r, in, record.Orphan, "retry kill")
	}
	return stay(r)
}

// manageTerminal tombstones a Failed or Terminated record once its TTL
// elapses (§4.7 I5, P4); until then it sits untouched.
func manageTerminal(r record.Record, in Input) Result {
	switch r.State {
	case record.Failed:
		if r.Stale(in.Now, DefaultTimeouts.Failed) {
			return dropRecord()
		}
	case record.Terminated:
		if r.Stale(in.Now, DefaultTimeouts.Terminated) {
			return dropRecord()
		}
	}
	return stay(r)
}
