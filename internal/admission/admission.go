// Package admission implements the decisions that gate launching new
// agents (§4.10): whether to create one for a given job, what to name
// it, and whether the CI server should be told it can assign work to a
// given agent right now. Every check here reads the store's
// lock-free snapshot — admission never blocks on the writer (§4.6, §5).
package admission

import (
	"time"

	"github.com/riverci/elasticagent/internal/agentid"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/riverci/elasticagent/internal/store"
)

// Staleness is how long a launching/pending record for the same job is
// trusted to eventually succeed before admission is willing to launch a
// second one for the same job (§4.10 dedup).
const Staleness = 10 * time.Minute

// ShouldCreateAgent reports whether a new agent should be launched for
// jobID on role/cluster/env, given snap (§4.10 "shouldCreateAgent"). It
// returns false when:
//   - an agent record already exists for jobID, still launching/pending/
//     starting and not yet stale(600s) — dedup: wait for it, or
//   - a running, idle agent for role/cluster/env already exists and
//     satisfies req, or
//   - the cluster's quota for role has no room for req.
func ShouldCreateAgent(snap *store.Snapshot, cluster, role, env, jobID string, req resources.Vector, now time.Time) bool {
	for _, r := range snap.Agents {
		if r.Cluster != cluster || r.Role != role {
			continue
		}
		if r.LaunchedFor == jobID && launching(r.State) && !r.Stale(now, Staleness) {
			return false
		}
		if r.State == record.Running && r.Idle && r.Env == env && resources.Satisfies(req, r.Requested) {
			return false
		}
	}

	cs, ok := snap.Clusters[cluster]
	if !ok {
		return true // no quota information yet; let the launch attempt surface the real error
	}
	quota, ok := cs.Quota[role]
	if !ok {
		return true
	}
	return resources.QuotaAvailable(quota, req)
}

func launching(s record.State) bool {
	switch s {
	case record.Launching, record.Pending, record.Starting:
		return true
	default:
		return false
	}
}

// AllocateAgentName returns the lowest-numbered free name for tag within
// cluster/role/env, scanning the snapshot for names already in use
// (§4.10 "allocateAgentName").
func AllocateAgentName(snap *store.Snapshot, cluster, role, env, tag string) string {
	used := make(map[string]struct{})
	for _, r := range snap.Agents {
		if r.Cluster == cluster && r.Role == role && r.Env == env {
			used[r.Name] = struct{}{}
		}
	}
	for n := 0; ; n++ {
		candidate := agentid.NameFor(tag, n)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}

// ShouldAssignWork reports whether agentID can take on work requiring
// required resources (§4.10 "shouldAssignWork", §6 "should-assign-work"
// RPC): a synchronous, lock-free snapshot read so the plugin RPC handler
// never waits on the writer. A missing record answers false.
func ShouldAssignWork(snap *store.Snapshot, agentID string, required resources.Vector) bool {
	r, ok := snap.Agents[agentID]
	if !ok {
		return false
	}
	return resources.Satisfies(required, r.Requested)
}
