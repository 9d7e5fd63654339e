// Package effect defines the side-effecting actions the state machine
// can request (§4.7, §4.8). Effects are data, not closures: a transition
// carries its own onSuccess/onFailure outcome rather than capturing
// variables from the state machine's call frame, so the dispatcher can
// execute effects on a worker pool and report outcomes back to the
// single writer without ever touching scheduler state itself.
package effect

import (
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
)

// Kind names which side-effecting action to perform.
type Kind string

const (
	CreateExecutorJob Kind = "create_executor_job"
	KillExecutorJob    Kind = "kill_executor_job"
	DisableCIAgent     Kind = "disable_ci_agent"
	DeleteCIAgent      Kind = "delete_ci_agent"
)

// Effect is one side-effecting action the dispatcher must carry out on
// behalf of a single agent record.
type Effect struct {
	// ID correlates this effect with its eventual outcome; set by the
	// caller that issues it (§3 DispatcherTask.ID).
	ID string

	Kind Kind

	AgentID     string // the store key this effect acts on behalf of
	ExecutorURL string // set for CreateExecutorJob / KillExecutorJob
	CIServerURL string // set for DisableCIAgent / DeleteCIAgent

	JobSpec executorclient.JobSpec // set for CreateExecutorJob

	// OnSuccess and OnFailure are the states the agent record moves to
	// once the dispatcher reports the outcome (§4.8); the state machine
	// decides these at the point it issues the effect, so the dispatcher
	// never has to know what a "success" means for any particular kind.
	OnSuccess record.State
	OnFailure record.State
}
