package statemachine

import (
	"strconv"
	"testing"
	"time"

	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInput(now time.Time, execJob *executorclient.JobSummary, ciAgent *ciserver.AgentInfo) Input {
	n := 0
	return Input{
		Now:         now,
		AgentID:     "aws-dev/build/prod/build-agent-0",
		ExecutorURL: "http://executor",
		CIServerURL: "http://ci",
		ExecJob:     execJob,
		CIAgent:     ciAgent,
		NewEffectID: func() string {
			n++
			return "effect-" + strconv.Itoa(n)
		},
	}
}

func newRecord(state record.State, now time.Time) record.Record {
	r := record.Init("aws-dev", "build", "prod", "build-agent-0", "job-1", resources.Default, now)
	return r.Update(state, now, "seed")
}

func registeredAgent() *ciserver.AgentInfo {
	return &ciserver.AgentInfo{ID: "build-agent-0", ConfigState: ciserver.ConfigEnabled, AgentState: ciserver.AgentBuilding}
}

func TestManageNoRecordWithNoObservationsDropsNothing(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Manage(nil, newInput(now, nil, nil))
	assert.Nil(t, res.Next)
	assert.Nil(t, res.Effect)
}

func TestManageNoRecordWithCIAgentReclaimsLegacy(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Manage(nil, newInput(now, nil, &ciserver.AgentInfo{ID: "x"}))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Legacy, res.Next.State)
	assert.Equal(t, "aws-dev", res.Next.Cluster)
	assert.Equal(t, "build", res.Next.Role)
	assert.Equal(t, "prod", res.Next.Env)
	assert.Equal(t, "build-agent-0", res.Next.Name)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "disable_ci_agent", string(res.Effect.Kind))
	assert.Equal(t, "aws-dev/build/prod/build-agent-0", res.Effect.AgentID)
	assert.Equal(t, "http://ci", res.Effect.CIServerURL)
	assert.Equal(t, record.Draining, res.Effect.OnSuccess)
}

func TestManageNoRecordWithAliveExecJobReclaimsOrphan(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Manage(nil, newInput(now, &executorclient.JobSummary{Active: true}, nil))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Orphan, res.Next.State)
	assert.Equal(t, "aws-dev", res.Next.Cluster)
	assert.Equal(t, "build", res.Next.Role)
	assert.Equal(t, "prod", res.Next.Env)
	assert.Equal(t, "build-agent-0", res.Next.Name)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
	assert.Equal(t, "aws-dev/build/prod/build-agent-0", res.Effect.AgentID)
	assert.Equal(t, "http://executor", res.Effect.ExecutorURL)
	assert.Equal(t, record.Killed, res.Effect.OnSuccess)
}

func TestManageNoRecordWithMalformedAgentIDDropsRatherThanAdopts(t *testing.T) {
	now := time.Unix(1000, 0)
	in := newInput(now, &executorclient.JobSummary{Active: true}, &ciserver.AgentInfo{ID: "x"})
	in.AgentID = "not-a-valid-id"
	res := Manage(nil, in)
	assert.Nil(t, res.Next)
	assert.Nil(t, res.Effect)
}

func TestManageNoRecordWithDeadExecJobDropsNothing(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Manage(nil, newInput(now, &executorclient.JobSummary{}, nil))
	assert.Nil(t, res.Next)
	assert.Nil(t, res.Effect)
}

func TestLaunchingMovesToPendingOnceJobPending(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Launching, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{Name: "build-agent-0", Pending: true}, nil))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Pending, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestLaunchingMovesToStartingOnceJobActive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Launching, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{Name: "build-agent-0", Active: true}, nil))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Starting, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestLaunchingFailsAfterStaleTimeoutWithNoEffect(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Launching, now)
	later := now.Add(DefaultTimeouts.Launching + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Failed, res.Next.State)
	assert.Equal(t, "no activity for 10 min", res.Next.Events[len(res.Next.Events)-1].Note)
	assert.Nil(t, res.Effect)
}

func TestLaunchingStaysWhileFresh(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Launching, now)
	res := Manage(&r, newInput(now.Add(time.Second), nil, nil))
	assert.Equal(t, record.Launching, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestPendingMovesToStartingWhenJobActive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Pending, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{Active: true}, nil))
	assert.Equal(t, record.Starting, res.Next.State)
}

func TestPendingMovesToRunningWhenCIAgentRegisters(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Pending, now)
	res := Manage(&r, newInput(now, nil, registeredAgent()))
	assert.Equal(t, record.Running, res.Next.State)
}

func TestPendingKillsWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Pending, now)
	later := now.Add(DefaultTimeouts.Pending + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Equal(t, record.Killing, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
}

func TestStartingMovesToRunningWhenCIAgentRegisters(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Starting, now)
	res := Manage(&r, newInput(now, nil, registeredAgent()))
	assert.Equal(t, record.Running, res.Next.State)
}

func TestStartingKillsWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Starting, now)
	later := now.Add(DefaultTimeouts.Starting + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Equal(t, record.Killing, res.Next.State)
	require.NotNil(t, res.Effect)
}

func TestRunningKillsWhenCIAgentMissing(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	res := Manage(&r, newInput(now, nil, nil))
	assert.Equal(t, record.Killing, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
}

func TestRunningDrainsWhenExternallyDisabled(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	ci := &ciserver.AgentInfo{ConfigState: ciserver.ConfigDisabled, AgentState: ciserver.AgentDisabled}
	res := Manage(&r, newInput(now, nil, ci))
	assert.Equal(t, record.Draining, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestRunningKillsWhenLostContact(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	ci := &ciserver.AgentInfo{ConfigState: ciserver.ConfigEnabled, AgentState: ciserver.AgentLostContact}
	res := Manage(&r, newInput(now, nil, ci))
	assert.Equal(t, record.Killing, res.Next.State)
	require.NotNil(t, res.Effect)
}

func TestRunningMarksIdleWithoutTransitioningBeforeTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	r = r.MarkActive(now)
	ci := &ciserver.AgentInfo{ConfigState: ciserver.ConfigEnabled, AgentState: ciserver.AgentIdle}
	res := Manage(&r, newInput(now.Add(time.Minute), nil, ci))
	assert.Equal(t, record.Running, res.Next.State)
	assert.True(t, res.Next.Idle)
	assert.Nil(t, res.Effect)
}

func TestRunningDrainsToRetiringAfterIdleTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	r = r.MarkActive(now).MarkIdle(now)
	ci := &ciserver.AgentInfo{ConfigState: ciserver.ConfigEnabled, AgentState: ciserver.AgentIdle}
	later := now.Add(DefaultTimeouts.IdleRetire + time.Second)
	res := Manage(&r, newInput(later, nil, ci))
	assert.Equal(t, record.Retiring, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "disable_ci_agent", string(res.Effect.Kind))
	assert.Equal(t, record.Draining, res.Effect.OnSuccess)
}

func TestRunningMarksActiveWhileBuilding(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	res := Manage(&r, newInput(now.Add(time.Hour), nil, registeredAgent()))
	assert.Equal(t, record.Running, res.Next.State)
	assert.False(t, res.Next.Idle)
	assert.Nil(t, res.Effect)
}

func TestRetiringMovesToDrainingWhenDisabled(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Retiring, now)
	ci := &ciserver.AgentInfo{ConfigState: ciserver.ConfigDisabled}
	res := Manage(&r, newInput(now, nil, ci))
	assert.Equal(t, record.Draining, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestRetiringRetriesDisableWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Retiring, now)
	later := now.Add(DefaultTimeouts.Retiring + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Equal(t, record.Retiring, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "disable_ci_agent", string(res.Effect.Kind))
}

func TestDrainingWaitsWhileBuilding(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Draining, now)
	ci := &ciserver.AgentInfo{AgentState: ciserver.AgentBuilding}
	res := Manage(&r, newInput(now, nil, ci))
	assert.Equal(t, record.Draining, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestDrainingMovesToKillingOnceIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Draining, now)
	ci := &ciserver.AgentInfo{AgentState: ciserver.AgentIdle}
	res := Manage(&r, newInput(now, nil, ci))
	assert.Equal(t, record.Killing, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
}

func TestKillingMovesToKilledWhenJobGone(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Killing, now)
	res := Manage(&r, newInput(now, nil, nil))
	assert.Equal(t, record.Killed, res.Next.State)
}

func TestKillingStaysWhileJobAlive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Killing, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{Active: true}, nil))
	assert.Equal(t, record.Killing, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestKillingReissuesKillEffectOnTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Killing, now)
	later := now.Add(DefaultTimeouts.Killing + time.Second)
	res := Manage(&r, newInput(later, &executorclient.JobSummary{Active: true}, nil))
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
}

func TestKilledProceedsToRemoving(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Killed, now)
	res := Manage(&r, newInput(now, nil, nil))
	assert.Equal(t, record.Removing, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "delete_ci_agent", string(res.Effect.Kind))
}

func TestKilledStaysWhileJobStillAlive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Killed, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{Pending: true}, nil))
	assert.Equal(t, record.Killed, res.Next.State)
	assert.Nil(t, res.Effect)
}

func TestRemovingTerminatesWhenCIAgentGone(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Removing, now)
	res := Manage(&r, newInput(now, nil, nil))
	assert.Equal(t, record.Terminated, res.Next.State)
}

func TestRemovingRetriesDeleteWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Removing, now)
	later := now.Add(DefaultTimeouts.Removing + time.Second)
	res := Manage(&r, newInput(later, nil, registeredAgent()))
	assert.Equal(t, record.Removing, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "delete_ci_agent", string(res.Effect.Kind))
}

func TestLegacyRetriesDisableWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Legacy, now)
	later := now.Add(DefaultTimeouts.Legacy + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Equal(t, record.Legacy, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "disable_ci_agent", string(res.Effect.Kind))
}

func TestLegacyIsNotTerminal(t *testing.T) {
	assert.False(t, record.Legacy.Terminal())
}

func TestOrphanRecoversWhenBothSourcesReappear(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Orphan, now)
	res := Manage(&r, newInput(now, &executorclient.JobSummary{}, &ciserver.AgentInfo{}))
	assert.Equal(t, record.Starting, res.Next.State)
}

func TestOrphanRetriesKillWhenStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Orphan, now)
	later := now.Add(DefaultTimeouts.Orphan + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Equal(t, record.Orphan, res.Next.State)
	require.NotNil(t, res.Effect)
	assert.Equal(t, "kill_executor_job", string(res.Effect.Kind))
}

func TestFailedTombstonesAfterTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Failed, now)
	later := now.Add(DefaultTimeouts.Failed + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Nil(t, res.Next)
}

func TestFailedStaysBeforeTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Failed, now)
	res := Manage(&r, newInput(now.Add(time.Second), nil, nil))
	require.NotNil(t, res.Next)
	assert.Equal(t, record.Failed, res.Next.State)
}

func TestTerminatedTombstonesAfterTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Terminated, now)
	later := now.Add(DefaultTimeouts.Terminated + time.Second)
	res := Manage(&r, newInput(later, nil, nil))
	assert.Nil(t, res.Next)
}

func TestUnknownStateFailsRatherThanPanics(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newRecord(record.Running, now)
	r.State = record.State("bogus")
	res := Manage(&r, newInput(now, nil, nil))
	assert.Equal(t, record.Failed, res.Next.State)
}
