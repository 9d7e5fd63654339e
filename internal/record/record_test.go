package record

import (
	"testing"
	"time"

	"github.com/riverci/elasticagent/internal/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSeedsLaunchingWithEvent(t *testing.T) {
	now := time.Unix(1000, 0)
	r := Init("aws-dev", "build", "prod", "build-agent-0", "job-1", resources.Default, now)

	assert.Equal(t, Launching, r.State)
	assert.Equal(t, "job-1", r.LaunchedFor)
	require.Len(t, r.Events, 1)
	assert.Equal(t, Launching, r.Events[0].To)
}

func TestUpdateIsImmutable(t *testing.T) {
	now := time.Unix(1000, 0)
	later := now.Add(time.Minute)
	r := Init("c", "r", "e", "build-agent-0", "job-1", resources.Default, now)

	next := r.Update(Pending, later, "observed in executor")

	assert.Equal(t, Launching, r.State, "original record must not mutate")
	assert.Equal(t, Pending, next.State)
	assert.Len(t, r.Events, 1)
	assert.Len(t, next.Events, 2)
	assert.Equal(t, "observed in executor", next.Events[1].Note)
}

func TestMarkActiveAdvancesLastActive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := Init("c", "r", "e", "build-agent-0", "job-1", resources.Default, now)

	later := now.Add(5 * time.Minute)
	active := r.MarkActive(later)
	assert.Equal(t, later, active.LastActive)
}

func TestMarkIdleDoesNotAdvanceLastActive(t *testing.T) {
	now := time.Unix(1000, 0)
	r := Init("c", "r", "e", "build-agent-0", "job-1", resources.Default, now)

	later := now.Add(5 * time.Minute)
	idle := r.MarkIdle(later)
	assert.Equal(t, now, idle.LastActive)
	assert.True(t, idle.IdleFor(later, 5*time.Minute))
	assert.False(t, idle.IdleFor(later, 6*time.Minute))
}

func TestIdleForFalseWhenLastActiveUnset(t *testing.T) {
	r := Record{Idle: true}
	assert.False(t, r.IdleFor(time.Unix(1000, 0), 0))
}

func TestIdleForFalseWhenNotIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	r := Init("c", "r", "e", "build-agent-0", "job-1", resources.Default, now)
	assert.False(t, r.IdleFor(now.Add(time.Hour), time.Minute))
}

func TestStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := Init("c", "r", "e", "build-agent-0", "job-1", resources.Default, now)

	assert.False(t, r.Stale(now.Add(time.Minute), 10*time.Minute))
	assert.True(t, r.Stale(now.Add(10*time.Minute), 10*time.Minute))
}

func TestRetryCounters(t *testing.T) {
	r := Record{}
	r = r.IncRetry().IncRetry()
	assert.Equal(t, 2, r.Retries)
	r = r.ResetRetry()
	assert.Equal(t, 0, r.Retries)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminated.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Legacy.Terminal())
	assert.False(t, Running.Terminal())
	assert.False(t, Orphan.Terminal())
}
