package store

import (
	"context"
	"testing"
	"time"

	"github.com/riverci/elasticagent/internal/record"
	"github.com/riverci/elasticagent/internal/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStore(t *testing.T) (*Store, func()) {
	t.Helper()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, cancel
}

// settle gives the writer goroutine a chance to process the queue and
// publish a snapshot before the test reads it.
func settle() {
	time.Sleep(10 * time.Millisecond)
}

func TestUpdateAgentInsertsAndPublishes(t *testing.T) {
	s, cancel := runStore(t)
	defer cancel()

	s.UpdateAgent("aws-dev/build/prod/build-agent-0", func(current record.Record, exists bool) (record.Record, bool) {
		require.False(t, exists)
		return record.Init("aws-dev", "build", "prod", "build-agent-0", "job-1", resources.Default, time.Unix(0, 0)), true
	})
	settle()

	snap := s.Snapshot()
	agent, ok := snap.Agents["aws-dev/build/prod/build-agent-0"]
	require.True(t, ok)
	assert.Equal(t, record.Launching, agent.State)
}

func TestUpdateAgentDeleteWhenKeepFalse(t *testing.T) {
	s, cancel := runStore(t)
	defer cancel()

	id := "aws-dev/build/prod/build-agent-0"
	s.UpdateAgent(id, func(current record.Record, exists bool) (record.Record, bool) {
		return record.Init("aws-dev", "build", "prod", "build-agent-0", "job-1", resources.Default, time.Unix(0, 0)), true
	})
	settle()

	s.UpdateAgent(id, func(current record.Record, exists bool) (record.Record, bool) {
		require.True(t, exists)
		return current, false
	})
	settle()

	_, ok := s.Snapshot().Agents[id]
	assert.False(t, ok)
}

func TestSetQuotaMergesIntoClusterState(t *testing.T) {
	s, cancel := runStore(t)
	defer cancel()

	s.SetCluster("aws-dev", ClusterState{ExecutorURL: "http://executor"})
	settle()
	s.SetQuota("aws-dev", "build", resources.Quota{Available: resources.Vector{CPU: 4}})
	settle()

	cs := s.Snapshot().Clusters["aws-dev"]
	assert.Equal(t, "http://executor", cs.ExecutorURL)
	assert.Equal(t, 4.0, cs.Quota["build"].Available.CPU)
}

func TestDeleteCluster(t *testing.T) {
	s, cancel := runStore(t)
	defer cancel()

	s.SetCluster("aws-dev", ClusterState{})
	settle()
	s.DeleteCluster("aws-dev")
	settle()

	_, ok := s.Snapshot().Clusters["aws-dev"]
	assert.False(t, ok)
}
