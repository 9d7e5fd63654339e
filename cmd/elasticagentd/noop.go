package main

import (
	"context"

	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/resources"
)

// dialNoopExecutor and noopCIServerTransport stand in for the executor's
// job RPC and the CI server's plugin RPC, both explicitly out of scope:
// only the Go interfaces they implement matter to this daemon. Replace
// with a real Thrift/plugin-RPC adapter to actually launch and observe
// agents.

func dialNoopExecutor(ctx context.Context, url string) (executorclient.Client, error) {
	return noopExecutorClient{}, nil
}

type noopExecutorClient struct{}

func (noopExecutorClient) ListJobs(ctx context.Context, cluster string) ([]executorclient.JobSummary, error) {
	return nil, nil
}

func (noopExecutorClient) GetQuota(ctx context.Context, cluster, role string) (resources.Quota, error) {
	return resources.Quota{}, nil
}

func (noopExecutorClient) CreateJob(ctx context.Context, cluster string, spec executorclient.JobSpec) error {
	return nil
}

func (noopExecutorClient) KillTasks(ctx context.Context, cluster string, names []string) error {
	return nil
}

func (noopExecutorClient) GetTaskHistory(ctx context.Context, cluster, name string) ([]executorclient.TaskEvent, error) {
	return nil, nil
}

type noopCIServerTransport struct{}

func (noopCIServerTransport) GetServerInfo(ctx context.Context) (ciserver.ServerInfo, error) {
	return ciserver.ServerInfo{Version: "noop"}, nil
}

func (noopCIServerTransport) ListAgents(ctx context.Context) ([]ciserver.AgentInfo, error) {
	return nil, nil
}

func (noopCIServerTransport) DisableAgents(ctx context.Context, ids []string) error {
	return nil
}

func (noopCIServerTransport) DeleteAgents(ctx context.Context, ids []string) error {
	return nil
}
