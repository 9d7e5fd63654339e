package executorclient

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/riverci/elasticagent/internal/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ListJobs(ctx context.Context, cluster string) ([]JobSummary, error) {
	args := m.Called(ctx, cluster)
	jobs, _ := args.Get(0).([]JobSummary)
	return jobs, args.Error(1)
}

func (m *mockClient) GetQuota(ctx context.Context, cluster, role string) (resources.Quota, error) {
	args := m.Called(ctx, cluster, role)
	q, _ := args.Get(0).(resources.Quota)
	return q, args.Error(1)
}

func (m *mockClient) CreateJob(ctx context.Context, cluster string, spec JobSpec) error {
	args := m.Called(ctx, cluster, spec)
	return args.Error(0)
}

func (m *mockClient) KillTasks(ctx context.Context, cluster string, names []string) error {
	args := m.Called(ctx, cluster, names)
	return args.Error(0)
}

func (m *mockClient) GetTaskHistory(ctx context.Context, cluster, name string) ([]TaskEvent, error) {
	args := m.Called(ctx, cluster, name)
	events, _ := args.Get(0).([]TaskEvent)
	return events, args.Error(1)
}

func TestGatewayDialsOncePerURL(t *testing.T) {
	var dials int32
	client := &mockClient{}
	client.On("ListJobs", mock.Anything, "http://cluster-a").Return([]JobSummary{}, nil)

	gw := New(func(ctx context.Context, url string) (Client, error) {
		atomic.AddInt32(&dials, 1)
		return client, nil
	}, nil)

	_, err := gw.ListJobs(context.Background(), "http://cluster-a")
	require.NoError(t, err)
	_, err = gw.ListJobs(context.Background(), "http://cluster-a")
	require.NoError(t, err)

	assert.Equal(t, int32(1), dials)
	client.AssertExpectations(t)
}

func TestGatewayCloseForcesRedial(t *testing.T) {
	var dials int32
	client := &mockClient{}
	client.On("ListJobs", mock.Anything, "http://cluster-a").Return([]JobSummary{}, nil)

	gw := New(func(ctx context.Context, url string) (Client, error) {
		atomic.AddInt32(&dials, 1)
		return client, nil
	}, nil)

	_, _ = gw.ListJobs(context.Background(), "http://cluster-a")
	gw.Close("http://cluster-a")
	_, _ = gw.ListJobs(context.Background(), "http://cluster-a")

	assert.Equal(t, int32(2), dials)
}

func TestGatewayDirtiesConnectionOnError(t *testing.T) {
	var dials int32
	failing := &mockClient{}
	failing.On("ListJobs", mock.Anything, "http://cluster-a").
		Return(nil, &ExecutorError{Code: CodeUnavailable, Cluster: "http://cluster-a", Messages: []string{"broken pipe"}})

	healthy := &mockClient{}
	healthy.On("ListJobs", mock.Anything, "http://cluster-a").Return([]JobSummary{}, nil)

	clients := []Client{failing, healthy}
	gw := New(func(ctx context.Context, url string) (Client, error) {
		c := clients[dials]
		atomic.AddInt32(&dials, 1)
		return c, nil
	}, nil)

	_, err := gw.ListJobs(context.Background(), "http://cluster-a")
	require.Error(t, err)

	_, err = gw.ListJobs(context.Background(), "http://cluster-a")
	require.NoError(t, err)

	assert.Equal(t, int32(2), dials)
	failing.AssertExpectations(t)
	healthy.AssertExpectations(t)
}

func TestExecutorErrorMessage(t *testing.T) {
	err := &ExecutorError{Code: CodeUnavailable, Cluster: "aws-dev", Messages: []string{"timeout"}}
	assert.Contains(t, err.Error(), "aws-dev")
	assert.Contains(t, err.Error(), "timeout")
}
