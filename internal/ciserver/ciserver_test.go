package ciserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) GetServerInfo(ctx context.Context) (ServerInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(ServerInfo)
	return info, args.Error(1)
}

func (m *mockTransport) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	args := m.Called(ctx)
	agents, _ := args.Get(0).([]AgentInfo)
	return agents, args.Error(1)
}

func (m *mockTransport) DisableAgents(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockTransport) DeleteAgents(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func TestListAgentsWrapsTransportError(t *testing.T) {
	transport := &mockTransport{}
	transport.On("ListAgents", mock.Anything).Return(nil, errors.New("connection refused"))

	gw := New(transport)
	_, err := gw.ListAgents(context.Background())

	require.Error(t, err)
	var ciErr *CIServerError
	require.ErrorAs(t, err, &ciErr)
	assert.Equal(t, CodeUnavailable, ciErr.Code)
}

func TestDisableAgentsSkipsEmptyList(t *testing.T) {
	transport := &mockTransport{}
	gw := New(transport)

	err := gw.DisableAgents(context.Background(), nil)
	require.NoError(t, err)
	transport.AssertNotCalled(t, "DisableAgents", mock.Anything, mock.Anything)
}

func TestDeleteAgentsPassesThroughIDs(t *testing.T) {
	transport := &mockTransport{}
	transport.On("DeleteAgents", mock.Anything, []string{"a/b/c/build-agent-0"}).Return(nil)

	gw := New(transport)
	err := gw.DeleteAgents(context.Background(), []string{"a/b/c/build-agent-0"})
	require.NoError(t, err)
	transport.AssertExpectations(t)
}
