package eventstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/riverci/elasticagent/internal/record"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, nil))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubBroadcastsTransitionToConnectedClient(t *testing.T) {
	hub, url := startTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(TransitionEvent{
		AgentID:   "aws-dev/build/prod/build-agent-0",
		Cluster:   "aws-dev",
		Role:      "build",
		From:      record.Launching,
		To:        record.Pending,
		Note:      "executor job observed",
		Timestamp: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt TransitionEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, record.Pending, evt.To)
}

func TestHubConnectionCountDropsOnDisconnect(t *testing.T) {
	hub, url := startTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublishDoesNotBlockBeforeRun(t *testing.T) {
	hub := New(nil)
	// Publish before Run is started: the broadcast channel has room, so
	// this must not block even though nothing drains it yet.
	done := make(chan struct{})
	go func() {
		hub.Publish(TransitionEvent{AgentID: "a", From: record.Launching, To: record.Pending})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked unexpectedly")
	}
}

var _ http.Handler = &Handler{}
