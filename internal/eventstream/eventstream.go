// Package eventstream broadcasts agent state machine transitions to
// connected operators over a read-only WebSocket feed. It is not a
// control path — nothing ever reads from a connected client beyond
// keepalive pings — so it does not touch the in-memory-only scheduler
// state it reports on.
package eventstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverci/elasticagent/internal/record"
)

// TransitionEvent describes one state machine transition, broadcast to
// every connected operator as it happens.
type TransitionEvent struct {
	AgentID   string       `json:"agent_id"`
	Cluster   string       `json:"cluster"`
	Role      string       `json:"role"`
	From      record.State `json:"from"`
	To        record.State `json:"to"`
	Note      string       `json:"note"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub manages all connected operator sockets and fans out transition
// events to every one of them.
type Hub struct {
	connections map[*Connection]struct{}
	register    chan *Connection
	unregister  chan *Connection
	broadcast   chan []byte

	mu     sync.RWMutex
	logger *slog.Logger

	running          atomic.Bool
	totalConnections int64
	totalBroadcasts  int64
}

// New creates a Hub. logger defaults to slog.Default() when nil.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[*Connection]struct{}),
		register:    make(chan *Connection, 64),
		unregister:  make(chan *Connection, 64),
		broadcast:   make(chan []byte, 256),
		logger:      logger.With("component", "eventstream_hub"),
	}
}

// Run starts the hub's event loop. It blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("starting event stream hub")
	h.running.Store(true)
	defer h.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.totalConnections++
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Connection, 0, len(h.connections))
			for conn := range h.connections {
				targets = append(targets, conn)
			}
			h.mu.RUnlock()
			h.totalBroadcasts++
			for _, conn := range targets {
				conn.send(message)
			}
		}
	}
}

// Register admits a new connection to the hub.
func (h *Hub) Register(conn *Connection) { h.register <- conn }

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Connection) { h.unregister <- conn }

// Publish broadcasts a transition event to every connected operator.
// Marshal failures are logged and dropped; a bad event never blocks the
// caller (the reconciliation loop issuing it).
func (h *Hub) Publish(evt TransitionEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("failed to marshal transition event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping transition event", "agent_id", evt.AgentID)
	}
}

// ConnectionCount returns the number of currently connected operators.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// IsHealthy reports whether the hub's event loop is running.
func (h *Hub) IsHealthy() bool {
	return h.running.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.close()
	}
	h.connections = make(map[*Connection]struct{})
}
