package eventstream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 64
)

// Connection wraps one operator's WebSocket socket. It is write-only from
// the hub's perspective: the read pump exists only to keep the
// connection alive (pong handling) and to notice disconnects.
type Connection struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewConnection wraps ws for registration with hub.
func NewConnection(ws *websocket.Conn, hub *Hub, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Connection{
		id:     id,
		hub:    hub,
		conn:   ws,
		outbox: make(chan []byte, sendBufferSize),
		logger: logger.With("component", "eventstream_conn", "conn_id", id),
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// send queues message for delivery, dropping it if the connection is
// closed or its outbox is full.
func (c *Connection) send(message []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.outbox <- message:
		return true
	default:
		c.logger.Warn("outbox full, dropping message")
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.outbox)
	c.conn.Close()
}

// ReadPump drains the socket so pong frames are processed and a closed
// peer is detected; it discards anything an operator client sends.
func (c *Connection) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump drains the send channel to the socket and pings periodically.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
