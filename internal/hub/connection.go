// ABOUTME: Represents one live client connection and its read/write loops
// ABOUTME: Outbound delivery goes through a buffered channel owned by a writer goroutine

package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dishpatch/dishpatch/internal/auth"
)

// outboundBufferSize is the per-connection send buffer. A connection that
// falls this far behind starts losing events; reconnecting clients re-fetch
// state rather than rely on replay.
const outboundBufferSize = 64

// writeTimeout bounds a single frame write so one dead peer cannot wedge its
// writer goroutine forever.
const writeTimeout = 10 * time.Second

// Connection ties a live transport session to zero-or-one principal and a
// set of joined channels. principal and channels are guarded by the owning
// Hub's lock; the transport side is owned by the connection's own goroutines.
type Connection struct {
	id          string
	connectedAt time.Time

	principal auth.Principal
	channels  map[string]struct{}

	ws       *websocket.Conn
	outbound chan []byte
	logger   *slog.Logger

	sendMu sync.Mutex
	closed bool
}

func newConnection(ws *websocket.Conn, logger *slog.Logger) *Connection {
	id := uuid.New().String()
	return &Connection{
		id:          id,
		connectedAt: time.Now().UTC(),
		channels:    make(map[string]struct{}),
		ws:          ws,
		outbound:    make(chan []byte, outboundBufferSize),
		logger:      logger.With("conn_id", id),
	}
}

// enqueue encodes and queues a message for delivery, dropping it if the
// connection is backed up.
func (c *Connection) enqueue(msg serverMessage) {
	data, err := msg.encode()
	if err != nil {
		c.logger.Error("encoding message", "type", msg.Type, "error", err)
		return
	}
	if !c.enqueueRaw(data) {
		c.logger.Debug("dropped message for slow connection", "type", msg.Type)
	}
}

// enqueueRaw queues pre-encoded bytes without blocking. Returns false if the
// buffer is full or the connection is closed.
func (c *Connection) enqueueRaw(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbound buffer onto the socket.
func (c *Connection) writeLoop(ctx context.Context) {
	for data := range c.outbound {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			c.logger.Debug("write failed", "error", err)
			return
		}
	}
}

// readLoop processes inbound commands until the peer disconnects or sends a
// malformed frame.
func (c *Connection) readLoop(ctx context.Context, h *Hub) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(serverMessage{Type: msgError, Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case msgAuthenticate:
			h.authenticate(ctx, c, msg.Credential)
		case msgJoinRoom:
			h.join(c, msg.Room)
		case msgLeaveRoom:
			h.leave(c, msg.Room)
		default:
			c.enqueue(serverMessage{Type: msgError, Message: "unknown message type"})
		}
	}
}

// close shuts the transport and stops the writer.
func (c *Connection) close() {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	c.closed = true
	close(c.outbound)
	c.sendMu.Unlock()

	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}
