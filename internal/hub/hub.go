// ABOUTME: Broadcast server owning live connections and channel membership
// ABOUTME: Fan-out is copy-then-send with per-connection drop-on-full delivery

package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dishpatch/dishpatch/internal/auth"
)

// ErrAccessDenied rejects a join the principal's capabilities do not cover.
var ErrAccessDenied = errors.New("access denied")

// Hub owns every live connection and the channel membership sets. It is
// constructed once at startup and passed to whichever component needs to
// broadcast; there is no package-level instance.
type Hub struct {
	resolver *auth.Resolver
	logger   *slog.Logger

	mu       sync.RWMutex
	conns    map[string]*Connection
	channels map[string]map[string]*Connection // channel -> connID -> conn
}

// New creates a Hub. resolver authenticates connections; pass nil logger for
// the default.
func New(resolver *auth.Resolver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		resolver: resolver,
		logger:   logger.With("component", "hub"),
		conns:    make(map[string]*Connection),
		channels: make(map[string]map[string]*Connection),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and runs its
// lifecycle until the peer disconnects. If an Authorization header is
// present it is resolved before the first message; otherwise the connection
// stays unauthenticated until an authenticate command arrives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	conn := newConnection(ws, h.logger)
	h.register(conn)
	defer h.unregister(conn)

	ctx := r.Context()
	go conn.writeLoop(ctx)

	if header := r.Header.Get("Authorization"); header != "" {
		h.authenticate(ctx, conn, header)
	}

	conn.enqueue(serverMessage{Type: msgConnected, Principal: summarize(h.principalOf(conn))})
	conn.readLoop(ctx, h)
}

// register adds a connection with no principal and no memberships.
func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("connection opened", "conn_id", conn.id, "total_conns", total)
}

// unregister drops a connection and all of its memberships.
func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.id)
	h.dropMembershipsLocked(conn)
	total := len(h.conns)
	h.mu.Unlock()

	conn.close()
	h.logger.Info("connection closed", "conn_id", conn.id, "total_conns", total)
}

// dropMembershipsLocked removes conn from every channel. Caller holds h.mu.
func (h *Hub) dropMembershipsLocked(conn *Connection) {
	for channel := range conn.channels {
		members := h.channels[channel]
		delete(members, conn.id)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	conn.channels = make(map[string]struct{})
}

// joinLocked adds conn to a channel. Caller holds h.mu.
func (h *Hub) joinLocked(conn *Connection, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]*Connection)
		h.channels[channel] = members
	}
	members[conn.id] = conn
	conn.channels[channel] = struct{}{}
}

// authenticate resolves a credential for conn and atomically replaces its
// principal and channel memberships. Old memberships are dropped and the
// auto-join set recomputed under one critical section, so no event is
// delivered to the connection in a half-switched state.
func (h *Hub) authenticate(ctx context.Context, conn *Connection, credential string) {
	principal, err := h.resolver.Resolve(ctx, credential)
	success := err == nil
	if err != nil {
		h.logger.Warn("connection authentication failed", "conn_id", conn.id, "error", err)
		conn.enqueue(serverMessage{Type: msgAuthenticated, Success: &success, Message: "authentication failed"})
		return
	}

	h.mu.Lock()
	h.dropMembershipsLocked(conn)
	conn.principal = principal
	for _, channel := range AutoChannels(principal) {
		h.joinLocked(conn, channel)
	}
	h.mu.Unlock()

	h.logger.Info("connection authenticated", "conn_id", conn.id)
	conn.enqueue(serverMessage{Type: msgAuthenticated, Success: &success, Principal: summarize(principal)})
}

// join handles an explicit join_room request.
func (h *Hub) join(conn *Connection, room string) {
	h.mu.Lock()
	principal := conn.principal
	if principal == nil || !CanJoin(principal, room) {
		h.mu.Unlock()
		conn.enqueue(serverMessage{Type: msgError, Message: ErrAccessDenied.Error(), Room: room})
		return
	}
	h.joinLocked(conn, room)
	h.mu.Unlock()

	conn.enqueue(serverMessage{Type: msgRoomJoined, Room: room})
}

// leave handles a leave_room request. Leaving a room the connection is not
// in is a no-op acknowledgement.
func (h *Hub) leave(conn *Connection, room string) {
	h.mu.Lock()
	if _, ok := conn.channels[room]; ok {
		delete(conn.channels, room)
		members := h.channels[room]
		delete(members, conn.id)
		if len(members) == 0 {
			delete(h.channels, room)
		}
	}
	h.mu.Unlock()

	conn.enqueue(serverMessage{Type: msgRoomLeft, Room: room})
}

// principalOf reads a connection's principal under the hub lock.
func (h *Hub) principalOf(conn *Connection) auth.Principal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.principal
}

// Members returns the connection count for a channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Broadcast delivers an event to every connection currently joined to
// channel. The envelope is encoded once; each delivery is non-blocking, so a
// slow or unreachable connection never stalls the others. Implements
// order.Broadcaster.
func (h *Hub) Broadcast(channel, eventType string, payload any) {
	data, err := (serverMessage{Type: eventType, Data: payload}).encode()
	if err != nil {
		h.logger.Error("encoding broadcast", "channel", channel, "event_type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	members, ok := h.channels[channel]
	if !ok || len(members) == 0 {
		h.mu.RUnlock()
		return
	}
	// Copy targets under the read lock; never send while holding it.
	targets := make([]*Connection, 0, len(members))
	for _, conn := range members {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if !conn.enqueueRaw(data) {
			h.logger.Debug("dropped event for slow connection",
				"conn_id", conn.id,
				"channel", channel,
				"event_type", eventType,
			)
		}
	}
}

// Close disconnects every connection. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Connection)
	h.channels = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	h.logger.Info("hub closed", "conns", len(conns))
}
