// Package hub is the broadcast server for dishpatch's live connections.
//
// Each WebSocket client gets a Connection with its own writer goroutine and
// a bounded outbound buffer. The Hub owns the connection registry and all
// channel membership; nothing else mutates that state.
//
// # Channels
//
// Channels are application-defined names in four namespaces: customer_<id>,
// restaurant_<id>, kitchen_<id> and table_<restaurantID>_<tableID>. They are
// not persisted — a channel exists exactly as long as it has members.
// Authentication auto-joins a principal to its home channels; explicit joins
// are checked against the role capability table in channels.go.
//
// # Delivery
//
// Broadcast encodes an event once and offers it to each member without
// blocking. A connection whose buffer is full loses that event; there is no
// queueing or replay for disconnected clients. Reconnecting clients are
// expected to re-fetch current state over the HTTP API.
package hub
