// ABOUTME: Domain events emitted by the order state machine
// ABOUTME: Broadcaster and Notifier are injected so the machine owns no transport

package order

import (
	"context"
)

// Event types carried to connected clients and the bot.
const (
	EventNewOrder          = "new_order"
	EventOrderStatusUpdate = "order_status_update"
)

// Broadcaster fans an event out to every connection joined to a channel.
// Delivery is best-effort and must never block the caller.
type Broadcaster interface {
	Broadcast(channel, eventType string, payload any)
}

// Notifier delivers events to the external chat bot. Fire-and-forget:
// implementations log failures and never return them.
type Notifier interface {
	Notify(ctx context.Context, eventType, restaurantID string, payload any)
}
