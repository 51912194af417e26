// ABOUTME: Fire-and-forget event delivery to the external chat bot
// ABOUTME: Failures are logged and never propagated to the caller

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// notifyTimeout bounds each webhook call. The bot is a best-effort
// collaborator; a slow endpoint must not hold order processing resources.
const notifyTimeout = 5 * time.Second

// Notifier posts order events to the chat bot's webhook endpoint.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Notifier. An empty endpoint yields a no-op notifier, so
// callers never need to special-case an unconfigured bot.
func New(endpoint string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: notifyTimeout},
		logger:   logger.With("component", "bot-notifier"),
	}
}

// notification is the webhook body.
type notification struct {
	EventType    string `json:"event_type"`
	RestaurantID string `json:"restaurant_id"`
	Payload      any    `json:"payload"`
}

// Notify delivers an event to the bot. Fire-and-forget: the POST runs in its
// own goroutine with its own deadline, and errors are only logged.
// Implements order.Notifier.
func (n *Notifier) Notify(ctx context.Context, eventType, restaurantID string, payload any) {
	if n.endpoint == "" {
		return
	}

	body, err := json.Marshal(notification{
		EventType:    eventType,
		RestaurantID: restaurantID,
		Payload:      payload,
	})
	if err != nil {
		n.logger.Error("encoding notification", "event_type", eventType, "error", err)
		return
	}

	// Detach from the request context: the triggering request must not wait
	// on, or be failed by, bot delivery.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
		if err != nil {
			n.logger.Error("building notification request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Warn("bot notification failed",
				"event_type", eventType,
				"restaurant_id", restaurantID,
				"error", err,
			)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.logger.Warn("bot notification rejected",
				"event_type", eventType,
				"restaurant_id", restaurantID,
				"status", resp.StatusCode,
			)
		}
	}()
}
