// ABOUTME: Wire types for the persistent-connection protocol
// ABOUTME: JSON envelopes: client commands in, typed events out

package hub

import (
	"encoding/json"

	"github.com/dishpatch/dishpatch/internal/auth"
)

// Client → server message types.
const (
	msgAuthenticate = "authenticate"
	msgJoinRoom     = "join_room"
	msgLeaveRoom    = "leave_room"
)

// Server → client message types. Broadcast event types (new_order,
// order_status_update) are carried in the same envelope.
const (
	msgConnected     = "connected"
	msgAuthenticated = "authenticated"
	msgRoomJoined    = "room_joined"
	msgRoomLeft      = "room_left"
	msgError         = "error"
)

// clientMessage is any inbound command from a connected client.
type clientMessage struct {
	Type       string `json:"type"`
	Credential string `json:"credential,omitempty"`
	Room       string `json:"room,omitempty"`
}

// serverMessage is the outbound envelope. Data carries the event payload.
type serverMessage struct {
	Type      string            `json:"type"`
	Success   *bool             `json:"success,omitempty"`
	Principal *PrincipalSummary `json:"principal,omitempty"`
	Room      string            `json:"room,omitempty"`
	Message   string            `json:"message,omitempty"`
	Data      any               `json:"data,omitempty"`
}

func (m serverMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}

// PrincipalSummary is the client-visible identity attached to a connection.
type PrincipalSummary struct {
	Kind         string `json:"kind"`
	ID           string `json:"id"`
	DisplayName  string `json:"display_name,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Role         string `json:"role,omitempty"`
}

// summarize converts a Principal for the wire. Nil for an unauthenticated
// connection.
func summarize(p auth.Principal) *PrincipalSummary {
	switch p := p.(type) {
	case auth.Customer:
		return &PrincipalSummary{
			Kind:        "customer",
			ID:          p.ExternalID,
			DisplayName: p.DisplayName,
		}
	case auth.Staff:
		return &PrincipalSummary{
			Kind:         "staff",
			ID:           p.ID,
			RestaurantID: p.RestaurantID,
			Role:         string(p.Role),
		}
	default:
		return nil
	}
}
