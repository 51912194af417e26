// ABOUTME: Channel naming and the per-role capability rules for joining them
// ABOUTME: Four namespaces: customer_, restaurant_, kitchen_, table_

package hub

import (
	"strings"

	"github.com/dishpatch/dishpatch/internal/auth"
)

// Channel name constructors. Channels are not persisted entities; a name
// exists only as connection-set membership inside the Hub.
func CustomerChannel(customerID string) string { return "customer_" + customerID }

func RestaurantChannel(restaurantID string) string { return "restaurant_" + restaurantID }

func KitchenChannel(restaurantID string) string { return "kitchen_" + restaurantID }

func TableChannel(restaurantID, tableID string) string {
	return "table_" + restaurantID + "_" + tableID
}

// capability is a channel namespace a staff role may join explicitly.
type capability int

const (
	capRestaurant capability = iota
	capKitchen
	capTable
)

// roleCapabilities is the closed capability table. Authorization is decided
// here once, not by string checks scattered through handlers. Every known
// role currently carries all three staff capabilities; the table exists so
// narrowing a role is a one-line change.
var roleCapabilities = map[auth.Role]map[capability]bool{
	auth.RoleAdmin:   {capRestaurant: true, capKitchen: true, capTable: true},
	auth.RoleManager: {capRestaurant: true, capKitchen: true, capTable: true},
	auth.RoleWaiter:  {capRestaurant: true, capKitchen: true, capTable: true},
	auth.RoleCook:    {capRestaurant: true, capKitchen: true, capTable: true},
}

// AutoChannels returns the channels a principal is joined to on
// authentication. Customers get only their own channel; staff get their
// restaurant and kitchen channels.
func AutoChannels(p auth.Principal) []string {
	switch p := p.(type) {
	case auth.Customer:
		return []string{CustomerChannel(p.ExternalID)}
	case auth.Staff:
		return []string{RestaurantChannel(p.RestaurantID), KitchenChannel(p.RestaurantID)}
	default:
		return nil
	}
}

// CanJoin reports whether a principal may explicitly join a channel.
// Customers may join only their own customer channel. Staff may join their
// restaurant and kitchen channels and any table channel namespaced under
// their restaurant.
func CanJoin(p auth.Principal, channel string) bool {
	switch p := p.(type) {
	case auth.Customer:
		return channel == CustomerChannel(p.ExternalID)
	case auth.Staff:
		caps, ok := roleCapabilities[p.Role]
		if !ok {
			return false
		}
		switch {
		case channel == RestaurantChannel(p.RestaurantID):
			return caps[capRestaurant]
		case channel == KitchenChannel(p.RestaurantID):
			return caps[capKitchen]
		case strings.HasPrefix(channel, "table_"+p.RestaurantID+"_"):
			return caps[capTable]
		}
		return false
	default:
		return false
	}
}
