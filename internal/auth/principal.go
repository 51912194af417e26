// ABOUTME: Principal types for the two identity kinds dishpatch authenticates
// ABOUTME: Customer (mini-app users) and Staff (restaurant employees) as a closed union

package auth

// Role is a staff role. The set is closed; authorization decisions key off
// this enum rather than ad-hoc string comparisons.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleWaiter  Role = "waiter"
	RoleCook    Role = "cook"
)

// Known reports whether r is a recognized role. Unknown roles carry no
// capabilities.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleWaiter, RoleCook:
		return true
	}
	return false
}

// Principal is the authenticated identity attached to a request or
// connection. It is a closed union: exactly Customer or Staff.
type Principal interface {
	principal()
}

// Customer is a mini-app user authenticated via customer-signed credentials.
// ExternalID is the chat-platform user id; no local record is required.
type Customer struct {
	ExternalID  string
	DisplayName string
}

func (Customer) principal() {}

// Staff is an employee authenticated via a staff-bearer token and confirmed
// against the staff directory.
type Staff struct {
	ID           string
	ExternalID   string
	RestaurantID string
	Role         Role
}

func (Staff) principal() {}
