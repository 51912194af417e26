// ABOUTME: Store interface and data types for dishpatch persistence
// ABOUTME: Defines Order, MenuVariant, Table, Staff structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses. Pending through Served is the happy path; Cancelled is
// reachable from Pending, Confirmed and Preparing only.
const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
	StatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is valid from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusServed || s == StatusCancelled
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusServed, StatusCancelled:
		return true
	}
	return false
}

// OrderItem is a single line on an order. Prices are in the restaurant's
// minor currency unit (cents). Line items are immutable after creation.
type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	VariantID  string `json:"variant_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Subtotal   int64  `json:"subtotal"`
}

// Order is a customer order. Status and the per-status timestamps are
// mutated only through the order state machine; everything else is fixed
// at creation.
type Order struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customer_id"`
	CustomerName     string      `json:"customer_name"`
	RestaurantID     string      `json:"restaurant_id"`
	TableID          string      `json:"table_id"`
	Status           OrderStatus `json:"status"`
	TotalAmount      int64       `json:"total_amount"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"created_at"`
	ConfirmedAt      *time.Time  `json:"confirmed_at,omitempty"`
	ReadyAt          *time.Time  `json:"ready_at,omitempty"`
	ServedAt         *time.Time  `json:"served_at,omitempty"`
}

// MenuVariant is a purchasable variant of a menu item (size, option set).
type MenuVariant struct {
	ID           string
	MenuItemID   string
	RestaurantID string
	Name         string
	Price        int64
	PrepMinutes  int
	Available    bool
}

// Table is a physical table within a restaurant.
type Table struct {
	ID           string
	RestaurantID string
	Label        string
}

// Staff is an employee record. ExternalID is the identity carried in
// staff-bearer tokens; IsActive gates authentication regardless of token
// validity.
type Staff struct {
	ID           string
	ExternalID   string
	RestaurantID string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
}

// StatusTimes carries the timestamp to stamp when an order enters a status.
type StatusTimes struct {
	ConfirmedAt *time.Time
	ReadyAt     *time.Time
	ServedAt    *time.Time
}

// Store defines the persistence interface consumed by the order engine.
// Implementations may fail any call with a storage error; callers must not
// assume a failed write partially succeeded.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus, times StatusTimes) error
	GetActiveOrders(ctx context.Context, restaurantID string) ([]*Order, error)

	// Menu
	GetMenuVariant(ctx context.Context, id string) (*MenuVariant, error)

	// Tables
	GetTable(ctx context.Context, id string) (*Table, error)

	// Staff directory
	GetStaffByExternalID(ctx context.Context, externalID string) (*Staff, error)

	// Close releases any resources held by the store
	Close() error
}
