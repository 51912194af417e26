// ABOUTME: Order state machine: creation, status transitions, event emission
// ABOUTME: Couples transitions to kitchen load updates; rejections mutate nothing

package order

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dishpatch/dishpatch/internal/auth"
	"github.com/dishpatch/dishpatch/internal/hub"
	"github.com/dishpatch/dishpatch/internal/kitchen"
	"github.com/dishpatch/dishpatch/internal/store"
)

// State machine errors
var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrItemUnavailable   = errors.New("menu item unavailable")
	ErrBadRequest        = errors.New("invalid order request")
	ErrForbidden         = errors.New("actor may not perform this transition")
)

// allowedNext is the status graph. Absence means the transition is illegal;
// a status is never in its own allowed set, so re-requesting the current
// status fails rather than duplicating side effects.
var allowedNext = map[store.OrderStatus][]store.OrderStatus{
	store.StatusPending:   {store.StatusConfirmed, store.StatusCancelled},
	store.StatusConfirmed: {store.StatusPreparing, store.StatusCancelled},
	store.StatusPreparing: {store.StatusReady, store.StatusCancelled},
	store.StatusReady:     {store.StatusServed},
	store.StatusServed:    {},
	store.StatusCancelled: {},
}

// CanTransition reports whether the status graph permits from → to.
func CanTransition(from, to store.OrderStatus) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineRequest is one requested order line. Prices never come from the
// client; only the variant reference and quantity are trusted.
type LineRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	TableID string        `json:"table_id"`
	Items   []LineRequest `json:"items"`
}

// StatusEvent is the payload of every order_status_update event.
type StatusEvent struct {
	OrderID string       `json:"order_id"`
	Status  string       `json:"status"`
	Order   *store.Order `json:"order"`
}

// orderLockStripes bounds memory for per-order serialization. Two orders
// sharing a stripe serialize against each other harmlessly.
const orderLockStripes = 64

// Machine validates and applies order lifecycle changes. It is the only
// writer of order status and the only caller of kitchen load updates, so a
// rejected call leaves both exactly as they were.
type Machine struct {
	store       store.Store
	tracker     *kitchen.Tracker
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger

	locks [orderLockStripes]sync.Mutex

	// now is overridable for timestamp tests.
	now func() time.Time
}

// NewMachine creates a Machine with its collaborators injected.
func NewMachine(s store.Store, tracker *kitchen.Tracker, broadcaster Broadcaster, notifier Notifier, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:       s,
		tracker:     tracker,
		broadcaster: broadcaster,
		notifier:    notifier,
		logger:      logger.With("component", "order-machine"),
		now:         time.Now,
	}
}

// Create validates and persists a new order at status pending, updates the
// kitchen load and emits new_order to the restaurant and kitchen channels.
func (m *Machine) Create(ctx context.Context, customer auth.Customer, req CreateRequest) (*store.Order, error) {
	if req.TableID == "" {
		return nil, fmt.Errorf("%w: table_id is required", ErrBadRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrBadRequest)
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrBadRequest)
		}
	}

	table, err := m.store.GetTable(ctx, req.TableID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown table %q", ErrBadRequest, req.TableID)
		}
		return nil, fmt.Errorf("resolving table: %w", err)
	}

	items := make([]store.OrderItem, 0, len(req.Items))
	var total int64
	estimated := 0
	for _, line := range req.Items {
		variant, err := m.store.GetMenuVariant(ctx, line.VariantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: variant %q", ErrItemUnavailable, line.VariantID)
			}
			return nil, fmt.Errorf("resolving variant: %w", err)
		}
		if !variant.Available || variant.RestaurantID != table.RestaurantID {
			return nil, fmt.Errorf("%w: variant %q", ErrItemUnavailable, line.VariantID)
		}

		items = append(items, store.OrderItem{
			MenuItemID: variant.MenuItemID,
			VariantID:  variant.ID,
			Name:       variant.Name,
			Quantity:   line.Quantity,
			UnitPrice:  variant.Price,
			Subtotal:   variant.Price * int64(line.Quantity),
		})
		total += variant.Price * int64(line.Quantity)

		// The wait for a multi-item order is bounded by its slowest line
		// prepared in parallel, not the sum.
		if est := m.tracker.Estimate(table.RestaurantID, variant.PrepMinutes, line.Quantity); est > estimated {
			estimated = est
		}
	}

	o := &store.Order{
		ID:               uuid.New().String(),
		CustomerID:       customer.ExternalID,
		CustomerName:     customer.DisplayName,
		RestaurantID:     table.RestaurantID,
		TableID:          table.ID,
		Status:           store.StatusPending,
		TotalAmount:      total,
		EstimatedMinutes: estimated,
		Items:            items,
		CreatedAt:        m.now().UTC(),
	}

	if err := m.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persisting order: %w", err)
	}

	// Side effects only after the write is durable.
	m.tracker.Increment(o.RestaurantID)

	m.broadcaster.Broadcast(hub.RestaurantChannel(o.RestaurantID), EventNewOrder, o)
	m.broadcaster.Broadcast(hub.KitchenChannel(o.RestaurantID), EventNewOrder, o)
	m.notifier.Notify(ctx, EventNewOrder, o.RestaurantID, o)

	m.logger.Info("order created",
		"order_id", o.ID,
		"restaurant_id", o.RestaurantID,
		"table_id", o.TableID,
		"total_amount", o.TotalAmount,
		"estimated_minutes", o.EstimatedMinutes,
	)
	return o, nil
}

// Transition applies a status change requested by actor. The read-check-write
// runs as one serialized step per order id. Entering served or cancelled
// releases the order from the kitchen load. The resulting event reaches the
// restaurant, kitchen and customer channels in apply order.
func (m *Machine) Transition(ctx context.Context, orderID string, target store.OrderStatus, actor auth.Principal) (*store.Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, target)
	}

	lock := m.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("loading order: %w", err)
	}

	if err := m.authorizeTransition(o, target, actor); err != nil {
		return nil, err
	}

	if !CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, target)
	}

	now := m.now().UTC()
	var times store.StatusTimes
	switch target {
	case store.StatusConfirmed:
		times.ConfirmedAt = &now
	case store.StatusReady:
		times.ReadyAt = &now
	case store.StatusServed:
		times.ServedAt = &now
	}

	if err := m.store.UpdateOrderStatus(ctx, orderID, target, times); err != nil {
		return nil, fmt.Errorf("persisting status: %w", err)
	}

	o.Status = target
	if times.ConfirmedAt != nil {
		o.ConfirmedAt = times.ConfirmedAt
	}
	if times.ReadyAt != nil {
		o.ReadyAt = times.ReadyAt
	}
	if times.ServedAt != nil {
		o.ServedAt = times.ServedAt
	}

	if target.Terminal() {
		m.tracker.Decrement(o.RestaurantID)
	}

	event := StatusEvent{OrderID: o.ID, Status: string(target), Order: o}
	m.broadcaster.Broadcast(hub.RestaurantChannel(o.RestaurantID), EventOrderStatusUpdate, event)
	m.broadcaster.Broadcast(hub.KitchenChannel(o.RestaurantID), EventOrderStatusUpdate, event)
	m.broadcaster.Broadcast(hub.CustomerChannel(o.CustomerID), EventOrderStatusUpdate, event)
	m.notifier.Notify(ctx, EventOrderStatusUpdate, o.RestaurantID, event)

	m.logger.Info("order transitioned",
		"order_id", o.ID,
		"restaurant_id", o.RestaurantID,
		"status", target,
	)
	return o, nil
}

// authorizeTransition enforces who may move an order. Staff of the order's
// restaurant may apply any graph-legal transition; a customer may only cancel
// their own order.
func (m *Machine) authorizeTransition(o *store.Order, target store.OrderStatus, actor auth.Principal) error {
	switch p := actor.(type) {
	case auth.Staff:
		if p.RestaurantID != o.RestaurantID {
			return fmt.Errorf("%w: staff of another restaurant", ErrForbidden)
		}
		return nil
	case auth.Customer:
		if p.ExternalID != o.CustomerID {
			return fmt.Errorf("%w: not the order's customer", ErrForbidden)
		}
		if target != store.StatusCancelled {
			return fmt.Errorf("%w: customers may only cancel", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: unauthenticated actor", ErrForbidden)
	}
}

func (m *Machine) orderLock(orderID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return &m.locks[h.Sum32()%orderLockStripes]
}
