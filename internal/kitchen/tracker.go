// ABOUTME: Per-restaurant kitchen load tracking and wait-time estimation
// ABOUTME: Serializes load updates per restaurant so counts never drift

package kitchen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dishpatch/dishpatch/internal/store"
)

// prepTimeScale is the fraction of an item's base time each additional unit
// of quantity adds. Extra units of the same dish mostly cook in parallel.
const prepTimeScale = 0.3

// loadFactor scales estimates upward per concurrently active order.
// multiplier = 1 + loadFactor*currentOrders, so an idle kitchen is exactly 1
// and the estimate never scales downward.
const loadFactor = 0.1

// Load is a snapshot of a restaurant's kitchen load.
type Load struct {
	CurrentOrders      int
	AveragePrepMinutes float64
}

// ActiveOrderSource provides the active-order set used to re-derive load
// state from persistence.
type ActiveOrderSource interface {
	GetActiveOrders(ctx context.Context, restaurantID string) ([]*store.Order, error)
}

// restaurantLoad is the mutable load state for one restaurant. Each
// restaurant has a single owner lock; unrelated restaurants never contend.
type restaurantLoad struct {
	mu                 sync.Mutex
	currentOrders      int
	averagePrepMinutes float64
}

// Tracker maintains per-restaurant kitchen load. Increment/Decrement are
// called by the order state machine on creation and terminal transitions;
// Estimate is read by the preparation-time estimator.
type Tracker struct {
	mu     sync.RWMutex
	loads  map[string]*restaurantLoad
	orders ActiveOrderSource
	logger *slog.Logger
}

// NewTracker creates a Tracker. orders is consulted only by Recalculate.
func NewTracker(orders ActiveOrderSource, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		loads:  make(map[string]*restaurantLoad),
		orders: orders,
		logger: logger.With("component", "kitchen-tracker"),
	}
}

// load returns the shard for a restaurant, creating it on first use.
// The global lock is never held while a shard lock is held.
func (t *Tracker) load(restaurantID string) *restaurantLoad {
	t.mu.RLock()
	l, ok := t.loads[restaurantID]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok = t.loads[restaurantID]; ok {
		return l
	}
	l = &restaurantLoad{}
	t.loads[restaurantID] = l
	return l
}

// Increment records a newly created active order.
func (t *Tracker) Increment(restaurantID string) {
	l := t.load(restaurantID)
	l.mu.Lock()
	l.currentOrders++
	l.mu.Unlock()
}

// Decrement records an order leaving the active set (served or cancelled).
// The count floors at zero: going negative would corrupt every subsequent
// estimate, and Recalculate is the repair path for drift.
func (t *Tracker) Decrement(restaurantID string) {
	l := t.load(restaurantID)
	l.mu.Lock()
	if l.currentOrders > 0 {
		l.currentOrders--
	} else {
		t.logger.Warn("decrement on empty kitchen load", "restaurant_id", restaurantID)
	}
	l.mu.Unlock()
}

// Snapshot returns the current load for a restaurant.
func (t *Tracker) Snapshot(restaurantID string) Load {
	l := t.load(restaurantID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return Load{
		CurrentOrders:      l.currentOrders,
		AveragePrepMinutes: l.averagePrepMinutes,
	}
}

// Recalculate re-derives a restaurant's load from the persisted active-order
// set. Idempotent; used to repair drift after restarts or bugs.
func (t *Tracker) Recalculate(ctx context.Context, restaurantID string) (Load, error) {
	active, err := t.orders.GetActiveOrders(ctx, restaurantID)
	if err != nil {
		return Load{}, fmt.Errorf("loading active orders: %w", err)
	}

	var total int
	for _, o := range active {
		total += o.EstimatedMinutes
	}
	var avg float64
	if len(active) > 0 {
		avg = float64(total) / float64(len(active))
	}

	l := t.load(restaurantID)
	l.mu.Lock()
	l.currentOrders = len(active)
	l.averagePrepMinutes = avg
	snapshot := Load{CurrentOrders: l.currentOrders, AveragePrepMinutes: l.averagePrepMinutes}
	l.mu.Unlock()

	t.logger.Debug("recalculated kitchen load",
		"restaurant_id", restaurantID,
		"current_orders", snapshot.CurrentOrders,
		"average_prep_minutes", snapshot.AveragePrepMinutes,
	)
	return snapshot, nil
}

// Estimate returns the expected preparation time in whole minutes for an
// order line with the given base time and quantity under current load.
//
// perExtraUnit = ceil(base * 0.3); itemTime = base + (qty-1)*perExtraUnit;
// result = ceil(itemTime * (1 + 0.1*currentOrders)). Non-decreasing in both
// quantity and current load.
func (t *Tracker) Estimate(restaurantID string, baseMinutes, quantity int) int {
	if quantity < 1 {
		quantity = 1
	}

	perExtraUnit := int(math.Ceil(float64(baseMinutes) * prepTimeScale))
	itemTime := baseMinutes + (quantity-1)*perExtraUnit

	l := t.load(restaurantID)
	l.mu.Lock()
	current := l.currentOrders
	l.mu.Unlock()

	multiplier := 1 + loadFactor*float64(current)
	return int(math.Ceil(float64(itemTime) * multiplier))
}
