// ABOUTME: Tests for the SQLite store against an in-memory database
// ABOUTME: Covers order round trips, status stamps, active sets, lookups

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrder(restaurantID string, status OrderStatus) *Order {
	return &Order{
		ID:               uuid.New().String(),
		CustomerID:       "cust-7",
		CustomerName:     "Alice",
		RestaurantID:     restaurantID,
		TableID:          "table-1",
		Status:           status,
		TotalAmount:      2950,
		EstimatedMinutes: 13,
		Items: []OrderItem{
			{MenuItemID: "burger", VariantID: "v-burger", Name: "Burger", Quantity: 2, UnitPrice: 1250, Subtotal: 2500},
			{MenuItemID: "fries", VariantID: "v-fries", Name: "Fries", Quantity: 1, UnitPrice: 450, Subtotal: 450},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestOrderRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	o := testOrder("rest-1", StatusPending)
	require.NoError(t, s.CreateOrder(context.Background(), o))

	got, err := s.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.CustomerID, got.CustomerID)
	assert.Equal(t, o.CustomerName, got.CustomerName)
	assert.Equal(t, o.RestaurantID, got.RestaurantID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, o.TotalAmount, got.TotalAmount)
	assert.Equal(t, o.EstimatedMinutes, got.EstimatedMinutes)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.ConfirmedAt)

	// Line items come back in insertion order
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Burger", got.Items[0].Name)
	assert.Equal(t, int64(2500), got.Items[0].Subtotal)
	assert.Equal(t, "Fries", got.Items[1].Name)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetOrder(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := setupTestStore(t)

	o := testOrder("rest-1", StatusPending)
	require.NoError(t, s.CreateOrder(context.Background(), o))

	confirmedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateOrderStatus(context.Background(), o.ID, StatusConfirmed, StatusTimes{ConfirmedAt: &confirmedAt}))

	got, err := s.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, confirmedAt.Equal(*got.ConfirmedAt))
	assert.Nil(t, got.ReadyAt)
	assert.Nil(t, got.ServedAt)

	// A later transition must not clear earlier stamps
	servedAt := confirmedAt.Add(20 * time.Minute)
	require.NoError(t, s.UpdateOrderStatus(context.Background(), o.ID, StatusServed, StatusTimes{ServedAt: &servedAt}))

	got, err = s.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusServed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	require.NotNil(t, got.ServedAt)
	assert.True(t, servedAt.Equal(*got.ServedAt))
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpdateOrderStatus(context.Background(), "no-such-order", StatusConfirmed, StatusTimes{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetActiveOrders(t *testing.T) {
	s := setupTestStore(t)

	active1 := testOrder("rest-1", StatusPending)
	active2 := testOrder("rest-1", StatusPreparing)
	served := testOrder("rest-1", StatusServed)
	cancelled := testOrder("rest-1", StatusCancelled)
	other := testOrder("rest-2", StatusPending)

	for _, o := range []*Order{active1, active2, served, cancelled, other} {
		require.NoError(t, s.CreateOrder(context.Background(), o))
	}

	orders, err := s.GetActiveOrders(context.Background(), "rest-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)

	ids := map[string]bool{orders[0].ID: true, orders[1].ID: true}
	assert.True(t, ids[active1.ID])
	assert.True(t, ids[active2.ID])
}

func TestActiveRestaurantIDs(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.CreateOrder(context.Background(), testOrder("rest-1", StatusPending)))
	require.NoError(t, s.CreateOrder(context.Background(), testOrder("rest-1", StatusPreparing)))
	require.NoError(t, s.CreateOrder(context.Background(), testOrder("rest-2", StatusReady)))
	require.NoError(t, s.CreateOrder(context.Background(), testOrder("rest-3", StatusServed)))

	ids, err := s.ActiveRestaurantIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rest-1", "rest-2"}, ids)
}

func TestMenuVariantLookup(t *testing.T) {
	s := setupTestStore(t)

	v := &MenuVariant{
		ID: "v-burger", MenuItemID: "burger", RestaurantID: "rest-1",
		Name: "Burger", Price: 1250, PrepMinutes: 10, Available: true,
	}
	require.NoError(t, s.CreateMenuVariant(context.Background(), v))

	got, err := s.GetMenuVariant(context.Background(), "v-burger")
	require.NoError(t, err)
	assert.Equal(t, v.Name, got.Name)
	assert.Equal(t, v.Price, got.Price)
	assert.Equal(t, v.PrepMinutes, got.PrepMinutes)
	assert.True(t, got.Available)

	_, err = s.GetMenuVariant(context.Background(), "v-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTableLookup(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.CreateTable(context.Background(), &Table{ID: "table-1", RestaurantID: "rest-1", Label: "T1"}))

	got, err := s.GetTable(context.Background(), "table-1")
	require.NoError(t, err)
	assert.Equal(t, "rest-1", got.RestaurantID)
	assert.Equal(t, "T1", got.Label)

	_, err = s.GetTable(context.Background(), "table-99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaffLookup(t *testing.T) {
	s := setupTestStore(t)

	st := &Staff{
		ID: "u-1", ExternalID: "staff-1", RestaurantID: "rest-1",
		Name: "Bob", Role: "waiter", PasswordHash: "$2a$10$hash", IsActive: true,
	}
	require.NoError(t, s.CreateStaff(context.Background(), st))

	got, err := s.GetStaffByExternalID(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, "rest-1", got.RestaurantID)
	assert.Equal(t, "waiter", got.Role)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)
	assert.True(t, got.IsActive)

	_, err = s.GetStaffByExternalID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaffUniqueExternalID(t *testing.T) {
	s := setupTestStore(t)

	st := &Staff{ID: "u-1", ExternalID: "staff-1", RestaurantID: "rest-1", Name: "Bob", Role: "waiter", IsActive: true}
	require.NoError(t, s.CreateStaff(context.Background(), st))

	dup := &Staff{ID: "u-2", ExternalID: "staff-1", RestaurantID: "rest-1", Name: "Eve", Role: "cook", IsActive: true}
	assert.Error(t, s.CreateStaff(context.Background(), dup))
}
