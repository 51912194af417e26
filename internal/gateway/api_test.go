// ABOUTME: HTTP API tests over a fully wired gateway with an in-memory store
// ABOUTME: Exercises credential schemes, order creation and transition codes

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishpatch/dishpatch/internal/auth"
	"github.com/dishpatch/dishpatch/internal/config"
	"github.com/dishpatch/dishpatch/internal/store"
)

const testBotToken = "12345:test-bot-token"

type apiFixture struct {
	gateway *Gateway
	server  *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth: config.AuthConfig{
			BotToken:         testBotToken,
			StaffTokenSecret: "api-test-secret",
			StaffTokenTTL:    time.Hour,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	g, err := New(cfg, logger)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.store.CreateTable(ctx, &store.Table{ID: "table-1", RestaurantID: "rest-1", Label: "T1"}))
	require.NoError(t, g.store.CreateMenuVariant(ctx, &store.MenuVariant{
		ID: "v-burger", MenuItemID: "burger", RestaurantID: "rest-1",
		Name: "Burger", Price: 1250, PrepMinutes: 10, Available: true,
	}))
	require.NoError(t, g.store.CreateMenuVariant(ctx, &store.MenuVariant{
		ID: "v-gone", MenuItemID: "special", RestaurantID: "rest-1",
		Name: "Sold Out", Price: 2000, PrepMinutes: 15, Available: false,
	}))
	require.NoError(t, g.store.CreateStaff(ctx, &store.Staff{
		ID: "u-1", ExternalID: "staff-1", RestaurantID: "rest-1",
		Name: "Bob", Role: "waiter", IsActive: true,
	}))

	server := httptest.NewServer(g.httpServer.Handler)
	t.Cleanup(func() {
		server.Close()
		g.store.Close()
	})

	return &apiFixture{gateway: g, server: server}
}

func (f *apiFixture) customerCredential(t *testing.T, customerID string) string {
	t.Helper()
	values := url.Values{}
	values.Set("user", `{"id":`+customerID+`,"first_name":"Alice"}`)
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	return auth.SchemeCustomerSigned + " " + auth.SignInitData(values, testBotToken)
}

func (f *apiFixture) staffCredential(t *testing.T) string {
	t.Helper()
	token, err := f.gateway.tokens.Generate("staff-1", "rest-1", auth.RoleWaiter, time.Hour)
	require.NoError(t, err)
	return auth.SchemeStaffBearer + " " + token
}

func (f *apiFixture) request(t *testing.T, method, path, credential string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, reader)
	require.NoError(t, err)
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) *store.Order {
	t.Helper()
	var o store.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	return &o
}

func createBody(variantID string, qty int) map[string]any {
	return map[string]any{
		"table_id": "table-1",
		"items":    []map[string]any{{"variant_id": variantID, "quantity": qty}},
	}
}

func TestAPI_CreateOrder(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := decodeOrder(t, resp)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, store.StatusPending, o.Status)
	assert.Equal(t, "42", o.CustomerID)
	assert.Equal(t, int64(2500), o.TotalAmount)
	assert.Equal(t, 13, o.EstimatedMinutes)
}

func TestAPI_CreateOrder_RequiresCredential(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", "", createBody("v-burger", 1))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateOrder_StaffForbidden(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.staffCredential(t), createBody("v-burger", 1))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_CreateOrder_UnavailableItem(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-gone", 1))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPI_CreateOrder_BadBody(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.server.URL+"/api/orders", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	req.Header.Set("Authorization", f.customerCredential(t, "42"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetOrder(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeOrder(t, resp)

	// Owner reads it
	resp = f.request(t, http.MethodGet, "/api/orders/"+created.ID, f.customerCredential(t, "42"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decodeOrder(t, resp).ID)

	// Restaurant staff read it
	resp = f.request(t, http.MethodGet, "/api/orders/"+created.ID, f.staffCredential(t), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Another customer does not
	resp = f.request(t, http.MethodGet, "/api/orders/"+created.ID, f.customerCredential(t, "99"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_GetOrder_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/api/orders/no-such-order", f.staffCredential(t), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Transition(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeOrder(t, resp)

	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.staffCredential(t), TransitionRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeOrder(t, resp)
	assert.Equal(t, store.StatusConfirmed, updated.Status)
	assert.NotNil(t, updated.ConfirmedAt)
}

func TestAPI_Transition_Illegal(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeOrder(t, resp)

	// pending -> served skips the graph
	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.staffCredential(t), TransitionRequest{Status: "served"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Re-requesting the current status is also a conflict
	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.staffCredential(t), TransitionRequest{Status: "pending"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Transition_CustomerCancelOnly(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeOrder(t, resp)

	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.customerCredential(t, "42"), TransitionRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.customerCredential(t, "42"), TransitionRequest{Status: "cancelled"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.StatusCancelled, decodeOrder(t, resp).Status)
}

func TestAPI_Transition_UnknownStatus(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", f.customerCredential(t, "42"), createBody("v-burger", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeOrder(t, resp)

	resp = f.request(t, http.MethodPatch, "/api/orders/"+created.ID+"/status", f.staffCredential(t), TransitionRequest{Status: "microwaved"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Transition_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPatch, "/api/orders/no-such-order/status", f.staffCredential(t), TransitionRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InvalidCredential(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/orders", "customer-signed garbage", createBody("v-burger", 1))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
