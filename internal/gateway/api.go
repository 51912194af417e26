// ABOUTME: HTTP API handlers for order creation, lookup and status updates
// ABOUTME: Maps engine errors to status codes; every rejection leaves state untouched

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dishpatch/dishpatch/internal/auth"
	"github.com/dishpatch/dishpatch/internal/order"
	"github.com/dishpatch/dishpatch/internal/store"
)

// TransitionRequest is the JSON request body for PATCH /api/orders/{id}/status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// handleOrders handles POST /api/orders requests.
func (g *Gateway) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.handleCreateOrder(w, r)
}

// handleCreateOrder creates an order for the authenticated customer.
func (g *Gateway) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	customer, ok := auth.FromContext(r.Context()).(auth.Customer)
	if !ok {
		g.sendJSONError(w, http.StatusForbidden, "customer credential required")
		return
	}

	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := g.machine.Create(r.Context(), customer, req)
	if err != nil {
		g.sendOrderError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, o)
}

// handleOrderRoutes dispatches /api/orders/{id} and /api/orders/{id}/status.
func (g *Gateway) handleOrderRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handleGetOrder(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		g.handleTransition(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleGetOrder handles GET /api/orders/{id}. Customers may read only their
// own orders; staff may read orders of their restaurant.
func (g *Gateway) handleGetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	o, err := g.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "order not found")
			return
		}
		g.sendJSONError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	switch p := auth.FromContext(r.Context()).(type) {
	case auth.Customer:
		if p.ExternalID != o.CustomerID {
			g.sendJSONError(w, http.StatusForbidden, "not your order")
			return
		}
	case auth.Staff:
		if p.RestaurantID != o.RestaurantID {
			g.sendJSONError(w, http.StatusForbidden, "order belongs to another restaurant")
			return
		}
	default:
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	g.writeJSON(w, http.StatusOK, o)
}

// handleTransition handles PATCH /api/orders/{id}/status.
func (g *Gateway) handleTransition(w http.ResponseWriter, r *http.Request, orderID string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := g.machine.Transition(r.Context(), orderID, store.OrderStatus(req.Status), auth.FromContext(r.Context()))
	if err != nil {
		g.sendOrderError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, o)
}

// sendOrderError maps state machine errors to HTTP status codes.
func (g *Gateway) sendOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrItemUnavailable):
		g.sendJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrIllegalTransition):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "order not found")
	default:
		g.logger.Error("order operation failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "storage failure")
	}
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
