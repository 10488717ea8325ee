package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/GophFood/internal/models"
)

// CartService defines the cart operations required by CartHandler.
type CartService interface {
	// Snapshot returns the current cart with its reconciliation status.
	Snapshot() models.CartState
	// AddItem applies the line locally and reconciles it in the background.
	AddItem(ctx context.Context, line models.CartLine) models.CartState
	// RemoveItem decrements or drops the line and reconciles it in the
	// background.
	RemoveItem(ctx context.Context, id string) models.CartState
	// Clear empties the local cart.
	Clear(ctx context.Context) models.CartState
	// Subscribe streams every published cart snapshot.
	Subscribe() (<-chan models.CartState, func())
}

// CartHandler handles HTTP requests for the cart state machine.
type CartHandler struct {
	Cart CartService
}

// cartResponse is the cart snapshot with its status flattened in.
type cartResponse struct {
	models.CartState
	models.Status
}

func newCartResponse(c models.CartState) cartResponse {
	return cartResponse{CartState: c, Status: c.Status}
}

// Get handles GET /api/cart.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.Cart.Snapshot()))
}

// Add handles POST /api/cart/items. The body is a cart line; a missing
// count adds one unit.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var line models.CartLine
	if !decode(w, r, &line) {
		return
	}
	if line.ID == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return
	}
	if line.Price.IsNegative() {
		http.Error(w, "price must not be negative", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(h.Cart.AddItem(r.Context(), line)))
}

// Remove handles DELETE /api/cart/items/{id}.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.Cart.RemoveItem(r.Context(), chi.URLParam(r, "id"))))
}

// Clear handles DELETE /api/cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.Cart.Clear(r.Context())))
}

// Watch handles GET /api/cart/watch.
func (h *CartHandler) Watch(w http.ResponseWriter, r *http.Request) {
	watch(w, r, h.Cart.Subscribe, func(c models.CartState) any { return newCartResponse(c) })
}
