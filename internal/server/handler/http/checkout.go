package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

// CheckoutService defines the order and saved-address operations required
// by CheckoutHandler.
type CheckoutService interface {
	// DefaultAddress returns the address preselected for checkout, or a
	// placeholder without an ID when there is none.
	DefaultAddress(ctx context.Context) models.DeliveryAddress
	// Addresses lists the saved addresses of the signed-in user.
	Addresses(ctx context.Context) ([]models.DeliveryAddress, error)
	// DeleteAddress removes a saved address.
	DeleteAddress(ctx context.Context, addressID string) error
	// PlaceOrder submits the cart for delivery to address.
	PlaceOrder(ctx context.Context, address models.DeliveryAddress) (models.Order, error)
	// Orders lists the orders of the signed-in user.
	Orders(ctx context.Context) ([]models.Order, error)
}

// CheckoutHandler handles HTTP requests for saved addresses and orders.
type CheckoutHandler struct {
	Checkout CheckoutService
}

// PlaceOrderRequest selects the delivery address of an order. An empty
// AddressID uses the default address.
type PlaceOrderRequest struct {
	AddressID string `json:"addressId"`
}

// PlaceOrder handles POST /api/checkout.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	address, err := h.resolveAddress(r.Context(), req.AddressID)
	if err != nil {
		writeError(w, err)
		return
	}

	order, err := h.Checkout.PlaceOrder(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *CheckoutHandler) resolveAddress(ctx context.Context, id string) (models.DeliveryAddress, error) {
	if id == "" {
		return h.Checkout.DefaultAddress(ctx), nil
	}
	list, err := h.Checkout.Addresses(ctx)
	if err != nil {
		return models.DeliveryAddress{}, err
	}
	for _, a := range list {
		if a.ID != nil && *a.ID == id {
			return a, nil
		}
	}
	// an address without ID is rejected by PlaceOrder
	return service.NoAddress(), nil
}

// Orders handles GET /api/orders.
func (h *CheckoutHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Checkout.Orders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// Addresses handles GET /api/addresses.
func (h *CheckoutHandler) Addresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Checkout.Addresses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.DeliveryAddress{}
	}
	writeJSON(w, http.StatusOK, list)
}

// DefaultAddress handles GET /api/addresses/default.
func (h *CheckoutHandler) DefaultAddress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Checkout.DefaultAddress(r.Context()))
}

// DeleteAddress handles DELETE /api/addresses/{id}.
func (h *CheckoutHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Checkout.DeleteAddress(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
