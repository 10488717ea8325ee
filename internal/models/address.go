package models

import (
	"github.com/shopspring/decimal"
)

// DeliveryAddress is a saved address of the user. A nil ID means the
// address is not persisted remotely (or nothing is selected) and blocks
// checkout.
type DeliveryAddress struct {
	ID          *string      `json:"_id"`
	Title       string       `json:"title"`
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	IsDefault   bool         `json:"isDefault"`
}

// Persisted reports whether the address has a remote identifier.
func (a DeliveryAddress) Persisted() bool {
	return a.ID != nil && *a.ID != ""
}

// SaveAddressRequest is the body of POST address.
type SaveAddressRequest struct {
	UserID      string      `json:"userId"`
	Title       string      `json:"title"`
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
	IsDefault   bool        `json:"isDefault"`
}

// SaveAddressResult is the unwrapped response of POST address.
type SaveAddressResult struct {
	Status  bool             `json:"status"`
	Message string           `json:"message"`
	Data    *DeliveryAddress `json:"data"`
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	FoodID   string          `json:"foodId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
	Total    decimal.Decimal `json:"total"`
}

// Order is an order as sent to and returned by the remote service.
type Order struct {
	ID              string          `json:"_id,omitempty"`
	UserID          string          `json:"userId"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	RestaurantID    string          `json:"restaurantId"`
	PaymentMethod   string          `json:"paymentMethod"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	Status          string          `json:"status,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
}
