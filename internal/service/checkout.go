package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
)

// PaymentCashOnDelivery is the only payment method offered.
const PaymentCashOnDelivery = "Cash on Delivery"

const defaultRestaurantID = "default-restaurant"

// Checkout messages.
const (
	MsgNoDeliveryAddress = "Please go back to cart and select a delivery address first"
	MsgLoginToOrder      = "Please login to place order"
	MsgEmptyCart         = "Your cart is empty"
	MsgOrderFailed       = "Failed to create order. Please try again."
)

// CheckoutService turns the cart into an order and manages the address
// book used to pick a delivery address.
type CheckoutService struct {
	cart      *CartService
	addresses AddressRemote
	orders    OrderRemote
	identity  IdentityProvider
	log       *zap.Logger
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(cart *CartService, addresses AddressRemote, orders OrderRemote, identity IdentityProvider, log *zap.Logger) *CheckoutService {
	return &CheckoutService{
		cart:      cart,
		addresses: addresses,
		orders:    orders,
		identity:  identity,
		log:       logger.OrNop(log).Named("checkout"),
	}
}

// NoAddress is shown when the user has no saved address. Its nil ID blocks
// PlaceOrder.
func NoAddress() models.DeliveryAddress {
	return models.DeliveryAddress{Title: "No Address", Address: "Please add a delivery address"}
}

// DefaultAddress picks the delivery address preselected at checkout: the
// first one flagged default, else the first one.
func (c *CheckoutService) DefaultAddress(ctx context.Context) models.DeliveryAddress {
	list, err := c.Addresses(ctx)
	if err != nil {
		c.log.Warn("failed to load addresses", zap.Error(err))
		return models.DeliveryAddress{Title: "Error", Address: "Failed to load address"}
	}
	return PickDefault(list)
}

// PickDefault returns the first address flagged default, else the first
// address, else NoAddress.
func PickDefault(list []models.DeliveryAddress) models.DeliveryAddress {
	for _, a := range list {
		if a.IsDefault {
			return a
		}
	}
	if len(list) > 0 {
		return list[0]
	}
	return NoAddress()
}

// Addresses lists the saved addresses of the signed-in user.
func (c *CheckoutService) Addresses(ctx context.Context) ([]models.DeliveryAddress, error) {
	id := identityOf(c.identity)
	if id.ID == "" {
		return nil, invalid(MsgNotLoggedIn)
	}
	if c.addresses == nil {
		return nil, ErrNoRemote
	}
	return c.addresses.ListAddresses(ctx, id.ID)
}

// DeleteAddress removes a saved address of the signed-in user.
func (c *CheckoutService) DeleteAddress(ctx context.Context, addressID string) error {
	id := identityOf(c.identity)
	if id.ID == "" {
		return invalid(MsgNotLoggedIn)
	}
	if addressID == "" {
		return invalid("Address id is required")
	}
	if c.addresses == nil {
		return ErrNoRemote
	}
	return c.addresses.DeleteAddress(ctx, addressID, id.ID)
}

// Orders lists the order history of the signed-in user.
func (c *CheckoutService) Orders(ctx context.Context) ([]models.Order, error) {
	id := identityOf(c.identity)
	if id.ID == "" {
		return nil, invalid(MsgLoginToOrder)
	}
	if c.orders == nil {
		return nil, ErrNoRemote
	}
	return c.orders.ListOrders(ctx, id.ID)
}

// BuildOrder maps the cart into an order for userID delivered to address.
func BuildOrder(cart models.CartState, userID string, address models.DeliveryAddress) models.Order {
	items := make([]models.OrderItem, 0, len(cart.Items))
	total := decimal.Zero
	for _, l := range cart.Items {
		sub := l.Subtotal()
		total = total.Add(sub)
		items = append(items, models.OrderItem{
			FoodID:   l.ID,
			Name:     l.Name,
			Price:    l.Price,
			Quantity: l.Count,
			Image:    l.Image,
			Total:    sub,
		})
	}

	restaurantID := defaultRestaurantID
	if len(cart.Items) > 0 && cart.Items[0].RestaurantID != "" {
		restaurantID = cart.Items[0].RestaurantID
	}
	fee := decimal.Zero

	return models.Order{
		UserID:      userID,
		Items:       items,
		TotalAmount: total.Add(fee),
		DeliveryAddress: models.DeliveryAddress{
			Title:       address.Title,
			Address:     address.Address,
			Coordinates: address.Coordinates,
		},
		RestaurantID:  restaurantID,
		PaymentMethod: PaymentCashOnDelivery,
		DeliveryFee:   fee,
	}
}

// PlaceOrder submits the cart as an order. Missing address, identity or
// items are rejected before any network call. The cart is cleared once the
// order is accepted.
func (c *CheckoutService) PlaceOrder(ctx context.Context, address models.DeliveryAddress) (models.Order, error) {
	if !address.Persisted() {
		return models.Order{}, invalid(MsgNoDeliveryAddress)
	}
	id := identityOf(c.identity)
	if id.ID == "" {
		return models.Order{}, invalid(MsgLoginToOrder)
	}
	cart := c.cart.Snapshot()
	if len(cart.Items) == 0 {
		return models.Order{}, invalid(MsgEmptyCart)
	}
	if c.orders == nil {
		return models.Order{}, ErrNoRemote
	}

	order := BuildOrder(cart, id.ID, address)
	created, err := c.orders.CreateOrder(ctx, order)
	if err != nil {
		c.log.Warn("order creation failed", zap.Error(err))
		return models.Order{}, &OrderError{Message: MsgOrderFailed, Err: err}
	}

	c.cart.Clear(ctx)
	c.log.Info("order placed",
		zap.String("order_id", created.ID),
		zap.String("total", created.TotalAmount.StringFixed(2)))
	return created, nil
}

// OrderError is a failed order submission. Error returns the user facing
// message; the cause is kept for logging.
type OrderError struct {
	Message string
	Err     error
}

func (e *OrderError) Error() string { return e.Message }

func (e *OrderError) Unwrap() error { return e.Err }
