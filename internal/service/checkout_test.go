package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/models"
)

func strPtr(s string) *string { return &s }

func newTestCheckout(identity IdentityProvider) (*CheckoutService, *CartService, *fakeRemote) {
	rem := &fakeRemote{}
	cart := NewCartService(nil, nil, identity, nil)
	return NewCheckoutService(cart, rem, rem, identity, nil), cart, rem
}

func TestPickDefault(t *testing.T) {
	home := models.DeliveryAddress{ID: strPtr("1"), Title: "Home"}
	work := models.DeliveryAddress{ID: strPtr("2"), Title: "Work", IsDefault: true}

	tests := []struct {
		name string
		list []models.DeliveryAddress
		want models.DeliveryAddress
	}{
		{name: "flagged default wins", list: []models.DeliveryAddress{home, work}, want: work},
		{name: "first otherwise", list: []models.DeliveryAddress{home}, want: home},
		{name: "placeholder when empty", list: nil, want: NoAddress()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickDefault(tt.list))
		})
	}
	assert.False(t, NoAddress().Persisted())
}

func TestCheckout_DefaultAddressOnFailure(t *testing.T) {
	c, _, rem := newTestCheckout(signedIn)
	rem.err = &remote.Error{Message: "Networking error"}

	got := c.DefaultAddress(context.Background())
	assert.Equal(t, "Error", got.Title)
	assert.Equal(t, "Failed to load address", got.Address)
	assert.Nil(t, got.ID)
}

func TestCheckout_PlaceOrderValidation(t *testing.T) {
	addr := models.DeliveryAddress{ID: strPtr("a1"), Title: "Home", Address: "2 Le Loi"}

	tests := []struct {
		name     string
		identity IdentityProvider
		address  models.DeliveryAddress
		fill     bool
		msg      string
	}{
		{name: "no address", identity: signedIn, address: NoAddress(), fill: true, msg: MsgNoDeliveryAddress},
		{name: "signed out", identity: signedOut, address: addr, fill: true, msg: MsgLoginToOrder},
		{name: "empty cart", identity: signedIn, address: addr, msg: MsgEmptyCart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, cart, rem := newTestCheckout(tt.identity)
			if tt.fill {
				cart.AddItem(context.Background(), line("f1", "3", 1))
			}

			_, err := c.PlaceOrder(context.Background(), tt.address)
			assert.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, tt.msg)
			assert.Empty(t, rem.Calls())
		})
	}
}

func TestCheckout_PlaceOrder(t *testing.T) {
	ctx := context.Background()
	c, cart, rem := newTestCheckout(signedIn)
	cart.AddItem(ctx, line("f1", "3.5", 2))
	second := line("f2", "1", 1)
	second.RestaurantID = "r9"
	cart.AddItem(ctx, second)

	coords := models.Coordinates{Lat: 10.77, Lng: 106.7}
	addr := models.DeliveryAddress{ID: strPtr("a1"), Title: "Home", Address: "2 Le Loi", Coordinates: &coords}

	order, err := c.PlaceOrder(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "order1", order.ID)

	require.Len(t, rem.orders, 1)
	sent := rem.orders[0]
	assert.Equal(t, "u1", sent.UserID)
	assert.Equal(t, PaymentCashOnDelivery, sent.PaymentMethod)
	assert.True(t, sent.DeliveryFee.IsZero())
	assert.True(t, decimal.NewFromInt(8).Equal(sent.TotalAmount))
	assert.Equal(t, "default-restaurant", sent.RestaurantID)
	assert.Nil(t, sent.DeliveryAddress.ID)
	assert.Equal(t, "2 Le Loi", sent.DeliveryAddress.Address)
	require.Len(t, sent.Items, 2)
	assert.Equal(t, "f1", sent.Items[0].FoodID)
	assert.Equal(t, "food f1", sent.Items[0].Name)
	assert.True(t, decimal.NewFromInt(7).Equal(sent.Items[0].Total))
	assert.Equal(t, 2, sent.Items[0].Quantity)

	assert.Empty(t, cart.Snapshot().Items, "cart cleared after the order")
}

func TestCheckout_PlaceOrderFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	c, cart, rem := newTestCheckout(signedIn)
	cart.AddItem(ctx, line("f1", "3", 1))
	rem.err = &remote.Error{StatusCode: 500, Message: "db down"}

	_, err := c.PlaceOrder(ctx, models.DeliveryAddress{ID: strPtr("a1")})
	var oerr *OrderError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, MsgOrderFailed, err.Error())
	assert.True(t, remote.IsStatus(err, 500))
	assert.Len(t, cart.Snapshot().Items, 1)
}

func TestBuildOrder_UsesFirstLineRestaurant(t *testing.T) {
	l := line("f1", "2", 1)
	l.RestaurantID = "r1"
	order := BuildOrder(models.CartState{Items: []models.CartLine{l}}, "u1", models.DeliveryAddress{})
	assert.Equal(t, "r1", order.RestaurantID)
}

func TestCheckout_AddressBookAndOrders(t *testing.T) {
	ctx := context.Background()
	c, _, rem := newTestCheckout(signedIn)
	rem.addresses = []models.DeliveryAddress{{ID: strPtr("a1"), Title: "Home"}}
	rem.orders = []models.Order{{ID: "o1"}}

	list, err := c.Addresses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "a1", *c.DefaultAddress(ctx).ID)

	require.NoError(t, c.DeleteAddress(ctx, "a1"))
	assert.ErrorIs(t, c.DeleteAddress(ctx, ""), ErrValidation)

	orders, err := c.Orders(ctx)
	require.NoError(t, err)
	assert.Equal(t, "o1", orders[0].ID)

	signedOutCheckout, _, _ := newTestCheckout(signedOut)
	_, err = signedOutCheckout.Orders(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = signedOutCheckout.Addresses(ctx)
	assert.ErrorIs(t, err, ErrValidation)
}
