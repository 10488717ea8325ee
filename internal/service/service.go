// Package service provides the client state machines: the cart, the
// bookmark list, the address selection flow and checkout. Each machine owns
// its state, persists it through a storage.Store after every local mutation
// and reconciles with the remote service in the background.
package service

import (
	"context"
	"errors"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/models"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ErrNoRemote is returned by remote operations of a machine built without a
// remote client.
var ErrNoRemote = errors.New("remote service not configured")

// ValidationError blocks an action before any network call. Its message is
// meant for the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// IdentityProvider exposes the signed-in user.
type IdentityProvider interface {
	// Identity returns the current identity; the zero value when signed out.
	Identity() models.AuthIdentity
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func() models.AuthIdentity

// Identity implements IdentityProvider.
func (f IdentityFunc) Identity() models.AuthIdentity { return f() }

// CartRemote defines the remote operations needed by the CartService.
type CartRemote interface {
	// AddCartItem adds one unit of itemID to the user's remote cart.
	AddCartItem(ctx context.Context, itemID, userID string) error
	// RemoveCartItem removes one unit of itemID from the user's remote cart.
	RemoveCartItem(ctx context.Context, itemID, userID string) error
	// FetchCart returns the authoritative cart of the user.
	FetchCart(ctx context.Context, userID string) ([]models.RemoteCartLine, error)
}

// BookmarkRemote defines the remote operations needed by the BookmarkService.
type BookmarkRemote interface {
	AddBookmark(ctx context.Context, restaurantID, ownerKey string) error
	RemoveBookmark(ctx context.Context, restaurantID, ownerKey string) error
	FetchBookmarks(ctx context.Context, ownerKey string) ([]models.RemoteBookmark, error)
}

// AddressRemote defines the address book operations.
type AddressRemote interface {
	SaveAddress(ctx context.Context, req models.SaveAddressRequest) (models.SaveAddressResult, error)
	ListAddresses(ctx context.Context, userID string) ([]models.DeliveryAddress, error)
	DeleteAddress(ctx context.Context, addressID, userID string) error
}

// OrderRemote defines the order operations.
type OrderRemote interface {
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
}

func identityOf(p IdentityProvider) models.AuthIdentity {
	if p == nil {
		return models.AuthIdentity{}
	}
	return p.Identity()
}

// rejectionMessage converts a remote failure into the message stored in a
// status record. Messages coming from the service are kept verbatim.
func rejectionMessage(err error, fallback string) string {
	var re *remote.Error
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}

// tracker counts in-flight remote calls of one machine. It is guarded by
// the machine's lock.
type tracker struct {
	inflight int
}

func (t *tracker) begin(st *models.Status) {
	t.inflight++
	st.Loading = true
	st.Error = ""
}

func (t *tracker) end(st *models.Status, err error, fallback string) {
	if t.inflight > 0 {
		t.inflight--
	}
	st.Loading = t.inflight > 0
	if err != nil {
		st.Error = rejectionMessage(err, fallback)
	}
}
