package service

import (
	"context"
	"sync"

	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/models"
)

var signedIn = IdentityFunc(func() models.AuthIdentity {
	return models.AuthIdentity{ID: "u1", Token: "tok", Username: "alice"}
})

var signedOut = IdentityFunc(func() models.AuthIdentity { return models.AuthIdentity{} })

type call struct {
	op, id, owner string
}

// fakeRemote implements every remote interface of the package.
type fakeRemote struct {
	mu    sync.Mutex
	calls []call
	// gate, when set, blocks add/remove calls until closed.
	gate chan struct{}
	// fetchGate, when set, blocks cart and bookmark fetches until closed.
	fetchGate chan struct{}
	err       error

	cart      []models.RemoteCartLine
	bookmarks []models.RemoteBookmark
	addresses []models.DeliveryAddress
	saveRes   models.SaveAddressResult
	saved     []models.SaveAddressRequest
	orders    []models.Order
}

func (f *fakeRemote) record(op, id, owner string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{op, id, owner})
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeRemote) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRemote) AddCartItem(_ context.Context, itemID, userID string) error {
	return f.record("cart_add", itemID, userID)
}

func (f *fakeRemote) RemoveCartItem(_ context.Context, itemID, userID string) error {
	return f.record("cart_remove", itemID, userID)
}

func (f *fakeRemote) FetchCart(_ context.Context, userID string) ([]models.RemoteCartLine, error) {
	f.fetched("cart_fetch", userID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cart, f.err
}

func (f *fakeRemote) fetched(op, owner string) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op, "", owner})
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeRemote) AddBookmark(_ context.Context, id, owner string) error {
	return f.record("bookmark_add", id, owner)
}

func (f *fakeRemote) RemoveBookmark(_ context.Context, id, owner string) error {
	return f.record("bookmark_remove", id, owner)
}

func (f *fakeRemote) FetchBookmarks(_ context.Context, owner string) ([]models.RemoteBookmark, error) {
	f.fetched("bookmark_fetch", owner)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookmarks, f.err
}

func (f *fakeRemote) SaveAddress(_ context.Context, req models.SaveAddressRequest) (models.SaveAddressResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"address_save", "", req.UserID})
	f.saved = append(f.saved, req)
	if f.err != nil {
		return models.SaveAddressResult{}, f.err
	}
	return f.saveRes, nil
}

func (f *fakeRemote) ListAddresses(_ context.Context, userID string) ([]models.DeliveryAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"address_list", "", userID})
	return f.addresses, f.err
}

func (f *fakeRemote) DeleteAddress(_ context.Context, id, userID string) error {
	return f.record("address_delete", id, userID)
}

func (f *fakeRemote) CreateOrder(_ context.Context, order models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"order_create", "", order.UserID})
	if f.err != nil {
		return models.Order{}, f.err
	}
	order.ID = "order1"
	order.Status = "pending"
	f.orders = append(f.orders, order)
	return order, nil
}

func (f *fakeRemote) ListOrders(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"order_list", "", userID})
	return f.orders, f.err
}

// fakeGeocoder resolves coordinates from a fixed table. Reverse lookups of
// coordinates present in gates block until the gate is closed.
type fakeGeocoder struct {
	mu     sync.Mutex
	places map[models.Coordinates][]geo.Place
	gates  map[models.Coordinates]chan struct{}
	hits   []geo.Candidate
	err    error
}

func (g *fakeGeocoder) Reverse(_ context.Context, c models.Coordinates) ([]geo.Place, error) {
	g.mu.Lock()
	gate := g.gates[c]
	places, err := g.places[c], g.err
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return places, err
}

func (g *fakeGeocoder) Forward(context.Context, string) ([]geo.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits, g.err
}
