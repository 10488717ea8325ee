package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/client/storage"
	"github.com/atinyakov/GophFood/internal/config"
	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

type stubRemote struct {
	mu        sync.Mutex
	calls     map[string]int
	cart      []models.RemoteCartLine
	marks     []models.RemoteBookmark
	loginE    error
	validateE error
}

func (r *stubRemote) hit(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[op]++
}

func (r *stubRemote) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *stubRemote) AddCartItem(context.Context, string, string) error {
	r.hit("cart_add")
	return nil
}

func (r *stubRemote) RemoveCartItem(context.Context, string, string) error {
	r.hit("cart_remove")
	return nil
}

func (r *stubRemote) FetchCart(context.Context, string) ([]models.RemoteCartLine, error) {
	r.hit("cart_fetch")
	return r.cart, nil
}

func (r *stubRemote) AddBookmark(context.Context, string, string) error {
	r.hit("bookmark_add")
	return nil
}

func (r *stubRemote) RemoveBookmark(context.Context, string, string) error {
	r.hit("bookmark_remove")
	return nil
}

func (r *stubRemote) FetchBookmarks(context.Context, string) ([]models.RemoteBookmark, error) {
	r.hit("bookmark_fetch")
	return r.marks, nil
}

func (r *stubRemote) SaveAddress(context.Context, models.SaveAddressRequest) (models.SaveAddressResult, error) {
	r.hit("address_save")
	id := "a9"
	return models.SaveAddressResult{Status: true, Data: &models.DeliveryAddress{ID: &id}}, nil
}

func (r *stubRemote) ListAddresses(context.Context, string) ([]models.DeliveryAddress, error) {
	r.hit("address_list")
	return nil, nil
}

func (r *stubRemote) DeleteAddress(context.Context, string, string) error {
	r.hit("address_delete")
	return nil
}

func (r *stubRemote) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	r.hit("order_create")
	return o, nil
}

func (r *stubRemote) ListOrders(context.Context, string) ([]models.Order, error) {
	r.hit("order_list")
	return nil, nil
}

func (r *stubRemote) Login(_ context.Context, username, _ string) (models.AuthIdentity, error) {
	r.hit("login")
	if r.loginE != nil {
		return models.AuthIdentity{}, r.loginE
	}
	return models.AuthIdentity{ID: "u1", Token: "tok", Username: username}, nil
}

func (r *stubRemote) ValidateToken(context.Context) error {
	r.hit("validate")
	return r.validateE
}

func (r *stubRemote) Register(context.Context, models.Registration) (string, error) {
	r.hit("register")
	return "Registered", nil
}

func (r *stubRemote) VerifyOTP(context.Context, string, string) (string, error) {
	r.hit("verify")
	return "Verified", nil
}

func (r *stubRemote) ResendOTP(context.Context, string) (string, error) {
	r.hit("resend")
	return "Sent", nil
}

func (r *stubRemote) LookupUser(_ context.Context, username string) (models.UserProfile, error) {
	r.hit("lookup")
	return models.UserProfile{Username: username}, nil
}

func signedInStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.SaveJSON(context.Background(), store, storage.KeyAuth,
		models.AuthIdentity{ID: "u1", Token: "tok"}))
	return store
}

func TestSession_HydrateSignedIn(t *testing.T) {
	ctx := context.Background()
	store := signedInStore(t)
	rem := &stubRemote{
		cart:  []models.RemoteCartLine{{FoodID: "a", Food: &models.RemoteFood{Name: "Pho", Price: decimal.NewFromInt(5)}, Count: 2}},
		marks: []models.RemoteBookmark{{RestaurantID: "r1"}},
	}
	s := NewSession(Deps{Store: store, Remote: rem})
	defer s.Close()

	require.NoError(t, s.Hydrate(ctx))
	assert.Equal(t, "u1", s.Identity().ID)
	assert.Equal(t, 2, s.Cart.Snapshot().TotalItems)
	assert.True(t, s.Bookmarks.IsBookmarked("r1"))
	assert.Equal(t, 1, rem.count("validate"))
	assert.Equal(t, 1, rem.count("cart_fetch"))
	assert.Equal(t, 1, rem.count("bookmark_fetch"))
}

func TestSession_HydrateRejectedTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	store := signedInStore(t)
	require.NoError(t, storage.SaveJSON(ctx, store, storage.KeyCart, models.CartState{
		Items: []models.CartLine{{ID: "a", Price: decimal.NewFromInt(3), Count: 1}},
	}))
	rem := &stubRemote{validateE: &remote.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid token"}}
	s := NewSession(Deps{Store: store, Remote: rem})
	defer s.Close()

	err := s.Hydrate(ctx)
	assert.ErrorIs(t, err, service.ErrSessionExpired)
	assert.False(t, s.Identity().Authenticated())
	_, err = store.Get(ctx, storage.KeyAuth)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 1, s.Cart.Snapshot().TotalItems, "local cart survives")
	assert.Zero(t, rem.count("cart_fetch"))
}

func TestSession_HydrateValidationOfflineStillRefreshes(t *testing.T) {
	rem := &stubRemote{validateE: &remote.Error{Message: "Networking error"}}
	s := NewSession(Deps{Store: signedInStore(t), Remote: rem})
	defer s.Close()

	err := s.Hydrate(context.Background())
	assert.EqualError(t, err, "Networking error")
	assert.True(t, s.Identity().Authenticated())
	assert.Equal(t, 1, rem.count("cart_fetch"))
}

func TestSession_HydrateSignedOutIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.SaveJSON(ctx, store, storage.KeyCart, models.CartState{
		Items: []models.CartLine{{ID: "a", Price: decimal.NewFromInt(3), Count: 2}},
	}))
	rem := &stubRemote{}
	s := NewSession(Deps{Store: store, Remote: rem})
	defer s.Close()

	require.NoError(t, s.Hydrate(ctx))
	assert.Equal(t, 2, s.Cart.Snapshot().TotalItems)
	assert.Zero(t, rem.count("cart_fetch"))
}

func TestSession_WithoutRemote(t *testing.T) {
	ctx := context.Background()
	s := NewSession(Deps{Store: signedInStore(t)})
	defer s.Close()

	require.NoError(t, s.Hydrate(ctx))
	s.Cart.AddItem(ctx, models.CartLine{ID: "a", Price: decimal.NewFromInt(1)})
	s.Cart.Wait()
	assert.Equal(t, 1, s.Cart.Snapshot().TotalItems)
	assert.False(t, s.Cart.Snapshot().Status.Loading)
}

func TestSession_SignInAndOut(t *testing.T) {
	ctx := context.Background()
	rem := &stubRemote{cart: []models.RemoteCartLine{{FoodID: "a", Count: 1}}}
	s := NewSession(Deps{Store: storage.NewMemoryStore(), Remote: rem})
	defer s.Close()

	id, err := s.SignIn(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Username)
	assert.Len(t, s.Cart.Snapshot().Items, 1)

	s.Bookmarks.Add(ctx, models.BookmarkEntry{ID: "r1"})
	require.NoError(t, s.SignOut(ctx))
	assert.False(t, s.Identity().Authenticated())
	assert.Empty(t, s.Cart.Snapshot().Items)
	assert.Empty(t, s.Bookmarks.Snapshot().Bookmarks)
}

func TestSession_SavedAddressIsSelected(t *testing.T) {
	ctx := context.Background()
	s := NewSession(Deps{
		Store:   signedInStore(t),
		Remote:  &stubRemote{},
		Locator: &geo.StaticLocator{Position: models.Coordinates{Lat: 10.8, Lng: 106.7}},
	})
	defer s.Close()
	require.NoError(t, s.Hydrate(ctx))

	assert.False(t, s.DeliveryAddress(ctx).Persisted())

	_, err := s.Address.Locate(ctx)
	require.NoError(t, err)
	_, err = s.Address.Save(ctx)
	require.NoError(t, err)

	got := s.DeliveryAddress(ctx)
	require.True(t, got.Persisted())
	assert.Equal(t, "a9", *got.ID)
	assert.Equal(t, got, s.CheckoutFlow().DefaultAddress(ctx))

	require.NoError(t, s.SignOut(ctx))
	assert.False(t, s.DeliveryAddress(ctx).Persisted())
}

func TestSession_AutoRefresh(t *testing.T) {
	rem := &stubRemote{}
	s := NewSession(Deps{Store: signedInStore(t), Remote: rem})
	require.NoError(t, s.Hydrate(context.Background()))

	s.StartAutoRefresh(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return rem.count("cart_fetch") >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	n := rem.count("cart_fetch")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rem.count("cart_fetch"), "no refresh after Close")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		opts := config.New()
		opts.StoreKind = config.StoreMemory
		store, closeFn, err := OpenStore(ctx, opts, zap.NewNop())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("sealed file", func(t *testing.T) {
		opts := config.New()
		opts.StoreDir = t.TempDir()
		opts.Passphrase = "correct horse"
		store, closeFn, err := OpenStore(ctx, opts, zap.NewNop())
		require.NoError(t, err)
		defer closeFn()

		require.NoError(t, store.Set(ctx, storage.KeyCart, []byte(`{"items":[{"id":"secret-food"}]}`)))
		raw, err := os.ReadFile(filepath.Join(opts.StoreDir, storage.KeyCart+".json"))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret-food")

		got, err := store.Get(ctx, storage.KeyCart)
		require.NoError(t, err)
		assert.Contains(t, string(got), "secret-food")

		_, err = os.Stat(filepath.Join(opts.StoreDir, storage.KeySalt+".json"))
		assert.NoError(t, err, "salt kept next to the sealed blobs")
	})

	t.Run("unknown", func(t *testing.T) {
		opts := config.New()
		opts.StoreKind = "redis"
		_, _, err := OpenStore(ctx, opts, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestOpen_EndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()
		switch {
		case r.URL.Path == "/auth/login":
			_, _ = io.WriteString(w, `{"status":true,"data":{"_id":"u1","token":"tok"}}`)
		case r.URL.Path == "/cart" && r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"status":true,"data":[{"foodId":"a","food":{"name":"Pho","price":4},"count":1}]}`)
		case strings.HasPrefix(r.URL.Path, "/bookmark"):
			_, _ = io.WriteString(w, `{"status":true,"data":[]}`)
		default:
			_, _ = io.WriteString(w, `{"status":true,"data":{}}`)
		}
	}))
	defer srv.Close()

	opts := config.New()
	opts.APIURL = srv.URL
	opts.StoreKind = config.StoreMemory
	opts.Timeout = time.Second

	reg := prometheus.NewRegistry()
	s, err := Open(context.Background(), opts, zap.NewNop(), reg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SignIn(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Pho", s.Cart.Snapshot().Items[0].Name)

	s.Cart.AddItem(context.Background(), models.CartLine{ID: "b", Price: decimal.NewFromInt(2)})
	s.Cart.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, auths, "POST /auth/login ")
	assert.Contains(t, auths, "GET /cart Bearer tok")
	assert.Contains(t, auths, "POST /cart/b Bearer tok")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
