// Package app wires the client state machines into one Session owned by
// the running application.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/client/storage"
	"github.com/atinyakov/GophFood/internal/config"
	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

// Remote is the full remote service surface used by a Session.
type Remote interface {
	service.CartRemote
	service.BookmarkRemote
	service.AddressRemote
	service.OrderRemote
	service.AuthRemote
}

// Deps are the collaborators of a Session.
type Deps struct {
	Store    storage.Store
	Remote   Remote
	Locator  geo.Locator
	Geocoder geo.Geocoder
	Region   geo.Region
	Logger   *zap.Logger
}

// Session is the single owner of the client state: identity, cart,
// bookmarks, the address flow and checkout.
type Session struct {
	Auth      *service.AuthService
	Cart      *service.CartService
	Bookmarks *service.BookmarkService
	Address   *service.AddressFlow
	Checkout  *service.CheckoutService

	log     *zap.Logger
	closers []func() error

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// selected is the delivery address chosen for checkout, nil for the
	// remote default.
	selected *models.DeliveryAddress
}

// NewSession wires the services over deps. Nothing is loaded until Hydrate.
func NewSession(deps Deps) *Session {
	log := logger.OrNop(deps.Logger)
	s := &Session{log: log}

	// a nil Remote converts to nil service interfaces: services run local-only
	rem := deps.Remote
	s.Auth = service.NewAuthService(deps.Store, rem, log)
	s.Cart = service.NewCartService(deps.Store, rem, s.Auth, log)
	s.Bookmarks = service.NewBookmarkService(deps.Store, rem, s.Auth, log)
	s.Address = service.NewAddressFlow(service.AddressFlowConfig{
		Locator:  deps.Locator,
		Geocoder: deps.Geocoder,
		Remote:   rem,
		Identity: s.Auth,
		Region:   deps.Region,
		Logger:   log,
	})
	s.Checkout = service.NewCheckoutService(s.Cart, rem, rem, s.Auth, log)
	s.Address.OnSaved(s.SelectAddress)
	return s
}

// Open builds a Session from options: the configured store, the remote
// client with its metrics registered on reg, the geocoder and the locator.
func Open(ctx context.Context, opts *config.Options, log *zap.Logger, reg prometheus.Registerer) (*Session, error) {
	log = logger.OrNop(log)

	store, closeStore, err := OpenStore(ctx, opts, log)
	if err != nil {
		return nil, err
	}

	var sess *Session
	client, err := remote.NewClient(opts.APIURL,
		remote.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		remote.WithRetry(opts.MaxRetries, 200*time.Millisecond, 2*time.Second),
		remote.WithLogger(log.Named("remote")),
		remote.WithMetrics(remote.NewMetrics(reg)),
		remote.WithTokenSource(func(ctx context.Context) string {
			return sess.Auth.Token(ctx)
		}),
	)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	geocoder, err := geo.NewNominatimGeocoder(geo.NominatimConfig{
		BaseURL:    opts.Geocoder.URL,
		UserAgent:  opts.Geocoder.UserAgent,
		RatePerSec: opts.Geocoder.RatePerSec,
		CacheTTL:   opts.Geocoder.CacheTTL,
	}, log.Named("geocoder"))
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	loc := opts.Location
	sess = NewSession(Deps{
		Store:    store,
		Remote:   client,
		Locator:  &geo.StaticLocator{Position: models.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, Denied: loc.Denied},
		Geocoder: geocoder,
		Region: geo.Region{
			MinLat:   loc.MinLat,
			MaxLat:   loc.MaxLat,
			MinLng:   loc.MinLng,
			MaxLng:   loc.MaxLng,
			Fallback: models.Coordinates{Lat: loc.FallbackLat, Lng: loc.FallbackLng},
		},
		Logger: log,
	})
	sess.closers = append(sess.closers, closeStore)
	return sess, nil
}

// Identity implements service.IdentityProvider.
func (s *Session) Identity() models.AuthIdentity {
	return s.Auth.Identity()
}

// Hydrate restores the persisted identity, cart and bookmarks and, when
// signed in, validates the token and refreshes cart and bookmarks from the
// remote service. A rejected token signs the user out, keeping the local
// cart and bookmarks, and yields service.ErrSessionExpired. Other remote
// failures leave the local state in place and are returned for reporting.
func (s *Session) Hydrate(ctx context.Context) error {
	s.Auth.Load(ctx)
	s.Cart.Load(ctx)
	s.Bookmarks.Load(ctx)

	verr := ignoreNoRemote(s.Auth.Validate(ctx))
	if errors.Is(verr, service.ErrSessionExpired) {
		return verr
	}
	return errors.Join(verr, s.Refresh(ctx))
}

// Refresh fetches the remote cart and bookmarks concurrently. It is a no-op
// while signed out.
func (s *Session) Refresh(ctx context.Context) error {
	id := s.Identity()
	if !id.Authenticated() {
		return nil
	}

	var g errgroup.Group
	g.Go(func() error { return ignoreNoRemote(s.Cart.FetchRemote(ctx, id.ID)) })
	g.Go(func() error { return ignoreNoRemote(s.Bookmarks.FetchRemote(ctx, id.ID)) })
	return g.Wait()
}

// SignIn authenticates and pulls the user's remote cart and bookmarks.
func (s *Session) SignIn(ctx context.Context, username, password string) (models.AuthIdentity, error) {
	id, err := s.Auth.SignIn(ctx, username, password)
	if err != nil {
		return models.AuthIdentity{}, err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("initial refresh failed", zap.Error(err))
	}
	return id, nil
}

// SelectAddress makes a the delivery address of the next checkout. A newly
// saved address is selected automatically.
func (s *Session) SelectAddress(a models.DeliveryAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &a
}

// DeliveryAddress returns the selected address when it is persisted, the
// user's default address otherwise.
func (s *Session) DeliveryAddress(ctx context.Context) models.DeliveryAddress {
	s.mu.Lock()
	sel := s.selected
	s.mu.Unlock()
	if sel != nil && sel.Persisted() {
		return *sel
	}
	return s.Checkout.DefaultAddress(ctx)
}

// SignOut forgets the identity and the local data of the previous user.
func (s *Session) SignOut(ctx context.Context) error {
	s.Cart.Wait()
	s.Bookmarks.Wait()
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	err := s.Auth.SignOut(ctx)
	s.Cart.Clear(ctx)
	s.Bookmarks.Clear(ctx)
	return err
}

// StartAutoRefresh refreshes from the remote service every interval until
// ctx is done or the session is closed. A non-positive interval disables it.
func (s *Session) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("auto refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close stops background work, waits for in-flight reconciliations and
// releases the store.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.Cart.Close()
	s.Bookmarks.Close()
	s.Address.Close()
	s.Auth.Close()

	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func ignoreNoRemote(err error) error {
	if errors.Is(err, service.ErrNoRemote) {
		return nil
	}
	return err
}

// SelectingCheckout is the checkout service whose default address honours
// the session's selection.
type SelectingCheckout struct {
	*service.CheckoutService
	sess *Session
}

// DefaultAddress returns the selected address, falling back to the user's
// default.
func (c SelectingCheckout) DefaultAddress(ctx context.Context) models.DeliveryAddress {
	return c.sess.DeliveryAddress(ctx)
}

// CheckoutFlow returns checkout bound to the session's address selection.
func (s *Session) CheckoutFlow() SelectingCheckout {
	return SelectingCheckout{CheckoutService: s.Checkout, sess: s}
}
