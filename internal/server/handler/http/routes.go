package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/middleware"
)

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Session   *SessionHandler
	Accounts  *AccountHandler
	Cart      *CartHandler
	Bookmarks *BookmarkHandler
	Address   *AddressHandler
	Checkout  *CheckoutHandler
}

// NewRouter constructs the local API.
//
// Routes:
//
//	POST   /api/login, /api/logout, /api/refresh; GET /api/me
//	POST   /api/register, /api/verify-otp, /api/resend-otp; GET /api/users/{username}
//	GET    /api/cart, DELETE /api/cart, GET /api/cart/watch
//	POST   /api/cart/items, DELETE /api/cart/items/{id}
//	GET    /api/bookmarks, POST /api/bookmarks, GET /api/bookmarks/watch
//	GET    /api/bookmarks/{id}, DELETE /api/bookmarks/{id}
//	GET    /api/address, /api/address/watch
//	POST   /api/address/{locate,search,select,pick,tag,edit,save}
//	GET    /api/addresses, /api/addresses/default; DELETE /api/addresses/{id}
//	POST   /api/checkout; GET /api/orders
//	GET    /metrics, /healthz
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json")
//  2. WithRequestLogging(logger)
//  3. BearerAuth(token), skipped for /metrics and /healthz
func NewRouter(h Handlers, token string, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.BearerAuth(token, "/metrics", "/healthz"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Session.Login)
		r.Post("/logout", h.Session.Logout)
		r.Post("/refresh", h.Session.Refresh)
		r.Get("/me", h.Session.Me)

		r.Post("/register", h.Accounts.Register)
		r.Post("/verify-otp", h.Accounts.Verify)
		r.Post("/resend-otp", h.Accounts.Resend)
		r.Get("/users/{username}", h.Accounts.Lookup)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.Get)
			r.Delete("/", h.Cart.Clear)
			r.Get("/watch", h.Cart.Watch)
			r.Post("/items", h.Cart.Add)
			r.Delete("/items/{id}", h.Cart.Remove)
		})

		r.Route("/bookmarks", func(r chi.Router) {
			r.Get("/", h.Bookmarks.List)
			r.Post("/", h.Bookmarks.Add)
			r.Get("/watch", h.Bookmarks.Watch)
			r.Get("/{id}", h.Bookmarks.Check)
			r.Delete("/{id}", h.Bookmarks.Remove)
		})

		r.Route("/address", func(r chi.Router) {
			r.Get("/", h.Address.Get)
			r.Get("/watch", h.Address.Watch)
			r.Post("/locate", h.Address.Locate)
			r.Post("/search", h.Address.Search)
			r.Post("/select", h.Address.Select)
			r.Post("/pick", h.Address.Pick)
			r.Post("/tag", h.Address.Tag)
			r.Post("/edit", h.Address.Edit)
			r.Post("/save", h.Address.Save)
		})

		r.Get("/addresses", h.Checkout.Addresses)
		r.Get("/addresses/default", h.Checkout.DefaultAddress)
		r.Delete("/addresses/{id}", h.Checkout.DeleteAddress)
		r.Post("/checkout", h.Checkout.PlaceOrder)
		r.Get("/orders", h.Checkout.Orders)
	})

	return r
}
