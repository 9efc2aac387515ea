package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/servilista/servilista/middleware/http"
	"github.com/servilista/servilista/pkg/market"
)

// NewRouter assembles the full route tree. Guarded routes run the route
// guard middleware; the webhook and health endpoints stay public.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)
	if h.config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.config.MetricsHandler)
	}

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	if h.config.Payments != nil {
		r.Method(http.MethodPost, "/stripeWebhook", h.config.Payments.WebhookHandler())
	}

	authRoute := market.Route{Path: "/services", RequiresAuth: true}
	premiumRoute := market.Route{Path: "/services/price", RequiresAuth: true, RequiresPremium: true}

	guarded := func(route market.Route) func(http.Handler) http.Handler {
		return mw.Middleware(mw.Config{
			Guard:  h.config.Guard,
			Verify: h.config.Gateway.Verify,
		}, route)
	}

	r.Group(func(r chi.Router) {
		r.Use(guarded(authRoute))
		r.Get("/services", h.ListServices)
		r.Post("/services", h.CreateService)
		r.Get("/services/watch", h.WatchServices)
		r.Patch("/services/{id}", h.UpdateService)
		r.Delete("/services/{id}", h.DeleteService)
		r.Post("/checkout/session", h.Checkout)
	})

	r.Group(func(r chi.Router) {
		r.Use(guarded(premiumRoute))
		r.Patch("/services/{id}/price", h.UpdatePrice)
	})

	return r
}
