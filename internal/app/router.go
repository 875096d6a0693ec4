package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-fruver/internal/auth"
	"github.com/noah-isme/backend-fruver/internal/cart"
	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/checkout"
	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/health"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/order"
	"github.com/noah-isme/backend-fruver/internal/ratelimit"
	"github.com/noah-isme/backend-fruver/internal/security"
	"github.com/noah-isme/backend-fruver/internal/shipping"
)

// RouterOptions toggles the observability middleware.
type RouterOptions struct {
	Tracing bool
	Metrics *obs.HTTPMetrics
}

// Router mounts every HTTP route under /api/v1 plus health and metrics.
func (a *App) Router(opts RouterOptions) http.Handler {
	authMW := auth.Middleware{Verifier: a.Verifier}
	idem := common.Idem{R: a.Deps.Redis, TTL: a.Config.IdempotencyTTL}
	limit := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: a.Limiter,
			Key:     ratelimit.CallerKey(scope),
			OnError: func(err error) { a.Logger.Warn().Err(err).Str("scope", scope).Msg("rate limit store unavailable") },
		}.Middleware
	}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: a.Catalog})
	cartHandler := &cart.Handler{Svc: a.Carts}
	ratesHandler := &shipping.Handler{Store: a.Rates}
	checkoutHandler := &checkout.Handler{Svc: a.Checkout}
	minimumHandler := &checkout.MinimumHandler{Policy: a.Minimums}
	orderHandler := &order.Handler{Svc: a.Orders}
	orderAdmin := &order.AdminHandler{Svc: a.Orders, Reconciler: a.Reconciler, Tasks: a.Deps.Tasks}
	healthHandler := health.Handler{Checks: a.Deps.Checks}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.Tracing)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(security.Headers{HSTS: a.Config.IsProduction()}.Middleware)
	r.Use(security.BodyLimit{Max: a.Config.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(a.Config.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", cart.SessionHeader},
		ExposedHeaders:   []string{cart.SessionHeader, "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if a.Deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.Deps.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMW.Authenticate)
		v.Use(obs.RequestLogger{Logger: a.Logger}.Middleware)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/shipping-rates", ratesHandler.List)

		v.Route("/cart", func(c chi.Router) {
			c.Use(limit("cart"))
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Post("/items/batch", cartHandler.AddBatch)
			c.Put("/items", cartHandler.SetQuantity)
			c.Delete("/items/{key}", cartHandler.RemoveItem)
		})

		v.Route("/checkout/sessions", func(c chi.Router) {
			c.Use(authMW.RequireAuth)
			c.Use(limit("checkout"))
			c.Post("/", checkoutHandler.BeginSession)
			c.Get("/{id}/quote", checkoutHandler.Quote)
			c.With(idem.Middleware).Post("/{id}/orders", checkoutHandler.PlaceOrder)
		})

		v.Group(func(g chi.Router) {
			g.Use(authMW.RequireAuth)
			g.Get("/orders", orderHandler.List)
			g.Get("/orders/{id}", orderHandler.Get)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAdmin)
			admin.Put("/shipping-rates", ratesHandler.Update)
			admin.Get("/minimum-orders", minimumHandler.List)
			admin.Put("/minimum-orders/{tier}", minimumHandler.Set)
			admin.Delete("/minimum-orders/{tier}", minimumHandler.Reset)
			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/{id}", orderAdmin.Get)
			admin.Patch("/orders/{id}/status", orderAdmin.UpdateStatus)
			admin.Post("/orders/reconcile-prices", orderAdmin.ReconcilePrices)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
