package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-cart/api/controllers"
	cartcontrollers "github.com/angelmondragon/packfinderz-cart/api/controllers/cart"
	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

// RouterParams collect the dependencies the HTTP surface needs.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	CartService cart.Service
	RedisClient *redis.Client
	Readiness   map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readiness))
	})

	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	mutationPolicy := middleware.NewRateLimitPolicy(
		"cart-mutations",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.RateLimitMutations,
	)
	svc := params.CartService
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Identity(logg, cfg.JWT))
		if params.RedisClient != nil {
			r.Use(middleware.RateLimit(mutationPolicy, params.RedisClient, logg))
		}

		r.Get("/", cartcontrollers.CartFetch(svc, logg))
		r.Delete("/", cartcontrollers.CartClear(svc, logg))
		r.Get("/count", cartcontrollers.CartCount(svc, logg))
		r.Post("/items", cartcontrollers.CartAddItem(svc, logg))
		r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(svc, logg))
		r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(svc, logg))
		r.Post("/merge", cartcontrollers.CartMerge(svc, logg))
		r.Post("/validate", cartcontrollers.CartValidate(svc, logg))
		r.Post("/checkout/prepare", cartcontrollers.CartPrepareCheckout(svc, logg))
		r.Delete("/reservation", cartcontrollers.CartReleaseReservation(svc, logg))
	})

	return r
}
