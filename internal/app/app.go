package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"MiniTienda/internal/cart"
	"MiniTienda/internal/catalog"
	"MiniTienda/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	AllowedOrigins []string

	MetricsEnabled bool
	MetricsToken   string
}

type Deps struct {
	Catalog catalog.Store
	Cart    cart.Store

	// AddRateLimitPerMin caps add-to-cart requests per client IP. Zero disables it.
	AddRateLimitPerMin int

	Now   func() time.Time
	NewID func() string
}

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
)

const msgRouteNotFound = "Ruta no encontrada"

type healthResp struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	CarritosCount int       `json:"carritosCount"`
}

func NewHandler(deps Deps, httpDeps HTTPDeps) http.Handler {
	log := httpDeps.Log
	if log == nil {
		log = zap.NewNop()
	}

	var metrics *kit.Metrics
	if httpDeps.Registry != nil {
		metrics = kit.NewMetrics(httpDeps.Registry, httpDeps.Service)
	}

	r := chi.NewRouter()
	setupMiddleware(r, httpDeps, log, metrics)
	setupMetricsEndpoint(r, httpDeps)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		kit.WriteError(w, r, http.StatusNotFound, msgRouteNotFound)
	})

	r.Get("/health", health(deps, log))
	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps, log))

	cs := &catalog.Server{Store: deps.Catalog, Log: log.Named("catalog")}
	cs.Register(r)

	var addMW []func(http.Handler) http.Handler
	if deps.AddRateLimitPerMin > 0 {
		addMW = append(addMW, kit.NewIPRateLimiter(deps.AddRateLimitPerMin, time.Minute).Middleware)
	}

	ks := &cart.Server{
		Store:   deps.Cart,
		Catalog: deps.Catalog,
		Log:     log.Named("cart"),
		Now:     deps.Now,
		NewID:   deps.NewID,
	}
	if metrics != nil {
		ks.Events = metrics
	}
	ks.Register(r, addMW...)

	return r
}

// setupMiddleware orders the chain so that the request log and the request
// metrics see the 500 written by Recoverer for a panicking handler.
func setupMiddleware(r *chi.Mux, deps HTTPDeps, log *zap.Logger, metrics *kit.Metrics) {
	r.Use(chimw.RequestID)
	r.Use(kit.Logging(log))
	if metrics != nil {
		r.Use(metrics.Middleware(kit.RouteLabel))
	}
	r.Use(kit.Recoverer(log))
	r.Use(kit.CORS(deps.AllowedOrigins))
}

func setupMetricsEndpoint(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil || !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func health(deps Deps, log *zap.Logger) http.HandlerFunc {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Cart.Count(r.Context())
		if err != nil {
			log.Error("health: count cart items", zap.Error(err))
			kit.WriteInternal(w, r)
			return
		}

		kit.WriteJSON(w, http.StatusOK, healthResp{
			Status:        "OK",
			Timestamp:     now().UTC(),
			CarritosCount: n,
		})
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := ping(ctx, deps.Catalog.Ping); err != nil {
			log.Warn("readyz failed: catalog", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "catalog not ready")
			return
		}

		if err := ping(ctx, deps.Cart.Ping); err != nil {
			log.Warn("readyz failed: cart", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "cart not ready")
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()
	return fn(cctx)
}
