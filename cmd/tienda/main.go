package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"MiniTienda/internal/app"
	"MiniTienda/internal/cart"
	"MiniTienda/internal/catalog"
	"MiniTienda/internal/config"
	"MiniTienda/pkg/kit"
)

const (
	service        = "tienda"
	startupTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	st, err := openStores(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("init stores failed", zap.String("backend", cfg.Backend), zap.Error(err))
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := app.NewHandler(app.Deps{
		Catalog:            st.catalog,
		Cart:               st.cart,
		AddRateLimitPerMin: cfg.AddRateLimitPerMin,
	}, app.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
	})

	log.Info("tienda configured",
		zap.String("addr", cfg.Addr()),
		zap.String("backend", cfg.Backend),
		zap.Strings("cors_origins", cfg.AllowedOrigins),
		zap.Strings("endpoints", endpoints(cfg)),
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := kit.ListenAndServe(sigCtx, cfg.Addr(), h, log, kit.ServerOptions{}); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func endpoints(cfg config.Config) []string {
	out := []string{
		"GET /",
		"GET /api/productos",
		"GET /api/carrito/{usuarioId}",
		"POST /api/carrito/agregar",
		"PUT /api/carrito/{itemId}",
		"DELETE /api/carrito/{itemId}",
		"GET /health",
		"GET /healthz",
		"GET /readyz",
	}
	if cfg.MetricsEnabled {
		out = append(out, "GET /metrics")
	}
	return out
}

type stores struct {
	catalog catalog.Store
	cart    cart.Store
	close   func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := kit.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}

		cs := catalog.NewPostgresStore(db)
		ks := cart.NewPostgresStore(db)
		if err := cs.Migrate(ctx); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("migrate catalog: %w", err)
		}
		if err := ks.Migrate(ctx); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("migrate cart: %w", err)
		}
		return stores{catalog: cs, cart: ks, close: func() { _ = db.Close() }}, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return stores{}, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		ks := cart.NewRedisStore(client, cfg.RedisNamespace)
		if err := ks.Ping(ctx); err != nil {
			_ = client.Close()
			return stores{}, fmt.Errorf("ping redis: %w", err)
		}
		// The catalog is fixed seed data; only carts live in Redis.
		return stores{catalog: catalog.NewMemStore(), cart: ks, close: func() { _ = client.Close() }}, nil

	default:
		return stores{catalog: catalog.NewMemStore(), cart: cart.NewMemStore(), close: func() {}}, nil
	}
}
