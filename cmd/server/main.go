package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/productlab/catalog-engine/internal/catalog"
	"github.com/productlab/catalog-engine/internal/config"
	"github.com/productlab/catalog-engine/internal/logging"
	"github.com/productlab/catalog-engine/internal/metrics"
	"github.com/productlab/catalog-engine/internal/pricing"
	"github.com/productlab/catalog-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, logOut, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logOut.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, cleanup, err := openStore(ctx, cfg.App)
	if err != nil {
		slog.Error("store init failed", logging.Err(err))
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Forecasting and pricing ---
	engine, err := catalog.NewEngineFromConfig(cfg.Forecast)
	if err != nil {
		slog.Error("forecast engine config invalid", logging.Err(err))
		os.Exit(1)
	}
	optimizer, err := pricing.NewOptimizer(
		pricing.WithGridSize(cfg.Pricing.GridSize),
		pricing.WithWorkers(cfg.Pricing.Workers),
		pricing.WithMaxBatch(cfg.Pricing.MaxBatch),
	)
	if err != nil {
		slog.Error("price optimizer config invalid", logging.Err(err))
		os.Exit(1)
	}

	// --- WebSocket hub ---
	wsHub := catalog.NewWSHub()
	go wsHub.Run(ctx)

	svc := catalog.NewService(st, engine, optimizer, wsHub,
		catalog.WithDefaultHorizon(cfg.Forecast.HorizonDays),
		catalog.WithElasticity(cfg.Pricing.Elasticity),
		catalog.WithForecastCacheTTL(cfg.Forecast.CacheTTL),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      newRouter(svc, wsHub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("catalog-engine listening",
			"port", cfg.App.Port,
			"forecast_model", engine.ModelName(),
			"horizon_days", cfg.Forecast.HorizonDays,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", logging.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down catalog-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", logging.Err(err))
	}
	slog.Info("catalog-engine stopped")
}

// openStore picks Postgres (optionally behind Redis) when DATABASE_URL is
// set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.AppConfig) (store.Store, []func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, nil
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, cfg.DatabaseURL, "up"); err != nil {
			return nil, nil, err
		}
		slog.Info("migrations applied")
	}

	var cleanup []func()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection: %w", err)
	}
	cleanup = append(cleanup, pool.Close)
	var st store.Store = store.NewPostgresStore(pool)
	slog.Info("connected to PostgreSQL")

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}
	return st, cleanup, nil
}

func newRouter(svc *catalog.Service, wsHub *catalog.WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"catalog-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket upgrades must not run under the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.With(middleware.Timeout(30*time.Second)).Route("/products", func(r chi.Router) {
			r.Get("/", svc.ListProducts)
			r.Post("/", svc.CreateProduct)
			r.Get("/sales", svc.ListProductsWithSales)
			r.Post("/price-optimize", svc.OptimizePrices)

			r.Get("/{productID}", svc.GetProduct)
			r.Put("/{productID}", svc.UpdateProduct)
			r.Delete("/{productID}", svc.DeleteProduct)
			r.Get("/{productID}/sales", svc.GetSales)
			r.Get("/{productID}/forecast", svc.GetForecast)
			r.Post("/{productID}/optimize-price", svc.OptimizeProductPrice)
		})
	})
	return r
}
