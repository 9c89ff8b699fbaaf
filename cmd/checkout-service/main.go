package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/catalog"
	"github.com/vasiliy-maslov/farm-checkout/internal/checkout"
	"github.com/vasiliy-maslov/farm-checkout/internal/db"
	checkoutHttp "github.com/vasiliy-maslov/farm-checkout/internal/handler/http"
	"github.com/vasiliy-maslov/farm-checkout/internal/ledger"
	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
	"github.com/vasiliy-maslov/farm-checkout/internal/metrics"
	"github.com/vasiliy-maslov/farm-checkout/internal/order"
	"github.com/vasiliy-maslov/farm-checkout/pkg/config"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Str("env", cfg.App.Env).Msg("Checkout service starting...")

	ctx := context.Background()

	store, closeStore := newSessionStore(ctx, cfg)
	defer closeStore()

	var ledgerRepo checkout.Ledger
	if cfg.Postgres.Enabled() {
		if err := db.ApplyMigrations(cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}

		dbConn, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		ledgerRepo = ledger.NewRepository(dbConn.Pool)
	} else {
		log.Warn().Msg("DB_HOST not set, order ledger disabled")
	}

	market := marketplace.NewClient(marketplace.Config{
		BaseURL:        cfg.Marketplace.BaseURL,
		Timeout:        cfg.Marketplace.Timeout,
		EndpointSuffix: cfg.Marketplace.EndpointSuffix,
		ServiceName:    serviceName,
	})
	products := catalog.New(market, cfg.Checkout.CatalogTTL)

	checkoutSvc := checkout.NewService(market, products, store, ledgerRepo)
	orderSvc := order.NewService(market)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware(serviceName))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(checkoutHttp.ForwardSessionCookie)
		checkoutHttp.NewProductHandler(products).RegisterRoutes(r)
		checkoutHttp.NewCheckoutHandler(checkoutSvc).RegisterRoutes(r)
		checkoutHttp.NewOrderHandler(orderSvc).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Checkout service stopped gracefully")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", serviceName).Logger()
}

func newSessionStore(ctx context.Context, cfg *config.Config) (checkout.SessionStore, func()) {
	if !cfg.Redis.Enabled() {
		log.Warn().Msg("REDIS_ADDR not set, keeping checkout sessions in memory")
		return checkout.NewMemoryStore(cfg.Checkout.SessionTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	return checkout.NewRedisStore(client, cfg.Checkout.SessionTTL), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
}
