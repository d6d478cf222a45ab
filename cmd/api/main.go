package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/shopkit/checkout/internal/checkout/adapters"
	"github.com/shopkit/checkout/internal/checkout/adapters/catalog"
	httpadapter "github.com/shopkit/checkout/internal/checkout/adapters/http"
	checkoutpostgres "github.com/shopkit/checkout/internal/checkout/adapters/postgres"
	"github.com/shopkit/checkout/internal/checkout/adapters/static"
	"github.com/shopkit/checkout/internal/checkout/app"
	checkoutmetrics "github.com/shopkit/checkout/internal/checkout/metrics"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/config"
	"github.com/shopkit/checkout/internal/database"
	idempostgres "github.com/shopkit/checkout/internal/idempotency/postgres"
	"github.com/shopkit/checkout/internal/kafka"
	"github.com/shopkit/checkout/internal/money"
	"github.com/shopkit/checkout/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(parseLogLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations completed successfully")
	}

	meter := otel.Meter(cfg.Service.Name)

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create database metrics", "error", err)
		os.Exit(1)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create kafka metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create http metrics", "error", err)
		os.Exit(1)
	}
	engineMetrics, err := checkoutmetrics.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create checkout metrics", "error", err)
		os.Exit(1)
	}

	carts := checkoutpostgres.NewCartRepository(pool)
	orders := adapters.NewObservableOrderRepository(checkoutpostgres.NewOrderRepository(pool), dbMetrics)
	couponStore := checkoutpostgres.NewCouponStore(pool)
	inventory := checkoutpostgres.NewInventoryStore(pool)
	reservationStore := checkoutpostgres.NewReservationStore(pool)
	txRunner := checkoutpostgres.NewTxRunner(pool)
	idemStore := idempostgres.NewStore(pool)

	var bus ports.EventBus = kafka.NewNoopEventBus()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewEventBus(cfg.Kafka.Brokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close kafka publisher", "error", err)
			}
		}()
		bus = publisher
	}
	events := adapters.NewObservableEventBus(bus, kafkaMetrics)

	priceCatalog := catalog.NewClient(cfg.Catalog.BaseURL)
	taxes := static.NewTaxTable(nil, cfg.Pricing.DefaultTaxRate)
	shipping := static.NewTieredShipping(cfg.Checkout.Currency, cfg.Pricing.ShippingBase, cfg.Pricing.ShippingPerKg)
	payments := static.NewSandboxPayments()

	calculator := app.NewCartCalculator(priceCatalog, taxes, shipping, logger, app.CalculatorConfig{
		Currency:        cfg.Checkout.Currency,
		StalenessWindow: cfg.Checkout.PriceStaleness,
		PriceTolerance:  money.New(cfg.Checkout.PriceTolerance, cfg.Checkout.Currency),
	})
	coupons := app.NewCouponEngine(couponStore, logger, cfg.Checkout.ReserveRetries).
		WithMetrics(engineMetrics)
	reservations := app.NewInventoryReservationManager(inventory, reservationStore, logger, app.ReservationConfig{
		TTL:        cfg.Checkout.ReservationTTL,
		MaxRetries: cfg.Checkout.ReserveRetries,
	}).WithMetrics(engineMetrics)
	orchestrator := app.NewCheckoutOrchestrator(
		carts, orders, calculator, coupons, reservations,
		payments, events, txRunner, logger,
		app.CheckoutConfig{Currency: cfg.Checkout.Currency, Timeout: cfg.Checkout.Timeout},
	)
	service := app.NewService(
		carts, orders, priceCatalog, coupons, calculator, orchestrator,
		idemStore, logger, engineMetrics,
		app.ServiceConfig{Currency: cfg.Checkout.Currency, CartTTL: cfg.Checkout.CartTTL},
	)

	sweeper := app.NewSweeper(reservations, logger, cfg.Checkout.SweepInterval).
		WithMetrics(engineMetrics)
	go sweeper.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.CheckHealth(r.Context(), pool); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	httpadapter.NewHandler(service).Register(mux)

	handler := withRecovery(httpadapter.WithMetrics(mux, httpMetrics))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "error", rec)
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
