package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-checkout/cmd/mainconfig"
	"github.com/wolfman30/clinic-checkout/internal/api/router"
	"github.com/wolfman30/clinic-checkout/internal/app/bootstrap"
	"github.com/wolfman30/clinic-checkout/internal/bookings"
	"github.com/wolfman30/clinic-checkout/internal/checkout"
	appconfig "github.com/wolfman30/clinic-checkout/internal/config"
	"github.com/wolfman30/clinic-checkout/internal/events"
	httpmiddleware "github.com/wolfman30/clinic-checkout/internal/http/middleware"
	"github.com/wolfman30/clinic-checkout/internal/notify"
	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting clinic-checkout API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	stores, err := bootstrap.BuildPendingProvider(cfg, redisClient, dynamodb.NewFromConfig(awsCfg), logger)
	if err != nil {
		logger.Error("failed to build pending booking store", "error", err)
		os.Exit(1)
	}

	gateway, err := bootstrap.BuildGateway(cfg, logger)
	if err != nil {
		logger.Error("failed to configure payment gateway", "error", err)
		os.Exit(1)
	}
	logger.Info("payment gateway configured", "gateway", gateway.Kind)

	metricsHandler, registry, checkoutMetrics := setupMetrics()

	var repo bookings.API
	if pool != nil {
		repo = bookings.NewRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
		repo = bookings.NewMemoryRepository()
	}

	verifier := payments.NewVerifier(gateway.Provider, logger).
		WithSchedule(bootstrap.VerificationSchedule(cfg)).
		WithMetrics(checkoutMetrics)
	finalizer := bookings.NewFinalizer(repo, logger).
		WithMetrics(checkoutMetrics).
		WithDefaultPaymentMethod(cfg.DefaultPaymentMethod)

	observers := []checkout.Observer{checkout.MetricsObserver(checkoutMetrics)}
	var deliverer *events.Deliverer
	if pool != nil {
		outbox := events.NewOutboxStore(pool)
		observers = append(observers, checkout.NewOutboxObserver(outbox, logger))

		sender := bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger)
		alerter := notify.NewFailureAlerter(sender, cfg.SupportEmail, logger).
			WithProcessedStore(events.NewProcessedStore(pool))
		deliverer = events.NewDeliverer(outbox, alerter, logger).WithInterval(cfg.OutboxPollInterval)
	} else {
		logger.Warn("outbox disabled without DATABASE_URL; failure alerts will not be sent")
	}

	manager := checkout.NewManager(stores, verifier, finalizer, logger).
		WithObservers(observers...).
		WithFlowTimeout(cfg.FlowTimeout)
	stager := checkout.NewStager(gateway.Provider, stores, cfg.PublicBaseURL, logger).
		WithDefaults(checkout.StageOptions{
			SuccessURL:     cfg.CheckoutSuccessURL,
			CancelURL:      cfg.CheckoutCancelURL,
			Currency:       cfg.CheckoutCurrency,
			PaymentMethods: cfg.CheckoutPaymentMethods,
		})
	checkoutHandler := checkout.NewHandler(stager, manager, logger).WithGatherer(registry)

	if deliverer != nil {
		go deliverer.Start(ctx)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Checkout:           checkoutHandler,
		FakeCheckout:       gateway.Demo,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		StageLimiter:       httpmiddleware.NewRateLimiter(cfg.StageRateLimit, cfg.StageRateBurst),
		HealthChecks:       healthChecks(pool, redisClient),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("checkout flows did not settle", "error", err)
	}
	cancel()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupMetrics() (http.Handler, *prometheus.Registry, *metrics.CheckoutMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, registry, checkoutMetrics
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) []router.HealthCheck {
	var checks []router.HealthCheck
	if pool != nil {
		checks = append(checks, router.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if redisClient != nil {
		checks = append(checks, router.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}
