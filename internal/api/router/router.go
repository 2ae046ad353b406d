package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-checkout/internal/checkout"
	httpmiddleware "github.com/wolfman30/clinic-checkout/internal/http/middleware"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Checkout           *checkout.Handler
	FakeCheckout       *payments.FakeCheckoutHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	StageLimiter       *httpmiddleware.RateLimiter
	HealthChecks       []HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.FakeCheckout != nil {
		r.Mount("/demo", cfg.FakeCheckout.Routes())
	}
	if cfg.Checkout != nil {
		if cfg.StageLimiter != nil {
			cfg.Checkout.WithStageMiddleware(httpmiddleware.RateLimit(cfg.StageLimiter))
		}
		r.Mount("/api/checkout", cfg.Checkout.Routes())
	}

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[c.Name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
