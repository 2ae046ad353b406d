package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PENDING_STORE", "")
	t.Setenv("VERIFY_MAX_ATTEMPTS", "")
	t.Setenv("CHECKOUT_PAYMENT_METHODS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.PendingStore != "memory" {
		t.Fatalf("expected memory pending store, got %s", cfg.PendingStore)
	}
	if cfg.VerifyInitialDelay != 2*time.Second || cfg.VerifyFallbackDelay != 5*time.Second {
		t.Fatalf("unexpected verify delays %s/%s", cfg.VerifyInitialDelay, cfg.VerifyFallbackDelay)
	}
	if cfg.VerifyMaxAttempts != 6 {
		t.Fatalf("expected 6 verify attempts, got %d", cfg.VerifyMaxAttempts)
	}
	if cfg.VerifyBaseDelay != 3*time.Second || cfg.VerifyDelayStep != 2*time.Second || cfg.VerifyMaxDelay != 15*time.Second {
		t.Fatalf("unexpected backoff %s/%s/%s", cfg.VerifyBaseDelay, cfg.VerifyDelayStep, cfg.VerifyMaxDelay)
	}
	if len(cfg.CheckoutPaymentMethods) != 3 {
		t.Fatalf("expected default payment methods, got %v", cfg.CheckoutPaymentMethods)
	}
	if cfg.IsProduction() {
		t.Fatalf("development env should not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "Production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("PENDING_STORE", "Redis")
	t.Setenv("PENDING_TTL", "1h")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("VERIFY_MAX_ATTEMPTS", "3")
	t.Setenv("VERIFY_FALLBACK_DELAY", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("STAGE_RATE_LIMIT", "0.5")
	cfg := Load()
	if cfg.StageRateLimit != 0.5 {
		t.Fatalf("expected stage rate override, got %v", cfg.StageRateLimit)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.PendingStore != "redis" || cfg.PendingTTL != time.Hour || !cfg.RedisTLS {
		t.Fatalf("unexpected pending store config %+v", cfg)
	}
	if cfg.VerifyMaxAttempts != 3 || cfg.VerifyFallbackDelay != 250*time.Millisecond {
		t.Fatalf("unexpected verify overrides %d/%s", cfg.VerifyMaxAttempts, cfg.VerifyFallbackDelay)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("VERIFY_MAX_ATTEMPTS", "many")
	t.Setenv("VERIFY_INITIAL_DELAY", "soon")
	t.Setenv("ALLOW_FAKE_PAYMENTS", "maybe")
	t.Setenv("STAGE_RATE_LIMIT", "fast")
	cfg := Load()
	if cfg.StageRateLimit != 1 || cfg.StageRateBurst != 5 {
		t.Fatalf("expected fallback stage rate limit, got %v/%d", cfg.StageRateLimit, cfg.StageRateBurst)
	}
	if cfg.VerifyMaxAttempts != 6 {
		t.Fatalf("expected fallback attempts, got %d", cfg.VerifyMaxAttempts)
	}
	if cfg.VerifyInitialDelay != 2*time.Second {
		t.Fatalf("expected fallback initial delay, got %s", cfg.VerifyInitialDelay)
	}
	if cfg.AllowFakePayments {
		t.Fatalf("expected fake payments disabled")
	}
}
