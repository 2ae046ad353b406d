package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	CORSAllowedOrigins []string
	StageRateLimit     float64
	StageRateBurst     int

	// Pending booking storage
	PendingStore         string
	PendingTTL           time.Duration
	PendingBookingsTable string
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Payment gateway
	GatewayProvider        string
	AllowFakePayments      bool
	PayMongoSecretKey      string
	PayMongoBaseURL        string
	CheckoutSuccessURL     string
	CheckoutCancelURL      string
	CheckoutCurrency       string
	CheckoutPaymentMethods []string
	DefaultPaymentMethod   string

	// Verification schedule
	VerifyInitialDelay  time.Duration
	VerifyMaxAttempts   int
	VerifyBaseDelay     time.Duration
	VerifyDelayStep     time.Duration
	VerifyMaxDelay      time.Duration
	VerifyFallbackDelay time.Duration
	FlowTimeout         time.Duration

	// Notifications
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	SESFromName        string
	SupportEmail       string
	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		StageRateLimit:     getEnvAsFloat("STAGE_RATE_LIMIT", 1),
		StageRateBurst:     getEnvAsInt("STAGE_RATE_BURST", 5),

		PendingStore:         strings.ToLower(getEnv("PENDING_STORE", "memory")),
		PendingTTL:           getEnvAsDuration("PENDING_TTL", 7*24*time.Hour),
		PendingBookingsTable: getEnv("PENDING_BOOKINGS_TABLE", "pending-bookings"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		GatewayProvider:        strings.ToLower(getEnv("GATEWAY_PROVIDER", "auto")),
		AllowFakePayments:      getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		PayMongoSecretKey:      getEnv("PAYMONGO_SECRET_KEY", ""),
		PayMongoBaseURL:        getEnv("PAYMONGO_BASE_URL", "https://api.paymongo.com"),
		CheckoutSuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:      getEnv("CHECKOUT_CANCEL_URL", ""),
		CheckoutCurrency:       getEnv("CHECKOUT_CURRENCY", "PHP"),
		CheckoutPaymentMethods: getEnvAsList("CHECKOUT_PAYMENT_METHODS", []string{"card", "gcash", "paymaya"}),
		DefaultPaymentMethod:   getEnv("DEFAULT_PAYMENT_METHOD", "paymongo"),

		VerifyInitialDelay:  getEnvAsDuration("VERIFY_INITIAL_DELAY", 2*time.Second),
		VerifyMaxAttempts:   getEnvAsInt("VERIFY_MAX_ATTEMPTS", 6),
		VerifyBaseDelay:     getEnvAsDuration("VERIFY_BASE_DELAY", 3*time.Second),
		VerifyDelayStep:     getEnvAsDuration("VERIFY_DELAY_STEP", 2*time.Second),
		VerifyMaxDelay:      getEnvAsDuration("VERIFY_MAX_DELAY", 15*time.Second),
		VerifyFallbackDelay: getEnvAsDuration("VERIFY_FALLBACK_DELAY", 5*time.Second),
		FlowTimeout:         getEnvAsDuration("FLOW_TIMEOUT", 3*time.Minute),

		EmailProvider:      strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Clinic Bookings"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "Clinic Bookings"),
		SupportEmail:       getEnv("SUPPORT_EMAIL", ""),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
