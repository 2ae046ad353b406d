package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-checkout/internal/config"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPendingProvider picks the pending booking store named by PENDING_STORE.
// The redis backend needs a client; the dynamodb backend needs a table client.
func BuildPendingProvider(cfg *appconfig.Config, redisClient *redis.Client, dynamoClient *dynamodb.Client, logger *logging.Logger) (pending.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.PendingStore {
	case "", "memory":
		if cfg.IsProduction() {
			logger.Warn("pending bookings kept in memory; they will not survive a restart")
		}
		return pending.NewMemoryProvider(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: PENDING_STORE=redis requires a reachable REDIS_ADDR")
		}
		return pending.NewRedisProvider(redisClient, cfg.PendingTTL), nil
	case "dynamodb", "dynamo":
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: PENDING_STORE=dynamodb requires a dynamodb client")
		}
		if strings.TrimSpace(cfg.PendingBookingsTable) == "" {
			return nil, fmt.Errorf("bootstrap: PENDING_BOOKINGS_TABLE is required")
		}
		return pending.NewDynamoProvider(dynamoClient, cfg.PendingBookingsTable, cfg.PendingTTL, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown pending store %q", cfg.PendingStore)
	}
}
