package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTTL = 7 * 24 * time.Hour

// RedisProvider stores pending entries as plain Redis strings.
type RedisProvider struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	if client == nil {
		panic("pending: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisProvider{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinic.internal.pending"),
	}
}

func (p *RedisProvider) For(scope string) Store {
	return &redisStore{provider: p, scope: scope}
}

type redisStore struct {
	provider *RedisProvider
	scope    string
}

func redisKey(scope string, key Key) string {
	return fmt.Sprintf("pending:%s:%s", scope, key)
}

func (s *redisStore) Put(ctx context.Context, key Key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	ctx, span := s.provider.tracer.Start(ctx, "pending.put", trace.WithAttributes(attribute.String("pending.key", string(key))))
	defer span.End()

	if err := s.provider.redis.Set(ctx, redisKey(s.scope, key), value, s.provider.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("pending: redis set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key Key) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	ctx, span := s.provider.tracer.Start(ctx, "pending.get", trace.WithAttributes(attribute.String("pending.key", string(key))))
	defer span.End()

	value, err := s.provider.redis.Get(ctx, redisKey(s.scope, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		return "", fmt.Errorf("pending: redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *redisStore) Remove(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return err
	}
	ctx, span := s.provider.tracer.Start(ctx, "pending.remove", trace.WithAttributes(attribute.String("pending.key", string(key))))
	defer span.End()

	if err := s.provider.redis.Del(ctx, redisKey(s.scope, key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("pending: redis del %s: %w", key, err)
	}
	return nil
}
