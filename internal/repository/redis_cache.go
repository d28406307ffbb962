package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	publicInvoiceKeyPrefix = "public:invoice:" // Cache for canonical payment views
	billingRunKeyPrefix    = "billing:run:"    // Daily billing execution lock
)

var ErrCacheMiss = fmt.Errorf("cache miss")

// RedisCacheRepository caches canonical payment views and guards the daily
// billing run against double execution.
type RedisCacheRepository struct {
	client *redis.Client
}

// NewRedisCacheRepository creates a new Redis cache repository
func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
	}
}

// Get retrieves a value from cache by key with OTel tracing
func (r *RedisCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.Get",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			span.SetAttributes(attribute.String("cache.result", "miss"))
			return ErrCacheMiss
		}
		span.RecordError(err)
		return fmt.Errorf("redis get error: %w", err)
	}

	span.SetAttributes(attribute.String("cache.result", "hit"))
	if err := json.Unmarshal(data, dest); err != nil {
		span.RecordError(err)
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

// Set stores a value in cache with TTL and OTel tracing
func (r *RedisCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// Delete removes keys from cache with OTel tracing
func (r *RedisCacheRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))),
	)
	defer span.End()

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

// SetPublicInvoice caches the public canonical payment view of an invoice
func (r *RedisCacheRepository) SetPublicInvoice(ctx context.Context, invoiceID string, view interface{}, ttl time.Duration) error {
	return r.Set(ctx, publicInvoiceKeyPrefix+invoiceID, view, ttl)
}

// GetPublicInvoice retrieves the cached public view of an invoice
func (r *RedisCacheRepository) GetPublicInvoice(ctx context.Context, invoiceID string, dest interface{}) error {
	return r.Get(ctx, publicInvoiceKeyPrefix+invoiceID, dest)
}

// InvalidatePublicInvoice removes the cached public view of an invoice
func (r *RedisCacheRepository) InvalidatePublicInvoice(ctx context.Context, invoiceID string) error {
	return r.Delete(ctx, publicInvoiceKeyPrefix+invoiceID)
}

// AcquireBillingRun marks the daily billing run for day as started.
// Returns false when another process already ran it.
func (r *RedisCacheRepository) AcquireBillingRun(ctx context.Context, day string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, billingRunKeyPrefix+day, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx error: %w", err)
	}
	return ok, nil
}

// ReleaseBillingRun clears the billing run lock, used when the run fails
// early and a retry should be allowed.
func (r *RedisCacheRepository) ReleaseBillingRun(ctx context.Context, day string) error {
	return r.Delete(ctx, billingRunKeyPrefix+day)
}
