package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/go-redis/redis/v8"
)

var _ interfaces.IdempotencyRepository = (*RedisIdempotencyRepository)(nil)

// RedisIdempotencyRepository stores processed request keys with a TTL so
// enrollment retries replay the original response instead of re-running the
// admission pipeline.
type RedisIdempotencyRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotencyRepository(client redis.UniversalClient, ttl time.Duration) *RedisIdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyRepository{
		client: client,
		prefix: "idempotency_key:",
		ttl:    ttl,
	}
}

func (r *RedisIdempotencyRepository) Create(ctx context.Context, key *domain.IdempotencyKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency key: %w", err)
	}

	err = r.client.Set(ctx, r.redisKey(key.Key), string(data), r.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyRepository) GetByKey(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var stored domain.IdempotencyKey
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency key: %w", err)
	}
	return &stored, nil
}

func (r *RedisIdempotencyRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}
