package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"course-enrollment/internal/config"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ interfaces.CacheService = (*RedisCache)(nil)

// RedisCache mirrors seat availability, the available-course listing and
// waitlist snapshots. It is a read model only; the engine's counters stay
// authoritative and every entry expires on its TTL.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{
		client: rdb,
	}
}

// NewRedisCacheWithConfig builds the cache from the application config.
func NewRedisCacheWithConfig(cfg *config.CacheConfig) *RedisCache {
	return NewRedisCache(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.Password, cfg.DB)
}

// NewRedisCacheWithClient wraps an existing client, shared with the event
// publisher and the idempotency repository.
func NewRedisCacheWithClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) GetClient() redis.UniversalClient {
	return r.client
}

func (r *RedisCache) GetAvailableSeats(ctx context.Context, courseID uuid.UUID) (int, error) {
	key := seatsKey(courseID)

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, fmt.Errorf("course seats not cached")
		}
		return -1, fmt.Errorf("failed to get seats from cache: %w", err)
	}

	seats, err := strconv.Atoi(val)
	if err != nil {
		return -1, fmt.Errorf("invalid seats value in cache: %w", err)
	}

	return seats, nil
}

func (r *RedisCache) SetAvailableSeats(ctx context.Context, courseID uuid.UUID, seats int, ttl time.Duration) error {
	err := r.client.Set(ctx, seatsKey(courseID), seats, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set seats in cache: %w", err)
	}
	return nil
}

func (r *RedisCache) GetAvailableCourses(ctx context.Context, semesterID uuid.UUID) ([]byte, error) {
	val, err := r.client.Get(ctx, coursesKey(semesterID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get available courses from cache: %w", err)
	}
	return val, nil
}

func (r *RedisCache) SetAvailableCourses(ctx context.Context, semesterID uuid.UUID, data interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal available courses: %w", err)
	}
	if err := r.client.Set(ctx, coursesKey(semesterID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set available courses in cache: %w", err)
	}
	return nil
}

func (r *RedisCache) SetWaitlistSnapshot(ctx context.Context, courseID uuid.UUID, entries interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal waitlist snapshot: %w", err)
	}
	if err := r.client.Set(ctx, waitlistKey(courseID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set waitlist snapshot in cache: %w", err)
	}
	return nil
}

func (r *RedisCache) GetWaitlistSnapshot(ctx context.Context, courseID uuid.UUID) ([]byte, error) {
	val, err := r.client.Get(ctx, waitlistKey(courseID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get waitlist snapshot from cache: %w", err)
	}
	return val, nil
}

func (r *RedisCache) InvalidateAvailableCourses(ctx context.Context, semesterID uuid.UUID) error {
	if err := r.client.Del(ctx, coursesKey(semesterID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate available courses for semester %s: %w", semesterID, err)
	}
	return nil
}

func (r *RedisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func seatsKey(courseID uuid.UUID) string {
	return fmt.Sprintf("course:seats:%s", courseID.String())
}

func coursesKey(semesterID uuid.UUID) string {
	return fmt.Sprintf("semester:available:%s", semesterID.String())
}

func waitlistKey(courseID uuid.UUID) string {
	return fmt.Sprintf("course:waitlist:%s", courseID.String())
}
