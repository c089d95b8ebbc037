package events

import (
	"context"
	"encoding/json"
	"fmt"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"

	"github.com/go-redis/redis/v8"
)

const eventChannel = "enrollment:events"

var _ interfaces.EventSink = (*RedisPublisher)(nil)

// RedisPublisher forwards events onto a Redis pub/sub channel consumed by the
// notification subsystem.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Deliver(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Name() string {
	return "redis"
}
