package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
)

const (
	idempotencyKeyPrefix  = "idempotency:"
	changeChannelPrefix   = "changes:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// RedisAdapter deduplicates external deliveries and carries the change feed
// over pub/sub.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl, logger: logger}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) Publish(ctx context.Context, change domain.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return r.client.Publish(ctx, changeChannelPrefix+change.Collection, payload).Err()
}

func (r *RedisAdapter) Subscribe(ctx context.Context, collections ...string) (<-chan domain.Change, error) {
	channels := make([]string, len(collections))
	for i, c := range collections {
		channels[i] = changeChannelPrefix + c
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	// Wait for the subscription to be confirmed so no change published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan domain.Change, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change domain.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					r.logger.Warn("dropping malformed change", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
