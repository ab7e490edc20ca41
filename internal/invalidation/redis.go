package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes events on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(redisURL, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisPublisherWithClient(client, channel, logger), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish sends event to every subscriber of the channel.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal invalidation event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation event: %w", err)
	}
	return nil
}

// Subscribe joins the channel. The subscription is confirmed before it is returned.
func (p *RedisPublisher) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	return &Subscription{pubsub: pubsub, logger: p.logger}, nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Subscription receives events published by other instances.
type Subscription struct {
	pubsub *redis.PubSub
	logger *zap.Logger
}

// Relay hands each received event to sink until ctx is done. Events from skipOrigin, which
// this instance already delivered locally, are dropped.
func (s *Subscription) Relay(ctx context.Context, skipOrigin string, sink func(Event)) error {
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
				s.logger.Warn("invalidation event decode failed", zap.Error(err))
				continue
			}
			if event.Origin == skipOrigin {
				continue
			}
			sink(event)
		}
	}
}

// Close leaves the channel.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
