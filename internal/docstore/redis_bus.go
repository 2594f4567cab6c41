package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements ChangeBus over Redis pub/sub so every API instance sees
// writes made by the others.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisBus connects to the Redis server at redisURL.
func NewRedisBus(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBusWithClient(client, logger), nil
}

// NewRedisBusWithClient builds a bus from an existing client.
func NewRedisBusWithClient(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, prefix: "docstore:changes:", logger: logger}
}

func (b *RedisBus) channel(collection string) string {
	return b.prefix + collection
}

// Publish announces a change to the collection.
func (b *RedisBus) Publish(ctx context.Context, collection string) error {
	if err := b.client.Publish(ctx, b.channel(collection), "1").Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", collection, err)
	}
	return nil
}

// Subscribe listens for changes to the collection until the returned cancel is called.
func (b *RedisBus) Subscribe(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s changes: %w", collection, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()

	go func() {
		for range msgs {
			poke(out)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Warn("close redis subscription", "collection", collection, "error", err)
			}
		})
	}
	return out, cancel, nil
}

// Close releases the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

var _ ChangeBus = (*RedisBus)(nil)
