package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/option"

	"github.com/groupify/backend/internal/config"
	"github.com/groupify/backend/internal/db"
	"github.com/groupify/backend/internal/docstore"
)

// backend is the opened document store plus the optional shared Redis client.
type backend struct {
	Kind  string
	Store docstore.Store
	Redis *redis.Client

	closers []func() error
	// busOwnsRedis is set when the change bus closes the Redis client.
	busOwnsRedis bool
}

// Close releases the store and everything opened alongside it, newest first.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	if b.Redis != nil && !b.busOwnsRedis {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.Redis = nil
	return errors.Join(errs...)
}

// openBackend connects to the configured document store. When a Redis URL is
// configured the client is shared by the Postgres change bus and the profile cache.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{Kind: cfg.DocStore}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		b.Redis = client
	}

	store, err := openStore(ctx, cfg, b, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = store
	b.closers = append(b.closers, store.Close)
	return b, nil
}

func openStore(ctx context.Context, cfg config.Config, b *backend, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.DocStore {
	case config.DocStoreMemory, "":
		b.Kind = config.DocStoreMemory
		return docstore.NewMemoryStore(), nil

	case config.DocStorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })

		var bus docstore.ChangeBus = docstore.NewLocalBus()
		if b.Redis != nil {
			bus = docstore.NewRedisBusWithClient(b.Redis, logger)
			b.busOwnsRedis = true
		}
		return docstore.NewPostgresStore(pool, bus, logger), nil

	case config.DocStoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			return nil, errors.New("firestore project id is required")
		}
		var opts []option.ClientOption
		if cfg.Firestore.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firestore.CredentialsFile))
		}
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firestore.ProjectID}, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise firebase app: %w", err)
		}
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		return docstore.NewFirestoreStore(client, logger), nil

	case config.DocStoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		return docstore.NewMongoStore(client, cfg.Mongo.Database, logger), nil

	default:
		return nil, fmt.Errorf("unknown docstore %q", cfg.DocStore)
	}
}
