package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/groupify/backend/internal/config"
	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/profiles"
	"github.com/groupify/backend/internal/session"
	"github.com/groupify/backend/internal/storage"
)

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		ProfileCacheTTL:  time.Minute,
		ActionRateLimit:  10,
		ActionRateWindow: time.Minute,
		ObjectStore:      config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	b := &backend{Kind: config.DocStoreMemory, Store: docstore.NewMemoryStore()}
	defer b.Close()

	deps, cleanup, err := buildDependencies(context.Background(), b, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Sessions == nil {
		t.Fatal("expected session registry to be configured")
	}
	if deps.Trips == nil {
		t.Fatal("expected trip resolver to be configured")
	}
	if deps.ActionLimiter == nil {
		t.Fatal("expected action rate limiter to be configured")
	}
	photos, ok := deps.Photos.(storage.PhotoService)
	if !ok {
		t.Fatalf("expected photo service got %T", deps.Photos)
	}
	if _, ok := photos.Cache.(*profiles.CachingProvider); !ok {
		t.Fatalf("expected in-process profile cache got %T", photos.Cache)
	}
	if deps.DocStore != config.DocStoreMemory {
		t.Fatalf("expected memory docstore got %q", deps.DocStore)
	}
}

func TestBuildDependenciesWithRedisAndNoObjectStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := &backend{Kind: config.DocStoreMemory, Store: docstore.NewMemoryStore(), Redis: client}
	b.closers = append(b.closers, b.Store.Close)
	defer b.Close()

	deps, cleanup, err := buildDependencies(context.Background(), b, config.Config{ProfileCacheTTL: time.Minute}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup(context.Background()) }()

	if deps.Photos != nil {
		t.Fatalf("expected photo uploads to be disabled got %T", deps.Photos)
	}

	if err := b.Store.Set(context.Background(), "users", "alice", map[string]any{"displayName": "Alice", "friends": []any{}, "trips": []any{}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	registry, ok := deps.Sessions.(*session.Registry)
	if !ok {
		t.Fatalf("expected registry got %T", deps.Sessions)
	}
	loader, err := registry.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	view, err := loader.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Profile.DisplayName != "Alice" {
		t.Fatalf("unexpected profile: %+v", view.Profile)
	}
	if !mr.Exists("groupify:profile:alice") {
		t.Fatal("expected profile to be cached in redis")
	}
}

func TestBackendCloseRunsNewestFirst(t *testing.T) {
	var order []string
	b := &backend{closers: []func() error{
		func() error { order = append(order, "pool"); return nil },
		func() error { order = append(order, "store"); return nil },
	}}

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(order) != 2 || order[0] != "store" || order[1] != "pool" {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	if !newLogger("debug").Enabled(context.Background(), -4) {
		t.Fatal("expected debug to be enabled")
	}
	if newLogger("error").Enabled(context.Background(), 0) {
		t.Fatal("expected info to be disabled at error level")
	}
}

func TestSeedFileName(t *testing.T) {
	if got := seedFileName("dev"); got != "dev_seed.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
	if got := seedFileName("custom.sql"); got != "custom.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
}

func TestMigrationBackoff(t *testing.T) {
	if migrationBackoff(0) != 0 {
		t.Fatal("expected no wait before the first attempt")
	}
	if migrationBackoff(2) != 2*migrationBaseBackoff {
		t.Fatalf("unexpected backoff %v", migrationBackoff(2))
	}
	if migrationBackoff(20) != migrationMaxBackoff {
		t.Fatalf("expected backoff to be capped got %v", migrationBackoff(20))
	}
}
