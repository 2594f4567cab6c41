package profiles

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/groupify/backend/internal/models"
)

func TestRedisProviderCachesAcrossInstances(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	base := &stubProvider{user: models.User{DisplayName: "Carol"}}
	first := NewRedisProvider(base, redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Minute, nil)
	second := NewRedisProvider(base, redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Minute, nil)

	if _, err := first.Lookup(ctx, "carol"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	user, err := second.Lookup(ctx, "carol")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.DisplayName != "Carol" || base.callCount() != 1 {
		t.Fatalf("expected shared cache hit got %+v after %d calls", user, base.callCount())
	}

	server.FastForward(2 * time.Minute)
	if _, err := second.Lookup(ctx, "carol"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.callCount() != 2 {
		t.Fatalf("expected miss after ttl got %d calls", base.callCount())
	}

	if err := first.Invalidate(ctx, "carol"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if server.Exists(redisKeyPrefix + "carol") {
		t.Fatal("expected key to be removed")
	}
}

func TestRedisProviderFallsBackWhenRedisDown(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	server.Close()

	base := &stubProvider{user: models.User{Email: "dan@example.com"}}
	provider := NewRedisProvider(base, client, time.Minute, nil)

	user, err := provider.Lookup(context.Background(), "dan")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.Email != "dan@example.com" {
		t.Fatalf("unexpected profile: %+v", user)
	}
}

func TestRedisProviderDiscardsMalformedEntries(t *testing.T) {
	server := miniredis.RunT(t)
	if err := server.Set(redisKeyPrefix+"erin", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	base := &stubProvider{user: models.User{DisplayName: "Erin"}}
	provider := NewRedisProvider(base, redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Minute, nil)

	user, err := provider.Lookup(context.Background(), "erin")
	if err != nil || user.DisplayName != "Erin" {
		t.Fatalf("expected fresh profile got %+v err %v", user, err)
	}
}
