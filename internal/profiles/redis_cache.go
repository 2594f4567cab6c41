package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/groupify/backend/internal/models"
)

const redisKeyPrefix = "groupify:profile:"

// RedisProvider caches profiles in Redis so every instance shares one cache.
// Redis failures degrade to the base provider.
type RedisProvider struct {
	base   Provider
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisProvider wraps base with a Redis-backed cache.
func NewRedisProvider(base Provider, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProvider{base: base, client: client, ttl: ttl, logger: logger}
}

// Lookup implements Provider.
func (p *RedisProvider) Lookup(ctx context.Context, userID string) (models.User, error) {
	if p == nil || p.base == nil {
		return models.User{}, ErrProviderUnavailable
	}

	key := redisKeyPrefix + userID
	raw, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var user models.User
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return user, nil
		}
		p.logger.Warn("discarding malformed cached profile", "userId", userID)
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("profile cache read failed", "userId", userID, "error", err)
	}

	user, err := p.base.Lookup(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if payload, err := json.Marshal(user); err == nil {
		if err := p.client.Set(ctx, key, payload, p.ttl).Err(); err != nil {
			p.logger.Warn("profile cache write failed", "userId", userID, "error", err)
		}
	}
	return user, nil
}

// Invalidate drops a cached profile.
func (p *RedisProvider) Invalidate(ctx context.Context, userID string) error {
	if p == nil {
		return nil
	}
	return p.client.Del(ctx, redisKeyPrefix+userID).Err()
}
