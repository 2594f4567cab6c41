package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/groupify/backend/internal/models"
)

type cacheEntry struct {
	user    models.User
	expires time.Time
}

// CachingProvider wraps another Provider with a TTL-based in-memory cache.
type CachingProvider struct {
	base Provider
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingProvider returns a Provider that caches lookups for the provided TTL.
func NewCachingProvider(base Provider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachingProvider{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// Lookup returns a cached profile when available, otherwise it delegates to the
// underlying provider and stores the result. Failures are never cached.
func (c *CachingProvider) Lookup(ctx context.Context, userID string) (models.User, error) {
	if c == nil || c.base == nil {
		return models.User{}, ErrProviderUnavailable
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.Lookup(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.items[userID] = cacheEntry{user: user, expires: now.Add(c.ttl)}
	for id, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, id)
		}
	}
	c.mu.Unlock()

	return user, nil
}

// Invalidate drops a cached profile.
func (c *CachingProvider) Invalidate(_ context.Context, userID string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
	return nil
}
