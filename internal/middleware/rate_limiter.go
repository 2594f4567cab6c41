package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// RateLimitConfig describes a token bucket shared by one caller key.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
	// TTL evicts callers that have been idle for longer than this.
	TTL time.Duration
}

// KeyedRateLimiter tracks request rates per caller key, usually a user id.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyedRateLimiter constructs a limiter allowing cfg.Requests events per
// cfg.Window plus cfg.Burst. Zero values fall back to one request per second.
func NewKeyedRateLimiter(cfg RateLimitConfig) *KeyedRateLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	return &KeyedRateLimiter{
		callers: make(map[string]*caller),
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   cfg.Burst,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *KeyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "anonymous"
	}

	now := l.now()

	l.mu.Lock()
	c := l.callerLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Len reports how many callers are currently tracked.
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

func (l *KeyedRateLimiter) callerLocked(key string, now time.Time) *caller {
	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}

	c := &caller{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.callers[key] = c
	return c
}

func (l *KeyedRateLimiter) gcLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.callers, key)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *KeyedRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
