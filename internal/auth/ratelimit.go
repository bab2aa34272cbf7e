package auth

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"crudgate/internal/config"
	"crudgate/internal/engine"
)

const defaultMaxKeys = 10000

// RateLimiter is a per-route, per-client-IP sliding-window limiter. Hits
// live in one expirable LRU per route whose TTL is that route's window, so
// idle clients age out on their own.
//
// State is process-local: it resets on restart and is not shared between
// instances.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]config.RouteLimit
	hits   map[string]*expirable.LRU[string, []time.Time]
	now    func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	rl := &RateLimiter{
		limits: make(map[string]config.RouteLimit, len(cfg.Routes)),
		hits:   make(map[string]*expirable.LRU[string, []time.Time], len(cfg.Routes)),
		now:    time.Now,
	}
	for route, limit := range cfg.Routes {
		if limit.Requests <= 0 || limit.Window <= 0 {
			continue
		}
		key := routeKey(route)
		rl.limits[key] = limit
		rl.hits[key] = expirable.NewLRU[string, []time.Time](maxKeys, nil, limit.Window)
	}
	return rl
}

// Allow records a hit for ip on route. When the window is full it returns
// false and how long until the oldest hit leaves the window.
func (rl *RateLimiter) Allow(route, ip string) (bool, time.Duration) {
	key := routeKey(route)
	limit, ok := rl.limits[key]
	if !ok {
		return true, 0
	}
	cache := rl.hits[key]

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-limit.Window)

	prev, _ := cache.Get(ip)
	recent := make([]time.Time, 0, len(prev)+1)
	for _, t := range prev {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= limit.Requests {
		cache.Add(ip, recent)
		return false, recent[0].Sub(cutoff)
	}

	cache.Add(ip, append(recent, now))
	return true, 0
}

// Middleware limits the routes configured on rl and passes everything else.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, retryAfter := rl.Allow(c.Path(), c.IP())
		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return engine.RateLimitedError()
		}
		return c.Next()
	}
}

// routeKey folds the path variants fiber routes to the same handler
// (case-insensitive, optional trailing slash) onto one limit.
func routeKey(path string) string {
	key := strings.TrimRight(strings.ToLower(path), "/")
	if key == "" {
		return "/"
	}
	return key
}
