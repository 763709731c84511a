package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// OwnerHeader identifies the trading account behind a request. Clients that
// send it are limited per owner rather than per address.
const OwnerHeader = "X-Owner-ID"

type window struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window limiter keyed by owner or client address.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	windows        map[string]*window
	now            func() time.Time
	mu             sync.Mutex
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		windows:        make(map[string]*window),
		now:            time.Now,
	}
}

func (rl *RateLimiter) clientKey(c *fiber.Ctx) string {
	if owner := c.Get(OwnerHeader); owner != "" {
		return "owner:" + owner
	}
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return "ip:" + ip
}

// Allow counts one request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= rl.windowDuration {
		// edge case: drop expired windows of other clients when a new window opens
		rl.evictExpired(now)
		rl.windows[key] = &window{start: now, count: 1}
		return true
	}

	if w.count >= rl.maxRequests {
		return false
	}
	w.count++
	return true
}

func (rl *RateLimiter) evictExpired(now time.Time) {
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.windowDuration {
			delete(rl.windows, key)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.clientKey(c)

		if !rl.Allow(key) {
			log.Warn().
				Str("client", key).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
