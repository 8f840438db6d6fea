// Package ratelimit applies a per-tenant token bucket so one noisy client
// cannot starve the pipeline for everyone else.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/pkg/logger"
)

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

type Limiter struct {
	mu            sync.RWMutex
	buckets       map[string]*bucket
	maxTokens     int
	refillRate    time.Duration
	cleanupTicker *time.Ticker
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
}

func New(cfg Config) *Limiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 120
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}

	l := &Limiter{
		buckets:       make(map[string]*bucket),
		maxTokens:     cfg.MaxRequestsPerMinute,
		refillRate:    cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		cleanupTicker: time.NewTicker(5 * time.Minute),
	}

	go l.cleanup()

	return l
}

// Middleware limits by client_id when the body or query carries one, falling
// back to the caller IP for everything else (health checks, agent consoles).
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := limitKey(c)

		if !l.allow(key) {
			logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func limitKey(c *fiber.Ctx) string {
	if clientID := c.Params("client_id"); clientID != "" {
		return clientID
	}

	var body struct {
		ClientID string `json:"client_id"`
	}
	if err := c.BodyParser(&body); err == nil && body.ClientID != "" {
		return body.ClientID
	}

	return c.IP()
}

func (l *Limiter) allow(key string) bool {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		b, exists = l.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     l.maxTokens,
				lastRefill: time.Now(),
			}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	refill := int(now.Sub(b.lastRefill) / l.refillRate)
	if refill > 0 {
		b.tokens = min(l.maxTokens, b.tokens+refill)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

func (l *Limiter) cleanup() {
	for range l.cleanupTicker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			if now.Sub(b.lastRefill) > 10*time.Minute {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) Stop() {
	l.cleanupTicker.Stop()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
