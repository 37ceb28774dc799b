package middleware

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request from key is allowed. The in-memory
// implementation is fine for a single instance; a multi-instance deployment
// plugs in the redis one.
type Limiter interface {
	Allow(key string) bool
}

// memoryLimiter is a fixed-window counter guarded by a mutex.
type memoryLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter allows max requests per key per window.
func NewMemoryLimiter(max int, window time.Duration) Limiter {
	return &memoryLimiter{max: max, window: window, buckets: make(map[string]*bucket)}
}

func (l *memoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}

// redisLimiter counts per-window via INCR + EXPIRE, shared across instances.
type redisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter backs the limiter with redis at the given URL.
func NewRedisLimiter(redisURL string, max int, window time.Duration) (Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &redisLimiter{client: client, max: max, window: window}, nil
}

func (l *redisLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	redisKey := "ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		// Fail open: auth still works if redis blips.
		log.Printf("⚠️  [RateLimit] redis error for %s: %v", key, err)
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}
	return count <= int64(l.max)
}

// RateLimit applies the limiter keyed by client IP.
func RateLimit(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limiter.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests, slow down"})
		}
		return c.Next()
	}
}
