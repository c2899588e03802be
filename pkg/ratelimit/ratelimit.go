package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Result describes the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter allows at most Limit requests per window for each key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// TokenBucketLimiter keeps one token bucket per key in memory. A bucket holds
// max tokens and refills fully over one window.
type TokenBucketLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	max       int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucketLimiter(max int, window time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets:   make(map[string]*bucket),
		max:       max,
		window:    window,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(l.max) - tokens
	resetAt := now.Add(time.Duration(missing * float64(l.window) / float64(l.max)))

	return Result{Allowed: allowed, Limit: l.max, Remaining: remaining, ResetAt: resetAt}, nil
}

// sweep drops buckets idle for a full window; they would be full again anyway.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// RedisRateLimiter implements a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: "notifly:ratelimit",
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	windowStart := now.Truncate(r.window)
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, windowStart.Unix())

	n, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment counter: %w", err)
	}
	if n == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return Result{}, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	count := int(n)
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= r.limit,
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   windowStart.Add(r.window),
	}, nil
}

// Middleware rejects clients over their limit with 429. Limiter errors are
// logged and the request is let through.
func Middleware(limiter RateLimiter, keyFunc func(*gin.Context) string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			key = c.ClientIP()
		}

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Too many requests from this IP, please try again later.",
			})
			return
		}

		c.Next()
	}
}

// IPKeyFunc returns client IP as rate limit key
func IPKeyFunc(c *gin.Context) string {
	return c.ClientIP()
}
