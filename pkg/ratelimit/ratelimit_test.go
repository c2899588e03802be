package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(2, time.Minute)
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// Keys are independent.
	res, _ = l.Allow(ctx, "b")
	assert.True(t, res.Allowed)
}

func TestTokenBucketLimiter_RefillsAndSweeps(t *testing.T) {
	now := time.Now()
	l := NewTokenBucketLimiter(1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	res, _ := l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a")
	assert.False(t, res.Allowed)

	now = now.Add(2 * time.Minute)
	res, _ = l.Allow(ctx, "b")
	assert.True(t, res.Allowed)
	assert.NotContains(t, l.buckets, "a")

	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedisRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.ResetAt.After(time.Now()))
}

func TestMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(Middleware(NewTokenBucketLimiter(1, time.Minute), IPKeyFunc, logger.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too Many Requests")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
