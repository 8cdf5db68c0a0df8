package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmark/bookmarks-api/internal/config"
)

func testRateLimitConfig(rps, burst int) *config.RateLimitConfig {
	return &config.RateLimitConfig{
		RPS:         rps,
		Burst:       burst,
		WindowSize:  time.Second,
		Enabled:     true,
		ExemptPaths: []string{"/healthz"},
	}
}

func newRateLimitedApp(cfg *config.RateLimitConfig, primary, fallback Limiter) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	app.Use(NewRateLimitMiddleware(cfg, primary, fallback, quietLogger()).Handle())
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func TestLocalLimiter_Burst(t *testing.T) {
	cfg := testRateLimitConfig(1, 3)
	limiter := NewLocalLimiter(cfg)
	defer limiter.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
	}

	result, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// Separate keys have separate buckets
	result, err = limiter.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, limiter.Len())
}

func TestLocalLimiter_CleanupDropsIdleKeys(t *testing.T) {
	limiter := NewLocalLimiter(testRateLimitConfig(10, 10))
	defer limiter.Stop()

	_, err := limiter.Allow(context.Background(), "idle")
	require.NoError(t, err)
	require.Equal(t, 1, limiter.Len())

	limiter.cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 0, limiter.Len())
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	cfg := testRateLimitConfig(1, 2)
	limiter := NewLocalLimiter(cfg)
	defer limiter.Stop()
	app := newRateLimitedApp(cfg, limiter, nil)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/x", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Exempt paths are never limited
	resp, err = app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (LimitResult, error) {
	return LimitResult{}, errors.New("redis down")
}

func TestRateLimitMiddleware_IgnoresUntrustedForwardingHeaders(t *testing.T) {
	cfg := testRateLimitConfig(1, 2)
	limiter := NewLocalLimiter(cfg)
	defer limiter.Stop()
	app := newRateLimitedApp(cfg, limiter, nil)

	var statuses []int
	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest("GET", "/api/x", nil)
		req.Header.Set(fiber.HeaderXForwardedFor, ip)
		req.Header.Set("X-Real-IP", ip)
		resp, err := app.Test(req)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, statuses)
}

func TestRateLimitMiddleware_HonoursTrustedProxyHeader(t *testing.T) {
	cfg := testRateLimitConfig(1, 1)
	limiter := NewLocalLimiter(cfg)
	defer limiter.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler:            ErrorHandler(false),
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0"},
		EnableIPValidation:      true,
	})
	app.Use(NewRateLimitMiddleware(cfg, limiter, nil, quietLogger()).Handle())
	app.Get("/api/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/api/x", nil)
		req.Header.Set(fiber.HeaderXForwardedFor, ip)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, ip)
	}
	assert.Equal(t, 2, limiter.Len())
}

func TestRateLimitMiddleware_KeysAuthenticatedUsersSeparately(t *testing.T) {
	cfg := testRateLimitConfig(1, 1)
	limiter := NewLocalLimiter(cfg)
	defer limiter.Stop()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(false)})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(localsUserID, c.Get("X-User"))
		return c.Next()
	})
	app.Use(NewRateLimitMiddleware(cfg, limiter, nil, quietLogger()).Handle())
	app.Get("/api/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	var statuses []int
	for _, user := range []string{"u1", "u1", "u2"} {
		req := httptest.NewRequest("GET", "/api/x", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusTooManyRequests, fiber.StatusOK}, statuses)
}

func TestRateLimitMiddleware_FallsBackWhenPrimaryFails(t *testing.T) {
	cfg := testRateLimitConfig(1, 1)
	local := NewLocalLimiter(cfg)
	defer local.Stop()
	app := newRateLimitedApp(cfg, failingLimiter{}, local)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitMiddleware_FailsOpenWithoutFallback(t *testing.T) {
	cfg := testRateLimitConfig(1, 1)
	app := newRateLimitedApp(cfg, failingLimiter{}, nil)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/x", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

// testRedisClient connects to REDIS_TEST_ADDRESS (default localhost:6379) or
// skips the test
func testRedisClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLimiter_TokenBucket(t *testing.T) {
	client := testRedisClient(t)
	cfg := testRateLimitConfig(1, 2)
	limiter := NewRedisLimiter(client, NewCircuitBreaker("redis", quietLogger()), cfg)

	key := "ratelimit:test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}
