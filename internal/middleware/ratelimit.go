package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/reelmark/bookmarks-api/internal/config"
	"github.com/reelmark/bookmarks-api/internal/metrics"
	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// tokenBucketScript refills at ARGV[2] tokens per ARGV[3] ms up to ARGV[1]
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local tokens = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local current_tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or 0

local now = redis.call("TIME")
local now_ms = now[1] * 1000 + math.floor(now[2] / 1000)

if last_refill > 0 then
    local elapsed = now_ms - last_refill
    local tokens_to_add = math.floor(elapsed / interval_ms * tokens)
    current_tokens = math.min(capacity, current_tokens + tokens_to_add)
end

local allowed = 0
if current_tokens >= requested then
    current_tokens = current_tokens - requested
    allowed = 1
end

redis.call("HSET", key, "tokens", current_tokens, "last_refill", now_ms)
redis.call("EXPIRE", key, 3600)

return {allowed, current_tokens, capacity}`)

// LimitResult is the outcome of one rate limit check
type LimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

// RedisLimiter is a token bucket shared by all replicas
type RedisLimiter struct {
	client  redis.UniversalClient
	breaker *CircuitBreaker
	cfg     *config.RateLimitConfig
}

func NewRedisLimiter(client redis.UniversalClient, breaker *CircuitBreaker, cfg *config.RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		breaker: breaker,
		cfg:     cfg,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	start := time.Now()

	var result interface{}
	err := r.breaker.Execute(ctx, func() error {
		var err error
		result, err = tokenBucketScript.Run(ctx, r.client, []string{key},
			r.cfg.Burst, r.cfg.RPS, r.cfg.WindowSize.Milliseconds(), 1).Result()
		return err
	})
	if err != nil {
		metrics.RecordRedisOperation("ratelimit", "failure", time.Since(start))
		return LimitResult{}, fmt.Errorf("failed to execute rate limit script: %w", err)
	}
	metrics.RecordRedisOperation("ratelimit", "success", time.Since(start))

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return LimitResult{}, fmt.Errorf("unexpected script result format")
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return LimitResult{}, fmt.Errorf("failed to parse allowed result")
	}
	remaining, ok := values[1].(int64)
	if !ok {
		return LimitResult{}, fmt.Errorf("failed to parse remaining result")
	}

	return LimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.Now().Add(r.cfg.WindowSize).Truncate(time.Second),
	}, nil
}

// keyLimiter tracks one in-process bucket and its last use
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter keeps per-key token buckets in process memory. Used when Redis
// is disabled and as the fallback when Redis checks fail.
type LocalLimiter struct {
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewLocalLimiter(cfg *config.RateLimitConfig) *LocalLimiter {
	window := cfg.WindowSize
	if window <= 0 {
		window = time.Second
	}

	l := &LocalLimiter{
		limit:    rate.Limit(float64(cfg.RPS) / window.Seconds()),
		burst:    cfg.Burst,
		idleTTL:  10 * time.Minute,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	now := time.Now()

	l.mu.Lock()
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = kl
	}
	kl.lastAccess = now
	l.mu.Unlock()

	allowed := kl.limiter.AllowN(now, 1)
	remaining := int(math.Floor(kl.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(time.Second)
	if l.limit > 0 {
		resetAt = now.Add(time.Duration(float64(time.Second) / float64(l.limit)))
	}

	return LimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

// Len returns the number of tracked keys
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Stop ends the cleanup goroutine
func (l *LocalLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *LocalLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

type RateLimitMiddleware struct {
	config   *config.RateLimitConfig
	primary  Limiter
	fallback Limiter
	logger   *logrus.Logger
}

// NewRateLimitMiddleware checks primary first and consults fallback when
// primary errors. fallback may be nil, in which case errors fail open.
func NewRateLimitMiddleware(cfg *config.RateLimitConfig, primary, fallback Limiter, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		config:   cfg,
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Handle rate limiting middleware
func (r *RateLimitMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !r.config.Enabled || r.primary == nil {
			return c.Next()
		}

		path := c.Path()
		for _, exemptPath := range r.config.ExemptPaths {
			if exemptPath != "" && strings.HasPrefix(path, exemptPath) {
				return c.Next()
			}
		}

		key, keyType := r.generateKey(c)

		result, err := r.primary.Allow(c.UserContext(), key)
		if err != nil {
			r.logger.WithError(err).Warn("Rate limit check failed")
			if r.fallback == nil {
				return c.Next()
			}
			if result, err = r.fallback.Allow(c.UserContext(), key); err != nil {
				return c.Next()
			}
		}

		r.setRateLimitHeaders(c, result)

		if !result.Allowed {
			metrics.RecordRateLimitDrop(keyType)
			r.logger.WithFields(logrus.Fields{
				"key":       key,
				"path":      path,
				"method":    c.Method(),
				"remaining": result.Remaining,
			}).Warn("Rate limit exceeded")

			return apperrors.NewAppError(apperrors.CodeRateLimited, "Rate limit exceeded. Please try again later.", nil)
		}

		return c.Next()
	}
}

// generateKey prefers the authenticated user and falls back to client IP.
// The user key only applies when the limiter is mounted after the auth gate.
func (r *RateLimitMiddleware) generateKey(c *fiber.Ctx) (string, string) {
	if userID := GetUserID(c); userID != "" {
		return fmt.Sprintf("ratelimit:user:%s", userID), "user"
	}
	return fmt.Sprintf("ratelimit:ip:%s", c.IP()), "ip"
}

// setRateLimitHeaders sets standard rate limit headers
func (r *RateLimitMiddleware) setRateLimitHeaders(c *fiber.Ctx, result LimitResult) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(r.config.RPS))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Allowed {
		retryAfter := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
}
