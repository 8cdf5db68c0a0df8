package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/reelmark/bookmarks-api/internal/auth"
	"github.com/reelmark/bookmarks-api/internal/config"
)

// Manager holds all middleware instances
type Manager struct {
	Auth         *AuthMiddleware
	Idempotency  *IdempotencyMiddleware // nil unless Redis is enabled
	RateLimit    *RateLimitMiddleware
	ErrorLogger  *ErrorLoggerMiddleware
	RedisClient  redis.UniversalClient // nil unless Redis is enabled
	RedisBreaker *CircuitBreaker
	Config       *config.Config
	Logger       *logrus.Logger

	localLimiter *LocalLimiter
}

// NewManager wires the middleware. Redis backs rate limiting and idempotency
// when enabled; otherwise rate limiting runs in process.
func NewManager(cfg *config.Config, tokens *auth.TokenService, users UserLookup, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{
		Auth:        NewAuthMiddleware(tokens, users, logger),
		ErrorLogger: NewErrorLoggerMiddleware(logger),
		Config:      cfg,
		Logger:      logger,
	}

	m.localLimiter = NewLocalLimiter(&cfg.RateLimit)

	if !cfg.Redis.Enabled {
		m.RateLimit = NewRateLimitMiddleware(&cfg.RateLimit, m.localLimiter, nil, logger)
		logger.Info("Redis disabled; using in-process rate limiting, idempotency off")
		return m, nil
	}

	redisClient, err := NewRedisUniversalClient(&cfg.Redis, &cfg.AWS, logger)
	if err != nil {
		m.localLimiter.Stop()
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	m.RedisClient = redisClient

	m.RedisBreaker = NewCircuitBreaker("redis", logger)
	m.RateLimit = NewRateLimitMiddleware(&cfg.RateLimit, NewRedisLimiter(redisClient, m.RedisBreaker, &cfg.RateLimit), m.localLimiter, logger)

	if cfg.Idempotency.Enabled {
		m.Idempotency = NewIdempotencyMiddleware(redisClient, m.RedisBreaker, cfg.Idempotency.TTL, logger)
	}

	return m, nil
}

// IdempotencyHandler returns the idempotency middleware, or a pass-through
// when it is disabled
func (m *Manager) IdempotencyHandler() fiber.Handler {
	if m.Idempotency == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return m.Idempotency.Handle()
}

// Close closes all middleware resources
func (m *Manager) Close() error {
	if m.localLimiter != nil {
		m.localLimiter.Stop()
	}
	if m.RedisClient != nil {
		return m.RedisClient.Close()
	}
	return nil
}
